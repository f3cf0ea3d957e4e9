// Package clipboard copies text to the system clipboard, trying a native
// command first and falling back to the OSC 52 escape sequence for
// terminals that support it (SSH sessions, headless boxes).
package clipboard

import (
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sessionkeeper/sessionkeeper/internal/platform"
)

// CopyResult describes how a copy went through.
type CopyResult struct {
	Method    string // "pbcopy", "xclip", "wl-copy", "clip.exe", "osc52"
	ByteSize  int
	LineCount int
}

// Copy puts text on the system clipboard.
func Copy(text string) (*CopyResult, error) {
	if text == "" {
		return nil, fmt.Errorf("no content to copy")
	}

	res := &CopyResult{
		ByteSize:  len(text),
		LineCount: countLines(text),
	}

	method, err := copyNative(text)
	if err == nil {
		res.Method = method
		return res, nil
	}

	if supportsOSC52() {
		if err := copyOSC52(text); err != nil {
			return nil, fmt.Errorf("OSC 52 clipboard failed: %w", err)
		}
		res.Method = "osc52"
		return res, nil
	}

	return nil, fmt.Errorf("no clipboard method available (install pbcopy, xclip, xsel, or wl-copy)")
}

func copyNative(text string) (string, error) {
	switch platform.Detect() {
	case platform.MacOS:
		return "pbcopy", pipeTo("pbcopy", nil, text)

	case platform.WSL1, platform.WSL2:
		return "clip.exe", pipeTo("clip.exe", nil, text)

	case platform.Linux:
		// Wayland before X11
		if os.Getenv("WAYLAND_DISPLAY") != "" {
			if path, err := exec.LookPath("wl-copy"); err == nil {
				return "wl-copy", pipeTo(path, nil, text)
			}
		}
		if path, err := exec.LookPath("xclip"); err == nil {
			return "xclip", pipeTo(path, []string{"-selection", "clipboard"}, text)
		}
		if path, err := exec.LookPath("xsel"); err == nil {
			return "xsel", pipeTo(path, []string{"--clipboard", "--input"}, text)
		}
		return "", fmt.Errorf("no clipboard command found")

	default:
		return "", fmt.Errorf("unsupported platform: %s", platform.Detect())
	}
}

func pipeTo(name string, args []string, text string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}

// supportsOSC52 guesses from the environment whether the terminal honors
// OSC 52. tmux needs a passthrough wrapper, handled in copyOSC52.
func supportsOSC52() bool {
	if os.Getenv("TMUX") != "" {
		return true
	}
	switch os.Getenv("TERM_PROGRAM") {
	case "iTerm.app", "WezTerm", "ghostty":
		return true
	}
	term := os.Getenv("TERM")
	for _, known := range []string{"kitty", "alacritty", "wezterm", "foot", "xterm"} {
		if strings.Contains(term, known) {
			return true
		}
	}
	return false
}

// copyOSC52 writes the OSC 52 sequence straight to the controlling
// terminal so stdout redirection does not eat it.
func copyOSC52(text string) error {
	seq := osc52Sequence(base64.StdEncoding.EncodeToString([]byte(text)), os.Getenv("TMUX") != "")

	tty, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("cannot open /dev/tty: %w", err)
	}
	defer tty.Close()

	_, err = tty.WriteString(seq)
	return err
}

func osc52Sequence(base64Content string, inTmux bool) string {
	osc := "\x1b]52;c;" + base64Content + "\x07"
	if inTmux {
		// DCS passthrough, otherwise tmux consumes the sequence
		return "\x1bPtmux;\x1b" + osc + "\x1b\\"
	}
	return osc
}

// countLines counts lines; a trailing newline does not add one.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
