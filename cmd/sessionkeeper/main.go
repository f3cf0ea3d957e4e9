// Command sessionkeeper keeps an editor's window and tab layout alive across
// restarts. The bridge subcommand runs the reconciliation engine against an
// editor plugin's event spool; the bare command opens a terminal inspector
// over the saved sessions.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/sessionkeeper/sessionkeeper/internal/config"
	"github.com/sessionkeeper/sessionkeeper/internal/logging"
	"github.com/sessionkeeper/sessionkeeper/internal/ui"
)

const Version = "0.4.1"

// init sets up color profile for consistent terminal colors across environments
func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss color profile based on terminal capabilities.
// Prefers TrueColor for best visuals, falls back to ANSI256 for compatibility.
func initColorProfile() {
	// Allow user override via environment variable
	// SESSIONKEEPER_COLOR: truecolor, 256, 16, none
	if colorEnv := os.Getenv("SESSIONKEEPER_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}

	// Explicit TrueColor support
	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// Known TrueColor-capable terminals
	term := os.Getenv("TERM")
	trueColorTerms := []string{
		"xterm-256color",
		"screen-256color",
		"tmux-256color",
		"xterm-direct",
		"alacritty",
		"kitty",
		"wezterm",
	}
	for _, t := range trueColorTerms {
		if strings.Contains(term, t) || term == t {
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		}
	}

	if os.Getenv("WT_SESSION") != "" ||
		os.Getenv("ITERM_SESSION_ID") != "" ||
		os.Getenv("TERMINAL_EMULATOR") != "" ||
		os.Getenv("KONSOLE_VERSION") != "" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	// Works in SSH, basic terminals, and older emulators
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func main() {
	// Extract global -p/--profile flag before subcommand dispatch
	profile, args := extractProfileFlag(os.Args[1:])
	profile = config.GetEffectiveProfile(profile)

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("sessionkeeper v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "bridge":
			handleBridge(profile, args[1:])
			return
		case "inspect":
			runInspector(profile)
			return
		case "dump":
			handleDump(profile, args[1:])
			return
		case "delete", "rm":
			handleDelete(profile, args[1:])
			return
		case "clear":
			handleClear(profile, args[1:])
			return
		case "config":
			handleConfig(args[1:])
			return
		case "profile":
			handleProfile(args[1:])
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
			printHelp()
			os.Exit(1)
		}
	}

	// Bare invocation opens the inspector.
	runInspector(profile)
}

func runInspector(profile string) {
	teardown := setupLogging()
	defer teardown()

	if err := ui.Run(profile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging initializes structured logging from the environment and user
// config. When SESSIONKEEPER_DEBUG is unset logs are discarded so the keeper
// stays silent inside an editor's process tree. Returns a teardown function.
func setupLogging() func() {
	debugMode := os.Getenv("SESSIONKEEPER_DEBUG") != ""

	baseDir, err := config.GetKeeperDir()
	if err != nil {
		return func() {}
	}

	ls := config.GetLogSettings()
	logCfg := logging.Config{
		Debug:                 debugMode,
		LogDir:                baseDir,
		Level:                 ls.DebugLevel,
		Format:                ls.DebugFormat,
		MaxSizeMB:             ls.DebugMaxMB,
		MaxBackups:            ls.DebugBackups,
		MaxAgeDays:            ls.DebugRetentionDays,
		Compress:              ls.GetDebugCompress(),
		RingBufferSize:        ls.RingBufferMB * 1024 * 1024,
		AggregateIntervalSecs: ls.AggregateIntervalS,
		PprofEnabled:          ls.PprofEnabled,
	}
	logging.Init(logCfg)

	if debugMode {
		logging.ForComponent(logging.CompCLI).Info("started",
			slog.Int("pid", os.Getpid()),
			slog.String("version", Version))
	}

	// SIGUSR1 dumps the ring buffer for post-mortem debugging
	usr1Chan := make(chan os.Signal, 1)
	signal.Notify(usr1Chan, syscall.SIGUSR1)
	go func() {
		for range usr1Chan {
			dumpPath := filepath.Join(baseDir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRingBuffer(dumpPath); err != nil {
				logging.ForComponent(logging.CompCLI).Error("crash_dump_failed",
					slog.String("error", err.Error()))
			} else {
				logging.ForComponent(logging.CompCLI).Info("crash_dump_written",
					slog.String("path", dumpPath))
			}
		}
	}()

	return logging.Shutdown
}

// extractProfileFlag extracts -p or --profile from args, returning the profile and remaining args
func extractProfileFlag(args []string) (string, []string) {
	var profile string
	var remaining []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-p=") {
			profile = strings.TrimPrefix(arg, "-p=")
			continue
		}
		if strings.HasPrefix(arg, "--profile=") {
			profile = strings.TrimPrefix(arg, "--profile=")
			continue
		}

		if arg == "-p" || arg == "--profile" {
			if i+1 < len(args) {
				profile = args[i+1]
				i++
				continue
			}
		}

		remaining = append(remaining, arg)
	}

	return profile, remaining
}

func printHelp() {
	fmt.Printf(`sessionkeeper v%s - window session persistence for editors

Usage:
  sessionkeeper [command] [flags]

Commands:
  (none)               Open the saved-session inspector
  bridge               Run the reconciliation engine against an editor spool
  inspect              Open the saved-session inspector
  dump                 Print the saved sessions as JSON
  delete <window-id>   Forget one saved window record
  clear                Forget all saved window records
  config init          Write a commented example config.toml
  config path          Print the config file location
  config show          Print the effective settings after defaults
  profile list         List profiles
  profile create <n>   Create a profile
  profile delete <n>   Delete a profile and its saved sessions
  profile default <n>  Set the default profile
  version              Print the version

Flags:
  -p, --profile <name>  Profile to operate on (default: %q)

Environment:
  SESSIONKEEPER_PROFILE  Profile override when -p is not given
  SESSIONKEEPER_DEBUG    Enable debug logging to ~/.sessionkeeper/keeper.log
  SESSIONKEEPER_COLOR    Force color mode: truecolor, 256, 16, none
`, Version, config.DefaultProfile)
}
