// Package platform identifies the host environment and the quirks the
// keeper has to work around: which clipboard command exists, and whether
// inotify can be trusted on the filesystem holding the spool.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform is a detected host environment. WSL is split out from native
// Linux because clipboard access and inotify behave differently there.
type Platform string

const (
	MacOS   Platform = "macos"
	Linux   Platform = "linux"
	WSL1    Platform = "wsl1"
	WSL2    Platform = "wsl2"
	Windows Platform = "windows"
	Unknown Platform = "unknown"
)

func (p Platform) String() string {
	switch p {
	case MacOS:
		return "macOS"
	case Linux:
		return "Linux"
	case WSL1:
		return "WSL1"
	case WSL2:
		return "WSL2"
	case Windows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// Detect returns the current platform. The result is computed once.
var Detect = sync.OnceValue(detect)

func detect() Platform {
	switch runtime.GOOS {
	case "darwin":
		return MacOS
	case "windows":
		return Windows
	case "linux":
		version, _ := os.ReadFile("/proc/version")
		_, statErr := os.Stat("/run/WSL")
		return classifyLinux(string(version), os.Getenv("WSL_DISTRO_NAME") != "", statErr == nil)
	default:
		return Unknown
	}
}

// classifyLinux tells native Linux apart from the two WSL generations.
// WSL2 kernels carry a lowercase "microsoft-standard" tag; WSL1 surfaces
// as capitalized "Microsoft" without it. runWSL reports whether /run/WSL
// exists, which only WSL2 creates.
func classifyLinux(procVersion string, wslEnv, runWSL bool) Platform {
	inWSL := wslEnv ||
		strings.Contains(procVersion, "microsoft") ||
		strings.Contains(procVersion, "Microsoft")
	if !inWSL {
		return Linux
	}
	if strings.Contains(procVersion, "microsoft-standard") {
		return WSL2
	}
	if strings.Contains(procVersion, "Microsoft") {
		return WSL1
	}
	// The env var said WSL but the kernel string is inconclusive.
	if runWSL {
		return WSL2
	}
	return WSL1
}

// FsnotifyWarning reports why inotify events may never fire for path, or
// "" when the filesystem is fine. Network and 9p mounts swallow inotify,
// which would leave spooled files sitting unseen between manual scans.
func FsnotifyWarning(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}
	return fsnotifyWarning(absPath, string(mounts))
}

func fsnotifyWarning(absPath, mounts string) string {
	// Longest mount-point prefix wins; /proc/mounts lines are
	// "device mountpoint fstype options ...".
	var matched, fsType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if strings.HasPrefix(absPath, fields[1]) && len(fields[1]) > len(matched) {
			matched = fields[1]
			fsType = fields[2]
		}
	}

	switch {
	case fsType == "9p":
		return "9p mount (WSL2 Windows filesystem): inotify events do not fire"
	case fsType == "nfs", fsType == "nfs4":
		return "NFS mount: inotify events are unreliable"
	case fsType == "cifs", fsType == "smbfs":
		return "CIFS/SMB mount: inotify events are unreliable"
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "SSHFS mount: inotify events do not fire"
	}
	return ""
}
