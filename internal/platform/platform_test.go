package platform

import (
	"runtime"
	"testing"
)

func TestDetectMatchesGOOS(t *testing.T) {
	p := Detect()
	switch runtime.GOOS {
	case "darwin":
		if p != MacOS {
			t.Errorf("expected macos on darwin, got %s", p)
		}
	case "windows":
		if p != Windows {
			t.Errorf("expected windows, got %s", p)
		}
	case "linux":
		if p != Linux && p != WSL1 && p != WSL2 {
			t.Errorf("expected a linux variant, got %s", p)
		}
	}
}

func TestClassifyLinux(t *testing.T) {
	tests := []struct {
		name        string
		procVersion string
		wslEnv      bool
		runWSL      bool
		want        Platform
	}{
		{
			name:        "native linux",
			procVersion: "Linux version 6.8.0-41-generic (buildd@lcy02) (gcc 13.2.0)",
			want:        Linux,
		},
		{
			name:        "wsl2 kernel tag",
			procVersion: "Linux version 5.15.153.1-microsoft-standard-WSL2",
			want:        WSL2,
		},
		{
			name:        "wsl1 kernel tag",
			procVersion: "Linux version 4.4.0-19041-Microsoft (Microsoft@Microsoft.com)",
			want:        WSL1,
		},
		{
			name:        "env var with run dir means wsl2",
			procVersion: "Linux version 6.8.0-custom",
			wslEnv:      true,
			runWSL:      true,
			want:        WSL2,
		},
		{
			name:        "env var alone defaults to wsl1",
			procVersion: "Linux version 6.8.0-custom",
			wslEnv:      true,
			want:        WSL1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyLinux(tt.procVersion, tt.wslEnv, tt.runWSL)
			if got != tt.want {
				t.Errorf("classifyLinux() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFsnotifyWarning(t *testing.T) {
	mounts := `rootfs / rootfs rw 0 0
/dev/sda1 / ext4 rw,relatime 0 0
drvfs /mnt/c 9p rw,noatime 0 0
server:/export /mnt/nfs nfs4 rw 0 0
//host/share /mnt/smb cifs rw 0 0
remote: /mnt/ssh fuse.sshfs rw 0 0
`

	tests := []struct {
		path     string
		wantWarn bool
	}{
		{"/home/user/.sessionkeeper/spool", false},
		{"/mnt/c/Users/me/spool", true},
		{"/mnt/nfs/spool", true},
		{"/mnt/smb/spool", true},
		{"/mnt/ssh/spool", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			warn := fsnotifyWarning(tt.path, mounts)
			if (warn != "") != tt.wantWarn {
				t.Errorf("fsnotifyWarning(%q) = %q, wantWarn=%v", tt.path, warn, tt.wantWarn)
			}
		})
	}
}

func TestFsnotifyWarningLongestPrefixWins(t *testing.T) {
	mounts := `/dev/sda1 / ext4 rw 0 0
drvfs /mnt 9p rw 0 0
/dev/sdb1 /mnt/local ext4 rw 0 0
`
	if warn := fsnotifyWarning("/mnt/local/spool", mounts); warn != "" {
		t.Errorf("ext4 submount should win over 9p parent, got %q", warn)
	}
	if warn := fsnotifyWarning("/mnt/other/spool", mounts); warn == "" {
		t.Error("9p mount should warn")
	}
}
