package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetProfileDirSanitizesName(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	dir, err := GetProfileDir("work")
	if err != nil {
		t.Fatalf("GetProfileDir failed: %v", err)
	}
	want := filepath.Join(tmpHome, ".sessionkeeper", "profiles", "work")
	if dir != want {
		t.Errorf("GetProfileDir = %q, want %q", dir, want)
	}

	// Path traversal attempts collapse to their base name
	dir, err = GetProfileDir("../../etc")
	if err != nil {
		t.Fatalf("GetProfileDir failed: %v", err)
	}
	if filepath.Base(dir) != "etc" {
		t.Errorf("expected traversal to collapse, got %q", dir)
	}

	if _, err := GetProfileDir(".."); err == nil {
		t.Error("expected error for '..' profile name")
	}
}

func TestGetProfileDirEmptyDefaults(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	dir, err := GetProfileDir("")
	if err != nil {
		t.Fatalf("GetProfileDir failed: %v", err)
	}
	if filepath.Base(dir) != DefaultProfile {
		t.Errorf("empty profile should map to %q, got %q", DefaultProfile, dir)
	}
}

func TestCreateAndListProfiles(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	ClearUserConfigCache()
	defer ClearUserConfigCache()

	if err := CreateProfile("work"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}
	if err := CreateProfile("personal"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	// Duplicate creation fails
	if err := CreateProfile("work"); err == nil {
		t.Error("expected error creating duplicate profile")
	}

	profiles, err := ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d: %v", len(profiles), profiles)
	}
	// Sorted output
	if profiles[0] != "personal" || profiles[1] != "work" {
		t.Errorf("profiles not sorted: %v", profiles)
	}

	// Spool subdirectories exist
	spool := filepath.Join(tmpHome, ".sessionkeeper", "profiles", "work", "spool")
	for _, sub := range []string{"events", "actions"} {
		if _, err := os.Stat(filepath.Join(spool, sub)); err != nil {
			t.Errorf("spool/%s not created: %v", sub, err)
		}
	}
}

func TestDeleteProfile(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	ClearUserConfigCache()
	defer ClearUserConfigCache()

	if err := CreateProfile(DefaultProfile); err != nil {
		t.Fatal(err)
	}
	if err := CreateProfile("scratch"); err != nil {
		t.Fatal(err)
	}

	if err := SetDefaultProfile("scratch"); err != nil {
		t.Fatalf("SetDefaultProfile failed: %v", err)
	}

	if err := DeleteProfile("scratch"); err != nil {
		t.Fatalf("DeleteProfile failed: %v", err)
	}

	exists, err := ProfileExists("scratch")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("deleted profile still exists")
	}

	// Default profile pointer reset after deleting the default
	cfg, err := LoadGlobalConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultProfile != DefaultProfile {
		t.Errorf("DefaultProfile = %q, want %q", cfg.DefaultProfile, DefaultProfile)
	}

	// The only remaining profile cannot be deleted
	if err := DeleteProfile(DefaultProfile); err == nil {
		t.Error("expected error deleting the only remaining profile")
	}
}

func TestGetEffectiveProfile(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	t.Setenv("SESSIONKEEPER_PROFILE", "")
	ClearUserConfigCache()
	defer ClearUserConfigCache()

	// Explicit flag wins
	if got := GetEffectiveProfile("explicit"); got != "explicit" {
		t.Errorf("explicit profile = %q, want explicit", got)
	}

	// Env var next
	t.Setenv("SESSIONKEEPER_PROFILE", "fromenv")
	if got := GetEffectiveProfile(""); got != "fromenv" {
		t.Errorf("env profile = %q, want fromenv", got)
	}

	// Config default next
	t.Setenv("SESSIONKEEPER_PROFILE", "")
	if err := SaveGlobalConfig(&GlobalConfig{DefaultProfile: "cfgdefault", Version: 1}); err != nil {
		t.Fatal(err)
	}
	if got := GetEffectiveProfile(""); got != "cfgdefault" {
		t.Errorf("config profile = %q, want cfgdefault", got)
	}
}

func TestExpandTilde(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	tests := []struct {
		input string
		want  string
	}{
		{"~/spool", filepath.Join(tmpHome, "spool")},
		{"~", tmpHome},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
	}
	for _, tt := range tests {
		if got := ExpandTilde(tt.input); got != tt.want {
			t.Errorf("ExpandTilde(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestGlobalConfigRoundTrip(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	in := &GlobalConfig{DefaultProfile: "work", LastUsed: "personal", Version: 1}
	if err := SaveGlobalConfig(in); err != nil {
		t.Fatalf("SaveGlobalConfig failed: %v", err)
	}

	out, err := LoadGlobalConfig()
	if err != nil {
		t.Fatalf("LoadGlobalConfig failed: %v", err)
	}
	if out.DefaultProfile != "work" || out.LastUsed != "personal" {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
