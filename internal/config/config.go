package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	// DefaultProfile is the name of the default profile
	DefaultProfile = "default"

	// ProfilesDirName is the directory containing all profiles
	ProfilesDirName = "profiles"

	// GlobalConfigFileName is the global config file name
	GlobalConfigFileName = "config.json"

	// SettingsDBFileName is the per-profile settings database
	SettingsDBFileName = "settings.db"

	// SpoolDirName is the per-profile editor bridge spool directory
	SpoolDirName = "spool"
)

// GlobalConfig represents the cross-profile sessionkeeper configuration.
type GlobalConfig struct {
	// DefaultProfile is the profile to use when none is specified
	DefaultProfile string `json:"default_profile"`

	// LastUsed is the most recently used profile
	LastUsed string `json:"last_used,omitempty"`

	// Version tracks config format for future migrations
	Version int `json:"version"`
}

// GetKeeperDir returns the base sessionkeeper directory (~/.sessionkeeper)
func GetKeeperDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".sessionkeeper"), nil
}

// GetGlobalConfigPath returns the path to the global config file
func GetGlobalConfigPath() (string, error) {
	dir, err := GetKeeperDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, GlobalConfigFileName), nil
}

// GetProfilesDir returns the path to the profiles directory
func GetProfilesDir() (string, error) {
	dir, err := GetKeeperDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ProfilesDirName), nil
}

// GetProfileDir returns the path to a specific profile's directory
func GetProfileDir(profile string) (string, error) {
	if profile == "" {
		profile = DefaultProfile
	}

	// Sanitize profile name (prevent path traversal)
	profile = filepath.Base(profile)
	if profile == "." || profile == ".." {
		return "", fmt.Errorf("invalid profile name: %s", profile)
	}

	profilesDir, err := GetProfilesDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(profilesDir, profile), nil
}

// GetSettingsDBPath returns the settings database path for a profile.
func GetSettingsDBPath(profile string) (string, error) {
	dir, err := GetProfileDir(profile)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SettingsDBFileName), nil
}

// GetSpoolDir returns the editor bridge spool directory for a profile,
// honoring the [bridge] spool_dir override from config.toml.
func GetSpoolDir(profile string) (string, error) {
	settings := GetBridgeSettings()
	if settings.SpoolDir != "" {
		return ExpandTilde(settings.SpoolDir), nil
	}
	dir, err := GetProfileDir(profile)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SpoolDirName), nil
}

// ExpandTilde expands a leading ~ to the user's home directory.
func ExpandTilde(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// LoadGlobalConfig loads the global configuration
func LoadGlobalConfig() (*GlobalConfig, error) {
	configPath, err := GetGlobalConfigPath()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return &GlobalConfig{
			DefaultProfile: DefaultProfile,
			Version:        1,
		}, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config GlobalConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.DefaultProfile == "" {
		config.DefaultProfile = DefaultProfile
	}

	return &config, nil
}

// SaveGlobalConfig saves the global configuration
func SaveGlobalConfig(config *GlobalConfig) error {
	configPath, err := GetGlobalConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ListProfiles returns all available profile names
func ListProfiles() ([]string, error) {
	profilesDir, err := GetProfilesDir()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(profilesDir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(profilesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles directory: %w", err)
	}

	var profiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			profiles = append(profiles, entry.Name())
		}
	}

	sort.Strings(profiles)
	return profiles, nil
}

// ProfileExists checks if a profile exists
func ProfileExists(profile string) (bool, error) {
	profileDir, err := GetProfileDir(profile)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(profileDir); err == nil {
		return true, nil
	} else if os.IsNotExist(err) {
		return false, nil
	} else {
		return false, err
	}
}

// CreateProfile creates a new empty profile with its spool directories.
// The settings database is created lazily on first open.
func CreateProfile(profile string) error {
	if profile == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	exists, err := ProfileExists(profile)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("profile '%s' already exists", profile)
	}

	profileDir, err := GetProfileDir(profile)
	if err != nil {
		return err
	}

	for _, sub := range []string{"", SpoolDirName, filepath.Join(SpoolDirName, "events"), filepath.Join(SpoolDirName, "actions")} {
		if err := os.MkdirAll(filepath.Join(profileDir, sub), 0700); err != nil {
			return fmt.Errorf("failed to create profile directory: %w", err)
		}
	}

	return nil
}

// DeleteProfile deletes a profile and all its data
func DeleteProfile(profile string) error {
	// Prevent deleting the default profile if it's the only one
	if profile == DefaultProfile {
		profiles, err := ListProfiles()
		if err != nil {
			return err
		}
		if len(profiles) <= 1 {
			return fmt.Errorf("cannot delete the only remaining profile")
		}
	}

	profileDir, err := GetProfileDir(profile)
	if err != nil {
		return err
	}

	exists, err := ProfileExists(profile)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("profile '%s' does not exist", profile)
	}

	if err := os.RemoveAll(profileDir); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}

	config, err := LoadGlobalConfig()
	if err != nil {
		return err
	}
	if config.DefaultProfile == profile {
		config.DefaultProfile = DefaultProfile
		if err := SaveGlobalConfig(config); err != nil {
			return fmt.Errorf("profile deleted but failed to update config: %w", err)
		}
	}

	return nil
}

// SetDefaultProfile sets the default profile in the config
func SetDefaultProfile(profile string) error {
	exists, err := ProfileExists(profile)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("profile '%s' does not exist", profile)
	}

	config, err := LoadGlobalConfig()
	if err != nil {
		return err
	}

	config.DefaultProfile = profile
	return SaveGlobalConfig(config)
}

// GetEffectiveProfile returns the profile to use, considering:
// 1. Explicitly provided profile (from -p flag)
// 2. Environment variable SESSIONKEEPER_PROFILE
// 3. Config default profile
// 4. Fallback to "default"
func GetEffectiveProfile(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if envProfile := os.Getenv("SESSIONKEEPER_PROFILE"); envProfile != "" {
		return envProfile
	}

	config, err := LoadGlobalConfig()
	if err != nil {
		return DefaultProfile
	}

	if config.DefaultProfile != "" {
		return config.DefaultProfile
	}

	return DefaultProfile
}
