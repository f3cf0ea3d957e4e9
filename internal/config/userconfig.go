package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	dark "github.com/thiagokokada/dark-mode-go"
)

// UserConfigFileName is the TOML config file for user preferences
const UserConfigFileName = "config.toml"

// UserConfig represents user-facing configuration in TOML format
type UserConfig struct {
	// Theme sets the inspector color scheme: "dark" (default), "light", or "system"
	Theme string `toml:"theme"`

	// Timing defines the reconciliation timeouts
	Timing TimingSettings `toml:"timing"`

	// Restore defines session replay behavior
	Restore RestoreSettings `toml:"restore"`

	// Logs defines debug log settings
	Logs LogSettings `toml:"logs"`

	// Bridge defines editor bridge spool settings
	Bridge BridgeSettings `toml:"bridge"`
}

// TimingSettings defines the two reconciliation timeouts.
type TimingSettings struct {
	// ExitTimeoutMS is how long a tentative record must sit unchallenged
	// before it is committed, and how long a pending window delete must age
	// before it is applied. A full application quit finishes well inside
	// this window, which is what keeps sessions alive across restarts.
	// Default: 2000
	ExitTimeoutMS int `toml:"exit_timeout_ms"`

	// LaunchTimeoutMS is the grace period after session restore completes
	// during which a spurious blank tab from the host is suppressed.
	// Default: 2000
	LaunchTimeoutMS int `toml:"launch_timeout_ms"`
}

// RestoreSettings defines session replay behavior.
type RestoreSettings struct {
	// OpenRateLimit caps replayed open-file actions per second so a large
	// session does not storm the host editor. Default: 40
	OpenRateLimit int `toml:"open_rate_limit"`

	// SuppressBlankTab closes the host's default blank tab when a session
	// was restored. Pointer to distinguish "not set" from "explicitly false".
	// Default: true
	SuppressBlankTab *bool `toml:"suppress_blank_tab"`
}

// LogSettings defines debug log configuration
type LogSettings struct {
	// DebugLevel sets the minimum log level: "debug", "info", "warn", "error"
	// Default: "info"
	DebugLevel string `toml:"debug_level"`

	// DebugFormat sets the log format: "json" (default) or "text"
	DebugFormat string `toml:"debug_format"`

	// DebugMaxMB is the max size in MB for keeper.log before rotation
	// Default: 10
	DebugMaxMB int `toml:"debug_max_mb"`

	// DebugBackups is the number of rotated keeper.log files to keep
	// Default: 5
	DebugBackups int `toml:"debug_backups"`

	// DebugRetentionDays is the number of days to keep rotated debug logs
	// Default: 10
	DebugRetentionDays int `toml:"debug_retention_days"`

	// DebugCompress enables gzip compression for rotated debug logs
	// Default: true
	DebugCompress *bool `toml:"debug_compress"`

	// RingBufferMB is the in-memory ring buffer size in MB for crash dumps
	// Default: 4
	RingBufferMB int `toml:"ring_buffer_mb"`

	// PprofEnabled starts a pprof server on localhost:6061 in debug mode
	// Default: false
	PprofEnabled bool `toml:"pprof_enabled"`

	// AggregateIntervalS is the event aggregation flush interval in seconds
	// Default: 30
	AggregateIntervalS int `toml:"aggregate_interval_secs"`
}

// BridgeSettings defines editor bridge spool configuration
type BridgeSettings struct {
	// SpoolDir overrides the per-profile spool directory
	SpoolDir string `toml:"spool_dir"`

	// JanitorMaxAgeHours is how old consumed spool files may grow before
	// the janitor removes them. Default: 24
	JanitorMaxAgeHours int `toml:"janitor_max_age_hours"`
}

// GetSuppressBlankTab returns whether blank tab suppression is on, defaulting to true
func (r *RestoreSettings) GetSuppressBlankTab() bool {
	if r.SuppressBlankTab == nil {
		return true
	}
	return *r.SuppressBlankTab
}

// GetDebugCompress returns whether rotated logs are compressed, defaulting to true
func (l *LogSettings) GetDebugCompress() bool {
	if l.DebugCompress == nil {
		return true
	}
	return *l.DebugCompress
}

// Cache for user config (loaded once per process)
var (
	userConfigCache   *UserConfig
	userConfigCacheMu sync.RWMutex
	defaultUserConfig = UserConfig{}
)

// GetUserConfigPath returns the path to the user config file
func GetUserConfigPath() (string, error) {
	dir, err := GetKeeperDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, UserConfigFileName), nil
}

// LoadUserConfig loads the user configuration from the TOML file.
// Returns cached config after first load.
func LoadUserConfig() (*UserConfig, error) {
	userConfigCacheMu.RLock()
	if userConfigCache != nil {
		defer userConfigCacheMu.RUnlock()
		return userConfigCache, nil
	}
	userConfigCacheMu.RUnlock()

	userConfigCacheMu.Lock()
	defer userConfigCacheMu.Unlock()

	// Double-check after acquiring write lock
	if userConfigCache != nil {
		return userConfigCache, nil
	}

	configPath, err := GetUserConfigPath()
	if err != nil {
		userConfigCache = &defaultUserConfig
		return userConfigCache, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		userConfigCache = &defaultUserConfig
		return userConfigCache, nil
	}

	var config UserConfig
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		// Cache the default anyway to prevent repeated parse attempts;
		// the caller decides whether to surface the error.
		userConfigCache = &defaultUserConfig
		return userConfigCache, fmt.Errorf("config.toml parse error: %w", err)
	}

	userConfigCache = &config
	return userConfigCache, nil
}

// ReloadUserConfig forces a reload of the user config
func ReloadUserConfig() (*UserConfig, error) {
	userConfigCacheMu.Lock()
	userConfigCache = nil
	userConfigCacheMu.Unlock()
	return LoadUserConfig()
}

// ClearUserConfigCache clears the cached user config, allowing tests to reset
// state. The next LoadUserConfig() reads fresh from disk.
func ClearUserConfigCache() {
	userConfigCacheMu.Lock()
	userConfigCache = nil
	userConfigCacheMu.Unlock()
}

// SaveUserConfig writes the config to config.toml with an atomic
// write-tmp/fsync/rename sequence so a crash never leaves a torn file.
func SaveUserConfig(config *UserConfig) error {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# sessionkeeper configuration\n")
	buf.WriteString("# Edit this file or run 'sessionkeeper config init' for a commented example\n\n")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := syncFile(tmpPath); err != nil {
		// Rename alone still gives crash consistency, just weaker durability.
		_ = err
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}

	ClearUserConfigCache()
	return nil
}

// syncFile calls fsync on a file to ensure data is written to disk
func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// GetTheme returns the configured theme, defaulting to "dark"
func GetTheme() string {
	config, err := LoadUserConfig()
	if err != nil || config == nil {
		return "dark"
	}
	switch config.Theme {
	case "dark", "light", "system":
		return config.Theme
	default:
		return "dark"
	}
}

// ResolveTheme resolves the configured theme to "dark" or "light".
// If theme is "system", detects the OS dark mode setting.
// Falls back to "dark" on detection failure.
func ResolveTheme() string {
	theme := GetTheme()
	if theme != "system" {
		return theme
	}
	isDark, err := dark.IsDarkMode()
	if err != nil {
		return "dark"
	}
	if isDark {
		return "dark"
	}
	return "light"
}

// GetTimingSettings returns the reconciliation timeouts with defaults applied.
func GetTimingSettings() (exitTimeout, launchTimeout time.Duration) {
	exitMS, launchMS := 2000, 2000
	if config, err := LoadUserConfig(); err == nil && config != nil {
		if config.Timing.ExitTimeoutMS > 0 {
			exitMS = config.Timing.ExitTimeoutMS
		}
		if config.Timing.LaunchTimeoutMS > 0 {
			launchMS = config.Timing.LaunchTimeoutMS
		}
	}
	return time.Duration(exitMS) * time.Millisecond, time.Duration(launchMS) * time.Millisecond
}

// GetRestoreSettings returns replay settings with defaults applied.
func GetRestoreSettings() RestoreSettings {
	settings := RestoreSettings{}
	if config, err := LoadUserConfig(); err == nil && config != nil {
		settings = config.Restore
	}
	if settings.OpenRateLimit <= 0 {
		settings.OpenRateLimit = 40
	}
	return settings
}

// GetLogSettings returns debug log settings with defaults applied.
func GetLogSettings() LogSettings {
	settings := LogSettings{}
	if config, err := LoadUserConfig(); err == nil && config != nil {
		settings = config.Logs
	}
	if settings.DebugLevel == "" {
		settings.DebugLevel = "info"
	}
	if settings.DebugFormat == "" {
		settings.DebugFormat = "json"
	}
	if settings.DebugMaxMB <= 0 {
		settings.DebugMaxMB = 10
	}
	if settings.DebugBackups <= 0 {
		settings.DebugBackups = 5
	}
	if settings.DebugRetentionDays <= 0 {
		settings.DebugRetentionDays = 10
	}
	if settings.RingBufferMB <= 0 {
		settings.RingBufferMB = 4
	}
	if settings.AggregateIntervalS <= 0 {
		settings.AggregateIntervalS = 30
	}
	return settings
}

// GetBridgeSettings returns bridge spool settings with defaults applied.
func GetBridgeSettings() BridgeSettings {
	settings := BridgeSettings{}
	if config, err := LoadUserConfig(); err == nil && config != nil {
		settings = config.Bridge
	}
	if settings.JanitorMaxAgeHours <= 0 {
		settings.JanitorMaxAgeHours = 24
	}
	return settings
}

// CreateExampleConfig creates a commented example config file if none exists
func CreateExampleConfig() error {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return err
	}

	// Don't overwrite existing config
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	exampleConfig := `# sessionkeeper configuration
# Loaded on startup. All values shown are the defaults.

# Inspector color scheme: "dark", "light", or "system"
# theme = "dark"

# Reconciliation timeouts
[timing]
# How long a tentative record must sit unchallenged before it is committed.
# A window close inserts a pending delete that must age past this value
# before the session entry is removed; an application quit finishes faster
# than this, which is what preserves sessions across restarts.
exit_timeout_ms = 2000
# Grace period after restore during which a spurious blank tab is suppressed
launch_timeout_ms = 2000

# Session replay
[restore]
# Cap on replayed open-file actions per second
open_rate_limit = 40
# Close the host's default blank tab when a session was restored
suppress_blank_tab = true

# Debug logging (activated by SESSIONKEEPER_DEBUG=1 or a configured level)
[logs]
# Minimum level: "debug", "info", "warn", "error"
debug_level = "info"
# Format: "json" or "text"
debug_format = "json"
# Rotation: size per file, files kept, days kept
debug_max_mb = 10
debug_backups = 5
debug_retention_days = 10
debug_compress = true
# In-memory ring buffer for SIGUSR1 crash dumps, in MB
ring_buffer_mb = 4
# Event aggregation flush interval in seconds
aggregate_interval_secs = 30

# Editor bridge spool
[bridge]
# Override the spool directory (default: <profile>/spool)
# spool_dir = "~/.sessionkeeper/profiles/default/spool"
# Age in hours before consumed spool files are removed
janitor_max_age_hours = 24
`

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(exampleConfig), 0o600); err != nil {
		return fmt.Errorf("failed to write example config: %w", err)
	}

	return nil
}
