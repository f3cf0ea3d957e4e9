package statedb

import (
	"encoding/json"
	"fmt"
	"os"
)

// LegacyStateFileName is the flat JSON file earlier keeper versions wrote the
// session map to, before settings moved into SQLite.
const LegacyStateFileName = "window-files.json"

// MigrateFromJSON imports a legacy window-files.json into the settings table
// under the given key. The file maps window IDs to tab group arrays; its shape
// is validated before import so a corrupt legacy file is rejected rather than
// smuggled into the database. On success the legacy file is renamed with a
// .migrated suffix so the import runs once.
//
// Returns the number of window records migrated (0 with nil error when there
// is nothing to do).
func MigrateFromJSON(jsonPath string, db *SettingsDB, key string) (int, error) {
	if _, err := os.Stat(jsonPath); os.IsNotExist(err) {
		return 0, nil
	}

	// Never clobber settings written by a newer version.
	existing, err := db.Get(key)
	if err != nil {
		return 0, fmt.Errorf("check existing: %w", err)
	}
	if existing != "" {
		return 0, nil
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return 0, fmt.Errorf("read json: %w", err)
	}

	var legacy map[string][][]string
	if err := json.Unmarshal(data, &legacy); err != nil {
		return 0, fmt.Errorf("parse json: %w", err)
	}

	// Re-encode canonically rather than storing the file bytes verbatim.
	canonical, err := json.Marshal(legacy)
	if err != nil {
		return 0, fmt.Errorf("encode: %w", err)
	}

	if err := db.Set(key, string(canonical)); err != nil {
		return 0, fmt.Errorf("write settings: %w", err)
	}
	if err := db.Touch(); err != nil {
		return len(legacy), fmt.Errorf("touch: %w", err)
	}

	if err := os.Rename(jsonPath, jsonPath+".migrated"); err != nil {
		// The import itself succeeded; a re-run will no-op on the existing key.
		return len(legacy), nil
	}

	return len(legacy), nil
}
