package statedb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// SettingsDB wraps a SQLite database holding the keeper's durable settings,
// including the serialized session map. Thread-safe for concurrent use from
// multiple goroutines within one process. Multiple OS processes can safely
// read/write via WAL mode + busy timeout.
type SettingsDB struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at dbPath with WAL mode and busy timeout.
func Open(dbPath string) (*SettingsDB, error) {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: foreign keys: %w", err)
	}

	return &SettingsDB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (s *SettingsDB) Close() error {
	// Checkpoint WAL to merge it back into the main database file
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced use cases (e.g., testing).
func (s *SettingsDB) DB() *sql.DB {
	return s.db
}

// Migrate creates tables if they don't exist and runs any pending migrations.
func (s *SettingsDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// metadata table
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	// settings table
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("statedb: create settings: %w", err)
	}

	// Set schema version
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

// IsEmpty returns true if the settings table has no rows.
func (s *SettingsDB) IsEmpty() (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM settings").Scan(&count)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// --- Settings ---

// Set inserts or replaces a settings key.
func (s *SettingsDB) Set(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)",
		key, value, time.Now().UnixNano(),
	)
	return err
}

// Get returns the value for a settings key. Returns "" if not found.
func (s *SettingsDB) Get(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Delete removes a settings key. Deleting a missing key is not an error.
func (s *SettingsDB) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM settings WHERE key = ?", key)
	return err
}

// Keys returns all settings keys in sorted order.
func (s *SettingsDB) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM settings ORDER BY key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// UpdatedAt returns the last write time for a settings key, or zero time if
// the key does not exist.
func (s *SettingsDB) UpdatedAt(key string) (time.Time, error) {
	var nanos int64
	err := s.db.QueryRow("SELECT updated_at FROM settings WHERE key = ?", key).Scan(&nanos)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos), nil
}

// --- Metadata ---

// SetMeta sets a key-value pair in the metadata table.
func (s *SettingsDB) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (s *SettingsDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// --- Change Detection ---

// Touch updates a metadata timestamp that other processes can poll to detect
// changes, e.g. the inspector refreshing while the keeper is live.
func (s *SettingsDB) Touch() error {
	return s.SetMeta("last_modified", fmt.Sprintf("%d", time.Now().UnixNano()))
}

// LastModified returns the last_modified timestamp from metadata.
func (s *SettingsDB) LastModified() (int64, error) {
	val, err := s.GetMeta("last_modified")
	if err != nil || val == "" {
		return 0, err
	}
	var ts int64
	_, err = fmt.Sscanf(val, "%d", &ts)
	return ts, err
}
