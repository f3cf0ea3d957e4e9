package statedb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *SettingsDB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "settings.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "settings.db")

	// Open and write
	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db1.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := db1.Set("window-files", `{"w1":[["file:///a.txt"]]}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	db1.Close()

	// Reopen and verify the value survived
	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	defer db2.Close()
	if err := db2.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	val, err := db2.Get("window-files")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != `{"w1":[["file:///a.txt"]]}` {
		t.Errorf("Unexpected value: %q", val)
	}
}

func TestGetMissingKey(t *testing.T) {
	db := newTestDB(t)

	val, err := db.Get("does-not-exist")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "" {
		t.Errorf("Expected empty string for missing key, got %q", val)
	}
}

func TestSetOverwrites(t *testing.T) {
	db := newTestDB(t)

	if err := db.Set("k", "first"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := db.Set("k", "second"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, err := db.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "second" {
		t.Errorf("Expected 'second', got %q", val)
	}
}

func TestDelete(t *testing.T) {
	db := newTestDB(t)

	if err := db.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := db.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	val, err := db.Get("k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "" {
		t.Errorf("Expected deleted key to read empty, got %q", val)
	}

	// Deleting again is not an error
	if err := db.Delete("k"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestKeys(t *testing.T) {
	db := newTestDB(t)

	for _, k := range []string{"zeta", "alpha", "mid"} {
		if err := db.Set(k, "v"); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	keys, err := db.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("Expected 3 keys, got %d", len(keys))
	}
	if keys[0] != "alpha" || keys[1] != "mid" || keys[2] != "zeta" {
		t.Errorf("Keys not sorted: %v", keys)
	}
}

func TestIsEmpty(t *testing.T) {
	db := newTestDB(t)

	empty, err := db.IsEmpty()
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Error("Fresh database should be empty")
	}

	if err := db.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	empty, err = db.IsEmpty()
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if empty {
		t.Error("Database with one setting should not be empty")
	}
}

func TestUpdatedAt(t *testing.T) {
	db := newTestDB(t)

	zero, err := db.UpdatedAt("missing")
	if err != nil {
		t.Fatalf("UpdatedAt: %v", err)
	}
	if !zero.IsZero() {
		t.Errorf("Expected zero time for missing key, got %v", zero)
	}

	before := time.Now()
	if err := db.Set("k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	after := time.Now()

	ts, err := db.UpdatedAt("k")
	if err != nil {
		t.Fatalf("UpdatedAt: %v", err)
	}
	if ts.Before(before) || ts.After(after) {
		t.Errorf("UpdatedAt %v outside write window [%v, %v]", ts, before, after)
	}
}

func TestMetadata(t *testing.T) {
	db := newTestDB(t)

	// schema_version written by Migrate
	version, err := db.GetMeta("schema_version")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if version != "1" {
		t.Errorf("Expected schema_version=1, got %q", version)
	}

	if err := db.SetMeta("custom", "value"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	val, err := db.GetMeta("custom")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if val != "value" {
		t.Errorf("Expected 'value', got %q", val)
	}
}

func TestTouchLastModified(t *testing.T) {
	db := newTestDB(t)

	// No touch yet
	ts, err := db.LastModified()
	if err != nil {
		t.Fatalf("LastModified: %v", err)
	}
	if ts != 0 {
		t.Errorf("Expected 0 before first Touch, got %d", ts)
	}

	if err := db.Touch(); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	first, err := db.LastModified()
	if err != nil {
		t.Fatalf("LastModified: %v", err)
	}
	if first == 0 {
		t.Fatal("Expected non-zero timestamp after Touch")
	}

	time.Sleep(10 * time.Millisecond)
	if err := db.Touch(); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	second, err := db.LastModified()
	if err != nil {
		t.Fatalf("LastModified: %v", err)
	}
	if second <= first {
		t.Errorf("Expected monotonically increasing timestamps, got %d then %d", first, second)
	}
}

func TestConcurrentAccess(t *testing.T) {
	db := newTestDB(t)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "key"
			for range 20 {
				if err := db.Set(key, "v"); err != nil {
					t.Errorf("concurrent Set: %v", err)
					return
				}
				if _, err := db.Get(key); err != nil {
					t.Errorf("concurrent Get: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestMigrateFromJSON(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()

	legacy := map[string][][]string{
		"w1": {{"file:///a.txt", "file:///b.txt"}},
		"w2": {{"file:///c.txt"}, {"file:///d.txt"}},
	}
	data, err := json.Marshal(legacy)
	if err != nil {
		t.Fatal(err)
	}
	jsonPath := filepath.Join(dir, LegacyStateFileName)
	if err := os.WriteFile(jsonPath, data, 0600); err != nil {
		t.Fatal(err)
	}

	n, err := MigrateFromJSON(jsonPath, db, "window-files")
	if err != nil {
		t.Fatalf("MigrateFromJSON: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 records migrated, got %d", n)
	}

	// Imported value decodes back to the original map
	val, err := db.Get("window-files")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var out map[string][][]string
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		t.Fatalf("imported value not valid JSON: %v", err)
	}
	if len(out) != 2 || len(out["w2"]) != 2 {
		t.Errorf("Unexpected imported value: %v", out)
	}

	// Legacy file renamed out of the way
	if _, err := os.Stat(jsonPath); !os.IsNotExist(err) {
		t.Error("legacy file should have been renamed after migration")
	}
	if _, err := os.Stat(jsonPath + ".migrated"); err != nil {
		t.Error("expected .migrated rename target to exist")
	}
}

func TestMigrateFromJSONSkipsExisting(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()

	if err := db.Set("window-files", `{"kept":[["file:///x.txt"]]}`); err != nil {
		t.Fatal(err)
	}

	jsonPath := filepath.Join(dir, LegacyStateFileName)
	if err := os.WriteFile(jsonPath, []byte(`{"w1":[["file:///a.txt"]]}`), 0600); err != nil {
		t.Fatal(err)
	}

	n, err := MigrateFromJSON(jsonPath, db, "window-files")
	if err != nil {
		t.Fatalf("MigrateFromJSON: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no migration over existing key, got %d", n)
	}

	val, _ := db.Get("window-files")
	if val != `{"kept":[["file:///x.txt"]]}` {
		t.Errorf("Existing value clobbered: %q", val)
	}
}

func TestMigrateFromJSONRejectsCorrupt(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, LegacyStateFileName)
	if err := os.WriteFile(jsonPath, []byte(`{"w1": "not-a-group-list"}`), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := MigrateFromJSON(jsonPath, db, "window-files"); err == nil {
		t.Error("Expected error for malformed legacy file")
	}

	val, _ := db.Get("window-files")
	if val != "" {
		t.Errorf("Corrupt import should not write settings, got %q", val)
	}
}

func TestMigrateFromJSONMissingFile(t *testing.T) {
	db := newTestDB(t)

	n, err := MigrateFromJSON(filepath.Join(t.TempDir(), "nope.json"), db, "window-files")
	if err != nil {
		t.Fatalf("MigrateFromJSON: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 for missing file, got %d", n)
	}
}
