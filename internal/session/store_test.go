package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionkeeper/sessionkeeper/internal/statedb"
)

func newTestStore(t *testing.T) (*SessionStore, *statedb.SettingsDB) {
	t.Helper()
	db, err := statedb.Open(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewSessionStore(db), db
}

func TestStoreLoadMissing(t *testing.T) {
	store, _ := newTestStore(t)
	m := store.Load()
	require.NotNil(t, m)
	assert.Empty(t, m)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	want := SessionMap{
		"id-a": Record{{"file:///a1", "file:///a2"}, {"file:///a3"}},
		"id-b": Record{{"file:///b"}},
	}
	store.Save(want)

	got := store.Load()
	require.Len(t, got, 2)
	assert.True(t, got["id-a"].Equal(want["id-a"]))
	assert.True(t, got["id-b"].Equal(want["id-b"]))
}

func TestStoreLoadCorruptFallsBackToEmpty(t *testing.T) {
	store, db := newTestStore(t)
	require.NoError(t, db.Set(SessionKey, `{"id-a": "not a record"`))

	m := store.Load()
	require.NotNil(t, m)
	assert.Empty(t, m)
}

func TestStoreLoadWrongShapeFallsBackToEmpty(t *testing.T) {
	store, db := newTestStore(t)
	require.NoError(t, db.Set(SessionKey, `[["file:///a"]]`))

	assert.Empty(t, store.Load())
}

func TestStoreSaveTouchesChangeStamp(t *testing.T) {
	store, db := newTestStore(t)
	before, err := db.LastModified()
	require.NoError(t, err)

	store.Save(SessionMap{"id-a": Record{{"file:///a"}}})

	after, err := db.LastModified()
	require.NoError(t, err)
	assert.Greater(t, after, before)
}

func TestStoreNilDatabase(t *testing.T) {
	store := NewSessionStore(nil)
	assert.False(t, store.Available())
	assert.Empty(t, store.Load())

	// Degraded mode swallows writes without panicking.
	store.Save(SessionMap{"id-a": Record{{"file:///a"}}})
	store.Clear()
	store.DeleteWindow("id-a")

	raw, err := store.Raw()
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestStoreDeleteWindow(t *testing.T) {
	store, _ := newTestStore(t)
	store.Save(SessionMap{
		"id-a": Record{{"file:///a"}},
		"id-b": Record{{"file:///b"}},
	})

	store.DeleteWindow("id-a")
	got := store.Load()
	assert.NotContains(t, got, WindowID("id-a"))
	assert.Contains(t, got, WindowID("id-b"))

	// Deleting an absent window leaves the rest alone.
	store.DeleteWindow("id-missing")
	assert.Len(t, store.Load(), 1)
}

func TestStoreClear(t *testing.T) {
	store, _ := newTestStore(t)
	store.Save(SessionMap{"id-a": Record{{"file:///a"}}})
	store.Clear()

	assert.Empty(t, store.Load())
	raw, err := store.Raw()
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestStoreRawMatchesSavedEncoding(t *testing.T) {
	store, _ := newTestStore(t)
	m := SessionMap{"id-a": Record{{"file:///a"}}}
	store.Save(m)

	raw, err := store.Raw()
	require.NoError(t, err)
	want, err := EncodeSessionMap(m)
	require.NoError(t, err)
	assert.Equal(t, string(want), raw)
}
