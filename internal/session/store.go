package session

import (
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/sessionkeeper/sessionkeeper/internal/logging"
	"github.com/sessionkeeper/sessionkeeper/internal/statedb"
)

// SessionKey is the settings key the serialized session map lives under.
const SessionKey = "window-files"

var storeLog = logging.ForComponent(logging.CompStore)

// SessionStore persists the session map in the settings database.
//
// Failure policy: loading falls back to an empty map (a corrupt or missing
// value must never prevent the editor from starting), and saving is
// best-effort (an unavailable store degrades the keeper to memory-only for
// the life of the process). Both paths log instead of failing the caller.
type SessionStore struct {
	db *statedb.SettingsDB // nil means memory-only degraded mode
	sf singleflight.Group  // deduplicates concurrent loads during restore
}

// NewSessionStore creates a store over an open settings database.
// A nil db is allowed and yields a store that loads empty and drops saves.
func NewSessionStore(db *statedb.SettingsDB) *SessionStore {
	return &SessionStore{db: db}
}

// Available reports whether a settings database is attached.
func (s *SessionStore) Available() bool {
	return s.db != nil
}

// Load reads and decodes the session map. Absent, empty, or corrupt stored
// values all decode to an empty map. Concurrent calls share one read: every
// window shown during restore consults the store, often in a burst.
func (s *SessionStore) Load() SessionMap {
	if s.db == nil {
		return SessionMap{}
	}

	v, _, _ := s.sf.Do("load", func() (interface{}, error) {
		raw, err := s.db.Get(SessionKey)
		if err != nil {
			storeLog.Warn("session_load_failed", slog.String("error", err.Error()))
			return SessionMap{}, nil
		}
		if raw == "" {
			return SessionMap{}, nil
		}
		m, err := DecodeSessionMap([]byte(raw))
		if err != nil {
			storeLog.Warn("session_corrupt",
				slog.String("error", err.Error()),
				slog.Int("bytes", len(raw)))
			return SessionMap{}, nil
		}
		return m, nil
	})
	return v.(SessionMap)
}

// Save serializes and writes the session map, then touches the change stamp
// so pollers notice. Failures are logged and swallowed.
func (s *SessionStore) Save(m SessionMap) {
	if s.db == nil {
		storeLog.Debug("session_save_skipped", slog.String("reason", "no database"))
		return
	}

	data, err := EncodeSessionMap(m)
	if err != nil {
		storeLog.Error("session_encode_failed", slog.String("error", err.Error()))
		return
	}
	if err := s.db.Set(SessionKey, string(data)); err != nil {
		storeLog.Warn("session_save_failed", slog.String("error", err.Error()))
		return
	}
	_ = s.db.Touch()

	storeLog.Debug("session_saved",
		slog.Int("windows", len(m)),
		slog.Int("bytes", len(data)))
}

// Raw returns the stored serialized session map verbatim, "" when absent.
func (s *SessionStore) Raw() (string, error) {
	if s.db == nil {
		return "", nil
	}
	return s.db.Get(SessionKey)
}

// DeleteWindow removes one window record and persists the rest.
// Used by maintenance tooling, not the engine.
func (s *SessionStore) DeleteWindow(id WindowID) {
	m := s.Load()
	if _, ok := m[id]; !ok {
		return
	}
	delete(m, id)
	s.Save(m)
}

// Clear removes the stored session map entirely.
func (s *SessionStore) Clear() {
	if s.db == nil {
		return
	}
	if err := s.db.Delete(SessionKey); err != nil {
		storeLog.Warn("session_clear_failed", slog.String("error", err.Error()))
		return
	}
	_ = s.db.Touch()
}
