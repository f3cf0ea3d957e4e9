package ui

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sessionkeeper/sessionkeeper/internal/logging"
	"github.com/sessionkeeper/sessionkeeper/internal/statedb"
)

var watcherLog = logging.ForComponent(logging.CompStore)

// StorageWatcher monitors the settings database for external changes by
// polling the metadata.last_modified timestamp. A running bridge persists
// committed sessions through the same database, so polling the stamp is what
// keeps the inspector live. fsnotify is unreliable for SQLite on certain
// filesystems (9p, NFS, WSL), hence polling.
type StorageWatcher struct {
	db        *statedb.SettingsDB
	reloadCh  chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once

	// lastModified tracks the last seen modification timestamp
	lastModified int64
	modMu        sync.RWMutex

	// Tracks when the inspector saved, to ignore self-triggered changes
	lastSaveTime time.Time
	saveMu       sync.RWMutex
}

// ignoreWindow is the time window after NotifySave during which changes are
// ignored. Must be > pollInterval so the first poll after a self-save always
// falls within the window.
const ignoreWindow = 3 * time.Second

// pollInterval is how often we check for external changes.
const pollInterval = 2 * time.Second

// NewStorageWatcher creates a watcher that polls the database metadata for
// changes. Returns nil for a nil database; the inspector then runs without
// live reload.
func NewStorageWatcher(db *statedb.SettingsDB) *StorageWatcher {
	if db == nil {
		return nil
	}

	lastMod, _ := db.LastModified()

	return &StorageWatcher{
		db:           db,
		lastModified: lastMod,
		reloadCh:     make(chan struct{}, 1),
		closeCh:      make(chan struct{}),
	}
}

// Start begins polling for changes (non-blocking).
func (sw *StorageWatcher) Start() {
	go sw.pollLoop()
}

func (sw *StorageWatcher) pollLoop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sw.closeCh:
			return
		case <-ticker.C:
			sw.checkAndNotify()
		}
	}
}

// checkAndNotify compares the metadata timestamp and signals a reload when
// it moved.
func (sw *StorageWatcher) checkAndNotify() {
	ts, err := sw.db.LastModified()
	if err != nil {
		watcherLog.Debug("watcher_poll_failed", slog.String("error", err.Error()))
		return
	}

	sw.modMu.Lock()
	changed := ts > sw.lastModified
	if changed {
		sw.lastModified = ts
	}
	sw.modMu.Unlock()

	if !changed {
		return
	}

	sw.saveMu.RLock()
	lastSave := sw.lastSaveTime
	sw.saveMu.RUnlock()

	if time.Since(lastSave) < ignoreWindow {
		watcherLog.Debug("watcher_ignoring_own_save")
		return
	}

	watcherLog.Debug("watcher_db_changed", slog.Int64("timestamp", ts))

	// Non-blocking send (drop if channel full)
	select {
	case sw.reloadCh <- struct{}{}:
	default:
		watcherLog.Debug("watcher_reload_channel_full")
	}
}

// ReloadChannel returns the channel that signals when reload is needed.
func (sw *StorageWatcher) ReloadChannel() <-chan struct{} {
	return sw.reloadCh
}

// NotifySave should be called right before the inspector writes to storage,
// so the watcher can ignore the resulting change.
func (sw *StorageWatcher) NotifySave() {
	sw.saveMu.Lock()
	sw.lastSaveTime = time.Now()
	sw.saveMu.Unlock()
}

// TriggerReload sends a reload signal without waiting for the next poll.
func (sw *StorageWatcher) TriggerReload() {
	// Update lastModified to current to prevent re-triggering
	if ts, err := sw.db.LastModified(); err == nil {
		sw.modMu.Lock()
		sw.lastModified = ts
		sw.modMu.Unlock()
	}
	select {
	case sw.reloadCh <- struct{}{}:
		watcherLog.Debug("watcher_trigger_reload")
	default:
		watcherLog.Debug("watcher_trigger_reload_channel_full")
	}
}

// Close stops the watcher and releases resources. Safe to call multiple times.
func (sw *StorageWatcher) Close() error {
	sw.closeOnce.Do(func() {
		close(sw.closeCh)
	})
	return nil
}
