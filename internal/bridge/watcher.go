package bridge

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sessionkeeper/sessionkeeper/internal/host"
	"github.com/sessionkeeper/sessionkeeper/internal/logging"
)

// debounceDelay batches a burst of spool writes into one scan. Editors emit
// several events per user action; scanning once per burst keeps ordering
// decisions in one place.
const debounceDelay = 100 * time.Millisecond

// SpoolWatcher tails the events spool directory and feeds decoded events,
// oldest first, into the sink.
type SpoolWatcher struct {
	eventsDir string
	sink      func(host.Event)
	pollEvery time.Duration

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	debounce *time.Timer
	stopped  bool

	// scanMu serializes scans so a debounce fire cannot interleave with
	// the initial scan.
	scanMu sync.Mutex
}

func NewSpoolWatcher(eventsDir string, sink func(host.Event)) *SpoolWatcher {
	return &SpoolWatcher{
		eventsDir: eventsDir,
		sink:      sink,
	}
}

// EnablePollFallback makes Start rescan the spool every interval in
// addition to reacting to inotify. For filesystems (9p, NFS, SSHFS) where
// inotify events never arrive. Must be called before Start.
func (w *SpoolWatcher) EnablePollFallback(interval time.Duration) {
	w.pollEvery = interval
}

// Start watches the spool until the context is cancelled or Stop is called.
// Files already present when it starts are processed first.
func (w *SpoolWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.eventsDir, 0755); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		fsw.Close()
		return nil
	}
	w.watcher = fsw
	w.mu.Unlock()
	defer fsw.Close()

	if err := fsw.Add(w.eventsDir); err != nil {
		return err
	}

	bridgeLog.Debug("spool_watch_started", slog.String("dir", w.eventsDir))

	// Catch up on anything spooled before the watch existed.
	w.scan()

	// nil channel when polling is off, so the case never fires
	var pollCh <-chan time.Time
	if w.pollEvery > 0 {
		ticker := time.NewTicker(w.pollEvery)
		defer ticker.Stop()
		pollCh = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			w.stopDebounce()
			return nil

		case <-pollCh:
			w.scan()

		case event, ok := <-fsw.Events:
			if !ok {
				w.stopDebounce()
				return nil
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.scheduleScan()

		case err, ok := <-fsw.Errors:
			if !ok {
				w.stopDebounce()
				return nil
			}
			bridgeLog.Warn("spool_watch_error", slog.String("error", err.Error()))
		}
	}
}

// Stop ends the watch. Safe to call before, during, or after Start.
func (w *SpoolWatcher) Stop() {
	w.mu.Lock()
	w.stopped = true
	fsw := w.watcher
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	w.mu.Unlock()
	if fsw != nil {
		fsw.Close()
	}
}

func (w *SpoolWatcher) scheduleScan() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceDelay, w.scan)
}

func (w *SpoolWatcher) stopDebounce() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
}

// scan drains the spool: decode every complete event file, dispatch the
// batch in timestamp order, and remove what was dispatched.
func (w *SpoolWatcher) scan() {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()

	entries, err := os.ReadDir(w.eventsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			bridgeLog.Warn("spool_scan_failed", slog.String("error", err.Error()))
		}
		return
	}

	type spooled struct {
		path string
		ev   WireEvent
	}
	var batch []spooled

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(w.eventsDir, name)

		data, err := os.ReadFile(path)
		if err != nil {
			// Possibly mid-rename or already consumed. Leave it
			// for the next scan.
			bridgeLog.Debug("spool_read_failed",
				slog.String("file", name),
				slog.String("error", err.Error()))
			continue
		}

		we, err := DecodeEvent(data)
		if err != nil {
			// A file that will never decode would be rescanned
			// forever. Drop it.
			bridgeLog.Warn("spool_event_discarded",
				slog.String("file", name),
				slog.String("error", err.Error()))
			os.Remove(path)
			continue
		}
		batch = append(batch, spooled{path: path, ev: we})
	}

	if len(batch) == 0 {
		return
	}

	sort.Slice(batch, func(i, j int) bool {
		a, b := batch[i].ev, batch[j].ev
		if a.TS != b.TS {
			return a.TS < b.TS
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return batch[i].path < batch[j].path
	})

	for _, item := range batch {
		w.sink(item.ev.Event())
		os.Remove(item.path)
	}

	logging.Aggregate(logging.CompBridge, "spool_events_dispatched",
		slog.Int("count", len(batch)))
}
