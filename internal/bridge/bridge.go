package bridge

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sessionkeeper/sessionkeeper/internal/host"
	"github.com/sessionkeeper/sessionkeeper/internal/logging"
	"github.com/sessionkeeper/sessionkeeper/internal/platform"
)

var bridgeLog = logging.ForComponent(logging.CompBridge)

const (
	// DefaultSpoolMaxAge bounds how long an unconsumed spool file can
	// linger. Anything older belongs to a dead run and is garbage.
	DefaultSpoolMaxAge = 24 * time.Hour

	janitorInterval = 1 * time.Hour

	// pollFallbackInterval is the rescan cadence on filesystems where
	// inotify does not deliver.
	pollFallbackInterval = 2 * time.Second
)

// EventsDir returns the plugin-to-keeper side of a spool directory.
func EventsDir(spoolDir string) string {
	return filepath.Join(spoolDir, "events")
}

// ActionsDir returns the keeper-to-plugin side of a spool directory.
func ActionsDir(spoolDir string) string {
	return filepath.Join(spoolDir, "actions")
}

// EventHandler consumes decoded editor events. *session.Keeper satisfies it.
type EventHandler interface {
	HandleEvent(host.Event)
}

// Bridge connects a spool-based editor plugin to an event handler: spooled
// events flow to the handler, and layouts they carry are cached so the
// handler's state queries have answers.
type Bridge struct {
	editor  *SpoolEditor
	handler EventHandler
	watcher *SpoolWatcher

	eventsDir  string
	actionsDir string
	maxAge     time.Duration
}

func New(spoolDir string, editor *SpoolEditor, handler EventHandler, maxAge time.Duration) *Bridge {
	if maxAge <= 0 {
		maxAge = DefaultSpoolMaxAge
	}
	b := &Bridge{
		editor:     editor,
		handler:    handler,
		eventsDir:  EventsDir(spoolDir),
		actionsDir: ActionsDir(spoolDir),
		maxAge:     maxAge,
	}
	b.watcher = NewSpoolWatcher(b.eventsDir, b.dispatch)
	return b
}

// Run processes spooled events until the context is cancelled. Stale spool
// files left by earlier runs are cleaned before the first event is read.
func (b *Bridge) Run(ctx context.Context) error {
	b.cleanSpool()

	if reason := platform.FsnotifyWarning(b.eventsDir); reason != "" {
		bridgeLog.Warn("spool_fs_unreliable",
			slog.String("dir", b.eventsDir),
			slog.String("reason", reason))
		b.watcher.EnablePollFallback(pollFallbackInterval)
	}

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- b.watcher.Start(ctx)
	}()

	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.watcher.Stop()
			<-watchErr
			return nil

		case err := <-watchErr:
			return err

		case <-ticker.C:
			b.cleanSpool()
		}
	}
}

// dispatch feeds one decoded event through the layout cache into the
// handler. The cache update happens first so the handler's CurrentState
// calls during handling see this event's layout.
func (b *Bridge) dispatch(ev host.Event) {
	b.editor.RememberLayout(ev.Window, ev.Layout)
	b.handler.HandleEvent(ev)
	if ev.Kind == host.EventWindowClosed {
		b.editor.ForgetWindow(ev.Window)
	}
}

func (b *Bridge) cleanSpool() {
	removed := cleanStaleFiles(b.eventsDir, b.maxAge)
	removed += cleanStaleFiles(b.actionsDir, b.maxAge)
	if removed > 0 {
		bridgeLog.Info("stale_spool_files_cleaned", slog.Int("removed", removed))
	}
}

// cleanStaleFiles removes spool files whose modification time predates the
// cutoff. Temp files from interrupted writes are covered too.
func cleanStaleFiles(dir string, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, name)); err == nil {
				removed++
			}
		}
	}
	return removed
}
