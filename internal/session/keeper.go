// Package session implements the deferred state reconciliation engine that
// keeps and restores a host editor's window sessions.
//
// The hard problem it solves: a host editor fires the same tab-closed and
// window-closed notifications whether the user is cleaning up or the whole
// process is quitting. Committing those eagerly would shred the session on
// every quit. The engine therefore records ambiguous changes tentatively and
// only trusts them once they have outlived the exit timeout; changes still
// pending when the process shuts down die unapplied, which is exactly what
// preserves the session.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sessionkeeper/sessionkeeper/internal/host"
	"github.com/sessionkeeper/sessionkeeper/internal/logging"
)

var (
	engineLog = logging.ForComponent(logging.CompEngine)
	claimLog  = logging.ForComponent(logging.CompClaim)
)

const (
	DefaultExitTimeout   = 2 * time.Second
	DefaultLaunchTimeout = 2 * time.Second
	DefaultOpenRateLimit = 40
)

// Config carries the keeper's timing and restore knobs.
type Config struct {
	// ExitTimeout is how long an ambiguous change must survive before it is
	// trusted as user action rather than fallout of the process quitting.
	ExitTimeout time.Duration

	// LaunchTimeout is the grace window after restore completion during
	// which a blank tab is taken for the host's default document.
	LaunchTimeout time.Duration

	// OpenRateLimit caps replayed open-file calls per second.
	OpenRateLimit int

	// SuppressBlankTab closes the host's default blank tab after a
	// non-empty restore. The config layer defaults this on.
	SuppressBlankTab bool
}

func (c Config) withDefaults() Config {
	if c.ExitTimeout <= 0 {
		c.ExitTimeout = DefaultExitTimeout
	}
	if c.LaunchTimeout <= 0 {
		c.LaunchTimeout = DefaultLaunchTimeout
	}
	if c.OpenRateLimit <= 0 {
		c.OpenRateLimit = DefaultOpenRateLimit
	}
	return c
}

// Keeper is the process-scoped engine: it owns the global reconciler, one
// reconciler per live window, and the restore claim state, and dispatches
// host events to them. Hosts construct one Keeper at activation and call
// Shutdown exactly once at deactivation.
type Keeper struct {
	cfg    Config
	editor host.Editor
	store  *SessionStore
	global *GlobalReconciler

	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter

	mu       sync.Mutex
	windows  map[host.WindowRef]*WindowReconciler
	claimed  map[WindowID]bool
	loading  bool
	loadedAt time.Time
	down     bool
}

// NewKeeper wires the engine against a host editor and a session store. The
// keeper starts in the loading phase: windows shown before the restore pass
// completes take part in session claiming, and no state is recorded until
// the pass finishes.
func NewKeeper(cfg Config, editor host.Editor, store *SessionStore) *Keeper {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Keeper{
		cfg:     cfg,
		editor:  editor,
		store:   store,
		global:  NewGlobalReconciler(store, cfg.ExitTimeout),
		ctx:     ctx,
		cancel:  cancel,
		limiter: rate.NewLimiter(rate.Limit(cfg.OpenRateLimit), 5),
		windows: map[host.WindowRef]*WindowReconciler{},
		claimed: map[WindowID]bool{},
		loading: true,
	}
}

// HandleEvent dispatches one host event. Safe for concurrent use; events
// arriving after Shutdown are dropped.
func (k *Keeper) HandleEvent(ev host.Event) {
	k.mu.Lock()
	down := k.down
	k.mu.Unlock()
	if down {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	switch ev.Kind {
	case host.EventWindowShown:
		k.handleWindowShown(ev)
	case host.EventWindowClosed:
		k.handleWindowClosed(ev)
	case host.EventTabAdded:
		k.handleTabAdded(ev)
	case host.EventTabRemoved, host.EventTabsReordered, host.EventActiveTabChanged:
		k.handleTentative(ev)
	default:
		engineLog.Debug("event_ignored", slog.String("kind", string(ev.Kind)))
	}
}

// Shutdown tears the engine down: it aborts any in-flight replay, hands
// every live window's pending state to the global reconciler, and runs the
// final resolution and persist.
func (k *Keeper) Shutdown() {
	k.cancel()

	k.mu.Lock()
	if k.down {
		k.mu.Unlock()
		return
	}
	k.down = true
	now := time.Now()
	for ref, wr := range k.windows {
		wr.Flush(now)
		delete(k.windows, ref)
	}
	k.mu.Unlock()

	k.global.Shutdown(now)
	engineLog.Info("keeper_shutdown")
}

// Loading reports whether the restore phase is still in progress.
func (k *Keeper) Loading() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loading
}

// Committed returns a snapshot of the committed session map.
func (k *Keeper) Committed() SessionMap {
	return k.global.Snapshot()
}

// WindowCount returns the number of windows currently tracked.
func (k *Keeper) WindowCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.windows)
}

// reconcilerLocked returns the window's reconciler, creating one with a
// fresh ID on first contact. Callers hold k.mu.
func (k *Keeper) reconcilerLocked(ref host.WindowRef) *WindowReconciler {
	wr, ok := k.windows[ref]
	if !ok {
		wr = NewWindowReconciler(NewWindowID(), k.global, k.cfg.ExitTimeout)
		k.windows[ref] = wr
		engineLog.Debug("window_tracked",
			slog.String("ref", string(ref)),
			slog.String("window", string(wr.ID())))
	}
	return wr
}

func (k *Keeper) handleWindowShown(ev host.Event) {
	k.mu.Lock()
	wr := k.reconcilerLocked(ev.Window)
	loading := k.loading
	k.mu.Unlock()

	if !loading || !wr.MarkShown() {
		return
	}
	k.runClaim(ev.Window, wr)
}

func (k *Keeper) handleWindowClosed(ev host.Event) {
	k.mu.Lock()
	wr, ok := k.windows[ev.Window]
	if ok {
		delete(k.windows, ev.Window)
	}
	k.mu.Unlock()

	if !ok {
		engineLog.Debug("close_for_unknown_window", slog.String("ref", string(ev.Window)))
		return
	}
	wr.OnWindowClose(ev.Time)
}

func (k *Keeper) handleTabAdded(ev host.Event) {
	k.mu.Lock()
	if k.loading {
		k.mu.Unlock()
		return
	}
	if !ev.HasLocation {
		// The host opens a default blank document right after a launch.
		// Inside the grace window after a non-empty restore that tab is
		// noise, not user intent. Timing heuristic, best effort.
		suppress := k.cfg.SuppressBlankTab &&
			!k.loadedAt.IsZero() &&
			ev.Time.Sub(k.loadedAt) < k.cfg.LaunchTimeout
		k.mu.Unlock()
		if suppress && k.global.Size() > 0 {
			engineLog.Info("default_blank_tab_closed",
				slog.String("ref", string(ev.Window)),
				slog.String("tab", ev.Tab))
			if err := k.editor.CloseTab(ev.Window, ev.Tab); err != nil {
				engineLog.Warn("close_tab_failed",
					slog.String("tab", ev.Tab),
					slog.String("error", err.Error()))
			}
		}
		return
	}
	wr := k.reconcilerLocked(ev.Window)
	k.mu.Unlock()

	if rec, ok := k.layoutFor(ev); ok {
		wr.RecordImmediate(rec)
	}
}

func (k *Keeper) handleTentative(ev host.Event) {
	k.mu.Lock()
	if k.loading {
		k.mu.Unlock()
		return
	}
	wr := k.reconcilerLocked(ev.Window)
	k.mu.Unlock()

	if rec, ok := k.layoutFor(ev); ok {
		wr.RecordTentative(ev.Time, rec)
	}
}

// layoutFor returns the record implied by an event, preferring the layout
// the host attached and falling back to a state query. A failed query skips
// the recording rather than committing a wrongly empty record.
func (k *Keeper) layoutFor(ev host.Event) (Record, bool) {
	if ev.Layout != nil {
		return NormalizeLayout(ev.Layout), true
	}
	state, err := k.editor.CurrentState(ev.Window)
	if err != nil {
		engineLog.Warn("current_state_unavailable",
			slog.String("ref", string(ev.Window)),
			slog.String("error", err.Error()))
		return nil, false
	}
	return NormalizeLayout(state), true
}

// runClaim executes the load-time claim procedure for a newly shown window:
// read the stored map, claim the first unclaimed non-empty record, replay it
// into the window, then either request one more window for the remainder or
// finish loading.
func (k *Keeper) runClaim(ref host.WindowRef, wr *WindowReconciler) {
	saved := k.store.Load()

	k.mu.Lock()
	if !k.loading || k.down {
		k.mu.Unlock()
		return
	}
	claimID := k.pickClaimLocked(saved)
	if claimID != "" {
		k.claimed[claimID] = true
	}
	k.mu.Unlock()

	if claimID != "" {
		rec := saved[claimID]
		wr.Adopt(claimID)
		claimLog.Info("session_claimed",
			slog.String("window", string(claimID)),
			slog.Int("groups", len(rec)),
			slog.Int("files", rec.FileCount()))
		observed := k.replay(ref, rec)
		k.global.SetObserved(claimID, observed)
	}

	k.mu.Lock()
	if !k.loading || k.down {
		k.mu.Unlock()
		return
	}
	if k.pickClaimLocked(saved) != "" {
		k.mu.Unlock()
		claimLog.Debug("spawning_claim_window")
		if err := k.editor.SpawnWindow(); err != nil {
			// Without another window nothing would claim the rest and the
			// loading phase would never end. Give up on the remainder.
			claimLog.Warn("spawn_failed", slog.String("error", err.Error()))
			k.mu.Lock()
			k.finishLoadingLocked()
			k.mu.Unlock()
		}
		return
	}
	k.finishLoadingLocked()
	k.mu.Unlock()
}

// pickClaimLocked returns the first stored ID no window has claimed yet, in
// the store's stable order. Empty records are never claimed. Callers hold
// k.mu.
func (k *Keeper) pickClaimLocked(saved SessionMap) WindowID {
	for _, id := range saved.SortedIDs() {
		if saved[id].IsEmpty() || k.claimed[id] || k.global.Has(id) {
			continue
		}
		return id
	}
	return ""
}

func (k *Keeper) finishLoadingLocked() {
	if !k.loading {
		return
	}
	k.loading = false
	k.loadedAt = time.Now()
	claimLog.Info("restore_finished",
		slog.Int("claimed", len(k.claimed)),
		slog.Int("windows", len(k.windows)))
}

// replay opens a record's files into the window, group by group, paced by
// the open-file limiter. Files the window already shows are skipped, so a
// window launched with a file argument does not grow a duplicate tab.
// Returns the window's observed state afterwards, falling back to the
// replayed record when the host cannot answer.
func (k *Keeper) replay(ref host.WindowRef, rec Record) Record {
	already := map[string]bool{}
	if state, err := k.editor.CurrentState(ref); err == nil {
		for _, group := range state {
			for _, uri := range group {
				already[uri] = true
			}
		}
	}

	for gi, group := range rec {
		if gi > 0 {
			if err := k.editor.CreateTabGroup(ref); err != nil {
				claimLog.Warn("tab_group_failed",
					slog.String("ref", string(ref)),
					slog.String("error", err.Error()))
			}
		}
		for _, uri := range group {
			if already[uri] {
				continue
			}
			if err := k.limiter.Wait(k.ctx); err != nil {
				claimLog.Debug("replay_aborted", slog.String("reason", err.Error()))
				return rec.Clone()
			}
			if err := k.editor.OpenFile(ref, uri); err != nil {
				claimLog.Warn("open_file_failed",
					slog.String("uri", uri),
					slog.String("error", err.Error()))
			}
		}
	}

	if state, err := k.editor.CurrentState(ref); err == nil {
		return NormalizeLayout(state)
	}
	return rec.Clone()
}
