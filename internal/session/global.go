package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sessionkeeper/sessionkeeper/internal/logging"
)

var globalLog = logging.ForComponent(logging.CompGlobal)

// GlobalReconciler owns the committed session map and the deferred-delete
// queues of closed windows. Window deletion escalates here rather than
// resolving locally: a lone close is the user forgetting a window, while a
// burst of closes is the process quitting, and only a process-wide view
// after the exit timeout can tell the two apart.
//
// The committed map starts empty on every launch and fills through restore
// claims and later commits. Stored records nothing claims simply never make
// it back in and fall out of the store at the next persist.
type GlobalReconciler struct {
	mu          sync.Mutex
	store       *SessionStore
	exitTimeout time.Duration
	committed   SessionMap
	deferred    map[WindowID]pendingQueue
	timer       *time.Timer
	down        bool
}

func NewGlobalReconciler(store *SessionStore, exitTimeout time.Duration) *GlobalReconciler {
	return &GlobalReconciler{
		store:       store,
		exitTimeout: exitTimeout,
		committed:   SessionMap{},
		deferred:    map[WindowID]pendingQueue{},
	}
}

// Commit writes a window's record into the committed map and persists. An
// outstanding deferred delete for the window is dropped: a commit is newer
// information than any queued close.
func (g *GlobalReconciler) Commit(id WindowID, rec Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return
	}
	delete(g.deferred, id)
	g.committed[id] = rec.Clone()
	globalLog.Debug("state_committed",
		slog.String("window", string(id)),
		slog.Int("files", rec.FileCount()))
	g.persistLocked()
}

// SetObserved writes a window's record into the committed map without
// persisting. The restore claim uses this to mark IDs as taken; the next
// commit or the shutdown pass persists the result.
func (g *GlobalReconciler) SetObserved(id WindowID, rec Record) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return
	}
	delete(g.deferred, id)
	g.committed[id] = rec.Clone()
}

// Has reports whether the committed map holds the window.
func (g *GlobalReconciler) Has(id WindowID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.committed[id]
	return ok
}

// Size returns the number of committed windows.
func (g *GlobalReconciler) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.committed)
}

// Snapshot returns a copy of the committed map.
func (g *GlobalReconciler) Snapshot() SessionMap {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.committed.Clone()
}

// PendingDeletes reports how many closed windows await resolution.
func (g *GlobalReconciler) PendingDeletes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.deferred)
}

// DeferDelete escalates a closed window's leftover queue, resolves whatever
// is old enough already, and arms the global timer for the rest.
func (g *GlobalReconciler) DeferDelete(id WindowID, q pendingQueue, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return
	}
	g.mergeLocked(id, q)
	if g.resolveLocked(now) {
		g.persistLocked()
	}
	if len(g.deferred) > 0 {
		g.scheduleLocked()
	}
}

// Handoff merges a still-open window's leftover queue without arming the
// timer. Only the shutdown path uses it; the shutdown resolution follows
// immediately.
func (g *GlobalReconciler) Handoff(id WindowID, q pendingQueue) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mergeLocked(id, q)
}

// Shutdown is the authority of last resort, called once when the process
// deactivates. It resolves synchronously and persists unconditionally,
// bypassing the timers entirely. Deferred deletes still younger than the
// exit timeout die here unapplied: those are the window closes of the quit
// itself, and dropping them is what preserves the session.
func (g *GlobalReconciler) Shutdown(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return
	}
	g.down = true
	g.resolveLocked(now)
	globalLog.Info("shutdown_persist",
		slog.Int("windows", len(g.committed)),
		slog.Int("dropped_deletes", len(g.deferred)))
	g.persistLocked()
}

func (g *GlobalReconciler) mergeLocked(id WindowID, q pendingQueue) {
	dst, ok := g.deferred[id]
	if !ok {
		dst = pendingQueue{}
		g.deferred[id] = dst
	}
	dst.merge(q)
}

// resolveLocked runs the reconciliation rule over every deferred queue as of
// now, cancelling the outstanding timer first; callers rearm it if entries
// survive. An empty winner deletes the window from the committed map, a
// non-empty winner overwrites it. Reports whether any winner was applied.
func (g *GlobalReconciler) resolveLocked(now time.Time) bool {
	g.stopTimerLocked()

	changed := false
	for id, q := range g.deferred {
		winner, ok := q.resolve(now, g.exitTimeout)
		if ok {
			if winner.IsEmpty() {
				delete(g.committed, id)
				globalLog.Info("window_forgotten", slog.String("window", string(id)))
			} else {
				g.committed[id] = winner
				globalLog.Debug("deferred_state_applied",
					slog.String("window", string(id)),
					slog.Int("files", winner.FileCount()))
			}
			changed = true
		}
		if len(q) == 0 {
			delete(g.deferred, id)
		}
	}
	return changed
}

func (g *GlobalReconciler) scheduleLocked() {
	g.stopTimerLocked()
	g.timer = time.AfterFunc(g.exitTimeout+timerSlack, g.fire)
}

func (g *GlobalReconciler) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// fire runs on the timer goroutine. Queues still too young reschedule, so
// no deferred delete strands while the process lives.
func (g *GlobalReconciler) fire() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return
	}
	if g.resolveLocked(time.Now()) {
		g.persistLocked()
	}
	if len(g.deferred) > 0 {
		g.scheduleLocked()
	}
}

// persistLocked saves the committed map. Persistence failures degrade to
// memory-only inside the store.
func (g *GlobalReconciler) persistLocked() {
	g.store.Save(g.committed)
}
