package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sessionkeeper/sessionkeeper/internal/logging"
)

// timerSlack pads resolution timers past the exit timeout so a fired
// callback always finds the entry it was scheduled for already aged.
const timerSlack = 100 * time.Millisecond

var windowLog = logging.ForComponent(logging.CompWindow)

// WindowReconciler debounces one window's session updates. Unambiguous
// changes commit straight to the global reconciler; ambiguous ones wait in a
// pending queue until they have outlived the exit timeout, so tab churn
// caused by the process quitting never overwrites the state worth restoring.
//
// Lock order: a reconciler may call into the global reconciler while holding
// its own mutex, never the reverse.
type WindowReconciler struct {
	mu          sync.Mutex
	id          WindowID
	global      *GlobalReconciler
	exitTimeout time.Duration
	pending     pendingQueue
	timer       *time.Timer
	shown       bool
	claimed     bool
	closed      bool
}

func NewWindowReconciler(id WindowID, g *GlobalReconciler, exitTimeout time.Duration) *WindowReconciler {
	return &WindowReconciler{
		id:          id,
		global:      g,
		exitTimeout: exitTimeout,
		pending:     pendingQueue{},
	}
}

// ID returns the window ID this reconciler currently records under.
func (wr *WindowReconciler) ID() WindowID {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	return wr.id
}

// MarkShown reports whether this is the first shown notification for the
// window. Hosts can emit duplicate shown events; the claim procedure must
// run at most once per window.
func (wr *WindowReconciler) MarkShown() bool {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if wr.shown {
		return false
	}
	wr.shown = true
	return true
}

// Adopt re-tags the reconciler with a claimed window ID. A window's ID is
// reassigned at most once, during session restore.
func (wr *WindowReconciler) Adopt(id WindowID) bool {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if wr.claimed || wr.closed {
		return false
	}
	windowLog.Debug("window_id_adopted",
		slog.String("window", string(id)),
		slog.String("was", string(wr.id)))
	wr.id = id
	wr.claimed = true
	return true
}

// RecordImmediate commits the record right away, superseding anything
// pending. Used when the change cannot be an artifact of quitting, like a
// real file opened as a new tab.
func (wr *WindowReconciler) RecordImmediate(rec Record) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if wr.closed {
		return
	}
	wr.cancelLocked()
	windowLog.Debug("immediate_commit",
		slog.String("window", string(wr.id)),
		slog.Int("files", rec.FileCount()))
	wr.global.Commit(wr.id, rec)
}

// RecordTentative queues a record observed at the given time. Pending
// entries old enough to be trusted are resolved first, so commits always
// advance in timestamp order, then the resolution timer is pushed out past
// the exit timeout again.
func (wr *WindowReconciler) RecordTentative(now time.Time, rec Record) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if wr.closed {
		return
	}
	wr.resolveLocked(now)
	wr.pending.add(now, rec)
	wr.scheduleLocked()
	logging.Aggregate(logging.CompWindow, "tentative_recorded",
		slog.String("window", string(wr.id)),
		slog.Int("pending", len(wr.pending)))
}

// Resolve applies any pending entry old enough to be trusted as of now.
func (wr *WindowReconciler) Resolve(now time.Time) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if wr.closed {
		return
	}
	wr.resolveLocked(now)
}

// OnWindowClose handles the user closing the window: aged entries are
// applied, an empty record is queued at the close time, and the whole queue
// escalates to the global reconciler. Whether the close was a deliberate
// "forget this window" or the first sign of a full quit is only decidable
// there, after the exit timeout has passed.
func (wr *WindowReconciler) OnWindowClose(now time.Time) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if wr.closed {
		return
	}
	wr.closed = true
	wr.stopTimerLocked()
	wr.resolveLocked(now)
	wr.pending.add(now, Record{})
	queue := wr.pending
	wr.pending = pendingQueue{}
	windowLog.Info("window_close_deferred",
		slog.String("window", string(wr.id)),
		slog.Int("queued", len(queue)))
	wr.global.DeferDelete(wr.id, queue, now)
}

// Flush hands any remaining pending entries to the global reconciler
// without queueing a delete. Called for still-open windows when the process
// shuts down; the shutdown resolution decides their fate.
func (wr *WindowReconciler) Flush(now time.Time) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if wr.closed {
		return
	}
	wr.closed = true
	wr.stopTimerLocked()
	wr.resolveLocked(now)
	if len(wr.pending) == 0 {
		return
	}
	queue := wr.pending
	wr.pending = pendingQueue{}
	windowLog.Debug("window_flushed",
		slog.String("window", string(wr.id)),
		slog.Int("queued", len(queue)))
	wr.global.Handoff(wr.id, queue)
}

// Cancel drops all pending state and stops the timer. Used when the current
// state is about to be recorded with certainty.
func (wr *WindowReconciler) Cancel() {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	wr.cancelLocked()
}

// PendingCount reports how many tentative entries are waiting.
func (wr *WindowReconciler) PendingCount() int {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	return len(wr.pending)
}

func (wr *WindowReconciler) cancelLocked() {
	wr.stopTimerLocked()
	wr.pending = pendingQueue{}
}

func (wr *WindowReconciler) stopTimerLocked() {
	if wr.timer != nil {
		wr.timer.Stop()
		wr.timer = nil
	}
}

// resolveLocked commits the newest pending entry older than the exit
// timeout, if any. Per-window resolution commits the winner as-is, even when
// empty; only the global reconciler interprets an empty record as deletion.
func (wr *WindowReconciler) resolveLocked(now time.Time) {
	winner, ok := wr.pending.resolve(now, wr.exitTimeout)
	if !ok {
		return
	}
	windowLog.Debug("pending_resolved",
		slog.String("window", string(wr.id)),
		slog.Int("files", winner.FileCount()),
		slog.Int("left", len(wr.pending)))
	wr.global.Commit(wr.id, winner)
}

// scheduleLocked restarts the resolution timer. One timer per window; every
// new tentative entry pushes resolution out past the exit timeout again.
func (wr *WindowReconciler) scheduleLocked() {
	wr.stopTimerLocked()
	wr.timer = time.AfterFunc(wr.exitTimeout+timerSlack, wr.fire)
}

// fire runs on the timer goroutine. Entries still too young to resolve
// reschedule, so nothing strands in the queue.
func (wr *WindowReconciler) fire() {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if wr.closed {
		return
	}
	wr.resolveLocked(time.Now())
	if len(wr.pending) > 0 {
		wr.scheduleLocked()
	} else {
		wr.timer = nil
	}
}
