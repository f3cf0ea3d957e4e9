package session

import (
	"slices"
	"time"
)

// pendingQueue holds tentative records keyed by their observation time in
// Unix nanoseconds. Two records observed in the same nanosecond collapse to
// the later write, which is the dedup we want for a burst of identical
// events.
type pendingQueue map[int64]Record

// add inserts a tentative record observed at t.
func (q pendingQueue) add(t time.Time, rec Record) {
	q[t.UnixNano()] = rec
}

// merge folds another queue into this one. Entries at identical timestamps
// are taken from other.
func (q pendingQueue) merge(other pendingQueue) {
	for ts, rec := range other {
		q[ts] = rec
	}
}

// resolve applies the reconciliation rule as of now: scanning newest to
// oldest, the first entry strictly older than timeout wins. The winner and
// everything older than it leave the queue (older entries were superseded
// while still ambiguous); younger entries stay pending. At most one entry
// wins per call.
//
// Returns the winning record and true, or nil and false when no entry is old
// enough yet.
func (q pendingQueue) resolve(now time.Time, timeout time.Duration) (Record, bool) {
	if len(q) == 0 {
		return nil, false
	}

	stamps := make([]int64, 0, len(q))
	for ts := range q {
		stamps = append(stamps, ts)
	}
	slices.Sort(stamps)

	cutoff := now.Add(-timeout).UnixNano()
	for i := len(stamps) - 1; i >= 0; i-- {
		ts := stamps[i]
		if ts >= cutoff {
			continue
		}
		winner := q[ts]
		for j := i; j >= 0; j-- {
			delete(q, stamps[j])
		}
		return winner, true
	}
	return nil, false
}
