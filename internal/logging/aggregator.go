package logging

import (
	"log/slog"
	"sync"
	"time"
)

// batchKey identifies one event type for batching.
type batchKey struct {
	Component string
	Event     string
}

// batchEntry accumulates occurrences of one event type between flushes.
type batchEntry struct {
	Count int64
	First time.Time
	Attrs []slog.Attr
}

// Aggregator batches high-frequency events and emits one summary line per
// event type per flush interval.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	batches map[batchKey]*batchEntry

	done chan struct{}
	wg   sync.WaitGroup
}

// NewAggregator creates an aggregator that flushes every intervalSecs seconds.
// A nil logger drops recorded events.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		batches:  make(map[batchKey]*batchEntry),
		done:     make(chan struct{}),
	}
}

// Start begins the background flush goroutine.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go a.flushLoop()
}

// Stop flushes remaining entries and stops the background goroutine.
func (a *Aggregator) Stop() {
	close(a.done)
	a.wg.Wait()
	a.flush()
}

// Record counts one occurrence of an event type. Attrs are kept from the most
// recent call, so a flushed summary carries the latest context.
func (a *Aggregator) Record(component, event string, attrs ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := batchKey{Component: component, Event: event}
	entry, ok := a.batches[key]
	if !ok {
		entry = &batchEntry{First: time.Now()}
		a.batches[key] = entry
	}
	entry.Count++
	if len(attrs) > 0 {
		entry.Attrs = attrs
	}
}

func (a *Aggregator) flushLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-a.done:
			return
		}
	}
}

func (a *Aggregator) flush() {
	a.mu.Lock()
	if len(a.batches) == 0 {
		a.mu.Unlock()
		return
	}
	batches := a.batches
	a.batches = make(map[batchKey]*batchEntry)
	a.mu.Unlock()

	if a.logger == nil {
		return
	}

	for key, entry := range batches {
		attrs := []any{
			slog.String("component", key.Component),
			slog.String("event", key.Event),
			slog.Int64("count", entry.Count),
			slog.Duration("span", time.Since(entry.First).Round(time.Millisecond)),
		}
		for _, f := range entry.Attrs {
			attrs = append(attrs, f)
		}
		a.logger.Info("event_batch", attrs...)
	}
}
