package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component constants for structured logging.
const (
	CompEngine = "engine"
	CompWindow = "window"
	CompGlobal = "global"
	CompClaim  = "claim"
	CompStore  = "store"
	CompDB     = "statedb"
	CompConfig = "config"
	CompBridge = "bridge"
	CompUI     = "ui"
	CompCLI    = "cli"
)

// Config holds logging configuration.
type Config struct {
	// LogDir is the directory for log files (e.g. ~/.sessionkeeper)
	LogDir string

	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string

	// Format is "json" (default) or "text"
	Format string

	// MaxSizeMB is the max size in MB before rotation (default: 10)
	MaxSizeMB int

	// MaxBackups is rotated files to keep (default: 5)
	MaxBackups int

	// MaxAgeDays is days to keep rotated files (default: 10)
	MaxAgeDays int

	// Compress rotated files (default: true)
	Compress bool

	// RingBufferSize is the in-memory ring buffer size in bytes (default: 4MB)
	RingBufferSize int

	// AggregateIntervalSecs is the aggregation flush interval (default: 30)
	AggregateIntervalSecs int

	// PprofEnabled starts a pprof server on localhost:6061
	PprofEnabled bool

	// Debug indicates whether debug mode is active
	Debug bool
}

var (
	globalLogger *slog.Logger
	globalRing   *RingBuffer
	globalAgg    *Aggregator
	globalMu     sync.RWMutex
	rotatingW    *lumberjack.Logger
)

// Init initializes the global logging system.
// When debug is off and no log dir is configured, everything is discarded;
// the keeper sits in an editor's event path and must stay silent by default.
func Init(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 10
	}
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 4 * 1024 * 1024
	}
	if cfg.AggregateIntervalSecs <= 0 {
		cfg.AggregateIntervalSecs = 30
	}

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if !cfg.Debug && cfg.LogDir == "" {
		globalLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		globalRing = NewRingBuffer(1024)
		globalAgg = NewAggregator(nil, cfg.AggregateIntervalSecs)
		return
	}

	rotatingW = &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "keeper.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	// Ring buffer keeps recent history for SIGUSR1 dumps even at info level.
	globalRing = NewRingBuffer(cfg.RingBufferSize)

	multi := io.MultiWriter(rotatingW, globalRing)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(multi, opts)
	} else {
		handler = slog.NewJSONHandler(multi, opts)
	}

	globalLogger = slog.New(handler)

	globalAgg = NewAggregator(globalLogger, cfg.AggregateIntervalSecs)
	globalAgg.Start()

	if cfg.PprofEnabled {
		startPprof()
	}
}

// Logger returns the global logger. Safe to call before Init (returns discard).
func Logger() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return globalLogger
}

// ForComponent returns a sub-logger with the component field set.
// The returned logger resolves the real handler at log time, so package-level
// vars created before Init() still log to the configured destination.
func ForComponent(name string) *slog.Logger {
	return slog.New(&dynamicHandler{component: name})
}

// dynamicHandler delegates to the current global handler on every call.
// A logger captured before Init() would otherwise hold the discard handler
// forever and lose every message.
type dynamicHandler struct {
	component string
	attrs     []slog.Attr
	group     string
}

func (h *dynamicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler()
	handler = handler.WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	if h.group != "" {
		handler = handler.WithGroup(h.group)
	}
	return handler.Handle(ctx, r)
}

func (h *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(merged, h.attrs)
	copy(merged[len(h.attrs):], attrs)
	return &dynamicHandler{component: h.component, attrs: merged, group: h.group}
}

func (h *dynamicHandler) WithGroup(name string) slog.Handler {
	return &dynamicHandler{component: h.component, attrs: h.attrs, group: name}
}

// Aggregate records a high-frequency event for batched logging. Tab churn in a
// busy window can produce dozens of tentative records per second; these go
// through the aggregator instead of one log line each.
func Aggregate(component, event string, fields ...slog.Attr) {
	globalMu.RLock()
	agg := globalAgg
	globalMu.RUnlock()
	if agg != nil {
		agg.Record(component, event, fields...)
	}
}

// DumpRingBuffer writes the ring buffer contents to a file.
func DumpRingBuffer(path string) error {
	globalMu.RLock()
	ring := globalRing
	globalMu.RUnlock()
	if ring == nil {
		return nil
	}
	return ring.Dump(path)
}

// Shutdown flushes the aggregator and closes writers.
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalAgg != nil {
		globalAgg.Stop()
		globalAgg = nil
	}
	if rotatingW != nil {
		rotatingW.Close()
		rotatingW = nil
	}
	globalLogger = nil
	globalRing = nil
}
