package logging

import (
	"bytes"
	"log/slog"
	"strings"
)

// BridgeWriter wraps slog as an io.Writer so that stdlib log.Printf output
// (ours or a dependency's) flows through the structured logging system. It
// parses the "[category] message" prefix convention and extracts the category
// into the structured "component" field.
type BridgeWriter struct {
	logger    *slog.Logger
	component string
}

// NewBridgeWriter creates a writer that forwards writes to slog.
// The defaultComponent is used when no [category] prefix is found.
func NewBridgeWriter(defaultComponent string) *BridgeWriter {
	return &BridgeWriter{
		logger:    Logger(),
		component: defaultComponent,
	}
}

// Write implements io.Writer. Each write is treated as one log line.
// Standard log timestamp prefixes are stripped since slog adds its own.
func (bw *BridgeWriter) Write(p []byte) (int, error) {
	n := len(p)
	msg := string(bytes.TrimSpace(p))
	if msg == "" {
		return n, nil
	}

	msg = stripLogTimestamp(msg)

	component := bw.component
	if strings.HasPrefix(msg, "[") {
		if idx := strings.Index(msg, "] "); idx > 0 {
			component = strings.ToLower(msg[1:idx])
			msg = msg[idx+2:]
		}
	}

	component = canonicalComponent(component)

	bw.logger.Info(msg, slog.String("component", component))
	return n, nil
}

// stripLogTimestamp removes the time prefix added by log.SetFlags(log.Ltime|log.Lmicroseconds).
// Format: "HH:MM:SS.ffffff " (16 chars).
func stripLogTimestamp(s string) string {
	if len(s) > 16 && s[2] == ':' && s[5] == ':' && s[8] == '.' && s[15] == ' ' {
		return s[16:]
	}
	if len(s) > 9 && s[2] == ':' && s[5] == ':' && s[8] == ' ' {
		return s[9:]
	}
	return s
}

// canonicalComponent maps known log prefixes to canonical component names.
func canonicalComponent(cat string) string {
	switch cat {
	case "engine", "keeper":
		return CompEngine
	case "window", "reconciler":
		return CompWindow
	case "global":
		return CompGlobal
	case "claim", "restore", "replay":
		return CompClaim
	case "store", "session":
		return CompStore
	case "db", "sqlite", "statedb":
		return CompDB
	case "config":
		return CompConfig
	case "bridge", "spool", "watcher":
		return CompBridge
	case "ui", "tui", "inspector":
		return CompUI
	case "cli", "main":
		return CompCLI
	default:
		return cat
	}
}
