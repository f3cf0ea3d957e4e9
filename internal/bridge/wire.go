// Package bridge runs the keeper beside an editor that cannot link Go. The
// editor-side plugin spools one JSON file per notification into
// <spool>/events, written atomically; the bridge consumes them in order and
// feeds the engine. Engine actions travel the other way as JSON files in
// <spool>/actions.
package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sessionkeeper/sessionkeeper/internal/host"
)

// WireEvent is one editor notification as spooled by the host plugin.
type WireEvent struct {
	Kind        string `json:"kind"`
	Window      string `json:"window"`
	Tab         string `json:"tab,omitempty"`
	HasLocation bool   `json:"has_location,omitempty"`

	// Layout carries the window's tab groups at event time. Absent means
	// the plugin could not include it, not that the window is empty.
	Layout [][]string `json:"layout"`

	// TS is the host's clock at the event, in Unix nanoseconds. Seq is a
	// per-plugin-process counter that breaks ties within one burst.
	TS  int64 `json:"ts"`
	Seq int64 `json:"seq"`
}

var wireKinds = map[string]host.EventKind{
	"window_shown":       host.EventWindowShown,
	"window_closed":      host.EventWindowClosed,
	"tab_added":          host.EventTabAdded,
	"tab_removed":        host.EventTabRemoved,
	"tabs_reordered":     host.EventTabsReordered,
	"active_tab_changed": host.EventActiveTabChanged,
}

// DecodeEvent parses and validates one spooled event file's contents.
func DecodeEvent(data []byte) (WireEvent, error) {
	var we WireEvent
	if err := json.Unmarshal(data, &we); err != nil {
		return WireEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if _, ok := wireKinds[we.Kind]; !ok {
		return WireEvent{}, fmt.Errorf("decode event: unknown kind %q", we.Kind)
	}
	if we.Window == "" {
		return WireEvent{}, fmt.Errorf("decode event: missing window")
	}
	return we, nil
}

// Event converts a decoded wire event into the engine's form. A zero TS
// leaves Time unset; the keeper stamps unstamped events on receipt.
func (we WireEvent) Event() host.Event {
	ev := host.Event{
		Kind:        wireKinds[we.Kind],
		Window:      host.WindowRef(we.Window),
		Tab:         we.Tab,
		HasLocation: we.HasLocation,
		Layout:      we.Layout,
	}
	if we.TS > 0 {
		ev.Time = time.Unix(0, we.TS)
	}
	return ev
}

// Action kinds the engine can request of the host plugin.
const (
	ActionOpenFile       = "open_file"
	ActionCloseTab       = "close_tab"
	ActionCreateTabGroup = "create_tab_group"
	ActionSpawnWindow    = "spawn_window"
)

// WireAction is one engine request to the host plugin.
type WireAction struct {
	Action string `json:"action"`
	Window string `json:"window,omitempty"`
	URI    string `json:"uri,omitempty"`
	Tab    string `json:"tab,omitempty"`
	TS     int64  `json:"ts"`
	Seq    int64  `json:"seq"`
}
