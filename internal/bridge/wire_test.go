package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionkeeper/sessionkeeper/internal/host"
)

func TestDecodeEventFullPayload(t *testing.T) {
	data := []byte(`{
		"kind": "tab_added",
		"window": "w-7",
		"tab": "tab-3",
		"has_location": true,
		"layout": [["file:///a.go", "file:///b.go"], ["file:///c.go"]],
		"ts": 1700000000000000000,
		"seq": 42
	}`)

	we, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, "tab_added", we.Kind)
	assert.Equal(t, "w-7", we.Window)
	assert.Equal(t, "tab-3", we.Tab)
	assert.True(t, we.HasLocation)
	assert.Equal(t, [][]string{{"file:///a.go", "file:///b.go"}, {"file:///c.go"}}, we.Layout)
	assert.Equal(t, int64(1700000000000000000), we.TS)
	assert.Equal(t, int64(42), we.Seq)
}

func TestDecodeEventRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"garbage":        `{not json`,
		"array root":     `[1, 2]`,
		"unknown kind":   `{"kind": "window_minimized", "window": "w-1"}`,
		"empty kind":     `{"window": "w-1"}`,
		"missing window": `{"kind": "tab_added"}`,
	}
	for name, payload := range cases {
		_, err := DecodeEvent([]byte(payload))
		assert.Error(t, err, name)
	}
}

func TestDecodeEventAcceptsEveryKind(t *testing.T) {
	kinds := map[string]host.EventKind{
		"window_shown":       host.EventWindowShown,
		"window_closed":      host.EventWindowClosed,
		"tab_added":          host.EventTabAdded,
		"tab_removed":        host.EventTabRemoved,
		"tabs_reordered":     host.EventTabsReordered,
		"active_tab_changed": host.EventActiveTabChanged,
	}
	for wire, want := range kinds {
		we, err := DecodeEvent([]byte(`{"kind": "` + wire + `", "window": "w-1"}`))
		require.NoError(t, err, wire)
		assert.Equal(t, want, we.Event().Kind, wire)
	}
}

func TestWireEventConversion(t *testing.T) {
	stamp := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	we := WireEvent{
		Kind:        "tab_removed",
		Window:      "w-2",
		Tab:         "tab-1",
		HasLocation: true,
		Layout:      [][]string{{"file:///x.go"}},
		TS:          stamp.UnixNano(),
	}

	ev := we.Event()
	assert.Equal(t, host.EventTabRemoved, ev.Kind)
	assert.Equal(t, host.WindowRef("w-2"), ev.Window)
	assert.Equal(t, "tab-1", ev.Tab)
	assert.True(t, ev.HasLocation)
	assert.Equal(t, [][]string{{"file:///x.go"}}, ev.Layout)
	assert.True(t, ev.Time.Equal(stamp))
}

func TestWireEventWithoutTimestamp(t *testing.T) {
	we, err := DecodeEvent([]byte(`{"kind": "window_shown", "window": "w-1"}`))
	require.NoError(t, err)

	ev := we.Event()
	assert.True(t, ev.Time.IsZero())
	assert.Nil(t, ev.Layout)
}

func TestWireEventEmptyLayoutSurvivesDecode(t *testing.T) {
	// An explicit empty layout means "window has no file tabs", which is
	// different from the field being absent.
	we, err := DecodeEvent([]byte(`{"kind": "tabs_reordered", "window": "w-1", "layout": []}`))
	require.NoError(t, err)
	assert.NotNil(t, we.Layout)
	assert.Empty(t, we.Layout)

	absent, err := DecodeEvent([]byte(`{"kind": "tabs_reordered", "window": "w-1"}`))
	require.NoError(t, err)
	assert.Nil(t, absent.Layout)
}
