// Package host defines the capability surface the session keeper consumes
// from an embedding editor: the events the editor reports and the actions the
// keeper may invoke on it. The keeper never talks to a toolkit directly; any
// editor that can produce these events and honor these actions can be kept.
package host

import "time"

// WindowRef is the host's own identifier for a live window. It is distinct
// from the keeper's persisted window ID: a WindowRef dies with the window,
// while a window ID survives restarts.
type WindowRef string

// EventKind enumerates the editor notifications the keeper reacts to.
type EventKind string

const (
	// EventWindowShown fires when a window becomes visible. During the
	// loading phase this is the trigger for session claiming.
	EventWindowShown EventKind = "window_shown"

	// EventWindowClosed fires when a window is closed by the user.
	EventWindowClosed EventKind = "window_closed"

	// EventTabAdded fires when a tab is created. HasLocation distinguishes
	// a real file tab from a blank untitled one.
	EventTabAdded EventKind = "tab_added"

	// EventTabRemoved fires when a tab is closed.
	EventTabRemoved EventKind = "tab_removed"

	// EventTabsReordered fires when tabs are dragged into a new order or
	// moved between tab groups.
	EventTabsReordered EventKind = "tabs_reordered"

	// EventActiveTabChanged fires when the focused tab changes in a way
	// that can alter recorded state.
	EventActiveTabChanged EventKind = "active_tab_changed"
)

// Event is one editor notification.
type Event struct {
	Kind   EventKind
	Window WindowRef

	// Tab identifies the affected tab for tab-scoped events, when the host
	// knows it. Used to close a suppressed blank tab.
	Tab string

	// HasLocation reports whether an added tab is backed by a file.
	HasLocation bool

	// Layout is the window's tab groups at event time: file URIs in display
	// order, one inner slice per tab group, location-less documents omitted.
	// Hosts that report layouts here let the keeper answer state queries
	// without a synchronous round trip.
	Layout [][]string

	// Time is when the host observed the event.
	Time time.Time
}

// Editor is the set of actions the keeper may invoke on the host.
// Implementations must tolerate calls for windows that no longer exist.
type Editor interface {
	// CurrentState returns the window's tab groups in display order,
	// location-less documents omitted.
	CurrentState(w WindowRef) ([][]string, error)

	// OpenFile opens a file URI as a new tab in the window's current
	// (most recently created) tab group.
	OpenFile(w WindowRef, uri string) error

	// CloseTab closes the given tab.
	CloseTab(w WindowRef, tab string) error

	// CreateTabGroup starts a new tab group; subsequent OpenFile calls
	// land in it.
	CreateTabGroup(w WindowRef) error

	// SpawnWindow asks the host for a fresh window. The new window
	// announces itself with a later EventWindowShown.
	SpawnWindow() error
}
