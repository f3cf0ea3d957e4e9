package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionkeeper/sessionkeeper/internal/session"
)

func newTestInspector(t *testing.T, saved session.SessionMap) (*Inspector, *session.SessionStore) {
	t.Helper()
	db := newTestDB(t)
	store := session.NewSessionStore(db)
	if len(saved) > 0 {
		store.Save(saved)
	}

	m := NewInspector("", store, nil, nil)
	m = drive(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m = drive(m, m.loadSessions())
	return m, store
}

// drive runs one message through Update and returns the typed model.
func drive(m *Inspector, msg tea.Msg) *Inspector {
	updated, _ := m.Update(msg)
	return updated.(*Inspector)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func typeString(m *Inspector, s string) *Inspector {
	for _, r := range s {
		m = drive(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestInspectorListsWindowsInStableOrder(t *testing.T) {
	m, _ := newTestInspector(t, session.SessionMap{
		"win-charlie": {{"file:///c.go"}},
		"win-alpha":   {{"file:///a.go"}},
		"win-bravo":   {{"file:///b.go"}},
	})

	require.Equal(t, 3, m.WindowCount())
	assert.Equal(t, []session.WindowID{"win-alpha", "win-bravo", "win-charlie"}, m.order)
}

func TestInspectorNavigation(t *testing.T) {
	m, _ := newTestInspector(t, session.SessionMap{
		"win-a": {{"file:///a.go"}},
		"win-b": {{"file:///b.go"}},
		"win-c": {{"file:///c.go"}},
	})

	assert.Equal(t, 0, m.cursor)

	m = drive(m, key("down"))
	m = drive(m, key("j"))
	assert.Equal(t, 2, m.cursor)

	// Never past the end.
	m = drive(m, key("down"))
	assert.Equal(t, 2, m.cursor)

	m = drive(m, key("up"))
	assert.Equal(t, 1, m.cursor)

	m = drive(m, key("g"))
	assert.Equal(t, 0, m.cursor)

	m = drive(m, key("G"))
	assert.Equal(t, 2, m.cursor)
}

func TestInspectorFuzzyFilter(t *testing.T) {
	m, _ := newTestInspector(t, session.SessionMap{
		"win-one": {{"file:///projects/alpha/main.go"}},
		"win-two": {{"file:///projects/beta/util.go"}},
	})

	m = drive(m, key("/"))
	require.True(t, m.filtering)

	m = typeString(m, "beta")
	require.Equal(t, 1, m.WindowCount())
	assert.Equal(t, session.WindowID("win-two"), m.order[0])

	// Enter keeps the filter applied but returns focus to the list.
	m = drive(m, key("enter"))
	assert.False(t, m.filtering)
	assert.Equal(t, 1, m.WindowCount())

	// Esc from the list clears the filter.
	m = drive(m, key("esc"))
	assert.Equal(t, 2, m.WindowCount())
}

func TestInspectorFilterEscCancels(t *testing.T) {
	m, _ := newTestInspector(t, session.SessionMap{
		"win-one": {{"file:///projects/alpha/main.go"}},
		"win-two": {{"file:///projects/beta/util.go"}},
	})

	m = drive(m, key("/"))
	m = typeString(m, "beta")
	require.Equal(t, 1, m.WindowCount())

	m = drive(m, key("esc"))
	assert.False(t, m.filtering)
	assert.Equal(t, 2, m.WindowCount())
	assert.Empty(t, m.filter.Value())
}

func TestInspectorForgetWindow(t *testing.T) {
	m, store := newTestInspector(t, session.SessionMap{
		"win-one": {{"file:///a.go"}},
		"win-two": {{"file:///b.go"}},
	})

	m = drive(m, key("d"))
	require.True(t, m.confirmVisible)
	require.Equal(t, session.WindowID("win-one"), m.confirmTarget)

	updated, cmd := m.Update(key("y"))
	m = updated.(*Inspector)
	require.NotNil(t, cmd)
	m = drive(m, cmd())

	assert.False(t, m.confirmVisible)
	assert.Equal(t, 1, m.WindowCount())

	saved := store.Load()
	assert.NotContains(t, saved, session.WindowID("win-one"))
	assert.Contains(t, saved, session.WindowID("win-two"))
}

func TestInspectorForgetCancelled(t *testing.T) {
	m, store := newTestInspector(t, session.SessionMap{
		"win-one": {{"file:///a.go"}},
	})

	m = drive(m, key("d"))
	require.True(t, m.confirmVisible)

	m = drive(m, key("n"))
	assert.False(t, m.confirmVisible)
	assert.Equal(t, 1, m.WindowCount())
	assert.Contains(t, store.Load(), session.WindowID("win-one"))
}

func TestInspectorDeleteWithNothingSelected(t *testing.T) {
	m, _ := newTestInspector(t, nil)

	m = drive(m, key("d"))
	assert.False(t, m.confirmVisible)
}

func TestInspectorCopyWithNothingSelected(t *testing.T) {
	m, _ := newTestInspector(t, nil)

	m = drive(m, key("c"))
	assert.Empty(t, m.status)
}

func TestInspectorCopyEmptyRecord(t *testing.T) {
	m, _ := newTestInspector(t, session.SessionMap{
		"win-empty": {},
	})

	m = drive(m, key("c"))
	assert.Equal(t, "nothing to copy", m.status)
}

func TestInspectorEmptyStoreView(t *testing.T) {
	m, _ := newTestInspector(t, nil)

	view := m.View()
	assert.Contains(t, view, "no saved sessions")
	assert.Contains(t, view, "0 window(s)")
}

func TestInspectorViewShowsSelectedRecord(t *testing.T) {
	m, _ := newTestInspector(t, session.SessionMap{
		"win-one": {{"file:///a.go", "file:///b.go"}, {"file:///c.go"}},
	})

	view := m.View()
	assert.Contains(t, view, "win-one")
	assert.Contains(t, view, "group 1")
	assert.Contains(t, view, "group 2")
	assert.Contains(t, view, "file:///c.go")
}

func TestInspectorConfirmViewNamesTarget(t *testing.T) {
	m, _ := newTestInspector(t, session.SessionMap{
		"win-12345678-rest": {{"file:///a.go"}},
	})

	m = drive(m, key("d"))
	view := m.View()
	assert.Contains(t, view, "Forget window record?")
	assert.Contains(t, view, shortID("win-12345678-rest"))
}

func TestInspectorReloadOnStorageChange(t *testing.T) {
	m, store := newTestInspector(t, session.SessionMap{
		"win-one": {{"file:///a.go"}},
	})
	require.Equal(t, 1, m.WindowCount())

	// Another process adds a window; the change message reloads.
	saved := store.Load()
	saved["win-two"] = session.Record{{"file:///b.go"}}
	store.Save(saved)

	updated, cmd := m.Update(storageChangedMsg{})
	m = updated.(*Inspector)
	require.NotNil(t, cmd)
	m = drive(m, m.loadSessions())

	assert.Equal(t, 2, m.WindowCount())
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcdefgh", shortID("abcdefgh-1234"))
	assert.Equal(t, "tiny", shortID("tiny"))
}

func TestInspectorWindowCountTracksFilter(t *testing.T) {
	m, _ := newTestInspector(t, session.SessionMap{
		"win-one": {{"file:///x/alpha.go"}},
		"win-two": {{"file:///x/omega.go"}},
	})

	m = drive(m, key("/"))
	m = typeString(m, "omega")
	assert.Equal(t, 1, m.WindowCount())
	assert.True(t, strings.Contains(m.View(), "1 window(s)"))
}
