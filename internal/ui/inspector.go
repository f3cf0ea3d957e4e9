// Package ui implements the session inspector, a terminal UI over the saved
// window records. It lists every persisted window with its tab groups and
// files, filters them fuzzily, and can forget a record that should not be
// restored on the next editor launch. A bridge writing to the same database
// shows up live through the storage watcher.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"github.com/sessionkeeper/sessionkeeper/internal/clipboard"
	"github.com/sessionkeeper/sessionkeeper/internal/config"
	"github.com/sessionkeeper/sessionkeeper/internal/logging"
	"github.com/sessionkeeper/sessionkeeper/internal/session"
	"github.com/sessionkeeper/sessionkeeper/internal/statedb"
)

var uiLog = logging.ForComponent(logging.CompUI)

// Messages
type sessionsLoadedMsg struct {
	sessions session.SessionMap
}

// storageChangedMsg signals that the settings database was modified externally
type storageChangedMsg struct{}

// themeChangedMsg signals an OS dark mode switch
type themeChangedMsg struct {
	dark bool
}

// Inspector is the bubbletea model for the saved-session browser.
type Inspector struct {
	profile string
	store   *session.SessionStore

	sessions session.SessionMap
	allIDs   []session.WindowID
	order    []session.WindowID // display order, after filtering
	cursor   int
	offset   int // scroll position in the window list

	width  int
	height int

	filter    textinput.Model
	filtering bool // filter input focused

	confirmVisible bool
	confirmTarget  session.WindowID

	storageWatcher *StorageWatcher
	themeWatcher   *ThemeWatcher

	warning string
	status  string
}

// NewInspector creates the inspector model. Watchers may be nil; the
// inspector then runs without live reload or theme following.
func NewInspector(profile string, store *session.SessionStore, sw *StorageWatcher, tw *ThemeWatcher) *Inspector {
	ti := textinput.New()
	ti.Placeholder = "Filter windows and files..."
	ti.CharLimit = 100
	ti.Width = 40

	m := &Inspector{
		profile:        profile,
		store:          store,
		sessions:       session.SessionMap{},
		filter:         ti,
		storageWatcher: sw,
		themeWatcher:   tw,
	}
	if store == nil || !store.Available() {
		m.warning = "storage unavailable: nothing to inspect"
	}
	return m
}

func (m *Inspector) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadSessions}
	if m.storageWatcher != nil {
		m.storageWatcher.Start()
		cmds = append(cmds, listenForReloads(m.storageWatcher))
	}
	if m.themeWatcher != nil {
		cmds = append(cmds, listenForThemeChanges(m.themeWatcher))
	}
	return tea.Batch(cmds...)
}

// loadSessions reads the saved sessions from storage.
func (m *Inspector) loadSessions() tea.Msg {
	if m.store == nil {
		return sessionsLoadedMsg{sessions: session.SessionMap{}}
	}
	return sessionsLoadedMsg{sessions: m.store.Load()}
}

// listenForReloads waits for a storage change notification
func listenForReloads(sw *StorageWatcher) tea.Cmd {
	return func() tea.Msg {
		if sw == nil {
			return nil
		}
		<-sw.ReloadChannel()
		return storageChangedMsg{}
	}
}

// listenForThemeChanges waits for an OS dark mode switch
func listenForThemeChanges(tw *ThemeWatcher) tea.Cmd {
	return func() tea.Msg {
		if tw == nil {
			return nil
		}
		dark, ok := <-tw.ChangeChannel()
		if !ok {
			return nil
		}
		return themeChangedMsg{dark: dark}
	}
}

func (m *Inspector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case sessionsLoadedMsg:
		m.sessions = msg.sessions
		m.allIDs = m.sessions.SortedIDs()
		m.applyFilter()
		return m, nil

	case storageChangedMsg:
		m.status = "reloaded after external change"
		return m, tea.Batch(m.loadSessions, listenForReloads(m.storageWatcher))

	case themeChangedMsg:
		if msg.dark {
			InitTheme("dark")
		} else {
			InitTheme("light")
		}
		return m, listenForThemeChanges(m.themeWatcher)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Inspector) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmVisible {
		return m.handleConfirmKey(msg)
	}
	if m.filtering {
		return m.handleFilterKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.order)-1 {
			m.cursor++
		}

	case "g", "home":
		m.cursor = 0

	case "G", "end":
		if len(m.order) > 0 {
			m.cursor = len(m.order) - 1
		}

	case "/":
		m.filtering = true
		m.filter.Focus()
		return m, textinput.Blink

	case "esc":
		if m.filter.Value() != "" {
			m.filter.SetValue("")
			m.applyFilter()
		}

	case "d", "delete":
		if id, ok := m.selected(); ok {
			m.confirmVisible = true
			m.confirmTarget = id
		}

	case "c":
		m.copySelected()

	case "r":
		m.status = "refreshing"
		return m, m.loadSessions
	}

	return m, nil
}

func (m *Inspector) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		id := m.confirmTarget
		m.confirmVisible = false
		m.confirmTarget = ""
		if m.storageWatcher != nil {
			m.storageWatcher.NotifySave()
		}
		if m.store != nil {
			m.store.DeleteWindow(id)
		}
		uiLog.Info("window_record_forgotten", slog.String("window", string(id)))
		m.status = fmt.Sprintf("forgot window %s", shortID(id))
		return m, m.loadSessions

	case "n", "esc", "q":
		m.confirmVisible = false
		m.confirmTarget = ""
	}
	return m, nil
}

func (m *Inspector) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filtering = false
		m.filter.Blur()
		m.filter.SetValue("")
		m.applyFilter()
		return m, nil

	case "enter":
		// Keep the filter, return focus to the list.
		m.filtering = false
		m.filter.Blur()
		return m, nil

	case "up", "ctrl+k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "ctrl+j":
		if m.cursor < len(m.order)-1 {
			m.cursor++
		}
		return m, nil

	default:
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, cmd
	}
}

// selected returns the window under the cursor.
func (m *Inspector) selected() (session.WindowID, bool) {
	if len(m.order) == 0 || m.cursor < 0 || m.cursor >= len(m.order) {
		return "", false
	}
	return m.order[m.cursor], true
}

// copySelected puts the selected record's file URIs on the clipboard,
// one per line.
func (m *Inspector) copySelected() {
	id, ok := m.selected()
	if !ok {
		return
	}
	rec := m.sessions[id]

	var sb strings.Builder
	for _, group := range rec {
		for _, uri := range group {
			sb.WriteString(uri)
			sb.WriteByte('\n')
		}
	}
	if sb.Len() == 0 {
		m.status = "nothing to copy"
		return
	}

	res, err := clipboard.Copy(sb.String())
	if err != nil {
		m.status = fmt.Sprintf("copy failed: %v", err)
		return
	}
	m.status = fmt.Sprintf("copied %d file(s) via %s", res.LineCount, res.Method)
}

// windowHaystack implements fuzzy.Source over window records. Each entry is
// the window ID plus every file URI, so a query can hit either.
type windowHaystack struct {
	text []string
}

func (h windowHaystack) String(i int) string { return h.text[i] }
func (h windowHaystack) Len() int            { return len(h.text) }

// applyFilter recomputes the display order from the current filter query.
// An empty query shows everything in stable ID order; otherwise windows are
// ranked by fuzzy match relevance.
func (m *Inspector) applyFilter() {
	query := strings.TrimSpace(m.filter.Value())
	if query == "" {
		m.order = m.allIDs
		m.clampCursor()
		return
	}

	hay := windowHaystack{text: make([]string, len(m.allIDs))}
	for i, id := range m.allIDs {
		var sb strings.Builder
		sb.WriteString(string(id))
		for _, group := range m.sessions[id] {
			for _, uri := range group {
				sb.WriteByte(' ')
				sb.WriteString(uri)
			}
		}
		hay.text[i] = sb.String()
	}

	matches := fuzzy.FindFrom(query, hay)
	m.order = make([]session.WindowID, 0, len(matches))
	for _, match := range matches {
		m.order = append(m.order, m.allIDs[match.Index])
	}
	m.clampCursor()
}

func (m *Inspector) clampCursor() {
	if m.cursor >= len(m.order) {
		m.cursor = len(m.order) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// WindowCount returns how many records are currently listed.
func (m *Inspector) WindowCount() int {
	return len(m.order)
}

func shortID(id session.WindowID) string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func (m *Inspector) View() string {
	if m.width == 0 {
		return "loading..."
	}

	if m.confirmVisible {
		return m.renderConfirm()
	}

	title := TitleStyle.Render(fmt.Sprintf("Session Keeper · %s · %d window(s)", m.profileLabel(), len(m.order)))

	var statusLine string
	switch {
	case m.warning != "":
		statusLine = ErrorStyle.Render(m.warning)
	case m.status != "":
		statusLine = DimStyle.Render(m.status)
	}

	body := m.renderBody()
	menu := m.renderMenuBar()

	return title + "\n" + statusLine + "\n" + body + "\n" + menu
}

func (m *Inspector) profileLabel() string {
	if m.profile == "" {
		return "default"
	}
	return m.profile
}

func (m *Inspector) renderBody() string {
	bodyHeight := m.height - 5
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	listWidth := m.width / 3
	if listWidth < 28 {
		listWidth = 28
	}
	previewWidth := m.width - listWidth - 6
	if previewWidth < 20 {
		previewWidth = 20
	}

	var listContent string
	if m.filtering || m.filter.Value() != "" {
		listContent = FilterBoxStyle.Width(listWidth - 2).Render(m.filter.View()) + "\n"
		bodyHeight -= 3
	}

	listContent += m.renderList(listWidth-4, bodyHeight)
	preview := m.renderPreview(previewWidth - 4)

	left := PanelStyle.Width(listWidth).Height(bodyHeight).Render(listContent)
	right := PanelStyle.Width(previewWidth).Height(bodyHeight).Render(preview)

	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m *Inspector) renderList(width, height int) string {
	if len(m.order) == 0 {
		if m.filter.Value() != "" {
			return DimStyle.Render("no windows match")
		}
		return DimStyle.Render("no saved sessions")
	}

	// Keep the cursor visible.
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+height {
		m.offset = m.cursor - height + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}

	var sb strings.Builder
	end := m.offset + height
	if end > len(m.order) {
		end = len(m.order)
	}

	for i := m.offset; i < end; i++ {
		id := m.order[i]
		rec := m.sessions[id]

		label := fmt.Sprintf("%s  %s", shortID(id),
			ListCountStyle.Render(fmt.Sprintf("%d file(s)", rec.FileCount())))
		if rec.IsEmpty() {
			label = fmt.Sprintf("%s  %s", shortID(id), DimStyle.Render("empty"))
		}
		label = runewidth.Truncate(label, width, "…")

		if i == m.cursor {
			sb.WriteString(ListItemActiveStyle.Render("› " + label))
		} else {
			sb.WriteString(ListItemStyle.Render("  " + label))
		}
		if i < end-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func (m *Inspector) renderPreview(width int) string {
	id, ok := m.selected()
	if !ok {
		return DimStyle.Render("nothing selected")
	}

	rec := m.sessions[id]
	var sb strings.Builder
	sb.WriteString(PreviewTitleStyle.Render(string(id)))
	sb.WriteByte('\n')

	if rec.IsEmpty() {
		sb.WriteString(DimStyle.Render("empty record, dropped at the next save"))
		return sb.String()
	}

	for gi, group := range rec {
		sb.WriteByte('\n')
		sb.WriteString(PreviewGroupStyle.Render(fmt.Sprintf("group %d", gi+1)))
		sb.WriteByte('\n')
		for _, uri := range group {
			line := "  " + uri
			line = runewidth.Truncate(line, width, "…")
			sb.WriteString(PreviewFileStyle.Render(line))
			sb.WriteByte('\n')
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (m *Inspector) renderMenuBar() string {
	entry := func(key, desc string) string {
		return MenuKeyStyle.Render(key) + " " + MenuDescStyle.Render(desc)
	}
	items := []string{
		entry("↑↓", "navigate"),
		entry("/", "filter"),
		entry("c", "copy files"),
		entry("d", "forget"),
		entry("r", "refresh"),
		entry("q", "quit"),
	}
	return MenuBarStyle.Width(m.width).Render(strings.Join(items, "  "))
}

func (m *Inspector) renderConfirm() string {
	rec := m.sessions[m.confirmTarget]
	content := DialogTitleStyle.Render("Forget window record?") + "\n\n" +
		fmt.Sprintf("%s with %d file(s)\n", shortID(m.confirmTarget), rec.FileCount()) +
		DimStyle.Render("it will not be restored on the next launch") + "\n\n" +
		MenuKeyStyle.Render("[y]") + " forget   " + MenuKeyStyle.Render("[n]") + " cancel"

	dialog := DialogBoxStyle.Render(content)
	return centerInScreen(dialog, m.width, m.height)
}

// centerInScreen centers content in the terminal
func centerInScreen(content string, screenWidth, screenHeight int) string {
	lines := strings.Split(content, "\n")
	contentHeight := len(lines)
	contentWidth := 0
	for _, line := range lines {
		if w := runewidth.StringWidth(line); w > contentWidth {
			contentWidth = w
		}
	}

	verticalPad := (screenHeight - contentHeight) / 2
	if verticalPad < 0 {
		verticalPad = 0
	}
	horizontalPad := (screenWidth - contentWidth) / 2
	if horizontalPad < 0 {
		horizontalPad = 0
	}

	var result strings.Builder
	for i := 0; i < verticalPad; i++ {
		result.WriteString("\n")
	}
	padding := strings.Repeat(" ", horizontalPad)
	for _, line := range lines {
		result.WriteString(padding + line + "\n")
	}
	return result.String()
}

// Run opens the settings database for the profile and drives the inspector
// until the user quits.
func Run(profile string) error {
	InitTheme(config.ResolveTheme())

	var db *statedb.SettingsDB
	if dbPath, err := config.GetSettingsDBPath(profile); err == nil {
		if opened, err := statedb.Open(dbPath); err == nil {
			if err := opened.Migrate(); err == nil {
				db = opened
			} else {
				opened.Close()
			}
		}
	}
	if db != nil {
		defer db.Close()
	}

	store := session.NewSessionStore(db)
	sw := NewStorageWatcher(db)
	if sw != nil {
		defer sw.Close()
	}
	tw := NewThemeWatcher(context.Background())
	if tw != nil {
		defer tw.Close()
	}

	m := NewInspector(profile, store, sw, tw)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
