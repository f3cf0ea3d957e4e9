package bridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sessionkeeper/sessionkeeper/internal/host"
)

// layoutCache remembers the last layout each window reported. Spooled events
// carry layouts precisely so the engine never needs a synchronous round trip
// back to the plugin; the cache is what answers CurrentState in between.
type layoutCache struct {
	mu      sync.RWMutex
	layouts map[host.WindowRef][][]string
}

func newLayoutCache() *layoutCache {
	return &layoutCache{layouts: make(map[host.WindowRef][][]string)}
}

// update stores a window's layout. A nil layout means the event carried
// none, so the previous snapshot stays valid.
func (c *layoutCache) update(w host.WindowRef, layout [][]string) {
	if layout == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layouts[w] = cloneLayout(layout)
}

func (c *layoutCache) get(w host.WindowRef) ([][]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	layout, ok := c.layouts[w]
	if !ok {
		return nil, false
	}
	return cloneLayout(layout), true
}

func (c *layoutCache) evict(w host.WindowRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.layouts, w)
}

func cloneLayout(layout [][]string) [][]string {
	out := make([][]string, len(layout))
	for i, group := range layout {
		out[i] = append([]string(nil), group...)
	}
	return out
}

// SpoolEditor implements host.Editor by writing action files into the spool
// for the plugin to pick up. State queries are answered from the layout
// cache, never by blocking on the plugin.
type SpoolEditor struct {
	actionsDir string
	cache      *layoutCache

	mu  sync.Mutex
	seq int64
}

func NewSpoolEditor(actionsDir string) *SpoolEditor {
	return &SpoolEditor{
		actionsDir: actionsDir,
		cache:      newLayoutCache(),
	}
}

// RememberLayout records the layout an incoming event carried, making it the
// answer to subsequent CurrentState calls for that window.
func (e *SpoolEditor) RememberLayout(w host.WindowRef, layout [][]string) {
	e.cache.update(w, layout)
}

// ForgetWindow drops a closed window's cached layout.
func (e *SpoolEditor) ForgetWindow(w host.WindowRef) {
	e.cache.evict(w)
}

func (e *SpoolEditor) CurrentState(w host.WindowRef) ([][]string, error) {
	layout, ok := e.cache.get(w)
	if !ok {
		return nil, fmt.Errorf("no layout known for window %s", w)
	}
	return layout, nil
}

func (e *SpoolEditor) OpenFile(w host.WindowRef, uri string) error {
	return e.writeAction(WireAction{
		Action: ActionOpenFile,
		Window: string(w),
		URI:    uri,
	})
}

func (e *SpoolEditor) CloseTab(w host.WindowRef, tab string) error {
	return e.writeAction(WireAction{
		Action: ActionCloseTab,
		Window: string(w),
		Tab:    tab,
	})
}

func (e *SpoolEditor) CreateTabGroup(w host.WindowRef) error {
	return e.writeAction(WireAction{
		Action: ActionCreateTabGroup,
		Window: string(w),
	})
}

func (e *SpoolEditor) SpawnWindow() error {
	return e.writeAction(WireAction{Action: ActionSpawnWindow})
}

// writeAction spools one action atomically. The plugin processes files in
// name order, so the name embeds timestamp then sequence.
func (e *SpoolEditor) writeAction(act WireAction) error {
	e.mu.Lock()
	e.seq++
	act.Seq = e.seq
	e.mu.Unlock()
	act.TS = time.Now().UnixNano()

	if err := os.MkdirAll(e.actionsDir, 0755); err != nil {
		return fmt.Errorf("create actions dir: %w", err)
	}

	data, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}

	name := fmt.Sprintf("act-%020d-%06d.json", act.TS, act.Seq)
	path := filepath.Join(e.actionsDir, name)

	// Write to a temp file then rename so the plugin never sees a
	// partial action.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write action file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename action file: %w", err)
	}
	return nil
}
