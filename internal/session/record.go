package session

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// WindowID identifies a window across restarts. A fresh ID is generated when
// a window is first tracked; during session restore the ID is replaced, at
// most once, by the ID of the saved record the window claims.
type WindowID string

// NewWindowID returns a random window ID.
func NewWindowID() WindowID {
	return WindowID(uuid.NewString())
}

// Record is one window's session state: tab groups in display order, each an
// ordered list of file URIs. Blank tabs never appear; empty groups are never
// stored.
type Record [][]string

// IsEmpty reports whether the record holds no files. An empty record stands
// for "this window is gone" in the pending queues.
func (r Record) IsEmpty() bool {
	return len(r) == 0
}

// FileCount returns the total number of files across all groups.
func (r Record) FileCount() int {
	n := 0
	for _, group := range r {
		n += len(group)
	}
	return n
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for i, group := range r {
		out[i] = slices.Clone(group)
	}
	return out
}

// Equal reports whether two records hold the same files in the same groups
// and order.
func (r Record) Equal(other Record) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if !slices.Equal(r[i], other[i]) {
			return false
		}
	}
	return true
}

// NormalizeLayout converts a raw host layout into a Record, dropping empty
// groups and copying the rest.
func NormalizeLayout(layout [][]string) Record {
	var out Record
	for _, group := range layout {
		if len(group) == 0 {
			continue
		}
		out = append(out, slices.Clone(group))
	}
	return out
}

// SessionMap is the committed session state: one record per window ID.
type SessionMap map[WindowID]Record

// Clone returns a deep copy.
func (m SessionMap) Clone() SessionMap {
	out := make(SessionMap, len(m))
	for id, rec := range m {
		out[id] = rec.Clone()
	}
	return out
}

// SortedIDs returns the map's window IDs in canonical (sorted) order, the
// order records are claimed in during restore.
func (m SessionMap) SortedIDs() []WindowID {
	ids := make([]WindowID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// EncodeSessionMap serializes a session map to canonical JSON: object keys
// sorted, groups and files in stored order, empty groups dropped. Encoding
// the result of DecodeSessionMap yields byte-identical output.
func EncodeSessionMap(m SessionMap) ([]byte, error) {
	if m == nil {
		m = SessionMap{}
	}
	normalized := make(map[WindowID][][]string, len(m))
	for id, rec := range m {
		groups := make([][]string, 0, len(rec))
		for _, group := range rec {
			if len(group) == 0 {
				continue
			}
			groups = append(groups, group)
		}
		normalized[id] = groups
	}
	return json.Marshal(normalized)
}

// DecodeSessionMap parses a serialized session map, enforcing the expected
// shape: an object of arrays of arrays of strings. Anything else is treated
// as corruption. Empty groups from foreign writers are dropped.
func DecodeSessionMap(data []byte) (SessionMap, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session map: %w", err)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("session map: expected object, got %T", raw)
	}

	out := make(SessionMap, len(obj))
	for key, val := range obj {
		groupsRaw, ok := val.([]any)
		if !ok {
			return nil, fmt.Errorf("session map: window %q: expected group list, got %T", key, val)
		}
		var rec Record
		for gi, groupVal := range groupsRaw {
			filesRaw, ok := groupVal.([]any)
			if !ok {
				return nil, fmt.Errorf("session map: window %q group %d: expected file list, got %T", key, gi, groupVal)
			}
			if len(filesRaw) == 0 {
				continue
			}
			group := make([]string, len(filesRaw))
			for fi, fileVal := range filesRaw {
				uri, ok := fileVal.(string)
				if !ok {
					return nil, fmt.Errorf("session map: window %q group %d file %d: expected string, got %T", key, gi, fi, fileVal)
				}
				group[fi] = uri
			}
			rec = append(rec, group)
		}
		out[WindowID(key)] = rec
	}
	return out, nil
}
