package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIsEmpty(t *testing.T) {
	assert.True(t, Record{}.IsEmpty())
	assert.True(t, Record(nil).IsEmpty())
	assert.False(t, Record{{"file:///a"}}.IsEmpty())
}

func TestRecordFileCount(t *testing.T) {
	rec := Record{{"file:///a", "file:///b"}, {"file:///c"}}
	assert.Equal(t, 3, rec.FileCount())
	assert.Equal(t, 0, Record{}.FileCount())
}

func TestRecordCloneIsIndependent(t *testing.T) {
	rec := Record{{"file:///a", "file:///b"}}
	cp := rec.Clone()
	cp[0][0] = "file:///changed"
	assert.Equal(t, "file:///a", rec[0][0])
}

func TestRecordEqual(t *testing.T) {
	a := Record{{"file:///a"}, {"file:///b"}}
	assert.True(t, a.Equal(Record{{"file:///a"}, {"file:///b"}}))
	assert.False(t, a.Equal(Record{{"file:///a"}}))
	assert.False(t, a.Equal(Record{{"file:///b"}, {"file:///a"}}))
	assert.True(t, Record{}.Equal(Record(nil)))
}

func TestNormalizeLayoutDropsEmptyGroups(t *testing.T) {
	rec := NormalizeLayout([][]string{{"file:///a"}, {}, {"file:///b"}})
	require.Equal(t, Record{{"file:///a"}, {"file:///b"}}, rec)
}

func TestSortedIDsAreStable(t *testing.T) {
	m := SessionMap{
		"id-c": Record{{"file:///c"}},
		"id-a": Record{{"file:///a"}},
		"id-b": Record{{"file:///b"}},
	}
	assert.Equal(t, []WindowID{"id-a", "id-b", "id-c"}, m.SortedIDs())
}

func TestEncodeSessionMapCanonical(t *testing.T) {
	m := SessionMap{
		"id-b": Record{{"file:///b"}},
		"id-a": Record{{"file:///a1", "file:///a2"}},
	}
	data, err := EncodeSessionMap(m)
	require.NoError(t, err)
	assert.Equal(t,
		`{"id-a":[["file:///a1","file:///a2"]],"id-b":[["file:///b"]]}`,
		string(data))

	decoded, err := DecodeSessionMap(data)
	require.NoError(t, err)
	again, err := EncodeSessionMap(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again), "encoding must be idempotent")
}

func TestEncodeSessionMapKeepsEmptyRecords(t *testing.T) {
	data, err := EncodeSessionMap(SessionMap{"id-a": Record{}})
	require.NoError(t, err)
	assert.Equal(t, `{"id-a":[]}`, string(data))
}

func TestEncodeSessionMapDropsEmptyGroups(t *testing.T) {
	data, err := EncodeSessionMap(SessionMap{
		"id-a": Record{{"file:///a"}, {}, {"file:///b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"id-a":[["file:///a"],["file:///b"]]}`, string(data))
}

func TestDecodeSessionMapRejectsBadShapes(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"not an object":  `[["file:///a"]]`,
		"scalar record":  `{"id-a": "file:///a"}`,
		"scalar group":   `{"id-a": ["file:///a"]}`,
		"numeric file":   `{"id-a": [[42]]}`,
		"null record":    `{"id-a": null}`,
		"nested too far": `{"id-a": [[["file:///a"]]]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSessionMap([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestDecodeSessionMapAcceptsEmpty(t *testing.T) {
	m, err := DecodeSessionMap([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, m)

	m, err = DecodeSessionMap([]byte(`{"id-a":[]}`))
	require.NoError(t, err)
	require.Contains(t, m, WindowID("id-a"))
	assert.True(t, m["id-a"].IsEmpty())
}

func TestSessionMapClone(t *testing.T) {
	m := SessionMap{"id-a": Record{{"file:///a"}}}
	cp := m.Clone()
	cp["id-a"][0][0] = "file:///changed"
	cp["id-b"] = Record{}
	assert.Equal(t, "file:///a", m["id-a"][0][0])
	assert.NotContains(t, m, WindowID("id-b"))
}

func TestNewWindowIDUnique(t *testing.T) {
	a, b := NewWindowID(), NewWindowID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
