package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/state-table-server/schema"
)

func TestOfAlwaysIncludesID(t *testing.T) {
	s := schema.Of("name")
	assert.True(t, s.Has("id"))
	assert.True(t, s.Has("name"))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"id", "name"}, s.Fields())
}

func TestInfer(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		want []string
	}{
		{name: "without id", doc: map[string]any{"name": "a", "age": 3}, want: []string{"age", "id", "name"}},
		{name: "with id", doc: map[string]any{"id": 1, "name": "a"}, want: []string{"id", "name"}},
		{name: "empty", doc: map[string]any{}, want: []string{"id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, schema.Infer(tt.doc).Fields())
		})
	}
}

func TestEqualIsOrderIndependent(t *testing.T) {
	a := schema.Of("b", "a", "c")
	b := schema.Of("c", "a", "b")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(schema.Of("a", "b")))

	var undefined *schema.Schema
	assert.True(t, undefined.Equal(nil))
	assert.False(t, undefined.Equal(a))
	assert.False(t, a.Equal(nil))
}

func TestDiff(t *testing.T) {
	s := schema.Of("name", "age")
	missing, extra := s.Diff(schema.Of("name", "email", "city"))
	require.Equal(t, []string{"age"}, missing)
	require.Equal(t, []string{"city", "email"}, extra)

	missing, extra = s.Diff(schema.Of("age", "name"))
	assert.Empty(t, missing)
	assert.Empty(t, extra)
}

func TestUnknown(t *testing.T) {
	s := schema.Of("name")
	assert.Empty(t, s.Unknown(map[string]any{"name": "x", "id": 1}))
	assert.Equal(t, []string{"age", "zip"}, s.Unknown(map[string]any{"zip": 1, "age": 30, "name": "x"}))
}

func TestString(t *testing.T) {
	var undefined *schema.Schema
	assert.Equal(t, "<undefined>", undefined.String())
	assert.Equal(t, "{id, name}", schema.Of("name").String())
}
