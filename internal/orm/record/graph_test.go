package record

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyString(t *testing.T) {
	u := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "abc", "abc"},
		{"int", 42, "42"},
		{"int64", int64(42), "42"},
		{"int32", int32(42), "42"},
		{"uint64", uint64(42), "42"},
		{"uuid", u, u.String()},
		{"uuid bytes", u[:], u.String()},
		{"uuid array", [16]byte(u), u.String()},
		{"text bytes", []byte("abc"), "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KeyString(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := KeyString(nil)
	assert.ErrorIs(t, err, ErrNilKey)
}

func TestGraphIdentity(t *testing.T) {
	g := NewGraph()

	first, created, err := g.Build("collars", "Collar", "id", map[string]any{"id": int64(1), "tag_name": "hello"})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := g.Build("collars", "Collar", "id", map[string]any{"id": 1, "tag_name": "changed"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, again)
	assert.Equal(t, "hello", again.Get("tag_name"))

	other, created, err := g.Build("recent_collars", "Collar", "id", map[string]any{"id": 1})
	require.NoError(t, err)
	assert.True(t, created, "the same key under another alias is a separate identity")
	assert.NotSame(t, first, other)

	found, ok := g.Lookup("collars", "1")
	assert.True(t, ok)
	assert.Same(t, first, found)

	assert.Equal(t, 2, g.Len())
	assert.Len(t, g.Records("collars"), 1)

	_, _, err = g.Build("collars", "Collar", "id", map[string]any{"id": nil})
	assert.ErrorIs(t, err, ErrNilKey)
}

func TestRecordLinks(t *testing.T) {
	g := NewGraph()
	pet, _, _ := g.Build("", "Pet", "id", map[string]any{"id": 1})
	c1, _, _ := g.Build("collars", "Collar", "id", map[string]any{"id": 10})
	c2, _, _ := g.Build("collars", "Collar", "id", map[string]any{"id": 11})

	t.Run("append is once per identity", func(t *testing.T) {
		require.NoError(t, pet.Append("collars", c1))
		require.NoError(t, pet.Append("collars", c2))
		require.NoError(t, pet.Append("collars", c1))

		assert.Equal(t, []*Record{c1, c2}, pet.Many("collars"))
		assert.True(t, pet.Loaded("collars"))
	})

	t.Run("frozen links reject appends", func(t *testing.T) {
		pet.Freeze("collars")
		assert.True(t, pet.Frozen("collars"))

		c3, _, _ := g.Build("collars", "Collar", "id", map[string]any{"id": 12})
		err := pet.Append("collars", c3)
		assert.ErrorIs(t, err, ErrFrozenAssociation)
		assert.Len(t, pet.Many("collars"), 2)
	})

	t.Run("to-one first wins", func(t *testing.T) {
		set, err := c1.SetOne("pet", pet)
		require.NoError(t, err)
		assert.True(t, set)

		other, _, _ := g.Build("", "Pet", "id", map[string]any{"id": 2})
		set, err = c1.SetOne("pet", other)
		require.NoError(t, err)
		assert.False(t, set)
		assert.Same(t, pet, c1.One("pet"))
	})

	t.Run("init marks empty association loaded", func(t *testing.T) {
		c2.Init("tag", false)
		assert.True(t, c2.Loaded("tag"))
		assert.Nil(t, c2.One("tag"))
		assert.False(t, c2.Loaded("owner"))
	})

	t.Run("unload forgets the association", func(t *testing.T) {
		c2.Init("badge", true)
		c2.Unload("badge")
		assert.False(t, c2.Loaded("badge"))
		assert.Empty(t, c2.Many("badge"))
		c2.Unload("never")
	})

	t.Run("records from another graph", func(t *testing.T) {
		stranger, _, _ := NewGraph().Build("", "Pet", "id", map[string]any{"id": 3})
		assert.ErrorIs(t, pet.Append("friends", stranger), ErrForeignRecord)
	})
}

func TestSnapshot(t *testing.T) {
	g := NewGraph()
	pet, _, _ := g.Build("", "Pet", "id", map[string]any{"id": 1})
	tag, _, _ := g.Build("tags", "Tag", "id", map[string]any{"id": 5})
	tag.SetThrough("tag_name", "hello")
	require.NoError(t, pet.Append("tags", tag))
	pet.Init("owner", false)

	want := map[string]any{
		"model":  "Pet",
		"values": map[string]any{"id": 1},
		"links": map[string]any{
			"owner": nil,
			"tags": []any{map[string]any{
				"model":   "Tag",
				"values":  map[string]any{"id": 5},
				"through": map[string]any{"tag_name": "hello"},
			}},
		},
	}
	assert.Equal(t, want, pet.Snapshot())
	assert.Equal(t, []string{"owner", "tags"}, pet.Associations())
	assert.Len(t, Snapshots([]*Record{pet, tag}), 2)
}
