package clause

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombinators(t *testing.T) {
	a := Compare{Col: Col("t", "a"), Op: "=", Value: 1}
	b := NullCheck{Col: Col("t", "b")}

	assert.Nil(t, And())
	assert.Nil(t, Or(nil, nil))
	assert.Equal(t, a, And(nil, a))
	assert.Equal(t, a, Not(Not(a)))
	assert.Equal(t, False(), Not(True()))
	assert.Nil(t, Not(nil))

	sql, args, err := Render(Postgres{}, And(And(a, b), Or(a, b)))
	require.NoError(t, err)
	assert.Equal(t, `"t"."a" = $1 AND "t"."b" IS NULL AND ("t"."a" = $2 OR "t"."b" IS NULL)`, sql)
	assert.Equal(t, []any{1, 1}, args)
}

func TestColumnCompare(t *testing.T) {
	sql, args, err := Render(Postgres{}, ColumnCompare{Left: Col("c", "pet_id"), Op: "=", Right: Col("pets", "id")})
	require.NoError(t, err)
	assert.Equal(t, `"c"."pet_id" = "pets"."id"`, sql)
	assert.Empty(t, args)
}

func TestKeys(t *testing.T) {
	t.Run("postgres binds one array", func(t *testing.T) {
		sql, args, err := Render(Postgres{}, Keys{Col: Col("pets", "id"), Keys: []any{1, 2}})
		require.NoError(t, err)
		assert.Equal(t, `"pets"."id" = ANY($1)`, sql)
		assert.Equal(t, []any{pq.Int64Array{1, 2}}, args)
	})

	t.Run("postgres string keys", func(t *testing.T) {
		_, args, err := Render(Postgres{}, Keys{Col: Col("pets", "id"), Keys: []any{"a", "b"}})
		require.NoError(t, err)
		assert.Equal(t, []any{pq.StringArray{"a", "b"}}, args)
	})

	t.Run("sqlite expands placeholders", func(t *testing.T) {
		sql, args, err := Render(SQLite{}, Keys{Col: Col("pets", "id"), Keys: []any{1, 2}})
		require.NoError(t, err)
		assert.Equal(t, `"pets"."id" IN (?, ?)`, sql)
		assert.Equal(t, []any{1, 2}, args)
	})

	t.Run("no keys", func(t *testing.T) {
		sql, _, err := Render(SQLite{}, Keys{Col: Col("pets", "id")})
		require.NoError(t, err)
		assert.Equal(t, "FALSE", sql)
	})
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, "sqlite3", DialectFor("sqlite3").Name())
	assert.Equal(t, "postgres", DialectFor("pgx").Name())
	assert.Equal(t, "postgres", DialectFor("postgres").Name())
	assert.False(t, DialectFor("sqlite3").DistinctOn())
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in   string
		want Order
	}{
		{"id", Order{Column: "id"}},
		{"position ASC", Order{Column: "position"}},
		{"c.created_at desc", Order{Column: "c.created_at", Desc: true}},
	}
	for _, tt := range tests {
		got, err := ParseOrder(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseOrder("id sideways")
	assert.ErrorIs(t, err, ErrInvalidOrder)

	b := NewBuilder(nil)
	Order{Column: "position", Desc: true}.Render(b, "c")
	assert.Equal(t, `"c"."position" DESC`, b.String())
}
