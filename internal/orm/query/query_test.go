package query

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/assoc/internal/orm/clause"
)

func TestQuery_Immutable(t *testing.T) {
	reg := blogRegistry(t)
	base := New(reg, "Post").InnerJoin("comments")

	before, _, err := base.ToSQL()
	require.NoError(t, err)

	a := base.Where(clause.Map{"status": "draft"}).InnerJoin("comments", "author").Order("id", Asc)
	b := base.WhereNot(clause.Map{"status": "draft"}).Limit(5)

	after, _, err := base.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	aSQL, _, err := a.ToSQL()
	require.NoError(t, err)
	bSQL, _, err := b.ToSQL()
	require.NoError(t, err)
	assert.NotEqual(t, aSQL, bSQL)
	assert.Contains(t, aSQL, `"author"`)
	assert.NotContains(t, bSQL, `"author"`)
}

func TestQuery_CallerMapsCopied(t *testing.T) {
	reg := blogRegistry(t)

	where := clause.Map{"title": "a"}
	not := clause.Map{"status": "draft"}
	alt := clause.Map{"author_id": 1}
	on := clause.Map{"author_id": 2}
	negOn := clause.Map{"body": "spam"}
	q := New(reg, "Post").
		Where(where).
		WhereNot(not).
		WhereAny(alt, clause.Map{"author_id": 3}).
		InnerJoin("comments", on, Not(negOn))

	before, beforeArgs, err := q.ToSQL()
	require.NoError(t, err)

	where["status"] = "x"
	not["title"] = "y"
	alt["title"] = "z"
	on["body"] = "spam"
	negOn["author_id"] = 9

	after, afterArgs, err := q.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, beforeArgs, afterArgs)
}

func TestQuery_ConcurrentDerivation(t *testing.T) {
	reg := blogRegistry(t)
	base := New(reg, "Post").InnerJoin("comments")
	want, _, err := base.ToSQL()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := base.Where(clause.Map{"id": i}).InnerJoin("comments", "author")
			_, _, err := q.ToSQL()
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, _, err := base.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestQuery_BuilderErrors(t *testing.T) {
	reg := blogRegistry(t)

	_, _, err := New(reg, "Post").Order("id", Direction("sideways")).ToSQL()
	assert.True(t, errors.Is(err, clause.ErrInvalidOrder))

	_, _, err = New(reg, "Post").InnerJoin("comments as").ToSQL()
	assert.True(t, errors.Is(err, ErrInvalidPathToken))

	// the first error is kept
	q := New(reg, "Post").InnerJoin(42).Order("id", Direction("up"))
	assert.True(t, errors.Is(q.Err(), ErrInvalidPathToken))
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		name   string
		tokens []any
		want   string
	}{
		{"chain", []any{"comments", "author"}, "comments(author)"},
		{"alias", []any{"comments as c", "author"}, "comments as c(author)"},
		{"branches", []any{"comments", []any{"author"}, []any{"post"}}, "comments(author, post)"},
		{"root branches", []any{[]any{"author"}, []any{"comments"}}, "author|comments"},
		{"string branch", []any{"tags", []string{"taggings"}}, "tags(taggings)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := ParsePath(tt.tokens...)
			require.NoError(t, err)
			var got string
			for i, n := range nodes {
				if i > 0 {
					got += "|"
				}
				got += n.String()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePath_Conditions(t *testing.T) {
	nodes, err := ParsePath("comments", clause.Map{"body": "hi"}, Not(clause.Map{"approved": false}), Any(clause.Map{"id": 1}))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.True(t, nodes[0].HasConditions())
	assert.Len(t, nodes[0].where, 3)
	assert.True(t, nodes[0].Leaf().HasConditions())

	_, err = ParsePath(clause.Map{"body": "hi"})
	assert.True(t, errors.Is(err, ErrInvalidPathToken))

	_, err = ParsePath("a as b as c")
	assert.True(t, errors.Is(err, ErrInvalidPathToken))
}

func TestMergePaths(t *testing.T) {
	left, err := ParsePath("comments", "author")
	require.NoError(t, err)
	right, err := ParsePath("comments", "post")
	require.NoError(t, err)

	merged, err := mergePaths(left, right)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "comments(author, post)", merged[0].String())

	// inputs untouched
	assert.Equal(t, "comments(author)", left[0].String())
	assert.Equal(t, "comments(post)", right[0].String())

	other, err := ParsePath("taggings as comments")
	require.NoError(t, err)
	_, err = mergePaths(left, other)
	assert.True(t, errors.Is(err, ErrAliasConflict))
}
