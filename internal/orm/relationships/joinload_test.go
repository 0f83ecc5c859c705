package relationships

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/assoc/internal/orm/query"
	"github.com/conduit-lang/assoc/internal/orm/schema"
)

const postCommentsJoinLoadSQL = `SELECT "posts"."id" AS "a0__id", "posts"."author_id" AS "a0__author_id", "posts"."title" AS "a0__title", "posts"."deleted_at" AS "a0__deleted_at", ` +
	`"comments"."id" AS "a1__id", "comments"."post_id" AS "a1__post_id", "comments"."author_id" AS "a1__author_id", "comments"."body" AS "a1__body", "comments"."approved" AS "a1__approved" ` +
	`FROM "posts" LEFT JOIN "comments" AS "comments" ON "comments"."post_id" = "posts"."id" AND "comments"."approved" = $1 ` +
	`WHERE "posts"."deleted_at" IS NULL ORDER BY "posts"."id" ASC, "comments"."id" DESC`

func TestJoinLoad(t *testing.T) {
	db, mock := setupTestDB(t)
	reg := blogRegistry(t)

	cols := []string{
		"a0__id", "a0__author_id", "a0__title", "a0__deleted_at",
		"a1__id", "a1__post_id", "a1__author_id", "a1__body", "a1__approved",
	}
	mock.ExpectQuery(postCommentsJoinLoadSQL).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), int64(1), "hello", nil, int64(2), int64(1), int64(1), "thanks", true).
			AddRow(int64(1), int64(1), "hello", nil, int64(1), int64(1), int64(2), "nice", true).
			AddRow(int64(2), int64(1), "world", nil, nil, nil, nil, nil, nil))

	posts, err := query.New(reg, "Post", query.WithDB(db), query.WithLoader(NewLoader())).
		JoinLoad("comments").
		All(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)

	comments := posts[0].Many("comments")
	require.Len(t, comments, 2)
	assert.Equal(t, "2", comments[0].Key)
	assert.Equal(t, "1", comments[1].Key)
	assert.Equal(t, "comments", comments[0].Alias)
	assert.True(t, posts[0].Frozen("comments"))

	// a null child key marks the association loaded and empty
	assert.True(t, posts[1].Loaded("comments"))
	assert.Empty(t, posts[1].Many("comments"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinLoad_Errors(t *testing.T) {
	reg := blogRegistry(t)
	ctx := context.Background()
	loader := NewLoader()

	tests := []struct {
		name  string
		query query.Query
		want  error
	}{
		{"limit", query.New(reg, "Post").JoinLoad("comments").Limit(5), query.ErrJoinLoadWithLimitOrOffset},
		{"offset", query.New(reg, "Post").JoinLoad("comments").Offset(5), query.ErrJoinLoadWithLimitOrOffset},
		{"polymorphic belongs_to", query.New(reg, "Picture").JoinLoad("imageable"), schema.ErrCannotJoinPolymorphicBelongsTo},
		{"missing association", query.New(reg, "Post").JoinLoad("nope"), schema.ErrJoinAttemptedOnMissingAssociation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.JoinLoad(ctx, tt.query)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestJoinLoad_NoColumns(t *testing.T) {
	reg := blogRegistry(t)
	require.NoError(t, reg.Register(schema.NewModel("Badge")))

	_, err := NewLoader().JoinLoad(context.Background(), query.New(reg, "Badge").JoinLoad())
	assert.ErrorIs(t, err, query.ErrNoColumns)
}

func TestJoinLoad_DropsDistinct(t *testing.T) {
	db, mock := setupTestDB(t)
	reg := blogRegistry(t)
	core, logs := observer.New(zapcore.WarnLevel)

	mock.ExpectQuery(`SELECT "tags"."id" AS "a0__id", "tags"."name" AS "a0__name" FROM "tags" ORDER BY "tags"."name" ASC, "tags"."id" ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"a0__id", "a0__name"}).AddRow(int64(1), "go"))

	loader := NewLoader(WithLogger(zap.New(core)))
	tags, err := loader.JoinLoad(context.Background(),
		query.New(reg, "Tag", query.WithDB(db)).Distinct("name").Order("name", query.Asc))
	require.NoError(t, err)
	assert.Len(t, tags, 1)
	assert.Equal(t, 1, logs.FilterMessageSnippet("distinct").Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkName(t *testing.T) {
	assert.Equal(t, "comments", linkName("comments"))
	assert.Equal(t, "author", linkName("posts.comments.author"))
}
