package orm

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/conduit-lang/assoc/internal/orm/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	if err := schema.LoadInto(reg, "testdata/models.yaml"); err != nil {
		t.Fatalf("failed to load models: %v", err)
	}
	return reg
}

func TestParseParams(t *testing.T) {
	values := url.Values{
		"filter[status]":   {"draft", "published"},
		"filter[authorId]": {"1,2"},
		"sort":             {"-createdAt, title"},
		"include":          {"comments,author"},
		"limit":            {"10"},
		"page":             {"3"},
	}

	p, err := ParseParams(values)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if p.Filter["status"] != "published" {
		t.Errorf("Expected last filter value 'published', got: %s", p.Filter["status"])
	}
	if p.Filter["authorId"] != "1,2" {
		t.Errorf("Expected filter '1,2', got: %s", p.Filter["authorId"])
	}
	if len(p.Sort) != 2 || p.Sort[0] != "-createdAt" || p.Sort[1] != "title" {
		t.Errorf("Unexpected sort list: %v", p.Sort)
	}
	if len(p.Include) != 2 {
		t.Errorf("Expected 2 includes, got: %v", p.Include)
	}
	if p.Limit != 10 || p.Offset != 0 {
		t.Errorf("Expected limit 10 offset 0, got %d/%d", p.Limit, p.Offset)
	}
}

func TestParseParams_InvalidPage(t *testing.T) {
	for _, v := range []url.Values{{"limit": {"ten"}}, {"offset": {"-1"}}} {
		if _, err := ParseParams(v); !errors.Is(err, ErrInvalidPage) {
			t.Errorf("Expected ErrInvalidPage for %v, got: %v", v, err)
		}
	}
}

func TestParams_Apply(t *testing.T) {
	o := New(testRegistry(t), nil)

	p := Params{
		Filter: map[string]string{"status": "published", "authorId": "1,2"},
		Sort:   []string{"-createdAt", "title"},
		Limit:  10,
	}
	q, err := p.Apply(o.Query("Post"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	sqlText, args, err := q.ToSQL()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := `SELECT "posts".* FROM "posts" WHERE "posts"."author_id" IN ($1, $2) AND "posts"."status" = $3 ORDER BY "posts"."created_at" DESC, "posts"."title" ASC LIMIT 10`
	if sqlText != expected {
		t.Errorf("Expected SQL %q, got %q", expected, sqlText)
	}
	if got := fmt.Sprint(args); got != "[1 2 published]" {
		t.Errorf("Expected args [1 2 published], got %s", got)
	}
}

func TestParams_ApplyNullFilter(t *testing.T) {
	o := New(testRegistry(t), nil)

	q, err := Params{Filter: map[string]string{"title": "null"}}.Apply(o.Query("Post"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	sqlText, _, _ := q.ToSQL()
	expected := `SELECT "posts".* FROM "posts" WHERE "posts"."title" IS NULL`
	if sqlText != expected {
		t.Errorf("Expected SQL %q, got %q", expected, sqlText)
	}
}

func TestParams_ApplyIncludes(t *testing.T) {
	o := New(testRegistry(t), nil)

	q, err := Params{Include: []string{"posts.comments", "posts.author"}}.Apply(o.Query("Author"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	tree := q.PreloadTree()
	if len(tree) != 1 {
		t.Fatalf("Expected one merged include root, got %d", len(tree))
	}
	if got := tree[0].String(); got != "posts(comments, author)" {
		t.Errorf("Expected merged tree 'posts(comments, author)', got %s", got)
	}
}

func TestParams_ApplyInvalid(t *testing.T) {
	o := New(testRegistry(t), nil)

	tests := []struct {
		name   string
		params Params
		want   error
	}{
		{"filter", Params{Filter: map[string]string{"password": "x", "status": "a"}}, ErrInvalidFilterField},
		{"sort", Params{Sort: []string{"-secret"}}, ErrInvalidSortField},
		{"include", Params{Include: []string{"comments.likes"}}, ErrInvalidInclude},
		{"empty include segment", Params{Include: []string{"comments..post"}}, ErrInvalidInclude},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.params.Apply(o.Query("Post"))
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got: %v", tt.want, err)
			}
		})
	}
}
