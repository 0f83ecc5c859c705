package commands

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	color.NoColor = true
}

// run executes the root command with args and returns stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")

	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", writeConfig(t)}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig writes a config file that only sets the log level
func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assoc.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: error\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "assoc" {
		t.Errorf("expected Use to be 'assoc', got %s", cmd.Use)
	}
	if cmd.Short == "" || cmd.Long == "" {
		t.Error("expected Short and Long descriptions to be set")
	}

	expectedCommands := []string{"version", "sql", "query", "validate"}
	for _, expected := range expectedCommands {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected command %s to be registered", expected)
		}
	}

	for _, flag := range []string{"config", "models", "database-url", "log-level"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("expected persistent flag --%s", flag)
		}
	}
}

func TestNewVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	BuildDate = "2025-01-01"
	GoVersion = "go1.23"

	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{"1.0.0-test", "abc123", "2025-01-01", "go1.23"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected version output to contain %q, got %q", want, out)
		}
	}
}

func TestSQLCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "inner join",
			args: []string{"sql", "Post", "--join", "comments"},
			want: []string{`SELECT "posts".* FROM "posts" INNER JOIN "comments" AS "comments" ON "comments"."post_id" = "posts"."id" ORDER BY "comments"."id" ASC`},
		},
		{
			name: "filters and sort",
			args: []string{"sql", "Post", "--left-join", "author", "-f", "status=published", "-s", "-createdAt"},
			want: []string{
				`LEFT JOIN "authors" AS "author" ON "author"."id" = "posts"."author_id" WHERE "posts"."status" = $1 ORDER BY "posts"."created_at" DESC`,
				`$1 = "published"`,
			},
		},
		{
			name: "sqlite dialect",
			args: []string{"sql", "Post", "-f", "id=1,2", "--dialect", "sqlite3"},
			want: []string{`WHERE "posts"."id" IN (?, ?)`},
		},
	}

	models := filepath.Join("testdata", "models.yaml")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append(tt.args, "--models", models)...)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("expected output to contain %q, got %q", want, out)
				}
			}
		})
	}
}

func TestSQLCommand_Errors(t *testing.T) {
	models := filepath.Join("testdata", "models.yaml")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown association", []string{"sql", "Post", "--join", "likes"}},
		{"unknown model", []string{"sql", "Widget"}},
		{"bad filter", []string{"sql", "Post", "-f", "status"}},
		{"undeclared column", []string{"sql", "Post", "-f", "password=x"}},
		{"bad dialect", []string{"sql", "Post", "--dialect", "oracle"}},
		{"missing models file", []string{"sql", "Post", "--models", "testdata/nope.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--models", models}, tt.args...)
			if _, err := run(t, args...); err == nil {
				t.Errorf("expected an error for %v", tt.args)
			}
		})
	}
}

func TestQueryCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, stmt := range []string{
		`CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE posts (id INTEGER PRIMARY KEY, author_id INTEGER, title TEXT, status TEXT, created_at TEXT)`,
		`CREATE TABLE comments (id INTEGER PRIMARY KEY, post_id INTEGER, body TEXT)`,
		`INSERT INTO authors VALUES (1, 'ann')`,
		`INSERT INTO posts VALUES (1, 1, 'hello', 'published', '2024-01-01')`,
		`INSERT INTO comments VALUES (1, 1, 'nice')`,
	} {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	conn.Close()

	common := []string{"--models", filepath.Join("testdata", "models.yaml"), "--database-url", "sqlite3://" + path}

	t.Run("preload", func(t *testing.T) {
		out, err := run(t, append(common, "query", "Author", "--include", "posts.comments")...)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, want := range []string{"model: Author", "name: ann", "title: hello", "body: nice"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("join-load", func(t *testing.T) {
		out, err := run(t, append(common, "query", "Author", "--join-load", "posts.comments")...)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "body: nice") {
			t.Errorf("expected join-loaded comments, got:\n%s", out)
		}
	})

	t.Run("count", func(t *testing.T) {
		out, err := run(t, append(common, "query", "Post", "--join", "comments", "--count")...)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if strings.TrimSpace(out) != "1" {
			t.Errorf("expected count 1, got %q", out)
		}
	})

	t.Run("no database", func(t *testing.T) {
		_, err := run(t, "--models", filepath.Join("testdata", "models.yaml"), "query", "Author")
		if err == nil {
			t.Error("expected an error without a database URL")
		}
	})
}

func TestValidateCommand(t *testing.T) {
	out, err := run(t, "--models", filepath.Join("testdata", "models.yaml"), "validate")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "3 model(s) valid") {
		t.Errorf("expected success summary, got %q", out)
	}

	out, err = run(t, "--models", filepath.Join("testdata", "broken.yaml"), "validate")
	if err == nil {
		t.Fatal("expected an error for a broken association")
	}
	if !strings.Contains(out, "widgets") {
		t.Errorf("expected the broken association in the report, got %q", out)
	}
}
