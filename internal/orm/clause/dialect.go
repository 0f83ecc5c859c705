// Package clause compiles where statements into boolean SQL expressions.
//
// A where statement is a column -> value map. Values carry their own meaning:
// nil is NULL, slices are membership tests, Range values are bounds, Fuzzy
// values are trigram similarity operators, and the Required / Passthrough /
// Undefined sentinels mark values that must come from somewhere else. Compile
// turns a map into an Expr tree which renders against a Builder for a given
// Dialect.
package clause

import (
	"strconv"

	"github.com/lib/pq"
)

// Dialect describes how a target database spells placeholders, identifiers
// and bound key lists.
type Dialect interface {
	Name() string
	Placeholder(n int) string
	Quote(ident string) string
	// KeyList renders a membership test of col against a bound list of keys.
	KeyList(b *Builder, col Column, keys []any)
	// DistinctOn reports whether SELECT DISTINCT ON (...) is supported.
	DistinctOn() bool
}

// Postgres is the PostgreSQL dialect. Key lists bind as a single array
// parameter compared with = ANY($n).
type Postgres struct{}

// Name returns the dialect name
func (Postgres) Name() string { return "postgres" }

// Placeholder returns $n
func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// Quote quotes an identifier
func (Postgres) Quote(ident string) string { return pq.QuoteIdentifier(ident) }

// DistinctOn is supported by PostgreSQL
func (Postgres) DistinctOn() bool { return true }

// KeyList renders col = ANY($n)
func (Postgres) KeyList(b *Builder, col Column, keys []any) {
	if len(keys) == 0 {
		b.WriteString("FALSE")
		return
	}
	col.Render(b)
	b.WriteString(" = ANY(")
	b.Arg(keyArray(keys))
	b.WriteString(")")
}

// SQLite is the SQLite dialect. Key lists expand into IN (?, ?, ...).
type SQLite struct{}

// Name returns the dialect name
func (SQLite) Name() string { return "sqlite3" }

// Placeholder returns ?
func (SQLite) Placeholder(int) string { return "?" }

// Quote quotes an identifier
func (SQLite) Quote(ident string) string { return pq.QuoteIdentifier(ident) }

// DistinctOn is not supported by SQLite
func (SQLite) DistinctOn() bool { return false }

// KeyList renders col IN (?, ?, ...)
func (SQLite) KeyList(b *Builder, col Column, keys []any) {
	if len(keys) == 0 {
		b.WriteString("FALSE")
		return
	}
	col.Render(b)
	b.WriteString(" IN (")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Arg(k)
	}
	b.WriteString(")")
}

// DialectFor returns the dialect matching a database/sql driver name.
func DialectFor(driver string) Dialect {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite{}
	default:
		return Postgres{}
	}
}

// keyArray binds keys with the narrowest pq array type that fits them.
func keyArray(keys []any) any {
	ints := make([]int64, 0, len(keys))
	strs := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := k.(type) {
		case int:
			ints = append(ints, int64(v))
		case int32:
			ints = append(ints, int64(v))
		case int64:
			ints = append(ints, v)
		case string:
			strs = append(strs, v)
		case []byte:
			strs = append(strs, string(v))
		default:
			return pq.GenericArray{A: keys}
		}
	}
	switch {
	case len(ints) == len(keys):
		return pq.Int64Array(ints)
	case len(strs) == len(keys):
		return pq.StringArray(strs)
	default:
		return pq.GenericArray{A: keys}
	}
}
