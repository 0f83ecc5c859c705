// Package query builds and runs association-aware queries.
//
// A Query is an immutable value: every builder method returns a new Query
// and leaves its receiver untouched, so a Query can be shared between
// goroutines and extended independently by each. Builder misuse is recorded
// on the returned Query and reported by the terminal call.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/assoc/internal/orm/clause"
	"github.com/conduit-lang/assoc/internal/orm/record"
	"github.com/conduit-lang/assoc/internal/orm/schema"
)

// Querier executes statements. *sql.DB, *sql.Tx and transaction.Transaction
// all satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Loader hydrates associations. It lives in its own package to keep query
// free of hydration logic.
type Loader interface {
	// Preload runs the separate-query strategy for q's preload tree against
	// caller-supplied parents
	Preload(ctx context.Context, q Query, parents []*record.Record) error
	// JoinLoad runs q with its join-load tree as a single statement
	JoinLoad(ctx context.Context, q Query) ([]*record.Record, error)
}

// Direction is an ORDER BY direction
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Option configures a new Query
type Option func(*Query)

// WithDB sets the default connection
func WithDB(db Querier) Option {
	return func(q *Query) { q.db = db }
}

// WithDialect sets the SQL dialect (PostgreSQL by default)
func WithDialect(d clause.Dialect) Option {
	return func(q *Query) { q.dialect = d }
}

// WithLogger sets the logger (a no-op logger by default)
func WithLogger(l *zap.Logger) Option {
	return func(q *Query) { q.logger = l }
}

// WithLoader sets the relationship loader used by preloads and join-loads
func WithLoader(l Loader) Option {
	return func(q *Query) { q.loader = l }
}

type scopeBypass struct {
	all              bool
	allExceptAssoc   bool
	names            []string
	namesExceptAssoc []string
}

// skip reports whether a default scope is bypassed on the root
// (onAssociation false) or on a joined association
func (s scopeBypass) skip(name string, onAssociation bool) bool {
	if s.all || contains(s.names, name) {
		return true
	}
	if onAssociation {
		return false
	}
	return s.allExceptAssoc || contains(s.namesExceptAssoc, name)
}

// Query is an immutable query descriptor
type Query struct {
	reg     *schema.Registry
	model   *schema.Model
	dialect clause.Dialect
	db      Querier
	tx      Querier
	loader  Loader
	logger  *zap.Logger

	where       []whereTerm
	innerJoins  []*PathNode
	leftJoins   []*PathNode
	preloads    []*PathNode
	joinLoads   []*PathNode
	order       []clause.Order
	distinct    []string
	limit       int
	offset      int
	passthrough map[string]any
	scopes      scopeBypass

	err error
}

// New starts a query against the named model
func New(reg *schema.Registry, model string, opts ...Option) Query {
	q := Query{
		reg:     reg,
		dialect: clause.Postgres{},
		logger:  zap.NewNop(),
		limit:   -1,
		offset:  -1,
	}
	for _, opt := range opts {
		opt(&q)
	}
	m, err := reg.Model(model)
	if err != nil {
		q.err = err
		m = schema.NewModel(model)
	}
	q.model = m
	return q
}

// Derive starts a query against another model that keeps this query's
// connection, transaction, loader, logger, passthrough values and scope
// bypass flags, but none of its clauses.
func (q Query) Derive(model string) Query {
	d := New(q.reg, model, WithDB(q.db), WithDialect(q.dialect), WithLogger(q.logger), WithLoader(q.loader))
	d.tx = q.tx
	d.passthrough = q.passthrough
	d.scopes = q.scopes
	if d.err == nil {
		d.err = q.err
	}
	return d
}

func (q Query) fail(err error) Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Err returns the first builder error recorded on the query
func (q Query) Err() error { return q.err }

// Model returns the root model
func (q Query) Model() *schema.Model { return q.model }

// Registry returns the registry the query resolves against
func (q Query) Registry() *schema.Registry { return q.reg }

// Dialect returns the SQL dialect
func (q Query) Dialect() clause.Dialect { return q.dialect }

// Logger returns the query's logger
func (q Query) Logger() *zap.Logger { return q.logger }

// PreloadTree returns the separate-query preload tree
func (q Query) PreloadTree() []*PathNode { return q.preloads }

// JoinLoadTree returns the single-query join-load tree
func (q Query) JoinLoadTree() []*PathNode { return q.joinLoads }

// OrderTerms returns the caller's ORDER BY terms
func (q Query) OrderTerms() []clause.Order { return q.order }

// LimitOffset returns the row limit and offset, -1 when unset
func (q Query) LimitOffset() (int, int) { return q.limit, q.offset }

// PassthroughValues returns the passthrough map
func (q Query) PassthroughValues() map[string]any { return q.passthrough }

// Where constrains the root with m
func (q Query) Where(m clause.Map) Query {
	q.where = appendTerm(q.where, whereTerm{kind: whereAnd, maps: []clause.Map{m.Clone()}})
	return q
}

// WhereNot constrains the root with the negation of m
func (q Query) WhereNot(m clause.Map) Query {
	q.where = appendTerm(q.where, whereTerm{kind: whereNot, maps: []clause.Map{m.Clone()}})
	return q
}

// WhereAny constrains the root with the OR of maps
func (q Query) WhereAny(maps ...clause.Map) Query {
	q.where = appendTerm(q.where, whereTerm{kind: whereAny, maps: cloneMaps(maps)})
	return q
}

// InnerJoin adds an inner-joined association path
func (q Query) InnerJoin(path ...any) Query {
	nodes, err := ParsePath(path...)
	if err != nil {
		return q.fail(err)
	}
	if q.innerJoins, err = mergePaths(q.innerJoins, nodes); err != nil {
		return q.fail(err)
	}
	return q
}

// LeftJoin adds a left-joined association path
func (q Query) LeftJoin(path ...any) Query {
	nodes, err := ParsePath(path...)
	if err != nil {
		return q.fail(err)
	}
	if q.leftJoins, err = mergePaths(q.leftJoins, nodes); err != nil {
		return q.fail(err)
	}
	return q
}

// JoinNodes inner-joins already parsed path nodes
func (q Query) JoinNodes(nodes ...*PathNode) Query {
	merged, err := mergePaths(q.innerJoins, nodes)
	if err != nil {
		return q.fail(err)
	}
	q.innerJoins = merged
	return q
}

// Preload hydrates an association path with one query per level
func (q Query) Preload(path ...any) Query {
	nodes, err := ParsePath(path...)
	if err != nil {
		return q.fail(err)
	}
	if q.preloads, err = mergePaths(q.preloads, nodes); err != nil {
		return q.fail(err)
	}
	return q
}

// PreloadNodes replaces the preload tree with already parsed nodes
func (q Query) PreloadNodes(nodes ...*PathNode) Query {
	q.preloads = nodes
	return q
}

// JoinLoad hydrates an association path with a single left-joined query
func (q Query) JoinLoad(path ...any) Query {
	nodes, err := ParsePath(path...)
	if err != nil {
		return q.fail(err)
	}
	if q.joinLoads, err = mergePaths(q.joinLoads, nodes); err != nil {
		return q.fail(err)
	}
	return q
}

// Order appends an ORDER BY term. Bare columns refer to the root.
func (q Query) Order(col string, dir Direction) Query {
	switch Direction(strings.ToLower(string(dir))) {
	case Asc, "":
		q.order = appendOrder(q.order, clause.Order{Column: col})
	case Desc:
		q.order = appendOrder(q.order, clause.Order{Column: col, Desc: true})
	default:
		return q.fail(fmt.Errorf("%w: %s %s", clause.ErrInvalidOrder, col, dir))
	}
	return q
}

// Unordered drops every ORDER BY term
func (q Query) Unordered() Query {
	q.order = nil
	return q
}

// Distinct selects distinct rows on col (DISTINCT ON where supported)
func (q Query) Distinct(col string) Query {
	q.distinct = append(append(make([]string, 0, len(q.distinct)+1), q.distinct...), col)
	return q
}

// Limit caps the number of rows
func (q Query) Limit(n int) Query {
	q.limit = n
	return q
}

// Offset skips rows
func (q Query) Offset(n int) Query {
	q.offset = n
	return q
}

// Passthrough merges values consumed by clause.Passthrough sentinels
func (q Query) Passthrough(values map[string]any) Query {
	merged := make(map[string]any, len(q.passthrough)+len(values))
	for k, v := range q.passthrough {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}
	q.passthrough = merged
	return q
}

// RemoveDefaultScope bypasses the named default scope everywhere
func (q Query) RemoveDefaultScope(name string) Query {
	q.scopes.names = append(append(make([]string, 0, len(q.scopes.names)+1), q.scopes.names...), name)
	return q
}

// RemoveDefaultScopeExceptOnAssociations bypasses the named default scope
// on the root only
func (q Query) RemoveDefaultScopeExceptOnAssociations(name string) Query {
	q.scopes.namesExceptAssoc = append(append(make([]string, 0, len(q.scopes.namesExceptAssoc)+1), q.scopes.namesExceptAssoc...), name)
	return q
}

// RemoveAllDefaultScopes bypasses every default scope
func (q Query) RemoveAllDefaultScopes() Query {
	q.scopes.all = true
	return q
}

// RemoveAllDefaultScopesExceptOnAssociations bypasses every default scope
// on the root only
func (q Query) RemoveAllDefaultScopesExceptOnAssociations() Query {
	q.scopes.allExceptAssoc = true
	return q
}

// WithAssociationScopes makes the root's default scopes behave as the scopes
// of an association target: root-only bypasses no longer apply and skip
// names are bypassed too.
func (q Query) WithAssociationScopes(skip ...string) Query {
	names := make([]string, 0, len(q.scopes.names)+len(skip))
	names = append(names, q.scopes.names...)
	names = append(names, skip...)
	q.scopes = scopeBypass{all: q.scopes.all, names: names}
	return q
}

// Txn routes every statement of the query through tx
func (q Query) Txn(tx Querier) Query {
	q.tx = tx
	return q
}

// WithLoader returns the query with a relationship loader
func (q Query) WithLoader(l Loader) Query {
	q.loader = l
	return q
}

// WithDB returns the query with a default connection
func (q Query) WithDB(db Querier) Query {
	q.db = db
	return q
}

func appendTerm(terms []whereTerm, t whereTerm) []whereTerm {
	return append(append(make([]whereTerm, 0, len(terms)+1), terms...), t)
}

// cloneMaps copies caller maps so later changes never reach the descriptor
func cloneMaps(maps []clause.Map) []clause.Map {
	out := make([]clause.Map, len(maps))
	for i, m := range maps {
		out[i] = m.Clone()
	}
	return out
}

func appendOrder(orders []clause.Order, o clause.Order) []clause.Order {
	return append(append(make([]clause.Order, 0, len(orders)+1), orders...), o)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
