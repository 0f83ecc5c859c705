package query

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/conduit-lang/assoc/internal/orm/clause"
)

// SelectItem is one entry of a select list
type SelectItem struct {
	Col clause.Column
	As  string

	// Agg wraps the column in an aggregate, e.g. COUNT. An empty column
	// name aggregates over *.
	Agg         string
	AggDistinct bool

	// Literal is written verbatim instead of a column
	Literal string
}

func (s SelectItem) render(b *clause.Builder) {
	switch {
	case s.Literal != "":
		b.WriteString(s.Literal)
	case s.Agg != "":
		b.WriteString(s.Agg + "(")
		if s.AggDistinct {
			b.WriteString("DISTINCT ")
		}
		if s.Col.Name == "" {
			b.WriteString("*")
		} else {
			s.Col.Render(b)
		}
		b.WriteString(")")
	case s.Col.Name == "*":
		b.Ident(s.Col.Table)
		b.WriteString(".*")
	default:
		s.Col.Render(b)
	}
	if s.As != "" {
		b.WriteString(" AS ")
		b.Ident(s.As)
	}
}

// OrderItem is one ORDER BY term
type OrderItem struct {
	Col  clause.Column
	Desc bool
}

// Statement is an assembled SELECT. Strategies adjust its fields before
// rendering; the zero Limit/Offset of -1 means none.
type Statement struct {
	Distinct   bool
	DistinctOn []clause.Column
	Select     []SelectItem
	From       string
	Alias      string
	Joins      []Join
	Where      clause.Expr
	OrderBy    []OrderItem
	Limit      int
	Offset     int
}

// Render renders the statement for dialect d
func (s *Statement) Render(d clause.Dialect) (string, []any, error) {
	b := clause.NewBuilder(d)
	if err := s.write(b); err != nil {
		return "", nil, err
	}
	return b.String(), b.Args(), nil
}

// RenderSubquery lets a statement be used as an IN (...) where value
func (s *Statement) RenderSubquery(b *clause.Builder) error {
	return s.write(b)
}

func (s *Statement) write(b *clause.Builder) error {
	b.WriteString("SELECT ")
	if len(s.DistinctOn) > 0 && b.Dialect().DistinctOn() {
		b.WriteString("DISTINCT ON (")
		for i, c := range s.DistinctOn {
			if i > 0 {
				b.WriteString(", ")
			}
			c.Render(b)
		}
		b.WriteString(") ")
	} else if s.Distinct {
		b.WriteString("DISTINCT ")
	}

	if len(s.Select) == 0 {
		return fmt.Errorf("statement on %s selects nothing", s.From)
	}
	for i, item := range s.Select {
		if i > 0 {
			b.WriteString(", ")
		}
		item.render(b)
	}

	b.WriteString(" FROM ")
	b.Ident(s.From)
	if s.Alias != "" && s.Alias != s.From {
		b.WriteString(" AS ")
		b.Ident(s.Alias)
	}

	for _, j := range s.Joins {
		b.WriteString(" " + j.Type.String() + " JOIN ")
		b.Ident(j.Table)
		b.WriteString(" AS ")
		b.Ident(j.Alias)
		b.WriteString(" ON ")
		if j.On == nil {
			b.WriteString("TRUE")
			continue
		}
		if err := j.On.Render(b); err != nil {
			return err
		}
	}

	if s.Where != nil {
		b.WriteString(" WHERE ")
		if err := s.Where.Render(b); err != nil {
			return err
		}
	}

	if len(s.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range s.OrderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			clause.Order{Column: o.Col.Name, Desc: o.Desc}.Render(b, o.Col.Table)
		}
	}

	if s.Limit >= 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(s.Limit))
	}
	if s.Offset >= 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(s.Offset))
	}
	return nil
}

// Plan resolves the query's joins and assembles its base statement:
// every root column, the root's default scopes and where clauses, the
// caller's order followed by association directives, limit and offset.
// Extra nodes are left-joined for loading.
func (q Query) Plan(load ...*PathNode) (*Statement, *Resolution, error) {
	res, err := q.Resolve(load...)
	if err != nil {
		return nil, nil, err
	}

	where, err := q.rootWhere(res.Root.Alias)
	if err != nil {
		return nil, nil, err
	}

	st := &Statement{
		Select: []SelectItem{{Col: clause.Column{Table: res.Root.Alias, Name: "*"}}},
		From:   q.model.Table,
		Alias:  res.Root.Alias,
		Joins:  res.Joins,
		Where:  where,
		Limit:  q.limit,
		Offset: q.offset,
	}

	for _, col := range q.distinct {
		st.DistinctOn = append(st.DistinctOn, clause.Col(res.Root.Alias, col))
	}
	st.OrderBy = q.orderItems(res.Root.Alias)
	for _, n := range res.Nodes() {
		if n.Assoc == nil || !n.Assoc.ToMany() {
			continue
		}
		for _, col := range n.DistinctOn {
			st.DistinctOn = append(st.DistinctOn, clause.Col(n.Alias, col))
		}
		for _, o := range n.Order {
			st.OrderBy = append(st.OrderBy, OrderItem{Col: clause.Col(n.Alias, o.Column), Desc: o.Desc})
		}
	}

	if len(st.DistinctOn) > 0 {
		if !q.dialect.DistinctOn() {
			q.logger.Warn("dialect has no DISTINCT ON; distinct directive ignored")
			st.DistinctOn = nil
		} else {
			// DISTINCT ON expressions must lead the ORDER BY
			lead := make([]OrderItem, 0, len(st.DistinctOn)+len(st.OrderBy))
			for _, c := range st.DistinctOn {
				lead = append(lead, OrderItem{Col: c})
			}
			st.OrderBy = append(lead, st.OrderBy...)
		}
	}
	return st, res, nil
}

func (q Query) orderItems(alias string) []OrderItem {
	items := make([]OrderItem, 0, len(q.order))
	for _, o := range q.order {
		items = append(items, OrderItem{Col: clause.Col(alias, o.Column), Desc: o.Desc})
	}
	return items
}

// rootWhere compiles the root's default scopes and where terms
func (q Query) rootWhere(alias string) (clause.Expr, error) {
	var parts []clause.Expr

	if q.model.IsSTIChild() {
		parts = append(parts, clause.Compare{Col: clause.Col(alias, q.model.STIColumn), Op: "=", Value: q.model.Name})
	}

	opts := clause.Options{Alias: alias, AllowSimilarity: true, Passthrough: q.passthrough}
	for _, s := range q.model.Scopes() {
		if q.scopes.skip(s.Name, false) {
			continue
		}
		scopeOpts := opts
		scopeOpts.Negate = s.Not
		e, err := clause.Compile(s.Where, scopeOpts)
		if err != nil {
			return nil, fmt.Errorf("%s default scope %s: %w", q.model.Name, s.Name, err)
		}
		parts = append(parts, e)
	}

	e, err := compileTerms(q.where, opts)
	if err != nil {
		return nil, err
	}
	parts = append(parts, e)
	return clause.And(parts...), nil
}

// ToSQL compiles the query's main statement without running it
func (q Query) ToSQL() (string, []any, error) {
	st, _, err := q.Plan()
	if err != nil {
		return "", nil, err
	}
	return st.Render(q.dialect)
}

// Select returns a subquery selecting col, usable as a where value
func (q Query) Select(col string) clause.Subquery {
	return subquery{q: q, col: col}
}

type subquery struct {
	q   Query
	col string
}

func (s subquery) RenderSubquery(b *clause.Builder) error {
	st, res, err := s.q.Plan()
	if err != nil {
		return err
	}
	st.Select = []SelectItem{{Col: clause.Col(res.Root.Alias, s.col)}}
	st.OrderBy = nil
	st.DistinctOn = nil
	return st.write(b)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
