package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/assoc/internal/orm/clause"
	"github.com/conduit-lang/assoc/internal/orm/record"
	"github.com/conduit-lang/assoc/internal/orm/transaction"
)

// Querier picks the connection for one resolution: the query's own
// transaction, else a transaction carried by ctx, else the default
// connection.
func (q Query) Querier(ctx context.Context) (Querier, error) {
	if q.tx != nil {
		return q.tx, nil
	}
	if tx, ok := transaction.FromContext(ctx); ok {
		return tx, nil
	}
	if q.db != nil {
		return q.db, nil
	}
	return nil, ErrNoDatabase
}

// Run renders st, executes it on the resolution's connection and returns
// the rows. Driver errors are returned unchanged.
func (q Query) Run(ctx context.Context, st *Statement) (*sql.Rows, error) {
	sqlText, args, err := st.Render(q.dialect)
	if err != nil {
		return nil, err
	}
	db, err := q.Querier(ctx)
	if err != nil {
		return nil, err
	}
	q.logger.Debug("executing statement",
		zap.String("model", q.model.Name),
		zap.String("sql", sqlText),
		zap.Int("args", len(args)))
	return db.QueryContext(ctx, sqlText, args...)
}

// All runs the query and returns the hydrated root records
func (q Query) All(ctx context.Context) ([]*record.Record, error) {
	if q.err != nil {
		return nil, q.err
	}

	var roots []*record.Record
	if len(q.joinLoads) > 0 {
		if q.loader == nil {
			return nil, ErrNoLoader
		}
		var err error
		if roots, err = q.loader.JoinLoad(ctx, q); err != nil {
			return nil, err
		}
	} else {
		st, _, err := q.Plan()
		if err != nil {
			return nil, err
		}
		if roots, err = q.fetch(ctx, st, record.NewGraph()); err != nil {
			return nil, err
		}
	}

	if len(q.preloads) > 0 && len(roots) > 0 {
		if q.loader == nil {
			return nil, ErrNoLoader
		}
		if err := q.loader.Preload(ctx, q, roots); err != nil {
			return roots, err
		}
	}
	return roots, nil
}

// fetch runs st and builds one root record per distinct primary key
func (q Query) fetch(ctx context.Context, st *Statement, g *record.Graph) ([]*record.Record, error) {
	rows, err := q.Run(ctx, st)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var roots []*record.Record
	for rows.Next() {
		values, err := ScanRow(rows, len(cols))
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		rec, created, err := g.Build("", q.model.Name, q.model.PrimaryKey, row)
		if err != nil {
			return nil, err
		}
		if created {
			roots = append(roots, rec)
		}
	}
	return roots, rows.Err()
}

// First returns the first record by the query's order, or by primary key
func (q Query) First(ctx context.Context) (*record.Record, error) {
	return q.edge(ctx, false)
}

// Last returns the last record by the query's order, or by primary key
func (q Query) Last(ctx context.Context) (*record.Record, error) {
	return q.edge(ctx, true)
}

func (q Query) edge(ctx context.Context, last bool) (*record.Record, error) {
	if len(q.order) == 0 {
		q = q.Order(q.model.PrimaryKey, Asc)
	}
	if last {
		reversed := make([]clause.Order, len(q.order))
		for i, o := range q.order {
			reversed[i] = clause.Order{Column: o.Column, Desc: !o.Desc}
		}
		q.order = reversed
	}

	// A join-load cannot be limited; the first root of the full load is
	// taken instead.
	if len(q.joinLoads) == 0 {
		q = q.Limit(1)
	}

	records, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// Find returns the record with the given primary key
func (q Query) Find(ctx context.Context, key any) (*record.Record, error) {
	return q.Where(clause.Map{q.model.PrimaryKey: key}).First(ctx)
}

// Count returns the number of matching root records
func (q Query) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	st, res, err := q.Plan()
	if err != nil {
		return 0, err
	}

	item := SelectItem{Agg: "COUNT"}
	if len(res.Joins) > 0 {
		item.Col = clause.Col(res.Root.Alias, q.model.PrimaryKey)
		item.AggDistinct = true
	}
	st.Select = []SelectItem{item}
	st.OrderBy = nil
	st.DistinctOn = nil
	st.Limit, st.Offset = -1, -1

	rows, err := q.Run(ctx, st)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

// Exists reports whether any root record matches
func (q Query) Exists(ctx context.Context) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	st, _, err := q.Plan()
	if err != nil {
		return false, err
	}
	st.Select = []SelectItem{{Literal: "1"}}
	st.OrderBy = nil
	st.DistinctOn = nil
	st.Limit = 1

	rows, err := q.Run(ctx, st)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	found := rows.Next()
	return found, rows.Err()
}

// Pluck returns the values of cols for every matching row: scalars for a
// single column, []any tuples otherwise. Bare columns refer to the root;
// "alias.column" refers to a joined alias.
func (q Query) Pluck(ctx context.Context, cols ...string) ([]any, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("pluck needs at least one column")
	}
	st, res, err := q.Plan()
	if err != nil {
		return nil, err
	}
	st.Select = st.Select[:0]
	for _, c := range cols {
		st.Select = append(st.Select, SelectItem{Col: clause.Col(res.Root.Alias, c)})
	}

	rows, err := q.Run(ctx, st)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		values, err := ScanRow(rows, len(cols))
		if err != nil {
			return nil, err
		}
		if len(cols) == 1 {
			out = append(out, values[0])
		} else {
			out = append(out, values)
		}
	}
	return out, rows.Err()
}

// PluckThrough inner-joins path and plucks cols. Bare columns refer to the
// alias resolved for the last association named in the path.
func (q Query) PluckThrough(ctx context.Context, cols []string, path ...any) ([]any, error) {
	jq := q.InnerJoin(path...)
	if jq.err != nil {
		return nil, jq.err
	}

	nodes, err := ParsePath(path...)
	if err != nil {
		return nil, err
	}
	key := ""
	for len(nodes) > 0 {
		n := nodes[len(nodes)-1]
		key = joinPath(key, n.Key())
		nodes = n.Children
	}

	last := ""
	if key != "" {
		res, err := jq.Resolve()
		if err != nil {
			return nil, err
		}
		for _, n := range res.Nodes() {
			if n.Path == key {
				last = n.Alias
				break
			}
		}
	}

	qualified := make([]string, len(cols))
	for i, c := range cols {
		if last != "" && !strings.Contains(c, ".") {
			c = last + "." + c
		}
		qualified[i] = c
	}
	return jq.Pluck(ctx, qualified...)
}

// ScanRow scans the current row into n values. Driver []byte text is
// converted to string.
func ScanRow(rows *sql.Rows, n int) ([]any, error) {
	values := make([]any, n)
	ptrs := make([]any, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	return values, nil
}
