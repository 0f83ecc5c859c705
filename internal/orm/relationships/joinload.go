package relationships

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/assoc/internal/orm/clause"
	"github.com/conduit-lang/assoc/internal/orm/query"
	"github.com/conduit-lang/assoc/internal/orm/record"
)

// loadColumn is one projected column of a join-load statement
type loadColumn struct {
	slot    int
	column  string
	through bool
}

// JoinLoad runs q with its join-load tree left-joined into one statement
// and hydrates the roots and every loaded alias from each row.
func (l *Loader) JoinLoad(ctx context.Context, q query.Query) ([]*record.Record, error) {
	if err := q.Err(); err != nil {
		return nil, err
	}
	if limit, offset := q.LimitOffset(); limit >= 0 || offset >= 0 {
		return nil, query.ErrJoinLoadWithLimitOrOffset
	}

	st, res, err := q.Plan(q.JoinLoadTree()...)
	if err != nil {
		return nil, err
	}

	// slot 0 is the root
	nodes := []*query.Node{res.Root}
	for _, n := range res.Nodes() {
		if n.Load {
			nodes = append(nodes, n)
		}
	}
	slots := make(map[*query.Node]int, len(nodes))
	for i, n := range nodes {
		slots[n] = i
	}

	st.Select = st.Select[:0]
	columns := make(map[string]loadColumn)
	for i, n := range nodes {
		if len(n.Model.Columns) == 0 {
			return nil, fmt.Errorf("%w: %s", query.ErrNoColumns, n.Model.Name)
		}
		prefix := "a" + strconv.Itoa(i) + "__"
		for _, col := range n.Model.Columns {
			name := prefix + col
			st.Select = append(st.Select, query.SelectItem{Col: clause.Col(n.Alias, col), As: name})
			columns[name] = loadColumn{slot: i, column: col}
		}
		for _, tc := range n.Through {
			name := prefix + "through__" + tc.Column
			st.Select = append(st.Select, query.SelectItem{Col: clause.Col(tc.Alias, tc.Column), As: name})
			columns[name] = loadColumn{slot: i, column: tc.Column, through: true}
		}
	}

	st.OrderBy = l.joinLoadOrder(q, st, res.Root.Alias, nodes)

	rows, err := q.Run(ctx, st)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	g := record.NewGraph()
	var roots []*record.Record
	for rows.Next() {
		values, err := query.ScanRow(rows, len(names))
		if err != nil {
			return nil, err
		}

		rowValues := make([]map[string]any, len(nodes))
		through := make([]map[string]any, len(nodes))
		for i := range nodes {
			rowValues[i] = make(map[string]any, len(nodes[i].Model.Columns))
			through[i] = make(map[string]any)
		}
		for i, name := range names {
			lc, ok := columns[name]
			if !ok {
				continue
			}
			if lc.through {
				through[lc.slot][lc.column] = values[i]
			} else {
				rowValues[lc.slot][lc.column] = values[i]
			}
		}

		built := make([]*record.Record, len(nodes))
		root, created, err := g.Build("", q.Model().Name, q.Model().PrimaryKey, rowValues[0])
		if err != nil {
			return nil, err
		}
		if created {
			roots = append(roots, root)
		}
		built[0] = root

		for i, n := range nodes[1:] {
			slot := i + 1
			parent := built[slots[n.Parent]]
			if parent == nil {
				continue
			}
			link := linkName(n.Path)
			many := n.Assoc.ToMany()
			if rowValues[slot][n.Model.PrimaryKey] == nil {
				parent.Init(link, many)
				continue
			}

			child, _, err := g.Build(n.Path, n.Model.Name, n.Model.PrimaryKey, rowValues[slot])
			if err != nil {
				return nil, err
			}
			for _, tc := range n.Through {
				child.SetThrough(tc.Column, through[slot][tc.Column])
			}
			if many {
				err = parent.Append(link, child)
			} else {
				_, err = parent.SetOne(link, child)
			}
			if err != nil {
				return nil, err
			}
			built[slot] = child
		}
	}
	if err := rows.Err(); err != nil {
		return roots, err
	}

	for _, n := range nodes[1:] {
		link := linkName(n.Path)
		for _, parent := range g.Records(n.Parent.Path) {
			parent.Freeze(link)
		}
	}

	l.logger.Debug("join-loaded records",
		zap.String("model", q.Model().Name),
		zap.Int("roots", len(roots)),
		zap.Int("records", g.Len()))
	return roots, nil
}

// joinLoadOrder keeps the caller's order, then groups rows by root key and
// by each loaded alias's directive order and key, so children come out in
// the same order a preload produces. DISTINCT ON would drop child rows and
// is not applied; duplicate roots collapse in the graph instead.
func (l *Loader) joinLoadOrder(q query.Query, st *query.Statement, rootAlias string, nodes []*query.Node) []query.OrderItem {
	if len(st.DistinctOn) > 0 {
		l.logger.Warn("ignoring distinct directive in join-load", zap.String("model", q.Model().Name))
		st.DistinctOn = nil
	}

	var order []query.OrderItem
	for _, o := range q.OrderTerms() {
		order = append(order, query.OrderItem{Col: clause.Col(rootAlias, o.Column), Desc: o.Desc})
	}
	order = append(order, query.OrderItem{Col: clause.Col(rootAlias, q.Model().PrimaryKey)})

	for _, n := range nodes[1:] {
		order = append(order, keyedOrder(n)...)
	}
	return order
}

func linkName(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i+1:]
	}
	return path
}
