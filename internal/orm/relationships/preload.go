package relationships

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/conduit-lang/assoc/internal/orm/clause"
	"github.com/conduit-lang/assoc/internal/orm/query"
	"github.com/conduit-lang/assoc/internal/orm/record"
	"github.com/conduit-lang/assoc/internal/orm/schema"
)

// Preload hydrates q's preload tree onto parents, one statement per level
// and key chunk. Parents must share one graph. Children hydrated before a
// failing level stay attached.
func (l *Loader) Preload(ctx context.Context, q query.Query, parents []*record.Record) error {
	if err := q.Err(); err != nil {
		return err
	}
	if len(parents) == 0 {
		return nil
	}
	g := parents[0].Graph()
	for _, p := range parents[1:] {
		if p.Graph() != g {
			return ErrForeignParents
		}
	}
	return l.preloadLevel(ctx, q, q.Model(), parents, q.PreloadTree(), parents[0].Alias, 1)
}

func (l *Loader) preloadLevel(ctx context.Context, q query.Query, model *schema.Model, parents []*record.Record, nodes []*query.PathNode, path string, depth int) error {
	if len(nodes) == 0 || len(parents) == 0 {
		return nil
	}
	if depth > l.maxDepth {
		return fmt.Errorf("%w: %s at depth %d", ErrMaxDepthExceeded, path, depth)
	}

	for _, node := range nodes {
		a, ok := model.Association(node.Name)
		if !ok {
			return &schema.AssociationError{Err: schema.ErrJoinAttemptedOnMissingAssociation, Model: model.Name, Association: node.Name}
		}
		childPath := joinPath(path, node.Key())

		var (
			groups map[string][]*record.Record
			err    error
		)
		if a.IsPolymorphicBelongsTo() {
			groups, err = l.preloadPolymorphic(ctx, q, model, a, parents, node, childPath)
		} else {
			groups, err = l.preloadAssociation(ctx, q, model, a, parents, node, childPath)
		}
		if err != nil {
			// a failed level is left unloaded; finished levels stay attached
			for _, p := range parents {
				p.Unload(node.Key())
			}
			return err
		}

		if len(node.Children) == 0 {
			continue
		}
		for _, name := range sortedGroupNames(groups) {
			target, err := q.Registry().Model(name)
			if err != nil {
				return err
			}
			if err := l.preloadLevel(ctx, q, target, groups[name], node.Children, childPath, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// preloadAssociation loads a joinable association by joining from the
// parent table and binding the distinct parent keys.
func (l *Loader) preloadAssociation(ctx context.Context, q query.Query, model *schema.Model, a *schema.Association, parents []*record.Record, node *query.PathNode, childPath string) (map[string][]*record.Record, error) {
	link := node.Key()
	byKey := make(map[string]*record.Record, len(parents))
	keys := make([]any, 0, len(parents))
	for _, p := range parents {
		p.Init(link, a.ToMany())
		if _, seen := byKey[p.Key]; seen {
			continue
		}
		byKey[p.Key] = p
		keys = append(keys, p.ID())
	}

	dq := q.Derive(model.Name).
		RemoveAllDefaultScopesExceptOnAssociations().
		JoinNodes(node.Leaf())

	groups := make(map[string][]*record.Record)
	chunks := chunk(keys, l.batchSize)
	l.logger.Debug("preloading association",
		zap.String("model", model.Name),
		zap.String("path", childPath),
		zap.Int("parents", len(keys)),
		zap.Int("statements", len(chunks)))

	for _, keys := range chunks {
		st, target, err := l.preloadStatement(q, dq, model, keys)
		if err != nil {
			return groups, err
		}
		if err := l.hydrateLevel(ctx, dq, st, target, a, byKey, link, childPath, groups); err != nil {
			return groups, err
		}
	}

	for _, p := range parents {
		p.Freeze(link)
	}
	return groups, nil
}

func (l *Loader) preloadStatement(q, dq query.Query, model *schema.Model, keys []any) (*query.Statement, *query.Node, error) {
	st, res, err := dq.Plan()
	if err != nil {
		return nil, nil, err
	}
	nodes := res.Nodes()
	if len(nodes) == 0 {
		return nil, nil, fmt.Errorf("preload of %s resolved no association", model.Name)
	}
	target := nodes[0]
	rootKey := clause.Col(res.Root.Alias, model.PrimaryKey)

	st.Select = []query.SelectItem{{Col: rootKey, As: parentKeyColumn}}
	if len(target.Model.Columns) == 0 {
		st.Select = append(st.Select, query.SelectItem{Col: clause.Col(target.Alias, "*")})
	} else {
		for _, col := range target.Model.Columns {
			st.Select = append(st.Select, query.SelectItem{Col: clause.Col(target.Alias, col)})
		}
	}
	for _, tc := range target.Through {
		st.Select = append(st.Select, query.SelectItem{Col: clause.Col(tc.Alias, tc.Column), As: throughPrefix + tc.Column})
	}

	st.Where = clause.And(st.Where, clause.Keys{Col: rootKey, Keys: keys})
	st.DistinctOn = nil
	st.OrderBy = nil
	if len(target.DistinctOn) > 0 && q.Dialect().DistinctOn() {
		// distinct per parent, not across the chunk
		st.DistinctOn = append(st.DistinctOn, rootKey)
		for _, col := range target.DistinctOn {
			st.DistinctOn = append(st.DistinctOn, clause.Col(target.Alias, col))
		}
		for _, c := range st.DistinctOn {
			st.OrderBy = append(st.OrderBy, query.OrderItem{Col: c})
		}
	}
	st.OrderBy = append(st.OrderBy, keyedOrder(target)...)
	st.Limit, st.Offset = -1, -1
	return st, target, nil
}

func (l *Loader) hydrateLevel(ctx context.Context, dq query.Query, st *query.Statement, target *query.Node, a *schema.Association, byKey map[string]*record.Record, link, childPath string, groups map[string][]*record.Record) error {
	rows, err := dq.Run(ctx, st)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	for rows.Next() {
		values, err := query.ScanRow(rows, len(cols))
		if err != nil {
			return err
		}

		var parentKey any
		row := make(map[string]any, len(cols))
		through := make(map[string]any)
		for i, c := range cols {
			switch {
			case c == parentKeyColumn:
				parentKey = values[i]
			case len(c) > len(throughPrefix) && c[:len(throughPrefix)] == throughPrefix:
				through[c[len(throughPrefix):]] = values[i]
			default:
				row[c] = values[i]
			}
		}

		key, err := record.KeyString(parentKey)
		if err != nil {
			return err
		}
		parent, ok := byKey[key]
		if !ok {
			continue
		}

		child, created, err := parent.Graph().Build(childPath, target.Model.Name, target.Model.PrimaryKey, row)
		if err != nil {
			return err
		}
		for _, tc := range target.Through {
			child.SetThrough(tc.Column, through[tc.Column])
		}
		if created {
			groups[target.Model.Name] = append(groups[target.Model.Name], child)
		}

		if a.ToMany() {
			if err := parent.Append(link, child); err != nil {
				return err
			}
		} else if _, err := parent.SetOne(link, child); err != nil {
			return err
		}
	}
	return rows.Err()
}

// preloadPolymorphic loads a polymorphic belongs-to: parents are grouped by
// discriminator and each concrete model is queried once per key chunk.
func (l *Loader) preloadPolymorphic(ctx context.Context, q query.Query, model *schema.Model, a *schema.Association, parents []*record.Record, node *query.PathNode, childPath string) (map[string][]*record.Record, error) {
	link := node.Key()
	if node.HasConditions() {
		l.logger.Warn("ignoring path conditions on polymorphic preload", zap.String("path", childPath))
	}
	// path conditions are ignored here, so a required value can never be supplied
	if cols := a.RequiredColumns(); len(cols) > 0 {
		return nil, &schema.AssociationError{
			Err:         schema.ErrMissingRequiredAssociationAndClause,
			Model:       model.Name,
			Association: a.Name,
			Column:      cols[0],
		}
	}

	byType := make(map[string][]*record.Record)
	for _, p := range parents {
		p.Init(link, false)
		typ, fk := p.Get(a.TypeColumn), p.Get(a.ForeignKey)
		if typ == nil || fk == nil {
			continue
		}
		name := fmt.Sprint(typ)
		byType[name] = append(byType[name], p)
	}

	groups := make(map[string][]*record.Record)
	for _, name := range sortedGroupNames(byType) {
		target, err := q.Registry().Model(name)
		if err != nil {
			return groups, fmt.Errorf("%w: %s.%s = %s", ErrUnknownPolymorphicType, a.Name, a.TypeColumn, name)
		}
		alias := childPath + "#" + target.Name

		seen := make(map[string]bool)
		var keys []any
		for _, p := range byType[name] {
			k, err := record.KeyString(p.Get(a.ForeignKey))
			if err != nil || seen[k] {
				continue
			}
			seen[k] = true
			keys = append(keys, p.Get(a.ForeignKey))
		}

		l.logger.Debug("preloading polymorphic association",
			zap.String("path", childPath),
			zap.String("type", target.Name),
			zap.Int("keys", len(keys)))

		for _, keys := range chunk(keys, l.batchSize) {
			tq := q.Derive(target.Name).
				WithAssociationScopes(a.WithoutDefaultScopes...).
				Where(clause.Map{target.PrimaryKey: keys})
			if len(a.And) > 0 {
				tq = tq.Where(a.And)
			}
			if len(a.AndNot) > 0 {
				tq = tq.WhereNot(a.AndNot)
			}
			if len(a.AndAny) > 0 {
				tq = tq.WhereAny(a.AndAny...)
			}
			st, res, err := tq.Plan()
			if err != nil {
				return groups, err
			}
			st.OrderBy = []query.OrderItem{{Col: clause.Col(res.Root.Alias, target.PrimaryKey)}}
			st.DistinctOn = nil

			children, err := l.fetchInto(ctx, tq, st, parents[0].Graph(), alias, target)
			if err != nil {
				return groups, err
			}
			groups[target.Name] = append(groups[target.Name], children...)
		}

		g := parents[0].Graph()
		for _, p := range byType[name] {
			if child, ok := g.Lookup(alias, p.Get(a.ForeignKey)); ok {
				if _, err := p.SetOne(link, child); err != nil {
					return groups, err
				}
			}
		}
	}
	return groups, nil
}

func (l *Loader) fetchInto(ctx context.Context, q query.Query, st *query.Statement, g *record.Graph, alias string, model *schema.Model) ([]*record.Record, error) {
	rows, err := q.Run(ctx, st)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []*record.Record
	for rows.Next() {
		values, err := query.ScanRow(rows, len(cols))
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		rec, created, err := g.Build(alias, model.Name, model.PrimaryKey, row)
		if err != nil {
			return nil, err
		}
		if created {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

// keyedOrder is the node's directive order followed by its primary key
func keyedOrder(n *query.Node) []query.OrderItem {
	items := make([]query.OrderItem, 0, len(n.Order)+1)
	keyed := false
	for _, o := range n.Order {
		items = append(items, query.OrderItem{Col: clause.Col(n.Alias, o.Column), Desc: o.Desc})
		keyed = keyed || o.Column == n.Model.PrimaryKey
	}
	if !keyed {
		items = append(items, query.OrderItem{Col: clause.Col(n.Alias, n.Model.PrimaryKey)})
	}
	return items
}

func sortedGroupNames(groups map[string][]*record.Record) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
