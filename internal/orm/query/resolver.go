package query

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/assoc/internal/orm/clause"
	"github.com/conduit-lang/assoc/internal/orm/schema"
)

// JoinType is the kind of SQL join emitted for a node
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// String returns the SQL keyword
func (j JoinType) String() string {
	if j == LeftJoin {
		return "LEFT"
	}
	return "INNER"
}

// Join is one emitted join clause
type Join struct {
	Type  JoinType
	Table string
	Alias string
	On    clause.Expr
}

// ThroughColumn is a through-table column projected onto a node's records
type ThroughColumn struct {
	Alias  string
	Column string
}

// Node is one resolved alias. Tree nodes mirror the requested paths; hop
// nodes are through tables materialized on the way and are not part of the
// tree.
type Node struct {
	Alias string
	// Path is the dotted chain of path keys from the root, "" for the root
	Path  string
	Model *schema.Model
	// Assoc is the association the node was requested as, nil for the root
	Assoc    *schema.Association
	Parent   *Node
	Children []*Node
	Hop      bool
	// Load marks nodes requested by a join-load tree
	Load bool

	Order      []clause.Order
	DistinctOn []string
	Through    []ThroughColumn
}

// Resolution is the alias table built for one compilation
type Resolution struct {
	Root  *Node
	Joins []Join

	// Models maps every alias to its model, Associations every non-root
	// alias to the association it was joined through
	Models       map[string]*schema.Model
	Associations map[string]*schema.Association

	nodes []*Node
}

// Nodes returns the tree nodes below the root in depth-first order
func (r *Resolution) Nodes() []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, c := range n.Children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(r.Root)
	return out
}

type edgeKey struct {
	parent string
	assoc  string
}

type resolver struct {
	reg         *schema.Registry
	scopes      scopeBypass
	passthrough map[string]any
	logger      *zap.Logger

	res     *Resolution
	used    map[string]bool
	edges   map[edgeKey]*Node
	active  map[string]bool
	loading bool
}

func newResolver(q Query) *resolver {
	root := &Node{Alias: q.model.Table, Model: q.model}
	return &resolver{
		reg:         q.reg,
		scopes:      q.scopes,
		passthrough: q.passthrough,
		logger:      q.logger,
		res: &Resolution{
			Root:         root,
			Models:       map[string]*schema.Model{root.Alias: q.model},
			Associations: make(map[string]*schema.Association),
		},
		used:   map[string]bool{root.Alias: true},
		edges:  make(map[edgeKey]*Node),
		active: make(map[string]bool),
	}
}

// Resolve compiles the inner and left join trees against the root model.
// Extra nodes are left-joined and marked for loading.
func (q Query) Resolve(load ...*PathNode) (*Resolution, error) {
	if q.err != nil {
		return nil, q.err
	}
	r := newResolver(q)
	for _, n := range q.innerJoins {
		if err := r.joinNode(r.res.Root, n, InnerJoin); err != nil {
			return nil, err
		}
	}
	for _, n := range q.leftJoins {
		if err := r.joinNode(r.res.Root, n, LeftJoin); err != nil {
			return nil, err
		}
	}
	r.loading = true
	for _, n := range load {
		if err := r.joinNode(r.res.Root, n, LeftJoin); err != nil {
			return nil, err
		}
	}
	return r.res, nil
}

func (r *resolver) options(alias string) clause.Options {
	return clause.Options{Alias: alias, AllowSimilarity: true, Passthrough: r.passthrough}
}

func (r *resolver) joinNode(parent *Node, pn *PathNode, kind JoinType) error {
	a, ok := parent.Model.Association(pn.Name)
	if !ok {
		return &schema.AssociationError{Err: schema.ErrJoinAttemptedOnMissingAssociation, Model: parent.Model.Name, Association: pn.Name}
	}

	key := edgeKey{parent: parent.Alias, assoc: pn.Name}
	shareable := pn.Alias == "" && !pn.HasConditions()

	node := r.edges[key]
	if node == nil || !shareable {
		alias, err := r.alias(pn)
		if err != nil {
			return err
		}
		if node, err = r.emit(parent, a, alias, pn.where, kind); err != nil {
			return err
		}
		if shareable {
			r.edges[key] = node
		}
	}

	if node.Path == "" {
		node.Hop = false
		node.Path = joinPath(parent.Path, pn.Key())
		node.Parent = parent
		parent.Children = append(parent.Children, node)
	}
	if r.loading {
		node.Load = true
	}

	for _, child := range pn.Children {
		if err := r.joinNode(node, child, kind); err != nil {
			return err
		}
	}
	return nil
}

// alias reserves the node's alias. Explicit aliases must be unique;
// implicit ones get a numeric suffix on collision.
func (r *resolver) alias(pn *PathNode) (string, error) {
	if pn.Alias != "" {
		if r.used[pn.Alias] {
			return "", fmt.Errorf("%w: %s", ErrDuplicateAlias, pn.Alias)
		}
		r.used[pn.Alias] = true
		return pn.Alias, nil
	}
	return r.implicitAlias(pn.Name), nil
}

func (r *resolver) implicitAlias(name string) string {
	alias := name
	for i := 2; r.used[alias]; i++ {
		alias = name + "_" + strconv.Itoa(i)
	}
	r.used[alias] = true
	return alias
}

// hop materializes a through association once per (parent alias, name)
func (r *resolver) hop(owner *Node, a *schema.Association, kind JoinType) (*Node, error) {
	key := edgeKey{parent: owner.Alias, assoc: a.Name}
	if n, ok := r.edges[key]; ok {
		return n, nil
	}
	n, err := r.emit(owner, a, r.implicitAlias(a.Name), nil, kind)
	if err != nil {
		return nil, err
	}
	n.Hop = true
	n.Parent = owner
	r.edges[key] = n
	return n, nil
}

// emit joins association a from start under alias. Through associations
// are bridged with a worklist: each through hop is materialized, the
// source is looked up on the hop's model, and the bridged associations
// accumulate until a direct association is reached, which is the only one
// emitted for this node.
func (r *resolver) emit(start *Node, a *schema.Association, alias string, where []whereTerm, kind JoinType) (*Node, error) {
	owner := start
	cur := a
	var bridged []*schema.Association
	var firstHop *Node

	var marked []string
	defer func() {
		for _, k := range marked {
			delete(r.active, k)
		}
	}()

	for cur.IsThrough() {
		k := owner.Model.Name + "." + cur.Name
		if r.active[k] {
			return nil, &schema.AssociationError{Err: schema.ErrThroughAssociationCycle, Model: owner.Model.Name, Association: cur.Name, Through: cur.Through}
		}
		r.active[k] = true
		marked = append(marked, k)

		through, ok := owner.Model.Association(cur.Through)
		if !ok {
			return nil, &schema.AssociationError{Err: schema.ErrMissingThroughAssociation, Model: owner.Model.Name, Association: cur.Name, Through: cur.Through}
		}
		if through.IsPolymorphicBelongsTo() {
			return nil, &schema.AssociationError{Err: schema.ErrCannotAssociateThroughPolymorphic, Model: owner.Model.Name, Association: cur.Name, Through: cur.Through}
		}

		hop, err := r.hop(owner, through, kind)
		if err != nil {
			return nil, err
		}
		if firstHop == nil {
			firstHop = hop
		}

		src, ok := schema.SourceOf(hop.Model, cur)
		if !ok {
			return nil, &schema.AssociationError{
				Err:           schema.ErrMissingThroughAssociationSource,
				Model:         owner.Model.Name,
				Association:   cur.Name,
				Through:       cur.Through,
				ThroughTarget: hop.Model.Name,
				Source:        schema.SourceName(cur),
			}
		}
		if src.IsPolymorphicBelongsTo() {
			return nil, &schema.AssociationError{Err: schema.ErrCannotAssociateThroughPolymorphic, Model: owner.Model.Name, Association: cur.Name, Through: cur.Through, Source: src.Name}
		}

		bridged = append(bridged, cur)
		owner = hop
		cur = src
	}

	node, err := r.direct(start, owner, cur, bridged, alias, where, kind)
	if err != nil {
		return nil, err
	}
	node.Assoc = a

	if a.IsThrough() && firstHop != nil {
		for _, col := range a.ThroughColumns {
			node.Through = append(node.Through, ThroughColumn{Alias: firstHop.Alias, Column: col})
		}
	}
	return node, nil
}

// direct emits the single join for association cur declared on owner,
// folding in the clauses of every bridged association.
func (r *resolver) direct(start, owner *Node, cur *schema.Association, bridged []*schema.Association, alias string, where []whereTerm, kind JoinType) (*Node, error) {
	if cur.IsPolymorphicBelongsTo() {
		if len(bridged) > 0 {
			return nil, &schema.AssociationError{Err: schema.ErrCannotAssociateThroughPolymorphic, Model: owner.Model.Name, Association: cur.Name}
		}
		return nil, &schema.AssociationError{Err: schema.ErrCannotJoinPolymorphicBelongsTo, Model: owner.Model.Name, Association: cur.Name}
	}

	target, err := r.reg.Model(cur.Target)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", owner.Model.Name, cur.Name, err)
	}

	chain := append(append(make([]*schema.Association, 0, len(bridged)+1), bridged...), cur)
	if err := checkRequired(owner.Model.Name, chain, where); err != nil {
		return nil, err
	}

	var on []clause.Expr
	switch cur.Kind {
	case schema.BelongsTo:
		pk := cur.PrimaryKey
		if pk == "" {
			pk = target.PrimaryKey
		}
		on = append(on, clause.ColumnCompare{Left: clause.Col(alias, pk), Op: "=", Right: clause.Col(owner.Alias, cur.ForeignKey)})
	default:
		pk := cur.PrimaryKey
		if pk == "" {
			pk = owner.Model.PrimaryKey
		}
		on = append(on, clause.ColumnCompare{Left: clause.Col(alias, cur.ForeignKey), Op: "=", Right: clause.Col(owner.Alias, pk)})
		if cur.Polymorphic {
			on = append(on, clause.Compare{Col: clause.Col(alias, cur.TypeColumn), Op: "=", Value: owner.Model.BaseName()})
		}
	}
	if target.IsSTIChild() {
		on = append(on, clause.Compare{Col: clause.Col(alias, target.STIColumn), Op: "=", Value: target.Name})
	}

	scopes, err := r.scopeExpr(target, alias, chain)
	if err != nil {
		return nil, err
	}
	on = append(on, scopes)

	opts := r.options(alias)
	for i, a := range chain {
		ancestor := owner
		if i < len(bridged) {
			ancestor = start
		}
		e, err := associationExpr(a, alias, ancestor.Alias, opts)
		if err != nil {
			return nil, err
		}
		on = append(on, e)
	}

	userExpr, err := compileTerms(where, opts)
	if err != nil {
		return nil, err
	}
	on = append(on, userExpr)

	r.res.Joins = append(r.res.Joins, Join{Type: kind, Table: target.Table, Alias: alias, On: clause.And(on...)})
	r.res.Models[alias] = target
	r.res.Associations[alias] = chain[0]

	node := &Node{Alias: alias, Model: target, Assoc: cur, Parent: start}
	r.directives(node, cur, bridged)
	return node, nil
}

// directives attaches order and distinct directives. A direct to-many
// association uses its own; a bridged chain uses the outermost bridged
// association's, falling back to the emitted association's. Directives on
// deeper bridged associations are ignored.
func (r *resolver) directives(node *Node, cur *schema.Association, bridged []*schema.Association) {
	source := cur
	if len(bridged) > 0 {
		if bridged[0].HasDirectives() {
			source = bridged[0]
		}
		for _, b := range bridged[1:] {
			if b.HasDirectives() {
				r.logger.Warn("ignoring order/distinct directive on nested through association",
					zap.String("alias", node.Alias),
					zap.String("association", b.Name),
					zap.String("outermost", bridged[0].Name))
			}
		}
	} else if !cur.ToMany() {
		return
	}
	node.Order = source.Order
	node.DistinctOn = source.DistinctOn
}

func (r *resolver) scopeExpr(target *schema.Model, alias string, chain []*schema.Association) (clause.Expr, error) {
	var parts []clause.Expr
	for _, s := range target.Scopes() {
		if r.scopes.skip(s.Name, true) || skippedBy(chain, s.Name) {
			continue
		}
		opts := r.options(alias)
		opts.Negate = s.Not
		e, err := clause.Compile(s.Where, opts)
		if err != nil {
			return nil, fmt.Errorf("%s default scope %s: %w", target.Name, s.Name, err)
		}
		parts = append(parts, e)
	}
	return clause.And(parts...), nil
}

func skippedBy(chain []*schema.Association, scope string) bool {
	for _, a := range chain {
		if a.SkipsScope(scope) {
			return true
		}
	}
	return false
}

// associationExpr compiles the association's own filters against alias.
// Self clauses compare against ancestor.
func associationExpr(a *schema.Association, alias, ancestor string, opts clause.Options) (clause.Expr, error) {
	var parts []clause.Expr

	and, err := clause.Compile(a.And, opts)
	if err != nil {
		return nil, err
	}
	parts = append(parts, and)

	negOpts := opts
	negOpts.Negate = true
	andNot, err := clause.Compile(a.AndNot, negOpts)
	if err != nil {
		return nil, err
	}
	parts = append(parts, andNot)

	if len(a.AndAny) > 0 {
		anyExpr, err := clause.CompileAny(a.AndAny, opts)
		if err != nil {
			return nil, err
		}
		parts = append(parts, anyExpr)
	}

	for _, col := range sortedKeys(a.SelfAnd) {
		parts = append(parts, clause.ColumnCompare{Left: clause.Col(alias, col), Op: "=", Right: clause.Col(ancestor, a.SelfAnd[col])})
	}
	for _, col := range sortedKeys(a.SelfAndNot) {
		parts = append(parts, clause.ColumnCompare{Left: clause.Col(alias, col), Op: "!=", Right: clause.Col(ancestor, a.SelfAndNot[col])})
	}
	return clause.And(parts...), nil
}

// checkRequired verifies every Required column of the chain is constrained
// by a caller map at this join site.
func checkRequired(model string, chain []*schema.Association, where []whereTerm) error {
	for _, a := range chain {
		for _, col := range a.RequiredColumns() {
			if !constrains(where, col) {
				return &schema.AssociationError{Err: schema.ErrMissingRequiredAssociationAndClause, Model: model, Association: a.Name, Column: col}
			}
		}
	}
	return nil
}

func constrains(where []whereTerm, col string) bool {
	for _, t := range where {
		if t.kind != whereAnd {
			continue
		}
		for k := range t.maps[0] {
			if k == col || strings.HasSuffix(k, "."+col) {
				return true
			}
		}
	}
	return false
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}
