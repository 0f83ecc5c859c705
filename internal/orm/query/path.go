package query

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/assoc/internal/orm/clause"
)

type whereKind int

const (
	whereAnd whereKind = iota
	whereNot
	whereAny
)

// whereTerm is one where map (or any-of list) on the query or a path node
type whereTerm struct {
	kind whereKind
	maps []clause.Map
}

func (t whereTerm) compile(opts clause.Options) (clause.Expr, error) {
	switch t.kind {
	case whereNot:
		opts.Negate = true
		return clause.Compile(t.maps[0], opts)
	case whereAny:
		return clause.CompileAny(t.maps, opts)
	default:
		return clause.Compile(t.maps[0], opts)
	}
}

func compileTerms(terms []whereTerm, opts clause.Options) (clause.Expr, error) {
	parts := make([]clause.Expr, 0, len(terms))
	for _, t := range terms {
		e, err := t.compile(opts)
		if err != nil {
			return nil, err
		}
		parts = append(parts, e)
	}
	return clause.And(parts...), nil
}

// NotClause is a path token whose map applies negated to the preceding
// association
type NotClause struct {
	Map clause.Map
}

// Not wraps a map as a negated path condition
func Not(m clause.Map) NotClause {
	return NotClause{Map: m}
}

// AnyClause is a path token whose maps are OR-ed onto the preceding
// association
type AnyClause struct {
	Maps []clause.Map
}

// Any wraps maps as an any-of path condition
func Any(maps ...clause.Map) AnyClause {
	return AnyClause{Maps: maps}
}

// PathNode is one association in a join or preload tree. Nodes are never
// modified once they are reachable from a Query.
type PathNode struct {
	Name     string
	Alias    string
	Children []*PathNode

	where []whereTerm
}

// Key is the alias the node resolves under
func (n *PathNode) Key() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

// HasConditions reports whether the path attaches where maps to the node
func (n *PathNode) HasConditions() bool {
	return len(n.where) > 0
}

// Leaf returns a copy of the node without its children
func (n *PathNode) Leaf() *PathNode {
	return &PathNode{Name: n.Name, Alias: n.Alias, where: n.where}
}

// String renders the subtree as name(children...)
func (n *PathNode) String() string {
	var sb strings.Builder
	sb.WriteString(n.Name)
	if n.Alias != "" {
		sb.WriteString(" as " + n.Alias)
	}
	if len(n.Children) > 0 {
		sb.WriteString("(")
		for i, c := range n.Children {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c.String())
		}
		sb.WriteString(")")
	}
	return sb.String()
}

// parseName splits "name" or "name as alias"
func parseName(tok string) (string, string, error) {
	fields := strings.Fields(tok)
	switch {
	case len(fields) == 1:
		return fields[0], "", nil
	case len(fields) == 3 && strings.EqualFold(fields[1], "as"):
		return fields[0], fields[2], nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidPathToken, tok)
}

// ParsePath turns a token sequence into a tree. Consecutive names nest; a
// map, Not or Any token constrains the name before it; a []any token is a
// branch rooted at the name before it (or at the query root when first).
func ParsePath(tokens ...any) ([]*PathNode, error) {
	var roots []*PathNode
	var cur *PathNode

	attach := func(t whereTerm) error {
		if cur == nil {
			return fmt.Errorf("%w: condition before any association name", ErrInvalidPathToken)
		}
		cur.where = append(cur.where, t)
		return nil
	}

	for _, tok := range tokens {
		switch t := tok.(type) {
		case string:
			name, alias, err := parseName(t)
			if err != nil {
				return nil, err
			}
			n := &PathNode{Name: name, Alias: alias}
			if cur == nil {
				roots = append(roots, n)
			} else {
				cur.Children = append(cur.Children, n)
			}
			cur = n
		case clause.Map:
			if err := attach(whereTerm{kind: whereAnd, maps: []clause.Map{t.Clone()}}); err != nil {
				return nil, err
			}
		case map[string]any:
			if err := attach(whereTerm{kind: whereAnd, maps: []clause.Map{clause.Map(t).Clone()}}); err != nil {
				return nil, err
			}
		case NotClause:
			if err := attach(whereTerm{kind: whereNot, maps: []clause.Map{t.Map.Clone()}}); err != nil {
				return nil, err
			}
		case AnyClause:
			if err := attach(whereTerm{kind: whereAny, maps: cloneMaps(t.Maps)}); err != nil {
				return nil, err
			}
		case []any:
			sub, err := ParsePath(t...)
			if err != nil {
				return nil, err
			}
			if cur == nil {
				roots = append(roots, sub...)
			} else {
				cur.Children = append(cur.Children, sub...)
			}
		case []string:
			sub := make([]any, len(t))
			for i, s := range t {
				sub[i] = s
			}
			branch, err := ParsePath(sub...)
			if err != nil {
				return nil, err
			}
			if cur == nil {
				roots = append(roots, branch...)
			} else {
				cur.Children = append(cur.Children, branch...)
			}
		default:
			return nil, fmt.Errorf("%w: %T", ErrInvalidPathToken, tok)
		}
	}
	return roots, nil
}

// mergePaths folds src into dst by alias and returns a new tree. Nodes of
// dst are copied along every changed branch, never modified.
func mergePaths(dst, src []*PathNode) ([]*PathNode, error) {
	out := make([]*PathNode, len(dst), len(dst)+len(src))
	copy(out, dst)

	for _, s := range src {
		i := indexOf(out, s.Key())
		if i < 0 {
			out = append(out, s)
			continue
		}
		existing := out[i]
		if existing.Name != s.Name {
			return nil, fmt.Errorf("%w: %s is %s and %s", ErrAliasConflict, s.Key(), existing.Name, s.Name)
		}
		children, err := mergePaths(existing.Children, s.Children)
		if err != nil {
			return nil, err
		}
		merged := &PathNode{
			Name:     existing.Name,
			Alias:    existing.Alias,
			Children: children,
		}
		merged.where = append(append(make([]whereTerm, 0, len(existing.where)+len(s.where)), existing.where...), s.where...)
		out[i] = merged
	}
	return out, nil
}

func indexOf(nodes []*PathNode, key string) int {
	for i, n := range nodes {
		if n.Key() == key {
			return i
		}
	}
	return -1
}
