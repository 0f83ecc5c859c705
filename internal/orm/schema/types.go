// Package schema holds the read-only model and association descriptors the
// query engine resolves joins and preloads against.
//
// Models are registered once at bootstrap and never mutated afterwards.
// Associations may name targets, through associations and sources that are
// not registered yet; those references are only checked when a query walks
// them.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/assoc/internal/orm/clause"
)

// AssociationKind is the cardinality and ownership of an association
type AssociationKind int

const (
	// BelongsTo is owning-to-one: the foreign key lives on the declaring model.
	BelongsTo AssociationKind = iota + 1
	// HasOne is owned-to-one: the foreign key lives on the target.
	HasOne
	// HasMany is owned-to-many: the foreign key lives on the target.
	HasMany
)

// String returns the declaration keyword for the kind
func (k AssociationKind) String() string {
	switch k {
	case BelongsTo:
		return "belongs_to"
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	default:
		return "unknown"
	}
}

// ParseAssociationKind parses a declaration keyword
func ParseAssociationKind(s string) (AssociationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "belongs_to", "belongsto":
		return BelongsTo, nil
	case "has_one", "hasone":
		return HasOne, nil
	case "has_many", "hasmany":
		return HasMany, nil
	}
	return 0, fmt.Errorf("%w: unknown association kind %q", ErrInvalidModel, s)
}

// SoftDeleteScope is the name of the default scope generated for models with
// a soft-delete column.
const SoftDeleteScope = "soft_delete"

// Scope is a named default scope. Not compiles Where negated.
type Scope struct {
	Name  string
	Where clause.Map
	Not   bool
}

// Model describes one entity type
type Model struct {
	Name       string
	Table      string
	PrimaryKey string
	Columns    []string

	// DefaultScopes apply to every query against the model unless bypassed
	DefaultScopes []Scope

	Associations map[string]*Association

	// STIBase names the single-table-inheritance base when this model is
	// an STI child. Children share the base's table and are filtered by
	// STIColumn = Name.
	STIBase   string
	STIColumn string

	// SoftDelete, when set, adds a default scope requiring the column to be NULL
	SoftDelete string
}

// NewModel creates a model with an empty association map
func NewModel(name string) *Model {
	return &Model{
		Name:         name,
		Associations: make(map[string]*Association),
	}
}

// Association returns the named association
func (m *Model) Association(name string) (*Association, bool) {
	a, ok := m.Associations[name]
	return a, ok
}

// AssociationNames returns association names in sorted order
func (m *Model) AssociationNames() []string {
	names := make([]string, 0, len(m.Associations))
	for name := range m.Associations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BaseName is the type identity stored in polymorphic discriminator columns:
// the STI base for children, the model's own name otherwise.
func (m *Model) BaseName() string {
	if m.STIBase != "" {
		return m.STIBase
	}
	return m.Name
}

// IsSTIChild reports whether the model is filtered by an STI discriminator
func (m *Model) IsSTIChild() bool {
	return m.STIBase != ""
}

// HasColumn reports whether col is one of the model's columns
func (m *Model) HasColumn(col string) bool {
	for _, c := range m.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Scopes returns the default scopes in declaration order, with the
// soft-delete scope last.
func (m *Model) Scopes() []Scope {
	scopes := make([]Scope, 0, len(m.DefaultScopes)+1)
	scopes = append(scopes, m.DefaultScopes...)
	if m.SoftDelete != "" {
		scopes = append(scopes, Scope{Name: SoftDeleteScope, Where: clause.Map{m.SoftDelete: nil}})
	}
	return scopes
}

// Association describes one relationship declared on a model
type Association struct {
	Name string
	Kind AssociationKind

	// Target is the associated model. Targets lists the possible targets of
	// a polymorphic belongs-to.
	Target  string
	Targets []string

	ForeignKey string
	// PrimaryKey overrides the referenced key: the target's for belongs-to,
	// the owner's for has-one and has-many.
	PrimaryKey string

	// Through names an association on the same model; Source names the
	// association on the through target the chain continues into.
	Through string
	Source  string

	Polymorphic bool
	TypeColumn  string

	// And, AndNot and AndAny filter the joined table. And values may be
	// clause.Required or clause.Passthrough.
	And    clause.Map
	AndNot clause.Map
	AndAny []clause.Map

	// SelfAnd and SelfAndNot compare a joined column (key) against a column
	// on the alias the association was reached from (value).
	SelfAnd    map[string]string
	SelfAndNot map[string]string

	Order      []clause.Order
	DistinctOn []string

	// WithoutDefaultScopes names target scopes never applied on this association
	WithoutDefaultScopes []string

	// ThroughColumns are columns of the through table projected onto
	// hydrated targets
	ThroughColumns []string
}

// IsThrough reports whether the association is bridged through another one
func (a *Association) IsThrough() bool {
	return a.Through != ""
}

// ToMany reports whether the association yields a collection
func (a *Association) ToMany() bool {
	return a.Kind == HasMany
}

// IsPolymorphicBelongsTo reports whether the target is only known per row
func (a *Association) IsPolymorphicBelongsTo() bool {
	return a.Polymorphic && a.Kind == BelongsTo
}

// SkipsScope reports whether the named target scope is disabled here
func (a *Association) SkipsScope(name string) bool {
	for _, s := range a.WithoutDefaultScopes {
		if s == name {
			return true
		}
	}
	return false
}

// RequiredColumns lists the And columns marked clause.Required, sorted
func (a *Association) RequiredColumns() []string {
	var cols []string
	for col, v := range a.And {
		if s, ok := v.(clause.Sentinel); ok && s == clause.Required {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	return cols
}

// HasDirectives reports whether the association carries order or distinct
// directives
func (a *Association) HasDirectives() bool {
	return len(a.Order) > 0 || len(a.DistinctOn) > 0
}
