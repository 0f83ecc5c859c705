package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"
)

// Registry holds every model descriptor known to the application
type Registry struct {
	models map[string]*Model
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]*Model),
	}
}

// Register adds a model, filling conventional defaults for anything left
// unset. The registry takes ownership of m; it must not be modified after
// registration. Associations are not checked against other models here.
func (r *Registry) Register(m *Model) error {
	if err := validateStructure(m); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[m.Name]; exists {
		return fmt.Errorf("%w: %s", ErrModelAlreadyRegistered, m.Name)
	}

	applyDefaults(m)
	r.models[m.Name] = m
	return nil
}

// MustRegister registers every model and panics on the first failure
func (r *Registry) MustRegister(models ...*Model) {
	for _, m := range models {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

// Model returns the named model
func (r *Registry) Model(name string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return m, nil
}

// Association returns the named association declared on model
func (r *Registry) Association(model, name string) (*Association, error) {
	m, err := r.Model(model)
	if err != nil {
		return nil, err
	}
	a, ok := m.Associations[name]
	if !ok {
		return nil, &AssociationError{Err: ErrUnknownAssociation, Model: model, Association: name}
	}
	return a, nil
}

// DefaultScopes returns the model's default scopes in order
func (r *Registry) DefaultScopes(model string) ([]Scope, error) {
	m, err := r.Model(model)
	if err != nil {
		return nil, err
	}
	return m.Scopes(), nil
}

// Columns returns the model's columns in declaration order
func (r *Registry) Columns(model string) ([]string, error) {
	m, err := r.Model(model)
	if err != nil {
		return nil, err
	}
	return m.Columns, nil
}

// PrimaryKey returns the model's primary key column
func (r *Registry) PrimaryKey(model string) (string, error) {
	m, err := r.Model(model)
	if err != nil {
		return "", err
	}
	return m.PrimaryKey, nil
}

// Names returns all registered model names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered models
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.models)
}

func validateStructure(m *Model) error {
	if m == nil || strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: model name is required", ErrInvalidModel)
	}
	for name, a := range m.Associations {
		if a == nil {
			return fmt.Errorf("%w: %s.%s is nil", ErrInvalidModel, m.Name, name)
		}
		if a.Name == "" {
			a.Name = name
		}
		if a.Name != name {
			return fmt.Errorf("%w: %s.%s is declared under key %q", ErrInvalidModel, m.Name, a.Name, name)
		}
		switch a.Kind {
		case BelongsTo, HasOne, HasMany:
		default:
			return fmt.Errorf("%w: %s.%s has no kind", ErrInvalidModel, m.Name, name)
		}
		if a.Through != "" {
			if a.Kind == BelongsTo {
				return fmt.Errorf("%w: %s.%s: belongs_to cannot be declared through another association", ErrInvalidModel, m.Name, name)
			}
			if a.Polymorphic {
				return fmt.Errorf("%w: %s.%s: a through association cannot be polymorphic", ErrInvalidModel, m.Name, name)
			}
		}
		if a.Polymorphic && a.Kind == BelongsTo && len(a.Targets) == 0 {
			return fmt.Errorf("%w: %s.%s: polymorphic belongs_to needs its possible targets", ErrInvalidModel, m.Name, name)
		}
	}
	return nil
}

func applyDefaults(m *Model) {
	if m.Associations == nil {
		m.Associations = make(map[string]*Association)
	}
	if m.Table == "" {
		m.Table = TableName(m.BaseName())
	}
	if m.PrimaryKey == "" {
		m.PrimaryKey = "id"
	}
	if m.STIBase != "" && m.STIColumn == "" {
		m.STIColumn = "type"
	}

	for _, a := range m.Associations {
		if a.Through != "" {
			continue
		}
		switch a.Kind {
		case BelongsTo:
			if a.ForeignKey == "" {
				a.ForeignKey = inflect.Underscore(a.Name) + "_id"
			}
			if a.Target == "" && !a.Polymorphic {
				a.Target = inflect.Camelize(a.Name)
			}
		case HasOne, HasMany:
			if a.ForeignKey == "" {
				a.ForeignKey = inflect.Underscore(m.BaseName()) + "_id"
			}
			if a.Target == "" {
				a.Target = inflect.Camelize(inflect.Singularize(a.Name))
			}
		}
		if a.Polymorphic && a.TypeColumn == "" {
			a.TypeColumn = strings.TrimSuffix(a.ForeignKey, "_id") + "_type"
		}
	}
}

// TableName is the conventional table for a model name: snake case, plural.
func TableName(model string) string {
	return inflect.Pluralize(inflect.Underscore(model))
}
