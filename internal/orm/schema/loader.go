package schema

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/assoc/internal/orm/clause"
)

// File is the on-disk form of a set of model declarations
type File struct {
	Models []ModelDecl `yaml:"models"`
}

// ModelDecl declares one model
type ModelDecl struct {
	Name          string                      `yaml:"name"`
	Table         string                      `yaml:"table"`
	PrimaryKey    string                      `yaml:"primary_key"`
	Columns       []string                    `yaml:"columns"`
	DefaultScopes []ScopeDecl                 `yaml:"default_scopes"`
	STIBase       string                      `yaml:"sti_base"`
	STIColumn     string                      `yaml:"sti_column"`
	SoftDelete    string                      `yaml:"soft_delete"`
	Associations  map[string]AssociationDecl `yaml:"associations"`
}

// ScopeDecl declares a default scope
type ScopeDecl struct {
	Name  string         `yaml:"name"`
	Where map[string]any `yaml:"where"`
	Not   bool           `yaml:"not"`
}

// AssociationDecl declares one association
type AssociationDecl struct {
	Kind                 string            `yaml:"kind"`
	Target               string            `yaml:"target"`
	Targets              []string          `yaml:"targets"`
	ForeignKey           string            `yaml:"foreign_key"`
	PrimaryKey           string            `yaml:"primary_key"`
	Through              string            `yaml:"through"`
	Source               string            `yaml:"source"`
	Polymorphic          bool              `yaml:"polymorphic"`
	TypeColumn           string            `yaml:"type_column"`
	And                  map[string]any    `yaml:"and"`
	AndNot               map[string]any    `yaml:"and_not"`
	AndAny               []map[string]any  `yaml:"and_any"`
	SelfAnd              map[string]string `yaml:"self_and"`
	SelfAndNot           map[string]string `yaml:"self_and_not"`
	Order                []string          `yaml:"order"`
	DistinctOn           []string          `yaml:"distinct_on"`
	WithoutDefaultScopes []string          `yaml:"without_default_scopes"`
	ThroughColumns       []string          `yaml:"through_columns"`
}

// LoadFile reads model declarations from a YAML file
func LoadFile(path string) ([]*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load reads model declarations from YAML
func Load(r io.Reader) ([]*Model, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode model file: %w", err)
	}

	models := make([]*Model, 0, len(file.Models))
	for _, decl := range file.Models {
		m, err := decl.Model()
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// LoadInto reads declarations from path and registers them
func LoadInto(reg *Registry, path string) error {
	models, err := LoadFile(path)
	if err != nil {
		return err
	}
	for _, m := range models {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Model converts the declaration into a model descriptor
func (d ModelDecl) Model() (*Model, error) {
	m := NewModel(d.Name)
	m.Table = d.Table
	m.PrimaryKey = d.PrimaryKey
	m.Columns = d.Columns
	m.STIBase = d.STIBase
	m.STIColumn = d.STIColumn
	m.SoftDelete = d.SoftDelete

	for _, s := range d.DefaultScopes {
		where, err := decodeWhere(s.Where)
		if err != nil {
			return nil, fmt.Errorf("%s scope %s: %w", d.Name, s.Name, err)
		}
		m.DefaultScopes = append(m.DefaultScopes, Scope{Name: s.Name, Where: where, Not: s.Not})
	}

	names := make([]string, 0, len(d.Associations))
	for name := range d.Associations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		a, err := d.Associations[name].association(name)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", d.Name, name, err)
		}
		m.Associations[name] = a
	}
	return m, nil
}

func (d AssociationDecl) association(name string) (*Association, error) {
	kind, err := ParseAssociationKind(d.Kind)
	if err != nil {
		return nil, err
	}

	a := &Association{
		Name:                 name,
		Kind:                 kind,
		Target:               d.Target,
		Targets:              d.Targets,
		ForeignKey:           d.ForeignKey,
		PrimaryKey:           d.PrimaryKey,
		Through:              d.Through,
		Source:               d.Source,
		Polymorphic:          d.Polymorphic,
		TypeColumn:           d.TypeColumn,
		SelfAnd:              d.SelfAnd,
		SelfAndNot:           d.SelfAndNot,
		DistinctOn:           d.DistinctOn,
		WithoutDefaultScopes: d.WithoutDefaultScopes,
		ThroughColumns:       d.ThroughColumns,
	}

	if a.And, err = decodeWhere(d.And); err != nil {
		return nil, err
	}
	if a.AndNot, err = decodeWhere(d.AndNot); err != nil {
		return nil, err
	}
	for _, m := range d.AndAny {
		w, err := decodeWhere(m)
		if err != nil {
			return nil, err
		}
		a.AndAny = append(a.AndAny, w)
	}
	for _, o := range d.Order {
		order, err := clause.ParseOrder(o)
		if err != nil {
			return nil, err
		}
		a.Order = append(a.Order, order)
	}
	return a, nil
}

func decodeWhere(raw map[string]any) (clause.Map, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(clause.Map, len(raw))
	for col, v := range raw {
		dv, err := decodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		out[col] = dv
	}
	return out, nil
}

// decodeValue maps YAML scalars and objects onto where value kinds:
// "$required" and "$passthrough" strings become sentinels, {begin, end,
// exclude_end} a range, {similarity|word_similarity|strict_word_similarity,
// score} a fuzzy match and {op, value} a comparison.
func decodeValue(v any) (any, error) {
	switch x := v.(type) {
	case string:
		switch x {
		case "$required":
			return clause.Required, nil
		case "$passthrough":
			return clause.Passthrough, nil
		}
		return x, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			dv, err := decodeValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	case map[string]any:
		return decodeObject(x)
	}
	return v, nil
}

func decodeObject(x map[string]any) (any, error) {
	if op, ok := x["op"].(string); ok {
		return clause.Op{Operator: op, Value: x["value"]}, nil
	}
	if _, ok := x["begin"]; ok {
		return decodeRange(x), nil
	}
	if _, ok := x["end"]; ok {
		return decodeRange(x), nil
	}

	kinds := []struct {
		key  string
		kind clause.SimilarityKind
	}{
		{"similarity", clause.Similarity},
		{"word_similarity", clause.WordSimilarity},
		{"strict_word_similarity", clause.StrictWordSimilarity},
	}
	for _, k := range kinds {
		text, ok := x[k.key].(string)
		if !ok {
			continue
		}
		f := clause.Fuzzy{Kind: k.kind, Text: text}
		switch s := x["score"].(type) {
		case float64:
			f.Score = s
		case int:
			f.Score = float64(s)
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: unrecognized where object %v", ErrInvalidModel, x)
}

func decodeRange(x map[string]any) clause.Range {
	r := clause.Range{Begin: x["begin"], End: x["end"]}
	if ex, ok := x["exclude_end"].(bool); ok {
		r.ExcludeEnd = ex
	}
	return r
}
