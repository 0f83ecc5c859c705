package orm

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/conduit-lang/assoc/internal/orm/clause"
	"github.com/conduit-lang/assoc/internal/orm/query"
	"github.com/conduit-lang/assoc/internal/orm/schema"
)

var (
	// ErrInvalidFilterField is returned for a filter on an undeclared column
	ErrInvalidFilterField = errors.New("invalid filter fields")

	// ErrInvalidSortField is returned for a sort on an undeclared column
	ErrInvalidSortField = errors.New("invalid sort fields")

	// ErrInvalidInclude is returned for an include path naming a missing
	// association
	ErrInvalidInclude = errors.New("invalid include paths")

	// ErrInvalidPage is returned for a non-numeric or negative limit/offset
	ErrInvalidPage = errors.New("invalid page parameter")
)

// Params are request-style query parameters:
//
//	filter[status]=published     equality, "null" matches NULL, a,b is a list
//	sort=-created_at,title       '-' sorts descending
//	include=comments.author,tags dotted association paths, preloaded
//	limit=10&offset=20
//
// Field names may be camelCase; they are matched as snake_case columns. A
// zero Limit or Offset is not applied.
type Params struct {
	Filter  map[string]string
	Sort    []string
	Include []string
	Limit   int
	Offset  int
}

// ParseParams reads Params from URL query values
func ParseParams(values url.Values) (Params, error) {
	p := Params{Filter: make(map[string]string)}
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		if strings.HasPrefix(key, "filter[") && strings.HasSuffix(key, "]") {
			p.Filter[key[len("filter["):len(key)-1]] = vals[len(vals)-1]
		}
	}
	p.Sort = splitList(values.Get("sort"))
	p.Include = splitList(values.Get("include"))

	var err error
	if p.Limit, err = parsePage("limit", values.Get("limit")); err != nil {
		return Params{}, err
	}
	if p.Offset, err = parsePage("offset", values.Get("offset")); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Apply validates the parameters against q's model and adds them to q.
// Filters and sorts must name declared columns when the model declares any.
func (p Params) Apply(q query.Query) (query.Query, error) {
	if err := q.Err(); err != nil {
		return q, err
	}
	m := q.Model()

	if len(p.Filter) > 0 {
		where := make(clause.Map, len(p.Filter))
		var invalid []string
		for _, field := range sortedKeys(p.Filter) {
			col := inflect.Underscore(field)
			if !validColumn(m, col) {
				invalid = append(invalid, col)
				continue
			}
			where[col] = filterValue(p.Filter[field])
		}
		if len(invalid) > 0 {
			return q, fmt.Errorf("%w: %s", ErrInvalidFilterField, strings.Join(invalid, ", "))
		}
		q = q.Where(where)
	}

	var invalid []string
	for _, s := range p.Sort {
		dir := query.Asc
		field := s
		if strings.HasPrefix(s, "-") {
			dir, field = query.Desc, s[1:]
		}
		col := inflect.Underscore(field)
		if !validColumn(m, col) {
			invalid = append(invalid, col)
			continue
		}
		q = q.Order(col, dir)
	}
	if len(invalid) > 0 {
		return q, fmt.Errorf("%w: %s", ErrInvalidSortField, strings.Join(invalid, ", "))
	}

	for _, inc := range p.Include {
		if err := validateInclude(q.Registry(), m, inc); err != nil {
			return q, err
		}
		segments := strings.Split(inc, ".")
		tokens := make([]any, len(segments))
		for i, s := range segments {
			tokens[i] = s
		}
		q = q.Preload(tokens...)
	}

	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}
	return q, q.Err()
}

// validateInclude walks a dotted path through the registry. Polymorphic
// belongs-to segments end the check since their target varies per row.
func validateInclude(reg *schema.Registry, m *schema.Model, path string) error {
	cur := m
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fmt.Errorf("%w: %q", ErrInvalidInclude, path)
		}
		a, ok := cur.Association(seg)
		if !ok {
			return fmt.Errorf("%w: %s has no association %s", ErrInvalidInclude, cur.Name, seg)
		}
		if a.IsPolymorphicBelongsTo() {
			return nil
		}
		next, err := reg.TargetOf(cur, a)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInclude, err)
		}
		cur = next
	}
	return nil
}

func validColumn(m *schema.Model, col string) bool {
	if len(m.Columns) == 0 {
		return col != "" && !strings.ContainsAny(col, `". `)
	}
	return m.HasColumn(col)
}

func filterValue(v string) any {
	if v == "null" {
		return nil
	}
	if strings.Contains(v, ",") {
		parts := splitList(v)
		out := make([]any, len(parts))
		for i, part := range parts {
			out[i] = filterValue(part)
		}
		return out
	}
	return v
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parsePage(name, v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidPage, name, v)
	}
	return n, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
