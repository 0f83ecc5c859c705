package clause

import (
	"database/sql/driver"
	"reflect"
	"sort"
	"strings"
)

// Options controls how a where statement compiles.
type Options struct {
	// Alias qualifies bare column names.
	Alias string
	// Negate compiles the null-intuitive negation of the statement.
	Negate bool
	// AllowSimilarity permits Fuzzy values.
	AllowSimilarity bool
	// Passthrough supplies values for Passthrough sentinels, keyed by column.
	Passthrough map[string]any
}

// Compile turns a where statement into a boolean expression. Entries are
// AND-ed in column order. A negated statement is the OR of each entry's
// negation, where every negation treats NULL as "does not match". An empty
// statement compiles to nil.
func Compile(m Map, opts Options) (Expr, error) {
	if len(m) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]Expr, 0, len(keys))
	for _, key := range keys {
		e, err := compileEntry(Col(opts.Alias, key), key, m[key], opts)
		if err != nil {
			return nil, err
		}
		if e != nil {
			parts = append(parts, e)
		}
	}

	if opts.Negate {
		return Or(parts...), nil
	}
	return And(parts...), nil
}

// CompileAny ORs the compiled maps together. Empty maps are ignored; no
// maps at all matches nothing.
func CompileAny(maps []Map, opts Options) (Expr, error) {
	if len(maps) == 0 {
		return False(), nil
	}
	parts := make([]Expr, 0, len(maps))
	for _, m := range maps {
		e, err := Compile(m, opts)
		if err != nil {
			return nil, err
		}
		parts = append(parts, e)
	}
	return Or(parts...), nil
}

func compileEntry(col Column, key string, value any, opts Options) (Expr, error) {
	v, err := resolve(key, value, opts)
	if err != nil {
		return nil, err
	}

	switch val := v.(type) {
	case nil, nullValue:
		return NullCheck{Col: col, Not: opts.Negate}, nil

	case Sentinel:
		if val == Required {
			return nil, nil
		}
		return nil, &ClauseError{Err: ErrCannotPassUndefinedAsAValueToAWhereClause, Column: key}

	case Range:
		return compileRange(col, val, opts.Negate), nil

	case Fuzzy:
		if opts.Negate {
			return nil, &ClauseError{Err: ErrCannotNegateSimilarityClause, Column: key}
		}
		if !opts.AllowSimilarity {
			return nil, &ClauseError{Err: ErrSimilarityNotAllowed, Column: key}
		}
		return Trigram{Col: col, Kind: val.Kind, Text: val.Text, Score: val.score()}, nil

	case Op:
		return compileOp(col, key, val, opts)

	case Subquery:
		return InSub{Col: col, Sub: val, Not: opts.Negate}, nil

	case []byte, driver.Valuer:
		return compileScalar(col, val, opts.Negate), nil
	}

	if members, ok := asSlice(v); ok {
		return compileMembers(col, key, members, opts)
	}
	return compileScalar(col, v, opts.Negate), nil
}

// resolve unwraps lazily produced values, passthrough sentinels and typed
// nil pointers until a concrete value remains.
func resolve(key string, value any, opts Options) (any, error) {
	for i := 0; i < 8; i++ {
		switch v := value.(type) {
		case ValueFunc:
			value = v()
			continue
		case func() any:
			value = v()
			continue
		case Sentinel:
			if v != Passthrough {
				return v, nil
			}
			pv, ok := opts.Passthrough[bareColumn(key)]
			if !ok {
				return nil, &ClauseError{Err: ErrMissingRequiredPassthroughForAssociationAndClause, Column: key}
			}
			value = pv
			continue
		}
		if rv := reflect.ValueOf(value); rv.IsValid() && rv.Kind() == reflect.Ptr && rv.IsNil() {
			return nil, nil
		}
		return value, nil
	}
	return nil, &ClauseError{Err: ErrCannotPassUndefinedAsAValueToAWhereClause, Column: key}
}

func compileScalar(col Column, v any, negate bool) Expr {
	eq := Compare{Col: col, Op: "=", Value: v}
	if negate {
		return Not(And(eq, NullCheck{Col: col, Not: true}))
	}
	return eq
}

func compileRange(col Column, r Range, negate bool) Expr {
	var parts []Expr
	if r.Begin != nil {
		parts = append(parts, Compare{Col: col, Op: ">=", Value: r.Begin})
	}
	if r.End != nil {
		op := "<="
		if r.ExcludeEnd {
			op = "<"
		}
		parts = append(parts, Compare{Col: col, Op: op, Value: r.End})
	}
	e := And(parts...)
	if e == nil {
		e = True()
	}
	if negate {
		return negateOrdered(col, e)
	}
	return e
}

// negateOrdered negates a comparison that NULL never satisfies, so NULL rows
// count as not matching it.
func negateOrdered(col Column, e Expr) Expr {
	if b, ok := e.(boolExpr); ok {
		return !b
	}
	return Or(Not(e), NullCheck{Col: col})
}

func compileOp(col Column, key string, op Op, opts Options) (Expr, error) {
	name := strings.ToUpper(strings.TrimSpace(op.Operator))
	if !validOperators[name] {
		return nil, &ClauseError{Err: ErrInvalidOperator, Column: key + " " + op.Operator}
	}

	v, err := resolve(key, op.Value, opts)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(Sentinel); ok && s == Undefined {
		return nil, &ClauseError{Err: ErrCannotPassUndefinedAsAValueToAWhereClause, Column: key}
	}
	_, isNull := v.(nullValue)
	isNull = isNull || v == nil

	switch name {
	case "=":
		if isNull {
			return NullCheck{Col: col, Not: opts.Negate}, nil
		}
		return compileScalar(col, v, opts.Negate), nil
	case "!=":
		if isNull {
			return NullCheck{Col: col, Not: !opts.Negate}, nil
		}
		if opts.Negate {
			return Compare{Col: col, Op: "=", Value: v}, nil
		}
		return Or(Compare{Col: col, Op: "!=", Value: v}, NullCheck{Col: col}), nil
	}

	e := Compare{Col: col, Op: name, Value: v}
	if opts.Negate {
		return negateOrdered(col, e), nil
	}
	return e, nil
}

// compileMembers handles slice values. NULL members become an IS NULL
// branch; negation excludes NULL rows only when NULL is itself a member.
func compileMembers(col Column, key string, members []any, opts Options) (Expr, error) {
	values := make([]any, 0, len(members))
	hasNull := false
	for _, m := range members {
		v, err := resolve(key, m, opts)
		if err != nil {
			return nil, err
		}
		switch x := v.(type) {
		case nil, nullValue:
			hasNull = true
			continue
		case Sentinel:
			return nil, &ClauseError{Err: ErrCannotPassUndefinedAsAValueToAWhereClause, Column: key}
		default:
			values = append(values, x)
		}
	}

	if !opts.Negate {
		if hasNull {
			if len(values) == 0 {
				return NullCheck{Col: col}, nil
			}
			return Or(InList{Col: col, Values: values}, NullCheck{Col: col}), nil
		}
		return In(col, values, false), nil
	}

	if hasNull {
		if len(values) == 0 {
			return NullCheck{Col: col, Not: true}, nil
		}
		return And(NullCheck{Col: col, Not: true}, InList{Col: col, Values: values, Not: true}), nil
	}
	if len(values) == 0 {
		return True(), nil
	}
	return Or(InList{Col: col, Values: values, Not: true}, NullCheck{Col: col}), nil
}

func asSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func bareColumn(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[i+1:]
	}
	return key
}
