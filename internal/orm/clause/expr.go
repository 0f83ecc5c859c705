package clause

// Expr is a boolean SQL expression.
type Expr interface {
	Render(b *Builder) error
}

type boolExpr bool

// True is the unconditional-true expression
func True() Expr { return boolExpr(true) }

// False is the unconditional-false expression
func False() Expr { return boolExpr(false) }

func (e boolExpr) Render(b *Builder) error {
	if e {
		b.WriteString("TRUE")
	} else {
		b.WriteString("FALSE")
	}
	return nil
}

// Compare is col <op> value with value bound as a parameter.
type Compare struct {
	Col   Column
	Op    string
	Value any
}

func (e Compare) Render(b *Builder) error {
	e.Col.Render(b)
	b.WriteString(" " + e.Op + " ")
	b.Arg(e.Value)
	return nil
}

// ColumnCompare compares two column references.
type ColumnCompare struct {
	Left  Column
	Op    string
	Right Column
}

func (e ColumnCompare) Render(b *Builder) error {
	e.Left.Render(b)
	b.WriteString(" " + e.Op + " ")
	e.Right.Render(b)
	return nil
}

// NullCheck is col IS NULL, or col IS NOT NULL when Not is set.
type NullCheck struct {
	Col Column
	Not bool
}

func (e NullCheck) Render(b *Builder) error {
	e.Col.Render(b)
	if e.Not {
		b.WriteString(" IS NOT NULL")
	} else {
		b.WriteString(" IS NULL")
	}
	return nil
}

// InList is col IN (...) over a non-empty list. Use In to get the empty-list
// handling.
type InList struct {
	Col    Column
	Values []any
	Not    bool
}

func (e InList) Render(b *Builder) error {
	e.Col.Render(b)
	if e.Not {
		b.WriteString(" NOT IN (")
	} else {
		b.WriteString(" IN (")
	}
	for i, v := range e.Values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Arg(v)
	}
	b.WriteString(")")
	return nil
}

// In returns col IN (values). An empty list is FALSE (TRUE when negated);
// IN () is never emitted.
func In(col Column, values []any, not bool) Expr {
	if len(values) == 0 {
		return boolExpr(not)
	}
	return InList{Col: col, Values: values, Not: not}
}

// InSub is col IN (subquery).
type InSub struct {
	Col Column
	Sub Subquery
	Not bool
}

func (e InSub) Render(b *Builder) error {
	e.Col.Render(b)
	if e.Not {
		b.WriteString(" NOT IN (")
	} else {
		b.WriteString(" IN (")
	}
	if err := e.Sub.RenderSubquery(b); err != nil {
		return err
	}
	b.WriteString(")")
	return nil
}

// Keys is a membership test against a bound key list, rendered the way the
// dialect binds key lists.
type Keys struct {
	Col  Column
	Keys []any
}

func (e Keys) Render(b *Builder) error {
	b.Dialect().KeyList(b, e.Col, e.Keys)
	return nil
}

// Trigram is a pg_trgm similarity test.
type Trigram struct {
	Col   Column
	Kind  SimilarityKind
	Text  string
	Score float64
}

func (e Trigram) Render(b *Builder) error {
	b.WriteString(e.Kind.String() + "(")
	if e.Kind == Similarity {
		e.Col.Render(b)
		b.WriteString(", ")
		b.Arg(e.Text)
	} else {
		b.Arg(e.Text)
		b.WriteString(", ")
		e.Col.Render(b)
	}
	b.WriteString(") >= ")
	b.Arg(e.Score)
	return nil
}

type andExpr []Expr

type orExpr []Expr

type notExpr struct{ inner Expr }

// And joins expressions with AND. Nil entries are dropped; an empty And is
// nil so callers can skip the clause entirely.
func And(exprs ...Expr) Expr {
	out := flatten(exprs, func(e Expr) ([]Expr, bool) {
		a, ok := e.(andExpr)
		return a, ok
	})
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return andExpr(out)
}

// Or joins expressions with OR. Nil entries are dropped.
func Or(exprs ...Expr) Expr {
	out := flatten(exprs, func(e Expr) ([]Expr, bool) {
		o, ok := e.(orExpr)
		return o, ok
	})
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return orExpr(out)
}

// Not negates an expression
func Not(e Expr) Expr {
	switch v := e.(type) {
	case nil:
		return nil
	case boolExpr:
		return !v
	case notExpr:
		return v.inner
	}
	return notExpr{inner: e}
}

func flatten(exprs []Expr, same func(Expr) ([]Expr, bool)) []Expr {
	out := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if inner, ok := same(e); ok {
			out = append(out, inner...)
			continue
		}
		out = append(out, e)
	}
	return out
}

func (e andExpr) Render(b *Builder) error {
	return renderJoined(b, e, " AND ", func(x Expr) bool {
		_, ok := x.(orExpr)
		return ok
	})
}

func (e orExpr) Render(b *Builder) error {
	return renderJoined(b, e, " OR ", func(x Expr) bool {
		_, ok := x.(andExpr)
		return ok
	})
}

func (e notExpr) Render(b *Builder) error {
	b.WriteString("NOT (")
	if err := e.inner.Render(b); err != nil {
		return err
	}
	b.WriteString(")")
	return nil
}

func renderJoined(b *Builder, exprs []Expr, sep string, wrap func(Expr) bool) error {
	for i, x := range exprs {
		if i > 0 {
			b.WriteString(sep)
		}
		if wrap(x) {
			b.WriteString("(")
		}
		if err := x.Render(b); err != nil {
			return err
		}
		if wrap(x) {
			b.WriteString(")")
		}
	}
	return nil
}

// Render renders a standalone expression and returns its SQL and arguments.
func Render(d Dialect, e Expr) (string, []any, error) {
	b := NewBuilder(d)
	if e == nil {
		return "", nil, nil
	}
	if err := e.Render(b); err != nil {
		return "", nil, err
	}
	return b.String(), b.Args(), nil
}
