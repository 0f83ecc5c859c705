package clause

import (
	"strings"
)

// Builder accumulates SQL text and bound arguments for one statement.
type Builder struct {
	sb      strings.Builder
	args    []any
	dialect Dialect
}

// NewBuilder creates a builder for the given dialect
func NewBuilder(d Dialect) *Builder {
	if d == nil {
		d = Postgres{}
	}
	return &Builder{dialect: d}
}

// Dialect returns the builder's dialect
func (b *Builder) Dialect() Dialect {
	return b.dialect
}

// WriteString appends raw SQL
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Arg binds a value and writes its placeholder
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	b.sb.WriteString(b.dialect.Placeholder(len(b.args)))
	return b
}

// Ident writes a dot-joined, quoted identifier
func (b *Builder) Ident(parts ...string) *Builder {
	first := true
	for _, p := range parts {
		if p == "" {
			continue
		}
		if !first {
			b.sb.WriteByte('.')
		}
		b.sb.WriteString(b.dialect.Quote(p))
		first = false
	}
	return b
}

// String returns the SQL written so far
func (b *Builder) String() string {
	return b.sb.String()
}

// Args returns the bound arguments
func (b *Builder) Args() []any {
	return b.args
}

// Column is a possibly table-qualified column reference.
type Column struct {
	Table string
	Name  string
}

// Col builds a column reference. A dotted name ("alias.column") keeps its
// own qualifier; otherwise table is used.
func Col(table, name string) Column {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return Column{Table: name[:i], Name: name[i+1:]}
	}
	return Column{Table: table, Name: name}
}

// Render writes the quoted column reference
func (c Column) Render(b *Builder) {
	b.Ident(c.Table, c.Name)
}

// String returns the unquoted dotted form
func (c Column) String() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// ParseOrder parses "column", "column asc" or "column desc".
func ParseOrder(s string) (Order, error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		return Order{Column: fields[0]}, nil
	case 2:
		switch strings.ToLower(fields[1]) {
		case "asc":
			return Order{Column: fields[0]}, nil
		case "desc":
			return Order{Column: fields[0], Desc: true}, nil
		}
	}
	return Order{}, &ClauseError{Err: ErrInvalidOrder, Column: s}
}

// Render writes the order term with its column qualified by table.
func (o Order) Render(b *Builder, table string) {
	Col(table, o.Column).Render(b)
	if o.Desc {
		b.WriteString(" DESC")
	} else {
		b.WriteString(" ASC")
	}
}
