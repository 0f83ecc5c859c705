// Package record holds hydrated rows and the links between them.
//
// A Graph is the arena for one execution: every canonical record lives in a
// flat slice and is indexed by (alias path, primary key), so an identity is
// constructed once no matter how many rows or preload levels reach it.
// Association links are slot numbers into the arena rather than pointers.
package record

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrFrozenAssociation is returned when appending to a to-many link whose
	// level has finished hydrating
	ErrFrozenAssociation = errors.New("association is frozen")

	// ErrForeignRecord is returned when linking records from different graphs
	ErrForeignRecord = errors.New("record belongs to a different graph")
)

// Identity addresses one canonical record
type Identity struct {
	Alias string
	Key   string
}

// Graph is the per-execution record arena
type Graph struct {
	records []*Record
	index   map[Identity]int
}

// NewGraph creates an empty arena
func NewGraph() *Graph {
	return &Graph{index: make(map[Identity]int)}
}

// Build returns the canonical record for (alias, values[primaryKey]). The
// record is constructed from values only the first time the identity is
// seen; created reports whether that happened on this call.
func (g *Graph) Build(alias, model, primaryKey string, values map[string]any) (rec *Record, created bool, err error) {
	key, err := KeyString(values[primaryKey])
	if err != nil {
		return nil, false, fmt.Errorf("%s (%s): %w", model, alias, err)
	}

	id := Identity{Alias: alias, Key: key}
	if slot, ok := g.index[id]; ok {
		return g.records[slot], false, nil
	}

	rec = &Record{
		Model:      model,
		Alias:      alias,
		Key:        key,
		PrimaryKey: primaryKey,
		Values:     values,
		graph:      g,
		slot:       len(g.records),
	}
	g.records = append(g.records, rec)
	g.index[id] = rec.slot
	return rec, true, nil
}

// Lookup finds the canonical record for an identity
func (g *Graph) Lookup(alias string, key any) (*Record, bool) {
	k, err := KeyString(key)
	if err != nil {
		return nil, false
	}
	slot, ok := g.index[Identity{Alias: alias, Key: k}]
	if !ok {
		return nil, false
	}
	return g.records[slot], true
}

// Len returns the number of canonical records
func (g *Graph) Len() int {
	return len(g.records)
}

// Records returns the records hydrated under alias in construction order
func (g *Graph) Records(alias string) []*Record {
	var out []*Record
	for _, r := range g.records {
		if r.Alias == alias {
			out = append(out, r)
		}
	}
	return out
}

// Record is one hydrated row
type Record struct {
	Model      string
	Alias      string
	Key        string
	PrimaryKey string
	Values     map[string]any

	// Through holds columns projected from a through table
	Through map[string]any

	graph *Graph
	slot  int
	links map[string]*link
}

type link struct {
	many   bool
	slots  []int
	seen   map[int]bool
	frozen bool
}

// ID returns the raw primary key value
func (r *Record) ID() any {
	return r.Values[r.PrimaryKey]
}

// Graph returns the arena the record lives in
func (r *Record) Graph() *Graph {
	return r.graph
}

// Get returns a column value
func (r *Record) Get(col string) any {
	return r.Values[col]
}

// SetThrough records a through-table column, keeping the first value seen
func (r *Record) SetThrough(col string, v any) {
	if r.Through == nil {
		r.Through = make(map[string]any)
	}
	if _, ok := r.Through[col]; !ok {
		r.Through[col] = v
	}
}

func (r *Record) link(name string, many bool) *link {
	if r.links == nil {
		r.links = make(map[string]*link)
	}
	l, ok := r.links[name]
	if !ok {
		l = &link{many: many, seen: make(map[int]bool)}
		r.links[name] = l
	}
	return l
}

// Init marks an association as loaded with no members yet
func (r *Record) Init(name string, many bool) {
	r.link(name, many)
}

// Unload drops the association so it reads as never hydrated
func (r *Record) Unload(name string) {
	delete(r.links, name)
}

// Loaded reports whether the association has been hydrated
func (r *Record) Loaded(name string) bool {
	_, ok := r.links[name]
	return ok
}

// Append adds child to a to-many association. Appending the same identity
// twice is a no-op.
func (r *Record) Append(name string, child *Record) error {
	if child.graph != r.graph {
		return ErrForeignRecord
	}
	l := r.link(name, true)
	if l.frozen {
		return fmt.Errorf("%w: %s.%s", ErrFrozenAssociation, r.Model, name)
	}
	if l.seen[child.slot] {
		return nil
	}
	l.seen[child.slot] = true
	l.slots = append(l.slots, child.slot)
	return nil
}

// SetOne sets a to-one association. The first record set wins; later calls
// report false and leave the link unchanged.
func (r *Record) SetOne(name string, child *Record) (bool, error) {
	if child.graph != r.graph {
		return false, ErrForeignRecord
	}
	l := r.link(name, false)
	if len(l.slots) > 0 {
		return false, nil
	}
	l.slots = append(l.slots, child.slot)
	l.seen[child.slot] = true
	return true, nil
}

// Freeze closes a to-many association to further appends
func (r *Record) Freeze(name string) {
	if l, ok := r.links[name]; ok && l.many {
		l.frozen = true
	}
}

// Frozen reports whether the association is closed
func (r *Record) Frozen(name string) bool {
	l, ok := r.links[name]
	return ok && l.frozen
}

// One returns the to-one association, or nil
func (r *Record) One(name string) *Record {
	l, ok := r.links[name]
	if !ok || len(l.slots) == 0 {
		return nil
	}
	return r.graph.records[l.slots[0]]
}

// Many returns the to-many association members in link order
func (r *Record) Many(name string) []*Record {
	l, ok := r.links[name]
	if !ok {
		return nil
	}
	out := make([]*Record, len(l.slots))
	for i, slot := range l.slots {
		out[i] = r.graph.records[slot]
	}
	return out
}

// Associations returns the loaded association names, sorted
func (r *Record) Associations() []string {
	names := make([]string, 0, len(r.links))
	for name := range r.links {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot renders the record and everything linked below it as plain
// maps and slices, for comparison and output.
func (r *Record) Snapshot() map[string]any {
	values := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	out := map[string]any{
		"model":  r.Model,
		"values": values,
	}
	if len(r.Through) > 0 {
		through := make(map[string]any, len(r.Through))
		for k, v := range r.Through {
			through[k] = v
		}
		out["through"] = through
	}
	if len(r.links) > 0 {
		links := make(map[string]any, len(r.links))
		for name, l := range r.links {
			if l.many {
				members := make([]any, len(l.slots))
				for i, slot := range l.slots {
					members[i] = r.graph.records[slot].Snapshot()
				}
				links[name] = members
				continue
			}
			if len(l.slots) == 0 {
				links[name] = nil
				continue
			}
			links[name] = r.graph.records[l.slots[0]].Snapshot()
		}
		out["links"] = links
	}
	return out
}

// Snapshots renders a list of records
func Snapshots(records []*Record) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r.Snapshot()
	}
	return out
}
