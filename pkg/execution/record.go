package execution

import "github.com/orneryd/matrixgraph/pkg/storage"

// EntryType tells what a record slot holds.
type EntryType uint8

const (
	EntryUnset EntryType = iota
	EntryScalar
	EntryNode
	EntryEdge
)

// Entry is one record slot.
type Entry struct {
	Type  EntryType
	Value storage.Value
	Node  *storage.Node
	Edge  *storage.Edge
}

// Interface converts the entry for result sets.
func (e Entry) Interface() any {
	switch e.Type {
	case EntryScalar:
		return e.Value.Interface()
	case EntryNode:
		return e.Node
	case EntryEdge:
		return e.Edge
	default:
		return nil
	}
}

// Record is a row flowing through the plan. Slots are addressed by the index
// the plan assigned to each alias.
//
// Materialized nodes and edges are shared between clones and must be treated
// as read-only.
type Record struct {
	entries []Entry
}

func newRecord(n int) *Record {
	return &Record{entries: make([]Entry, n)}
}

// Len returns the number of slots.
func (r *Record) Len() int { return len(r.entries) }

// Get returns slot i. Slots past the end are unset.
func (r *Record) Get(i int) Entry {
	if i < 0 || i >= len(r.entries) {
		return Entry{}
	}
	return r.entries[i]
}

func (r *Record) slot(i int) *Entry {
	if i >= len(r.entries) {
		r.entries = append(r.entries, make([]Entry, i+1-len(r.entries))...)
	}
	return &r.entries[i]
}

// SetScalar stores v in slot i.
func (r *Record) SetScalar(i int, v storage.Value) {
	*r.slot(i) = Entry{Type: EntryScalar, Value: v}
}

// SetNode stores n in slot i.
func (r *Record) SetNode(i int, n *storage.Node) {
	*r.slot(i) = Entry{Type: EntryNode, Node: n}
}

// SetEdge stores e in slot i.
func (r *Record) SetEdge(i int, e *storage.Edge) {
	*r.slot(i) = Entry{Type: EntryEdge, Edge: e}
}

// Node returns the node in slot i.
func (r *Record) Node(i int) (*storage.Node, bool) {
	e := r.Get(i)
	return e.Node, e.Type == EntryNode && e.Node != nil
}

// Edge returns the edge in slot i.
func (r *Record) Edge(i int) (*storage.Edge, bool) {
	e := r.Get(i)
	return e.Edge, e.Type == EntryEdge && e.Edge != nil
}

// Clone returns a copy whose slots can be set independently.
func (r *Record) Clone() *Record {
	return &Record{entries: append([]Entry(nil), r.entries...)}
}
