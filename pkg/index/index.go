// Package index implements attribute indexes over graph entities and the
// resumable, batched algorithm that populates them.
//
// An index starts in StatePopulating. A populator scans the label matrix
// (nodes) or relation matrix (edges) of its schema in batches, releasing the
// graph read lock between batches, and enables the index once a scan finishes
// without the index being replaced or dropped. Disabling an index while it
// populates makes the populator stop at the next batch boundary.
package index

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// State is the population state of an index.
type State int32

const (
	StatePopulating State = iota
	StateActive
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StatePopulating:
		return "POPULATING"
	case StateActive:
		return "ACTIVE"
	case StateDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// Index is an in-memory attribute index. Property indexes answer exact-match
// queries, vector indexes k-nearest-neighbor queries (see Nearest).
//
// Entries are kept per attribute as value key -> entity id set, or entity id
// -> vector, so indexing the same entity twice (population racing with a live
// insert) is harmless.
type Index struct {
	def      storage.IndexDefinition
	schemaID int
	attrs    []storage.AttributeID

	state atomic.Int32

	mu      sync.RWMutex
	entries map[storage.AttributeID]map[string]map[storage.EntityID]struct{}
	vectors map[storage.EntityID][]float32
	count   int
}

// New creates a populating index. schemaID is the label id (node indexes) or
// relation id (edge indexes) of def.Schema, attrs the resolved attribute ids.
func New(def storage.IndexDefinition, schemaID int, attrs []storage.AttributeID) *Index {
	idx := &Index{
		def:      def,
		schemaID: schemaID,
		attrs:    append([]storage.AttributeID(nil), attrs...),
		entries:  make(map[storage.AttributeID]map[string]map[storage.EntityID]struct{}, len(attrs)),
	}
	if def.Kind == storage.IndexVector {
		idx.vectors = make(map[storage.EntityID][]float32)
	} else {
		for _, a := range attrs {
			idx.entries[a] = make(map[string]map[storage.EntityID]struct{})
		}
	}
	idx.state.Store(int32(StatePopulating))
	return idx
}

// Definition returns the index definition.
func (idx *Index) Definition() storage.IndexDefinition { return idx.def }

// ID returns the definition id.
func (idx *Index) ID() string { return idx.def.ID }

// EntityType reports whether the index covers nodes or edges.
func (idx *Index) EntityType() storage.EntityType { return idx.def.Entity }

// SchemaID returns the label or relation id the index covers.
func (idx *Index) SchemaID() int { return idx.schemaID }

// State returns the current population state.
func (idx *Index) State() State { return State(idx.state.Load()) }

// Enable moves the index from POPULATING to ACTIVE. It reports false, and
// changes nothing, when the index left POPULATING in the meantime.
func (idx *Index) Enable() bool {
	return idx.state.CompareAndSwap(int32(StatePopulating), int32(StateActive))
}

// Disable moves the index to DISABLED. A running populator stops at its next
// batch boundary.
func (idx *Index) Disable() {
	idx.state.Store(int32(StateDisabled))
}

func (idx *Index) add(attr storage.AttributeID, v storage.Value, id storage.EntityID) {
	if idx.vectors != nil {
		idx.addVector(v, id)
		return
	}
	byValue, ok := idx.entries[attr]
	if !ok {
		return
	}
	key := v.Key()
	ids := byValue[key]
	if ids == nil {
		ids = make(map[storage.EntityID]struct{})
		byValue[key] = ids
	}
	if _, dup := ids[id]; !dup {
		ids[id] = struct{}{}
		idx.count++
	}
}

// IndexNode adds node id to the index. Requires at least the graph read lock.
// Nodes missing every indexed attribute are skipped.
func (idx *Index) IndexNode(g *storage.Graph, id storage.NodeID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, a := range idx.attrs {
		if v, ok := g.NodeAttribute(id, a); ok {
			idx.add(a, v, id)
		}
	}
}

// IndexEdge adds edge id to the index. Requires at least the graph read lock.
func (idx *Index) IndexEdge(g *storage.Graph, id storage.EdgeID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, a := range idx.attrs {
		if v, ok := g.EdgeAttribute(id, a); ok {
			idx.add(a, v, id)
		}
	}
}

// Remove drops id from every entry.
func (idx *Index) Remove(id storage.EntityID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.vectors[id]; ok {
		delete(idx.vectors, id)
		idx.count--
	}
	for _, byValue := range idx.entries {
		for key, ids := range byValue {
			if _, ok := ids[id]; ok {
				delete(ids, id)
				idx.count--
				if len(ids) == 0 {
					delete(byValue, key)
				}
			}
		}
	}
}

// Query returns, in ascending order, the ids of entities whose attribute
// attr equals v.
func (idx *Index) Query(attr storage.AttributeID, v storage.Value) ([]storage.EntityID, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	byValue, ok := idx.entries[attr]
	if !ok {
		return nil, fmt.Errorf("attribute %d is not indexed by %s: %w", attr, idx.def.ID, storage.ErrNotFound)
	}
	ids := byValue[v.Key()]
	out := make([]storage.EntityID, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Len returns the number of (attribute, entity) entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.count
}
