package index

import (
	"fmt"
	"slices"
	"sync"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// slotKey identifies an index slot. vector is the indexed attribute of a
// vector slot and empty for the property slot of a schema.
type slotKey struct {
	entity storage.EntityType
	schema string
	vector string
}

func keyOf(def storage.IndexDefinition) slotKey {
	if def.Kind == storage.IndexVector {
		return slotKey{def.Entity, def.Schema, def.Attributes[0]}
	}
	return slotKey{entity: def.Entity, schema: def.Schema}
}

// slot holds the indexes of one label or relation type. While a new
// definition populates, the previous one keeps answering queries.
type slot struct {
	active  *Index
	pending *Index
}

// Registry tracks the indexes of a graph: one property slot per label (node
// indexes) or relation type (edge indexes), plus one slot per vector-indexed
// attribute.
//
// Adding attributes to an indexed schema creates a new pending index covering
// the union of attributes. If another pending index existed for the slot it is
// disabled, which makes its populator give up at the next batch boundary.
type Registry struct {
	mu    sync.RWMutex
	g     *storage.Graph
	slots map[slotKey]*slot
}

// NewRegistry creates an empty registry for g.
func NewRegistry(g *storage.Graph) *Registry {
	return &Registry{g: g, slots: make(map[slotKey]*slot)}
}

// Create declares an index on attrs of the entities labeled (or typed)
// schema and returns the pending index to populate. Takes the graph write lock.
func (r *Registry) Create(entity storage.EntityType, schema string, attrs ...string) (*Index, error) {
	if schema == "" || len(attrs) == 0 {
		return nil, fmt.Errorf("index on %q: %w", schema, storage.ErrInvalidData)
	}

	// graph lock first: IndexNode runs under the graph lock and takes r.mu
	r.g.AcquireWrite()
	defer r.g.Release()
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey{entity: entity, schema: schema}
	s := r.slots[key]
	if s == nil {
		s = &slot{}
		r.slots[key] = s
	}

	var merged []string
	for _, cur := range []*Index{s.active, s.pending} {
		if cur != nil {
			merged = append(merged, cur.def.Attributes...)
		}
	}
	covered := true
	for _, a := range attrs {
		if !slices.Contains(merged, a) {
			merged = append(merged, a)
			covered = false
		}
	}
	if covered && (s.pending != nil || s.active != nil) {
		if s.pending != nil {
			return s.pending, nil
		}
		return s.active, nil
	}

	def, err := r.g.Schema().AddPropertyIndex(entity, schema, merged...)
	if err != nil {
		return nil, err
	}
	idx := r.build(*def)

	if s.pending != nil {
		s.pending.Disable()
		_ = r.g.Schema().DropIndex(s.pending.ID())
	}
	s.pending = idx
	return idx, nil
}

// CreateVector declares a vector index on attr of the entities labeled (or
// typed) schema and returns the index to populate. Vector indexes are not
// merged: redeclaring an identical one returns the current index, and changing
// dim or sim requires dropping it first. Takes the graph write lock.
func (r *Registry) CreateVector(entity storage.EntityType, schema, attr string, dim int, sim string) (*Index, error) {
	r.g.AcquireWrite()
	defer r.g.Release()
	r.mu.Lock()
	defer r.mu.Unlock()

	def, err := r.g.Schema().AddVectorIndex(entity, schema, attr, dim, sim)
	if err != nil {
		return nil, err
	}
	key := keyOf(*def)
	s := r.slots[key]
	if s == nil {
		s = &slot{}
		r.slots[key] = s
	}
	for _, cur := range []*Index{s.pending, s.active} {
		if cur != nil && cur.ID() == def.ID {
			return cur, nil
		}
	}
	s.pending = r.build(*def)
	return s.pending, nil
}

// build resolves a definition against the graph. Requires the write lock.
func (r *Registry) build(def storage.IndexDefinition) *Index {
	var schemaID int
	if def.Entity == storage.EntityEdge {
		schemaID = int(r.g.GetOrCreateRelation(def.Schema))
	} else {
		schemaID = int(r.g.GetOrCreateLabel(def.Schema))
	}
	attrIDs := make([]storage.AttributeID, len(def.Attributes))
	for i, a := range def.Attributes {
		attrIDs[i] = r.g.Schema().GetOrAddAttribute(a)
	}
	return New(def, schemaID, attrIDs)
}

// Restore registers an index for every definition in the graph schema, all
// of them pending, and returns them. In-memory entries are not persisted, so
// every index must be populated again after a load. Takes the graph write lock.
func (r *Registry) Restore() []*Index {
	r.g.AcquireWrite()
	defer r.g.Release()
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Index
	for _, def := range r.g.Schema().GetIndexes() {
		idx := r.build(def)
		key := keyOf(def)
		s := r.slots[key]
		if s == nil {
			s = &slot{}
			r.slots[key] = s
		}
		if s.pending != nil {
			s.pending.Disable()
		}
		s.pending = idx
		out = append(out, idx)
	}
	return out
}

// Promote makes idx the active index of its slot once it is ACTIVE. The index
// it replaces is disabled. Promoting a stale index is a no-op.
func (r *Registry) Promote(idx *Index) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.slots[keyOf(idx.def)]
	if s == nil || s.pending != idx || idx.State() != StateActive {
		return false
	}
	if s.active != nil {
		s.active.Disable()
		_ = r.g.Schema().DropIndex(s.active.ID())
	}
	s.active = idx
	s.pending = nil
	return true
}

// Drop disables and forgets the property indexes of a schema.
func (r *Registry) Drop(entity storage.EntityType, schema string) error {
	return r.drop(slotKey{entity: entity, schema: schema})
}

// DropVector disables and forgets the vector index on attr.
func (r *Registry) DropVector(entity storage.EntityType, schema, attr string) error {
	return r.drop(slotKey{entity, schema, attr})
}

func (r *Registry) drop(key slotKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.slots[key]
	if s == nil {
		return fmt.Errorf("index on %s %q: %w", key.entity, key.schema, storage.ErrNotFound)
	}
	for _, idx := range []*Index{s.active, s.pending} {
		if idx != nil {
			idx.Disable()
			_ = r.g.Schema().DropIndex(idx.ID())
		}
	}
	delete(r.slots, key)
	return nil
}

// Lookup returns the active property index of a schema, or nil.
func (r *Registry) Lookup(entity storage.EntityType, schema string) *Index {
	return r.lookup(slotKey{entity: entity, schema: schema})
}

// LookupVector returns the active vector index on attr, or nil.
func (r *Registry) LookupVector(entity storage.EntityType, schema, attr string) *Index {
	return r.lookup(slotKey{entity, schema, attr})
}

func (r *Registry) lookup(key slotKey) *Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.slots[key]; s != nil {
		return s.active
	}
	return nil
}

// each calls fn for every live index, active or populating, covering schema.
// Requires r.mu.
func (r *Registry) each(entity storage.EntityType, schema string, fn func(*Index)) {
	for key, s := range r.slots {
		if key.entity != entity || key.schema != schema {
			continue
		}
		for _, idx := range []*Index{s.active, s.pending} {
			if idx != nil && idx.State() != StateDisabled {
				fn(idx)
			}
		}
	}
}

// Pending returns every index still populating.
func (r *Registry) Pending() []*Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Index
	for _, s := range r.slots {
		if s.pending != nil && s.pending.State() == StatePopulating {
			out = append(out, s.pending)
		}
	}
	return out
}

// IndexNode adds a freshly created node to the indexes of its labels, both
// active and populating. Requires at least the graph read lock.
func (r *Registry) IndexNode(id storage.NodeID) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.g.NodeLabels(id) {
		name, err := r.g.Schema().LabelName(l)
		if err != nil {
			continue
		}
		r.each(storage.EntityNode, name, func(idx *Index) { idx.IndexNode(r.g, id) })
	}
}

// IndexEdge adds a freshly created edge to the indexes of its relation type.
// Requires at least the graph read lock.
func (r *Registry) IndexEdge(id storage.EdgeID, rel storage.RelationID) {
	name, err := r.g.Schema().RelationName(rel)
	if err != nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.each(storage.EntityEdge, name, func(idx *Index) { idx.IndexEdge(r.g, id) })
}
