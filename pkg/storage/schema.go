package storage

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// IndexKind selects how an index answers queries.
type IndexKind int

const (
	// IndexProperty answers exact-match lookups on attribute values.
	IndexProperty IndexKind = iota
	// IndexVector answers k-nearest-neighbor lookups over a single
	// fixed-length float32 vector attribute.
	IndexVector
)

func (k IndexKind) String() string {
	if k == IndexVector {
		return "VECTOR"
	}
	return "PROPERTY"
}

// Similarity functions supported by vector indexes.
const (
	SimilarityCosine = "cosine"
	SimilarityDot    = "dot"
)

// IndexDefinition describes an index over the entities carrying a label
// (nodes) or a relation type (edges).
type IndexDefinition struct {
	ID         string
	Kind       IndexKind
	Entity     EntityType
	Schema     string   // label or relation type name
	Attributes []string // indexed attribute names
	Pending    bool     // true until population has finished

	// vector indexes only
	Dimension  int
	Similarity string
}

// SchemaManager maps label, relation type and attribute names to dense ids
// and keeps the index definitions of a graph.
//
// Ids are assigned in creation order starting at 0 and never reused, so they
// can index the graph's matrix slices directly and survive persistence.
type SchemaManager struct {
	mu sync.RWMutex

	labels    []string
	labelIDs  map[string]LabelID
	relations []string
	relIDs    map[string]RelationID
	attrs     []string
	attrIDs   map[string]AttributeID

	indexes []*IndexDefinition
}

// NewSchemaManager creates an empty schema.
func NewSchemaManager() *SchemaManager {
	return &SchemaManager{
		labelIDs: make(map[string]LabelID),
		relIDs:   make(map[string]RelationID),
		attrIDs:  make(map[string]AttributeID),
	}
}

// LabelID resolves a label name. Returns UnknownLabel when undeclared.
func (s *SchemaManager) LabelID(name string) LabelID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.labelIDs[name]; ok {
		return id
	}
	return UnknownLabel
}

// RelationID resolves a relation type name. Returns UnknownRelation when undeclared.
func (s *SchemaManager) RelationID(name string) RelationID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.relIDs[name]; ok {
		return id
	}
	return UnknownRelation
}

// AttributeID resolves an attribute name. The second result is false when undeclared.
func (s *SchemaManager) AttributeID(name string) (AttributeID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.attrIDs[name]
	return id, ok
}

// GetOrAddLabel returns the id of name, declaring it if needed.
// The second result reports whether the label is new.
func (s *SchemaManager) GetOrAddLabel(name string) (LabelID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.labelIDs[name]; ok {
		return id, false
	}
	id := LabelID(len(s.labels))
	s.labels = append(s.labels, name)
	s.labelIDs[name] = id
	return id, true
}

// GetOrAddRelation returns the id of name, declaring it if needed.
func (s *SchemaManager) GetOrAddRelation(name string) (RelationID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.relIDs[name]; ok {
		return id, false
	}
	id := RelationID(len(s.relations))
	s.relations = append(s.relations, name)
	s.relIDs[name] = id
	return id, true
}

// GetOrAddAttribute returns the id of name, declaring it if needed.
func (s *SchemaManager) GetOrAddAttribute(name string) AttributeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.attrIDs[name]; ok {
		return id
	}
	id := AttributeID(len(s.attrs))
	s.attrs = append(s.attrs, name)
	s.attrIDs[name] = id
	return id
}

// LabelName returns the name of label id.
func (s *SchemaManager) LabelName(id LabelID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || int(id) >= len(s.labels) {
		return "", fmt.Errorf("label %d: %w", id, ErrNotFound)
	}
	return s.labels[id], nil
}

// RelationName returns the name of relation type id.
func (s *SchemaManager) RelationName(id RelationID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || int(id) >= len(s.relations) {
		return "", fmt.Errorf("relation %d: %w", id, ErrNotFound)
	}
	return s.relations[id], nil
}

// AttributeName returns the name of attribute id.
func (s *SchemaManager) AttributeName(id AttributeID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || int(id) >= len(s.attrs) {
		return "", fmt.Errorf("attribute %d: %w", id, ErrNotFound)
	}
	return s.attrs[id], nil
}

// Labels returns all label names in id order.
func (s *SchemaManager) Labels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.labels)
}

// Relations returns all relation type names in id order.
func (s *SchemaManager) Relations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.relations)
}

// Attributes returns all attribute names in id order.
func (s *SchemaManager) Attributes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.attrs)
}

// AddPropertyIndex declares a pending index on attrs of entities with the
// given label or relation type. Declaring an index that already exists with
// the same attributes is a no-op returning the existing definition.
func (s *SchemaManager) AddPropertyIndex(entity EntityType, schema string, attrs ...string) (*IndexDefinition, error) {
	if schema == "" || len(attrs) == 0 {
		return nil, fmt.Errorf("index on %q: %w", schema, ErrInvalidData)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range s.indexes {
		if def.Kind == IndexProperty && def.Entity == entity && def.Schema == schema && slices.Equal(def.Attributes, attrs) {
			return def, nil
		}
	}
	def := &IndexDefinition{
		ID:         uuid.New().String(),
		Entity:     entity,
		Schema:     schema,
		Attributes: slices.Clone(attrs),
		Pending:    true,
	}
	s.indexes = append(s.indexes, def)
	return def, nil
}

// AddVectorIndex declares a pending vector index on attr. Vectors must have
// exactly dim components; sim is SimilarityCosine or SimilarityDot.
// Redeclaring an identical index returns the existing definition, while a
// declaration that differs in dimension or similarity is rejected.
func (s *SchemaManager) AddVectorIndex(entity EntityType, schema, attr string, dim int, sim string) (*IndexDefinition, error) {
	if schema == "" || attr == "" || dim <= 0 {
		return nil, fmt.Errorf("vector index on %q.%q dim %d: %w", schema, attr, dim, ErrInvalidData)
	}
	if sim != SimilarityCosine && sim != SimilarityDot {
		return nil, fmt.Errorf("similarity %q: %w", sim, ErrInvalidData)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range s.indexes {
		if def.Kind != IndexVector || def.Entity != entity || def.Schema != schema || def.Attributes[0] != attr {
			continue
		}
		if def.Dimension != dim || def.Similarity != sim {
			return nil, fmt.Errorf("vector index on %s.%s already exists with dim %d %s: %w",
				schema, attr, def.Dimension, def.Similarity, ErrAlreadyExists)
		}
		return def, nil
	}
	def := &IndexDefinition{
		ID:         uuid.New().String(),
		Kind:       IndexVector,
		Entity:     entity,
		Schema:     schema,
		Attributes: []string{attr},
		Pending:    true,
		Dimension:  dim,
		Similarity: sim,
	}
	s.indexes = append(s.indexes, def)
	return def, nil
}

// RestoreIndex re-registers a definition read from persistence.
func (s *SchemaManager) RestoreIndex(def IndexDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := def
	d.Attributes = slices.Clone(def.Attributes)
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	s.indexes = append(s.indexes, &d)
}

// DropIndex removes the definition with the given id.
func (s *SchemaManager) DropIndex(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, def := range s.indexes {
		if def.ID == id {
			s.indexes = slices.Delete(s.indexes, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("index %s: %w", id, ErrNotFound)
}

// MarkIndexActive clears the pending flag of index id.
func (s *SchemaManager) MarkIndexActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range s.indexes {
		if def.ID == id {
			def.Pending = false
		}
	}
}

// GetIndexes returns copies of every index definition.
func (s *SchemaManager) GetIndexes() []IndexDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IndexDefinition, len(s.indexes))
	for i, def := range s.indexes {
		out[i] = *def
		out[i].Attributes = slices.Clone(def.Attributes)
	}
	return out
}

// PendingIndexes returns the definitions still waiting for population.
func (s *SchemaManager) PendingIndexes() []IndexDefinition {
	all := s.GetIndexes()
	out := all[:0]
	for _, def := range all {
		if def.Pending {
			out = append(out, def)
		}
	}
	return out
}
