package storage

// Attribute is one (id, value) pair of an entity.
type Attribute struct {
	ID    AttributeID
	Value Value
}

// AttributeSet is the ordered attribute collection of a node or edge.
// Insertion order is preserved; it is also the persistence order.
type AttributeSet struct {
	attrs []Attribute
}

// NewAttributeSet creates a set from pairs. Later duplicates win.
func NewAttributeSet(attrs ...Attribute) *AttributeSet {
	s := &AttributeSet{}
	for _, a := range attrs {
		s.Set(a.ID, a.Value)
	}
	return s
}

// Count returns the number of attributes.
func (s *AttributeSet) Count() int {
	if s == nil {
		return 0
	}
	return len(s.attrs)
}

// At returns the i-th attribute in insertion order.
func (s *AttributeSet) At(i int) Attribute { return s.attrs[i] }

// Get returns the value of attribute id.
func (s *AttributeSet) Get(id AttributeID) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	for _, a := range s.attrs {
		if a.ID == id {
			return a.Value, true
		}
	}
	return Value{}, false
}

// Set adds or replaces attribute id. Setting Null removes the attribute.
// It reports whether the set changed.
func (s *AttributeSet) Set(id AttributeID, v Value) bool {
	for i, a := range s.attrs {
		if a.ID != id {
			continue
		}
		if v.IsNull() {
			s.attrs = append(s.attrs[:i], s.attrs[i+1:]...)
			return true
		}
		if a.Value.Equal(v) && a.Value.Type() == v.Type() {
			return false
		}
		s.attrs[i].Value = v
		return true
	}
	if v.IsNull() {
		return false
	}
	s.attrs = append(s.attrs, Attribute{ID: id, Value: v})
	return true
}

// Remove deletes attribute id.
func (s *AttributeSet) Remove(id AttributeID) bool {
	return s.Set(id, NullValue())
}

// Clone returns an independent copy. Values are immutable and shared.
func (s *AttributeSet) Clone() *AttributeSet {
	if s == nil {
		return &AttributeSet{}
	}
	return &AttributeSet{attrs: append([]Attribute(nil), s.attrs...)}
}
