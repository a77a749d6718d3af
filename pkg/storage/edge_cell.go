package storage

import "slices"

// EdgeCell is the value of a relation matrix entry: either a single edge id or
// the collection of edge ids that connect the same (src, dst) pair.
//
// EdgeCell is a value type. Its id slice is never modified after construction,
// With and Without return new cells, so cells can be shared between matrix
// versions and handed out to readers.
type EdgeCell struct {
	single EdgeID
	multi  []EdgeID
}

// SingleEdge returns a cell holding one edge.
func SingleEdge(id EdgeID) EdgeCell { return EdgeCell{single: id} }

// MultipleEdges returns a cell holding ids. One id yields a single-edge cell.
func MultipleEdges(ids ...EdgeID) EdgeCell {
	switch len(ids) {
	case 0:
		return EdgeCell{single: InvalidEntityID}
	case 1:
		return EdgeCell{single: ids[0]}
	}
	return EdgeCell{single: InvalidEntityID, multi: slices.Clone(ids)}
}

// IsMultiple reports whether the cell holds more than one edge.
func (c EdgeCell) IsMultiple() bool { return len(c.multi) > 0 }

// IsEmpty reports whether the cell holds no edge at all.
func (c EdgeCell) IsEmpty() bool { return len(c.multi) == 0 && c.single == InvalidEntityID }

// Single returns the edge id of a single-edge cell.
func (c EdgeCell) Single() EdgeID { return c.single }

// Len returns the number of edges in the cell.
func (c EdgeCell) Len() int {
	if c.IsMultiple() {
		return len(c.multi)
	}
	if c.single == InvalidEntityID {
		return 0
	}
	return 1
}

// IDs returns the edge ids in insertion order. The result is a fresh slice.
func (c EdgeCell) IDs() []EdgeID {
	if c.IsMultiple() {
		return slices.Clone(c.multi)
	}
	if c.single == InvalidEntityID {
		return nil
	}
	return []EdgeID{c.single}
}

// At returns the i-th edge id.
func (c EdgeCell) At(i int) EdgeID {
	if c.IsMultiple() {
		return c.multi[i]
	}
	return c.single
}

// With returns a cell that also holds id, promoting a single cell to a
// multi-edge cell when needed.
func (c EdgeCell) With(id EdgeID) EdgeCell {
	if c.IsEmpty() {
		return SingleEdge(id)
	}
	ids := c.IDs()
	if slices.Contains(ids, id) {
		return c
	}
	return MultipleEdges(append(ids, id)...)
}

// Without returns a cell without id. A multi-edge cell left with one id is
// demoted to a single cell; removing the last id yields an empty cell.
func (c EdgeCell) Without(id EdgeID) EdgeCell {
	ids := c.IDs()
	i := slices.Index(ids, id)
	if i < 0 {
		return c
	}
	return MultipleEdges(slices.Delete(ids, i, i+1)...)
}
