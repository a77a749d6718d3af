// Package sparse provides the sparse matrix capability the adjacency store is
// built on.
//
// A Matrix keeps only its non-empty rows, sorted by row index, and each row keeps
// its columns sorted ascending. That layout gives the two access patterns the
// graph engine needs:
//   - row-major, column-ascending tuple enumeration starting at any row
//   - O(log n) point lookups
//
// Versioning:
//
// Row content slices are never written in place once published. Every mutation
// replaces the affected row slice, so Clone is a shallow copy of the row table
// and the clone can be mutated freely while readers keep scanning the original.
// The adjacency store relies on this to flush pending operations without
// disturbing iterators attached to the previous version.
//
// Example:
//
//	m := sparse.New[bool](4, 4)
//	_ = m.Set(1, 2, true)
//	_ = m.Set(3, 0, true)
//	rows, cols, _ := m.Tuples() // rows=[1 3] cols=[2 0]
//
// This package is intentionally small: it is not a general linear algebra
// library, only boolean/typed storage, transpose and a structural multiply.
package sparse

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	// ErrIndexOutOfBounds is returned when a row or column lies outside the matrix.
	ErrIndexOutOfBounds = errors.New("sparse: index out of bounds")

	// ErrDimensionMismatch is returned when operand shapes are incompatible.
	ErrDimensionMismatch = errors.New("sparse: dimension mismatch")
)

type row[T any] struct {
	cols []uint64
	vals []T
}

// Matrix is a hypersparse matrix with entries of type T.
//
// The zero value is not usable, create matrices with New.
// A Matrix is not safe for concurrent mutation; concurrent readers are safe
// as long as nobody mutates the same version.
type Matrix[T any] struct {
	nrows uint64
	ncols uint64
	nvals uint64

	rowIdx []uint64 // sorted indexes of non-empty rows
	rows   []row[T] // rows[i] holds row rowIdx[i]
}

// New creates an empty nrows x ncols matrix.
func New[T any](nrows, ncols uint64) *Matrix[T] {
	return &Matrix[T]{nrows: nrows, ncols: ncols}
}

// NRows returns the number of rows.
func (m *Matrix[T]) NRows() uint64 { return m.nrows }

// NCols returns the number of columns.
func (m *Matrix[T]) NCols() uint64 { return m.ncols }

// NVals returns the number of stored entries.
func (m *Matrix[T]) NVals() uint64 { return m.nvals }

// RowCount returns the number of non-empty rows.
func (m *Matrix[T]) RowCount() int { return len(m.rowIdx) }

// Resize changes the matrix dimensions. Entries outside the new bounds are
// dropped. Callers that must never shrink enforce that themselves.
func (m *Matrix[T]) Resize(nrows, ncols uint64) {
	if nrows < m.nrows {
		cut := sort.Search(len(m.rowIdx), func(i int) bool { return m.rowIdx[i] >= nrows })
		for _, r := range m.rows[cut:] {
			m.nvals -= uint64(len(r.cols))
		}
		m.rowIdx = m.rowIdx[:cut:cut]
		m.rows = m.rows[:cut:cut]
	}

	if ncols < m.ncols {
		for i := range m.rows {
			r := m.rows[i]
			cut := sort.Search(len(r.cols), func(k int) bool { return r.cols[k] >= ncols })
			if cut == len(r.cols) {
				continue
			}
			m.nvals -= uint64(len(r.cols) - cut)
			m.rows[i] = row[T]{cols: slices.Clone(r.cols[:cut]), vals: slices.Clone(r.vals[:cut])}
		}
		m.compact()
	}

	m.nrows = nrows
	m.ncols = ncols
}

// compact drops rows left empty by a column shrink.
func (m *Matrix[T]) compact() {
	keep := 0
	for i := range m.rows {
		if len(m.rows[i].cols) == 0 {
			continue
		}
		m.rowIdx[keep] = m.rowIdx[i]
		m.rows[keep] = m.rows[i]
		keep++
	}
	m.rowIdx = m.rowIdx[:keep]
	m.rows = m.rows[:keep]
}

func (m *Matrix[T]) checkBounds(i, j uint64) error {
	if i >= m.nrows || j >= m.ncols {
		return fmt.Errorf("%w: (%d,%d) in %dx%d", ErrIndexOutOfBounds, i, j, m.nrows, m.ncols)
	}
	return nil
}

// findRow returns the position of row i in the row table and whether it exists.
func (m *Matrix[T]) findRow(i uint64) (int, bool) {
	pos, found := slices.BinarySearch(m.rowIdx, i)
	return pos, found
}

// Get returns the entry at (i, j).
func (m *Matrix[T]) Get(i, j uint64) (T, bool) {
	var zero T
	pos, ok := m.findRow(i)
	if !ok {
		return zero, false
	}
	r := m.rows[pos]
	k, found := slices.BinarySearch(r.cols, j)
	if !found {
		return zero, false
	}
	return r.vals[k], true
}

// Set stores v at (i, j), replacing any existing entry.
func (m *Matrix[T]) Set(i, j uint64, v T) error {
	if err := m.checkBounds(i, j); err != nil {
		return err
	}

	pos, ok := m.findRow(i)
	if !ok {
		m.rowIdx = slices.Insert(m.rowIdx, pos, i)
		m.rows = slices.Insert(m.rows, pos, row[T]{cols: []uint64{j}, vals: []T{v}})
		m.nvals++
		return nil
	}

	r := m.rows[pos]
	k, found := slices.BinarySearch(r.cols, j)
	if found {
		vals := slices.Clone(r.vals)
		vals[k] = v
		m.rows[pos] = row[T]{cols: r.cols, vals: vals}
		return nil
	}

	cols := make([]uint64, 0, len(r.cols)+1)
	cols = append(cols, r.cols[:k]...)
	cols = append(cols, j)
	cols = append(cols, r.cols[k:]...)
	vals := make([]T, 0, len(r.vals)+1)
	vals = append(vals, r.vals[:k]...)
	vals = append(vals, v)
	vals = append(vals, r.vals[k:]...)
	m.rows[pos] = row[T]{cols: cols, vals: vals}
	m.nvals++
	return nil
}

// Remove deletes the entry at (i, j). It reports whether an entry was removed.
func (m *Matrix[T]) Remove(i, j uint64) bool {
	pos, ok := m.findRow(i)
	if !ok {
		return false
	}
	r := m.rows[pos]
	k, found := slices.BinarySearch(r.cols, j)
	if !found {
		return false
	}

	m.nvals--
	if len(r.cols) == 1 {
		m.rowIdx = slices.Delete(m.rowIdx, pos, pos+1)
		m.rows = slices.Delete(m.rows, pos, pos+1)
		return true
	}

	cols := make([]uint64, 0, len(r.cols)-1)
	cols = append(cols, r.cols[:k]...)
	cols = append(cols, r.cols[k+1:]...)
	vals := make([]T, 0, len(r.vals)-1)
	vals = append(vals, r.vals[:k]...)
	vals = append(vals, r.vals[k+1:]...)
	m.rows[pos] = row[T]{cols: cols, vals: vals}
	return true
}

// Row returns the columns and values of row i. The slices are read-only views.
func (m *Matrix[T]) Row(i uint64) ([]uint64, []T) {
	pos, ok := m.findRow(i)
	if !ok {
		return nil, nil
	}
	return m.rows[pos].cols, m.rows[pos].vals
}

// SeekRow returns the position in the row table of the first non-empty row
// whose index is >= i. The result equals RowCount() when no such row exists.
func (m *Matrix[T]) SeekRow(i uint64) int {
	pos, _ := m.findRow(i)
	return pos
}

// RowAt returns the row stored at position pos of the row table.
func (m *Matrix[T]) RowAt(pos int) (uint64, []uint64, []T) {
	r := m.rows[pos]
	return m.rowIdx[pos], r.cols, r.vals
}

// Clone returns a new version of the matrix sharing immutable row contents.
func (m *Matrix[T]) Clone() *Matrix[T] {
	return &Matrix[T]{
		nrows:  m.nrows,
		ncols:  m.ncols,
		nvals:  m.nvals,
		rowIdx: slices.Clone(m.rowIdx),
		rows:   slices.Clone(m.rows),
	}
}

// Clear removes every entry, keeping the dimensions.
func (m *Matrix[T]) Clear() {
	m.rowIdx = nil
	m.rows = nil
	m.nvals = 0
}

// Tuples extracts all entries in row-major, column-ascending order.
func (m *Matrix[T]) Tuples() (rows, cols []uint64, vals []T) {
	rows = make([]uint64, 0, m.nvals)
	cols = make([]uint64, 0, m.nvals)
	vals = make([]T, 0, m.nvals)
	for pos, r := range m.rows {
		for k := range r.cols {
			rows = append(rows, m.rowIdx[pos])
			cols = append(cols, r.cols[k])
			vals = append(vals, r.vals[k])
		}
	}
	return rows, cols, vals
}

// Transpose returns a new matrix holding the transpose of m.
func (m *Matrix[T]) Transpose() *Matrix[T] {
	byCol := make(map[uint64]*row[T])
	for pos, r := range m.rows {
		i := m.rowIdx[pos]
		for k, j := range r.cols {
			t := byCol[j]
			if t == nil {
				t = &row[T]{}
				byCol[j] = t
			}
			// rows are visited in ascending order so columns stay sorted
			t.cols = append(t.cols, i)
			t.vals = append(t.vals, r.vals[k])
		}
	}

	out := &Matrix[T]{nrows: m.ncols, ncols: m.nrows, nvals: m.nvals}
	out.rowIdx = make([]uint64, 0, len(byCol))
	for j := range byCol {
		out.rowIdx = append(out.rowIdx, j)
	}
	slices.Sort(out.rowIdx)
	out.rows = make([]row[T], len(out.rowIdx))
	for pos, j := range out.rowIdx {
		out.rows[pos] = *byCol[j]
	}
	return out
}
