package storage

import (
	"fmt"

	"github.com/orneryd/matrixgraph/pkg/sparse"
)

// TupleIterator walks the entries of an AdjacencyMatrix in row-major,
// column-ascending order, optionally restricted to a row range.
//
// The zero value is a detached iterator. Attaching captures the matrix version
// published at that moment, so a flush that happens while the iterator is in
// use is not observed; re-attach to see newer data.
//
// An iterator holds no heap state of its own and may be embedded by value in
// operators. It is not safe for concurrent use.
//
// Example:
//
//	var it storage.TupleIterator[bool]
//	if err := it.Attach(m); err != nil {
//		return err
//	}
//	for {
//		row, col, _, err := it.Next()
//		if errors.Is(err, storage.ErrIteratorExhausted) {
//			break
//		}
//		...
//	}
type TupleIterator[T any] struct {
	m    *AdjacencyMatrix[T]
	data *sparse.Matrix[T]

	minRow uint64
	endRow uint64 // exclusive

	pos int // position in the row table
	k   int // position inside the current row

	attached bool
}

// Attach binds the iterator to m over all of its rows.
// Attaching to an empty matrix succeeds; Next reports exhaustion at once.
func (it *TupleIterator[T]) Attach(m *AdjacencyMatrix[T]) error {
	data := m.snapshot()
	it.bind(m, data, 0, data.NRows())
	return nil
}

// AttachRange binds the iterator to rows [minRow, maxRow] of m, both inclusive.
// Returns ErrDimensionMismatch when minRow > maxRow or maxRow is outside m.
func (it *TupleIterator[T]) AttachRange(m *AdjacencyMatrix[T], minRow, maxRow uint64) error {
	data := m.snapshot()
	if err := checkRange(data, minRow, maxRow); err != nil {
		return err
	}
	it.bind(m, data, minRow, maxRow+1)
	return nil
}

func checkRange[T any](data *sparse.Matrix[T], minRow, maxRow uint64) error {
	if minRow > maxRow || maxRow >= data.NRows() {
		return fmt.Errorf("%w: rows [%d,%d] of %d", ErrDimensionMismatch, minRow, maxRow, data.NRows())
	}
	return nil
}

func (it *TupleIterator[T]) bind(m *AdjacencyMatrix[T], data *sparse.Matrix[T], minRow, endRow uint64) {
	it.m = m
	it.data = data
	it.minRow = minRow
	it.endRow = endRow
	it.attached = true
	it.rewind(minRow)
}

func (it *TupleIterator[T]) rewind(row uint64) {
	it.pos = it.data.SeekRow(row)
	it.k = 0
}

// Next returns the next entry. It returns ErrIteratorExhausted once the range
// is consumed and ErrIteratorDetached when the iterator is not attached.
func (it *TupleIterator[T]) Next() (row, col uint64, val T, err error) {
	if !it.attached {
		return 0, 0, val, ErrIteratorDetached
	}
	for it.pos < it.data.RowCount() {
		r, cols, vals := it.data.RowAt(it.pos)
		if r >= it.endRow {
			break
		}
		if it.k < len(cols) {
			col, val = cols[it.k], vals[it.k]
			it.k++
			return r, col, val, nil
		}
		it.pos++
		it.k = 0
	}
	return 0, 0, val, ErrIteratorExhausted
}

// Reset rewinds to the start of the range. The matrix version and range are kept.
func (it *TupleIterator[T]) Reset() {
	if !it.attached {
		return
	}
	it.rewind(it.minRow)
}

// Detach releases the iterator. Detaching a detached iterator is a no-op.
func (it *TupleIterator[T]) Detach() {
	*it = TupleIterator[T]{}
}

// IsAttached reports whether the iterator is bound to m.
func (it *TupleIterator[T]) IsAttached(m *AdjacencyMatrix[T]) bool {
	return it.attached && it.m == m
}

// JumpToRow moves the cursor to the first entry of row (or the next
// non-empty row after it). Rows before the range start are rejected.
func (it *TupleIterator[T]) JumpToRow(row uint64) error {
	if !it.attached {
		return ErrIteratorDetached
	}
	if row < it.minRow {
		return fmt.Errorf("%w: row %d before range start %d", ErrDimensionMismatch, row, it.minRow)
	}
	it.rewind(row)
	return nil
}

// IterateRow restricts the iterator to a single row of the captured version.
func (it *TupleIterator[T]) IterateRow(row uint64) error {
	return it.IterateRange(row, row)
}

// IterateRange changes the row range without rebinding to a newer version.
func (it *TupleIterator[T]) IterateRange(minRow, maxRow uint64) error {
	if !it.attached {
		return ErrIteratorDetached
	}
	if err := checkRange(it.data, minRow, maxRow); err != nil {
		return err
	}
	it.minRow = minRow
	it.endRow = maxRow + 1
	it.rewind(minRow)
	return nil
}
