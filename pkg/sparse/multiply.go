package sparse

import (
	"fmt"
	"slices"
)

// Multiply computes the structural boolean product C = A·B.
//
// C[i,j] is true iff there is some k with A[i,k] and B[k,j] both present.
// Entry values are ignored, only the sparsity pattern matters, which is what
// graph traversal needs (a relation matrix entry means "an edge exists").
//
// Returns ErrDimensionMismatch when A.NCols() != B.NRows().
func Multiply[A, B any](a *Matrix[A], b *Matrix[B]) (*Matrix[bool], error) {
	if a.ncols != b.nrows {
		return nil, fmt.Errorf("%w: %dx%d · %dx%d", ErrDimensionMismatch, a.nrows, a.ncols, b.nrows, b.ncols)
	}

	c := New[bool](a.nrows, b.ncols)
	seen := make(map[uint64]struct{})
	for pos, ar := range a.rows {
		clear(seen)
		for _, k := range ar.cols {
			bcols, _ := b.Row(k)
			for _, j := range bcols {
				seen[j] = struct{}{}
			}
		}
		if len(seen) == 0 {
			continue
		}

		cols := make([]uint64, 0, len(seen))
		for j := range seen {
			cols = append(cols, j)
		}
		slices.Sort(cols)
		vals := make([]bool, len(cols))
		for i := range vals {
			vals[i] = true
		}

		// rows of A are visited in ascending order, append keeps C sorted
		c.rowIdx = append(c.rowIdx, a.rowIdx[pos])
		c.rows = append(c.rows, row[bool]{cols: cols, vals: vals})
		c.nvals += uint64(len(cols))
	}
	return c, nil
}

// Pattern returns a boolean matrix with the same sparsity pattern as m.
func Pattern[T any](m *Matrix[T]) *Matrix[bool] {
	out := &Matrix[bool]{
		nrows:  m.nrows,
		ncols:  m.ncols,
		nvals:  m.nvals,
		rowIdx: slices.Clone(m.rowIdx),
		rows:   make([]row[bool], len(m.rows)),
	}
	for pos, r := range m.rows {
		vals := make([]bool, len(r.cols))
		for i := range vals {
			vals[i] = true
		}
		out.rows[pos] = row[bool]{cols: r.cols, vals: vals}
	}
	return out
}
