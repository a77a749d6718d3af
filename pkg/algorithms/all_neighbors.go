// Package algorithms holds traversal algorithms that run directly on the
// graph's adjacency matrices.
package algorithms

import (
	"errors"
	"math"
	"slices"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// Unbounded is the max depth to use for open-ended traversals.
const Unbounded = math.MaxInt

// AllNeighbors enumerates the nodes reachable from a source node through
// paths of length [minLen, maxLen] using an iterative depth-first search.
//
// Each level of the search keeps its own TupleIterator in single-row mode,
// so memory grows with the depth of the search rather than with the size of
// the frontier.
//
// A destination is reported once per distinct path reaching it, so the same
// node may come back several times. Cycles are closed but never expanded: on
// the path (a)->(b)->(a) the second a is reported, then the search
// backtracks.
//
// Example:
//
//	nb := algorithms.NewAllNeighbors(m, src, storage.InvalidEntityID, 1, 3)
//	for {
//		id, depth, ok := nb.Next()
//		if !ok {
//			break
//		}
//		...
//	}
type AllNeighbors[T any] struct {
	m      *storage.AdjacencyMatrix[T]
	src    storage.NodeID
	dest   storage.NodeID
	minLen int
	maxLen int

	level     int
	firstPull bool
	path      []storage.NodeID // nodes whose rows are being walked, src first
	levels    []storage.TupleIterator[T]
}

// NewAllNeighbors prepares a traversal from src over m. dest restricts the
// results to one node; pass storage.InvalidEntityID to report every node.
func NewAllNeighbors[T any](m *storage.AdjacencyMatrix[T], src, dest storage.NodeID, minLen, maxLen int) *AllNeighbors[T] {
	return &AllNeighbors[T]{
		m:         m,
		src:       src,
		dest:      dest,
		minLen:    minLen,
		maxLen:    maxLen,
		firstPull: true,
		levels:    make([]storage.TupleIterator[T], 1), // level 0 is unused
	}
}

func (a *AllNeighbors[T]) expand(id storage.NodeID) {
	a.level++
	if a.level == len(a.levels) {
		a.levels = append(a.levels, storage.TupleIterator[T]{})
	}
	it := &a.levels[a.level]
	if err := it.Attach(a.m); err != nil || it.IterateRow(id) != nil {
		// row outside the matrix, nothing to walk
		it.Detach()
	}
	a.path = append(a.path, id)
}

func (a *AllNeighbors[T]) accept(id storage.NodeID) bool {
	return a.dest == storage.InvalidEntityID || a.dest == id
}

// Next returns the next reachable node and the length of the path that
// reached it. ok is false once the traversal is exhausted.
func (a *AllNeighbors[T]) Next() (id storage.NodeID, depth int, ok bool) {
	if a.firstPull {
		a.firstPull = false
		if a.maxLen > 0 {
			a.expand(a.src)
		}
		if a.minLen == 0 && a.accept(a.src) {
			return a.src, 0, true
		}
	}

	for a.level > 0 {
		_, dst, _, err := a.levels[a.level].Next()
		if err != nil {
			if !errors.Is(err, storage.ErrIteratorExhausted) && !errors.Is(err, storage.ErrIteratorDetached) {
				return storage.InvalidEntityID, 0, false
			}
			// backtrack
			a.levels[a.level].Detach()
			a.level--
			a.path = a.path[:len(a.path)-1]
			continue
		}

		depth := a.level
		if !slices.Contains(a.path, dst) && depth < a.maxLen {
			a.expand(dst)
		}
		if depth >= a.minLen && a.accept(dst) {
			return dst, depth, true
		}
	}
	return storage.InvalidEntityID, 0, false
}

// Reset restarts the traversal from its source.
func (a *AllNeighbors[T]) Reset() {
	for i := range a.levels {
		a.levels[i].Detach()
	}
	a.level = 0
	a.path = a.path[:0]
	a.firstPull = true
}
