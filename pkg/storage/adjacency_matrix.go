package storage

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/orneryd/matrixgraph/pkg/metrics"
	"github.com/orneryd/matrixgraph/pkg/sparse"
)

type cellKey struct {
	row, col uint64
}

type pendingOp[T any] struct {
	del bool
	val T
}

// AdjacencyMatrix wraps a sparse matrix with a pending-operation log.
//
// Writes (Set, Remove, Update) are buffered and become visible to iterators
// only once ApplyPending publishes a new version of the underlying matrix.
// Get consults the pending log first, so point lookups always observe the
// latest write.
//
// Versions:
//
// ApplyPending never modifies the published matrix. It clones it, applies the
// buffered operations to the clone and swaps the pointer. An iterator that
// attached before the flush keeps scanning the version it captured.
//
// Thread Safety:
//
// All methods are safe for concurrent use. The graph lock decides which
// callers may run together; the internal mutex only keeps the pending log and
// the version swap consistent when several readers synchronize the same
// matrix at once.
type AdjacencyMatrix[T any] struct {
	mu   sync.Mutex
	kind string

	data atomic.Pointer[sparse.Matrix[T]]

	pending     map[cellKey]pendingOp[T]
	dim         uint64
	needsResize bool
	policy      SyncPolicy

	// transposed twin, rebuilt lazily after flushes
	twin           *AdjacencyMatrix[T]
	dirtyTranspose bool
}

// NewAdjacencyMatrix creates an empty n x n matrix. kind labels the matrix in
// metrics ("label", "relation", "adjacency").
func NewAdjacencyMatrix[T any](kind string, n uint64, withTranspose bool) *AdjacencyMatrix[T] {
	m := &AdjacencyMatrix[T]{
		kind:    kind,
		pending: make(map[cellKey]pendingOp[T]),
		dim:     n,
		policy:  SyncPolicyFlushResize,
	}
	m.data.Store(sparse.New[T](n, n))
	if withTranspose {
		m.twin = &AdjacencyMatrix[T]{kind: kind, pending: make(map[cellKey]pendingOp[T]), dim: n, policy: SyncPolicyNop}
		m.twin.data.Store(sparse.New[T](n, n))
	}
	return m
}

// WrapMatrix publishes data as a read-only AdjacencyMatrix so it can be walked
// with a TupleIterator. Used for intermediate results such as traversal
// products; data must not be modified afterwards.
func WrapMatrix[T any](kind string, data *sparse.Matrix[T]) *AdjacencyMatrix[T] {
	m := &AdjacencyMatrix[T]{
		kind:    kind,
		pending: make(map[cellKey]pendingOp[T]),
		dim:     data.NRows(),
		policy:  SyncPolicyNop,
	}
	m.data.Store(data)
	return m
}

// snapshot returns the currently published version.
func (m *AdjacencyMatrix[T]) snapshot() *sparse.Matrix[T] {
	return m.data.Load()
}

// NRows returns the row count of the published version.
func (m *AdjacencyMatrix[T]) NRows() uint64 { return m.snapshot().NRows() }

// NVals returns the number of entries in the published version.
// Pending operations are not counted.
func (m *AdjacencyMatrix[T]) NVals() uint64 { return m.snapshot().NVals() }

// Dim returns the target dimension, including growth not yet applied.
func (m *AdjacencyMatrix[T]) Dim() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dim
}

// Pending reports whether operations or a resize are waiting to be applied.
func (m *AdjacencyMatrix[T]) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) > 0 || m.needsResize
}

// SyncPolicy returns the current policy.
func (m *AdjacencyMatrix[T]) SyncPolicy() SyncPolicy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

// SetSyncPolicy changes the synchronization policy. It never flushes.
func (m *AdjacencyMatrix[T]) SetSyncPolicy(p SyncPolicy) {
	m.mu.Lock()
	m.policy = p
	m.mu.Unlock()
}

// Get returns the entry at (row, col), pending writes included.
func (m *AdjacencyMatrix[T]) Get(row, col uint64) (T, bool) {
	m.mu.Lock()
	op, ok := m.pending[cellKey{row, col}]
	m.mu.Unlock()
	if ok {
		if op.del {
			var zero T
			return zero, false
		}
		return op.val, true
	}
	return m.snapshot().Get(row, col)
}

// Set buffers a write of v at (row, col).
func (m *AdjacencyMatrix[T]) Set(row, col uint64, v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row >= m.dim || col >= m.dim {
		return fmt.Errorf("%w: (%d,%d) outside %dx%d matrix", ErrInvalidID, row, col, m.dim, m.dim)
	}
	m.pending[cellKey{row, col}] = pendingOp[T]{val: v}
	return nil
}

// Remove buffers the deletion of (row, col).
func (m *AdjacencyMatrix[T]) Remove(row, col uint64) {
	m.mu.Lock()
	m.pending[cellKey{row, col}] = pendingOp[T]{del: true}
	m.mu.Unlock()
}

// Update performs a read-modify-write of (row, col). fn receives the current
// value (pending writes included) and returns the new value and whether the
// entry should exist afterwards.
func (m *AdjacencyMatrix[T]) Update(row, col uint64, fn func(cur T, exists bool) (T, bool)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row >= m.dim || col >= m.dim {
		return fmt.Errorf("%w: (%d,%d) outside %dx%d matrix", ErrInvalidID, row, col, m.dim, m.dim)
	}

	key := cellKey{row, col}
	var cur T
	var exists bool
	if op, ok := m.pending[key]; ok {
		cur, exists = op.val, !op.del
	} else {
		cur, exists = m.snapshot().Get(row, col)
	}

	next, keep := fn(cur, exists)
	if keep {
		m.pending[key] = pendingOp[T]{val: next}
	} else if exists {
		m.pending[key] = pendingOp[T]{del: true}
	}
	return nil
}

// Resize grows the matrix to n x n. Shrinking is a programming error and panics.
//
// Unless the policy is SyncPolicyNop the new dimension is published at once;
// otherwise it is recorded and applied by the next ApplyPending.
func (m *AdjacencyMatrix[T]) Resize(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < m.dim {
		panic(fmt.Sprintf("storage: cannot shrink %s matrix from %d to %d", m.kind, m.dim, n))
	}
	if n == m.dim && !m.needsResize {
		return
	}
	m.dim = n
	m.needsResize = true
	if m.policy != SyncPolicyNop {
		m.applyResizeLocked()
	}
}

func (m *AdjacencyMatrix[T]) applyResizeLocked() {
	if !m.needsResize {
		return
	}
	next := m.snapshot().Clone()
	next.Resize(m.dim, m.dim)
	m.data.Store(next)
	m.needsResize = false
	m.dirtyTranspose = true
	metrics.MatrixResizes.WithLabelValues(m.kind).Inc()
}

// ApplyPending publishes a new version with every buffered operation applied.
// forceResize also applies a recorded resize when no operation is pending.
// Calling it with nothing pending is a no-op, so it is idempotent.
func (m *AdjacencyMatrix[T]) ApplyPending(forceResize bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyPendingLocked(forceResize)
}

func (m *AdjacencyMatrix[T]) applyPendingLocked(forceResize bool) {
	if len(m.pending) == 0 {
		if forceResize {
			m.applyResizeLocked()
		}
		return
	}

	// ops were validated against dim, so the version must be grown first
	m.applyResizeLocked()

	next := m.snapshot().Clone()
	for k, op := range m.pending {
		if op.del {
			next.Remove(k.row, k.col)
			continue
		}
		// bounds were checked at Set time against the same dim
		_ = next.Set(k.row, k.col, op.val)
	}
	applied := len(m.pending)
	clear(m.pending)
	m.data.Store(next)
	m.dirtyTranspose = true

	metrics.MatrixFlushes.WithLabelValues(m.kind).Inc()
	metrics.PendingOpsApplied.WithLabelValues(m.kind).Add(float64(applied))
}

// Synchronize brings the matrix in line with the graph's node capacity
// according to the policy. It is called whenever the graph hands the matrix
// out.
func (m *AdjacencyMatrix[T]) Synchronize(nrows uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.policy {
	case SyncPolicyFlushResize:
		if nrows > m.dim {
			m.dim = nrows
			m.needsResize = true
		}
		m.applyPendingLocked(true)
	case SyncPolicyResize:
		if nrows > m.dim {
			m.dim = nrows
			m.needsResize = true
		}
		m.applyResizeLocked()
	case SyncPolicyNop:
	}
}

// Clear drops every entry and every pending operation, keeping dimensions.
func (m *AdjacencyMatrix[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.pending)
	m.needsResize = false
	m.data.Store(sparse.New[T](m.dim, m.dim))
	m.dirtyTranspose = true
}

// HasTranspose reports whether the matrix maintains a transposed twin.
func (m *AdjacencyMatrix[T]) HasTranspose() bool { return m.twin != nil }

// Transposed returns the transposed twin, rebuilt from the published version
// if a flush happened since it was last requested. Pending operations are not
// reflected until flushed. Returns nil for matrices without a twin.
//
// The twin is the same object across calls so iterators can use IsAttached.
func (m *AdjacencyMatrix[T]) Transposed() *AdjacencyMatrix[T] {
	if m.twin == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirtyTranspose {
		t := m.snapshot().Transpose()
		m.twin.mu.Lock()
		m.twin.dim = t.NRows()
		m.twin.data.Store(t)
		m.twin.mu.Unlock()
		m.dirtyTranspose = false
	}
	return m.twin
}

// Matrix returns the published version. It must be treated as read-only.
func (m *AdjacencyMatrix[T]) Matrix() *sparse.Matrix[T] { return m.snapshot() }

// AddEdge records edge id at (src, dst) of a relation matrix, promoting a
// single-edge cell to a multi-edge cell when the pair is already connected.
func AddEdge(m *AdjacencyMatrix[EdgeCell], src, dst NodeID, id EdgeID) error {
	return m.Update(src, dst, func(cur EdgeCell, exists bool) (EdgeCell, bool) {
		if !exists {
			return SingleEdge(id), true
		}
		return cur.With(id), true
	})
}

// RemoveEdge drops edge id from (src, dst), demoting a multi-edge cell to a
// single one, or deleting the entry when its last edge goes.
func RemoveEdge(m *AdjacencyMatrix[EdgeCell], src, dst NodeID, id EdgeID) error {
	return m.Update(src, dst, func(cur EdgeCell, exists bool) (EdgeCell, bool) {
		if !exists {
			return cur, false
		}
		next := cur.Without(id)
		return next, !next.IsEmpty()
	})
}
