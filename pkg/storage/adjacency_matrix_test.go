package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tuple struct{ row, col uint64 }

func drain[T any](t *testing.T, it *TupleIterator[T]) []tuple {
	t.Helper()
	var out []tuple
	for {
		r, c, _, err := it.Next()
		if errors.Is(err, ErrIteratorExhausted) {
			return out
		}
		require.NoError(t, err)
		out = append(out, tuple{r, c})
	}
}

func TestAdjacencyMatrix_DeferredInsertsThenFlush(t *testing.T) {
	m := NewAdjacencyMatrix[bool]("test", 8, false)
	m.SetSyncPolicy(SyncPolicyResize)

	pairs := []tuple{{6, 1}, {0, 3}, {2, 7}, {2, 0}, {6, 6}, {0, 1}}
	for _, p := range pairs {
		require.NoError(t, m.Set(p.row, p.col, true))
	}
	m.Remove(6, 6)

	t.Run("pending writes visible to Get only", func(t *testing.T) {
		_, ok := m.Get(2, 7)
		assert.True(t, ok)
		_, ok = m.Get(6, 6)
		assert.False(t, ok)
		assert.True(t, m.Pending())
		assert.Zero(t, m.NVals())
	})

	t.Run("flush publishes row-major column-ascending", func(t *testing.T) {
		m.ApplyPending(true)
		assert.False(t, m.Pending())

		var it TupleIterator[bool]
		require.NoError(t, it.Attach(m))
		got := drain(t, &it)
		assert.Equal(t, []tuple{{0, 1}, {0, 3}, {2, 0}, {2, 7}, {6, 1}}, got)
		assert.Equal(t, uint64(5), m.NVals())
	})

	t.Run("apply is idempotent", func(t *testing.T) {
		before := m.Matrix()
		m.ApplyPending(true)
		m.ApplyPending(false)
		assert.Same(t, before, m.Matrix())
	})
}

func TestAdjacencyMatrix_Bounds(t *testing.T) {
	m := NewAdjacencyMatrix[bool]("test", 4, false)
	assert.ErrorIs(t, m.Set(4, 0, true), ErrInvalidID)
	assert.ErrorIs(t, m.Set(0, 4, true), ErrInvalidID)

	m.Resize(8)
	assert.NoError(t, m.Set(7, 7, true))
	assert.Equal(t, uint64(8), m.NRows())

	assert.Panics(t, func() { m.Resize(2) })
}

func TestAdjacencyMatrix_NopPolicyDefersResize(t *testing.T) {
	m := NewAdjacencyMatrix[bool]("test", 4, false)
	m.SetSyncPolicy(SyncPolicyNop)

	m.Resize(32)
	assert.Equal(t, uint64(4), m.NRows(), "nop policy leaves the published version alone")
	assert.Equal(t, uint64(32), m.Dim())
	require.NoError(t, m.Set(20, 20, true))

	m.Synchronize(64)
	assert.Equal(t, uint64(4), m.NRows())

	m.ApplyPending(false)
	assert.Equal(t, uint64(32), m.NRows())
	_, ok := m.Matrix().Get(20, 20)
	assert.True(t, ok)
}

func TestAdjacencyMatrix_Synchronize(t *testing.T) {
	t.Run("flush resize", func(t *testing.T) {
		m := NewAdjacencyMatrix[bool]("test", 4, false)
		require.NoError(t, m.Set(1, 1, true))
		m.Synchronize(16)
		assert.False(t, m.Pending())
		assert.Equal(t, uint64(16), m.NRows())
		assert.Equal(t, uint64(1), m.NVals())
	})

	t.Run("resize keeps ops pending", func(t *testing.T) {
		m := NewAdjacencyMatrix[bool]("test", 4, false)
		m.SetSyncPolicy(SyncPolicyResize)
		require.NoError(t, m.Set(1, 1, true))
		m.Synchronize(16)
		assert.True(t, m.Pending())
		assert.Equal(t, uint64(16), m.NRows())
		assert.Zero(t, m.NVals())
	})
}

func TestAdjacencyMatrix_FlushInvisibleToAttachedIterator(t *testing.T) {
	m := NewAdjacencyMatrix[bool]("test", 8, false)
	require.NoError(t, m.Set(1, 1, true))
	require.NoError(t, m.Set(3, 3, true))
	m.ApplyPending(true)

	var it TupleIterator[bool]
	require.NoError(t, it.Attach(m))
	r, c, _, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, tuple{1, 1}, tuple{r, c})

	require.NoError(t, m.Set(2, 2, true))
	m.Remove(3, 3)
	m.ApplyPending(true)

	assert.Equal(t, []tuple{{3, 3}}, drain(t, &it))

	var fresh TupleIterator[bool]
	require.NoError(t, fresh.Attach(m))
	assert.Equal(t, []tuple{{1, 1}, {2, 2}}, drain(t, &fresh))
}

func TestAdjacencyMatrix_EdgeCells(t *testing.T) {
	m := NewAdjacencyMatrix[EdgeCell]("relation", 8, true)

	require.NoError(t, AddEdge(m, 1, 2, 10))
	cell, ok := m.Get(1, 2)
	require.True(t, ok)
	assert.False(t, cell.IsMultiple())

	require.NoError(t, AddEdge(m, 1, 2, 11))
	cell, _ = m.Get(1, 2)
	assert.True(t, cell.IsMultiple())
	assert.Equal(t, []EdgeID{10, 11}, cell.IDs())

	require.NoError(t, RemoveEdge(m, 1, 2, 10))
	cell, _ = m.Get(1, 2)
	assert.False(t, cell.IsMultiple())
	assert.Equal(t, EdgeID(11), cell.Single())

	require.NoError(t, RemoveEdge(m, 1, 2, 11))
	_, ok = m.Get(1, 2)
	assert.False(t, ok)

	t.Run("transpose follows flush", func(t *testing.T) {
		require.NoError(t, AddEdge(m, 5, 0, 20))
		m.ApplyPending(true)
		tr := m.Transposed()
		require.NotNil(t, tr)
		cell, ok := tr.Get(0, 5)
		require.True(t, ok)
		assert.Equal(t, EdgeID(20), cell.Single())
		assert.Same(t, tr, m.Transposed())
	})
}
