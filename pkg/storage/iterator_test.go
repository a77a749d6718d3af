package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diagonal(t *testing.T, n uint64, rows ...uint64) *AdjacencyMatrix[bool] {
	t.Helper()
	m := NewAdjacencyMatrix[bool]("label", n, false)
	for _, r := range rows {
		require.NoError(t, m.Set(r, r, true))
	}
	m.ApplyPending(true)
	return m
}

func TestTupleIterator_Detached(t *testing.T) {
	var it TupleIterator[bool]
	_, _, _, err := it.Next()
	assert.ErrorIs(t, err, ErrIteratorDetached)

	it.Detach()
	it.Reset()
	assert.False(t, it.IsAttached(nil))
}

func TestTupleIterator_EmptyMatrix(t *testing.T) {
	m := NewAdjacencyMatrix[bool]("label", 0, false)
	var it TupleIterator[bool]
	require.NoError(t, it.Attach(m))
	_, _, _, err := it.Next()
	assert.ErrorIs(t, err, ErrIteratorExhausted)
}

func TestTupleIterator_AttachRange(t *testing.T) {
	m := diagonal(t, 16, 1, 4, 5, 9, 15)

	tests := []struct {
		name     string
		min, max uint64
		want     []tuple
		err      error
	}{
		{name: "inner range", min: 4, max: 9, want: []tuple{{4, 4}, {5, 5}, {9, 9}}},
		{name: "single row", min: 5, max: 5, want: []tuple{{5, 5}}},
		{name: "empty rows", min: 6, max: 8, want: nil},
		{name: "last row", min: 15, max: 15, want: []tuple{{15, 15}}},
		{name: "min after max", min: 9, max: 4, err: ErrDimensionMismatch},
		{name: "max out of bounds", min: 0, max: 16, err: ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var it TupleIterator[bool]
			err := it.AttachRange(m, tt.min, tt.max)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, drain(t, &it))
		})
	}
}

func TestTupleIterator_ResetAndReattach(t *testing.T) {
	m := diagonal(t, 8, 0, 2, 3, 7)

	var it TupleIterator[bool]
	require.NoError(t, it.Attach(m))
	first := drain(t, &it)
	require.Len(t, first, 4)

	it.Reset()
	assert.Equal(t, first, drain(t, &it))

	it.Detach()
	assert.False(t, it.IsAttached(m))
	require.NoError(t, it.Attach(m))
	assert.True(t, it.IsAttached(m))
	assert.Equal(t, first, drain(t, &it))
}

func TestTupleIterator_JumpAndIterateRow(t *testing.T) {
	m := NewAdjacencyMatrix[bool]("relation", 8, false)
	for _, p := range []tuple{{1, 2}, {1, 5}, {3, 0}, {3, 4}, {6, 6}} {
		require.NoError(t, m.Set(p.row, p.col, true))
	}
	m.ApplyPending(true)

	var it TupleIterator[bool]
	require.NoError(t, it.AttachRange(m, 1, 7))

	require.NoError(t, it.JumpToRow(2))
	assert.Equal(t, []tuple{{3, 0}, {3, 4}, {6, 6}}, drain(t, &it))
	assert.ErrorIs(t, it.JumpToRow(0), ErrDimensionMismatch)

	require.NoError(t, it.IterateRow(1))
	assert.Equal(t, []tuple{{1, 2}, {1, 5}}, drain(t, &it))

	require.NoError(t, it.IterateRow(2))
	assert.Empty(t, drain(t, &it))

	assert.ErrorIs(t, it.IterateRange(5, 8), ErrDimensionMismatch)
}
