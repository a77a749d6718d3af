package sparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrix_SetGetRemove(t *testing.T) {
	m := New[int](5, 5)

	require.NoError(t, m.Set(3, 1, 31))
	require.NoError(t, m.Set(1, 4, 14))
	require.NoError(t, m.Set(1, 0, 10))
	require.NoError(t, m.Set(1, 0, 100)) // overwrite
	assert.Equal(t, uint64(3), m.NVals())
	assert.Equal(t, 2, m.RowCount())

	v, ok := m.Get(1, 0)
	require.True(t, ok)
	assert.Equal(t, 100, v)

	_, ok = m.Get(2, 2)
	assert.False(t, ok)

	assert.True(t, m.Remove(1, 4))
	assert.False(t, m.Remove(1, 4))
	assert.True(t, m.Remove(3, 1))
	assert.Equal(t, uint64(1), m.NVals())
	assert.Equal(t, 1, m.RowCount())

	err := m.Set(5, 0, 1)
	assert.ErrorIs(t, err, ErrIndexOutOfBounds)
}

func TestMatrix_TuplesRowMajor(t *testing.T) {
	m := New[bool](10, 10)
	for _, p := range [][2]uint64{{7, 3}, {2, 9}, {2, 1}, {0, 5}, {7, 0}} {
		require.NoError(t, m.Set(p[0], p[1], true))
	}

	rows, cols, _ := m.Tuples()
	assert.Equal(t, []uint64{0, 2, 2, 7, 7}, rows)
	assert.Equal(t, []uint64{5, 1, 9, 0, 3}, cols)
}

func TestMatrix_CloneIsolation(t *testing.T) {
	m := New[int](4, 4)
	require.NoError(t, m.Set(1, 1, 1))
	require.NoError(t, m.Set(1, 2, 2))

	next := m.Clone()
	require.NoError(t, next.Set(1, 3, 3))
	require.NoError(t, next.Set(1, 1, 42))
	next.Remove(1, 2)
	require.NoError(t, next.Set(0, 0, 9))

	cols, vals := m.Row(1)
	assert.Equal(t, []uint64{1, 2}, cols)
	assert.Equal(t, []int{1, 2}, vals)
	assert.Equal(t, 1, m.RowCount())

	cols, vals = next.Row(1)
	assert.Equal(t, []uint64{1, 3}, cols)
	assert.Equal(t, []int{42, 3}, vals)
}

func TestMatrix_Resize(t *testing.T) {
	m := New[bool](4, 4)
	require.NoError(t, m.Set(3, 3, true))
	require.NoError(t, m.Set(0, 3, true))
	require.NoError(t, m.Set(0, 1, true))

	m.Resize(8, 8)
	assert.Equal(t, uint64(8), m.NRows())
	require.NoError(t, m.Set(7, 7, true))

	m.Resize(3, 2)
	assert.Equal(t, uint64(1), m.NVals())
	_, ok := m.Get(0, 1)
	assert.True(t, ok)
}

func TestMatrix_SeekRow(t *testing.T) {
	m := New[bool](100, 100)
	require.NoError(t, m.Set(10, 1, true))
	require.NoError(t, m.Set(20, 1, true))

	assert.Equal(t, 0, m.SeekRow(0))
	assert.Equal(t, 1, m.SeekRow(11))
	assert.Equal(t, 2, m.SeekRow(21))

	r, cols, _ := m.RowAt(1)
	assert.Equal(t, uint64(20), r)
	assert.Equal(t, []uint64{1}, cols)
}

func TestMatrix_Transpose(t *testing.T) {
	m := New[string](3, 4)
	require.NoError(t, m.Set(0, 3, "a"))
	require.NoError(t, m.Set(2, 3, "b"))
	require.NoError(t, m.Set(1, 0, "c"))

	tr := m.Transpose()
	assert.Equal(t, uint64(4), tr.NRows())
	assert.Equal(t, uint64(3), tr.NCols())

	rows, cols, vals := tr.Tuples()
	assert.Equal(t, []uint64{0, 3, 3}, rows)
	assert.Equal(t, []uint64{1, 0, 2}, cols)
	assert.Equal(t, []string{"c", "a", "b"}, vals)
}

func TestMultiply(t *testing.T) {
	// a: 0->1, 0->2, 1->2 ; b: 1->3, 2->3, 2->0
	a := New[bool](4, 4)
	b := New[int](4, 4)
	require.NoError(t, a.Set(0, 1, true))
	require.NoError(t, a.Set(0, 2, true))
	require.NoError(t, a.Set(1, 2, true))
	require.NoError(t, b.Set(1, 3, 7))
	require.NoError(t, b.Set(2, 3, 8))
	require.NoError(t, b.Set(2, 0, 9))

	c, err := Multiply(a, b)
	require.NoError(t, err)

	rows, cols, _ := c.Tuples()
	assert.Equal(t, []uint64{0, 0, 1, 1}, rows)
	assert.Equal(t, []uint64{0, 3, 0, 3}, cols)

	_, err = Multiply(New[bool](2, 3), New[bool](2, 2))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestPattern(t *testing.T) {
	m := New[int](3, 3)
	require.NoError(t, m.Set(2, 1, 5))
	p := Pattern(m)
	v, ok := p.Get(2, 1)
	assert.True(t, ok)
	assert.True(t, v)
	assert.Equal(t, uint64(1), p.NVals())
}
