package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// docGraph creates one Doc node per vector, storing it under "embedding".
func docGraph(t *testing.T, vecs ...[]float32) *storage.Graph {
	t.Helper()
	g := storage.NewGraph("docs")
	g.AcquireWrite()
	defer g.Release()

	doc := g.GetOrCreateLabel("Doc")
	emb := g.Schema().GetOrAddAttribute("embedding")
	for _, v := range vecs {
		attrs := storage.NewAttributeSet(storage.Attribute{ID: emb, Value: storage.VectorValue(v)})
		_, err := g.CreateNode([]storage.LabelID{doc}, attrs)
		require.NoError(t, err)
	}
	return g
}

func neighborIDs(ns []Neighbor) []storage.EntityID {
	out := make([]storage.EntityID, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func TestVectorIndex_Nearest(t *testing.T) {
	vecs := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{2, 2, 0},
		{10, 0.5, 0},
		{0, 0, 0},
		{1, 2}, // wrong dimension, never indexed
	}

	tests := []struct {
		name string
		sim  string
		q    []float32
		k    int
		want []storage.EntityID
	}{
		{"cosine ignores magnitude", storage.SimilarityCosine, []float32{3, 0, 0}, 2, []storage.EntityID{0, 3}},
		{"dot rewards magnitude", storage.SimilarityDot, []float32{1, 0, 0}, 2, []storage.EntityID{3, 2}},
		{"k larger than index", storage.SimilarityCosine, []float32{0, 1, 0}, 10, []storage.EntityID{1, 2, 3, 0, 4}},
		{"k zero", storage.SimilarityCosine, []float32{0, 1, 0}, 0, []storage.EntityID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := docGraph(t, vecs...)
			reg := NewRegistry(g)
			idx, err := reg.CreateVector(storage.EntityNode, "Doc", "embedding", 3, tt.sim)
			require.NoError(t, err)

			res, err := Populate(context.Background(), idx, g, Options{BatchSize: 2})
			require.NoError(t, err)
			require.True(t, res.Enabled)
			require.True(t, reg.Promote(idx))
			assert.Equal(t, 5, idx.Len())

			got, err := reg.LookupVector(storage.EntityNode, "Doc", "embedding").Nearest(tt.q, tt.k)
			require.NoError(t, err)
			assert.Equal(t, tt.want, neighborIDs(got))
		})
	}
}

func TestVectorIndex_ZeroVectorScoresZero(t *testing.T) {
	g := docGraph(t, []float32{0, 0})
	reg := NewRegistry(g)
	idx, err := reg.CreateVector(storage.EntityNode, "Doc", "embedding", 2, storage.SimilarityCosine)
	require.NoError(t, err)
	_, err = Populate(context.Background(), idx, g, Options{})
	require.NoError(t, err)

	got, err := idx.Nearest([]float32{1, 1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].Score)
}

func TestVectorIndex_Errors(t *testing.T) {
	g := docGraph(t, []float32{1, 0})
	reg := NewRegistry(g)

	idx, err := reg.CreateVector(storage.EntityNode, "Doc", "embedding", 2, storage.SimilarityCosine)
	require.NoError(t, err)

	_, err = idx.Nearest([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	_, err = reg.CreateVector(storage.EntityNode, "Doc", "embedding", 4, storage.SimilarityCosine)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	_, err = reg.CreateVector(storage.EntityNode, "Doc", "embedding", 2, "euclid")
	assert.ErrorIs(t, err, storage.ErrInvalidData)
	_, err = reg.CreateVector(storage.EntityNode, "Doc", "embedding", 0, storage.SimilarityCosine)
	assert.ErrorIs(t, err, storage.ErrInvalidData)

	same, err := reg.CreateVector(storage.EntityNode, "Doc", "embedding", 2, storage.SimilarityCosine)
	require.NoError(t, err)
	assert.Same(t, idx, same)

	prop, err := reg.Create(storage.EntityNode, "Doc", "embedding")
	require.NoError(t, err)
	assert.NotSame(t, idx, prop, "property and vector indexes live in separate slots")
	_, err = prop.Nearest([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, storage.ErrInvalidData)
	_, err = idx.Query(0, storage.StringValue("x"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVectorIndex_LiveWritesAndDrop(t *testing.T) {
	g := docGraph(t, []float32{1, 0})
	reg := NewRegistry(g)
	idx, err := reg.CreateVector(storage.EntityNode, "Doc", "embedding", 2, storage.SimilarityDot)
	require.NoError(t, err)
	_, err = PopulateAll(context.Background(), g, reg, []*Index{idx}, 1, Options{})
	require.NoError(t, err)
	require.Same(t, idx, reg.LookupVector(storage.EntityNode, "Doc", "embedding"))
	assert.Nil(t, reg.Lookup(storage.EntityNode, "Doc"))

	var id storage.NodeID
	require.NoError(t, g.Update(func() error {
		emb, _ := g.Schema().AttributeID("embedding")
		attrs := storage.NewAttributeSet(storage.Attribute{ID: emb, Value: storage.VectorValue([]float32{5, 5})})
		var err error
		id, err = g.CreateNode([]storage.LabelID{g.GetOrCreateLabel("Doc")}, attrs)
		reg.IndexNode(id)
		return err
	}))

	got, err := idx.Nearest([]float32{1, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []storage.EntityID{id}, neighborIDs(got))

	idx.Remove(id)
	got, err = idx.Nearest([]float32{1, 1}, 5)
	require.NoError(t, err)
	assert.Equal(t, []storage.EntityID{0}, neighborIDs(got))

	restored := NewRegistry(g).Restore()
	require.Len(t, restored, 1)
	assert.Equal(t, storage.IndexVector, restored[0].Definition().Kind)
	assert.Equal(t, 2, restored[0].Definition().Dimension)

	require.NoError(t, reg.DropVector(storage.EntityNode, "Doc", "embedding"))
	assert.Equal(t, StateDisabled, idx.State())
	assert.Empty(t, g.Schema().GetIndexes())
	assert.ErrorIs(t, reg.DropVector(storage.EntityNode, "Doc", "embedding"), storage.ErrNotFound)
}
