package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

func TestRegistry_ReplacePendingDisablesOld(t *testing.T) {
	g, _ := personGraph(t, 3)
	reg := NewRegistry(g)

	first, err := reg.Create(storage.EntityNode, "Person", "name")
	require.NoError(t, err)

	same, err := reg.Create(storage.EntityNode, "Person", "name")
	require.NoError(t, err)
	assert.Same(t, first, same)

	second, err := reg.Create(storage.EntityNode, "Person", "age")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, StateDisabled, first.State())
	assert.Equal(t, []string{"name", "age"}, second.Definition().Attributes)

	res, err := Populate(context.Background(), first, g, Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Batches, "disabled index never scans")
	assert.False(t, reg.Promote(first))

	res, err = Populate(context.Background(), second, g, Options{})
	require.NoError(t, err)
	require.True(t, res.Enabled)
	assert.True(t, reg.Promote(second))
	assert.Same(t, second, reg.Lookup(storage.EntityNode, "Person"))
	assert.Empty(t, reg.Pending())

	defs := g.Schema().GetIndexes()
	require.Len(t, defs, 1)
	assert.Equal(t, second.ID(), defs[0].ID)
	assert.False(t, defs[0].Pending)
}

func TestRegistry_DropAndRestore(t *testing.T) {
	g, _ := personGraph(t, 4)
	reg := NewRegistry(g)
	_, err := reg.Create(storage.EntityNode, "Person", "name")
	require.NoError(t, err)

	restored := NewRegistry(g).Restore()
	require.Len(t, restored, 1)
	assert.Equal(t, StatePopulating, restored[0].State())

	require.NoError(t, reg.Drop(storage.EntityNode, "Person"))
	assert.Empty(t, g.Schema().GetIndexes())
	assert.ErrorIs(t, reg.Drop(storage.EntityNode, "Person"), storage.ErrNotFound)

	_, err = reg.Create(storage.EntityNode, "", "name")
	assert.ErrorIs(t, err, storage.ErrInvalidData)
}

func TestIndexer_Background(t *testing.T) {
	g, name := personGraph(t, 120)
	reg := NewRegistry(g)

	ix := NewIndexer(g, reg, 2, Options{BatchSize: 16})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ix.Start(ctx)

	idx, err := reg.Create(storage.EntityNode, "Person", "name")
	require.NoError(t, err)
	require.NoError(t, ix.Submit(idx))

	require.Eventually(t, func() bool {
		return reg.Lookup(storage.EntityNode, "Person") != nil
	}, 5*time.Second, 5*time.Millisecond)

	ids, err := reg.Lookup(storage.EntityNode, "Person").Query(name, storage.StringValue("p119"))
	require.NoError(t, err)
	assert.Equal(t, []storage.EntityID{119}, ids)

	ix.Stop()
	ix.Stop()
	assert.ErrorIs(t, ix.Submit(idx), ErrIndexerStopped)
}

func TestPopulateAll(t *testing.T) {
	g, _ := personGraph(t, 40)
	g.AcquireWrite()
	rel := g.GetOrCreateRelation("KNOWS")
	_, err := g.CreateEdge(0, 1, rel, nil)
	g.Release()
	require.NoError(t, err)

	reg := NewRegistry(g)
	nodes, err := reg.Create(storage.EntityNode, "Person", "name")
	require.NoError(t, err)
	edges, err := reg.Create(storage.EntityEdge, "KNOWS", "since")
	require.NoError(t, err)

	results, err := PopulateAll(context.Background(), g, reg, []*Index{nodes, edges}, 2, Options{BatchSize: 8})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Enabled)
	assert.True(t, results[1].Enabled)
	assert.NotNil(t, reg.Lookup(storage.EntityNode, "Person"))
	assert.NotNil(t, reg.Lookup(storage.EntityEdge, "KNOWS"))
}
