package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

func TestNodeByLabelScan(t *testing.T) {
	g := socialGraph(t)
	i := func(n int64) Expression { return Const(storage.IntValue(n)) }

	tests := []struct {
		name  string
		label string
		rng   *IDRange
		want  []storage.NodeID
	}{
		{name: "all", label: "Person", want: []storage.NodeID{0, 1, 2, 3}},
		{name: "other label", label: "City", want: []storage.NodeID{4, 5}},
		{name: "unknown label", label: "Robot", want: []storage.NodeID{}},
		{
			name: "inclusive range", label: "Person",
			rng:  &IDRange{Min: i(1), Max: i(2), IncludeMin: true, IncludeMax: true},
			want: []storage.NodeID{1, 2},
		},
		{
			name: "exclusive range", label: "Person",
			rng:  &IDRange{Min: i(0), Max: i(3)},
			want: []storage.NodeID{1, 2},
		},
		{
			name: "open max clamped to matrix", label: "Person",
			rng:  &IDRange{Min: i(2), IncludeMin: true},
			want: []storage.NodeID{2, 3},
		},
		{
			name: "negative min clamped", label: "City",
			rng:  &IDRange{Min: i(-10), Max: i(4), IncludeMin: true, IncludeMax: true},
			want: []storage.NodeID{4},
		},
		{
			name: "empty range", label: "Person",
			rng:  &IDRange{Min: i(3), Max: i(1), IncludeMin: true, IncludeMax: true},
			want: []storage.NodeID{},
		},
		{
			name: "range beyond matrix", label: "Person",
			rng:  &IDRange{Min: i(1000), IncludeMin: true},
			want: []storage.NodeID{},
		},
		{
			name: "non integer bound", label: "Person",
			rng:  &IDRange{Min: Const(storage.StringValue("1")), IncludeMin: true},
			want: []storage.NodeID{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlan(g)
			scan := NewNodeByLabelScan(p, "n", tt.label)
			scan.SetIDRange(tt.rng)
			p.SetRoot(scan)
			p.Return("n")

			rs, err := p.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, nodeColumn(t, rs, 0))
		})
	}
}

func TestNodeByLabelScan_Reset(t *testing.T) {
	g := socialGraph(t)
	p := NewPlan(g)
	scan := NewNodeByLabelScan(p, "n", "City")

	g.AcquireRead()
	defer g.Release()
	require.NoError(t, scan.Init())

	drainIDs := func() []storage.NodeID {
		var ids []storage.NodeID
		for {
			r, err := scan.Consume()
			require.NoError(t, err)
			if r == nil {
				return ids
			}
			n, ok := r.Node(scan.slot)
			require.True(t, ok)
			ids = append(ids, n.ID)
		}
	}
	first := drainIDs()
	require.NoError(t, scan.Reset())
	assert.Equal(t, first, drainIDs())
	scan.Free()
}

func TestNodeByLabelScan_ResetKeepsInitVersion(t *testing.T) {
	g := socialGraph(t)
	p := NewPlan(g)
	scan := NewNodeByLabelScan(p, "n", "City")

	g.AcquireRead()
	require.NoError(t, scan.Init())
	g.Release()

	require.NoError(t, g.Update(func() error {
		_, err := g.CreateNode([]storage.LabelID{g.Schema().LabelID("City")}, nil)
		return err
	}))

	g.AcquireRead()
	defer g.Release()
	var ids []storage.NodeID
	require.NoError(t, scan.Reset())
	for {
		r, err := scan.Consume()
		require.NoError(t, err)
		if r == nil {
			break
		}
		n, _ := r.Node(scan.slot)
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []storage.NodeID{4, 5}, ids, "the city created after Init is not scanned")
	scan.Free()
}

func TestNodeByLabelScan_LabelCreatedAfterBuild(t *testing.T) {
	g := storage.NewGraph("late")
	require.NoError(t, g.Update(func() error {
		for range 12 {
			if _, err := g.CreateNode(nil, nil); err != nil {
				return err
			}
		}
		return nil
	}))

	// UNWIND [10, 11] AS x MATCH (n:L) WHERE id(n) = x
	p := NewPlan(g)
	unwind := NewUnwind(p, intRange(10, 11), "x")
	scan := NewNodeByLabelScan(p, "n", "L")
	scan.SetIDRange(&IDRange{Min: p.Var("x"), Max: p.Var("x"), IncludeMin: true, IncludeMax: true})
	scan.AddChild(unwind)
	p.SetRoot(scan)
	p.Return("x", "n")

	// the label only exists once the plan is built
	require.NoError(t, g.Update(func() error {
		return g.AddNodeLabel(11, g.GetOrCreateLabel("L"))
	}))

	rs, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	assert.Equal(t, int64(11), rs.Rows[0][0])
	assert.Equal(t, []storage.NodeID{11}, nodeColumn(t, rs, 1))
}

func TestNodeByLabelScan_StandaloneResolvesAtBuild(t *testing.T) {
	g := storage.NewGraph("late")
	p := NewPlan(g)
	p.SetRoot(NewNodeByLabelScan(p, "n", "L"))
	p.Return("n")

	require.NoError(t, g.Update(func() error {
		_, err := g.CreateNode([]storage.LabelID{g.GetOrCreateLabel("L")}, nil)
		return err
	}))

	rs, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rs.Rows)

	// a clone is a new build and sees the label
	rs, err = p.Clone().Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, rs.Rows, 1)
}
