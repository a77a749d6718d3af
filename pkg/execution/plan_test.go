package execution

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// socialGraph builds
//
//	Person: 0 alice, 1 bob, 2 carol, 3 dave
//	City:   4 paris, 5 oslo
//	KNOWS:    0->1 0->2 1->2 2->3
//	LIVES_IN: 0->4 1->4 (twice) 3->5
func socialGraph(t *testing.T) *storage.Graph {
	t.Helper()
	g := storage.NewGraph("social")
	err := g.Update(func() error {
		person := g.GetOrCreateLabel("Person")
		city := g.GetOrCreateLabel("City")
		name := g.Schema().GetOrAddAttribute("name")

		for _, n := range []string{"alice", "bob", "carol", "dave"} {
			attrs := storage.NewAttributeSet(storage.Attribute{ID: name, Value: storage.StringValue(n)})
			if _, err := g.CreateNode([]storage.LabelID{person}, attrs); err != nil {
				return err
			}
		}
		for _, n := range []string{"paris", "oslo"} {
			attrs := storage.NewAttributeSet(storage.Attribute{ID: name, Value: storage.StringValue(n)})
			if _, err := g.CreateNode([]storage.LabelID{city}, attrs); err != nil {
				return err
			}
		}

		knows := g.GetOrCreateRelation("KNOWS")
		lives := g.GetOrCreateRelation("LIVES_IN")
		edges := []struct {
			src, dst storage.NodeID
			rel      storage.RelationID
		}{
			{0, 1, knows}, {0, 2, knows}, {1, 2, knows}, {2, 3, knows},
			{0, 4, lives}, {1, 4, lives}, {1, 4, lives}, {3, 5, lives},
		}
		for _, e := range edges {
			if _, err := g.CreateEdge(e.src, e.dst, e.rel, nil); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return g
}

func nodeColumn(t *testing.T, rs *ResultSet, col int) []storage.NodeID {
	t.Helper()
	out := make([]storage.NodeID, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		n, ok := row[col].(*storage.Node)
		require.True(t, ok, "column %d holds %T", col, row[col])
		out = append(out, n.ID)
	}
	return out
}

func nodePairs(t *testing.T, rs *ResultSet) [][2]storage.NodeID {
	t.Helper()
	a, b := nodeColumn(t, rs, 0), nodeColumn(t, rs, 1)
	out := make([][2]storage.NodeID, len(a))
	for i := range a {
		out[i] = [2]storage.NodeID{a[i], b[i]}
	}
	return out
}

func intRange(from, to int64) Expression {
	items := make([]Expression, 0, to-from+1)
	for i := from; i <= to; i++ {
		items = append(items, Const(storage.IntValue(i)))
	}
	return ListOf(items...)
}

func TestPlan_RunWithoutRoot(t *testing.T) {
	p := NewPlan(storage.NewGraph("empty"))
	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoRoot)
}

func TestPlan_ContextCanceled(t *testing.T) {
	g := socialGraph(t)
	p := NewPlan(g)
	p.SetRoot(NewNodeByLabelScan(p, "n", "Person"))
	p.Return("n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// the lock was released and the plan can run again
	rs, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, rs.Rows, 4)
}

func TestPlan_CloneAndDescribe(t *testing.T) {
	g := socialGraph(t)
	p := NewPlan(g)
	scan := NewNodeByLabelScan(p, "a", "Person")
	traverse := NewCondTraverse(p, &AlgebraicExpression{
		Src: "a", Dst: "b",
		Operands: []Operand{Relation("KNOWS", false)},
	})
	traverse.AddChild(scan)
	p.SetRoot(traverse)
	p.Return("a", "b")

	desc := p.String()
	assert.True(t, strings.HasPrefix(desc, "Conditional Traverse | (a)->(b) F * KNOWS\n"), desc)
	assert.Contains(t, desc, "    Node By Label Scan | (a:Person)")

	c := p.Clone()
	assert.NotEqual(t, p.ID, c.ID)
	assert.Equal(t, desc, c.String())

	want, err := p.Run(context.Background())
	require.NoError(t, err)
	got, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nodePairs(t, want), nodePairs(t, got))
}

func TestPlan_ScalarColumns(t *testing.T) {
	p := NewPlan(storage.NewGraph("empty"))
	p.SetRoot(NewUnwind(p, ListOf(Const(storage.StringValue("a")), Const(storage.NullValue())), "x"))
	p.Return("x")

	rs, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, rs.Columns)
	assert.Equal(t, [][]any{{"a"}, {nil}}, rs.Rows)
	assert.Equal(t, 0, rs.Stats.NodesCreated)
}
