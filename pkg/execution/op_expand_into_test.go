package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// trianglePlan matches (a:Person)-[:KNOWS]->(b)-[:KNOWS]->(c) and closes it
// with (a)-[closing]->(c).
func trianglePlan(g *storage.Graph, closing *AlgebraicExpression, opts ...Option) *ExecutionPlan {
	p := NewPlan(g, opts...)
	scan := NewNodeByLabelScan(p, "a", "Person")
	ab := NewCondTraverse(p, &AlgebraicExpression{Src: "a", Dst: "b", Operands: []Operand{Relation("KNOWS", false)}})
	ab.AddChild(scan)
	bc := NewCondTraverse(p, &AlgebraicExpression{Src: "b", Dst: "c", Operands: []Operand{Relation("KNOWS", false)}})
	bc.AddChild(ab)
	ac := NewCondTraverse(p, closing)
	ac.AddChild(bc)
	p.SetRoot(ac)
	p.Return("a", "c")
	return p
}

func TestReduceTraversals_Triangle(t *testing.T) {
	g := socialGraph(t)

	for _, recordCap := range []int{1, 2, DefaultRecordCap} {
		closing := &AlgebraicExpression{Src: "a", Dst: "c", Operands: []Operand{Relation("KNOWS", false)}}
		p := trianglePlan(g, closing, WithRecordCap(recordCap))

		rs, err := p.Run(context.Background())
		require.NoError(t, err)
		// 0->1->2 closes with 0->2; 0->2->3 and 1->2->3 have no a->c edge
		assert.Equal(t, [][2]storage.NodeID{{0, 2}}, nodePairs(t, rs), "record cap %d", recordCap)

		into, ok := p.Root().(*ExpandInto)
		require.True(t, ok, "root is %s", p.Root().Name())
		_, ok = into.Children()[0].(*CondTraverse)
		assert.True(t, ok, "traversals binding new aliases are kept")
	}
}

func TestExpandInto_EdgeAndDirection(t *testing.T) {
	g := socialGraph(t)

	closing := &AlgebraicExpression{Src: "a", Dst: "c", Edge: "r", Operands: []Operand{Relation("KNOWS", false)}}
	p := trianglePlan(g, closing)
	p.Return("a", "c", "r")
	rs, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	e := rs.Rows[0][2].(*storage.Edge)
	assert.Equal(t, storage.EdgeID(1), e.ID)

	// c<-a read backwards never matches a forward-only triangle
	reversed := &AlgebraicExpression{Src: "a", Dst: "c", Operands: []Operand{Relation("KNOWS", true)}}
	rs, err = trianglePlan(g, reversed).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rs.Rows)

	// a label filter on an already bound destination
	labeled := &AlgebraicExpression{Src: "a", Dst: "c", Operands: []Operand{Relation("KNOWS", false), Label("City")}}
	rs, err = trianglePlan(g, labeled).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rs.Rows)
}

func TestExpandInto_SelfCheck(t *testing.T) {
	g := socialGraph(t)

	// (a:Person)-[:KNOWS]->(a): no Person knows themselves
	p := NewPlan(g)
	scan := NewNodeByLabelScan(p, "a", "Person")
	loop := NewCondTraverse(p, &AlgebraicExpression{Src: "a", Dst: "a", Operands: []Operand{Relation("KNOWS", false)}})
	loop.AddChild(scan)
	p.SetRoot(loop)
	p.Return("a")
	rs, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rs.Rows)
	assert.Equal(t, "Expand Into", p.Root().Name())

	// (a:Person) filtered by its own label keeps every Person
	p = NewPlan(g)
	scan = NewNodeByLabelScan(p, "a", "Person")
	same := NewCondTraverse(p, &AlgebraicExpression{Src: "a", Dst: "a", Operands: []Operand{Label("Person")}})
	same.AddChild(scan)
	p.SetRoot(same)
	p.Return("a")
	rs, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, rs.Rows, 4)

	c := p.Clone()
	rs, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, rs.Rows, 4)
}

func TestExpandInto_MissingChild(t *testing.T) {
	p := NewPlan(socialGraph(t))
	p.SetRoot(NewExpandInto(p, &AlgebraicExpression{Src: "a", Dst: "b"}))
	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrMissingChild)
}
