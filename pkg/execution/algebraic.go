package execution

import (
	"fmt"
	"strings"

	"github.com/orneryd/matrixgraph/pkg/sparse"
	"github.com/orneryd/matrixgraph/pkg/storage"
)

// OperandKind selects the matrix an operand stands for.
type OperandKind uint8

const (
	// OperandRelation is a relation matrix; an empty name means any relation.
	OperandRelation OperandKind = iota
	// OperandLabel is a label matrix, used as a diagonal filter.
	OperandLabel
)

// Operand is one factor of an AlgebraicExpression.
type Operand struct {
	Kind       OperandKind
	Name       string
	Transposed bool
}

// Relation returns a relation operand. Traversing against the edge direction
// uses the transposed matrix.
func Relation(name string, transposed bool) Operand {
	return Operand{Kind: OperandRelation, Name: name, Transposed: transposed}
}

// Label returns a label filter operand.
func Label(name string) Operand {
	return Operand{Kind: OperandLabel, Name: name}
}

func (o Operand) String() string {
	name := o.Name
	if o.Kind == OperandRelation && name == "" {
		name = "ADJ"
	}
	if o.Transposed {
		name += "^T"
	}
	return name
}

// AlgebraicExpression describes a traversal pattern as a product of matrices.
// Evaluating it against a filter matrix F (one row per input record) yields a
// matrix whose entry (i, j) means record i reaches node j.
//
// Example:
//
//	// (a)-[:KNOWS]->(b:Person)
//	ae := &AlgebraicExpression{Src: "a", Dst: "b", Operands: []Operand{
//		Relation("KNOWS", false),
//		Label("Person"),
//	}}
type AlgebraicExpression struct {
	Src      string
	Dst      string
	Edge     string // optional alias for edge expansion
	Operands []Operand
}

// Clone returns an independent copy.
func (ae *AlgebraicExpression) Clone() *AlgebraicExpression {
	c := *ae
	c.Operands = append([]Operand(nil), ae.Operands...)
	return &c
}

func (ae *AlgebraicExpression) String() string {
	parts := make([]string, 0, len(ae.Operands)+1)
	parts = append(parts, "F")
	for _, o := range ae.Operands {
		parts = append(parts, o.String())
	}
	return strings.Join(parts, " * ")
}

// EdgeOperand returns the relation operand used for edge expansion. Edge
// expansion needs exactly one relation operand.
func (ae *AlgebraicExpression) EdgeOperand() (Operand, bool) {
	var found Operand
	n := 0
	for _, o := range ae.Operands {
		if o.Kind == OperandRelation {
			found = o
			n++
		}
	}
	return found, n == 1
}

// Evaluate computes F * R1 * ... * Rn. Undeclared labels and relation types
// contribute empty matrices. Requires at least the graph read lock.
func (ae *AlgebraicExpression) Evaluate(g *storage.Graph, f *sparse.Matrix[bool]) (*sparse.Matrix[bool], error) {
	m := f
	for _, o := range ae.Operands {
		var err error
		switch o.Kind {
		case OperandLabel:
			id := g.Schema().LabelID(o.Name)
			if id == storage.UnknownLabel {
				return sparse.New[bool](f.NRows(), m.NCols()), nil
			}
			lm, lerr := g.LabelMatrix(id)
			if lerr != nil {
				return nil, lerr
			}
			m, err = product(m, lm.Matrix())
		case OperandRelation:
			if o.Name == "" {
				m, err = product(m, g.AdjacencyMatrix(o.Transposed).Matrix())
				break
			}
			id := g.Schema().RelationID(o.Name)
			if id == storage.UnknownRelation {
				return sparse.New[bool](f.NRows(), m.NCols()), nil
			}
			rm, rerr := g.RelationMatrix(id, o.Transposed)
			if rerr != nil {
				return nil, rerr
			}
			m, err = product(m, rm.Matrix())
		default:
			return nil, fmt.Errorf("unknown operand kind %d", o.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("evaluating %s: %w", ae, err)
		}
	}
	return m, nil
}

// product multiplies m by op after conforming the shared dimension. Matrices
// may lag behind the node capacity when their sync policy defers resizes.
func product[T any](m *sparse.Matrix[bool], op *sparse.Matrix[T]) (*sparse.Matrix[bool], error) {
	n := op.NRows()
	switch {
	case n > m.NCols():
		m = m.Clone()
		m.Resize(m.NRows(), n)
	case n < m.NCols():
		op = op.Clone()
		op.Resize(m.NCols(), max(op.NCols(), m.NCols()))
	}
	return sparse.Multiply(m, op)
}
