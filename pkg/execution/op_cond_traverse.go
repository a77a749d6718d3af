package execution

import (
	"fmt"

	"github.com/orneryd/matrixgraph/pkg/sparse"
	"github.com/orneryd/matrixgraph/pkg/storage"
)

// CondTraverse expands each input record along an algebraic expression.
//
// Input records are batched, up to the plan's record cap. Row i of the
// filter matrix F holds the source node of record i; F * R1 * ... * Rn gives
// the reachable destinations per record, which are emitted one record each.
// When the expression names an edge alias, one record is emitted per
// connecting edge instead.
type CondTraverse struct {
	OpBase
	ae       *AlgebraicExpression
	srcSlot  int
	dstSlot  int
	edgeSlot int

	edgeRel        storage.RelationID
	edgeTransposed bool

	records []*Record
	it      storage.TupleIterator[bool]

	// pending edge expansion
	current *Record
	srcID   storage.NodeID
	edges   []storage.EdgeID
}

// NewCondTraverse traverses from ae.Src to ae.Dst.
func NewCondTraverse(p *ExecutionPlan, ae *AlgebraicExpression) *CondTraverse {
	op := &CondTraverse{
		OpBase:   newOpBase(p, "Conditional Traverse", false),
		ae:       ae,
		srcSlot:  p.Slot(ae.Src),
		edgeSlot: -1,
	}
	op.dstSlot = op.modify(ae.Dst)
	if ae.Edge != "" {
		op.edgeSlot = op.modify(ae.Edge)
	}
	return op
}

func (op *CondTraverse) Init() error {
	if !op.hasChild() {
		return fmt.Errorf("%s: %w", op.name, ErrMissingChild)
	}
	if op.edgeSlot >= 0 {
		o, ok := op.ae.EdgeOperand()
		if !ok {
			return queryError(op.name, "edge %s needs exactly one relationship in %s", op.ae.Edge, op.ae)
		}
		op.edgeRel = storage.UnknownRelation
		if o.Name != "" {
			op.edgeRel = op.plan.graph.Schema().RelationID(o.Name)
		}
		op.edgeTransposed = o.Transposed
	}
	op.reset()
	op.consume = op.traverse
	return nil
}

func (op *CondTraverse) reset() {
	op.records = op.records[:0]
	op.it.Detach()
	op.current = nil
	op.edges = nil
}

// fill pulls the next batch of records and evaluates the expression over it.
// Returns false once the child is depleted.
func (op *CondTraverse) fill() (bool, error) {
	op.records = op.records[:0]
	for len(op.records) < op.plan.recordCap {
		r, err := op.child().Consume()
		if err != nil {
			return false, err
		}
		if r == nil {
			break
		}
		op.records = append(op.records, r)
	}
	if len(op.records) == 0 {
		return false, nil
	}

	g := op.plan.graph
	f := sparse.New[bool](uint64(len(op.records)), g.NodeCapacity())
	for i, r := range op.records {
		n, ok := r.Node(op.srcSlot)
		if !ok || n.ID >= g.NodeCapacity() {
			continue
		}
		if err := f.Set(uint64(i), n.ID, true); err != nil {
			return false, err
		}
	}

	m, err := op.ae.Evaluate(g, f)
	if err != nil {
		return false, err
	}
	return true, op.it.Attach(storage.WrapMatrix("traverse", m))
}

func (op *CondTraverse) emitEdge() (*Record, bool) {
	g := op.plan.graph
	for len(op.edges) > 0 {
		id := op.edges[0]
		op.edges = op.edges[1:]
		e, err := g.GetEdge(id)
		if err != nil {
			continue
		}
		out := op.current.Clone()
		out.SetEdge(op.edgeSlot, e)
		return out, true
	}
	return nil, false
}

func (op *CondTraverse) traverse() (*Record, error) {
	g := op.plan.graph
	for {
		if out, ok := op.emitEdge(); ok {
			return out, nil
		}

		row, col, _, err := op.it.Next()
		if err != nil {
			if !iteratorDone(err) {
				return nil, err
			}
			more, err := op.fill()
			if err != nil || !more {
				return nil, err
			}
			continue
		}

		dst, err := g.GetNode(col)
		if err != nil {
			continue
		}
		out := op.records[row].Clone()
		out.SetNode(op.dstSlot, dst)
		if op.edgeSlot < 0 {
			return out, nil
		}

		src, _ := op.records[row].Node(op.srcSlot)
		if op.edgeTransposed {
			op.edges = g.EdgesBetween(col, src.ID, op.edgeRel)
		} else {
			op.edges = g.EdgesBetween(src.ID, col, op.edgeRel)
		}
		op.current = out
	}
}

func (op *CondTraverse) Reset() error {
	op.reset()
	return nil
}

func (op *CondTraverse) Free() {
	op.reset()
	op.records = nil
}

func (op *CondTraverse) Clone(p *ExecutionPlan) Operation {
	return NewCondTraverse(p, op.ae.Clone())
}

func (op *CondTraverse) String() string {
	return fmt.Sprintf("(%s)->(%s) %s", op.ae.Src, op.ae.Dst, op.ae)
}
