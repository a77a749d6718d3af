package execution

import (
	"fmt"

	"github.com/orneryd/matrixgraph/pkg/sparse"
	"github.com/orneryd/matrixgraph/pkg/storage"
)

// ExpandInto filters records whose source and destination nodes are both
// bound already, keeping those where the expression connects source to
// destination. With an edge alias it emits one record per connecting edge.
//
// Input is batched like CondTraverse: row i of F holds the source of record i,
// and record i survives when (i, dst) is set in F * R1 * ... * Rn.
type ExpandInto struct {
	OpBase
	ae       *AlgebraicExpression
	srcSlot  int
	dstSlot  int
	edgeSlot int

	edgeRel        storage.RelationID
	edgeTransposed bool

	records []*Record
	m       *sparse.Matrix[bool]
	pos     int

	current *Record
	edges   []storage.EdgeID
}

// NewExpandInto checks connectivity from ae.Src to ae.Dst.
func NewExpandInto(p *ExecutionPlan, ae *AlgebraicExpression) *ExpandInto {
	op := &ExpandInto{
		OpBase:   newOpBase(p, "Expand Into", false),
		ae:       ae,
		srcSlot:  p.Slot(ae.Src),
		dstSlot:  p.Slot(ae.Dst),
		edgeSlot: -1,
	}
	if ae.Edge != "" {
		op.edgeSlot = op.modify(ae.Edge)
	}
	return op
}

func (op *ExpandInto) Init() error {
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
	op.consume = op.expand
	return nil
}

func (op *ExpandInto) reset() {
	op.records = op.records[:0]
	op.m = nil
	op.pos = 0
	op.current = nil
	op.edges = nil
}

func (op *ExpandInto) fill() (bool, error) {
	op.records = op.records[:0]
	op.pos = 0
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

	var err error
	op.m, err = op.ae.Evaluate(g, f)
	return err == nil, err
}

func (op *ExpandInto) emitEdge() (*Record, bool) {
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

func (op *ExpandInto) expand() (*Record, error) {
	g := op.plan.graph
	for {
		if out, ok := op.emitEdge(); ok {
			return out, nil
		}
		if op.pos >= len(op.records) {
			more, err := op.fill()
			if err != nil || !more {
				return nil, err
			}
			continue
		}

		i := op.pos
		op.pos++
		r := op.records[i]
		src, sok := r.Node(op.srcSlot)
		dst, dok := r.Node(op.dstSlot)
		if !sok || !dok {
			continue
		}
		if _, ok := op.m.Get(uint64(i), dst.ID); !ok {
			continue
		}
		if op.edgeSlot < 0 {
			return r, nil
		}
		if op.edgeTransposed {
			op.edges = g.EdgesBetween(dst.ID, src.ID, op.edgeRel)
		} else {
			op.edges = g.EdgesBetween(src.ID, dst.ID, op.edgeRel)
		}
		op.current = r
	}
}

func (op *ExpandInto) Reset() error {
	op.reset()
	return nil
}

func (op *ExpandInto) Free() {
	op.reset()
	op.records = nil
}

func (op *ExpandInto) Clone(p *ExecutionPlan) Operation {
	return NewExpandInto(p, op.ae.Clone())
}

func (op *ExpandInto) String() string {
	return fmt.Sprintf("(%s)->(%s) %s", op.ae.Src, op.ae.Dst, op.ae)
}

// ReduceTraversals replaces every CondTraverse whose destination is already
// bound by the operations below it with an ExpandInto over the same
// expression and children, and returns the possibly new root.
func ReduceTraversals(op Operation) Operation {
	if op == nil {
		return nil
	}
	base := baseOf(op)
	if base == nil {
		return op
	}
	for i, c := range base.children {
		base.children[i] = ReduceTraversals(c)
	}

	t, ok := op.(*CondTraverse)
	if !ok || !t.hasChild() || !bindsAlias(t.child(), t.ae.Dst) {
		return op
	}
	into := NewExpandInto(t.plan, t.ae)
	into.children = t.children
	return into
}

func bindsAlias(op Operation, alias string) bool {
	for _, m := range op.Modifies() {
		if m == alias {
			return true
		}
	}
	for _, c := range op.Children() {
		if bindsAlias(c, alias) {
			return true
		}
	}
	return false
}

func baseOf(op Operation) *OpBase {
	if b, ok := op.(interface{ base() *OpBase }); ok {
		return b.base()
	}
	return nil
}
