package execution

import (
	"fmt"

	"github.com/orneryd/matrixgraph/pkg/algorithms"
	"github.com/orneryd/matrixgraph/pkg/storage"
)

// CondVarLenTraverse emits, for every input record, each node reachable from
// the source through a path of minHops to maxHops relationships. Paths are
// enumerated depth-first, so a node reached through several paths is emitted
// once per path.
type CondVarLenTraverse struct {
	OpBase
	src, dst   string
	relation   string // empty for any relation
	transposed bool
	minHops    int
	maxHops    int

	srcSlot int
	dstSlot int

	current *Record
	next    func() (storage.NodeID, int, bool)
}

// NewCondVarLenTraverse traverses relation from src to dst. Use
// algorithms.Unbounded for an open maxHops.
func NewCondVarLenTraverse(p *ExecutionPlan, src, dst, relation string, transposed bool, minHops, maxHops int) *CondVarLenTraverse {
	op := &CondVarLenTraverse{
		OpBase:     newOpBase(p, "Conditional Variable Length Traverse", false),
		src:        src,
		dst:        dst,
		relation:   relation,
		transposed: transposed,
		minHops:    minHops,
		maxHops:    maxHops,
		srcSlot:    p.Slot(src),
	}
	op.dstSlot = op.modify(dst)
	return op
}

func (op *CondVarLenTraverse) Init() error {
	if !op.hasChild() {
		return fmt.Errorf("%s: %w", op.name, ErrMissingChild)
	}
	if op.minHops < 0 || op.maxHops < op.minHops {
		return queryError(op.name, "invalid hop range [%d,%d]", op.minHops, op.maxHops)
	}
	op.current, op.next = nil, nil
	op.consume = op.traverse
	return nil
}

// neighbors prepares the enumeration from src. ok is false when the relation
// type does not exist.
func (op *CondVarLenTraverse) neighbors(src storage.NodeID) (func() (storage.NodeID, int, bool), bool, error) {
	g := op.plan.graph
	if op.relation == "" {
		nb := algorithms.NewAllNeighbors(g.AdjacencyMatrix(op.transposed), src, storage.InvalidEntityID, op.minHops, op.maxHops)
		return nb.Next, true, nil
	}
	rel := g.Schema().RelationID(op.relation)
	if rel == storage.UnknownRelation {
		return nil, false, nil
	}
	m, err := g.RelationMatrix(rel, op.transposed)
	if err != nil {
		return nil, false, err
	}
	nb := algorithms.NewAllNeighbors(m, src, storage.InvalidEntityID, op.minHops, op.maxHops)
	return nb.Next, true, nil
}

func (op *CondVarLenTraverse) traverse() (*Record, error) {
	g := op.plan.graph
	for {
		if op.next != nil {
			id, _, ok := op.next()
			if ok {
				n, err := g.GetNode(id)
				if err != nil {
					continue
				}
				out := op.current.Clone()
				out.SetNode(op.dstSlot, n)
				return out, nil
			}
			op.current, op.next = nil, nil
		}

		r, err := op.child().Consume()
		if err != nil || r == nil {
			return nil, err
		}
		src, ok := r.Node(op.srcSlot)
		if !ok {
			continue
		}
		next, ok, err := op.neighbors(src.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		op.current, op.next = r, next
	}
}

func (op *CondVarLenTraverse) Reset() error {
	op.current, op.next = nil, nil
	return nil
}

func (op *CondVarLenTraverse) Free() {
	op.current, op.next = nil, nil
}

func (op *CondVarLenTraverse) Clone(p *ExecutionPlan) Operation {
	return NewCondVarLenTraverse(p, op.src, op.dst, op.relation, op.transposed, op.minHops, op.maxHops)
}

func (op *CondVarLenTraverse) String() string {
	return fmt.Sprintf("(%s)-[:%s*%d..%d]->(%s)", op.src, op.relation, op.minHops, op.maxHops, op.dst)
}
