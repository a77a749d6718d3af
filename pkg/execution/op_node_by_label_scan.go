package execution

import (
	"errors"
	"fmt"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// IDRange restricts a label scan to node ids between Min and Max. A nil bound
// is open. Bounds are evaluated against the current input record, so they may
// depend on earlier operations.
type IDRange struct {
	Min, Max               Expression
	IncludeMin, IncludeMax bool
}

// Clone returns an independent copy.
func (r *IDRange) Clone() *IDRange {
	if r == nil {
		return nil
	}
	return &IDRange{
		Min:        cloneExpr(r.Min),
		Max:        cloneExpr(r.Max),
		IncludeMin: r.IncludeMin,
		IncludeMax: r.IncludeMax,
	}
}

// bounds evaluates the range and tightens it to [0, nrows). ok is false when
// the range is empty or a bound is not an integer.
func (r *IDRange) bounds(ec *EvalContext, rec *Record, nrows uint64) (lo, hi uint64, ok bool, err error) {
	if nrows == 0 {
		return 0, 0, false, nil
	}
	minID, maxID := int64(0), int64(nrows-1)
	if r.Min != nil {
		v, err := r.Min.Evaluate(ec, rec)
		if err != nil {
			return 0, 0, false, err
		}
		n, isInt := v.AsInt()
		if !isInt {
			return 0, 0, false, nil
		}
		if !r.IncludeMin {
			n++
		}
		minID = max(minID, n)
	}
	if r.Max != nil {
		v, err := r.Max.Evaluate(ec, rec)
		if err != nil {
			return 0, 0, false, err
		}
		n, isInt := v.AsInt()
		if !isInt {
			return 0, 0, false, nil
		}
		if !r.IncludeMax {
			n--
		}
		maxID = min(maxID, n)
	}
	if minID > maxID || maxID < 0 {
		return 0, 0, false, nil
	}
	return uint64(minID), uint64(maxID), true, nil
}

// iteratorDone reports whether err only signals the end of an iterator.
func iteratorDone(err error) bool {
	return errors.Is(err, storage.ErrIteratorExhausted) || errors.Is(err, storage.ErrIteratorDetached)
}

// NodeByLabelScan emits every node carrying a label, optionally within an id
// range.
//
// Without a child the label is resolved when the operation is built; a label
// that does not exist yet makes the scan produce nothing. Beneath a child the
// scan restarts for every input record, resolving the label the first time it
// is needed so labels created earlier in the same query are seen.
type NodeByLabelScan struct {
	OpBase
	alias   string
	label   string
	labelID storage.LabelID
	slot    int
	idRange *IDRange

	it          storage.TupleIterator[bool]
	childRecord *Record
}

// NewNodeByLabelScan scans the nodes labeled label into alias.
func NewNodeByLabelScan(p *ExecutionPlan, alias, label string) *NodeByLabelScan {
	op := &NodeByLabelScan{
		OpBase:  newOpBase(p, "Node By Label Scan", false),
		alias:   alias,
		label:   label,
		labelID: p.graph.Schema().LabelID(label),
	}
	op.slot = op.modify(alias)
	return op
}

// SetIDRange restricts the scan to an id range.
func (op *NodeByLabelScan) SetIDRange(r *IDRange) { op.idRange = r }

func (op *NodeByLabelScan) Init() error {
	op.childRecord = nil
	op.it.Detach()

	if op.hasChild() {
		op.consume = op.consumeFromChild
		return nil
	}

	op.consume = depleted
	if op.labelID == storage.UnknownLabel {
		return nil
	}
	ok, err := op.attach(op.plan.NewRecord())
	if err != nil {
		return err
	}
	if ok {
		op.consume = op.consumeStandalone
	}
	return nil
}

// attach binds the iterator for rec. ok is false when there is nothing to scan.
func (op *NodeByLabelScan) attach(rec *Record) (bool, error) {
	lm, err := op.plan.graph.LabelMatrix(op.labelID)
	if err != nil {
		return false, err
	}
	if op.idRange == nil {
		return true, op.it.Attach(lm)
	}
	lo, hi, ok, err := op.idRange.bounds(op.evalCtx(), rec, lm.NRows())
	if err != nil || !ok {
		return false, err
	}
	if err := op.it.AttachRange(lm, lo, hi); err != nil {
		return false, nil
	}
	return true, nil
}

func (op *NodeByLabelScan) next(base *Record) (*Record, error) {
	g := op.plan.graph
	for {
		_, id, _, err := op.it.Next()
		if err != nil {
			if iteratorDone(err) {
				return nil, nil
			}
			return nil, err
		}
		n, err := g.GetNode(id)
		if err != nil {
			continue
		}
		out := base.Clone()
		out.SetNode(op.slot, n)
		return out, nil
	}
}

func (op *NodeByLabelScan) consumeStandalone() (*Record, error) {
	return op.next(op.plan.NewRecord())
}

func (op *NodeByLabelScan) consumeFromChild() (*Record, error) {
	for {
		if op.childRecord == nil {
			r, err := op.child().Consume()
			if err != nil || r == nil {
				return nil, err
			}
			if op.labelID == storage.UnknownLabel {
				op.labelID = op.plan.graph.Schema().LabelID(op.label)
				if op.labelID == storage.UnknownLabel {
					continue
				}
			}
			ok, err := op.attach(r)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			op.childRecord = r
		}

		out, err := op.next(op.childRecord)
		if err != nil || out != nil {
			return out, err
		}
		// exhausted, pull the next parent record
		op.childRecord = nil
	}
}

func (op *NodeByLabelScan) Reset() error {
	op.childRecord = nil
	if op.hasChild() {
		op.it.Detach()
		return nil
	}
	// rewinds over the matrix version captured at Init
	op.it.Reset()
	return nil
}

func (op *NodeByLabelScan) Free() {
	op.it.Detach()
	op.childRecord = nil
}

func (op *NodeByLabelScan) Clone(p *ExecutionPlan) Operation {
	c := NewNodeByLabelScan(p, op.alias, op.label)
	c.idRange = op.idRange.Clone()
	return c
}

func (op *NodeByLabelScan) String() string { return fmt.Sprintf("(%s:%s)", op.alias, op.label) }
