package execution

import "github.com/orneryd/matrixgraph/pkg/storage"

// Unwind emits one record per element of a list expression, binding the
// element to alias. Beneath a child the list is evaluated per input record.
type Unwind struct {
	OpBase
	expr  Expression
	alias string
	slot  int

	current   *Record
	list      []storage.Value
	pos       int
	evaluated bool
}

// NewUnwind binds each element of expr to alias.
func NewUnwind(p *ExecutionPlan, expr Expression, alias string) *Unwind {
	op := &Unwind{
		OpBase: newOpBase(p, "Unwind", false),
		expr:   expr,
		alias:  alias,
	}
	op.slot = op.modify(alias)
	return op
}

func (op *Unwind) Init() error {
	op.reset()
	op.consume = op.unwind
	return nil
}

func (op *Unwind) reset() {
	op.current, op.list, op.pos, op.evaluated = nil, nil, 0, false
}

// unwindValues turns the value of the list expression into the values to
// emit. Null yields nothing and scalars yield themselves.
func unwindValues(v storage.Value) []storage.Value {
	switch v.Type() {
	case storage.TypeNull:
		return nil
	case storage.TypeArray:
		items, _ := v.AsArray()
		return items
	default:
		return []storage.Value{v}
	}
}

func (op *Unwind) unwind() (*Record, error) {
	for {
		if op.current != nil && op.pos < len(op.list) {
			out := op.current.Clone()
			out.SetScalar(op.slot, op.list[op.pos])
			op.pos++
			return out, nil
		}

		if op.hasChild() {
			r, err := op.child().Consume()
			if err != nil || r == nil {
				return nil, err
			}
			op.current = r
		} else {
			if op.evaluated {
				return nil, nil
			}
			op.evaluated = true
			op.current = op.plan.NewRecord()
		}

		v, err := op.expr.Evaluate(op.evalCtx(), op.current)
		if err != nil {
			return nil, err
		}
		op.list, op.pos = unwindValues(v), 0
	}
}

func (op *Unwind) Reset() error {
	op.reset()
	return nil
}

func (op *Unwind) Free() { op.reset() }

func (op *Unwind) Clone(p *ExecutionPlan) Operation {
	return NewUnwind(p, op.expr.Clone(), op.alias)
}

func (op *Unwind) String() string { return op.expr.String() + " AS " + op.alias }
