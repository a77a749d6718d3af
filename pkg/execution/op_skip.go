package execution

import "fmt"

// Skip discards the first n records of its child. n is evaluated once, when
// the operation is initialized, and must be a non-negative integer.
type Skip struct {
	OpBase
	expr    Expression
	skip    int64
	skipped int64
}

// NewSkip skips the number of records expr evaluates to.
func NewSkip(p *ExecutionPlan, expr Expression) *Skip {
	return &Skip{
		OpBase: newOpBase(p, "Skip", false),
		expr:   expr,
	}
}

func (op *Skip) Init() error {
	if !op.hasChild() {
		return fmt.Errorf("%s: %w", op.name, ErrMissingChild)
	}
	v, err := op.expr.Evaluate(op.evalCtx(), op.plan.NewRecord())
	if err != nil {
		return err
	}
	n, ok := v.AsInt()
	if !ok || n < 0 {
		return queryError(op.name, "Skip operates only on non-negative integers")
	}
	op.skip = n
	op.skipped = 0
	op.consume = op.skipRecords
	return nil
}

func (op *Skip) skipRecords() (*Record, error) {
	for op.skipped < op.skip {
		r, err := op.child().Consume()
		if err != nil || r == nil {
			return nil, err
		}
		op.skipped++
	}
	return op.child().Consume()
}

func (op *Skip) Reset() error {
	op.skipped = 0
	return nil
}

// Clone re-evaluates the skip expression in the new plan, which may carry
// different parameters.
func (op *Skip) Clone(p *ExecutionPlan) Operation {
	return NewSkip(p, op.expr.Clone())
}

func (op *Skip) String() string { return op.expr.String() }
