package execution

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/orneryd/matrixgraph/pkg/metrics"
)

// Operation is a pull-based plan operator.
//
// Lifecycle:
//
//	Init -> Consume* -> [Reset -> Consume*]* -> Free
//
// Consume returns the next record, or nil once the operation is depleted.
// Operations run while the plan holds the graph lock and never take it
// themselves.
type Operation interface {
	// Name identifies the operation in plan descriptions and metrics.
	Name() string
	// Init prepares the operation; it is called again on every run.
	Init() error
	// Consume returns the next record or nil when depleted.
	Consume() (*Record, error)
	// Reset rewinds the operation so it can be consumed again.
	Reset() error
	// Clone returns an uninitialized copy bound to plan. Children are not copied.
	Clone(plan *ExecutionPlan) Operation
	// Free releases resources held between Init and the end of the run.
	Free()

	Children() []Operation
	AddChild(child Operation)

	// Modifies lists the aliases whose record slots this operation sets.
	Modifies() []string
	// Writer reports whether the operation changes the graph.
	Writer() bool
}

// OpBase carries the state shared by every operation. Concrete operations
// embed it and install their consume function during Init.
type OpBase struct {
	name     string
	plan     *ExecutionPlan
	children []Operation
	modifies []string
	writer   bool

	consume  func() (*Record, error)
	produced prometheus.Counter
}

func newOpBase(plan *ExecutionPlan, name string, writer bool) OpBase {
	return OpBase{
		name:     name,
		plan:     plan,
		writer:   writer,
		produced: metrics.RecordsProduced.WithLabelValues(name),
	}
}

func (op *OpBase) Name() string { return op.name }
func (op *OpBase) Children() []Operation { return op.children }
func (op *OpBase) Modifies() []string { return op.modifies }
func (op *OpBase) Writer() bool { return op.writer }
func (op *OpBase) AddChild(c Operation) { op.children = append(op.children, c) }
func (op *OpBase) Free() {}
func (op *OpBase) Reset() error { return nil }
func (op *OpBase) Plan() *ExecutionPlan { return op.plan }
func (op *OpBase) base() *OpBase { return op }
func (op *OpBase) evalCtx() *EvalContext { return op.plan.evalCtx() }
func (op *OpBase) hasChild() bool { return len(op.children) > 0 }
func (op *OpBase) child() Operation { return op.children[0] }
func (op *OpBase) modify(alias string) int {
	op.modifies = append(op.modifies, alias)
	return op.plan.Slot(alias)
}

// Consume pulls the next record through the installed consume function.
func (op *OpBase) Consume() (*Record, error) {
	if op.consume == nil {
		return nil, nil
	}
	r, err := op.consume()
	if r != nil {
		op.produced.Inc()
	}
	return r, err
}

// depleted is the consume function of operations that produce nothing.
func depleted() (*Record, error) { return nil, nil }

func initTree(op Operation) error {
	for _, c := range op.Children() {
		if err := initTree(c); err != nil {
			return err
		}
	}
	return op.Init()
}

func freeTree(op Operation) {
	for _, c := range op.Children() {
		freeTree(c)
	}
	op.Free()
}

func cloneTree(op Operation, plan *ExecutionPlan) Operation {
	c := op.Clone(plan)
	for _, child := range op.Children() {
		c.AddChild(cloneTree(child, plan))
	}
	return c
}

func writes(op Operation) bool {
	if op.Writer() {
		return true
	}
	for _, c := range op.Children() {
		if writes(c) {
			return true
		}
	}
	return false
}
