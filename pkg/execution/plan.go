// Package execution implements the pull-based query pipeline: an
// ExecutionPlan owns a tree of operations that pass records upward one at a
// time, driving tuple iterators over the graph's matrices.
//
// A plan is built programmatically:
//
//	p := execution.NewPlan(g)
//	scan := execution.NewNodeByLabelScan(p, "n", "Person")
//	skip := execution.NewSkip(p, execution.Const(storage.IntValue(10)))
//	skip.AddChild(scan)
//	p.SetRoot(skip)
//	p.Return("n")
//	rs, err := p.Run(ctx)
//
// Run takes the graph write lock when any operation in the tree writes and
// the read lock otherwise, for the whole run.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orneryd/matrixgraph/pkg/index"
	"github.com/orneryd/matrixgraph/pkg/metrics"
	"github.com/orneryd/matrixgraph/pkg/storage"
)

// DefaultRecordCap is the number of records CondTraverse batches per
// matrix multiplication.
const DefaultRecordCap = 16

var tracer = otel.Tracer("matrixgraph.execution")

// QueryStats holds query execution statistics.
type QueryStats struct {
	NodesCreated         int           `json:"nodes_created"`
	RelationshipsCreated int           `json:"relationships_created"`
	PropertiesSet        int           `json:"properties_set"`
	LabelsAdded          int           `json:"labels_added"`
	ExecutionTime        time.Duration `json:"execution_time"`
}

// ResultSet is what Run returns.
type ResultSet struct {
	Columns []string
	Rows    [][]any
	Stats   *QueryStats
}

// Option configures an ExecutionPlan.
type Option func(*ExecutionPlan)

// WithRegistry makes writing operations keep the registry's indexes current.
func WithRegistry(r *index.Registry) Option {
	return func(p *ExecutionPlan) { p.registry = r }
}

// WithParams sets the query parameters.
func WithParams(params map[string]storage.Value) Option {
	return func(p *ExecutionPlan) { p.params = params }
}

// WithLogger sets the logger used by the plan and its operations.
func WithLogger(l *slog.Logger) Option {
	return func(p *ExecutionPlan) { p.logger = l }
}

// WithHTTPClient sets the client LoadCSV uses for remote files.
func WithHTTPClient(c *http.Client) Option {
	return func(p *ExecutionPlan) { p.httpClient = c }
}

// WithRecordCap sets how many records CondTraverse batches.
func WithRecordCap(n int) Option {
	return func(p *ExecutionPlan) {
		if n > 0 {
			p.recordCap = n
		}
	}
}

// ExecutionPlan owns the operation tree, the record layout and the
// per-run state. A plan runs once at a time; use Clone for concurrent runs.
type ExecutionPlan struct {
	ID string

	graph      *storage.Graph
	registry   *index.Registry
	logger     *slog.Logger
	httpClient *http.Client
	recordCap  int
	params     map[string]storage.Value

	layout  map[string]int
	aliases []string
	columns []string
	root    Operation

	// per run
	ctx   context.Context
	ec    *EvalContext
	stats QueryStats
}

// NewPlan creates an empty plan over g.
func NewPlan(g *storage.Graph, opts ...Option) *ExecutionPlan {
	p := &ExecutionPlan{
		ID:         uuid.New().String(),
		graph:      g,
		logger:     slog.Default(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		recordCap:  DefaultRecordCap,
		layout:     make(map[string]int),
		ctx:        context.Background(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Graph returns the graph the plan runs against.
func (p *ExecutionPlan) Graph() *storage.Graph { return p.graph }

// Root returns the root operation.
func (p *ExecutionPlan) Root() Operation { return p.root }

// SetRoot sets the root operation.
func (p *ExecutionPlan) SetRoot(op Operation) { p.root = op }

// Slot returns the record slot of alias, assigning one on first use.
func (p *ExecutionPlan) Slot(alias string) int {
	if i, ok := p.layout[alias]; ok {
		return i
	}
	i := len(p.aliases)
	p.layout[alias] = i
	p.aliases = append(p.aliases, alias)
	return i
}

// Var returns an expression reading alias.
func (p *ExecutionPlan) Var(alias string) *Variable {
	return &Variable{Alias: alias, slot: p.Slot(alias)}
}

// Prop returns an expression reading attribute attr of alias.
func (p *ExecutionPlan) Prop(alias, attr string) *Property {
	return &Property{Alias: alias, Attr: attr, slot: p.Slot(alias)}
}

// IDOf returns an expression evaluating to the id of alias.
func (p *ExecutionPlan) IDOf(alias string) *IDOf {
	return &IDOf{Alias: alias, slot: p.Slot(alias)}
}

// Return sets the aliases projected into the result set.
func (p *ExecutionPlan) Return(aliases ...string) {
	p.columns = append([]string(nil), aliases...)
	for _, a := range aliases {
		p.Slot(a)
	}
}

// NewRecord returns an empty record sized for the plan's layout.
func (p *ExecutionPlan) NewRecord() *Record { return newRecord(len(p.aliases)) }

func (p *ExecutionPlan) evalCtx() *EvalContext {
	if p.ec == nil {
		p.ec = &EvalContext{Graph: p.graph, Params: p.params}
	}
	return p.ec
}

// Clone returns an independent copy of the plan and its operation tree.
func (p *ExecutionPlan) Clone() *ExecutionPlan {
	c := &ExecutionPlan{
		ID:         uuid.New().String(),
		graph:      p.graph,
		registry:   p.registry,
		logger:     p.logger,
		httpClient: p.httpClient,
		recordCap:  p.recordCap,
		params:     maps.Clone(p.params),
		layout:     maps.Clone(p.layout),
		aliases:    append([]string(nil), p.aliases...),
		columns:    append([]string(nil), p.columns...),
		ctx:        context.Background(),
	}
	if p.root != nil {
		c.root = cloneTree(p.root, c)
	}
	return c
}

// Run executes the plan until the root is depleted or ctx is done.
func (p *ExecutionPlan) Run(ctx context.Context) (rs *ResultSet, err error) {
	if p.root == nil {
		return nil, ErrNoRoot
	}

	ctx, span := tracer.Start(ctx, "execution.Run",
		trace.WithAttributes(
			attribute.String("plan.id", p.ID),
			attribute.String("graph", p.graph.Name()),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.PlanDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}()

	p.root = ReduceTraversals(p.root)
	writer := writes(p.root)
	if writer {
		p.graph.AcquireWrite()
	} else {
		p.graph.AcquireRead()
	}
	defer p.graph.Release()

	p.ctx = ctx
	p.ec = &EvalContext{Graph: p.graph, Params: p.params}
	p.stats = QueryStats{}
	defer func() { p.ctx = context.Background() }()

	defer freeTree(p.root)
	if err := initTree(p.root); err != nil {
		return nil, err
	}

	slots := make([]int, len(p.columns))
	for i, c := range p.columns {
		slots[i] = p.layout[c]
	}

	rs = &ResultSet{Columns: append([]string(nil), p.columns...)}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := p.root.Consume()
		if err != nil {
			return nil, err
		}
		if r == nil {
			break
		}
		if len(slots) == 0 {
			continue
		}
		row := make([]any, len(slots))
		for i, s := range slots {
			row[i] = r.Get(s).Interface()
		}
		rs.Rows = append(rs.Rows, row)
	}

	p.stats.ExecutionTime = time.Since(start)
	stats := p.stats
	rs.Stats = &stats

	span.SetAttributes(attribute.Int("rows", len(rs.Rows)), attribute.Bool("writer", writer))
	p.logger.Debug("plan executed",
		"plan", p.ID,
		"rows", len(rs.Rows),
		"nodes_created", stats.NodesCreated,
		"relationships_created", stats.RelationshipsCreated,
		"duration", stats.ExecutionTime)
	return rs, nil
}

// String renders the operation tree, root first.
func (p *ExecutionPlan) String() string {
	if p.root == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(op Operation, depth int)
	walk = func(op Operation, depth int) {
		line := op.Name()
		if s, ok := op.(fmt.Stringer); ok {
			line += " | " + s.String()
		}
		fmt.Fprintf(&sb, "%s%s\n", strings.Repeat("    ", depth), line)
		for _, c := range op.Children() {
			walk(c, depth+1)
		}
	}
	walk(p.root, 0)
	return sb.String()
}
