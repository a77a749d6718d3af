package execution

import (
	"fmt"
	"strings"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// PropertyExpr assigns the value of an expression to an attribute.
type PropertyExpr struct {
	Key   string
	Value Expression
}

// NodeBlueprint describes a node to create for every input record.
type NodeBlueprint struct {
	Alias      string
	Labels     []string
	Properties []PropertyExpr
}

// EdgeBlueprint describes a relationship to create for every input record.
// Src and Dst name aliases bound by earlier operations or by node blueprints
// of the same Create.
type EdgeBlueprint struct {
	Alias      string
	Relation   string
	Src, Dst   string
	Properties []PropertyExpr
}

type pendingCreation struct {
	rec    *Record
	bp     int
	values []storage.Value
}

// Create creates nodes and relationships for every input record.
//
// All input records are consumed before anything is written. The creations
// are then committed together: matrices switch to the deferred sync policy,
// every entity is created, a single flush publishes the new entries and the
// previous policy is restored. Records are emitted afterwards, so operations
// above Create see the graph with every creation applied.
type Create struct {
	OpBase
	nodes     []NodeBlueprint
	edges     []EdgeBlueprint
	nodeSlots []int
	edgeSlots []int
	srcSlots  []int
	dstSlots  []int

	records []*Record
	emitted int
}

// NewCreate creates the given nodes and relationships.
func NewCreate(p *ExecutionPlan, nodes []NodeBlueprint, edges []EdgeBlueprint) *Create {
	op := &Create{
		OpBase: newOpBase(p, "Create", true),
		nodes:  nodes,
		edges:  edges,
	}
	for _, n := range nodes {
		op.nodeSlots = append(op.nodeSlots, op.modify(n.Alias))
	}
	for _, e := range edges {
		slot := -1
		if e.Alias != "" {
			slot = op.modify(e.Alias)
		}
		op.edgeSlots = append(op.edgeSlots, slot)
		op.srcSlots = append(op.srcSlots, p.Slot(e.Src))
		op.dstSlots = append(op.dstSlots, p.Slot(e.Dst))
	}
	return op
}

func (op *Create) Init() error {
	op.records = nil
	op.emitted = 0
	op.consume = op.create
	return nil
}

func (op *Create) evaluate(r *Record, props []PropertyExpr) ([]storage.Value, error) {
	vals := make([]storage.Value, len(props))
	for i, p := range props {
		v, err := p.Value.Evaluate(op.evalCtx(), r)
		if err != nil {
			return nil, err
		}
		if v.Type() == storage.TypeMap {
			return nil, queryError(op.name, "Property values can only be of primitive types or arrays of primitive types")
		}
		vals[i] = v
	}
	return vals, nil
}

func (op *Create) create() (*Record, error) {
	if op.records == nil {
		if err := op.collect(); err != nil {
			return nil, err
		}
	}
	if op.emitted >= len(op.records) {
		return nil, nil
	}
	r := op.records[op.emitted]
	op.emitted++
	return r, nil
}

// collect drains the child, evaluates every blueprint and commits.
func (op *Create) collect() error {
	op.records = []*Record{}
	if op.hasChild() {
		for {
			r, err := op.child().Consume()
			if err != nil {
				return err
			}
			if r == nil {
				break
			}
			op.records = append(op.records, r)
		}
	} else {
		op.records = append(op.records, op.plan.NewRecord())
	}

	var nodes, edges []pendingCreation
	for _, r := range op.records {
		for i, bp := range op.nodes {
			vals, err := op.evaluate(r, bp.Properties)
			if err != nil {
				return err
			}
			nodes = append(nodes, pendingCreation{rec: r, bp: i, values: vals})
		}
		for i, bp := range op.edges {
			vals, err := op.evaluate(r, bp.Properties)
			if err != nil {
				return err
			}
			edges = append(edges, pendingCreation{rec: r, bp: i, values: vals})
		}
	}
	if len(nodes)+len(edges) == 0 {
		return nil
	}
	return op.commit(nodes, edges)
}

func (op *Create) attributes(props []PropertyExpr, vals []storage.Value) (*storage.AttributeSet, int) {
	schema := op.plan.graph.Schema()
	attrs := storage.NewAttributeSet()
	set := 0
	for i, p := range props {
		if vals[i].IsNull() {
			continue
		}
		if attrs.Set(schema.GetOrAddAttribute(p.Key), vals[i]) {
			set++
		}
	}
	return attrs, set
}

func (op *Create) commit(nodes, edges []pendingCreation) error {
	g := op.plan.graph
	stats := &op.plan.stats

	prev := g.SetMatrixPolicy(storage.SyncPolicyResize)
	defer func() {
		g.ApplyAllPending(true)
		g.SetMatrixPolicy(prev)
	}()

	createdNodes := make([]storage.NodeID, 0, len(nodes))
	for _, pc := range nodes {
		bp := op.nodes[pc.bp]
		labels := make([]storage.LabelID, 0, len(bp.Labels))
		for _, name := range bp.Labels {
			labels = append(labels, g.GetOrCreateLabel(name))
		}
		attrs, set := op.attributes(bp.Properties, pc.values)
		id, err := g.CreateNode(labels, attrs)
		if err != nil {
			return fmt.Errorf("creating node %s: %w", bp.Alias, err)
		}
		n, err := g.GetNode(id)
		if err != nil {
			return err
		}
		pc.rec.SetNode(op.nodeSlots[pc.bp], n)
		createdNodes = append(createdNodes, id)

		stats.NodesCreated++
		stats.LabelsAdded += len(labels)
		stats.PropertiesSet += set
	}

	type createdEdge struct {
		id  storage.EdgeID
		rel storage.RelationID
	}
	createdEdges := make([]createdEdge, 0, len(edges))
	for _, pc := range edges {
		bp := op.edges[pc.bp]
		src, okSrc := pc.rec.Node(op.srcSlots[pc.bp])
		dst, okDst := pc.rec.Node(op.dstSlots[pc.bp])
		if !okSrc || !okDst {
			return queryError(op.name, "Failed to create relationship; endpoint was not found.")
		}
		rel := g.GetOrCreateRelation(bp.Relation)
		attrs, set := op.attributes(bp.Properties, pc.values)
		id, err := g.CreateEdge(src.ID, dst.ID, rel, attrs)
		if err != nil {
			return fmt.Errorf("creating relationship %s: %w", bp.Relation, err)
		}
		if slot := op.edgeSlots[pc.bp]; slot >= 0 {
			e, err := g.GetEdge(id)
			if err != nil {
				return err
			}
			pc.rec.SetEdge(slot, e)
		}
		createdEdges = append(createdEdges, createdEdge{id, rel})

		stats.RelationshipsCreated++
		stats.PropertiesSet += set
	}

	if reg := op.plan.registry; reg != nil {
		for _, id := range createdNodes {
			reg.IndexNode(id)
		}
		for _, e := range createdEdges {
			reg.IndexEdge(e.id, e.rel)
		}
	}

	op.plan.logger.Debug("create committed",
		"plan", op.plan.ID,
		"records", len(op.records),
		"nodes", len(createdNodes),
		"relationships", len(createdEdges))
	return nil
}

func (op *Create) Reset() error {
	op.records = nil
	op.emitted = 0
	return nil
}

func (op *Create) Free() {
	op.records = nil
}

func (op *Create) Clone(p *ExecutionPlan) Operation {
	nodes := make([]NodeBlueprint, len(op.nodes))
	for i, n := range op.nodes {
		nodes[i] = NodeBlueprint{
			Alias:      n.Alias,
			Labels:     append([]string(nil), n.Labels...),
			Properties: cloneProps(n.Properties),
		}
	}
	edges := make([]EdgeBlueprint, len(op.edges))
	for i, e := range op.edges {
		edges[i] = e
		edges[i].Properties = cloneProps(e.Properties)
	}
	return NewCreate(p, nodes, edges)
}

func cloneProps(props []PropertyExpr) []PropertyExpr {
	out := make([]PropertyExpr, len(props))
	for i, p := range props {
		out[i] = PropertyExpr{Key: p.Key, Value: cloneExpr(p.Value)}
	}
	return out
}

// String describes the pattern being created.
func (op *Create) String() string {
	parts := make([]string, 0, len(op.nodes)+len(op.edges))
	for _, n := range op.nodes {
		parts = append(parts, fmt.Sprintf("(%s:%s)", n.Alias, strings.Join(n.Labels, ":")))
	}
	for _, e := range op.edges {
		parts = append(parts, fmt.Sprintf("(%s)-[%s:%s]->(%s)", e.Src, e.Alias, e.Relation, e.Dst))
	}
	return strings.Join(parts, ", ")
}
