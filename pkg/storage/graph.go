package storage

import (
	"fmt"
	"sync"
	"sync/atomic"
)

const minNodeCapacity = 16

type nodeRecord struct {
	labels []LabelID
	attrs  *AttributeSet
	alive  bool
}

type edgeRecord struct {
	src, dst NodeID
	rel      RelationID
	attrs    *AttributeSet
	alive    bool
}

// Graph is the matrix-backed property graph.
//
// Nodes and edges are stored in id-indexed slices; deleted ids are kept on a
// free list and reused. Labels and relation types each own an
// AdjacencyMatrix, and a relation-agnostic adjacency matrix records which
// node pairs are connected at all.
//
// Matrix dimensions follow the node capacity, which grows geometrically so
// that bulk creation does not resize every matrix on each new node.
//
// Thread Safety:
//
// Graph does not lock on its own. Callers bracket reads with AcquireRead and
// mutations with AcquireWrite, releasing with Release, or use View and Update.
type Graph struct {
	name string

	lock        sync.RWMutex
	writeLocked atomic.Bool

	schema *SchemaManager

	nodes        []nodeRecord
	edges        []edgeRecord
	deletedNodes []NodeID
	deletedEdges []EdgeID
	nodeCap      uint64

	// incident edges per node, used for cascading deletes
	outgoing map[NodeID]map[EdgeID]struct{}
	incoming map[NodeID]map[EdgeID]struct{}

	labels    []*AdjacencyMatrix[bool]
	relations []*AdjacencyMatrix[EdgeCell]
	multiEdge []bool
	adjacency *AdjacencyMatrix[bool]

	policy SyncPolicy
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{
		name:      name,
		schema:    NewSchemaManager(),
		nodeCap:   minNodeCapacity,
		outgoing:  make(map[NodeID]map[EdgeID]struct{}),
		incoming:  make(map[NodeID]map[EdgeID]struct{}),
		adjacency: NewAdjacencyMatrix[bool]("adjacency", minNodeCapacity, true),
		policy:    SyncPolicyFlushResize,
	}
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Schema returns the graph's schema manager.
func (g *Graph) Schema() *SchemaManager { return g.schema }

// AcquireRead takes the read side of the graph lock.
func (g *Graph) AcquireRead() { g.lock.RLock() }

// AcquireWrite takes the write side of the graph lock.
func (g *Graph) AcquireWrite() {
	g.lock.Lock()
	g.writeLocked.Store(true)
}

// Release releases whichever side of the lock the caller holds.
func (g *Graph) Release() {
	if g.writeLocked.CompareAndSwap(true, false) {
		g.lock.Unlock()
		return
	}
	g.lock.RUnlock()
}

// View runs fn under the read lock.
func (g *Graph) View(fn func() error) error {
	g.AcquireRead()
	defer g.Release()
	return fn()
}

// Update runs fn under the write lock.
func (g *Graph) Update(fn func() error) error {
	g.AcquireWrite()
	defer g.Release()
	return fn()
}

// NodeCount returns the number of live nodes.
func (g *Graph) NodeCount() uint64 { return uint64(len(g.nodes) - len(g.deletedNodes)) }

// EdgeCount returns the number of live edges.
func (g *Graph) EdgeCount() uint64 { return uint64(len(g.edges) - len(g.deletedEdges)) }

// NodeCapacity returns the current matrix dimension.
func (g *Graph) NodeCapacity() uint64 { return g.nodeCap }

// DeletedNodes returns the node ids awaiting reuse.
func (g *Graph) DeletedNodes() []NodeID { return append([]NodeID(nil), g.deletedNodes...) }

// DeletedEdges returns the edge ids awaiting reuse.
func (g *Graph) DeletedEdges() []EdgeID { return append([]EdgeID(nil), g.deletedEdges...) }

// LabelCount returns the number of label matrices.
func (g *Graph) LabelCount() int { return len(g.labels) }

// RelationCount returns the number of relation matrices.
func (g *Graph) RelationCount() int { return len(g.relations) }

// RelationHasMultiEdge reports whether relation id ever stored two edges
// between the same pair of nodes.
func (g *Graph) RelationHasMultiEdge(id RelationID) bool {
	if id < 0 || int(id) >= len(g.multiEdge) {
		return false
	}
	return g.multiEdge[id]
}

// SetRelationMultiEdge overrides the multi-edge flag, used when decoding.
func (g *Graph) SetRelationMultiEdge(id RelationID, multi bool) {
	if id >= 0 && int(id) < len(g.multiEdge) {
		g.multiEdge[id] = multi
	}
}

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

// GetOrCreateLabel declares label name and its matrix. Requires the write lock.
func (g *Graph) GetOrCreateLabel(name string) LabelID {
	id, _ := g.schema.GetOrAddLabel(name)
	g.ensureLabels(int(id) + 1)
	return id
}

// GetOrCreateRelation declares relation type name and its matrix. Requires the write lock.
func (g *Graph) GetOrCreateRelation(name string) RelationID {
	id, _ := g.schema.GetOrAddRelation(name)
	g.ensureRelations(int(id) + 1)
	return id
}

func (g *Graph) ensureLabels(n int) {
	for len(g.labels) < n {
		m := NewAdjacencyMatrix[bool]("label", g.nodeCap, false)
		m.SetSyncPolicy(g.policy)
		g.labels = append(g.labels, m)
	}
}

func (g *Graph) ensureRelations(n int) {
	for len(g.relations) < n {
		m := NewAdjacencyMatrix[EdgeCell]("relation", g.nodeCap, true)
		m.SetSyncPolicy(g.policy)
		g.relations = append(g.relations, m)
		g.multiEdge = append(g.multiEdge, false)
	}
}

// ---------------------------------------------------------------------------
// Matrices
// ---------------------------------------------------------------------------

// LabelMatrix returns the matrix of label id, synchronized according to its
// policy. Requires at least the read lock.
func (g *Graph) LabelMatrix(id LabelID) (*AdjacencyMatrix[bool], error) {
	if id < 0 || int(id) >= len(g.labels) {
		return nil, fmt.Errorf("label %d: %w", id, ErrNotFound)
	}
	m := g.labels[id]
	m.Synchronize(g.nodeCap)
	return m, nil
}

// RelationMatrix returns the matrix of relation id, or its transpose,
// synchronized according to its policy. Requires at least the read lock.
func (g *Graph) RelationMatrix(id RelationID, transposed bool) (*AdjacencyMatrix[EdgeCell], error) {
	if id < 0 || int(id) >= len(g.relations) {
		return nil, fmt.Errorf("relation %d: %w", id, ErrNotFound)
	}
	m := g.relations[id]
	m.Synchronize(g.nodeCap)
	if transposed {
		return m.Transposed(), nil
	}
	return m, nil
}

// AdjacencyMatrix returns the relation-agnostic adjacency matrix, or its transpose.
func (g *Graph) AdjacencyMatrix(transposed bool) *AdjacencyMatrix[bool] {
	g.adjacency.Synchronize(g.nodeCap)
	if transposed {
		return g.adjacency.Transposed()
	}
	return g.adjacency
}

func (g *Graph) eachMatrix(labelFn func(*AdjacencyMatrix[bool]), relFn func(*AdjacencyMatrix[EdgeCell])) {
	for _, m := range g.labels {
		labelFn(m)
	}
	labelFn(g.adjacency)
	for _, m := range g.relations {
		relFn(m)
	}
}

// SetMatrixPolicy sets the sync policy of every matrix, and of matrices
// created later. It returns the previous graph-wide policy.
func (g *Graph) SetMatrixPolicy(p SyncPolicy) SyncPolicy {
	prev := g.policy
	g.policy = p
	g.eachMatrix(
		func(m *AdjacencyMatrix[bool]) { m.SetSyncPolicy(p) },
		func(m *AdjacencyMatrix[EdgeCell]) { m.SetSyncPolicy(p) },
	)
	return prev
}

// MatrixPolicy returns the graph-wide sync policy.
func (g *Graph) MatrixPolicy() SyncPolicy { return g.policy }

// ApplyAllPending flushes every matrix. Requires the write lock.
func (g *Graph) ApplyAllPending(forceResize bool) {
	g.eachMatrix(
		func(m *AdjacencyMatrix[bool]) { m.ApplyPending(forceResize) },
		func(m *AdjacencyMatrix[EdgeCell]) { m.ApplyPending(forceResize) },
	)
}

// Pending reports whether any matrix has unapplied operations.
func (g *Graph) Pending() bool {
	pending := false
	g.eachMatrix(
		func(m *AdjacencyMatrix[bool]) { pending = pending || m.Pending() },
		func(m *AdjacencyMatrix[EdgeCell]) { pending = pending || m.Pending() },
	)
	return pending
}

// growTo makes room for node id n-1, resizing every matrix when the
// capacity is exceeded.
func (g *Graph) growTo(n uint64) {
	if n <= g.nodeCap {
		return
	}
	newCap := g.nodeCap
	for newCap < n {
		newCap *= 2
	}
	g.nodeCap = newCap
	g.eachMatrix(
		func(m *AdjacencyMatrix[bool]) { m.Resize(newCap) },
		func(m *AdjacencyMatrix[EdgeCell]) { m.Resize(newCap) },
	)
}

// AllocateNodes reserves room for n nodes. Used before bulk loads.
func (g *Graph) AllocateNodes(n uint64) {
	g.growTo(n)
	if uint64(cap(g.nodes)) < n {
		nodes := make([]nodeRecord, len(g.nodes), n)
		copy(nodes, g.nodes)
		g.nodes = nodes
	}
}

// AllocateEdges reserves room for n edges.
func (g *Graph) AllocateEdges(n uint64) {
	if uint64(cap(g.edges)) < n {
		edges := make([]edgeRecord, len(g.edges), n)
		copy(edges, g.edges)
		g.edges = edges
	}
}

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

func (g *Graph) nextNodeID() NodeID {
	if n := len(g.deletedNodes); n > 0 {
		id := g.deletedNodes[n-1]
		g.deletedNodes = g.deletedNodes[:n-1]
		return id
	}
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, nodeRecord{})
	return id
}

// CreateNode creates a node carrying labels and attrs. Requires the write lock.
func (g *Graph) CreateNode(labels []LabelID, attrs *AttributeSet) (NodeID, error) {
	for _, l := range labels {
		if l < 0 || int(l) >= len(g.labels) {
			return InvalidEntityID, fmt.Errorf("label %d: %w", l, ErrNotFound)
		}
	}
	id := g.nextNodeID()
	if err := g.placeNode(id, labels, attrs); err != nil {
		return InvalidEntityID, err
	}
	return id, nil
}

func (g *Graph) placeNode(id NodeID, labels []LabelID, attrs *AttributeSet) error {
	g.growTo(id + 1)
	if attrs == nil {
		attrs = &AttributeSet{}
	}
	g.nodes[id] = nodeRecord{labels: append([]LabelID(nil), labels...), attrs: attrs, alive: true}
	for _, l := range labels {
		if err := g.labels[l].Set(id, id, true); err != nil {
			return err
		}
	}
	return nil
}

// RestoreNode places a node at a fixed id, used when decoding. Requires the write lock.
func (g *Graph) RestoreNode(id NodeID, labels []LabelID, attrs *AttributeSet) error {
	if id == InvalidEntityID {
		return ErrInvalidID
	}
	for uint64(len(g.nodes)) <= id {
		g.nodes = append(g.nodes, nodeRecord{})
	}
	if g.nodes[id].alive {
		return fmt.Errorf("node %d: %w", id, ErrAlreadyExists)
	}
	top := LabelID(-1)
	for _, l := range labels {
		if l < 0 {
			return fmt.Errorf("label %d: %w", l, ErrInvalidID)
		}
		top = max(top, l)
	}
	g.ensureLabels(int(top) + 1)
	return g.placeNode(id, labels, attrs)
}

// MarkNodeDeleted records id as a deleted slot, used when decoding.
func (g *Graph) MarkNodeDeleted(id NodeID) {
	for uint64(len(g.nodes)) <= id {
		g.nodes = append(g.nodes, nodeRecord{})
	}
	g.nodes[id] = nodeRecord{}
	g.deletedNodes = append(g.deletedNodes, id)
}

func (g *Graph) liveNode(id NodeID) (*nodeRecord, error) {
	if id >= uint64(len(g.nodes)) || !g.nodes[id].alive {
		return nil, fmt.Errorf("node %d: %w", id, ErrNotFound)
	}
	return &g.nodes[id], nil
}

// GetNode materializes node id. Requires at least the read lock.
func (g *Graph) GetNode(id NodeID) (*Node, error) {
	rec, err := g.liveNode(id)
	if err != nil {
		return nil, err
	}
	return &Node{ID: id, Labels: append([]LabelID(nil), rec.labels...), Attributes: rec.attrs.Clone()}, nil
}

// NodeExists reports whether id is a live node.
func (g *Graph) NodeExists(id NodeID) bool {
	_, err := g.liveNode(id)
	return err == nil
}

// NodeLabels returns the labels of node id.
func (g *Graph) NodeLabels(id NodeID) []LabelID {
	rec, err := g.liveNode(id)
	if err != nil {
		return nil
	}
	return append([]LabelID(nil), rec.labels...)
}

// NodeAttribute returns one attribute of node id without copying the set.
func (g *Graph) NodeAttribute(id NodeID, attr AttributeID) (Value, bool) {
	rec, err := g.liveNode(id)
	if err != nil {
		return Value{}, false
	}
	return rec.attrs.Get(attr)
}

// AddNodeLabel attaches label to an existing node. Requires the write lock.
func (g *Graph) AddNodeLabel(id NodeID, label LabelID) error {
	rec, err := g.liveNode(id)
	if err != nil {
		return err
	}
	if label < 0 || int(label) >= len(g.labels) {
		return fmt.Errorf("label %d: %w", label, ErrNotFound)
	}
	for _, l := range rec.labels {
		if l == label {
			return nil
		}
	}
	rec.labels = append(rec.labels, label)
	return g.labels[label].Set(id, id, true)
}

// SetNodeAttribute sets (or with Null, removes) an attribute. It reports
// whether the node changed. Requires the write lock.
func (g *Graph) SetNodeAttribute(id NodeID, attr AttributeID, v Value) (bool, error) {
	rec, err := g.liveNode(id)
	if err != nil {
		return false, err
	}
	return rec.attrs.Set(attr, v), nil
}

// DeleteNode removes node id together with every edge touching it.
// Requires the write lock.
func (g *Graph) DeleteNode(id NodeID) error {
	rec, err := g.liveNode(id)
	if err != nil {
		return err
	}

	for eid := range g.outgoing[id] {
		if err := g.DeleteEdge(eid); err != nil {
			return err
		}
	}
	for eid := range g.incoming[id] {
		if err := g.DeleteEdge(eid); err != nil {
			return err
		}
	}
	delete(g.outgoing, id)
	delete(g.incoming, id)

	for _, l := range rec.labels {
		g.labels[l].Remove(id, id)
	}
	g.nodes[id] = nodeRecord{}
	g.deletedNodes = append(g.deletedNodes, id)
	return nil
}

// ScanNodes calls fn for every live node in ascending id order until fn
// returns false. Requires at least the read lock.
func (g *Graph) ScanNodes(fn func(*Node) bool) {
	for i := range g.nodes {
		if !g.nodes[i].alive {
			continue
		}
		n, _ := g.GetNode(NodeID(i))
		if !fn(n) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Edges
// ---------------------------------------------------------------------------

func (g *Graph) nextEdgeID() EdgeID {
	if n := len(g.deletedEdges); n > 0 {
		id := g.deletedEdges[n-1]
		g.deletedEdges = g.deletedEdges[:n-1]
		return id
	}
	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, edgeRecord{})
	return id
}

// CreateEdge connects src to dst with relation rel. Requires the write lock.
func (g *Graph) CreateEdge(src, dst NodeID, rel RelationID, attrs *AttributeSet) (EdgeID, error) {
	if rel < 0 || int(rel) >= len(g.relations) {
		return InvalidEntityID, fmt.Errorf("relation %d: %w", rel, ErrNotFound)
	}
	if !g.NodeExists(src) || !g.NodeExists(dst) {
		return InvalidEntityID, fmt.Errorf("edge endpoints (%d,%d): %w", src, dst, ErrNotFound)
	}
	id := g.nextEdgeID()
	if err := g.placeEdge(id, src, dst, rel, attrs); err != nil {
		return InvalidEntityID, err
	}
	return id, nil
}

func (g *Graph) placeEdge(id EdgeID, src, dst NodeID, rel RelationID, attrs *AttributeSet) error {
	if attrs == nil {
		attrs = &AttributeSet{}
	}
	m := g.relations[rel]
	if cur, ok := m.Get(src, dst); ok && !cur.IsEmpty() {
		g.multiEdge[rel] = true
	}
	if err := AddEdge(m, src, dst, id); err != nil {
		return err
	}
	if err := g.adjacency.Set(src, dst, true); err != nil {
		return err
	}

	g.edges[id] = edgeRecord{src: src, dst: dst, rel: rel, attrs: attrs, alive: true}
	if g.outgoing[src] == nil {
		g.outgoing[src] = make(map[EdgeID]struct{})
	}
	g.outgoing[src][id] = struct{}{}
	if g.incoming[dst] == nil {
		g.incoming[dst] = make(map[EdgeID]struct{})
	}
	g.incoming[dst][id] = struct{}{}
	return nil
}

// RestoreEdge places an edge at a fixed id, used when decoding. The
// endpoints must already be restored. Requires the write lock.
func (g *Graph) RestoreEdge(id EdgeID, src, dst NodeID, rel RelationID, attrs *AttributeSet) error {
	if id == InvalidEntityID || rel < 0 {
		return ErrInvalidID
	}
	for uint64(len(g.edges)) <= id {
		g.edges = append(g.edges, edgeRecord{})
	}
	if g.edges[id].alive {
		return fmt.Errorf("edge %d: %w", id, ErrAlreadyExists)
	}
	g.ensureRelations(int(rel) + 1)
	g.growTo(max(src, dst) + 1)
	return g.placeEdge(id, src, dst, rel, attrs)
}

// MarkEdgeDeleted records id as a deleted slot, used when decoding.
func (g *Graph) MarkEdgeDeleted(id EdgeID) {
	for uint64(len(g.edges)) <= id {
		g.edges = append(g.edges, edgeRecord{})
	}
	g.edges[id] = edgeRecord{}
	g.deletedEdges = append(g.deletedEdges, id)
}

func (g *Graph) liveEdge(id EdgeID) (*edgeRecord, error) {
	if id >= uint64(len(g.edges)) || !g.edges[id].alive {
		return nil, fmt.Errorf("edge %d: %w", id, ErrNotFound)
	}
	return &g.edges[id], nil
}

// GetEdge materializes edge id. Requires at least the read lock.
func (g *Graph) GetEdge(id EdgeID) (*Edge, error) {
	rec, err := g.liveEdge(id)
	if err != nil {
		return nil, err
	}
	return &Edge{ID: id, Src: rec.src, Dst: rec.dst, Relation: rec.rel, Attributes: rec.attrs.Clone()}, nil
}

// EdgeAttribute returns one attribute of edge id without copying the set.
func (g *Graph) EdgeAttribute(id EdgeID, attr AttributeID) (Value, bool) {
	rec, err := g.liveEdge(id)
	if err != nil {
		return Value{}, false
	}
	return rec.attrs.Get(attr)
}

// SetEdgeAttribute sets (or with Null, removes) an attribute of edge id.
// Requires the write lock.
func (g *Graph) SetEdgeAttribute(id EdgeID, attr AttributeID, v Value) (bool, error) {
	rec, err := g.liveEdge(id)
	if err != nil {
		return false, err
	}
	return rec.attrs.Set(attr, v), nil
}

// DeleteEdge removes edge id. Requires the write lock.
func (g *Graph) DeleteEdge(id EdgeID) error {
	rec, err := g.liveEdge(id)
	if err != nil {
		return err
	}
	if err := RemoveEdge(g.relations[rec.rel], rec.src, rec.dst, id); err != nil {
		return err
	}

	connected := false
	for _, m := range g.relations {
		if _, ok := m.Get(rec.src, rec.dst); ok {
			connected = true
			break
		}
	}
	if !connected {
		g.adjacency.Remove(rec.src, rec.dst)
	}

	delete(g.outgoing[rec.src], id)
	delete(g.incoming[rec.dst], id)
	g.edges[id] = edgeRecord{}
	g.deletedEdges = append(g.deletedEdges, id)
	return nil
}

// EdgesBetween returns the ids of edges from src to dst. With UnknownRelation
// every relation type is considered.
func (g *Graph) EdgesBetween(src, dst NodeID, rel RelationID) []EdgeID {
	if rel != UnknownRelation {
		if rel < 0 || int(rel) >= len(g.relations) {
			return nil
		}
		cell, ok := g.relations[rel].Get(src, dst)
		if !ok {
			return nil
		}
		return cell.IDs()
	}
	var out []EdgeID
	for _, m := range g.relations {
		if cell, ok := m.Get(src, dst); ok {
			out = append(out, cell.IDs()...)
		}
	}
	return out
}

// ScanEdges calls fn for every live edge in ascending id order until fn
// returns false. Requires at least the read lock.
func (g *Graph) ScanEdges(fn func(*Edge) bool) {
	for i := range g.edges {
		if !g.edges[i].alive {
			continue
		}
		e, _ := g.GetEdge(EdgeID(i))
		if !fn(e) {
			return
		}
	}
}
