package persist

import (
	"fmt"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// Version is the encoding version written into every key.
const Version = 2

// DefaultEntitiesPerKey bounds how many entities one virtual key holds.
const DefaultEntitiesPerKey = 100_000

// PayloadState identifies the kind of entities a payload holds.
type PayloadState uint64

const (
	PayloadNodes PayloadState = iota + 1
	PayloadDeletedNodes
	PayloadEdges
	PayloadDeletedEdges
	PayloadSchema
)

func (s PayloadState) String() string {
	switch s {
	case PayloadNodes:
		return "nodes"
	case PayloadDeletedNodes:
		return "deleted_nodes"
	case PayloadEdges:
		return "edges"
	case PayloadDeletedEdges:
		return "deleted_edges"
	case PayloadSchema:
		return "schema"
	}
	return fmt.Sprintf("PayloadState(%d)", uint64(s))
}

// Header is repeated at the start of every virtual key.
type Header struct {
	Version       uint64
	GraphName     string
	NodeCount     uint64
	EdgeCount     uint64
	DeletedNodes  uint64
	DeletedEdges  uint64
	LabelCount    uint64
	RelationCount uint64
	MultiEdge     []bool
	KeyCount      uint64
}

type payload struct {
	state PayloadState
	count uint64
}

// encoder walks the graph once across all virtual keys. Its cursors survive
// between keys so that every key resumes where the previous one stopped.
type encoder struct {
	g      *storage.Graph
	header Header

	// nodes
	nextNode  storage.NodeID
	nodeSlots uint64

	deletedNodes []storage.NodeID
	deletedEdges []storage.EdgeID
	delNodeOff   int
	delEdgeOff   int

	// edges, enumerated by relation matrix then row, column and cell position
	rel     storage.RelationID
	it      storage.TupleIterator[storage.EdgeCell]
	cell    []storage.EdgeID
	cellPos int
	src     storage.NodeID
	dst     storage.NodeID
}

// Encode serializes g into virtual keys of at most entitiesPerKey entities.
// The schema travels in the first key and does not count against the budget.
// Requires at least the graph read lock.
func Encode(g *storage.Graph, entitiesPerKey uint64) ([][]byte, error) {
	if entitiesPerKey == 0 {
		entitiesPerKey = DefaultEntitiesPerKey
	}

	e := &encoder{
		g:            g,
		deletedNodes: g.DeletedNodes(),
		deletedEdges: g.DeletedEdges(),
		rel:          -1,
	}
	e.nodeSlots = g.NodeCount() + uint64(len(e.deletedNodes))

	multi := make([]bool, g.RelationCount())
	for i := range multi {
		multi[i] = g.RelationHasMultiEdge(storage.RelationID(i))
	}
	e.header = Header{
		Version:       Version,
		GraphName:     g.Name(),
		NodeCount:     g.NodeCount(),
		EdgeCount:     g.EdgeCount(),
		DeletedNodes:  uint64(len(e.deletedNodes)),
		DeletedEdges:  uint64(len(e.deletedEdges)),
		LabelCount:    uint64(g.LabelCount()),
		RelationCount: uint64(g.RelationCount()),
		MultiEdge:     multi,
	}

	remaining := []payload{
		{PayloadNodes, e.header.NodeCount},
		{PayloadDeletedNodes, e.header.DeletedNodes},
		{PayloadEdges, e.header.EdgeCount},
		{PayloadDeletedEdges, e.header.DeletedEdges},
	}
	var total uint64
	for _, p := range remaining {
		total += p.count
	}
	e.header.KeyCount = max(1, (total+entitiesPerKey-1)/entitiesPerKey)

	keys := make([][]byte, 0, e.header.KeyCount)
	for k := uint64(0); k < e.header.KeyCount; k++ {
		var table []payload
		if k == 0 {
			table = append(table, payload{PayloadSchema, 0})
		}
		budget := entitiesPerKey
		for i := range remaining {
			if budget == 0 {
				break
			}
			n := min(budget, remaining[i].count)
			if n == 0 {
				continue
			}
			table = append(table, payload{remaining[i].state, n})
			remaining[i].count -= n
			budget -= n
		}

		key, err := e.encodeKey(table)
		if err != nil {
			return nil, fmt.Errorf("encoding key %d of %s: %w", k, g.Name(), err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (e *encoder) encodeKey(table []payload) ([]byte, error) {
	w := &writer{}
	writeHeader(w, e.header)
	w.uvarint(uint64(len(table)))
	for _, p := range table {
		w.uvarint(uint64(p.state))
		w.uvarint(p.count)
	}

	for _, p := range table {
		var err error
		switch p.state {
		case PayloadSchema:
			e.writeSchema(w)
		case PayloadNodes:
			err = e.writeNodes(w, p.count)
		case PayloadDeletedNodes:
			for range p.count {
				w.uvarint(e.deletedNodes[e.delNodeOff])
				e.delNodeOff++
			}
		case PayloadEdges:
			err = e.writeEdges(w, p.count)
		case PayloadDeletedEdges:
			for range p.count {
				w.uvarint(e.deletedEdges[e.delEdgeOff])
				e.delEdgeOff++
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%s payload: %w", p.state, err)
		}
	}
	return w.buf, nil
}

func writeHeader(w *writer, h Header) {
	w.uvarint(h.Version)
	w.str(h.GraphName)
	w.uvarint(h.NodeCount)
	w.uvarint(h.EdgeCount)
	w.uvarint(h.DeletedNodes)
	w.uvarint(h.DeletedEdges)
	w.uvarint(h.LabelCount)
	w.uvarint(h.RelationCount)
	for _, m := range h.MultiEdge {
		w.boolean(m)
	}
	w.uvarint(h.KeyCount)
}

func (e *encoder) writeSchema(w *writer) {
	s := e.g.Schema()
	for _, names := range [][]string{s.Labels(), s.Relations(), s.Attributes()} {
		w.uvarint(uint64(len(names)))
		for _, n := range names {
			w.str(n)
		}
	}

	defs := s.GetIndexes()
	w.uvarint(uint64(len(defs)))
	for _, d := range defs {
		w.str(d.ID)
		w.uvarint(uint64(d.Entity))
		w.str(d.Schema)
		w.uvarint(uint64(len(d.Attributes)))
		for _, a := range d.Attributes {
			w.str(a)
		}
		w.boolean(d.Pending)
		w.uvarint(uint64(d.Kind))
		w.uvarint(uint64(d.Dimension))
		w.str(d.Similarity)
	}
}

func (e *encoder) writeNodes(w *writer, n uint64) error {
	for written := uint64(0); written < n; {
		if e.nextNode >= e.nodeSlots {
			return fmt.Errorf("node count mismatch: %d of %d written", written, n)
		}
		id := e.nextNode
		e.nextNode++
		node, err := e.g.GetNode(id)
		if err != nil {
			// deleted slot
			continue
		}
		w.uvarint(node.ID)
		w.uvarint(uint64(len(node.Labels)))
		for _, l := range node.Labels {
			w.uvarint(uint64(l))
		}
		if err := w.attributes(node.Attributes); err != nil {
			return fmt.Errorf("node %d: %w", id, err)
		}
		written++
	}
	return nil
}

// nextEdge advances to the next edge id, moving through the current cell,
// then the current relation matrix, then the next relation.
func (e *encoder) nextEdge() (storage.EdgeID, error) {
	for {
		if e.cellPos < len(e.cell) {
			id := e.cell[e.cellPos]
			e.cellPos++
			return id, nil
		}

		row, col, cell, err := e.it.Next()
		if err == nil {
			e.cell, e.cellPos = cell.IDs(), 0
			e.src, e.dst = row, col
			continue
		}

		e.rel++
		if int(e.rel) >= e.g.RelationCount() {
			return storage.InvalidEntityID, fmt.Errorf("relation matrices hold fewer edges than the graph reports")
		}
		m, err := e.g.RelationMatrix(e.rel, false)
		if err != nil {
			return storage.InvalidEntityID, err
		}
		if err := e.it.Attach(m); err != nil {
			return storage.InvalidEntityID, err
		}
	}
}

func (e *encoder) writeEdges(w *writer, n uint64) error {
	for range n {
		id, err := e.nextEdge()
		if err != nil {
			return err
		}
		edge, err := e.g.GetEdge(id)
		if err != nil {
			return fmt.Errorf("edge %d in relation matrix: %w", id, err)
		}
		w.uvarint(edge.ID)
		w.uvarint(e.src)
		w.uvarint(e.dst)
		w.uvarint(uint64(e.rel))
		if err := w.attributes(edge.Attributes); err != nil {
			return fmt.Errorf("edge %d: %w", id, err)
		}
	}
	return nil
}
