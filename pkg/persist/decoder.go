package persist

import (
	"fmt"
	"slices"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// ReadHeader decodes the header of a single virtual key.
func ReadHeader(key []byte) (Header, error) {
	r := &reader{buf: key}
	h := readHeader(r)
	return h, r.err
}

func readHeader(r *reader) Header {
	h := Header{
		Version:       r.uvarint(),
		GraphName:     r.str(),
		NodeCount:     r.uvarint(),
		EdgeCount:     r.uvarint(),
		DeletedNodes:  r.uvarint(),
		DeletedEdges:  r.uvarint(),
		LabelCount:    r.uvarint(),
		RelationCount: r.uvarint(),
	}
	if r.err != nil {
		return h
	}
	if h.RelationCount > uint64(len(r.buf)-r.off) {
		r.fail("relation flags")
		return h
	}
	h.MultiEdge = make([]bool, h.RelationCount)
	for i := range h.MultiEdge {
		h.MultiEdge[i] = r.boolean()
	}
	h.KeyCount = r.uvarint()
	return h
}

func sameHeader(a, b Header) bool {
	return a.Version == b.Version &&
		a.GraphName == b.GraphName &&
		a.NodeCount == b.NodeCount &&
		a.EdgeCount == b.EdgeCount &&
		a.DeletedNodes == b.DeletedNodes &&
		a.DeletedEdges == b.DeletedEdges &&
		a.LabelCount == b.LabelCount &&
		a.RelationCount == b.RelationCount &&
		a.KeyCount == b.KeyCount &&
		slices.Equal(a.MultiEdge, b.MultiEdge)
}

// Decode rebuilds a graph from the virtual keys produced by Encode, given in
// order. The returned graph has no pending matrix operations and the
// FlushResize policy.
func Decode(keys [][]byte) (*storage.Graph, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no keys", ErrCorrupt)
	}
	first, err := ReadHeader(keys[0])
	if err != nil {
		return nil, err
	}
	if first.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, first.Version)
	}
	if first.KeyCount != uint64(len(keys)) {
		return nil, fmt.Errorf("%w: header announces %d keys, got %d", ErrCorrupt, first.KeyCount, len(keys))
	}
	if err := checkCounts(first, keys); err != nil {
		return nil, err
	}

	g := storage.NewGraph(first.GraphName)
	g.AcquireWrite()
	defer g.Release()

	g.AllocateNodes(first.NodeCount + first.DeletedNodes)
	g.AllocateEdges(first.EdgeCount + first.DeletedEdges)
	g.SetMatrixPolicy(storage.SyncPolicyNop)

	var seen [PayloadSchema + 1]uint64
	for k, key := range keys {
		r := &reader{buf: key}
		h := readHeader(r)
		if r.err != nil {
			return nil, fmt.Errorf("key %d: %w", k, r.err)
		}
		if !sameHeader(first, h) {
			return nil, fmt.Errorf("%w: key %d header differs from key 0", ErrCorrupt, k)
		}
		if err := decodePayloads(r, g, first, &seen); err != nil {
			return nil, fmt.Errorf("key %d: %w", k, err)
		}
		if r.off != len(r.buf) {
			return nil, fmt.Errorf("%w: key %d has %d trailing bytes", ErrCorrupt, k, len(r.buf)-r.off)
		}
	}

	for _, c := range []struct {
		state PayloadState
		want  uint64
	}{
		{PayloadNodes, first.NodeCount},
		{PayloadDeletedNodes, first.DeletedNodes},
		{PayloadEdges, first.EdgeCount},
		{PayloadDeletedEdges, first.DeletedEdges},
	} {
		if seen[c.state] != c.want {
			return nil, fmt.Errorf("%w: decoded %d %s, header announces %d", ErrCorrupt, seen[c.state], c.state, c.want)
		}
	}
	if uint64(g.LabelCount()) != first.LabelCount || uint64(g.RelationCount()) != first.RelationCount {
		return nil, fmt.Errorf("%w: schema does not match header counts", ErrCorrupt)
	}
	for i, multi := range first.MultiEdge {
		g.SetRelationMultiEdge(storage.RelationID(i), multi)
	}

	g.ApplyAllPending(true)
	g.SetMatrixPolicy(storage.SyncPolicyFlushResize)
	return g, nil
}

// checkCounts rejects header counts the keys cannot possibly hold. Every
// entity, deleted id and schema name takes at least one byte, so none of the
// counts can exceed the total key size.
func checkCounts(h Header, keys [][]byte) error {
	var size uint64
	for _, k := range keys {
		size += uint64(len(k))
	}
	var total uint64
	for _, c := range []uint64{h.NodeCount, h.DeletedNodes, h.EdgeCount, h.DeletedEdges, h.LabelCount, h.RelationCount} {
		if c > size {
			return fmt.Errorf("%w: header count %d exceeds encoded size %d", ErrCorrupt, c, size)
		}
		total += c
	}
	if total > size {
		return fmt.Errorf("%w: header counts exceed encoded size %d", ErrCorrupt, size)
	}
	return nil
}

func decodePayloads(r *reader, g *storage.Graph, h Header, seen *[PayloadSchema + 1]uint64) error {
	nodeSlots := h.NodeCount + h.DeletedNodes
	edgeSlots := h.EdgeCount + h.DeletedEdges

	n := r.count()
	table := make([]payload, 0, n)
	for range n {
		p := payload{state: PayloadState(r.uvarint()), count: r.uvarint()}
		if r.err == nil && (p.state < PayloadNodes || p.state > PayloadSchema) {
			return fmt.Errorf("%w: unknown payload state %d", ErrCorrupt, p.state)
		}
		table = append(table, p)
	}
	if r.err != nil {
		return r.err
	}

	for _, p := range table {
		var err error
		switch p.state {
		case PayloadSchema:
			err = decodeSchema(r, g, h)
		case PayloadNodes:
			err = decodeNodes(r, g, p.count, nodeSlots, h.LabelCount)
		case PayloadDeletedNodes:
			for range p.count {
				id := r.uvarint()
				if r.err != nil {
					break
				}
				if id >= nodeSlots {
					err = fmt.Errorf("%w: deleted node %d out of range", ErrCorrupt, id)
					break
				}
				g.MarkNodeDeleted(id)
			}
		case PayloadEdges:
			err = decodeEdges(r, g, p.count, edgeSlots, h.RelationCount)
		case PayloadDeletedEdges:
			for range p.count {
				id := r.uvarint()
				if r.err != nil {
					break
				}
				if id >= edgeSlots {
					err = fmt.Errorf("%w: deleted edge %d out of range", ErrCorrupt, id)
					break
				}
				g.MarkEdgeDeleted(id)
			}
		}
		if err == nil {
			err = r.err
		}
		if err != nil {
			return fmt.Errorf("%s payload: %w", p.state, err)
		}
		seen[p.state] += p.count
	}
	return nil
}

func decodeSchema(r *reader, g *storage.Graph, h Header) error {
	labels := r.count()
	if r.err == nil && uint64(labels) != h.LabelCount {
		return fmt.Errorf("%w: %d label names, header announces %d", ErrCorrupt, labels, h.LabelCount)
	}
	for range labels {
		g.GetOrCreateLabel(r.str())
	}
	relations := r.count()
	if r.err == nil && uint64(relations) != h.RelationCount {
		return fmt.Errorf("%w: %d relation names, header announces %d", ErrCorrupt, relations, h.RelationCount)
	}
	for range relations {
		g.GetOrCreateRelation(r.str())
	}
	s := g.Schema()
	for range r.count() {
		s.GetOrAddAttribute(r.str())
	}

	for range r.count() {
		def := storage.IndexDefinition{
			ID:     r.str(),
			Entity: storage.EntityType(r.uvarint()),
			Schema: r.str(),
		}
		def.Attributes = make([]string, r.count())
		for i := range def.Attributes {
			def.Attributes[i] = r.str()
		}
		def.Pending = r.boolean()
		kind, dim := r.uvarint(), r.uvarint()
		def.Similarity = r.str()
		if r.err != nil {
			return r.err
		}
		switch storage.IndexKind(kind) {
		case storage.IndexProperty:
		case storage.IndexVector:
			if len(def.Attributes) != 1 || dim == 0 || dim > maxVectorDim {
				return fmt.Errorf("%w: vector index %s on %d attributes dim %d", ErrCorrupt, def.ID, len(def.Attributes), dim)
			}
		default:
			return fmt.Errorf("%w: index %s has kind %d", ErrCorrupt, def.ID, kind)
		}
		def.Kind, def.Dimension = storage.IndexKind(kind), int(dim)
		s.RestoreIndex(def)
	}
	return r.err
}

func decodeNodes(r *reader, g *storage.Graph, n, slots, labelCount uint64) error {
	for range n {
		id := r.uvarint()
		labels := make([]storage.LabelID, r.count())
		for i := range labels {
			labels[i] = storage.LabelID(r.uvarint())
		}
		attrs := r.attributes()
		if r.err != nil {
			return r.err
		}
		if id >= slots {
			return fmt.Errorf("%w: node %d out of range", ErrCorrupt, id)
		}
		for _, l := range labels {
			if l < 0 || uint64(l) >= labelCount {
				return fmt.Errorf("%w: node %d has unknown label %d", ErrCorrupt, id, l)
			}
		}
		if err := g.RestoreNode(id, labels, attrs); err != nil {
			return err
		}
	}
	return nil
}

func decodeEdges(r *reader, g *storage.Graph, n, slots, relationCount uint64) error {
	for range n {
		id := r.uvarint()
		src := r.uvarint()
		dst := r.uvarint()
		rel := storage.RelationID(r.uvarint())
		attrs := r.attributes()
		if r.err != nil {
			return r.err
		}
		if id >= slots {
			return fmt.Errorf("%w: edge %d out of range", ErrCorrupt, id)
		}
		if rel < 0 || uint64(rel) >= relationCount {
			return fmt.Errorf("%w: edge %d has unknown relation %d", ErrCorrupt, id, rel)
		}
		if !g.NodeExists(src) || !g.NodeExists(dst) {
			return fmt.Errorf("%w: edge %d references missing endpoint", ErrCorrupt, id)
		}
		if err := g.RestoreEdge(id, src, dst, rel, attrs); err != nil {
			return err
		}
	}
	return nil
}
