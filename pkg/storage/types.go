// Package storage implements the matrix-backed graph store.
//
// Every label owns a diagonal boolean matrix (entry (i,i) is set iff node i
// carries the label) and every relation type owns a square matrix whose entry
// (src,dst) is an EdgeCell holding one edge id, or several when parallel edges
// share the same endpoints. Entity attributes live next to the matrices in a
// per-entity AttributeSet.
//
// Structural changes are buffered as pending operations on each matrix and
// applied according to the matrix SyncPolicy, see AdjacencyMatrix.
//
// Locking:
//
// A Graph is guarded by a single reader/writer lock exposed through
// AcquireRead, AcquireWrite and Release. Scans take the read side, mutations
// and explicit flushes take the write side. Methods document which side the
// caller must hold.
package storage

import "math"

// EntityID is a row/column index into the graph matrices.
type EntityID = uint64

// NodeID identifies a node. It doubles as the node's matrix row.
type NodeID = EntityID

// EdgeID identifies an edge.
type EdgeID = EntityID

// LabelID identifies a node label and its matrix.
type LabelID int

// RelationID identifies a relation type and its matrix.
type RelationID int

// AttributeID identifies an attribute name in the schema.
type AttributeID int

const (
	// UnknownLabel marks a label that was not resolved against the schema.
	UnknownLabel LabelID = -1

	// UnknownRelation marks a relation type that was not resolved against the schema.
	UnknownRelation RelationID = -1

	// InvalidEntityID is never assigned to a node or edge.
	InvalidEntityID EntityID = math.MaxUint64
)

// EntityType distinguishes nodes from edges.
type EntityType int

const (
	EntityNode EntityType = iota
	EntityEdge
)

func (t EntityType) String() string {
	if t == EntityEdge {
		return "edge"
	}
	return "node"
}

// Node is a materialized node. Attributes is a private copy.
type Node struct {
	ID         NodeID
	Labels     []LabelID
	Attributes *AttributeSet
}

// Edge is a materialized edge. Attributes is a private copy.
type Edge struct {
	ID         EdgeID
	Src        NodeID
	Dst        NodeID
	Relation   RelationID
	Attributes *AttributeSet
}
