package index

import (
	"fmt"
	"math"
	"slices"

	"github.com/viterin/vek/vek32"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// Neighbor is one result of a k-nearest-neighbor query.
type Neighbor struct {
	ID    storage.EntityID
	Score float32
}

// addVector records v for id. Values that are not float32 vectors of the
// index dimension are ignored, the same way a property index ignores
// entities missing the attribute. Requires idx.mu.
func (idx *Index) addVector(v storage.Value, id storage.EntityID) {
	vec, ok := v.AsVector()
	if !ok || len(vec) != idx.def.Dimension {
		return
	}
	if _, dup := idx.vectors[id]; !dup {
		idx.count++
	}
	idx.vectors[id] = slices.Clone(vec)
}

// similarity scores a against b; higher is closer.
func (idx *Index) similarity(a, b []float32) float32 {
	if idx.def.Similarity == storage.SimilarityDot {
		return vek32.Dot(a, b)
	}
	// zero vectors have no direction
	s := vek32.CosineSimilarity(a, b)
	if math.IsNaN(float64(s)) {
		return 0
	}
	return s
}

// Nearest returns the k entities whose vectors score highest against q,
// best first. Ties are broken by ascending id.
func (idx *Index) Nearest(q []float32, k int) ([]Neighbor, error) {
	if idx.def.Kind != storage.IndexVector {
		return nil, fmt.Errorf("index %s is not a vector index: %w", idx.def.ID, storage.ErrInvalidData)
	}
	if len(q) != idx.def.Dimension {
		return nil, fmt.Errorf("query vector has %d components, index %s expects %d: %w",
			len(q), idx.def.ID, idx.def.Dimension, storage.ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	out := make([]Neighbor, 0, len(idx.vectors))
	for id, vec := range idx.vectors {
		out = append(out, Neighbor{ID: id, Score: idx.similarity(q, vec)})
	}
	idx.mu.RUnlock()

	slices.SortFunc(out, func(a, b Neighbor) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
