package recognition

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

const (
	// indexMaxNeighbors is the HNSW M parameter.
	indexMaxNeighbors = 16
	// indexCandidates is how many neighbors a query asks for before picking
	// the exact nearest by cosine distance.
	indexCandidates = 5
)

var errEmptyIndex = errors.New("gallery index is empty")

// ErrDimensionMismatch is returned when a query embedding has a different
// length than the indexed ones, e.g. after the embedding model changed.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Index is an in-memory nearest-neighbor index over gallery samples.
type Index struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[int]
	samples []Sample
	dim     int
}

// NewIndex builds an index over samples. Samples without an embedding are skipped.
func NewIndex(samples []Sample) *Index {
	idx := &Index{}
	idx.Rebuild(samples)
	return idx
}

// Rebuild replaces the indexed samples. The graph takes the most common
// embedding length; samples of any other length are skipped and logged.
func (idx *Index) Rebuild(samples []Sample) {
	g := hnsw.NewGraph[int]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	dim := commonDimension(samples)
	kept := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if len(s.Embedding) == 0 {
			continue
		}
		if len(s.Embedding) != dim {
			slog.Warn("skipping gallery sample with mismatched embedding",
				"person", s.Person, "path", s.Path, "dim", len(s.Embedding), "expected", dim)
			continue
		}
		g.Add(hnsw.MakeNode(len(kept), s.Embedding))
		kept = append(kept, s)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.samples = kept
	idx.graph = g
	idx.dim = dim
	if len(kept) == 0 {
		idx.graph = nil
		idx.dim = 0
	}
}

// commonDimension returns the most frequent embedding length, preferring the
// first seen on ties.
func commonDimension(samples []Sample) int {
	counts := make(map[int]int)
	best := 0
	for _, s := range samples {
		n := len(s.Embedding)
		if n == 0 {
			continue
		}
		counts[n]++
		if best == 0 || counts[n] > counts[best] {
			best = n
		}
	}
	return best
}

// Dim returns the embedding length of the indexed samples, 0 when empty.
func (idx *Index) Dim() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dim
}

// Len returns the number of indexed samples.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.samples)
}

// Nearest returns the closest sample to query and its cosine distance.
func (idx *Index) Nearest(query []float32) (Sample, float64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.graph == nil {
		return Sample{}, 0, errEmptyIndex
	}
	if len(query) != idx.dim {
		return Sample{}, 0, fmt.Errorf("%w: query has %d values, gallery has %d", ErrDimensionMismatch, len(query), idx.dim)
	}

	best, bestDist := -1, math.Inf(1)
	for _, n := range idx.graph.Search(query, indexCandidates) {
		if d := CosineDistance(query, n.Value); d < bestDist {
			best, bestDist = n.Key, d
		}
	}
	if best < 0 {
		return Sample{}, 0, errEmptyIndex
	}
	return idx.samples[best], bestDist, nil
}

// CosineDistance returns 1 - cosine similarity: 0 for identical directions,
// 2 for opposite ones and for invalid input.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	similarity = max(-1, min(1, similarity))
	return 1 - similarity
}
