// Package mock provides a deterministic Embedder for tests and local demos.
// Embeddings are derived from a hash of the input text, so identical text
// always yields identical vectors without any model dependency.
package mock

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/corticalco/engram/pkg/embeddings"
)

// DefaultDimensions keeps mock vectors small and cheap to compare.
const DefaultDimensions = 128

// Embedder generates deterministic unit vectors from text hashes.
type Embedder struct {
	dimensions int
}

// NewEmbedder creates a mock embedder. A non-positive dimensions value falls
// back to DefaultDimensions.
func NewEmbedder(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

// Embed creates a deterministic embedding from text.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, e.dimensions)
	for i := range vec {
		// LCG stream seeded by the text hash.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for the mock embedder.
func (e *Embedder) Close() error {
	return nil
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}

var _ embeddings.Embedder = (*Embedder)(nil)
