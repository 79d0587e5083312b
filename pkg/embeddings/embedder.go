// Package embeddings provides the embedding provider boundary for the engram
// memory system. An Embedder turns text into a fixed-dimension vector; the
// memory store compares those vectors with exact cosine similarity.
package embeddings

import "context"

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding. The returned vector must
	// always have Dimensions() elements for a given embedder instance.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed embedding vector size.
	Dimensions() int

	// Close releases any resources held by the embedder.
	Close() error
}
