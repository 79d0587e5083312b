package embeddings

import "errors"

// ErrEmbedding is returned when embedding generation fails. Provider
// implementations wrap it so callers can match with errors.Is.
var ErrEmbedding = errors.New("embedding failed")
