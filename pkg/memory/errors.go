package memory

import (
	"errors"
	"fmt"
)

// ErrProvider wraps failures of external collaborators (embedding provider,
// persistence adapter). Transient or not, these surface immediately — the
// subsystem never retries internally.
var ErrProvider = errors.New("memory provider failure")

// ErrDimensionMismatch is returned when two embeddings of different lengths
// are compared. Mismatched vectors are a caller bug; similarity is never
// silently reported as zero.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ValidationError reports a malformed create or update request. It is always
// surfaced to the caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an operation addressed at a record id that does not
// exist. Paths that treat absence as a valid empty result (Retrieve) skip
// silently instead of returning this.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "record not found"
	}
	return "record not found: " + e.ID
}
