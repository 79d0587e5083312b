package session

import "context"

// Persister stores and restores session snapshots across process restarts.
// Implementations live in subdirectories: persist/nop keeps the documented
// stub behavior (Load always reports absent), persist/sqlite implements the
// contract fully.
type Persister interface {
	// Load returns the snapshot for a session id, reporting whether one
	// exists. Absence is not an error.
	Load(ctx context.Context, sessionID string) (*Snapshot, bool, error)

	// Save upserts the snapshot for a session id.
	Save(ctx context.Context, sessionID string, snap *Snapshot) error

	// Close releases adapter resources.
	Close() error
}
