// Package nop provides a persistence adapter that stores nothing. It is the
// default when no durable backend is configured: saves succeed and discard,
// loads report not-found.
package nop

import (
	"context"

	"github.com/corticalco/engram/pkg/session"
)

// Persister discards every snapshot.
type Persister struct{}

// NewPersister creates a no-op persister.
func NewPersister() *Persister {
	return &Persister{}
}

// Load always reports the session as absent.
func (p *Persister) Load(_ context.Context, _ string) (*session.Snapshot, bool, error) {
	return nil, false, nil
}

// Save discards the snapshot.
func (p *Persister) Save(_ context.Context, _ string, _ *session.Snapshot) error {
	return nil
}

// Close is a no-op.
func (p *Persister) Close() error {
	return nil
}
