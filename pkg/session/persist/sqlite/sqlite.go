// Package sqlite provides a SQLite-backed session persistence adapter.
// Snapshots are stored as JSON, one row per session, upserted on save.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/corticalco/engram/pkg/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	agent_id   TEXT NOT NULL,
	snapshot   BLOB NOT NULL,
	saved_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions (user_id);
`

// Persister stores session snapshots in a SQLite database.
type Persister struct {
	db *sql.DB
}

// NewPersister opens or creates the database at dbPath and ensures the
// schema exists. The path may be ":memory:" for an in-memory database.
func NewPersister(dbPath string) (*Persister, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Persister{db: db}, nil
}

// Load fetches and decodes the snapshot for sessionID. The second return is
// false when no row exists.
func (p *Persister) Load(ctx context.Context, sessionID string) (*session.Snapshot, bool, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		"SELECT snapshot FROM sessions WHERE session_id = ?", sessionID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &snap, true, nil
}

// Save upserts the snapshot for sessionID.
func (p *Persister) Save(ctx context.Context, sessionID string, snap *session.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sessionID, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, agent_id, snapshot, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id  = excluded.user_id,
			agent_id = excluded.agent_id,
			snapshot = excluded.snapshot,
			saved_at = excluded.saved_at`,
		sessionID, snap.UserID, snap.AgentID, raw, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the database handle.
func (p *Persister) Close() error {
	return p.db.Close()
}
