// Package eventstream carries the observer side channel for the engram
// memory system. Memory stores, searchers and session managers publish typed
// events describing completed operations; delivery order matches the order
// operations complete, and delivery is fire-and-forget — subscribers get no
// backpressure contract.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1
)

// Memory store events.
const (
	EventTypeMemoryCreated  = "engram.memory.created"
	EventTypeMemoryUpdated  = "engram.memory.updated"
	EventTypeMemoryDeleted  = "engram.memory.deleted"
	EventTypeMemoryAccessed = "engram.memory.accessed"
	EventTypeMemoryPruned   = "engram.memory.pruned"
	EventTypeMemoryError    = "engram.memory.error"
)

// Search events.
const (
	EventTypeSearchComplete = "engram.search.complete"
	EventTypeSearchCacheHit = "engram.search.cache_hit"
)

// Session / context events.
const (
	EventTypeContextCreated    = "engram.context.created"
	EventTypeConversationTurn  = "engram.context.turn"
	EventTypeWorkingSet        = "engram.context.working_set"
	EventTypeWorkingCleared    = "engram.context.working_cleared"
	EventTypeTaskStarted       = "engram.context.task_started"
	EventTypeTaskProgress      = "engram.context.task_progress"
	EventTypeContextSummarized = "engram.context.summarized"
	EventTypeContextPersisted  = "engram.context.persisted"
	EventTypeContextCleared    = "engram.context.cleared"
	EventTypeCleanupComplete   = "engram.context.cleanup_complete"
)

// Event is a transport-neutral payload describing one completed operation.
type Event struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	// RecordID identifies the memory record the event concerns, if any.
	RecordID string `json:"record_id,omitempty"`

	// SessionID identifies the session the event concerns, if any.
	SessionID string `json:"session_id,omitempty"`

	UserID  string `json:"user_id,omitempty"`
	AgentID string `json:"agent_id,omitempty"`

	// Detail carries event-specific attributes (counts, keys, strategies).
	Detail map[string]string `json:"detail,omitempty"`
}

// New constructs an event with schema version, id and timestamp filled in.
func New(eventType string) *Event {
	return &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now(),
	}
}
