// Package session owns per-session conversational state for the engram
// system: short-term memory, working memory, a bounded context window, and
// conversation history, with promotion of important short-term items into
// the long-term memory store.
//
// The Manager is the only writer of session state. Mutations on one session
// are serialized by a per-session lock; operations on different sessions
// proceed in parallel. A background sweep expires idle sessions, persisting
// them first when persistence is enabled.
package session

import (
	"sync"
	"time"

	"github.com/corticalco/engram/pkg/memory"
)

// Turn is one role-tagged conversation entry.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ShortTermItem is a lightweight session-local memory. Items important
// enough are promoted into the long-term store on overflow or persistence.
type ShortTermItem struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	Tags       []string  `json:"tags,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// WorkingKind classifies working-memory items; variables participate in LLM
// context assembly, scratch values do not.
type WorkingKind string

const (
	WorkingVariable WorkingKind = "variable"
	WorkingScratch  WorkingKind = "scratch"
)

// WorkingItem is one key-addressed scratch value with optional TTL and
// priority. Expiry is checked lazily: an expired item is removed and treated
// as absent on the next read.
type WorkingItem struct {
	Key       string       `json:"key"`
	Value     memory.Value `json:"value"`
	Kind      WorkingKind  `json:"kind"`
	Priority  float64      `json:"priority"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	SetAt     time.Time    `json:"set_at"`
}

func (w *WorkingItem) expired(now time.Time) bool {
	return w.ExpiresAt != nil && now.After(*w.ExpiresAt)
}

// TaskState tracks the lifecycle of a session's active task.
type TaskState string

const (
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
)

// Task is the at-most-one active task per session.
type Task struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Progress  float64   `json:"progress"`
	State     TaskState `json:"state"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State is the full per-session context. All fields are guarded by mu, held
// by the Manager for the duration of each operation.
type State struct {
	mu sync.Mutex

	SessionID string
	UserID    string
	AgentID   string

	ShortTerm []ShortTermItem
	Working   map[string]*WorkingItem
	Window    *Window
	History   []Turn
	Variables map[string]memory.Value
	ActiveTask *Task

	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
}

// touch refreshes the activity timestamp. Caller holds mu.
func (s *State) touch() {
	s.LastActivity = time.Now()
}

// Snapshot is the serializable mirror of a State, handed to persistence
// adapters and restored on load.
type Snapshot struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	AgentID   string `json:"agent_id"`

	ShortTerm   []ShortTermItem         `json:"short_term,omitempty"`
	Working     []WorkingItem           `json:"working,omitempty"`
	WindowItems []WindowItem            `json:"window_items,omitempty"`
	History     []Turn                  `json:"history,omitempty"`
	Variables   map[string]memory.Value `json:"variables,omitempty"`
	ActiveTask  *Task                   `json:"active_task,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// snapshotLocked captures a Snapshot of the state. Caller holds mu.
func (s *State) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		SessionID:    s.SessionID,
		UserID:       s.UserID,
		AgentID:      s.AgentID,
		ShortTerm:    append([]ShortTermItem(nil), s.ShortTerm...),
		History:      append([]Turn(nil), s.History...),
		WindowItems:  s.Window.Items(),
		ActiveTask:   s.ActiveTask,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
	}
	for _, item := range s.Working {
		snap.Working = append(snap.Working, *item)
	}
	if len(s.Variables) > 0 {
		snap.Variables = make(map[string]memory.Value, len(s.Variables))
		for k, v := range s.Variables {
			snap.Variables[k] = v
		}
	}
	return snap
}

// Stats summarizes a session's resource usage.
type Stats struct {
	TurnCount         int
	ShortTermCount    int
	WorkingCount      int
	WindowFillPercent float64
	TokenUsagePercent float64
	ActiveTaskID      string
}

// NotFoundError reports an operation addressed at a session id that is not
// active.
type NotFoundError struct {
	SessionID string
}

func (e NotFoundError) Error() string {
	return "session not found: " + e.SessionID
}
