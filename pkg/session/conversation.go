package session

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corticalco/engram/pkg/eventstream"
	"github.com/corticalco/engram/pkg/memory"
)

const (
	turnWindowPriority  = 0.8
	turnShortTermWeight = 0.6
)

// AddConversationTurn records one turn against an active session: it lands in
// the history, the context window (priority 0.8), and short-term memory
// (importance 0.6, tagged with the session id). Short-term overflow promotes
// the most important items to the long-term store before trimming.
func (m *Manager) AddConversationTurn(ctx context.Context, sessionID, role, content string) (*Turn, error) {
	state, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	turn := Turn{
		ID:        newTurnID(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}

	state.mu.Lock()
	state.History = append(state.History, turn)
	state.Window.Add(content, turnWindowPriority)
	state.ShortTerm = append(state.ShortTerm, ShortTermItem{
		ID:         turn.ID,
		Content:    content,
		Importance: turnShortTermWeight,
		Tags:       []string{"session:" + sessionID},
		Timestamp:  now,
	})
	promote := m.trimShortTermLocked(state)
	state.touch()
	userID, agentID := state.UserID, state.AgentID
	state.mu.Unlock()

	// Promotion stores happen outside the session lock; the driver computes
	// embeddings and may block.
	m.promoteItems(ctx, userID, agentID, promote)

	ev := eventstream.New(eventstream.EventTypeConversationTurn)
	ev.SessionID = sessionID
	ev.UserID = userID
	ev.AgentID = agentID
	ev.Detail = map[string]string{"role": role, "turn_id": turn.ID}
	m.emit(ctx, ev)

	return &turn, nil
}

// trimShortTermLocked enforces the short-term cap, returning the items that
// qualify for promotion. Caller holds state.mu.
func (m *Manager) trimShortTermLocked(state *State) []ShortTermItem {
	if len(state.ShortTerm) <= m.config.ShortTermCap {
		return nil
	}

	var promote []ShortTermItem
	for _, item := range state.ShortTerm {
		if item.Importance >= overflowPromotionThreshold {
			promote = append(promote, item)
			if len(promote) == overflowPromotionMax {
				break
			}
		}
	}

	// Drop the oldest entries; short-term memory is append-ordered.
	excess := len(state.ShortTerm) - m.config.ShortTermCap
	state.ShortTerm = append([]ShortTermItem(nil), state.ShortTerm[excess:]...)

	return promote
}

func (m *Manager) promoteItems(ctx context.Context, userID, agentID string, items []ShortTermItem) {
	for _, item := range items {
		importance := item.Importance
		req := &memory.StoreRequest{
			UserID:     userID,
			AgentID:    agentID,
			Content:    item.Content,
			Type:       memory.TypeConversation,
			Importance: &importance,
			Tags:       append(append([]string(nil), item.Tags...), "promoted-from-short-term"),
		}
		if _, err := m.driver.Store(ctx, req); err != nil {
			m.logger.Warn("short-term promotion failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}
}

// SetWorkingMemory stores a key-addressed working value with an optional TTL.
func (m *Manager) SetWorkingMemory(ctx context.Context, sessionID, key string, value memory.Value, kind WorkingKind, priority float64, ttl time.Duration) error {
	state, err := m.get(sessionID)
	if err != nil {
		return err
	}
	if kind != WorkingVariable && kind != WorkingScratch {
		kind = WorkingScratch
	}

	now := time.Now()
	item := &WorkingItem{
		Key:      key,
		Value:    value,
		Kind:     kind,
		Priority: priority,
		SetAt:    now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		item.ExpiresAt = &expires
	}

	state.mu.Lock()
	state.Working[key] = item
	if kind == WorkingVariable {
		state.Variables[key] = value
	}
	state.touch()
	state.mu.Unlock()

	ev := eventstream.New(eventstream.EventTypeWorkingSet)
	ev.SessionID = sessionID
	ev.Detail = map[string]string{"key": key, "kind": string(kind)}
	m.emit(ctx, ev)

	return nil
}

// GetWorkingMemory reads a working value. Expired items are removed on read
// and reported as absent.
func (m *Manager) GetWorkingMemory(sessionID, key string) (memory.Value, bool, error) {
	state, err := m.get(sessionID)
	if err != nil {
		return memory.Value{}, false, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	item, ok := state.Working[key]
	if !ok {
		return memory.Value{}, false, nil
	}
	if item.expired(time.Now()) {
		delete(state.Working, key)
		if item.Kind == WorkingVariable {
			delete(state.Variables, key)
		}
		return memory.Value{}, false, nil
	}

	state.touch()
	return item.Value, true, nil
}

// ClearWorkingMemory drops all working values for a session.
func (m *Manager) ClearWorkingMemory(ctx context.Context, sessionID string) error {
	state, err := m.get(sessionID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	for key, item := range state.Working {
		if item.Kind == WorkingVariable {
			delete(state.Variables, key)
		}
		delete(state.Working, key)
	}
	state.touch()
	state.mu.Unlock()

	ev := eventstream.New(eventstream.EventTypeWorkingCleared)
	ev.SessionID = sessionID
	m.emit(ctx, ev)

	return nil
}

// SetActiveTask replaces the session's active task.
func (m *Manager) SetActiveTask(ctx context.Context, sessionID, name string) (*Task, error) {
	state, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	task := &Task{
		ID:        uuid.NewString(),
		Name:      name,
		State:     TaskRunning,
		StartedAt: now,
		UpdatedAt: now,
	}

	state.mu.Lock()
	state.ActiveTask = task
	state.touch()
	state.mu.Unlock()

	ev := eventstream.New(eventstream.EventTypeTaskStarted)
	ev.SessionID = sessionID
	ev.Detail = map[string]string{"task_id": task.ID, "name": name}
	m.emit(ctx, ev)

	return task, nil
}

// UpdateTaskProgress clamps progress to [0,100] and marks the task completed
// at 100. A session without an active task is a no-op.
func (m *Manager) UpdateTaskProgress(ctx context.Context, sessionID string, progress float64) error {
	state, err := m.get(sessionID)
	if err != nil {
		return err
	}

	progress = math.Max(0, math.Min(100, progress))

	state.mu.Lock()
	task := state.ActiveTask
	if task == nil {
		state.mu.Unlock()
		return nil
	}
	task.Progress = progress
	task.UpdatedAt = time.Now()
	if progress >= 100 {
		task.State = TaskCompleted
	}
	state.touch()
	taskID := task.ID
	taskState := task.State
	state.mu.Unlock()

	ev := eventstream.New(eventstream.EventTypeTaskProgress)
	ev.SessionID = sessionID
	ev.Detail = map[string]string{
		"task_id": taskID,
		"state":   string(taskState),
	}
	m.emit(ctx, ev)

	return nil
}
