package session

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/corticalco/engram/pkg/eventstream"
	"github.com/corticalco/engram/pkg/memory"
)

const (
	longTermMinImportance = 0.5
	summaryImportance     = 0.7
	summaryTurnCount      = 10
)

// LLMContext is the assembled prompt-ready bundle for a session: recent
// conversation, session-local memories, recalled long-term memories, and the
// variable slice of working memory.
type LLMContext struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	AgentID   string `json:"agent_id"`

	// Conversation holds the last ContextWindowSize turns as "role: content"
	// lines, oldest first.
	Conversation []string `json:"conversation"`

	ShortTermMemories []ShortTermItem        `json:"short_term_memories,omitempty"`
	LongTermMemories  []memory.ScoredRecord  `json:"long_term_memories,omitempty"`
	Variables         map[string]memory.Value `json:"variables,omitempty"`
	ActiveTask        *Task                  `json:"active_task,omitempty"`

	Metadata map[string]string `json:"metadata"`
}

// GetLongTermContext recalls long-term memories relevant to the session.
// With an empty query text, the last three turns are concatenated as the
// query. Results are owner-scoped and capped at the configured limit.
func (m *Manager) GetLongTermContext(ctx context.Context, sessionID, queryText string, limit int) ([]memory.ScoredRecord, error) {
	state, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = m.config.LongTermLimit
	}

	state.mu.Lock()
	userID, agentID := state.UserID, state.AgentID
	if queryText == "" {
		queryText = recentTurnsText(state.History, 3)
	}
	state.touch()
	state.mu.Unlock()

	if queryText == "" || m.searcher == nil {
		return nil, nil
	}

	minImportance := longTermMinImportance
	query := &memory.Query{
		Text:          queryText,
		UserID:        userID,
		AgentID:       agentID,
		Types:         []memory.Type{memory.TypeConversation, memory.TypeFact, memory.TypePreference, memory.TypeSummary},
		MinImportance: &minImportance,
		Limit:         limit,
	}
	result, err := m.searcher.Search(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

func recentTurnsText(history []Turn, n int) string {
	if len(history) == 0 {
		return ""
	}
	start := len(history) - n
	if start < 0 {
		start = 0
	}
	parts := make([]string, 0, n)
	for _, turn := range history[start:] {
		parts = append(parts, turn.Content)
	}
	return strings.Join(parts, " ")
}

// BuildLLMContext assembles the full context bundle for prompting.
func (m *Manager) BuildLLMContext(ctx context.Context, sessionID, queryText string) (*LLMContext, error) {
	state, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}

	longTerm, err := m.GetLongTermContext(ctx, sessionID, queryText, m.config.LongTermLimit)
	if err != nil {
		m.logger.Warn("long-term recall failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	bundle := &LLMContext{
		SessionID:         sessionID,
		UserID:            state.UserID,
		AgentID:           state.AgentID,
		ShortTermMemories: append([]ShortTermItem(nil), state.ShortTerm...),
		LongTermMemories:  longTerm,
		ActiveTask:        state.ActiveTask,
		Variables:         make(map[string]memory.Value),
	}

	start := len(state.History) - m.config.ContextWindowSize
	if start < 0 {
		start = 0
	}
	for _, turn := range state.History[start:] {
		bundle.Conversation = append(bundle.Conversation, turn.Role+": "+turn.Content)
	}

	// Working variables take precedence over session variables of the same
	// key; expired working items are dropped here as on any read.
	for k, v := range state.Variables {
		bundle.Variables[k] = v
	}
	now := time.Now()
	for key, item := range state.Working {
		if item.expired(now) {
			delete(state.Working, key)
			delete(state.Variables, key)
			continue
		}
		if item.Kind == WorkingVariable {
			bundle.Variables[key] = item.Value
		}
	}

	bundle.Metadata = map[string]string{
		"turn_count":     strconv.Itoa(len(state.History)),
		"window_size":    strconv.Itoa(state.Window.Size()),
		"window_tokens":  strconv.Itoa(state.Window.Tokens()),
		"window_max":     strconv.Itoa(state.Window.MaxSize()),
		"token_capacity": strconv.Itoa(state.Window.MaxTokens()),
	}

	state.touch()
	return bundle, nil
}

// SummarizeContext condenses the last ten turns into a summary record in the
// long-term store, tagged with the session id.
func (m *Manager) SummarizeContext(ctx context.Context, sessionID string) (*memory.Record, error) {
	state, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	userID, agentID := state.UserID, state.AgentID
	turnCount := len(state.History)
	summary := summarizeTurns(state.History, summaryTurnCount)
	state.touch()
	state.mu.Unlock()

	if summary == "" {
		return nil, nil
	}

	importance := summaryImportance
	record, err := m.driver.Store(ctx, &memory.StoreRequest{
		UserID:     userID,
		AgentID:    agentID,
		Content:    summary,
		Type:       memory.TypeSummary,
		Importance: &importance,
		Tags:       []string{"session:" + sessionID},
		Metadata: map[string]memory.Value{
			"turn_count": memory.NumberValue(float64(turnCount)),
		},
	})
	if err != nil {
		return nil, err
	}

	ev := eventstream.New(eventstream.EventTypeContextSummarized)
	ev.SessionID = sessionID
	ev.RecordID = record.ID
	ev.Detail = map[string]string{"turns": strconv.Itoa(turnCount)}
	m.emit(ctx, ev)

	return record, nil
}

func summarizeTurns(history []Turn, n int) string {
	if len(history) == 0 {
		return ""
	}
	start := len(history) - n
	if start < 0 {
		start = 0
	}
	parts := make([]string, 0, n)
	for _, turn := range history[start:] {
		parts = append(parts, turn.Role+": "+turn.Content)
	}
	return "Conversation summary: " + strings.Join(parts, " | ")
}

// PersistContext flushes a session: short-term items at or above the
// promotion threshold are stored long-term, conversations longer than five
// turns are summarized, and the snapshot is handed to the persistence
// adapter when one is configured.
func (m *Manager) PersistContext(ctx context.Context, sessionID string) error {
	state, err := m.get(sessionID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return m.persistLocked(ctx, state)
}

// persistLocked does the persistence work. Caller holds state.mu.
func (m *Manager) persistLocked(ctx context.Context, state *State) error {
	var promote []ShortTermItem
	for _, item := range state.ShortTerm {
		if item.Importance >= m.config.PromotionThreshold {
			promote = append(promote, item)
		}
	}
	for _, item := range promote {
		importance := item.Importance
		req := &memory.StoreRequest{
			UserID:     state.UserID,
			AgentID:    state.AgentID,
			Content:    item.Content,
			Type:       memory.TypeConversation,
			Importance: &importance,
			Tags:       append(append([]string(nil), item.Tags...), "promoted-from-short-term"),
		}
		if _, err := m.driver.Store(ctx, req); err != nil {
			m.logger.Warn("short-term promotion failed",
				zap.String("session_id", state.SessionID),
				zap.Error(err),
			)
		}
	}

	if len(state.History) > summarizeAfterTurns {
		summary := summarizeTurns(state.History, summaryTurnCount)
		importance := summaryImportance
		if _, err := m.driver.Store(ctx, &memory.StoreRequest{
			UserID:     state.UserID,
			AgentID:    state.AgentID,
			Content:    summary,
			Type:       memory.TypeSummary,
			Importance: &importance,
			Tags:       []string{"session:" + state.SessionID},
			Metadata: map[string]memory.Value{
				"turn_count": memory.NumberValue(float64(len(state.History))),
			},
		}); err != nil {
			m.logger.Warn("persistence summary failed",
				zap.String("session_id", state.SessionID),
				zap.Error(err),
			)
		}
	}

	if m.config.Persister != nil {
		snap := state.snapshotLocked()
		if err := m.config.Persister.Save(ctx, state.SessionID, snap); err != nil {
			return err
		}
	}

	ev := eventstream.New(eventstream.EventTypeContextPersisted)
	ev.SessionID = state.SessionID
	ev.UserID = state.UserID
	ev.AgentID = state.AgentID
	ev.Detail = map[string]string{
		"promoted": strconv.Itoa(len(promote)),
		"turns":    strconv.Itoa(len(state.History)),
	}
	m.emit(ctx, ev)

	return nil
}
