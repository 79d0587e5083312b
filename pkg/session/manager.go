package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corticalco/engram/pkg/eventstream"
	"github.com/corticalco/engram/pkg/eventstream/nop"
	"github.com/corticalco/engram/pkg/memory"
	"github.com/corticalco/engram/pkg/memory/search"
)

// Defaults for the manager's tunables.
const (
	DefaultIdleTimeout        = 30 * time.Minute
	DefaultMaxSessionDuration = 24 * time.Hour
	DefaultWindowMaxSize      = 50
	DefaultWindowMaxTokens    = 4000
	DefaultShortTermCap       = 20
	DefaultPromotionThreshold = 0.6
	DefaultCleanupInterval    = time.Minute
	DefaultContextWindowSize  = 10
	DefaultLongTermLimit      = 5

	// overflowPromotionThreshold and overflowPromotionMax govern short-term
	// overflow: when the cap is exceeded, up to five items with importance
	// at or above 0.7 are promoted before the oldest items are trimmed.
	overflowPromotionThreshold = 0.7
	overflowPromotionMax       = 5

	// summarizeAfterTurns triggers a summary during persistence once the
	// conversation exceeds this many turns.
	summarizeAfterTurns = 5
)

// Config holds configuration for the session manager.
type Config struct {
	// IdleTimeout expires a session that has seen no activity for this long.
	// Defaults to 30 minutes.
	IdleTimeout time.Duration

	// MaxSessionDuration is the absolute session lifetime cap; a new
	// session's expiry timestamp is set to now plus this. Defaults to 24h.
	MaxSessionDuration time.Duration

	// WindowMaxSize and WindowMaxTokens bound each session's context window.
	WindowMaxSize   int
	WindowMaxTokens int

	// WindowStrategy selects the window eviction strategy. Default sliding.
	WindowStrategy WindowStrategy

	// ShortTermCap bounds short-term memory per session. Default 20.
	ShortTermCap int

	// PromotionThreshold is the minimum importance for a short-term item to
	// be promoted into the long-term store during persistence. Default 0.6.
	PromotionThreshold float64

	// CleanupInterval is the period of the background expiry sweep.
	// Defaults to one minute.
	CleanupInterval time.Duration

	// ContextWindowSize is how many recent turns BuildLLMContext includes.
	// Default 10.
	ContextWindowSize int

	// LongTermLimit is the default recall limit for long-term context.
	// Default 5.
	LongTermLimit int

	// Persister enables session persistence when non-nil. Nil disables
	// persistence entirely (sessions are dropped on expiry).
	Persister Persister

	// Publisher receives session lifecycle events. Defaults to no-op.
	Publisher eventstream.Publisher
}

func (c *Config) fillDefaults() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.MaxSessionDuration <= 0 {
		c.MaxSessionDuration = DefaultMaxSessionDuration
	}
	if c.WindowMaxSize <= 0 {
		c.WindowMaxSize = DefaultWindowMaxSize
	}
	if c.WindowMaxTokens <= 0 {
		c.WindowMaxTokens = DefaultWindowMaxTokens
	}
	if !c.WindowStrategy.Valid() {
		c.WindowStrategy = StrategySliding
	}
	if c.ShortTermCap <= 0 {
		c.ShortTermCap = DefaultShortTermCap
	}
	if c.PromotionThreshold <= 0 {
		c.PromotionThreshold = DefaultPromotionThreshold
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.ContextWindowSize <= 0 {
		c.ContextWindowSize = DefaultContextWindowSize
	}
	if c.LongTermLimit <= 0 {
		c.LongTermLimit = DefaultLongTermLimit
	}
	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}
}

// Manager owns all active sessions and their background expiry sweep. It is
// the sole caller of the memory store and searcher on behalf of sessions.
type Manager struct {
	config    Config
	driver    memory.Driver
	searcher  *search.Searcher
	publisher eventstream.Publisher
	logger    *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*State

	sweepDone chan struct{}
	stopOnce  sync.Once
	stop      chan struct{}
}

// NewManager creates a session manager. Call Start to begin the background
// cleanup sweep and Stop for a cancel-safe shutdown that flushes persistence.
func NewManager(driver memory.Driver, searcher *search.Searcher, c Config, logger *zap.Logger) *Manager {
	c.fillDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		config:    c,
		driver:    driver,
		searcher:  searcher,
		publisher: c.Publisher,
		logger:    logger,
		sessions:  make(map[string]*State),
		stop:      make(chan struct{}),
	}
}

// Start launches the periodic cleanup sweep. The sweep runs on a single
// goroutine, so it never overlaps with itself.
func (m *Manager) Start() {
	m.sweepDone = make(chan struct{})
	go func() {
		defer close(m.sweepDone)

		ticker := time.NewTicker(m.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Sweep(context.Background())
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the cleanup sweep and flushes every active session to the
// persistence adapter. Safe to call more than once.
func (m *Manager) Stop(ctx context.Context) {
	m.stopOnce.Do(func() {
		close(m.stop)
		if m.sweepDone != nil {
			<-m.sweepDone
		}

		for _, state := range m.activeSessions() {
			state.mu.Lock()
			m.persistLocked(ctx, state)
			state.mu.Unlock()
		}
	})
}

// GetContext returns the session for sessionID, touching its activity
// timestamp. A session absent from the active map is loaded from the
// persistence adapter when one is configured, otherwise created fresh.
func (m *Manager) GetContext(ctx context.Context, sessionID, userID, agentID string) (*State, error) {
	m.mu.RLock()
	state, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	if ok {
		state.mu.Lock()
		state.touch()
		state.mu.Unlock()
		return state, nil
	}

	var snap *Snapshot
	if m.config.Persister != nil {
		loaded, found, err := m.config.Persister.Load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if found {
			snap = loaded
		}
	}

	m.mu.Lock()
	// Another caller may have created the session while we were loading.
	if state, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		state.mu.Lock()
		state.touch()
		state.mu.Unlock()
		return state, nil
	}

	now := time.Now()
	state = &State{
		SessionID:    sessionID,
		UserID:       userID,
		AgentID:      agentID,
		Working:      make(map[string]*WorkingItem),
		Window:       NewWindow(m.config.WindowMaxSize, m.config.WindowMaxTokens, m.config.WindowStrategy),
		Variables:    make(map[string]memory.Value),
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(m.config.MaxSessionDuration),
	}
	if snap != nil {
		m.restoreFromSnapshot(state, snap)
		state.LastActivity = now
		state.ExpiresAt = now.Add(m.config.MaxSessionDuration)
	}
	m.sessions[sessionID] = state
	m.mu.Unlock()

	ev := eventstream.New(eventstream.EventTypeContextCreated)
	ev.SessionID = sessionID
	ev.UserID = userID
	ev.AgentID = agentID
	if snap != nil {
		ev.Detail = map[string]string{"restored": "true"}
	}
	m.emit(ctx, ev)

	return state, nil
}

func (m *Manager) restoreFromSnapshot(state *State, snap *Snapshot) {
	state.UserID = snap.UserID
	state.AgentID = snap.AgentID
	state.ShortTerm = append([]ShortTermItem(nil), snap.ShortTerm...)
	state.History = append([]Turn(nil), snap.History...)
	state.ActiveTask = snap.ActiveTask
	state.CreatedAt = snap.CreatedAt
	state.Window.restore(snap.WindowItems)
	for i := range snap.Working {
		item := snap.Working[i]
		state.Working[item.Key] = &item
	}
	for k, v := range snap.Variables {
		state.Variables[k] = v
	}
}

// get returns an active session or a NotFoundError. Unlike GetContext it
// never creates or loads.
func (m *Manager) get(sessionID string) (*State, error) {
	m.mu.RLock()
	state, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, NotFoundError{SessionID: sessionID}
	}
	return state, nil
}

func (m *Manager) activeSessions() []*State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*State, 0, len(m.sessions))
	for _, state := range m.sessions {
		out = append(out, state)
	}
	return out
}

// GetUserSessions returns the active session ids owned by userID, optionally
// narrowed to one agent.
func (m *Manager) GetUserSessions(userID, agentID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []string
	for id, state := range m.sessions {
		if state.UserID != userID {
			continue
		}
		if agentID != "" && state.AgentID != agentID {
			continue
		}
		out = append(out, id)
	}
	return out
}

// GetStats reports a session's resource usage.
func (m *Manager) GetStats(sessionID string) (*Stats, error) {
	state, err := m.get(sessionID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	stats := &Stats{
		TurnCount:         len(state.History),
		ShortTermCount:    len(state.ShortTerm),
		WorkingCount:      len(state.Working),
		WindowFillPercent: float64(state.Window.Size()) / float64(state.Window.MaxSize()) * 100,
		TokenUsagePercent: float64(state.Window.Tokens()) / float64(state.Window.MaxTokens()) * 100,
	}
	if state.ActiveTask != nil {
		stats.ActiveTaskID = state.ActiveTask.ID
	}
	return stats, nil
}

// Sweep expires sessions past their absolute deadline or idle timeout,
// persisting each before removal when persistence is enabled. Runs inline;
// the Start loop calls it periodically.
func (m *Manager) Sweep(ctx context.Context) int {
	now := time.Now()
	expired := 0

	for _, state := range m.activeSessions() {
		state.mu.Lock()
		if !m.expiredLocked(state, now) {
			state.mu.Unlock()
			continue
		}

		m.persistLocked(ctx, state)
		state.mu.Unlock()

		m.mu.Lock()
		// Only remove if nothing replaced the session, and re-check expiry
		// under both locks: a touch that landed after persistence must keep
		// the session alive.
		if current, ok := m.sessions[state.SessionID]; ok && current == state {
			state.mu.Lock()
			stillExpired := m.expiredLocked(state, now)
			state.mu.Unlock()
			if stillExpired {
				delete(m.sessions, state.SessionID)
				expired++
			}
		}
		m.mu.Unlock()
	}

	if expired > 0 {
		m.logger.Debug("cleanup sweep expired sessions", zap.Int("count", expired))
	}

	ev := eventstream.New(eventstream.EventTypeCleanupComplete)
	ev.Detail = map[string]string{"expired": strconv.Itoa(expired)}
	m.emit(ctx, ev)

	return expired
}

// expiredLocked reports whether state is past its absolute deadline or idle
// timeout at the given instant. Caller holds state.mu.
func (m *Manager) expiredLocked(state *State, now time.Time) bool {
	return now.After(state.ExpiresAt) || now.Sub(state.LastActivity) > m.config.IdleTimeout
}

// ClearContext removes a session from the active map, persisting it first
// unless persist is false.
func (m *Manager) ClearContext(ctx context.Context, sessionID string, persist bool) error {
	state, err := m.get(sessionID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	if persist {
		m.persistLocked(ctx, state)
	}
	state.mu.Unlock()

	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	ev := eventstream.New(eventstream.EventTypeContextCleared)
	ev.SessionID = sessionID
	m.emit(ctx, ev)

	return nil
}

func (m *Manager) emit(ctx context.Context, ev *eventstream.Event) {
	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.logger.Warn("event publish failed",
			zap.String("event_type", ev.EventType),
			zap.Error(err),
		)
	}
}

func newTurnID() string { return uuid.NewString() }
