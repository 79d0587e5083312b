// Package local provides the in-process implementation of the memory.Driver
// interface.
//
// Records live in a single table keyed by id, with four lookup indices
// (user, agent, type, tag) maintained in lockstep under one lock. Similarity
// search is an exact linear cosine scan over the filtered candidate set —
// deliberately so: corpora here are small enough that an approximate
// nearest-neighbor index would buy nothing and change observable ranking.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corticalco/engram/pkg/embeddings"
	"github.com/corticalco/engram/pkg/eventstream"
	"github.com/corticalco/engram/pkg/eventstream/nop"
	"github.com/corticalco/engram/pkg/memory"
)

const (
	// DefaultStorageLimit caps estimated storage for utilization reporting.
	DefaultStorageLimit int64 = 100 << 20 // 100 MiB

	// DefaultSearchLatencyThreshold is the health threshold for average
	// search latency.
	DefaultSearchLatencyThreshold = 100 * time.Millisecond
)

// Config holds configuration for the local memory driver.
type Config struct {
	// Embedder generates embeddings for records stored without one and for
	// free-text queries. Required.
	Embedder embeddings.Embedder

	// Publisher receives the driver's operation events. Defaults to the
	// no-op publisher.
	Publisher eventstream.Publisher

	// StorageLimit is the storage budget in bytes used for utilization
	// reporting. Defaults to DefaultStorageLimit.
	StorageLimit int64

	// SearchLatencyThreshold flags a health issue when average search
	// latency exceeds it. Defaults to DefaultSearchLatencyThreshold.
	SearchLatencyThreshold time.Duration
}

// Driver implements memory.Driver using in-process data structures.
type Driver struct {
	config    Config
	embedder  embeddings.Embedder
	publisher eventstream.Publisher
	logger    *zap.Logger

	mu sync.RWMutex

	// records is the authoritative table, keyed by record id.
	records map[string]*memory.Record

	// byUser, byAgent, byType and byTag map index keys to record-id sets.
	// They are mutated only while mu is held for writing and are always
	// consistent with records once a mutation completes.
	byUser  map[string]map[string]struct{}
	byAgent map[string]map[string]struct{}
	byType  map[string]map[string]struct{}
	byTag   map[string]map[string]struct{}

	storeLatency    *latencyWindow
	retrieveLatency *latencyWindow
	searchLatency   *latencyWindow
}

// NewDriver creates a local in-memory memory driver.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}
	if c.StorageLimit <= 0 {
		c.StorageLimit = DefaultStorageLimit
	}
	if c.SearchLatencyThreshold <= 0 {
		c.SearchLatencyThreshold = DefaultSearchLatencyThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Driver{
		config:          c,
		embedder:        c.Embedder,
		publisher:       c.Publisher,
		logger:          logger,
		records:         make(map[string]*memory.Record),
		byUser:          make(map[string]map[string]struct{}),
		byAgent:         make(map[string]map[string]struct{}),
		byType:          make(map[string]map[string]struct{}),
		byTag:           make(map[string]map[string]struct{}),
		storeLatency:    newLatencyWindow(latencyWindowCap),
		retrieveLatency: newLatencyWindow(latencyWindowCap),
		searchLatency:   newLatencyWindow(latencyWindowCap),
	}, nil
}

// Store validates the request, fills in embedding and importance when absent,
// and inserts the record into the table and all four indices atomically.
func (d *Driver) Store(ctx context.Context, req *memory.StoreRequest) (*memory.Record, error) {
	start := time.Now()

	if err := validateStoreRequest(req, d.embedder.Dimensions()); err != nil {
		d.emitError(ctx, "store", err)
		return nil, err
	}

	// Resolve the embedding before taking the lock: the embed call may
	// suspend, and no caller may observe a half-indexed record.
	embedding := req.Embedding
	if embedding == nil {
		var err error
		embedding, err = d.embedder.Embed(ctx, req.Content)
		if err != nil {
			wrapped := fmt.Errorf("%w: %v", memory.ErrProvider, err)
			d.emitError(ctx, "store", wrapped)
			return nil, wrapped
		}
	}

	importance := memory.DefaultImportance(req.Type, len(req.Content))
	if req.Importance != nil {
		importance = *req.Importance
	}

	now := time.Now()
	expiresAt := req.ExpiresAt
	if expiresAt == nil && req.TTL > 0 {
		t := now.Add(req.TTL)
		expiresAt = &t
	}

	record := &memory.Record{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		AgentID:      req.AgentID,
		Content:      req.Content,
		Embedding:    embedding,
		Type:         req.Type,
		Importance:   importance,
		Tags:         append([]string(nil), req.Tags...),
		Metadata:     req.Metadata,
		Version:      1,
		LastAccessed: now,
		Timestamp:    now,
		ExpiresAt:    expiresAt,
	}

	d.mu.Lock()
	d.records[record.ID] = record
	d.index(record)
	d.mu.Unlock()

	d.storeLatency.record(time.Since(start))

	ev := eventstream.New(eventstream.EventTypeMemoryCreated)
	ev.RecordID = record.ID
	ev.UserID = record.UserID
	ev.AgentID = record.AgentID
	d.emit(ctx, ev)

	d.logger.Debug("memory stored",
		zap.String("id", record.ID),
		zap.String("type", string(record.Type)),
		zap.Float64("importance", record.Importance),
	)

	return record.Clone(), nil
}

// Retrieve returns existing, non-expired records for the given ids, updating
// access bookkeeping for every returned record. Unknown or expired ids are
// skipped silently.
func (d *Driver) Retrieve(ctx context.Context, ids []string) ([]*memory.Record, error) {
	start := time.Now()
	now := time.Now()

	d.mu.Lock()
	results := make([]*memory.Record, 0, len(ids))
	for _, id := range ids {
		record, ok := d.records[id]
		if !ok || record.Expired(now) {
			continue
		}

		record.AccessCount++
		record.LastAccessed = now
		results = append(results, record.Clone())
	}
	d.mu.Unlock()

	d.retrieveLatency.record(time.Since(start))

	for _, record := range results {
		ev := eventstream.New(eventstream.EventTypeMemoryAccessed)
		ev.RecordID = record.ID
		ev.UserID = record.UserID
		ev.AgentID = record.AgentID
		d.emit(ctx, ev)
	}

	return results, nil
}

// Update applies a partial update. Content changes recompute the embedding;
// tag changes reindex; every update bumps the version.
func (d *Driver) Update(ctx context.Context, req *memory.UpdateRequest) (*memory.Record, error) {
	if req == nil || req.ID == "" {
		err := memory.ValidationError{Field: "id", Reason: "required"}
		d.emitError(ctx, "update", err)
		return nil, err
	}
	if req.Importance != nil && (*req.Importance < 0 || *req.Importance > 1) {
		err := memory.ValidationError{Field: "importance", Reason: "must be in [0,1]"}
		d.emitError(ctx, "update", err)
		return nil, err
	}
	if req.Type != nil && !req.Type.Valid() {
		err := memory.ValidationError{Field: "type", Reason: "unknown memory type"}
		d.emitError(ctx, "update", err)
		return nil, err
	}

	d.mu.RLock()
	_, exists := d.records[req.ID]
	d.mu.RUnlock()
	if !exists {
		err := memory.NotFoundError{ID: req.ID}
		d.emitError(ctx, "update", err)
		return nil, err
	}

	// Recompute the embedding outside the lock; existence is re-checked
	// below so a concurrent delete still wins cleanly.
	var newEmbedding []float32
	if req.Content != nil {
		var err error
		newEmbedding, err = d.embedder.Embed(ctx, *req.Content)
		if err != nil {
			wrapped := fmt.Errorf("%w: %v", memory.ErrProvider, err)
			d.emitError(ctx, "update", wrapped)
			return nil, wrapped
		}
	}

	d.mu.Lock()
	record, ok := d.records[req.ID]
	if !ok {
		d.mu.Unlock()
		err := memory.NotFoundError{ID: req.ID}
		d.emitError(ctx, "update", err)
		return nil, err
	}

	if req.Content != nil {
		record.Content = *req.Content
		record.Embedding = newEmbedding
	}
	if req.Type != nil && *req.Type != record.Type {
		d.removeFromIndex(d.byType, string(record.Type), record.ID)
		record.Type = *req.Type
		d.addToIndex(d.byType, string(record.Type), record.ID)
	}
	if req.Importance != nil {
		record.Importance = *req.Importance
	}
	if req.Tags != nil {
		for _, tag := range record.Tags {
			d.removeFromIndex(d.byTag, tag, record.ID)
		}
		record.Tags = append([]string(nil), req.Tags...)
		for _, tag := range record.Tags {
			d.addToIndex(d.byTag, tag, record.ID)
		}
	}
	if req.Metadata != nil {
		record.Metadata = req.Metadata
	}
	if req.ExpiresAt != nil {
		t := *req.ExpiresAt
		record.ExpiresAt = &t
	}

	record.Version++
	updated := record.Clone()
	d.mu.Unlock()

	ev := eventstream.New(eventstream.EventTypeMemoryUpdated)
	ev.RecordID = updated.ID
	ev.UserID = updated.UserID
	ev.AgentID = updated.AgentID
	d.emit(ctx, ev)

	return updated, nil
}

// Delete removes a record and its index entries. Reports whether a record
// existed.
func (d *Driver) Delete(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	record, ok := d.records[id]
	if !ok {
		d.mu.Unlock()
		return false, nil
	}

	d.unindex(record)
	delete(d.records, id)
	d.mu.Unlock()

	ev := eventstream.New(eventstream.EventTypeMemoryDeleted)
	ev.RecordID = record.ID
	ev.UserID = record.UserID
	ev.AgentID = record.AgentID
	d.emit(ctx, ev)

	return true, nil
}

// Close releases driver resources.
func (d *Driver) Close() error {
	return nil
}

// index inserts the record's id into all four indices. Caller holds mu.
func (d *Driver) index(record *memory.Record) {
	d.addToIndex(d.byUser, record.UserID, record.ID)
	d.addToIndex(d.byAgent, record.AgentID, record.ID)
	d.addToIndex(d.byType, string(record.Type), record.ID)
	for _, tag := range record.Tags {
		d.addToIndex(d.byTag, tag, record.ID)
	}
}

// unindex removes the record's id from all four indices. Caller holds mu.
func (d *Driver) unindex(record *memory.Record) {
	d.removeFromIndex(d.byUser, record.UserID, record.ID)
	d.removeFromIndex(d.byAgent, record.AgentID, record.ID)
	d.removeFromIndex(d.byType, string(record.Type), record.ID)
	for _, tag := range record.Tags {
		d.removeFromIndex(d.byTag, tag, record.ID)
	}
}

func (d *Driver) addToIndex(idx map[string]map[string]struct{}, key, id string) {
	set, ok := idx[key]
	if !ok {
		set = make(map[string]struct{})
		idx[key] = set
	}
	set[id] = struct{}{}
}

func (d *Driver) removeFromIndex(idx map[string]map[string]struct{}, key, id string) {
	set, ok := idx[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(idx, key)
	}
}

func (d *Driver) emit(ctx context.Context, ev *eventstream.Event) {
	if err := d.publisher.Publish(ctx, ev); err != nil {
		d.logger.Warn("event publish failed",
			zap.String("event_type", ev.EventType),
			zap.Error(err),
		)
	}
}

func (d *Driver) emitError(ctx context.Context, op string, opErr error) {
	ev := eventstream.New(eventstream.EventTypeMemoryError)
	ev.Detail = map[string]string{
		"operation": op,
		"error":     opErr.Error(),
	}
	d.emit(ctx, ev)
}

func validateStoreRequest(req *memory.StoreRequest, dimensions int) error {
	if req == nil {
		return memory.ValidationError{Field: "request", Reason: "required"}
	}
	if req.UserID == "" {
		return memory.ValidationError{Field: "userId", Reason: "required"}
	}
	if req.AgentID == "" {
		return memory.ValidationError{Field: "agentId", Reason: "required"}
	}
	if req.Content == "" {
		return memory.ValidationError{Field: "content", Reason: "required"}
	}
	if req.Type == "" {
		return memory.ValidationError{Field: "type", Reason: "required"}
	}
	if !req.Type.Valid() {
		return memory.ValidationError{Field: "type", Reason: "unknown memory type"}
	}
	if req.Importance != nil && (*req.Importance < 0 || *req.Importance > 1) {
		return memory.ValidationError{Field: "importance", Reason: "must be in [0,1]"}
	}
	if req.Embedding != nil && len(req.Embedding) != dimensions {
		return memory.ValidationError{
			Field:  "embedding",
			Reason: fmt.Sprintf("expected %d dimensions, got %d", dimensions, len(req.Embedding)),
		}
	}
	return nil
}

// Ensure Driver implements memory.Driver.
var _ memory.Driver = (*Driver)(nil)
