package memory

import "time"

// Query describes a memory lookup. Hard filters (owner, type, tags, time and
// importance ranges, expiry) narrow the candidate set; the candidate set is
// then scored by cosine similarity when an embedding is available, or by
// importance alone when not.
type Query struct {
	// Text is the free-text query. When Embedding is nil the store derives
	// one from Text via the embedding provider.
	Text string

	// Embedding is an optional precomputed query vector.
	Embedding []float32

	UserID  string
	AgentID string
	Types   []Type
	Tags    []string

	// MinImportance / MaxImportance bound the importance range when non-nil.
	MinImportance *float64
	MaxImportance *float64

	// Since / Until bound the record creation time when non-nil.
	Since *time.Time
	Until *time.Time

	// Limit and Offset paginate after scoring. Limit <= 0 means no limit.
	Limit  int
	Offset int

	// IncludeExpired opts in to records past their expiry deadline.
	IncludeExpired bool
}

// ScoredRecord pairs a record with its query scores.
type ScoredRecord struct {
	Record *Record

	// Similarity is the cosine similarity to the query embedding, 0 when the
	// query had none.
	Similarity float64

	// Relevance is the ranking score: similarity * importance for embedding
	// queries, importance alone otherwise. Searchers may overwrite it with a
	// re-ranked score.
	Relevance float64
}

// SearchResult is the outcome of one store search.
type SearchResult struct {
	Records []ScoredRecord

	// Total is the number of candidates after filtering, before pagination.
	Total int

	ExecutionTime time.Duration
}

// StoreRequest describes a record to create.
type StoreRequest struct {
	UserID  string
	AgentID string
	Content string
	Type    Type

	// Embedding is optional; the store computes one from Content when nil.
	Embedding []float32

	// Importance is optional; the store derives a default from type and
	// content length when nil. Must be in [0,1] when given.
	Importance *float64

	Tags     []string
	Metadata map[string]Value

	// ExpiresAt optionally sets an absolute expiry deadline.
	ExpiresAt *time.Time

	// TTL optionally sets ExpiresAt relative to creation time. Ignored when
	// ExpiresAt is set.
	TTL time.Duration
}

// UpdateRequest describes a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	ID string

	// Content, when non-nil, replaces the payload and recomputes the embedding.
	Content *string

	Type       *Type
	Importance *float64

	// Tags, when non-nil, replaces the tag set and reindexes.
	Tags []string

	// Metadata, when non-nil, replaces the metadata bag.
	Metadata map[string]Value

	ExpiresAt *time.Time
}

// PruneStrategy selects how prune scores candidate records.
type PruneStrategy string

const (
	// PruneLRU scores by time since last access; stale records go first.
	PruneLRU PruneStrategy = "lru"

	// PruneLFU scores by negative access count; rarely read records go first.
	PruneLFU PruneStrategy = "lfu"

	// PruneImportance scores by negative importance.
	PruneImportance PruneStrategy = "importance"

	// PruneAge scores by negative age; oldest records go first.
	PruneAge PruneStrategy = "age"

	// PruneCombined blends normalized age (30%), inverse importance (40%) and
	// inverse access count (30%).
	PruneCombined PruneStrategy = "combined"
)

// Valid reports whether s names a known prune strategy.
func (s PruneStrategy) Valid() bool {
	switch s {
	case PruneLRU, PruneLFU, PruneImportance, PruneAge, PruneCombined:
		return true
	}
	return false
}

// PruneCriteria controls a prune pass.
type PruneCriteria struct {
	// UserID / AgentID optionally scope the candidate set to one owner.
	UserID  string
	AgentID string

	// Strategy defaults to PruneCombined when empty.
	Strategy PruneStrategy

	// MaxMemories, when > 0, keeps deleting low-score records while the
	// surviving count exceeds it.
	MaxMemories int

	// MaxAge, when > 0, force-deletes records older than it regardless of score.
	MaxAge time.Duration

	// MinImportance, when non-nil, force-deletes records below it regardless
	// of score.
	MinImportance *float64

	// PreserveTypes / PreserveTags exempt matching records from deletion
	// entirely, including the force-delete rules.
	PreserveTypes []Type
	PreserveTags  []string

	// DryRun computes the result set without mutating the store.
	DryRun bool
}

// PruneResult reports a prune pass.
type PruneResult struct {
	Deleted    int
	Preserved  int
	FreedSpace int64
	DeletedIDs []string
	Strategy   PruneStrategy
}

// BulkAction enumerates bulk operation kinds.
type BulkAction string

const (
	BulkCreate BulkAction = "create"
	BulkUpdate BulkAction = "update"
	BulkDelete BulkAction = "delete"
)

// BulkItem is one independent operation in a bulk request. Exactly one of
// Create, Update or DeleteID is consulted, per Action.
type BulkItem struct {
	Action   BulkAction
	Create   *StoreRequest
	Update   *UpdateRequest
	DeleteID string
}

// BulkError captures one failed bulk item.
type BulkError struct {
	Index   int
	ID      string
	Message string
}

// BulkResult tallies a bulk request. One item's failure never aborts the rest.
type BulkResult struct {
	Successful int
	Failed     int
	Errors     []BulkError
}

// IssueSeverity grades a health issue.
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityCritical IssueSeverity = "critical"
)

// HealthIssue is one detected problem with a human-readable recommendation.
type HealthIssue struct {
	Severity       IssueSeverity
	Description    string
	Recommendation string
}

// Health reports store capacity and quality signals.
type Health struct {
	TotalRecords       int
	StorageBytes       int64
	UtilizationPercent float64
	AvgSearchLatency   time.Duration
	AccuracyEstimate   float64
	Issues             []HealthIssue
}

// LatencyStats carries percentile latencies over a rolling sample window.
type LatencyStats struct {
	P50     time.Duration
	P90     time.Duration
	P95     time.Duration
	P99     time.Duration
	Avg     time.Duration
	Min     time.Duration
	Max     time.Duration
	Samples int
}

// PerformanceMetrics reports operation latencies and storage efficiency.
type PerformanceMetrics struct {
	Store    LatencyStats
	Retrieve LatencyStats

	CompressionRatio  float64
	AvgBytesPerRecord float64
	BytesPerUser      map[string]int64
}
