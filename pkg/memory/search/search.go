// Package search provides read-side enhancement over a memory.Driver:
// weighted re-ranking, a TTL-bounded result cache, temporal and faceted query
// helpers, suggestion lookup and search analytics. It never mutates the
// store except by delegating to it.
package search

import (
	"context"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/corticalco/engram/pkg/eventstream"
	"github.com/corticalco/engram/pkg/eventstream/nop"
	"github.com/corticalco/engram/pkg/memory"
)

// Defaults for the searcher's ranking and caching knobs.
const (
	DefaultSimilarityWeight = 0.6
	DefaultImportanceWeight = 0.3
	DefaultRecencyWeight    = 0.1
	DefaultThreshold        = 0.7
	DefaultMaxResults       = 50
	DefaultCacheTTL         = time.Minute
	DefaultCacheSize        = 100
	DefaultHistorySize      = 1000

	// recencyHorizon is the window over which the recency boost decays
	// linearly from 1 to 0.
	recencyHorizon = 30 * 24 * time.Hour
)

// Config holds configuration for the searcher.
type Config struct {
	// SimilarityWeight, ImportanceWeight and RecencyWeight blend the final
	// ranking score. Defaults: 0.6 / 0.3 / 0.1.
	SimilarityWeight float64
	ImportanceWeight float64
	RecencyWeight    float64

	// BoostRecent enables the recency term.
	BoostRecent bool

	// Threshold drops results whose final score falls below it. Default 0.7.
	Threshold float64

	// MaxResults truncates the re-ranked result list. Default 50.
	MaxResults int

	// CacheTTL bounds result staleness: store mutations do not invalidate
	// cached results, so a cached entry may lag the store by at most this
	// long. Default one minute.
	CacheTTL time.Duration

	// CacheSize bounds the cache entry count; the oldest-inserted entry is
	// evicted on overflow. Default 100.
	CacheSize int

	// HistorySize caps the search-history log. Default 1000.
	HistorySize int

	// Publisher receives cache-hit and complete events. Defaults to no-op.
	Publisher eventstream.Publisher
}

func (c *Config) fillDefaults() {
	if c.SimilarityWeight == 0 && c.ImportanceWeight == 0 && c.RecencyWeight == 0 {
		c.SimilarityWeight = DefaultSimilarityWeight
		c.ImportanceWeight = DefaultImportanceWeight
		c.RecencyWeight = DefaultRecencyWeight
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheSize <= 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}
}

// Options overrides per-call ranking knobs. Nil fields fall back to the
// searcher's configuration.
type Options struct {
	SimilarityWeight *float64
	ImportanceWeight *float64
	RecencyWeight    *float64
	BoostRecent      *bool
	Threshold        *float64
	MaxResults       int
}

// Searcher re-ranks and caches results from a memory.Driver.
type Searcher struct {
	driver    memory.Driver
	config    Config
	publisher eventstream.Publisher
	logger    *zap.Logger

	cache   *resultCache
	history *historyLog
}

// NewSearcher creates a searcher over the given driver.
func NewSearcher(driver memory.Driver, c Config, logger *zap.Logger) *Searcher {
	c.fillDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Searcher{
		driver:    driver,
		config:    c,
		publisher: c.Publisher,
		logger:    logger,
		cache:     newResultCache(c.CacheSize, c.CacheTTL),
		history:   newHistoryLog(c.HistorySize),
	}
}

// Search checks the cache, delegates to the store on a miss, re-ranks by the
// weighted score formula, drops results below the threshold and truncates to
// the result cap. The final result is cached and logged to search history.
func (s *Searcher) Search(ctx context.Context, query *memory.Query, opts *Options) (*memory.SearchResult, error) {
	if query == nil {
		query = &memory.Query{}
	}

	key := cacheKey(query)
	if cached, ok := s.cache.get(key); ok {
		ev := eventstream.New(eventstream.EventTypeSearchCacheHit)
		ev.UserID = query.UserID
		ev.AgentID = query.AgentID
		ev.Detail = map[string]string{"query": query.Text}
		s.emit(ctx, ev)
		return cached, nil
	}

	start := time.Now()
	result, err := s.driver.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	reranked := s.rerank(result.Records, opts)
	final := &memory.SearchResult{
		Records:       reranked,
		Total:         result.Total,
		ExecutionTime: time.Since(start),
	}

	s.cache.put(key, final)
	s.history.add(historyEntry{
		Query:       query.Text,
		UserID:      query.UserID,
		AgentID:     query.AgentID,
		Types:       append([]memory.Type(nil), query.Types...),
		ResultCount: len(final.Records),
		Latency:     final.ExecutionTime,
		At:          time.Now(),
	})

	ev := eventstream.New(eventstream.EventTypeSearchComplete)
	ev.UserID = query.UserID
	ev.AgentID = query.AgentID
	ev.Detail = map[string]string{
		"query":   query.Text,
		"results": strconv.Itoa(len(final.Records)),
	}
	s.emit(ctx, ev)

	return final, nil
}

// rerank applies final = similarity*simWeight + importance*impWeight
// (+ recencyBoost*recWeight when recency boosting is on), clamped to [0,1],
// then filters by threshold and truncates to the result cap.
func (s *Searcher) rerank(records []memory.ScoredRecord, opts *Options) []memory.ScoredRecord {
	simWeight := s.config.SimilarityWeight
	impWeight := s.config.ImportanceWeight
	recWeight := s.config.RecencyWeight
	boostRecent := s.config.BoostRecent
	threshold := s.config.Threshold
	maxResults := s.config.MaxResults

	if opts != nil {
		if opts.SimilarityWeight != nil {
			simWeight = *opts.SimilarityWeight
		}
		if opts.ImportanceWeight != nil {
			impWeight = *opts.ImportanceWeight
		}
		if opts.RecencyWeight != nil {
			recWeight = *opts.RecencyWeight
		}
		if opts.BoostRecent != nil {
			boostRecent = *opts.BoostRecent
		}
		if opts.Threshold != nil {
			threshold = *opts.Threshold
		}
		if opts.MaxResults > 0 {
			maxResults = opts.MaxResults
		}
	}

	now := time.Now()
	out := make([]memory.ScoredRecord, 0, len(records))
	for _, sr := range records {
		score := sr.Similarity*simWeight + sr.Record.Importance*impWeight
		if boostRecent {
			score += recencyBoost(sr.Record.Timestamp, now) * recWeight
		}
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		if score < threshold {
			continue
		}

		sr.Relevance = score
		out = append(out, sr)
	}

	// Store order already ranks by relevance; re-sort on the new score.
	sortByRelevance(out)

	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

// recencyBoost decays linearly from 1 (brand new) to 0 (30 days old or more).
func recencyBoost(created, now time.Time) float64 {
	age := now.Sub(created)
	if age <= 0 {
		return 1
	}
	if age >= recencyHorizon {
		return 0
	}
	return 1 - age.Seconds()/recencyHorizon.Seconds()
}

func sortByRelevance(records []memory.ScoredRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Relevance > records[j].Relevance
	})
}

// FindSimilar retrieves the source record and searches by its own embedding,
// scoped to the same owner, excluding the source from the results.
func (s *Searcher) FindSimilar(ctx context.Context, id string, limit int, threshold float64) ([]memory.ScoredRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	sources, err := s.driver.Retrieve(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, memory.NotFoundError{ID: id}
	}
	source := sources[0]

	result, err := s.driver.Search(ctx, &memory.Query{
		Embedding: source.Embedding,
		UserID:    source.UserID,
		AgentID:   source.AgentID,
		Limit:     limit + 1,
	})
	if err != nil {
		return nil, err
	}

	out := make([]memory.ScoredRecord, 0, limit)
	for _, sr := range result.Records {
		if sr.Record.ID == id {
			continue
		}
		if sr.Similarity < threshold {
			continue
		}
		out = append(out, sr)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Searcher) emit(ctx context.Context, ev *eventstream.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("event_type", ev.EventType),
			zap.Error(err),
		)
	}
}
