package search

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/corticalco/engram/pkg/memory"
)

// historyEntry is one logged search.
type historyEntry struct {
	Query       string
	UserID      string
	AgentID     string
	Types       []memory.Type
	ResultCount int
	Latency     time.Duration
	At          time.Time
}

// historyLog is a bounded FIFO of search-history entries; insertion beyond
// the cap evicts the oldest entry.
type historyLog struct {
	mu      sync.Mutex
	entries []historyEntry
	max     int
}

func newHistoryLog(max int) *historyLog {
	return &historyLog{max: max}
}

func (h *historyLog) add(entry historyEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
}

func (h *historyLog) snapshot() []historyEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]historyEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// GetSuggestions returns distinct prior query strings for the owner whose
// text contains the partial query, most recent first.
func (s *Searcher) GetSuggestions(partial, userID, agentID string, limit int) []string {
	if limit <= 0 {
		limit = 10
	}
	needle := strings.ToLower(partial)

	entries := s.history.snapshot()
	seen := make(map[string]struct{})
	var out []string

	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		entry := entries[i]
		if entry.Query == "" {
			continue
		}
		if userID != "" && entry.UserID != userID {
			continue
		}
		if agentID != "" && entry.AgentID != agentID {
			continue
		}
		if !strings.Contains(strings.ToLower(entry.Query), needle) {
			continue
		}
		if _, dup := seen[entry.Query]; dup {
			continue
		}
		seen[entry.Query] = struct{}{}
		out = append(out, entry.Query)
	}

	return out
}

// QueryCount pairs a query string with its frequency.
type QueryCount struct {
	Query string
	Count int
}

// Analytics aggregates the search-history log.
type Analytics struct {
	TotalSearches  int
	AvgLatency     time.Duration
	AvgResultCount float64

	// TopQueries holds the ten most frequent queries, descending.
	TopQueries []QueryCount

	// SearchesByType counts how often each type filter was used.
	SearchesByType map[memory.Type]int
}

// GetAnalytics aggregates search history, optionally scoped to an owner.
func (s *Searcher) GetAnalytics(userID, agentID string) *Analytics {
	entries := s.history.snapshot()

	analytics := &Analytics{
		SearchesByType: make(map[memory.Type]int),
	}

	queryCounts := make(map[string]int)
	var totalLatency time.Duration
	var totalResults int

	for _, entry := range entries {
		if userID != "" && entry.UserID != userID {
			continue
		}
		if agentID != "" && entry.AgentID != agentID {
			continue
		}

		analytics.TotalSearches++
		totalLatency += entry.Latency
		totalResults += entry.ResultCount
		if entry.Query != "" {
			queryCounts[entry.Query]++
		}
		for _, t := range entry.Types {
			analytics.SearchesByType[t]++
		}
	}

	if analytics.TotalSearches > 0 {
		analytics.AvgLatency = totalLatency / time.Duration(analytics.TotalSearches)
		analytics.AvgResultCount = float64(totalResults) / float64(analytics.TotalSearches)
	}

	for query, count := range queryCounts {
		analytics.TopQueries = append(analytics.TopQueries, QueryCount{Query: query, Count: count})
	}
	sort.SliceStable(analytics.TopQueries, func(i, j int) bool {
		if analytics.TopQueries[i].Count != analytics.TopQueries[j].Count {
			return analytics.TopQueries[i].Count > analytics.TopQueries[j].Count
		}
		return analytics.TopQueries[i].Query < analytics.TopQueries[j].Query
	})
	if len(analytics.TopQueries) > 10 {
		analytics.TopQueries = analytics.TopQueries[:10]
	}

	return analytics
}
