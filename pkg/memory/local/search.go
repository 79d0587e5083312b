package local

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/corticalco/engram/pkg/memory"
)

// Search filters the record table through the indices, scores the candidate
// set and paginates after scoring.
//
// With a query embedding (supplied, or derived from query text) each
// candidate scores relevance = cosine similarity * importance, sorted
// descending. Without one, candidates rank by importance, ties broken by
// descending creation time.
func (d *Driver) Search(ctx context.Context, query *memory.Query) (*memory.SearchResult, error) {
	start := time.Now()

	if query == nil {
		query = &memory.Query{}
	}

	// Derive the query embedding before touching the table; the embed call
	// may suspend.
	queryEmbedding := query.Embedding
	if queryEmbedding == nil && query.Text != "" {
		var err error
		queryEmbedding, err = d.embedder.Embed(ctx, query.Text)
		if err != nil {
			wrapped := fmt.Errorf("%w: %v", memory.ErrProvider, err)
			d.emitError(ctx, "search", wrapped)
			return nil, wrapped
		}
	}

	now := time.Now()

	d.mu.RLock()
	candidates := d.filterLocked(query, now)
	d.mu.RUnlock()

	scored := make([]memory.ScoredRecord, 0, len(candidates))
	if queryEmbedding != nil {
		for _, record := range candidates {
			if record.Embedding == nil {
				continue
			}
			similarity, err := memory.CosineSimilarity(queryEmbedding, record.Embedding)
			if err != nil {
				d.emitError(ctx, "search", err)
				return nil, err
			}
			scored = append(scored, memory.ScoredRecord{
				Record:     record,
				Similarity: similarity,
				Relevance:  similarity * record.Importance,
			})
		}
		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].Relevance > scored[j].Relevance
		})
	} else {
		for _, record := range candidates {
			scored = append(scored, memory.ScoredRecord{
				Record:    record,
				Relevance: record.Importance,
			})
		}
		sort.SliceStable(scored, func(i, j int) bool {
			if scored[i].Relevance != scored[j].Relevance {
				return scored[i].Relevance > scored[j].Relevance
			}
			return scored[i].Record.Timestamp.After(scored[j].Record.Timestamp)
		})
	}

	total := len(scored)
	scored = paginate(scored, query.Offset, query.Limit)

	elapsed := time.Since(start)
	d.searchLatency.record(elapsed)

	return &memory.SearchResult{
		Records:       scored,
		Total:         total,
		ExecutionTime: elapsed,
	}, nil
}

// filterLocked applies the query's hard filters and returns cloned candidate
// records. Caller holds mu for reading.
func (d *Driver) filterLocked(query *memory.Query, now time.Time) []*memory.Record {
	ids := d.candidateIDsLocked(query)

	candidates := make([]*memory.Record, 0, len(ids))
	for id := range ids {
		record, ok := d.records[id]
		if !ok {
			continue
		}
		if !query.IncludeExpired && record.Expired(now) {
			continue
		}
		if query.MinImportance != nil && record.Importance < *query.MinImportance {
			continue
		}
		if query.MaxImportance != nil && record.Importance > *query.MaxImportance {
			continue
		}
		if query.Since != nil && record.Timestamp.Before(*query.Since) {
			continue
		}
		if query.Until != nil && record.Timestamp.After(*query.Until) {
			continue
		}
		candidates = append(candidates, record.Clone())
	}
	return candidates
}

// candidateIDsLocked intersects the applicable index sets. With no index
// filter at all, every record id is a candidate. Caller holds mu.
func (d *Driver) candidateIDsLocked(query *memory.Query) map[string]struct{} {
	var sets []map[string]struct{}

	if query.UserID != "" {
		sets = append(sets, d.byUser[query.UserID])
	}
	if query.AgentID != "" {
		sets = append(sets, d.byAgent[query.AgentID])
	}
	if len(query.Types) > 0 {
		union := make(map[string]struct{})
		for _, t := range query.Types {
			for id := range d.byType[string(t)] {
				union[id] = struct{}{}
			}
		}
		sets = append(sets, union)
	}
	for _, tag := range query.Tags {
		sets = append(sets, d.byTag[tag])
	}

	if len(sets) == 0 {
		all := make(map[string]struct{}, len(d.records))
		for id := range d.records {
			all[id] = struct{}{}
		}
		return all
	}

	// Intersect starting from the smallest set.
	smallest := sets[0]
	for _, s := range sets[1:] {
		if len(s) < len(smallest) {
			smallest = s
		}
	}

	result := make(map[string]struct{}, len(smallest))
outer:
	for id := range smallest {
		for _, s := range sets {
			if _, ok := s[id]; !ok {
				continue outer
			}
		}
		result[id] = struct{}{}
	}
	return result
}

func paginate(records []memory.ScoredRecord, offset, limit int) []memory.ScoredRecord {
	if offset > 0 {
		if offset >= len(records) {
			return nil
		}
		records = records[offset:]
	}
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}
