package search

import (
	"context"
	"fmt"
	"time"

	"github.com/corticalco/engram/pkg/memory"
)

// Period names a time window for temporal search.
type Period string

const (
	// PeriodRecent covers the last 24 hours.
	PeriodRecent Period = "recent"

	// PeriodToday covers the current calendar day.
	PeriodToday Period = "today"

	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"

	// PeriodCustom uses explicit bounds supplied by the caller.
	PeriodCustom Period = "custom"
)

// TimeRange is an explicit window for PeriodCustom.
type TimeRange struct {
	Since time.Time
	Until time.Time
}

// SearchTemporal expands a named period into a time range on the query and
// delegates to Search.
func (s *Searcher) SearchTemporal(ctx context.Context, query *memory.Query, period Period, custom *TimeRange, opts *Options) (*memory.SearchResult, error) {
	if query == nil {
		query = &memory.Query{}
	}

	now := time.Now()
	var since, until time.Time

	switch period {
	case PeriodRecent:
		since = now.Add(-24 * time.Hour)
		until = now
	case PeriodToday:
		since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		until = now
	case PeriodWeek:
		since = now.AddDate(0, 0, -7)
		until = now
	case PeriodMonth:
		since = now.AddDate(0, -1, 0)
		until = now
	case PeriodYear:
		since = now.AddDate(-1, 0, 0)
		until = now
	case PeriodCustom:
		if custom == nil {
			return nil, memory.ValidationError{Field: "period", Reason: "custom period requires explicit bounds"}
		}
		since = custom.Since
		until = custom.Until
	default:
		return nil, memory.ValidationError{Field: "period", Reason: fmt.Sprintf("unknown period %q", period)}
	}

	q := *query
	q.Since = &since
	q.Until = &until
	return s.Search(ctx, &q, opts)
}

// ImportanceLevel names a fixed importance band.
type ImportanceLevel string

const (
	ImportanceCritical ImportanceLevel = "critical" // [0.9, 1.0]
	ImportanceHigh     ImportanceLevel = "high"     // [0.7, 0.9)
	ImportanceMedium   ImportanceLevel = "medium"   // [0.4, 0.7)
	ImportanceLow      ImportanceLevel = "low"      // [0.0, 0.4)
)

// importanceBand returns the [min, max) bounds for a level. The critical
// band is closed at the top.
func importanceBand(level ImportanceLevel) (min, max float64, closedTop bool, err error) {
	switch level {
	case ImportanceCritical:
		return 0.9, 1.0, true, nil
	case ImportanceHigh:
		return 0.7, 0.9, false, nil
	case ImportanceMedium:
		return 0.4, 0.7, false, nil
	case ImportanceLow:
		return 0.0, 0.4, false, nil
	}
	return 0, 0, false, memory.ValidationError{Field: "level", Reason: fmt.Sprintf("unknown importance level %q", level)}
}

// SearchByImportance maps a level to its importance band and delegates.
func (s *Searcher) SearchByImportance(ctx context.Context, query *memory.Query, level ImportanceLevel, opts *Options) (*memory.SearchResult, error) {
	if query == nil {
		query = &memory.Query{}
	}

	min, max, closedTop, err := importanceBand(level)
	if err != nil {
		return nil, err
	}

	q := *query
	q.MinImportance = &min
	q.MaxImportance = &max

	result, err := s.Search(ctx, &q, opts)
	if err != nil {
		return nil, err
	}

	if !closedTop {
		// The store's range filter is inclusive; drop records sitting
		// exactly on the open upper bound. The filtered list is built
		// fresh: Search may have handed out this result to other callers
		// and cached it, so it must not be compacted in place.
		kept := make([]memory.ScoredRecord, 0, len(result.Records))
		for _, sr := range result.Records {
			if sr.Record.Importance >= max {
				continue
			}
			kept = append(kept, sr)
		}
		filtered := *result
		filtered.Records = kept
		return &filtered, nil
	}

	return result, nil
}

// Facets selects the independent facet queries to run.
type Facets struct {
	Types            []memory.Type
	Tags             []string
	ImportanceLevels []ImportanceLevel
	Periods          []Period
}

// FacetedSearch runs one search per requested facet value and returns a map
// keyed by facet value. Facet queries are independent; there is no
// cross-facet interaction.
func (s *Searcher) FacetedSearch(ctx context.Context, base *memory.Query, facets Facets, opts *Options) (map[string]*memory.SearchResult, error) {
	if base == nil {
		base = &memory.Query{}
	}

	out := make(map[string]*memory.SearchResult)

	for _, t := range facets.Types {
		q := *base
		q.Types = []memory.Type{t}
		result, err := s.Search(ctx, &q, opts)
		if err != nil {
			return nil, err
		}
		out["type:"+string(t)] = result
	}

	for _, tag := range facets.Tags {
		q := *base
		q.Tags = append(append([]string(nil), base.Tags...), tag)
		result, err := s.Search(ctx, &q, opts)
		if err != nil {
			return nil, err
		}
		out["tag:"+tag] = result
	}

	for _, level := range facets.ImportanceLevels {
		q := *base
		result, err := s.SearchByImportance(ctx, &q, level, opts)
		if err != nil {
			return nil, err
		}
		out["importance:"+string(level)] = result
	}

	for _, period := range facets.Periods {
		q := *base
		result, err := s.SearchTemporal(ctx, &q, period, nil, opts)
		if err != nil {
			return nil, err
		}
		out["period:"+string(period)] = result
	}

	return out, nil
}
