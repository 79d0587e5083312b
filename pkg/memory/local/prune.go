package local

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/corticalco/engram/pkg/eventstream"
	"github.com/corticalco/engram/pkg/memory"
)

// combinedAgeHorizon is the normalization horizon for the combined strategy.
const combinedAgeHorizon = 90 * 24 * time.Hour

// Prune deletes records per the criteria. Records whose type is preserved or
// whose tags intersect the preserve list are never deleted. Non-preserved
// records older than MaxAge or below MinImportance are deleted regardless of
// score; beyond that, the lowest-scoring records are deleted until the
// surviving count fits MaxMemories. DryRun computes the same result set
// without mutating the store.
func (d *Driver) Prune(ctx context.Context, criteria *memory.PruneCriteria) (*memory.PruneResult, error) {
	if criteria == nil {
		criteria = &memory.PruneCriteria{}
	}
	strategy := criteria.Strategy
	if strategy == "" {
		strategy = memory.PruneCombined
	}
	if !strategy.Valid() {
		err := memory.ValidationError{Field: "strategy", Reason: "unknown prune strategy"}
		d.emitError(ctx, "prune", err)
		return nil, err
	}

	now := time.Now()
	preserveTypes := make(map[memory.Type]struct{}, len(criteria.PreserveTypes))
	for _, t := range criteria.PreserveTypes {
		preserveTypes[t] = struct{}{}
	}
	preserveTags := make(map[string]struct{}, len(criteria.PreserveTags))
	for _, tag := range criteria.PreserveTags {
		preserveTags[tag] = struct{}{}
	}

	type candidate struct {
		record *memory.Record
		score  float64
	}

	d.mu.RLock()
	var scored []candidate
	var preserved int
	var candidateCount int
	for _, record := range d.records {
		if criteria.UserID != "" && record.UserID != criteria.UserID {
			continue
		}
		if criteria.AgentID != "" && record.AgentID != criteria.AgentID {
			continue
		}
		candidateCount++

		if isPreserved(record, preserveTypes, preserveTags) {
			preserved++
			continue
		}
		scored = append(scored, candidate{
			record: record,
			score:  pruneScore(strategy, record, now),
		})
	}
	d.mu.RUnlock()

	// Low score = pruned first.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score < scored[j].score
	})

	toDelete := make(map[string]*memory.Record)

	// Hard rules first: age and importance floors apply regardless of score.
	for _, c := range scored {
		if criteria.MaxAge > 0 && now.Sub(c.record.Timestamp) > criteria.MaxAge {
			toDelete[c.record.ID] = c.record
			continue
		}
		if criteria.MinImportance != nil && c.record.Importance < *criteria.MinImportance {
			toDelete[c.record.ID] = c.record
		}
	}

	// Then quota: keep deleting from the low-score end while the surviving
	// count exceeds MaxMemories.
	if criteria.MaxMemories > 0 {
		surviving := candidateCount - len(toDelete)
		for _, c := range scored {
			if surviving <= criteria.MaxMemories {
				break
			}
			if _, gone := toDelete[c.record.ID]; gone {
				continue
			}
			toDelete[c.record.ID] = c.record
			surviving--
		}
	}

	result := &memory.PruneResult{
		Preserved:  preserved,
		Strategy:   strategy,
		DeletedIDs: make([]string, 0, len(toDelete)),
	}
	for id, record := range toDelete {
		result.DeletedIDs = append(result.DeletedIDs, id)
		result.FreedSpace += record.EstimateSize()
	}
	sort.Strings(result.DeletedIDs)
	result.Deleted = len(result.DeletedIDs)

	if criteria.DryRun {
		return result, nil
	}

	d.mu.Lock()
	for id := range toDelete {
		record, ok := d.records[id]
		if !ok {
			continue
		}
		d.unindex(record)
		delete(d.records, id)
	}
	d.mu.Unlock()

	ev := eventstream.New(eventstream.EventTypeMemoryPruned)
	ev.Detail = map[string]string{
		"strategy": string(strategy),
		"deleted":  strconv.Itoa(result.Deleted),
	}
	d.emit(ctx, ev)

	return result, nil
}

func isPreserved(record *memory.Record, types map[memory.Type]struct{}, tags map[string]struct{}) bool {
	if _, ok := types[record.Type]; ok {
		return true
	}
	for _, tag := range record.Tags {
		if _, ok := tags[tag]; ok {
			return true
		}
	}
	return false
}

// pruneScore returns a retention score: the lowest-scoring records are
// deleted first. Each strategy orders deletion by, respectively, staleness
// (lru), access count (lfu), importance, age, or a weighted blend of
// normalized age over a 90-day horizon (30%), inverse importance (40%) and
// inverse access-count-plus-one (30%).
func pruneScore(strategy memory.PruneStrategy, record *memory.Record, now time.Time) float64 {
	switch strategy {
	case memory.PruneLRU:
		return -now.Sub(record.LastAccessed).Seconds()
	case memory.PruneLFU:
		return float64(record.AccessCount)
	case memory.PruneImportance:
		return record.Importance
	case memory.PruneAge:
		return -now.Sub(record.Timestamp).Seconds()
	case memory.PruneCombined:
		ageNorm := now.Sub(record.Timestamp).Seconds() / combinedAgeHorizon.Seconds()
		if ageNorm > 1 {
			ageNorm = 1
		}
		prunability := 0.3*ageNorm + 0.4*(1-record.Importance) + 0.3*(1/float64(record.AccessCount+1))
		return -prunability
	}
	return 0
}
