package local

import (
	"context"
	"fmt"
	"time"

	"github.com/corticalco/engram/pkg/memory"
)

// Health reports record counts, estimated storage against the configured
// limit, average search latency and an accuracy estimate, with graded issues
// for anything out of band.
func (d *Driver) Health(_ context.Context) (*memory.Health, error) {
	now := time.Now()

	d.mu.RLock()
	total := len(d.records)
	var totalBytes int64
	var embedded, expired int
	for _, record := range d.records {
		totalBytes += record.EstimateSize()
		if record.Embedding != nil {
			embedded++
		}
		if record.Expired(now) {
			expired++
		}
	}
	d.mu.RUnlock()

	utilization := float64(totalBytes) / float64(d.config.StorageLimit) * 100
	avgSearch := d.searchLatency.avg()

	// Recall quality degrades with records that can't participate in
	// similarity search; scale the estimate by embedding coverage.
	accuracy := 1.0
	if total > 0 {
		accuracy = 0.5 + 0.5*float64(embedded)/float64(total)
	}

	health := &memory.Health{
		TotalRecords:       total,
		StorageBytes:       totalBytes,
		UtilizationPercent: utilization,
		AvgSearchLatency:   avgSearch,
		AccuracyEstimate:   accuracy,
	}

	switch {
	case utilization > 90:
		health.Issues = append(health.Issues, memory.HealthIssue{
			Severity:       memory.SeverityCritical,
			Description:    fmt.Sprintf("storage utilization at %.1f%%", utilization),
			Recommendation: "prune low-importance memories or raise the storage limit",
		})
	case utilization > 75:
		health.Issues = append(health.Issues, memory.HealthIssue{
			Severity:       memory.SeverityMedium,
			Description:    fmt.Sprintf("storage utilization at %.1f%%", utilization),
			Recommendation: "schedule a prune pass before utilization becomes critical",
		})
	}

	if avgSearch > d.config.SearchLatencyThreshold {
		health.Issues = append(health.Issues, memory.HealthIssue{
			Severity:       memory.SeverityMedium,
			Description:    fmt.Sprintf("average search latency %s exceeds threshold %s", avgSearch, d.config.SearchLatencyThreshold),
			Recommendation: "reduce the candidate set with tighter filters or prune stale records",
		})
	}

	if accuracy < 0.9 {
		health.Issues = append(health.Issues, memory.HealthIssue{
			Severity:       memory.SeverityLow,
			Description:    fmt.Sprintf("accuracy estimate %.2f below 0.90", accuracy),
			Recommendation: "re-embed records stored without embeddings",
		})
	}

	if expired > 0 {
		health.Issues = append(health.Issues, memory.HealthIssue{
			Severity:       memory.SeverityLow,
			Description:    fmt.Sprintf("%d expired records awaiting compaction", expired),
			Recommendation: "run a prune pass to reclaim their space",
		})
	}

	return health, nil
}
