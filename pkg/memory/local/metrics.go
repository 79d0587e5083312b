package local

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/corticalco/engram/pkg/memory"
)

// latencyWindowCap bounds each rolling latency window to the most recent
// samples; older samples fall off FIFO.
const latencyWindowCap = 1000

// latencyWindow is a bounded FIFO of duration samples with its own lock so
// metric recording never contends with table access.
type latencyWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	filled  bool
}

func newLatencyWindow(capacity int) *latencyWindow {
	return &latencyWindow{samples: make([]time.Duration, 0, capacity)}
}

func (w *latencyWindow) record(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.samples) < cap(w.samples) {
		w.samples = append(w.samples, d)
		return
	}

	// Overwrite the oldest sample.
	w.samples[w.next] = d
	w.next = (w.next + 1) % cap(w.samples)
	w.filled = true
}

func (w *latencyWindow) stats() memory.LatencyStats {
	w.mu.Lock()
	snapshot := make([]time.Duration, len(w.samples))
	copy(snapshot, w.samples)
	w.mu.Unlock()

	if len(snapshot) == 0 {
		return memory.LatencyStats{}
	}

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i] < snapshot[j] })

	var total time.Duration
	for _, d := range snapshot {
		total += d
	}

	return memory.LatencyStats{
		P50:     percentile(snapshot, 50),
		P90:     percentile(snapshot, 90),
		P95:     percentile(snapshot, 95),
		P99:     percentile(snapshot, 99),
		Avg:     total / time.Duration(len(snapshot)),
		Min:     snapshot[0],
		Max:     snapshot[len(snapshot)-1],
		Samples: len(snapshot),
	}
}

func (w *latencyWindow) avg() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range w.samples {
		total += d
	}
	return total / time.Duration(len(w.samples))
}

// percentile returns the nearest-rank percentile of sorted samples.
func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Metrics reports latency percentiles for store and retrieve operations over
// their rolling windows, plus storage efficiency figures.
func (d *Driver) Metrics(_ context.Context) (*memory.PerformanceMetrics, error) {
	d.mu.RLock()
	total := len(d.records)
	var totalBytes int64
	bytesPerUser := make(map[string]int64)
	for _, record := range d.records {
		size := record.EstimateSize()
		totalBytes += size
		bytesPerUser[record.UserID] += size
	}
	d.mu.RUnlock()

	metrics := &memory.PerformanceMetrics{
		Store:    d.storeLatency.stats(),
		Retrieve: d.retrieveLatency.stats(),
		// Records are stored uncompressed in process memory.
		CompressionRatio: 1.0,
		BytesPerUser:     bytesPerUser,
	}
	if total > 0 {
		metrics.AvgBytesPerRecord = float64(totalBytes) / float64(total)
	}

	return metrics, nil
}
