package experiment

import (
	"context"
	"sync"
	"time"

	"myContentLab/pkg/logger"
	"myContentLab/pkg/metrics"
)

// MetricsBuffer accumulates impression and click deltas in memory so
// high-volume tracking endpoints never write a counter row per event.
// Conversions are deliberately not buffered; they gate winner
// decisions and go straight to the database.
type MetricsBuffer struct {
	mu          sync.Mutex
	impressions map[uint]int
	clicks      map[uint]int
}

func NewMetricsBuffer() *MetricsBuffer {
	return &MetricsBuffer{
		impressions: make(map[uint]int),
		clicks:      make(map[uint]int),
	}
}

func (b *MetricsBuffer) RecordImpression(variantID uint) {
	b.mu.Lock()
	b.impressions[variantID]++
	b.mu.Unlock()
}

func (b *MetricsBuffer) RecordClick(variantID uint) {
	b.mu.Lock()
	b.clicks[variantID]++
	b.mu.Unlock()
}

// Pending returns the number of buffered deltas.
func (b *MetricsBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, n := range b.impressions {
		total += n
	}
	for _, n := range b.clicks {
		total += n
	}
	return total
}

// drain atomically snapshots and clears the buffer.
func (b *MetricsBuffer) drain() (map[uint]int, map[uint]int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	impressions, clicks := b.impressions, b.clicks
	b.impressions = make(map[uint]int)
	b.clicks = make(map[uint]int)
	return impressions, clicks
}

// merge folds a snapshot back in, preserving events recorded since the
// snapshot was taken.
func (b *MetricsBuffer) merge(impressions, clicks map[uint]int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, n := range impressions {
		b.impressions[id] += n
	}
	for id, n := range clicks {
		b.clicks[id] += n
	}
}

// FlushMetrics writes all buffered deltas to the database in one
// transaction. On failure the snapshot is merged back so no event is
// lost; the write is additive, so a retry cannot double-count.
func (s *ExperimentService) FlushMetrics(ctx context.Context) error {
	impressions, clicks := s.buffer.drain()
	if len(impressions) == 0 && len(clicks) == 0 {
		return nil
	}

	start := time.Now()
	if err := s.variantRepo.FlushCounters(ctx, impressions, clicks); err != nil {
		s.buffer.merge(impressions, clicks)
		return err
	}
	metrics.FlushLatency.Observe(time.Since(start).Seconds())

	flushed := 0
	for _, n := range impressions {
		flushed += n
	}
	for _, n := range clicks {
		flushed += n
	}
	metrics.MetricsFlushedTotal.Add(float64(flushed))

	logger.Debug("metrics buffer flushed", "deltas", flushed)
	return nil
}
