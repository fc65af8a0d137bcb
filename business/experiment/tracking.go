package experiment

import (
	"context"

	"myContentLab/domain"
	"myContentLab/pkg/logger"
	"myContentLab/pkg/metrics"
)

// TrackImpression buffers an impression for the variant and updates
// the counters of every segment dimension in the visitor's context.
// Segment write failures are logged and never fail the event; the
// buffered global counter is the source of truth for totals.
func (s *ExperimentService) TrackImpression(ctx context.Context, variantID uint, sc SegmentContext) error {
	if _, err := s.variantRepo.FindByID(ctx, variantID); err != nil {
		return err
	}

	s.buffer.RecordImpression(variantID)
	metrics.TrackingEventsTotal.WithLabelValues("impression").Inc()

	s.updateSegments(ctx, "impression", variantID, sc, func(segmentID uint) error {
		return s.perfRepo.AddImpression(ctx, variantID, segmentID)
	})
	return nil
}

// updateSegments applies one counter update per segment dimension in
// the visitor's context. A failure on one dimension is logged and does
// not block the others.
func (s *ExperimentService) updateSegments(ctx context.Context, event string, variantID uint, sc SegmentContext, update func(segmentID uint) error) {
	for _, key := range sc.pairs() {
		segment, err := s.segments.resolveKey(ctx, key)
		if err != nil {
			logger.Error("failed to resolve segment for "+event,
				"variant_id", variantID, "segment_type", key.segmentType,
				"segment_value", key.value, "error", err)
			continue
		}
		if err := update(segment.ID); err != nil {
			logger.Error("failed to record segment "+event,
				"variant_id", variantID, "segment_id", segment.ID, "error", err)
		}
	}
}

// TrackClick buffers a click for the variant.
func (s *ExperimentService) TrackClick(ctx context.Context, variantID uint) error {
	if _, err := s.variantRepo.FindByID(ctx, variantID); err != nil {
		return err
	}

	s.buffer.RecordClick(variantID)
	metrics.TrackingEventsTotal.WithLabelValues("click").Inc()
	return nil
}

// TrackConversion writes a conversion straight through to the
// database, appending its revenue to the variant's continuous metrics
// and to the counters of every segment dimension in the visitor's
// context.
func (s *ExperimentService) TrackConversion(ctx context.Context, variantID uint, revenue float64, sc SegmentContext) error {
	if err := s.variantRepo.RecordConversion(ctx, variantID, revenue); err != nil {
		return err
	}
	metrics.TrackingEventsTotal.WithLabelValues("conversion").Inc()

	s.updateSegments(ctx, "conversion", variantID, sc, func(segmentID uint) error {
		return s.perfRepo.AddConversion(ctx, variantID, segmentID, revenue)
	})
	return nil
}

// RecordContinuousMetric appends a value to an arbitrary named series
// on the variant, e.g. order value or time on page.
func (s *ExperimentService) RecordContinuousMetric(ctx context.Context, variantID uint, name string, value float64) error {
	if name == "" || name == domain.MetricRevenue {
		return s.variantRepo.AppendContinuousMetric(ctx, variantID, domain.MetricRevenue, value)
	}
	return s.variantRepo.AppendContinuousMetric(ctx, variantID, name, value)
}
