package postgres

import (
	"context"
	"errors"
	"fmt"

	"myContentLab/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SegmentPerformanceRepository struct {
	DB *gorm.DB
}

func NewSegmentPerformanceRepository(db *gorm.DB) *SegmentPerformanceRepository {
	return &SegmentPerformanceRepository{DB: db}
}

func (r *SegmentPerformanceRepository) Find(ctx context.Context, variantID, segmentID uint) (domain.SegmentPerformance, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.SegmentPerformance{}, false, fmt.Errorf("context error: %w", err)
	}

	var perf domain.SegmentPerformance
	err := r.DB.WithContext(ctx).
		Where("variant_id = ? AND segment_id = ?", variantID, segmentID).
		First(&perf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.SegmentPerformance{}, false, nil
	}
	if err != nil {
		return domain.SegmentPerformance{}, false, fmt.Errorf("failed to find segment performance: %w", err)
	}

	return perf, true, nil
}

// SumImpressions totals segment-scoped impressions across the given
// variants, the warm-up gate for segment-scoped assignment.
func (r *SegmentPerformanceRepository) SumImpressions(ctx context.Context, variantIDs []uint, segmentID uint) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error: %w", err)
	}
	if len(variantIDs) == 0 {
		return 0, nil
	}

	var total int64
	err := r.DB.WithContext(ctx).
		Model(&domain.SegmentPerformance{}).
		Where("variant_id IN ? AND segment_id = ?", variantIDs, segmentID).
		Select("COALESCE(SUM(impressions), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum segment impressions: %w", err)
	}

	return int(total), nil
}

func (r *SegmentPerformanceRepository) ListByVariant(ctx context.Context, variantID uint) ([]domain.SegmentPerformance, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var perfs []domain.SegmentPerformance
	err := r.DB.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Find(&perfs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list segment performances: %w", err)
	}

	return perfs, nil
}

// ListForSegment returns the performance rows of every variant of the
// experiment within one segment, filtered to rows with at least
// minImpressions.
func (r *SegmentPerformanceRepository) ListForSegment(ctx context.Context, experimentID, segmentID uint, minImpressions int) ([]domain.SegmentPerformance, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var perfs []domain.SegmentPerformance
	err := r.DB.WithContext(ctx).
		Joins("JOIN variants ON variants.id = segment_performances.variant_id").
		Where("segment_performances.segment_id = ?", segmentID).
		Where("variants.experiment_id = ?", experimentID).
		Where("segment_performances.impressions >= ?", minImpressions).
		Find(&perfs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list segment performances for segment: %w", err)
	}

	return perfs, nil
}

// AddImpression increments the segment-scoped impression counter under
// a row lock, creating the row on first contact.
func (r *SegmentPerformanceRepository) AddImpression(ctx context.Context, variantID, segmentID uint) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var perf domain.SegmentPerformance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("variant_id = ? AND segment_id = ?", variantID, segmentID).
			First(&perf).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			perf = domain.SegmentPerformance{
				VariantID:   variantID,
				SegmentID:   segmentID,
				Impressions: 1,
			}
			return tx.Create(&perf).Error
		}
		if err != nil {
			return err
		}

		return tx.Model(&perf).
			UpdateColumn("impressions", gorm.Expr("impressions + 1")).Error
	})
	if err != nil {
		return fmt.Errorf("failed to add segment impression: %w", err)
	}

	return nil
}

// AddConversion increments the segment-scoped conversion counter and
// appends revenue under a row lock, creating the row on first contact.
func (r *SegmentPerformanceRepository) AddConversion(ctx context.Context, variantID, segmentID uint, revenue float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var perf domain.SegmentPerformance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("variant_id = ? AND segment_id = ?", variantID, segmentID).
			First(&perf).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			perf = domain.SegmentPerformance{
				VariantID:   variantID,
				SegmentID:   segmentID,
				Impressions: 1,
				Conversions: 1,
				RevenueData: []float64{revenue},
			}
			return tx.Create(&perf).Error
		}
		if err != nil {
			return err
		}

		perf.Conversions++
		perf.RevenueData = append(perf.RevenueData, revenue)
		return tx.Save(&perf).Error
	})
	if err != nil {
		return fmt.Errorf("failed to add segment conversion: %w", err)
	}

	return nil
}
