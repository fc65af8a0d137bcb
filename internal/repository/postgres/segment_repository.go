package postgres

import (
	"context"
	"errors"
	"fmt"

	"myContentLab/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SegmentRepository struct {
	DB *gorm.DB
}

func NewSegmentRepository(db *gorm.DB) *SegmentRepository {
	return &SegmentRepository{DB: db}
}

// GetOrCreate returns the segment for (type, value), creating it if
// absent. Safe under concurrent callers: the insert is
// insert-if-absent against the unique (type, value) index, and a
// losing writer re-reads the winner's row.
func (r *SegmentRepository) GetOrCreate(ctx context.Context, segmentType, segmentValue string) (domain.Segment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Segment{}, fmt.Errorf("context error: %w", err)
	}

	var segment domain.Segment
	err := r.DB.WithContext(ctx).
		Where("type = ? AND value = ?", segmentType, segmentValue).
		First(&segment).Error
	if err == nil {
		return segment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Segment{}, fmt.Errorf("failed to query segment: %w", err)
	}

	segment = domain.Segment{Type: segmentType, Value: segmentValue}
	err = r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "type"}, {Name: "value"}},
		DoNothing: true,
	}).Create(&segment).Error
	if err != nil {
		return domain.Segment{}, fmt.Errorf("failed to create segment: %w", err)
	}

	if segment.ID == 0 {
		// Concurrent writer got there first; its row is authoritative.
		err = r.DB.WithContext(ctx).
			Where("type = ? AND value = ?", segmentType, segmentValue).
			First(&segment).Error
		if err != nil {
			return domain.Segment{}, fmt.Errorf("failed to re-read segment after conflict: %w", err)
		}
	}

	return segment, nil
}

func (r *SegmentRepository) FindByIDs(ctx context.Context, ids []uint) (map[uint]domain.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var segments []domain.Segment
	if len(ids) > 0 {
		if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&segments).Error; err != nil {
			return nil, fmt.Errorf("failed to find segments: %w", err)
		}
	}

	byID := make(map[uint]domain.Segment, len(segments))
	for _, s := range segments {
		byID[s.ID] = s
	}
	return byID, nil
}

// FindByExperiment returns every segment that has performance data for
// any variant of the experiment.
func (r *SegmentRepository) FindByExperiment(ctx context.Context, experimentID uint) ([]domain.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var segments []domain.Segment
	err := r.DB.WithContext(ctx).
		Distinct("segments.*").
		Joins("JOIN segment_performances ON segment_performances.segment_id = segments.id").
		Joins("JOIN variants ON variants.id = segment_performances.variant_id").
		Where("variants.experiment_id = ?", experimentID).
		Find(&segments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find segments for experiment: %w", err)
	}

	return segments, nil
}
