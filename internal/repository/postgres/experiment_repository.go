package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"myContentLab/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExperimentRepository struct {
	DB *gorm.DB
}

func NewExperimentRepository(db *gorm.DB) *ExperimentRepository {
	return &ExperimentRepository{DB: db}
}

// Create persists an experiment together with its variants in one
// transaction.
func (r *ExperimentRepository) Create(ctx context.Context, experiment *domain.Experiment, variants []domain.Variant) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(experiment).Error; err != nil {
			return err
		}
		for i := range variants {
			variants[i].ExperimentID = experiment.ID
		}
		if len(variants) > 0 {
			if err := tx.Create(&variants).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create experiment: %w", err)
	}

	return nil
}

func (r *ExperimentRepository) FindByID(ctx context.Context, id uint) (domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Experiment{}, fmt.Errorf("context error: %w", err)
	}

	var experiment domain.Experiment
	err := r.DB.WithContext(ctx).First(&experiment, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Experiment{}, domain.ErrNotFound
		}
		return domain.Experiment{}, fmt.Errorf("failed to find experiment: %w", err)
	}

	return experiment, nil
}

func (r *ExperimentRepository) FindAll(ctx context.Context) ([]domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var experiments []domain.Experiment
	if err := r.DB.WithContext(ctx).Find(&experiments).Error; err != nil {
		return nil, fmt.Errorf("failed to find experiments: %w", err)
	}

	return experiments, nil
}

func (r *ExperimentRepository) FindByTenant(ctx context.Context, tenantID uint) ([]domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var experiments []domain.Experiment
	err := r.DB.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Find(&experiments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find experiments for tenant: %w", err)
	}

	return experiments, nil
}

func (r *ExperimentRepository) Save(ctx context.Context, experiment *domain.Experiment) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if err := r.DB.WithContext(ctx).Save(experiment).Error; err != nil {
		return fmt.Errorf("failed to save experiment: %w", err)
	}

	return nil
}

// UpdateStatus transitions an experiment's status after re-checking,
// under a row lock, that the current status is one of the allowed
// source states. Returns ErrInvalidState when the transition is not
// permitted.
func (r *ExperimentRepository) UpdateStatus(ctx context.Context, id uint, to domain.ExperimentStatus, from ...domain.ExperimentStatus) (domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Experiment{}, fmt.Errorf("context error: %w", err)
	}

	var experiment domain.Experiment
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&experiment, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		if len(from) > 0 {
			allowed := false
			for _, s := range from {
				if experiment.Status == s {
					allowed = true
					break
				}
			}
			if !allowed {
				return fmt.Errorf("%w: cannot move %s experiment to %s",
					domain.ErrInvalidState, experiment.Status, to)
			}
		}

		experiment.Status = to
		return tx.Save(&experiment).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidState) {
			return domain.Experiment{}, err
		}
		return domain.Experiment{}, fmt.Errorf("failed to update experiment status: %w", err)
	}

	return experiment, nil
}

// Conclude marks the experiment CONCLUDED with its winner in one
// transaction. The winning variant must belong to the experiment and
// the experiment must not already be terminal.
func (r *ExperimentRepository) Conclude(ctx context.Context, experimentID, winnerVariantID uint, endTime time.Time) (domain.Experiment, domain.Variant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Experiment{}, domain.Variant{}, fmt.Errorf("context error: %w", err)
	}

	var experiment domain.Experiment
	var winner domain.Variant

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&experiment, experimentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		if experiment.Status.Terminal() {
			return fmt.Errorf("%w: experiment %d already concluded",
				domain.ErrInvalidState, experimentID)
		}

		err = tx.First(&winner, winnerVariantID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && winner.ExperimentID != experimentID) {
			return fmt.Errorf("%w: variant %d does not belong to experiment %d",
				domain.ErrInvalidState, winnerVariantID, experimentID)
		}
		if err != nil {
			return err
		}

		experiment.Status = domain.StatusConcluded
		experiment.WinnerVariantID = &winner.ID
		experiment.ActiveVariantID = &winner.ID
		experiment.EndTime = &endTime
		return tx.Save(&experiment).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidState) {
			return domain.Experiment{}, domain.Variant{}, err
		}
		return domain.Experiment{}, domain.Variant{}, fmt.Errorf("failed to conclude experiment: %w", err)
	}

	return experiment, winner, nil
}

// FindDueDrafts returns DRAFT experiments whose start time has passed.
func (r *ExperimentRepository) FindDueDrafts(ctx context.Context, now time.Time) ([]domain.Experiment, error) {
	return r.findByStatusAndTime(ctx, domain.StatusDraft, "start_time <= ?", now)
}

// FindExpiredRunning returns RUNNING experiments whose end time has
// passed.
func (r *ExperimentRepository) FindExpiredRunning(ctx context.Context, now time.Time) ([]domain.Experiment, error) {
	return r.findByStatusAndTime(ctx, domain.StatusRunning, "end_time <= ?", now)
}

func (r *ExperimentRepository) findByStatusAndTime(ctx context.Context, status domain.ExperimentStatus, timeCond string, now time.Time) ([]domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var experiments []domain.Experiment
	err := r.DB.WithContext(ctx).
		Where("status = ?", status).
		Where(timeCond, now).
		Find(&experiments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find %s experiments: %w", status, err)
	}

	return experiments, nil
}

func (r *ExperimentRepository) FindRunning(ctx context.Context) ([]domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var experiments []domain.Experiment
	err := r.DB.WithContext(ctx).
		Where("status = ?", domain.StatusRunning).
		Find(&experiments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find running experiments: %w", err)
	}

	return experiments, nil
}

// FindAutoOptimize returns auto-optimize experiments in any of the
// given statuses.
func (r *ExperimentRepository) FindAutoOptimize(ctx context.Context, statuses ...domain.ExperimentStatus) ([]domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var experiments []domain.Experiment
	err := r.DB.WithContext(ctx).
		Where("auto_optimize = ?", true).
		Where("status IN ?", statuses).
		Find(&experiments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find auto-optimize experiments: %w", err)
	}

	return experiments, nil
}

// Delete removes the experiment and cascades to its variants, their
// segment performance rows and sticky assignments.
func (r *ExperimentRepository) Delete(ctx context.Context, id uint) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var variantIDs []uint
		if err := tx.Model(&domain.Variant{}).
			Where("experiment_id = ?", id).
			Pluck("id", &variantIDs).Error; err != nil {
			return err
		}

		if len(variantIDs) > 0 {
			if err := tx.Where("variant_id IN ?", variantIDs).
				Delete(&domain.SegmentPerformance{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("experiment_id = ?", id).
			Delete(&domain.VariantAssignment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("experiment_id = ?", id).
			Delete(&domain.Variant{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&domain.Experiment{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete experiment: %w", err)
	}

	return nil
}
