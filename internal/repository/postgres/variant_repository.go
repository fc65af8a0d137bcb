package postgres

import (
	"context"
	"errors"
	"fmt"

	"myContentLab/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VariantRepository struct {
	DB *gorm.DB
}

func NewVariantRepository(db *gorm.DB) *VariantRepository {
	return &VariantRepository{DB: db}
}

func (r *VariantRepository) FindByID(ctx context.Context, id uint) (domain.Variant, error) {
	if err := ctx.Err(); err != nil {
		return domain.Variant{}, fmt.Errorf("context error: %w", err)
	}

	var variant domain.Variant
	err := r.DB.WithContext(ctx).First(&variant, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Variant{}, domain.ErrNotFound
		}
		return domain.Variant{}, fmt.Errorf("failed to find variant: %w", err)
	}

	return variant, nil
}

func (r *VariantRepository) FindByExperiment(ctx context.Context, experimentID uint) ([]domain.Variant, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var variants []domain.Variant
	err := r.DB.WithContext(ctx).
		Where("experiment_id = ?", experimentID).
		Order("id").
		Find(&variants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find variants: %w", err)
	}

	return variants, nil
}

// FlushCounters applies buffered impression/click deltas atomically in
// one transaction. Deltas are additive updates, so re-applying a
// snapshot that previously failed mid-way cannot double-count rows the
// transaction rolled back.
func (r *VariantRepository) FlushCounters(ctx context.Context, impressions, clicks map[uint]int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for variantID, count := range impressions {
			if count == 0 {
				continue
			}
			err := tx.Model(&domain.Variant{}).
				Where("id = ?", variantID).
				UpdateColumn("impressions", gorm.Expr("impressions + ?", count)).Error
			if err != nil {
				return err
			}
		}
		for variantID, count := range clicks {
			if count == 0 {
				continue
			}
			err := tx.Model(&domain.Variant{}).
				Where("id = ?", variantID).
				UpdateColumn("clicks", gorm.Expr("clicks + ?", count)).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to flush counters: %w", err)
	}

	return nil
}

// RecordConversion increments the conversion count and appends revenue
// to the continuous metrics under a row lock. Conversions gate winner
// decisions, so unlike impressions they are never buffered.
func (r *VariantRepository) RecordConversion(ctx context.Context, variantID uint, revenue float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var variant domain.Variant
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&variant, variantID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		variant.AppendMetric(domain.MetricRevenue, revenue)
		variant.Conversions++
		return tx.Save(&variant).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to record conversion: %w", err)
	}

	return nil
}

// AppendContinuousMetric appends a value to an arbitrary named series
// under a row lock.
func (r *VariantRepository) AppendContinuousMetric(ctx context.Context, variantID uint, name string, value float64) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var variant domain.Variant
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&variant, variantID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		variant.AppendMetric(name, value)
		return tx.Save(&variant).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to append continuous metric: %w", err)
	}

	return nil
}

// SaveRates persists recomputed conversions/conversion_rate values.
func (r *VariantRepository) SaveRates(ctx context.Context, variants []domain.Variant) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range variants {
			err := tx.Model(&domain.Variant{}).
				Where("id = ?", variants[i].ID).
				Updates(map[string]any{
					"conversions":     variants[i].Conversions,
					"conversion_rate": variants[i].ConversionRate,
				}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save conversion rates: %w", err)
	}

	return nil
}
