package postgres

import (
	"context"
	"errors"
	"fmt"

	"myContentLab/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssignmentRepository struct {
	DB *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{DB: db}
}

// Get returns the sticky assignment for (user, experiment), if any.
func (r *AssignmentRepository) Get(ctx context.Context, userID, experimentID uint) (domain.VariantAssignment, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.VariantAssignment{}, false, fmt.Errorf("context error: %w", err)
	}

	var assignment domain.VariantAssignment
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND experiment_id = ?", userID, experimentID).
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.VariantAssignment{}, false, nil
	}
	if err != nil {
		return domain.VariantAssignment{}, false, fmt.Errorf("failed to find assignment: %w", err)
	}

	return assignment, true, nil
}

// Insert persists a sticky assignment with insert-if-absent semantics
// against the unique (user, experiment) index. Returns created=false
// when a concurrent writer's row already exists; that row is the
// source of truth and the caller should re-read it.
func (r *AssignmentRepository) Insert(ctx context.Context, assignment *domain.VariantAssignment) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	result := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "experiment_id"}},
		DoNothing: true,
	}).Create(assignment)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert assignment: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}
