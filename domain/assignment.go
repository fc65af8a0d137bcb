package domain

import "time"

// VariantAssignment is the sticky (user, experiment) -> variant row.
// At most one exists per pair; later lookups must return the original
// variant.
type VariantAssignment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"column:user_id;not null;uniqueIndex:idx_user_experiment" json:"user_id"`
	ExperimentID uint      `gorm:"column:experiment_id;not null;uniqueIndex:idx_user_experiment" json:"experiment_id"`
	VariantID    uint      `gorm:"column:variant_id;not null" json:"variant_id"`
	AssignedAt   time.Time `gorm:"column:assigned_at;autoCreateTime" json:"assigned_at"`
}

func (VariantAssignment) TableName() string {
	return "variant_assignments"
}
