package domain

import (
	"time"
)

type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "DRAFT"
	StatusRunning   ExperimentStatus = "RUNNING"
	StatusPaused    ExperimentStatus = "PAUSED"
	StatusFinished  ExperimentStatus = "FINISHED"
	StatusConcluded ExperimentStatus = "CONCLUDED"
)

// Terminal reports whether no further status transition is allowed.
func (s ExperimentStatus) Terminal() bool {
	return s == StatusConcluded
}

type ExperimentType string

const (
	// TypeABTest is the classic sticky-assignment test.
	TypeABTest ExperimentType = "AB_TEST"
	// TypeMABTest re-samples the bandit on every view; personalization,
	// not stickiness, is the goal for this mode.
	TypeMABTest ExperimentType = "MAB_TEST"
)

// Experiment is one running content test on one product.
type Experiment struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	TenantID    uint             `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	ProductRef  string           `gorm:"column:product_ref;not null" json:"product_ref"`
	Name        string           `gorm:"column:name;not null" json:"name"`
	Description string           `gorm:"column:description;type:text" json:"description"`
	TestType    ExperimentType   `gorm:"column:test_type;not null;default:AB_TEST" json:"test_type"`
	Status      ExperimentStatus `gorm:"column:status;not null;default:DRAFT;index" json:"status"`

	StartTime *time.Time `gorm:"column:start_time" json:"start_time"`
	EndTime   *time.Time `gorm:"column:end_time" json:"end_time"`

	// ActiveVariantID is the variant currently published to the
	// storefront; WinnerVariantID is set exactly once, on conclusion.
	ActiveVariantID *uint `gorm:"column:active_variant_id" json:"active_variant_id"`
	WinnerVariantID *uint `gorm:"column:winner_variant_id" json:"winner_variant_id"`

	AutoOptimize             bool   `gorm:"column:auto_optimize;default:false" json:"auto_optimize"`
	AutoOptimizeCooldownDays int    `gorm:"column:auto_optimize_cooldown_days;default:7" json:"auto_optimize_cooldown_days"`
	GoalMetric               string `gorm:"column:goal_metric;default:conversion_rate" json:"goal_metric"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Experiment) TableName() string {
	return "experiments"
}
