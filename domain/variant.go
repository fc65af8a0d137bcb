package domain

import (
	"gorm.io/datatypes"
)

// MetricRevenue is the continuous metric series appended on every
// conversion; it drives revenue-per-visitor comparisons.
const MetricRevenue = "revenue"

// Variant is one candidate content version within an Experiment.
// Conversions never exceed impressions in computations; readers clamp.
type Variant struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	ExperimentID uint   `gorm:"column:experiment_id;not null;index" json:"experiment_id"`
	Description  string `gorm:"column:description;type:text;not null" json:"description"`
	IsControl    bool   `gorm:"column:is_control;default:false" json:"is_control"`

	Impressions    int     `gorm:"column:impressions;default:0" json:"impressions"`
	Clicks         int     `gorm:"column:clicks;default:0" json:"clicks"`
	Conversions    int     `gorm:"column:conversions;default:0" json:"conversions"`
	ConversionRate float64 `gorm:"column:conversion_rate;default:0" json:"conversion_rate"`

	TrafficAllocation float64 `gorm:"column:traffic_allocation;default:100" json:"traffic_allocation"`

	// ContinuousMetrics holds append-only value series keyed by metric
	// name, e.g. {"revenue": [12.5, 40.0]}.
	ContinuousMetrics datatypes.JSONType[map[string][]float64] `gorm:"column:continuous_metrics;type:jsonb" json:"continuous_metrics"`
}

func (Variant) TableName() string {
	return "variants"
}

// MetricSeries returns the named continuous metric series, never nil.
func (v *Variant) MetricSeries(name string) []float64 {
	metrics := v.ContinuousMetrics.Data()
	if metrics == nil {
		return []float64{}
	}
	return metrics[name]
}

// AppendMetric appends a value to the named series.
func (v *Variant) AppendMetric(name string, value float64) {
	metrics := v.ContinuousMetrics.Data()
	if metrics == nil {
		metrics = map[string][]float64{}
	}
	metrics[name] = append(metrics[name], value)
	v.ContinuousMetrics = datatypes.NewJSONType(metrics)
}
