package domain

import (
	"gorm.io/datatypes"
)

// Segment is a canonical (type, value) visitor bucket, e.g.
// (location, "US"). Shared across experiments and never mutated after
// creation.
type Segment struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Type  string `gorm:"column:type;not null;uniqueIndex:idx_segment_type_value" json:"type"`
	Value string `gorm:"column:value;not null;uniqueIndex:idx_segment_type_value" json:"value"`
}

func (Segment) TableName() string {
	return "segments"
}

// SegmentPerformance accumulates per-segment counters for one variant.
// Created on the first event for the (variant, segment) pair, mutated
// additively afterwards.
type SegmentPerformance struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	VariantID   uint `gorm:"column:variant_id;not null;uniqueIndex:idx_variant_segment" json:"variant_id"`
	SegmentID   uint `gorm:"column:segment_id;not null;uniqueIndex:idx_variant_segment" json:"segment_id"`
	Impressions int  `gorm:"column:impressions;default:0" json:"impressions"`
	Conversions int  `gorm:"column:conversions;default:0" json:"conversions"`

	RevenueData datatypes.JSONSlice[float64] `gorm:"column:revenue_data;type:jsonb" json:"revenue_data"`
}

func (SegmentPerformance) TableName() string {
	return "segment_performances"
}

// RevenuePerVisitor is the ranking key for per-segment winner checks.
func (p *SegmentPerformance) RevenuePerVisitor() float64 {
	if p.Impressions == 0 || len(p.RevenueData) == 0 {
		return 0
	}
	total := 0.0
	for _, r := range p.RevenueData {
		total += r
	}
	return total / float64(p.Impressions)
}
