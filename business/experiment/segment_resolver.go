package experiment

import (
	"context"
	"sync"

	"myContentLab/domain"
)

const (
	SegmentTypeReferral = "referral_source"
	SegmentTypeLocation = "location"

	defaultSegmentType  = "default"
	defaultSegmentValue = "default"
)

// SegmentContext is the visitor context attached to tracking and
// assignment requests.
type SegmentContext struct {
	Location       string `json:"location"`
	ReferralSource string `json:"referral_source"`
}

// Empty reports whether no dimension is set.
func (c SegmentContext) Empty() bool {
	return c.Location == "" && c.ReferralSource == ""
}

type segmentKey struct {
	segmentType string
	value       string
}

// pairs lists every dimension present in the context, referral source
// first. Visitors with no context fall into the default segment.
func (c SegmentContext) pairs() []segmentKey {
	if c.Empty() {
		return []segmentKey{{defaultSegmentType, defaultSegmentValue}}
	}
	keys := make([]segmentKey, 0, 2)
	if c.ReferralSource != "" {
		keys = append(keys, segmentKey{SegmentTypeReferral, c.ReferralSource})
	}
	if c.Location != "" {
		keys = append(keys, segmentKey{SegmentTypeLocation, c.Location})
	}
	return keys
}

// SegmentResolver maps visitor context to canonical Segment rows.
// Segments are immutable once created, so resolved rows are memoized
// for the process lifetime.
type SegmentResolver struct {
	repo SegmentRepository

	mu   sync.Mutex
	memo map[segmentKey]domain.Segment
}

func NewSegmentResolver(repo SegmentRepository) *SegmentResolver {
	return &SegmentResolver{
		repo: repo,
		memo: make(map[segmentKey]domain.Segment),
	}
}

// Resolve returns the single segment assignment decisions key on:
// referral source wins over location, and the default segment covers
// contextless visitors. Tracking writes use every dimension instead,
// via pairs.
func (r *SegmentResolver) Resolve(ctx context.Context, sc SegmentContext) (domain.Segment, error) {
	return r.resolveKey(ctx, sc.pairs()[0])
}

// resolveKey returns the segment row for one (type, value) pair,
// creating it on first sight.
func (r *SegmentResolver) resolveKey(ctx context.Context, key segmentKey) (domain.Segment, error) {
	r.mu.Lock()
	cached, ok := r.memo[key]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	segment, err := r.repo.GetOrCreate(ctx, key.segmentType, key.value)
	if err != nil {
		return domain.Segment{}, err
	}

	r.mu.Lock()
	r.memo[key] = segment
	r.mu.Unlock()

	return segment, nil
}
