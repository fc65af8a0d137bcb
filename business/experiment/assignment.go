package experiment

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"myContentLab/business/stats"
	"myContentLab/domain"
	"myContentLab/pkg/logger"
	"myContentLab/pkg/metrics"
)

// GetAssignedVariant resolves which variant the visitor should see.
//
// Policy, in order:
//   - non-RUNNING experiments serve stable content: the active variant
//     if one is set, otherwise the control;
//   - visitors with segment context get a segment-scoped bandit pick,
//     personalized per request;
//   - MAB_TEST experiments without context re-run the global selection
//     policy on every view;
//   - AB_TEST experiments without context get a sticky assignment.
func (s *ExperimentService) GetAssignedVariant(ctx context.Context, userID, experimentID uint, sc SegmentContext) (domain.Variant, error) {
	experiment, err := s.experimentRepo.FindByID(ctx, experimentID)
	if err != nil {
		return domain.Variant{}, err
	}

	variants, err := s.variantRepo.FindByExperiment(ctx, experimentID)
	if err != nil {
		return domain.Variant{}, err
	}
	if len(variants) == 0 {
		return domain.Variant{}, domain.ErrNotFound
	}

	if experiment.Status != domain.StatusRunning {
		return stableVariant(experiment, variants), nil
	}

	if !sc.Empty() {
		return s.assignVariantForSegment(ctx, variants, sc)
	}

	if experiment.TestType == domain.TypeMABTest {
		return variants[s.selectVariant(variants)], nil
	}

	return s.assignUserToVariant(ctx, userID, experimentID, variants)
}

// stableVariant is what a visitor sees when the test is not live.
func stableVariant(experiment domain.Experiment, variants []domain.Variant) domain.Variant {
	if experiment.ActiveVariantID != nil {
		for _, v := range variants {
			if v.ID == *experiment.ActiveVariantID {
				return v
			}
		}
	}
	for _, v := range variants {
		if v.IsControl {
			return v
		}
	}
	return variants[0]
}

// assignUserToVariant returns the visitor's sticky variant, selecting
// and persisting one on first contact. Concurrent first contacts race
// on the unique (user, experiment) index; the loser re-reads the
// winner's row so both requests return the same variant.
func (s *ExperimentService) assignUserToVariant(ctx context.Context, userID, experimentID uint, variants []domain.Variant) (domain.Variant, error) {
	existing, found, err := s.assignmentRepo.Get(ctx, userID, experimentID)
	if err != nil {
		return domain.Variant{}, err
	}
	if found {
		return variantByID(variants, existing.VariantID)
	}

	retries := s.engine.AssignmentRetries
	if retries <= 0 {
		retries = 1
	}

	for attempt := 0; attempt < retries; attempt++ {
		picked := variants[s.selectVariant(variants)]

		assignment := domain.VariantAssignment{
			UserID:       userID,
			ExperimentID: experimentID,
			VariantID:    picked.ID,
			AssignedAt:   time.Now().UTC(),
		}
		created, err := s.assignmentRepo.Insert(ctx, &assignment)
		if err != nil {
			return domain.Variant{}, err
		}
		if created {
			return picked, nil
		}

		metrics.AssignmentConflictRetries.Inc()
		existing, found, err = s.assignmentRepo.Get(ctx, userID, experimentID)
		if err != nil {
			return domain.Variant{}, err
		}
		if found {
			return variantByID(variants, existing.VariantID)
		}
		// Row vanished between the conflicting insert and the re-read;
		// loop and pick again.
		logger.Warn("assignment conflict without surviving row",
			"user_id", userID, "experiment_id", experimentID, "attempt", attempt+1)
	}

	return domain.Variant{}, fmt.Errorf("%w: could not settle assignment for user %d in experiment %d",
		domain.ErrConflictExhausted, userID, experimentID)
}

// assignVariantForSegment picks per request using the visitor's
// segment-scoped counters: weighted random while the segment is still
// warming up, Thompson Sampling afterwards.
func (s *ExperimentService) assignVariantForSegment(ctx context.Context, variants []domain.Variant, sc SegmentContext) (domain.Variant, error) {
	segment, err := s.segments.Resolve(ctx, sc)
	if err != nil {
		return domain.Variant{}, err
	}

	ids := make([]uint, len(variants))
	for i, v := range variants {
		ids[i] = v.ID
	}

	total, err := s.perfRepo.SumImpressions(ctx, ids, segment.ID)
	if err != nil {
		return domain.Variant{}, err
	}
	if total < s.engine.SegmentExplorationBudget {
		return variants[weightedRandom(variants)], nil
	}

	best, bestSample := 0, -1.0
	for i, v := range variants {
		perf, found, err := s.perfRepo.Find(ctx, v.ID, segment.ID)
		if err != nil {
			return domain.Variant{}, err
		}
		impressions, conversions := 0, 0
		if found {
			impressions, conversions = perf.Impressions, perf.Conversions
		}
		if sample := stats.SampleBeta(conversions, impressions); sample > bestSample {
			best, bestSample = i, sample
		}
	}

	return variants[best], nil
}

// selectVariant is the global selection policy: weighted random while
// the experiment is under its exploration budget, Thompson Sampling
// afterwards.
func (s *ExperimentService) selectVariant(variants []domain.Variant) int {
	total := 0
	for _, v := range variants {
		total += v.Impressions
	}
	if total < s.engine.ExplorationBudget {
		return weightedRandom(variants)
	}
	return s.thompsonPick(variants)
}

// thompsonPick samples each variant's posterior conversion rate and
// returns the index of the highest draw.
func (s *ExperimentService) thompsonPick(variants []domain.Variant) int {
	best, bestSample := 0, -1.0
	for i, v := range variants {
		if sample := stats.SampleBeta(v.Conversions, v.Impressions); sample > bestSample {
			best, bestSample = i, sample
		}
	}
	return best
}

// weightedRandom draws an index proportional to traffic allocation,
// uniformly when every weight is zero.
func weightedRandom(variants []domain.Variant) int {
	total := 0.0
	for _, v := range variants {
		if v.TrafficAllocation > 0 {
			total += v.TrafficAllocation
		}
	}
	if total == 0 {
		return rand.Intn(len(variants))
	}

	draw := rand.Float64() * total
	for i, v := range variants {
		if v.TrafficAllocation <= 0 {
			continue
		}
		draw -= v.TrafficAllocation
		if draw < 0 {
			return i
		}
	}
	return len(variants) - 1
}

func variantByID(variants []domain.Variant, id uint) (domain.Variant, error) {
	for _, v := range variants {
		if v.ID == id {
			return v, nil
		}
	}
	return domain.Variant{}, domain.ErrNotFound
}
