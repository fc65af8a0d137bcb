package experiment

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"myContentLab/domain"
	"myContentLab/pkg/logger"
)

// AutoOptimizeCycle advances every auto-optimize experiment one step:
// RUNNING experiments get a winner check, CONCLUDED experiments past
// their cooldown get a successor experiment seeded with generated
// challengers. One experiment's failure never blocks the others.
func (s *ExperimentService) AutoOptimizeCycle(ctx context.Context) error {
	running, err := s.experimentRepo.FindAutoOptimize(ctx, domain.StatusRunning)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, e := range running {
		g.Go(func() error {
			if _, err := s.CheckAndDeclareWinner(gctx, e.ID); err != nil {
				logger.Error("auto-optimize winner check failed",
					"experiment_id", e.ID, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	concluded, err := s.experimentRepo.FindAutoOptimize(ctx, domain.StatusConcluded)
	if err != nil {
		return err
	}
	for _, e := range concluded {
		if err := s.spawnSuccessor(ctx, e); err != nil {
			logger.Error("failed to spawn successor experiment",
				"experiment_id", e.ID, "error", err)
		}
	}

	return nil
}

// spawnSuccessor creates and starts the next-generation experiment for
// a concluded auto-optimize experiment: the winning variant becomes
// the new control and the suggestion service supplies challengers.
// Challenger generation failures abort cleanly, leaving the concluded
// experiment untouched for the next cycle.
func (s *ExperimentService) spawnSuccessor(ctx context.Context, predecessor domain.Experiment) error {
	if predecessor.WinnerVariantID == nil {
		return nil
	}
	if predecessor.EndTime == nil {
		return nil
	}
	cooldown := time.Duration(predecessor.AutoOptimizeCooldownDays) * 24 * time.Hour
	if time.Now().UTC().Before(predecessor.EndTime.Add(cooldown)) {
		return nil
	}

	champion, err := s.variantRepo.FindByID(ctx, *predecessor.WinnerVariantID)
	if err != nil {
		return fmt.Errorf("failed to load champion variant: %w", err)
	}

	attrs, err := s.storefront.GetProductAttributes(ctx, predecessor.ProductRef)
	if err != nil {
		return fmt.Errorf("failed to fetch product attributes: %w", err)
	}

	challengers, err := s.suggestions.SuggestVariants(ctx,
		champion.Description, attrs.Title, attrs.Tags, s.engine.ChallengerCount)
	if err != nil {
		return fmt.Errorf("failed to generate challengers: %w", err)
	}

	newVariants := make([]NewVariant, 0, len(challengers)+1)
	newVariants = append(newVariants, NewVariant{
		Description: champion.Description,
		IsControl:   true,
	})
	for _, text := range challengers {
		newVariants = append(newVariants, NewVariant{Description: text})
	}

	now := time.Now().UTC()
	successor := domain.Experiment{
		TenantID:                 predecessor.TenantID,
		ProductRef:               predecessor.ProductRef,
		Name:                     fmt.Sprintf("Auto-optimization round for %s", predecessor.ProductRef),
		Description:              fmt.Sprintf("Successor of experiment %d", predecessor.ID),
		TestType:                 predecessor.TestType,
		StartTime:                &now,
		AutoOptimize:             true,
		AutoOptimizeCooldownDays: predecessor.AutoOptimizeCooldownDays,
		GoalMetric:               predecessor.GoalMetric,
	}
	if _, err := s.CreateExperiment(ctx, &successor, newVariants); err != nil {
		return fmt.Errorf("failed to create successor experiment: %w", err)
	}

	// Take the predecessor out of the loop before activating the
	// successor so a later failure cannot spawn duplicates.
	predecessor.AutoOptimize = false
	if err := s.experimentRepo.Save(ctx, &predecessor); err != nil {
		return fmt.Errorf("failed to retire predecessor: %w", err)
	}

	if _, err := s.StartExperiment(ctx, successor.ID); err != nil {
		return fmt.Errorf("failed to start successor experiment: %w", err)
	}

	logger.Info("successor experiment started",
		"predecessor_id", predecessor.ID, "successor_id", successor.ID,
		"challengers", len(challengers))
	return nil
}
