// Package experiment implements the content experimentation engine:
// variant assignment, metrics ingestion, winner analysis and the
// auto-optimization loop.
package experiment

import (
	"context"
	"fmt"
	"time"

	"myContentLab/domain"
	"myContentLab/pkg/config"
	"myContentLab/pkg/logger"
)

type ExperimentRepository interface {
	Create(ctx context.Context, experiment *domain.Experiment, variants []domain.Variant) error
	FindByID(ctx context.Context, id uint) (domain.Experiment, error)
	FindAll(ctx context.Context) ([]domain.Experiment, error)
	FindByTenant(ctx context.Context, tenantID uint) ([]domain.Experiment, error)
	Save(ctx context.Context, experiment *domain.Experiment) error
	UpdateStatus(ctx context.Context, id uint, to domain.ExperimentStatus, from ...domain.ExperimentStatus) (domain.Experiment, error)
	Conclude(ctx context.Context, experimentID, winnerVariantID uint, endTime time.Time) (domain.Experiment, domain.Variant, error)
	FindDueDrafts(ctx context.Context, now time.Time) ([]domain.Experiment, error)
	FindExpiredRunning(ctx context.Context, now time.Time) ([]domain.Experiment, error)
	FindRunning(ctx context.Context) ([]domain.Experiment, error)
	FindAutoOptimize(ctx context.Context, statuses ...domain.ExperimentStatus) ([]domain.Experiment, error)
	Delete(ctx context.Context, id uint) error
}

type VariantRepository interface {
	FindByID(ctx context.Context, id uint) (domain.Variant, error)
	FindByExperiment(ctx context.Context, experimentID uint) ([]domain.Variant, error)
	FlushCounters(ctx context.Context, impressions, clicks map[uint]int) error
	RecordConversion(ctx context.Context, variantID uint, revenue float64) error
	AppendContinuousMetric(ctx context.Context, variantID uint, name string, value float64) error
	SaveRates(ctx context.Context, variants []domain.Variant) error
}

type AssignmentRepository interface {
	Get(ctx context.Context, userID, experimentID uint) (domain.VariantAssignment, bool, error)
	Insert(ctx context.Context, assignment *domain.VariantAssignment) (bool, error)
}

type SegmentRepository interface {
	GetOrCreate(ctx context.Context, segmentType, segmentValue string) (domain.Segment, error)
	FindByIDs(ctx context.Context, ids []uint) (map[uint]domain.Segment, error)
	FindByExperiment(ctx context.Context, experimentID uint) ([]domain.Segment, error)
}

type SegmentPerformanceRepository interface {
	Find(ctx context.Context, variantID, segmentID uint) (domain.SegmentPerformance, bool, error)
	SumImpressions(ctx context.Context, variantIDs []uint, segmentID uint) (int, error)
	ListByVariant(ctx context.Context, variantID uint) ([]domain.SegmentPerformance, error)
	ListForSegment(ctx context.Context, experimentID, segmentID uint, minImpressions int) ([]domain.SegmentPerformance, error)
	AddImpression(ctx context.Context, variantID, segmentID uint) error
	AddConversion(ctx context.Context, variantID, segmentID uint, revenue float64) error
}

// StorefrontPublisher makes variant text live on the storefront and
// serves current product attributes.
type StorefrontPublisher interface {
	PublishVariantText(ctx context.Context, productRef, description string) error
	GetProductAttributes(ctx context.Context, productRef string) (domain.ProductAttributes, error)
}

// SuggestionProvider generates challenger variant texts.
type SuggestionProvider interface {
	SuggestVariants(ctx context.Context, seedText, productTitle string, productTags []string, count int) ([]string, error)
}

type ExperimentService struct {
	experimentRepo ExperimentRepository
	variantRepo    VariantRepository
	assignmentRepo AssignmentRepository
	segmentRepo    SegmentRepository
	perfRepo       SegmentPerformanceRepository
	storefront     StorefrontPublisher
	suggestions    SuggestionProvider

	buffer   *MetricsBuffer
	segments *SegmentResolver
	engine   config.EngineConfig
}

func NewExperimentService(
	experimentRepo ExperimentRepository,
	variantRepo VariantRepository,
	assignmentRepo AssignmentRepository,
	segmentRepo SegmentRepository,
	perfRepo SegmentPerformanceRepository,
	storefront StorefrontPublisher,
	suggestions SuggestionProvider,
	engine config.EngineConfig,
) *ExperimentService {
	return &ExperimentService{
		experimentRepo: experimentRepo,
		variantRepo:    variantRepo,
		assignmentRepo: assignmentRepo,
		segmentRepo:    segmentRepo,
		perfRepo:       perfRepo,
		storefront:     storefront,
		suggestions:    suggestions,
		buffer:         NewMetricsBuffer(),
		segments:       NewSegmentResolver(segmentRepo),
		engine:         engine,
	}
}

// NewVariant describes a candidate content version at experiment
// creation time.
type NewVariant struct {
	Description       string
	IsControl         bool
	TrafficAllocation float64
}

// CreateExperiment persists a DRAFT experiment with its variants.
// Exactly one variant must be the control.
func (s *ExperimentService) CreateExperiment(ctx context.Context, experiment *domain.Experiment, newVariants []NewVariant) ([]domain.Variant, error) {
	if len(newVariants) < 2 {
		return nil, fmt.Errorf("%w: an experiment needs at least two variants", domain.ErrInvalidState)
	}

	controls := 0
	for _, v := range newVariants {
		if v.IsControl {
			controls++
		}
	}
	if controls != 1 {
		return nil, fmt.Errorf("%w: exactly one variant must be the control", domain.ErrInvalidState)
	}

	experiment.Status = domain.StatusDraft
	if experiment.TestType == "" {
		experiment.TestType = domain.TypeABTest
	}
	if experiment.AutoOptimizeCooldownDays <= 0 {
		experiment.AutoOptimizeCooldownDays = 7
	}

	variants := make([]domain.Variant, 0, len(newVariants))
	for _, v := range newVariants {
		allocation := v.TrafficAllocation
		if allocation <= 0 {
			allocation = 100
		}
		variants = append(variants, domain.Variant{
			Description:       v.Description,
			IsControl:         v.IsControl,
			TrafficAllocation: allocation,
		})
	}

	if err := s.experimentRepo.Create(ctx, experiment, variants); err != nil {
		return nil, err
	}

	return variants, nil
}

func (s *ExperimentService) GetExperiment(ctx context.Context, id uint) (domain.Experiment, []domain.Variant, error) {
	experiment, err := s.experimentRepo.FindByID(ctx, id)
	if err != nil {
		return domain.Experiment{}, nil, err
	}

	variants, err := s.variantRepo.FindByExperiment(ctx, id)
	if err != nil {
		return domain.Experiment{}, nil, err
	}

	return experiment, variants, nil
}

// ListExperiments returns all experiments, scoped to a tenant when
// tenantID is non-zero.
func (s *ExperimentService) ListExperiments(ctx context.Context, tenantID uint) ([]domain.Experiment, error) {
	if tenantID != 0 {
		return s.experimentRepo.FindByTenant(ctx, tenantID)
	}
	return s.experimentRepo.FindAll(ctx)
}

// StartExperiment moves a DRAFT or PAUSED experiment to RUNNING and
// stamps the start time on first activation.
func (s *ExperimentService) StartExperiment(ctx context.Context, id uint) (domain.Experiment, error) {
	experiment, err := s.experimentRepo.UpdateStatus(ctx, id,
		domain.StatusRunning, domain.StatusDraft, domain.StatusPaused)
	if err != nil {
		return domain.Experiment{}, err
	}

	if experiment.StartTime == nil {
		now := time.Now().UTC()
		experiment.StartTime = &now
		if err := s.experimentRepo.Save(ctx, &experiment); err != nil {
			return domain.Experiment{}, err
		}
	}

	logger.Info("experiment started", "experiment_id", experiment.ID)
	return experiment, nil
}

func (s *ExperimentService) PauseExperiment(ctx context.Context, id uint) (domain.Experiment, error) {
	return s.experimentRepo.UpdateStatus(ctx, id, domain.StatusPaused, domain.StatusRunning)
}

// EndExperiment moves a RUNNING experiment to FINISHED without
// declaring a winner.
func (s *ExperimentService) EndExperiment(ctx context.Context, id uint) (domain.Experiment, error) {
	experiment, err := s.experimentRepo.UpdateStatus(ctx, id,
		domain.StatusFinished, domain.StatusRunning)
	if err != nil {
		return domain.Experiment{}, err
	}

	if experiment.EndTime == nil {
		now := time.Now().UTC()
		experiment.EndTime = &now
		if err := s.experimentRepo.Save(ctx, &experiment); err != nil {
			return domain.Experiment{}, err
		}
	}

	return experiment, nil
}

// DeleteExperiment removes a non-running experiment and all of its
// dependent rows.
func (s *ExperimentService) DeleteExperiment(ctx context.Context, id uint) error {
	experiment, err := s.experimentRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if experiment.Status == domain.StatusRunning {
		return fmt.Errorf("%w: pause or end experiment %d before deleting it", domain.ErrInvalidState, id)
	}

	return s.experimentRepo.Delete(ctx, id)
}

// RotateActiveVariant re-samples the bandit for a RUNNING experiment
// and, when the pick changes, publishes the new variant's text to the
// storefront before recording it as active.
func (s *ExperimentService) RotateActiveVariant(ctx context.Context, id uint) (domain.Variant, error) {
	experiment, err := s.experimentRepo.FindByID(ctx, id)
	if err != nil {
		return domain.Variant{}, err
	}
	if experiment.Status != domain.StatusRunning {
		return domain.Variant{}, fmt.Errorf("%w: experiment %d is %s, not RUNNING",
			domain.ErrInvalidState, id, experiment.Status)
	}

	variants, err := s.variantRepo.FindByExperiment(ctx, id)
	if err != nil {
		return domain.Variant{}, err
	}
	if len(variants) == 0 {
		return domain.Variant{}, domain.ErrNotFound
	}

	picked := variants[s.thompsonPick(variants)]
	if experiment.ActiveVariantID != nil && *experiment.ActiveVariantID == picked.ID {
		return picked, nil
	}

	if err := s.storefront.PublishVariantText(ctx, experiment.ProductRef, picked.Description); err != nil {
		return domain.Variant{}, fmt.Errorf("failed to publish rotated variant: %w", err)
	}

	experiment.ActiveVariantID = &picked.ID
	if err := s.experimentRepo.Save(ctx, &experiment); err != nil {
		return domain.Variant{}, err
	}

	logger.Info("active variant rotated",
		"experiment_id", experiment.ID, "variant_id", picked.ID)
	return picked, nil
}

// ScheduleExperiments activates due drafts and finishes expired
// running experiments, attempting a final winner check on each one
// that expires. Failures on one experiment never block the rest.
func (s *ExperimentService) ScheduleExperiments(ctx context.Context) error {
	now := time.Now().UTC()

	due, err := s.experimentRepo.FindDueDrafts(ctx, now)
	if err != nil {
		return err
	}
	for _, e := range due {
		if _, err := s.StartExperiment(ctx, e.ID); err != nil {
			logger.Error("failed to start scheduled experiment",
				"experiment_id", e.ID, "error", err)
		}
	}

	expired, err := s.experimentRepo.FindExpiredRunning(ctx, now)
	if err != nil {
		return err
	}
	for _, e := range expired {
		declared, err := s.CheckAndDeclareWinner(ctx, e.ID)
		if err != nil {
			logger.Error("winner check on expiry failed",
				"experiment_id", e.ID, "error", err)
		}
		if declared {
			continue
		}
		if _, err := s.EndExperiment(ctx, e.ID); err != nil {
			logger.Error("failed to finish expired experiment",
				"experiment_id", e.ID, "error", err)
		}
	}

	return nil
}
