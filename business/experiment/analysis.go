package experiment

import (
	"context"
	"sort"
	"time"

	"myContentLab/business/stats"
	"myContentLab/domain"
	"myContentLab/pkg/logger"
	"myContentLab/pkg/metrics"
)

// VariantAnalysis is one variant's statistics relative to the control.
type VariantAnalysis struct {
	Variant           domain.Variant     `json:"variant"`
	ConversionRate    float64            `json:"conversion_rate"`
	IntervalLow       float64            `json:"interval_low"`
	IntervalHigh      float64            `json:"interval_high"`
	TotalRevenue      float64            `json:"total_revenue"`
	AvgOrderValue     float64            `json:"avg_order_value"`
	RevenuePerVisitor float64            `json:"revenue_per_visitor"`
	PValueVsControl   float64            `json:"p_value_vs_control"`
	EffectVsControl   float64            `json:"effect_vs_control"`
	ProbBeatsControl  float64            `json:"prob_beats_control"`
	Verdict           stats.SPRTVerdict  `json:"sprt_verdict"`
	Segments          []SegmentBreakdown `json:"segments,omitempty"`
}

// SegmentBreakdown is one variant's counters within one visitor
// segment.
type SegmentBreakdown struct {
	Segment     domain.Segment `json:"segment"`
	Impressions int            `json:"impressions"`
	Conversions int            `json:"conversions"`
	Revenue     float64        `json:"revenue"`
}

// SegmentWinner marks the variant that dominates one visitor segment.
type SegmentWinner struct {
	Segment           domain.Segment `json:"segment"`
	Variant           domain.Variant `json:"variant"`
	RevenuePerVisitor float64        `json:"revenue_per_visitor"`
}

// AnalysisResult is the full significance report for an experiment.
type AnalysisResult struct {
	Experiment     domain.Experiment `json:"experiment"`
	Variants       []VariantAnalysis `json:"variants"`
	ChiSquareP     float64           `json:"chi_square_p_value"`
	Winner         *domain.Variant   `json:"winner,omitempty"`
	SegmentWinners []SegmentWinner   `json:"segment_winners"`
}

// recomputeRates reloads the experiment's variants, derives conversion
// counts and rates from durable data, and persists them. When a
// revenue series exists it is the authoritative conversion count;
// otherwise the raw counter stands.
func (s *ExperimentService) recomputeRates(ctx context.Context, experimentID uint) ([]domain.Variant, error) {
	variants, err := s.variantRepo.FindByExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	for i := range variants {
		v := &variants[i]
		if revenue := v.MetricSeries(domain.MetricRevenue); len(revenue) > 0 {
			v.Conversions = len(revenue)
		}
		if v.Impressions > 0 {
			v.ConversionRate = float64(v.Conversions) / float64(v.Impressions) * 100
		} else {
			v.ConversionRate = 0
		}
	}

	if err := s.variantRepo.SaveRates(ctx, variants); err != nil {
		return nil, err
	}

	return variants, nil
}

// GetWinner flushes pending metrics, recomputes rates and returns the
// winning variant, or nil when the evidence does not support declaring
// one yet.
func (s *ExperimentService) GetWinner(ctx context.Context, experimentID uint) (*domain.Variant, error) {
	if err := s.FlushMetrics(ctx); err != nil {
		return nil, err
	}

	variants, err := s.recomputeRates(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	return s.pickWinner(variants), nil
}

// pickWinner applies the winner decision to already-recomputed
// variants: the top variant by conversion rate must clear the minimum
// sample thresholds and beat every other qualified variant's observed
// rate sequentially. With exactly two variants the runner-up must also
// be qualified, so a one-sided sample cannot produce a winner.
func (s *ExperimentService) pickWinner(variants []domain.Variant) *domain.Variant {
	if len(variants) < 2 {
		return nil
	}

	ranked := make([]domain.Variant, len(variants))
	copy(ranked, variants)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ConversionRate > ranked[j].ConversionRate
	})

	candidate := ranked[0]
	if !s.qualified(candidate) {
		return nil
	}
	if len(ranked) == 2 && !s.qualified(ranked[1]) {
		return nil
	}

	comparisons := 0
	for _, other := range ranked[1:] {
		if !s.qualified(other) {
			continue
		}
		verdict := stats.SPRT(
			other.Conversions, other.Impressions,
			candidate.Conversions, candidate.Impressions,
			s.engine.Alpha, s.engine.Beta, s.engine.MinEffect,
		)
		if verdict != stats.AcceptH1 {
			return nil
		}
		comparisons++
	}
	if comparisons == 0 {
		return nil
	}

	return &candidate
}

func (s *ExperimentService) qualified(v domain.Variant) bool {
	return v.Impressions >= s.engine.MinImpressions &&
		v.Conversions >= s.engine.MinConversions
}

// DeclareWinner concludes the experiment with the given variant and
// publishes its text to the storefront asynchronously. The conclusion
// is durable regardless of publish outcome; a failed publish only
// logs.
func (s *ExperimentService) DeclareWinner(ctx context.Context, experimentID, winnerVariantID uint) (domain.Experiment, domain.Variant, error) {
	experiment, winner, err := s.experimentRepo.Conclude(ctx, experimentID, winnerVariantID, time.Now().UTC())
	if err != nil {
		return domain.Experiment{}, domain.Variant{}, err
	}

	metrics.WinnersDeclaredTotal.Inc()
	logger.Info("winner declared",
		"experiment_id", experiment.ID, "variant_id", winner.ID)

	go func() {
		publishCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.storefront.PublishVariantText(publishCtx, experiment.ProductRef, winner.Description); err != nil {
			logger.Error("failed to publish winning variant",
				"experiment_id", experiment.ID, "variant_id", winner.ID, "error", err)
		}
	}()

	return experiment, winner, nil
}

// CheckAndDeclareWinner runs the winner decision for a RUNNING
// experiment and concludes it when one emerges. Returns whether a
// winner was declared.
func (s *ExperimentService) CheckAndDeclareWinner(ctx context.Context, experimentID uint) (bool, error) {
	experiment, err := s.experimentRepo.FindByID(ctx, experimentID)
	if err != nil {
		return false, err
	}
	if experiment.Status != domain.StatusRunning {
		return false, nil
	}

	winner, err := s.GetWinner(ctx, experimentID)
	if err != nil {
		return false, err
	}
	if winner == nil {
		return false, nil
	}

	if _, _, err := s.DeclareWinner(ctx, experimentID, winner.ID); err != nil {
		return false, err
	}
	return true, nil
}

// segmentBreakdown lists the variant's counters per visitor segment,
// ordered by segment ID.
func (s *ExperimentService) segmentBreakdown(ctx context.Context, variantID uint) ([]SegmentBreakdown, error) {
	rows, err := s.perfRepo.ListByVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.SegmentID)
	}
	segments, err := s.segmentRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]SegmentBreakdown, 0, len(rows))
	for _, row := range rows {
		breakdown := SegmentBreakdown{
			Segment:     segments[row.SegmentID],
			Impressions: row.Impressions,
			Conversions: row.Conversions,
		}
		for _, r := range row.RevenueData {
			breakdown.Revenue += r
		}
		out = append(out, breakdown)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Segment.ID < out[j].Segment.ID })
	return out, nil
}

// GetWinnersBySegment finds, per visitor segment, the variant whose
// revenue per visitor significantly beats every other variant with
// enough traffic in that segment. Significance uses Welch's t-test
// with a Bonferroni-adjusted alpha across the pairwise comparisons.
func (s *ExperimentService) GetWinnersBySegment(ctx context.Context, experimentID uint) ([]SegmentWinner, error) {
	segments, err := s.segmentRepo.FindByExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	winners := make([]SegmentWinner, 0)
	for _, segment := range segments {
		rows, err := s.perfRepo.ListForSegment(ctx, experimentID, segment.ID, s.engine.SegmentMinImpressions)
		if err != nil {
			return nil, err
		}
		if len(rows) < 2 {
			continue
		}

		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].RevenuePerVisitor() > rows[j].RevenuePerVisitor()
		})
		top := rows[0]

		adjustedAlpha := stats.BonferroniAlpha(s.engine.Alpha, len(rows)-1)
		dominant := true
		for _, other := range rows[1:] {
			if stats.WelchTTest(top.RevenueData, other.RevenueData) >= adjustedAlpha {
				dominant = false
				break
			}
		}
		if !dominant {
			continue
		}

		variant, err := s.variantRepo.FindByID(ctx, top.VariantID)
		if err != nil {
			return nil, err
		}
		winners = append(winners, SegmentWinner{
			Segment:           segment,
			Variant:           variant,
			RevenuePerVisitor: top.RevenuePerVisitor(),
		})
	}

	return winners, nil
}

// GetAnalysisResults assembles the full significance report: per
// variant intervals and tests against the control, an omnibus
// chi-square across all variants, the overall winner if one exists
// and any per-segment winners.
func (s *ExperimentService) GetAnalysisResults(ctx context.Context, experimentID uint) (AnalysisResult, error) {
	experiment, err := s.experimentRepo.FindByID(ctx, experimentID)
	if err != nil {
		return AnalysisResult{}, err
	}

	if err := s.FlushMetrics(ctx); err != nil {
		return AnalysisResult{}, err
	}
	variants, err := s.recomputeRates(ctx, experimentID)
	if err != nil {
		return AnalysisResult{}, err
	}
	if len(variants) == 0 {
		return AnalysisResult{}, domain.ErrNotFound
	}

	control := variants[0]
	for _, v := range variants {
		if v.IsControl {
			control = v
			break
		}
	}

	confidence := 1 - s.engine.Alpha
	analyses := make([]VariantAnalysis, 0, len(variants))
	conversions := make([]int, 0, len(variants))
	impressions := make([]int, 0, len(variants))
	for _, v := range variants {
		low, high := stats.WilsonInterval(v.Conversions, v.Impressions, confidence)
		analysis := VariantAnalysis{
			Variant:        v,
			ConversionRate: v.ConversionRate,
			IntervalLow:    low,
			IntervalHigh:   high,
		}
		for _, r := range v.MetricSeries(domain.MetricRevenue) {
			analysis.TotalRevenue += r
		}
		if v.Conversions > 0 {
			analysis.AvgOrderValue = analysis.TotalRevenue / float64(v.Conversions)
		}
		if v.Impressions > 0 {
			analysis.RevenuePerVisitor = analysis.TotalRevenue / float64(v.Impressions)
		}
		if v.ID != control.ID {
			analysis.PValueVsControl = stats.ProportionsZTest(
				control.Conversions, control.Impressions, v.Conversions, v.Impressions)
			analysis.EffectVsControl = stats.EffectSizeCohenH(
				v.Conversions, v.Impressions, control.Conversions, control.Impressions)
			analysis.ProbBeatsControl = stats.BayesianProbBBeatsA(
				control.Conversions, control.Impressions, v.Conversions, v.Impressions)
			analysis.Verdict = stats.SPRT(
				control.Conversions, control.Impressions, v.Conversions, v.Impressions,
				s.engine.Alpha, s.engine.Beta, s.engine.MinEffect)
		}
		analysis.Segments, err = s.segmentBreakdown(ctx, v.ID)
		if err != nil {
			return AnalysisResult{}, err
		}
		analyses = append(analyses, analysis)
		conversions = append(conversions, v.Conversions)
		impressions = append(impressions, v.Impressions)
	}

	segmentWinners, err := s.GetWinnersBySegment(ctx, experimentID)
	if err != nil {
		return AnalysisResult{}, err
	}

	return AnalysisResult{
		Experiment:     experiment,
		Variants:       analyses,
		ChiSquareP:     stats.ChiSquareTest(conversions, impressions),
		Winner:         s.pickWinner(variants),
		SegmentWinners: segmentWinners,
	}, nil
}
