package experiment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"myContentLab/domain"
	"myContentLab/pkg/config"
)

// memStore is an in-memory implementation of every repository the
// service consumes, mirroring the database-side semantics the real
// repositories provide.
type memStore struct {
	mu sync.Mutex

	experiments map[uint]domain.Experiment
	variants    map[uint]domain.Variant
	assignments map[[2]uint]domain.VariantAssignment
	segments    map[[2]string]domain.Segment
	perfs       map[[2]uint]domain.SegmentPerformance

	nextExperimentID uint
	nextVariantID    uint
	nextAssignmentID uint
	nextSegmentID    uint
	nextPerfID       uint

	failFlush          bool
	flushCalls         int
	getOrCreateCalls   int
	competingVariantID uint
}

func newMemStore() *memStore {
	return &memStore{
		experiments: make(map[uint]domain.Experiment),
		variants:    make(map[uint]domain.Variant),
		assignments: make(map[[2]uint]domain.VariantAssignment),
		segments:    make(map[[2]string]domain.Segment),
		perfs:       make(map[[2]uint]domain.SegmentPerformance),
	}
}

func (m *memStore) Create(_ context.Context, experiment *domain.Experiment, variants []domain.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextExperimentID++
	experiment.ID = m.nextExperimentID
	m.experiments[experiment.ID] = *experiment

	for i := range variants {
		m.nextVariantID++
		variants[i].ID = m.nextVariantID
		variants[i].ExperimentID = experiment.ID
		m.variants[variants[i].ID] = variants[i]
	}
	return nil
}

func (m *memStore) FindByID(_ context.Context, id uint) (domain.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.experiments[id]
	if !ok {
		return domain.Experiment{}, domain.ErrNotFound
	}
	return e, nil
}

func (m *memStore) FindAll(context.Context) ([]domain.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Experiment, 0, len(m.experiments))
	for _, e := range m.experiments {
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) FindByTenant(_ context.Context, tenantID uint) ([]domain.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Experiment
	for _, e := range m.experiments {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) Save(_ context.Context, experiment *domain.Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.experiments[experiment.ID]; !ok {
		return domain.ErrNotFound
	}
	m.experiments[experiment.ID] = *experiment
	return nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uint, to domain.ExperimentStatus, from ...domain.ExperimentStatus) (domain.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.experiments[id]
	if !ok {
		return domain.Experiment{}, domain.ErrNotFound
	}
	if len(from) > 0 {
		allowed := false
		for _, s := range from {
			if e.Status == s {
				allowed = true
				break
			}
		}
		if !allowed {
			return domain.Experiment{}, fmt.Errorf("%w: cannot move %s experiment to %s",
				domain.ErrInvalidState, e.Status, to)
		}
	}
	e.Status = to
	m.experiments[id] = e
	return e, nil
}

func (m *memStore) Conclude(_ context.Context, experimentID, winnerVariantID uint, endTime time.Time) (domain.Experiment, domain.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.experiments[experimentID]
	if !ok {
		return domain.Experiment{}, domain.Variant{}, domain.ErrNotFound
	}
	if e.Status.Terminal() {
		return domain.Experiment{}, domain.Variant{}, fmt.Errorf("%w: experiment %d already concluded",
			domain.ErrInvalidState, experimentID)
	}
	winner, ok := m.variants[winnerVariantID]
	if !ok || winner.ExperimentID != experimentID {
		return domain.Experiment{}, domain.Variant{}, fmt.Errorf("%w: variant %d does not belong to experiment %d",
			domain.ErrInvalidState, winnerVariantID, experimentID)
	}

	e.Status = domain.StatusConcluded
	e.WinnerVariantID = &winner.ID
	e.ActiveVariantID = &winner.ID
	e.EndTime = &endTime
	m.experiments[experimentID] = e
	return e, winner, nil
}

func (m *memStore) FindDueDrafts(_ context.Context, now time.Time) ([]domain.Experiment, error) {
	return m.findByStatusAndTime(domain.StatusDraft, func(e domain.Experiment) *time.Time { return e.StartTime }, now)
}

func (m *memStore) FindExpiredRunning(_ context.Context, now time.Time) ([]domain.Experiment, error) {
	return m.findByStatusAndTime(domain.StatusRunning, func(e domain.Experiment) *time.Time { return e.EndTime }, now)
}

func (m *memStore) findByStatusAndTime(status domain.ExperimentStatus, at func(domain.Experiment) *time.Time, now time.Time) ([]domain.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Experiment
	for _, e := range m.experiments {
		if e.Status != status {
			continue
		}
		if t := at(e); t != nil && !t.After(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) FindRunning(context.Context) ([]domain.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Experiment
	for _, e := range m.experiments {
		if e.Status == domain.StatusRunning {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) FindAutoOptimize(_ context.Context, statuses ...domain.ExperimentStatus) ([]domain.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Experiment
	for _, e := range m.experiments {
		if !e.AutoOptimize {
			continue
		}
		for _, s := range statuses {
			if e.Status == s {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) Delete(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.experiments[id]; !ok {
		return domain.ErrNotFound
	}
	for vid, v := range m.variants {
		if v.ExperimentID != id {
			continue
		}
		delete(m.variants, vid)
		for key := range m.perfs {
			if key[0] == vid {
				delete(m.perfs, key)
			}
		}
	}
	for key := range m.assignments {
		if key[1] == id {
			delete(m.assignments, key)
		}
	}
	delete(m.experiments, id)
	return nil
}

func (m *memStore) FindVariantByID(_ context.Context, id uint) (domain.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.variants[id]
	if !ok {
		return domain.Variant{}, domain.ErrNotFound
	}
	return v, nil
}

func (m *memStore) FindByExperiment(_ context.Context, experimentID uint) ([]domain.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Variant
	for _, v := range m.variants {
		if v.ExperimentID == experimentID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) FlushCounters(_ context.Context, impressions, clicks map[uint]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flushCalls++
	if m.failFlush {
		return errors.New("flush rejected")
	}
	for id, n := range impressions {
		if v, ok := m.variants[id]; ok {
			v.Impressions += n
			m.variants[id] = v
		}
	}
	for id, n := range clicks {
		if v, ok := m.variants[id]; ok {
			v.Clicks += n
			m.variants[id] = v
		}
	}
	return nil
}

func (m *memStore) RecordConversion(_ context.Context, variantID uint, revenue float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.variants[variantID]
	if !ok {
		return domain.ErrNotFound
	}
	v.AppendMetric(domain.MetricRevenue, revenue)
	v.Conversions++
	m.variants[variantID] = v
	return nil
}

func (m *memStore) AppendContinuousMetric(_ context.Context, variantID uint, name string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.variants[variantID]
	if !ok {
		return domain.ErrNotFound
	}
	v.AppendMetric(name, value)
	m.variants[variantID] = v
	return nil
}

func (m *memStore) SaveRates(_ context.Context, variants []domain.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, v := range variants {
		stored, ok := m.variants[v.ID]
		if !ok {
			continue
		}
		stored.Conversions = v.Conversions
		stored.ConversionRate = v.ConversionRate
		m.variants[v.ID] = stored
	}
	return nil
}

func (m *memStore) Get(_ context.Context, userID, experimentID uint) (domain.VariantAssignment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assignments[[2]uint{userID, experimentID}]
	return a, ok, nil
}

func (m *memStore) Insert(_ context.Context, assignment *domain.VariantAssignment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := [2]uint{assignment.UserID, assignment.ExperimentID}
	if _, ok := m.assignments[key]; ok {
		return false, nil
	}
	if m.competingVariantID != 0 {
		// A concurrent writer wins the race with its own pick.
		m.nextAssignmentID++
		m.assignments[key] = domain.VariantAssignment{
			ID:           m.nextAssignmentID,
			UserID:       assignment.UserID,
			ExperimentID: assignment.ExperimentID,
			VariantID:    m.competingVariantID,
			AssignedAt:   time.Now().UTC(),
		}
		m.competingVariantID = 0
		return false, nil
	}

	m.nextAssignmentID++
	assignment.ID = m.nextAssignmentID
	m.assignments[key] = *assignment
	return true, nil
}

func (m *memStore) GetOrCreate(_ context.Context, segmentType, segmentValue string) (domain.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getOrCreateCalls++
	key := [2]string{segmentType, segmentValue}
	if s, ok := m.segments[key]; ok {
		return s, nil
	}
	m.nextSegmentID++
	s := domain.Segment{ID: m.nextSegmentID, Type: segmentType, Value: segmentValue}
	m.segments[key] = s
	return s, nil
}

func (m *memStore) FindByIDs(_ context.Context, ids []uint) (map[uint]domain.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[uint]domain.Segment)
	for _, s := range m.segments {
		for _, id := range ids {
			if s.ID == id {
				out[s.ID] = s
			}
		}
	}
	return out, nil
}

func (m *memStore) FindSegmentsByExperiment(_ context.Context, experimentID uint) ([]domain.Segment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[uint]bool)
	var out []domain.Segment
	for key := range m.perfs {
		v, ok := m.variants[key[0]]
		if !ok || v.ExperimentID != experimentID {
			continue
		}
		for _, s := range m.segments {
			if s.ID == key[1] && !seen[s.ID] {
				seen[s.ID] = true
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) Find(_ context.Context, variantID, segmentID uint) (domain.SegmentPerformance, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.perfs[[2]uint{variantID, segmentID}]
	return p, ok, nil
}

func (m *memStore) SumImpressions(_ context.Context, variantIDs []uint, segmentID uint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, id := range variantIDs {
		if p, ok := m.perfs[[2]uint{id, segmentID}]; ok {
			total += p.Impressions
		}
	}
	return total, nil
}

func (m *memStore) ListByVariant(_ context.Context, variantID uint) ([]domain.SegmentPerformance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.SegmentPerformance
	for key, p := range m.perfs {
		if key[0] == variantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ListForSegment(_ context.Context, experimentID, segmentID uint, minImpressions int) ([]domain.SegmentPerformance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.SegmentPerformance
	for key, p := range m.perfs {
		if key[1] != segmentID || p.Impressions < minImpressions {
			continue
		}
		v, ok := m.variants[key[0]]
		if !ok || v.ExperimentID != experimentID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VariantID < out[j].VariantID })
	return out, nil
}

func (m *memStore) AddImpression(_ context.Context, variantID, segmentID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := [2]uint{variantID, segmentID}
	p, ok := m.perfs[key]
	if !ok {
		m.nextPerfID++
		p = domain.SegmentPerformance{ID: m.nextPerfID, VariantID: variantID, SegmentID: segmentID}
	}
	p.Impressions++
	m.perfs[key] = p
	return nil
}

func (m *memStore) AddConversion(_ context.Context, variantID, segmentID uint, revenue float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := [2]uint{variantID, segmentID}
	p, ok := m.perfs[key]
	if !ok {
		m.nextPerfID++
		p = domain.SegmentPerformance{ID: m.nextPerfID, VariantID: variantID, SegmentID: segmentID, Impressions: 1}
	}
	p.Conversions++
	p.RevenueData = append(p.RevenueData, revenue)
	m.perfs[key] = p
	return nil
}

// variantRepoAdapter narrows memStore to the VariantRepository method
// set, resolving the FindByID name clash with ExperimentRepository.
type variantRepoAdapter struct{ store *memStore }

func (a variantRepoAdapter) FindByID(ctx context.Context, id uint) (domain.Variant, error) {
	return a.store.FindVariantByID(ctx, id)
}
func (a variantRepoAdapter) FindByExperiment(ctx context.Context, experimentID uint) ([]domain.Variant, error) {
	return a.store.FindByExperiment(ctx, experimentID)
}
func (a variantRepoAdapter) FlushCounters(ctx context.Context, impressions, clicks map[uint]int) error {
	return a.store.FlushCounters(ctx, impressions, clicks)
}
func (a variantRepoAdapter) RecordConversion(ctx context.Context, variantID uint, revenue float64) error {
	return a.store.RecordConversion(ctx, variantID, revenue)
}
func (a variantRepoAdapter) AppendContinuousMetric(ctx context.Context, variantID uint, name string, value float64) error {
	return a.store.AppendContinuousMetric(ctx, variantID, name, value)
}
func (a variantRepoAdapter) SaveRates(ctx context.Context, variants []domain.Variant) error {
	return a.store.SaveRates(ctx, variants)
}

type segmentRepoAdapter struct{ store *memStore }

func (a segmentRepoAdapter) GetOrCreate(ctx context.Context, segmentType, segmentValue string) (domain.Segment, error) {
	return a.store.GetOrCreate(ctx, segmentType, segmentValue)
}
func (a segmentRepoAdapter) FindByIDs(ctx context.Context, ids []uint) (map[uint]domain.Segment, error) {
	return a.store.FindByIDs(ctx, ids)
}
func (a segmentRepoAdapter) FindByExperiment(ctx context.Context, experimentID uint) ([]domain.Segment, error) {
	return a.store.FindSegmentsByExperiment(ctx, experimentID)
}

type fakeStorefront struct {
	mu        sync.Mutex
	published []string
	attrs     domain.ProductAttributes
	fail      bool
}

func (f *fakeStorefront) PublishVariantText(_ context.Context, productRef, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("storefront unavailable")
	}
	f.published = append(f.published, productRef+":"+description)
	return nil
}

func (f *fakeStorefront) GetProductAttributes(context.Context, string) (domain.ProductAttributes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return domain.ProductAttributes{}, errors.New("storefront unavailable")
	}
	return f.attrs, nil
}

func (f *fakeStorefront) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeSuggestions struct {
	texts []string
	err   error
	calls int
}

func (f *fakeSuggestions) SuggestVariants(_ context.Context, _, _ string, _ []string, count int) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.texts) >= count {
		return f.texts[:count], nil
	}
	return f.texts, nil
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		ExplorationBudget:        100,
		SegmentExplorationBudget: 50,
		MinImpressions:           30,
		MinConversions:           5,
		SegmentMinImpressions:    100,
		Alpha:                    0.05,
		Beta:                     0.2,
		MinEffect:                0.01,
		ChallengerCount:          2,
		AssignmentRetries:        3,
	}
}

func newTestService(store *memStore, storefront *fakeStorefront, suggestions *fakeSuggestions) *ExperimentService {
	return NewExperimentService(
		store,
		variantRepoAdapter{store},
		store,
		segmentRepoAdapter{store},
		store,
		storefront,
		suggestions,
		testEngineConfig(),
	)
}
