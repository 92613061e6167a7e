package render

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appProj "github.com/turtacn/FeatureScope/internal/application/projection"
	"github.com/turtacn/FeatureScope/internal/domain/projection"
	"github.com/turtacn/FeatureScope/internal/infrastructure/backend"
	"github.com/turtacn/FeatureScope/internal/infrastructure/messaging/kafka"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fixtures
// ─────────────────────────────────────────────────────────────────────────────

// fixture has 12 features on the diagonal, levels "10" and "30", and a
// query whose visible neighbours are 103 and 104.
func fixture() *projection.FetchResult {
	r := &projection.FetchResult{HierarchicalClusters: map[string]projection.ClusterPayload{}}
	l10 := projection.ClusterPayload{
		Centers: [][2]float64{{2, 2}, {8, 8}},
		Topics: map[string][]string{
			"0": {"alpha", "beta", "gamma", "delta", "epsilon"},
			"1": {"zeta", "eta"},
		},
		TopicScores:   map[string][]float64{"0": {0.1, 0.9, 0.5, 0.3, 0.2}, "1": {1, 0.5}},
		ClusterColors: map[string]string{"0": "#aa0000"},
	}
	l30 := projection.ClusterPayload{Centers: [][2]float64{{1, 1}, {5, 5}, {9, 9}}}
	for i := 0; i < 12; i++ {
		r.Coordinates = append(r.Coordinates, [2]float64{float64(i), float64(i)})
		r.Indices = append(r.Indices, projection.FeatureID(strconv.Itoa(100+i)))
		r.Descriptions = append(r.Descriptions, "feature "+strconv.Itoa(100+i))
		l10.Labels = append(l10.Labels, i/6)
		l10.Colors = append(l10.Colors, []string{"#1f77b4", "#ff7f0e"}[i/6])
		l30.Labels = append(l30.Labels, i/4)
		l30.Colors = append(l30.Colors, []string{"#111111", "#222222", "#333333"}[i/4])
	}
	r.HierarchicalClusters["10"] = l10
	r.HierarchicalClusters["30"] = l30
	r.Query = &projection.QueryPayload{
		Text:        "capital cities",
		Coordinates: [2]float64{5.5, 5.5},
		NearestFeatures: []projection.NearestFeature{
			{FeatureID: "103", Similarity: 0.9, Coordinates: [2]float64{3, 3}},
			{FeatureID: "104", Similarity: 0.6, Coordinates: [2]float64{4, 4}},
			{FeatureID: "105", Similarity: 0.2, Coordinates: [2]float64{99, 99}},
		},
	}
	return r
}

func fixtureStore(t *testing.T) *projection.Store {
	t.Helper()
	s, err := projection.Build(fixture())
	require.NoError(t, err)
	return s
}

func detailFor(id projection.FeatureID, similar ...projection.FeatureID) *backend.FeatureDetail {
	values := make([]float64, len(similar))
	for i := range values {
		values[i] = 1 - float64(i)*0.1
	}
	return &backend.FeatureDetail{
		FeatureID: id,
		RawStats:  backend.RawStats{SimilarFeatures: backend.SimilarFeatures{FeatureIDs: similar, Values: values}},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Mocks
// ─────────────────────────────────────────────────────────────────────────────

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) FetchScatter(ctx context.Context, q backend.ScatterQuery) (*projection.FetchResult, error) {
	args := m.Called(ctx, q)
	r, _ := args.Get(0).(*projection.FetchResult)
	return r, args.Error(1)
}

func (m *mockBackend) FetchFeatureDetail(ctx context.Context, q backend.DetailQuery) (*backend.FeatureDetail, error) {
	args := m.Called(ctx, q)
	r, _ := args.Get(0).(*backend.FeatureDetail)
	return r, args.Error(1)
}

func (m *mockBackend) AnalyzeTokens(ctx context.Context, req backend.TokenAnalysisRequest) (*backend.TokenAnalysis, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*backend.TokenAnalysis)
	return r, args.Error(1)
}

// stubService serves fixture stores and counts loads.
type stubService struct {
	mu    sync.Mutex
	loads int
	err   error
	build func() *projection.FetchResult
	watch func(ctx context.Context, onChange func()) error
}

func (s *stubService) Load(_ context.Context, _ appProj.Query) (*projection.FetchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	if s.build != nil {
		return s.build(), nil
	}
	return fixture(), nil
}

func (s *stubService) Store(ctx context.Context, q appProj.Query) (*projection.Store, error) {
	r, err := s.Load(ctx, q)
	if err != nil {
		return nil, err
	}
	return projection.Build(r)
}

func (s *stubService) Kind() string { return "stub" }

func (s *stubService) Watch(ctx context.Context, onChange func()) error {
	if s.watch == nil {
		return nil
	}
	return s.watch(ctx, onChange)
}

func (s *stubService) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.InteractionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev kafka.InteractionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Kinds() []kafka.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]kafka.EventKind, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

func (p *recordingPublisher) Has(kind kafka.EventKind) bool {
	for _, k := range p.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Driver helpers
// ─────────────────────────────────────────────────────────────────────────────

func testOptions() Options {
	return Options{Width: 400, Height: 400, VisibleDebounce: 20 * time.Millisecond}
}

func newTestDriver(t *testing.T, api backend.API, pub kafka.EventPublisher) *Driver {
	t.Helper()
	d, err := NewDriver("s-1", appProj.Query{SAEID: "sae", LLM: "llm"}, fixtureStore(t), testOptions(), Deps{
		Backend:   api,
		Source:    &stubService{},
		Publisher: pub,
	})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func do(t *testing.T, d *Driver, cmd Command) Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	f, err := d.Do(ctx, cmd)
	require.NoError(t, err)
	return f
}

func points(t *testing.T, d *Driver) map[projection.FeatureID]projection.Point {
	t.Helper()
	ps, err := d.Points(context.Background())
	require.NoError(t, err)
	out := make(map[projection.FeatureID]projection.Point, len(ps))
	for _, p := range ps {
		out[p.FeatureID] = p
	}
	return out
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
