package testutil

import (
	"context"
	"strconv"
	"sync"

	appProj "github.com/turtacn/FeatureScope/internal/application/projection"
	"github.com/turtacn/FeatureScope/internal/domain/projection"
)

// Projection returns twelve features on the diagonal (ids 100..111) with
// cluster levels "10" and "30" and a query near the middle whose visible
// neighbours are 103 and 104.
func Projection() *projection.FetchResult {
	r := &projection.FetchResult{HierarchicalClusters: map[string]projection.ClusterPayload{}}
	l10 := projection.ClusterPayload{
		Centers: [][2]float64{{2, 2}, {8, 8}},
		Topics: map[string][]string{
			"0": {"alpha", "beta", "gamma", "delta"},
			"1": {"zeta", "eta"},
		},
		TopicScores: map[string][]float64{"0": {0.4, 0.3, 0.2, 0.1}, "1": {1, 0.5}},
	}
	l30 := projection.ClusterPayload{Centers: [][2]float64{{1, 1}, {5, 5}, {9, 9}}}
	for i := 0; i < 12; i++ {
		id := strconv.Itoa(100 + i)
		r.Coordinates = append(r.Coordinates, [2]float64{float64(i), float64(i)})
		r.Indices = append(r.Indices, projection.FeatureID(id))
		r.Descriptions = append(r.Descriptions, "feature "+id)
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
		},
	}
	return r
}

// StaticSource serves a fixed projection and counts loads. A nil Result
// serves a fresh Projection() per load; a non-nil Err fails every load.
type StaticSource struct {
	Result *projection.FetchResult
	Err    error

	mu      sync.Mutex
	loads   int
	queries []appProj.Query
}

// NewStaticSource serves Projection().
func NewStaticSource() *StaticSource {
	return &StaticSource{}
}

func (s *StaticSource) Load(_ context.Context, q appProj.Query) (*projection.FetchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	s.queries = append(s.queries, q)
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Result == nil {
		return Projection(), nil
	}
	return s.Result, nil
}

func (s *StaticSource) Store(ctx context.Context, q appProj.Query) (*projection.Store, error) {
	r, err := s.Load(ctx, q)
	if err != nil {
		return nil, err
	}
	return projection.Build(r)
}

func (s *StaticSource) Kind() string { return "static" }

func (s *StaticSource) Watch(context.Context, func()) error { return nil }

// Loads returns the number of loads so far.
func (s *StaticSource) Loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

// LastQuery returns the most recent load query.
func (s *StaticSource) LastQuery() appProj.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return appProj.Query{}
	}
	return s.queries[len(s.queries)-1]
}

var _ appProj.Service = (*StaticSource)(nil)
