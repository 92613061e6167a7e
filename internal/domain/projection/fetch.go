package projection

import (
	"fmt"
	"strconv"

	apperrors "github.com/turtacn/FeatureScope/pkg/errors"
)

// FetchResult is the scatter payload returned by the analysis backend.
type FetchResult struct {
	Coordinates          [][2]float64              `json:"coordinates"`
	Indices              []FeatureID               `json:"indices"`
	Descriptions         []string                  `json:"descriptions"`
	HierarchicalClusters map[string]ClusterPayload `json:"hierarchical_clusters"`
	Query                *QueryPayload             `json:"query,omitempty"`
}

// ClusterPayload is one entry of hierarchical_clusters. Per-cluster tables
// are keyed by the decimal cluster id.
type ClusterPayload struct {
	Labels        []int                `json:"labels"`
	Colors        []string             `json:"colors"`
	Centers       [][2]float64         `json:"centers"`
	Topics        map[string][]string  `json:"topics"`
	TopicScores   map[string][]float64 `json:"topic_scores"`
	ClusterColors map[string]string    `json:"cluster_colors,omitempty"`
}

// QueryPayload describes the analyst query and its nearest features.
type QueryPayload struct {
	Text            string           `json:"text"`
	Coordinates     [2]float64       `json:"coordinates"`
	NearestFeatures []NearestFeature `json:"nearest_features"`
}

// NearestFeature is one neighbour of the query.
type NearestFeature struct {
	FeatureID   FeatureID  `json:"feature_id"`
	Similarity  float64    `json:"similarity"`
	Description string     `json:"description"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Build validates r and produces a Store with the default level applied.
func Build(r *FetchResult) (*Store, error) {
	if r == nil || len(r.Coordinates) == 0 {
		return nil, apperrors.New(apperrors.CodeProjectionEmpty, "projection has no points")
	}
	n := len(r.Coordinates)
	if len(r.Indices) != n {
		return nil, apperrors.New(apperrors.CodeProjectionMalformed, "indices do not match coordinates").
			WithDetail(fmt.Sprintf("coordinates=%d indices=%d", n, len(r.Indices)))
	}
	if len(r.HierarchicalClusters) == 0 {
		return nil, apperrors.New(apperrors.CodeLevelMissing, "projection has no cluster levels")
	}

	levels := make(map[string]*ClusterLevel, len(r.HierarchicalClusters))
	for key, payload := range r.HierarchicalClusters {
		lvl, err := convertLevel(key, payload)
		if err != nil {
			return nil, err
		}
		if err := lvl.validate(n); err != nil {
			return nil, err
		}
		levels[key] = lvl
	}

	type coord struct{ x, y float64 }
	var (
		nearest    []NearestFeature
		similarity = map[FeatureID]float64{}
		visible    = map[coord]bool{}
	)
	if r.Query != nil {
		nearest = append(nearest, r.Query.NearestFeatures...)
		for _, nf := range r.Query.NearestFeatures {
			if _, seen := similarity[nf.FeatureID]; !seen {
				similarity[nf.FeatureID] = nf.Similarity
			}
			visible[coord{nf.Coordinates[0], nf.Coordinates[1]}] = true
		}
	}

	points := make([]Point, 0, n+1)
	for i, c := range r.Coordinates {
		p := Point{
			Index:     i,
			FeatureID: r.Indices[i],
			X:         c[0],
			Y:         c[1],
			ClusterID: NoCluster,
			Visible:   visible[coord{c[0], c[1]}],
		}
		if i < len(r.Descriptions) {
			p.Description = r.Descriptions[i]
		}
		if s, ok := similarity[p.FeatureID]; ok {
			p.IsQuerySimilar = true
			p.Similarity = Float(s)
		}
		points = append(points, p)
	}
	if r.Query != nil {
		points = append(points, Point{
			Index:       QueryIndex,
			FeatureID:   "0",
			X:           r.Query.Coordinates[0],
			Y:           r.Query.Coordinates[1],
			Description: r.Query.Text,
			ClusterID:   NoCluster,
			IsQuery:     true,
		})
	}

	s := &Store{
		points:  points,
		levels:  levels,
		nearest: nearest,
	}
	if r.Query != nil {
		s.queryText = r.Query.Text
	}
	s.ApplyLevel(DefaultLevel(s.LevelKeys()))
	return s, nil
}

// DefaultLevel picks "10" when present, otherwise the lowest key.
func DefaultLevel(keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	for _, k := range keys {
		if k == "10" {
			return k
		}
	}
	sorted := append([]string(nil), keys...)
	SortLevelKeys(sorted)
	return sorted[0]
}

func convertLevel(key string, p ClusterPayload) (*ClusterLevel, error) {
	lvl := &ClusterLevel{
		Key:           key,
		Labels:        p.Labels,
		Colors:        p.Colors,
		Centers:       p.Centers,
		Topics:        make(map[int][]string, len(p.Topics)),
		TopicScores:   make(map[int][]float64, len(p.TopicScores)),
		ClusterColors: make(map[int]string, len(p.ClusterColors)),
	}
	count, _ := strconv.Atoi(key)
	for _, l := range p.Labels {
		if l+1 > count {
			count = l + 1
		}
	}
	if len(p.Centers) > count {
		count = len(p.Centers)
	}
	lvl.ClusterCount = count

	for k, v := range p.Topics {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, apperrors.New(apperrors.CodeProjectionMalformed, "topic key is not a cluster id").
				WithDetail(fmt.Sprintf("level=%s key=%q", key, k))
		}
		lvl.Topics[id] = v
	}
	for k, v := range p.TopicScores {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, apperrors.New(apperrors.CodeProjectionMalformed, "topic score key is not a cluster id").
				WithDetail(fmt.Sprintf("level=%s key=%q", key, k))
		}
		lvl.TopicScores[id] = v
	}
	for k, v := range p.ClusterColors {
		if id, err := strconv.Atoi(k); err == nil {
			lvl.ClusterColors[id] = v
		}
	}
	return lvl, nil
}
