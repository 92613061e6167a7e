package projection

import (
	"fmt"
	"sort"
	"strconv"

	apperrors "github.com/turtacn/FeatureScope/pkg/errors"
)

// ClusterLevel is one clustering granularity, keyed by its label count.
type ClusterLevel struct {
	Key          string `json:"key"`
	ClusterCount int    `json:"cluster_count"`
	// Labels and Colors are indexed by point index.
	Labels []int    `json:"labels"`
	Colors []string `json:"colors"`
	// Centers is indexed by cluster id.
	Centers       [][2]float64      `json:"centers"`
	Topics        map[int][]string  `json:"topics"`
	TopicScores   map[int][]float64 `json:"topic_scores"`
	ClusterColors map[int]string    `json:"cluster_colors,omitempty"`
}

// Label returns the cluster id for a point index, NoCluster when absent.
func (l *ClusterLevel) Label(index int) int {
	if l == nil || index < 0 || index >= len(l.Labels) {
		return NoCluster
	}
	return l.Labels[index]
}

// Color returns the display color for a point index, "" when absent.
func (l *ClusterLevel) Color(index int) string {
	if l == nil || index < 0 || index >= len(l.Colors) {
		return ""
	}
	return l.Colors[index]
}

// Center returns the data-space centroid of a cluster.
func (l *ClusterLevel) Center(id int) ([2]float64, bool) {
	if l == nil || id < 0 || id >= len(l.Centers) {
		return [2]float64{}, false
	}
	return l.Centers[id], true
}

// LabelColor returns the topic-label color for a cluster, falling back to def.
func (l *ClusterLevel) LabelColor(id int, def string) string {
	if l != nil {
		if c, ok := l.ClusterColors[id]; ok && c != "" {
			return c
		}
	}
	return def
}

// Keyword is a topic word with its score.
type Keyword struct {
	Word  string  `json:"word"`
	Score float64 `json:"score"`
}

// TopKeywords returns at most n topic keywords of a cluster ordered by
// descending score. Missing scores count as zero; equal scores keep the
// upstream order.
func (l *ClusterLevel) TopKeywords(id, n int) []Keyword {
	if l == nil {
		return nil
	}
	topics := l.Topics[id]
	scores := l.TopicScores[id]
	out := make([]Keyword, len(topics))
	for i, w := range topics {
		var s float64
		if i < len(scores) {
			s = scores[i]
		}
		out[i] = Keyword{Word: w, Score: s}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// validate checks the per-index tables against the point count and the
// per-cluster tables against ClusterCount.
func (l *ClusterLevel) validate(pointCount int) error {
	if len(l.Labels) != pointCount || len(l.Colors) != pointCount {
		return apperrors.New(apperrors.CodeProjectionMalformed, "cluster level tables do not match the point count").
			WithDetail(fmt.Sprintf("level=%s points=%d labels=%d colors=%d", l.Key, pointCount, len(l.Labels), len(l.Colors)))
	}
	if len(l.Centers) > l.ClusterCount {
		return apperrors.New(apperrors.CodeProjectionMalformed, "cluster level has more centers than clusters").
			WithDetail(fmt.Sprintf("level=%s clusters=%d centers=%d", l.Key, l.ClusterCount, len(l.Centers)))
	}
	for id := range l.Topics {
		if id < 0 || id >= l.ClusterCount {
			return apperrors.New(apperrors.CodeProjectionMalformed, "topic cluster id out of range").
				WithDetail(fmt.Sprintf("level=%s id=%d clusters=%d", l.Key, id, l.ClusterCount))
		}
	}
	return nil
}

// SortLevelKeys orders level keys by their numeric value, non-numeric keys
// last in lexical order.
func SortLevelKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
}
