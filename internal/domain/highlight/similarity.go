// Package highlight turns query similarity into point emphasis and lays out
// the floating annotation labels around the query neighbourhood.
package highlight

import (
	"math"

	"github.com/turtacn/FeatureScope/internal/domain/projection"
)

// Neutral is the normalised value for absent or degenerate similarities.
const Neutral = 0.5

// Gamma is the exponent applied before the contrast remap.
const Gamma = 0.8

// Stats are the similarity bounds over the query-similar points.
type Stats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// ComputeStats collects min and max similarity over points that are
// query-similar and carry a similarity.
func ComputeStats(points []projection.Point) Stats {
	var s Stats
	for i := range points {
		p := &points[i]
		if !p.IsQuerySimilar || p.Similarity == nil {
			continue
		}
		v := *p.Similarity
		if s.Count == 0 || v < s.Min {
			s.Min = v
		}
		if s.Count == 0 || v > s.Max {
			s.Max = v
		}
		s.Count++
	}
	return s
}

// Normalize maps a similarity into [0, 1] against s. It returns Neutral when
// the similarity is absent or every similarity is equal.
func (s Stats) Normalize(sim *float64) float64 {
	if sim == nil || s.Count == 0 || s.Max == s.Min {
		return Neutral
	}
	return (*sim - s.Min) / (s.Max - s.Min)
}

// Enhance applies the gamma curve.
func Enhance(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Pow(v, Gamma)
}

// ContrastRemap stretches the middle band and compresses the ends:
//
//	v ≥ 0.6        → 0.7 + (v-0.6)·0.75
//	0.4 ≤ v < 0.6  → 0.2 + (v-0.4)·2.5
//	v < 0.4        → v·0.5
func ContrastRemap(v float64) float64 {
	switch {
	case v >= 0.6:
		return 0.7 + (v-0.6)*0.75
	case v >= 0.4:
		return 0.2 + (v-0.4)*2.5
	default:
		return v * 0.5
	}
}

// Emphasis is the full pipeline normalise → enhance → remap.
func (s Stats) Emphasis(sim *float64) float64 {
	return ContrastRemap(Enhance(s.Normalize(sim)))
}
