package highlight

import (
	"sort"

	"github.com/turtacn/FeatureScope/internal/domain/geom"
	"github.com/turtacn/FeatureScope/internal/domain/hexbin"
	"github.com/turtacn/FeatureScope/internal/domain/palette"
	"github.com/turtacn/FeatureScope/internal/domain/projection"
)

// Point styling constants.
const (
	PanelStroke     = "#ed5f74"
	PanelAlpha      = 0.7
	BackgroundAlpha = 0.3
	PointRadius     = 5
	HoverRadius     = 8
)

// PointStyle is one drawn circle.
type PointStyle struct {
	FeatureID   projection.FeatureID `json:"feature_id"`
	Index       int                  `json:"index"`
	Center      geom.Vec             `json:"center"`
	Radius      float64              `json:"radius"`
	Fill        string               `json:"fill"`
	Stroke      string               `json:"stroke"`
	StrokeWidth float64              `json:"stroke_width"`
	Similar     bool                 `json:"similar,omitempty"`
	Selected    bool                 `json:"selected,omitempty"`
	Emphasis    float64              `json:"emphasis,omitempty"`
}

// Fill returns the fill of a regular point: the similarity ramp for
// query-similar points, otherwise the cluster color at 0.7 alpha when the
// point is listed in the panel and 0.3 alpha when not.
func Fill(p *projection.Point, s Stats) string {
	if p.IsQuerySimilar {
		return palette.SimilarityColor(s.Emphasis(p.Similarity))
	}
	if p.Color == "" {
		return palette.Fallback
	}
	alpha := BackgroundAlpha
	if p.IsVisibleInPanel {
		alpha = PanelAlpha
	}
	return palette.AddAlpha(p.Color, alpha)
}

// IsRegular reports whether p is drawn in the regular point layer: visible,
// not the query and not one of the max-related points.
func IsRegular(p *projection.Point, maxRelated int) bool {
	return p.Visible && !p.IsQuery && !projection.IsMaxRelated(p, maxRelated)
}

// StylePoints styles the regular point layer for view scale k. Non-similar
// points come first in store order, followed by similar points in ascending
// similarity so the strongest matches are drawn last. hovered enlarges one
// feature's radius.
func StylePoints(points []projection.Point, scales hexbin.Scales, k float64, maxRelated int, hovered projection.FeatureID) []PointStyle {
	if k <= 0 {
		k = 1
	}
	stats := ComputeStats(points)

	var plain, similar []int
	for i := range points {
		p := &points[i]
		if !IsRegular(p, maxRelated) {
			continue
		}
		if p.IsQuerySimilar {
			similar = append(similar, i)
		} else {
			plain = append(plain, i)
		}
	}
	sort.SliceStable(similar, func(a, b int) bool {
		return points[similar[a]].SimilarityValue() < points[similar[b]].SimilarityValue()
	})

	out := make([]PointStyle, 0, len(plain)+len(similar))
	for _, i := range append(plain, similar...) {
		p := &points[i]
		st := PointStyle{
			FeatureID: p.FeatureID,
			Index:     p.Index,
			Center:    scales.Pixel(p),
			Radius:    PointRadius / k,
			Fill:      Fill(p, stats),
			Stroke:    "none",
			Similar:   p.IsQuerySimilar,
			Selected:  p.IsSelected,
		}
		if p.IsQuerySimilar {
			st.Emphasis = stats.Emphasis(p.Similarity)
		}
		if p.IsVisibleInPanel {
			st.Stroke = PanelStroke
			st.StrokeWidth = 2 / k
		}
		if hovered != "" && p.FeatureID == hovered {
			st.Radius = HoverRadius / k
		}
		out = append(out, st)
	}
	return out
}
