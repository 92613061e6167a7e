package highlight

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FeatureScope/internal/domain/geom"
	"github.com/turtacn/FeatureScope/internal/domain/hexbin"
	"github.com/turtacn/FeatureScope/internal/domain/projection"
)

func similarPoints(sims ...float64) []projection.Point {
	out := make([]projection.Point, len(sims))
	for i, s := range sims {
		out[i] = projection.Point{
			Index:          i,
			FeatureID:      projection.FeatureID(fmt.Sprint(i)),
			X:              float64(i),
			Y:              float64(i),
			IsQuerySimilar: true,
			Visible:        true,
			Similarity:     projection.Float(s),
		}
	}
	return out
}

func unitScales() hexbin.Scales {
	return hexbin.Scales{
		X: hexbin.LinearScale{D0: 0, D1: 1, R0: 0, R1: 1},
		Y: hexbin.LinearScale{D0: 0, D1: 1, R0: 0, R1: 1},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Normalisation and remap
// ─────────────────────────────────────────────────────────────────────────────

func TestNormalize_EqualSimilaritiesAreNeutral(t *testing.T) {
	pts := similarPoints(0.9, 0.9, 0.9)
	s := ComputeStats(pts)
	for i := range pts {
		assert.Equal(t, 0.5, s.Normalize(pts[i].Similarity))
	}
}

func TestNormalize_Range(t *testing.T) {
	pts := similarPoints(0.2, 0.6, 0.9)
	s := ComputeStats(pts)
	assert.InDelta(t, 0, s.Normalize(pts[0].Similarity), 1e-9)
	assert.InDelta(t, 0.571, s.Normalize(pts[1].Similarity), 1e-3)
	assert.InDelta(t, 1, s.Normalize(pts[2].Similarity), 1e-9)
	assert.Equal(t, Neutral, s.Normalize(nil))
}

func TestComputeStats_IgnoresNonSimilar(t *testing.T) {
	pts := similarPoints(0.3, 0.7)
	pts = append(pts, projection.Point{Similarity: projection.Float(5)}, projection.Point{IsQuerySimilar: true})
	s := ComputeStats(pts)
	assert.Equal(t, Stats{Min: 0.3, Max: 0.7, Count: 2}, s)
}

func TestContrastRemap_Segments(t *testing.T) {
	assert.InDelta(t, 0.0, ContrastRemap(0), 1e-12)
	assert.InDelta(t, 0.1, ContrastRemap(0.2), 1e-12)
	assert.InDelta(t, 0.2, ContrastRemap(0.4), 1e-12)
	assert.InDelta(t, 0.45, ContrastRemap(0.5), 1e-12)
	assert.InDelta(t, 0.7, ContrastRemap(0.6), 1e-12)
	assert.InDelta(t, 1.0, ContrastRemap(1), 1e-12)
}

func TestContrastRemap_MonotonicAndContinuous(t *testing.T) {
	prev := ContrastRemap(0)
	for v := 0.001; v <= 1; v += 0.001 {
		cur := ContrastRemap(v)
		assert.GreaterOrEqual(t, cur, prev, "v=%g", v)
		prev = cur
	}
	for _, edge := range []float64{0.4, 0.6} {
		left := ContrastRemap(edge - 1e-9)
		right := ContrastRemap(edge)
		assert.InDelta(t, left, right, 1e-6, "continuous at %g", edge)
	}
}

func TestEnhance(t *testing.T) {
	assert.Equal(t, 0.0, Enhance(0))
	assert.Equal(t, 1.0, Enhance(1))
	assert.InDelta(t, math.Pow(0.5, 0.8), Enhance(0.5), 1e-12)
}

// ─────────────────────────────────────────────────────────────────────────────
// Point styles
// ─────────────────────────────────────────────────────────────────────────────

func TestFill(t *testing.T) {
	s := Stats{Min: 0, Max: 1, Count: 2}
	top := projection.Point{IsQuerySimilar: true, Similarity: projection.Float(1)}
	assert.Equal(t, "rgb(25, 118, 210)", Fill(&top, s))
	bottom := projection.Point{IsQuerySimilar: true, Similarity: projection.Float(0)}
	assert.Equal(t, "rgb(224, 224, 224)", Fill(&bottom, s))

	bg := projection.Point{Color: "#ff0000"}
	assert.Equal(t, "rgba(255, 0, 0, 0.3)", Fill(&bg, s))
	bg.IsVisibleInPanel = true
	assert.Equal(t, "rgba(255, 0, 0, 0.7)", Fill(&bg, s))
	assert.Equal(t, "#ccc", Fill(&projection.Point{}, s))
}

func TestStylePoints_OrderAndFilter(t *testing.T) {
	pts := similarPoints(0.9, 0.2, 0.5)
	pts = append(pts,
		projection.Point{Index: 3, FeatureID: "3", Visible: true, Color: "#00ff00", IsVisibleInPanel: true},
		projection.Point{Index: 4, FeatureID: "4", Visible: false},
		projection.Point{Index: 5, FeatureID: "5", Visible: true, RelatedTokens: []projection.RelatedToken{{Prompt: "p"}}},
		projection.Point{Index: projection.QueryIndex, FeatureID: "0", IsQuery: true, Visible: true},
	)

	styles := StylePoints(pts, unitScales(), 2, 1, "2")
	ids := make([]projection.FeatureID, len(styles))
	for i, s := range styles {
		ids[i] = s.FeatureID
	}
	assert.Equal(t, []projection.FeatureID{"3", "1", "2", "0"}, ids)

	assert.Equal(t, PanelStroke, styles[0].Stroke)
	assert.Equal(t, 1.0, styles[0].StrokeWidth)
	assert.Equal(t, "none", styles[1].Stroke)
	assert.Equal(t, 2.5, styles[1].Radius)
	assert.Equal(t, 4.0, styles[2].Radius, "hovered point is enlarged")
}

func TestStylePoints_NoRelatedMeansRelatedPointsAreRegular(t *testing.T) {
	pts := []projection.Point{{FeatureID: "1", Visible: true}}
	assert.Len(t, StylePoints(pts, unitScales(), 1, 0, ""), 1)
}

// ─────────────────────────────────────────────────────────────────────────────
// Annotations
// ─────────────────────────────────────────────────────────────────────────────

func TestSelectCandidates_TopAndSamples(t *testing.T) {
	sims := make([]float64, 120)
	for i := range sims {
		sims[i] = float64(120-i) / 120
	}
	cands := SelectCandidates(similarPoints(sims...))

	// top 5 plus positions 15, 30, 45, 60, 75, 90
	require.Len(t, cands, 11)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 16, 31, 46, 61, 76, 91}, ranks(cands))
	assert.Equal(t, projection.FeatureID("15"), cands[5].Point.FeatureID)
	assert.Equal(t, projection.FeatureID("90"), cands[10].Point.FeatureID)
}

func TestSelectCandidates_FewPoints(t *testing.T) {
	cands := SelectCandidates(similarPoints(0.1, 0.5, 0.3))
	assert.Equal(t, []int{1, 2, 3}, ranks(cands))
	assert.Equal(t, projection.FeatureID("1"), cands[0].Point.FeatureID)
	assert.Empty(t, SelectCandidates(nil))
}

func ranks(cands []Candidate) []int {
	out := make([]int, len(cands))
	for i, c := range cands {
		out[i] = c.Rank
	}
	return out
}

func TestFadeOpacity(t *testing.T) {
	assert.Equal(t, 0.0, FadeOpacity(1))
	assert.Equal(t, 0.0, FadeOpacity(2))
	assert.InDelta(t, 0.5, FadeOpacity(5), 1e-12)
	assert.Equal(t, 1.0, FadeOpacity(8))
	assert.Equal(t, 1.0, FadeOpacity(9))
}

func TestLayout_SkipsAtZeroOpacity(t *testing.T) {
	cands := SelectCandidates(similarPoints(0.9, 0.8))
	assert.Empty(t, Layout(cands, unitScales(), 2))
}

func TestLayout_Geometry(t *testing.T) {
	pts := []projection.Point{
		{FeatureID: "a", X: 10, Y: 0, IsQuerySimilar: true, Similarity: projection.Float(0.9), Description: "short"},
		{FeatureID: "b", X: -10, Y: 0, IsQuerySimilar: true, Similarity: projection.Float(0.8)},
	}
	k := 5.0
	anns := Layout(SelectCandidates(pts), unitScales(), k)
	require.Len(t, anns, 2)

	// draw order puts rank 1 last
	assert.Equal(t, 2, anns[0].Rank)
	a := anns[1]
	assert.Equal(t, 1, a.Rank)
	assert.Equal(t, geom.Vec{X: 10, Y: 0}, a.Anchor)
	assert.InDelta(t, 40, a.Box.X, 1e-9, "30px along +x from the centroid")
	assert.InDelta(t, 40, a.Box.Width, 1e-9)
	assert.InDelta(t, 16, a.Box.Height, 1e-9)
	assert.Equal(t, geom.Vec{X: 40, Y: 8}, a.ConnectorEnd, "west edge middle")
	assert.InDelta(t, 0.5, a.Opacity, 1e-12)
	assert.InDelta(t, 0.25, a.ConnectorOpacity, 1e-12)
	assert.Equal(t, "ID: a", a.IDText)
	assert.Equal(t, "Sim: 0.900", a.SimText)
	assert.Equal(t, "short", a.Line1)

	b := anns[0]
	assert.InDelta(t, -40, b.Box.X, 1e-9)
	assert.Equal(t, geom.Vec{X: -40 + 40, Y: 8}, b.ConnectorEnd, "east edge middle")
}

func TestLayout_SinglePointAtCentroid(t *testing.T) {
	pts := []projection.Point{{FeatureID: "a", X: 3, Y: 4, IsQuerySimilar: true, Similarity: projection.Float(1)}}
	anns := Layout(SelectCandidates(pts), unitScales(), 8)
	require.Len(t, anns, 1)
	assert.Equal(t, 3.0, anns[0].Box.X, "zero vector keeps the box on the point")
}

func TestConnectorOffset_Quadrants(t *testing.T) {
	w, h := 20.0, 10.0
	cases := []struct {
		deg  float64
		want geom.Vec
	}{
		{0, geom.Vec{X: 0, Y: 5}},
		{-45, geom.Vec{X: 0, Y: 5}},
		{45, geom.Vec{X: 10, Y: 0}},
		{90, geom.Vec{X: 10, Y: 0}},
		{135, geom.Vec{X: 20, Y: 5}},
		{180, geom.Vec{X: 20, Y: 5}},
		{-150, geom.Vec{X: 20, Y: 5}},
		{-135, geom.Vec{X: 10, Y: 10}},
		{-90, geom.Vec{X: 10, Y: 10}},
	}
	for _, tc := range cases {
		rad := tc.deg * math.Pi / 180
		dir := geom.Vec{X: math.Cos(rad), Y: math.Sin(rad)}
		if tc.deg == 45 || tc.deg == 135 || tc.deg == -135 || tc.deg == -45 {
			// nudge exact diagonals past floating noise in the intended direction
			dir = geom.Vec{X: math.Cos(rad + 1e-9), Y: math.Sin(rad + 1e-9)}
		}
		assert.Equal(t, tc.want, ConnectorOffset(dir, w, h), "angle %g", tc.deg)
	}
}

func TestCharsPerLine_ScaleInvariant(t *testing.T) {
	for _, k := range []float64{1, 2.5, 8} {
		assert.Equal(t, 30, CharsPerLine(BoxWidth/k, DescFontSize/k))
	}
}

func TestWrapDescription(t *testing.T) {
	l1, l2 := WrapDescription("fits on one line", 30)
	assert.Equal(t, "fits on one line", l1)
	assert.Empty(t, l2)

	text := "references to capital cities in europe"
	l1, l2 = WrapDescription(text, 30)
	assert.Equal(t, "references to capital cities", l1)
	assert.Equal(t, "in europe", l2)

	l1, l2 = WrapDescription("abcdefghijklmnopqrstuvwxyz0123456789", 30)
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyz0123", l1, "no usable space: hard break")
	assert.Equal(t, "456789", l2)

	long := strings.Repeat("word ", 20)
	l1, l2 = WrapDescription(long, 30)
	assert.Equal(t, "word word word word word word", l1)
	assert.True(t, strings.HasSuffix(l2, "..."))
	assert.LessOrEqual(t, len([]rune(l2)), 30)

	l1, l2 = WrapDescription("", 30)
	assert.Empty(t, l1)
	assert.Empty(t, l2)
}
