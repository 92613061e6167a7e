package highlight

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/turtacn/FeatureScope/internal/domain/geom"
	"github.com/turtacn/FeatureScope/internal/domain/hexbin"
	"github.com/turtacn/FeatureScope/internal/domain/projection"
)

// Annotation layout constants, in pixels at scale 1.
const (
	TopCount       = 5
	SampleStride   = 15
	SampleLimit    = 100
	BoxOffset      = 30
	BoxWidth       = 200
	BoxHeight      = 80
	IDFontSize     = 10
	DescFontSize   = 11
	RankRadius     = 8
	FadeStartScale = 2
	FadeEndScale   = 8
	AnnotationInk  = "#1976d2"
	AnnotationFill = "rgba(255, 255, 255, 0.9)"
)

// Candidate is a similar point chosen for annotation with its rank.
type Candidate struct {
	Point projection.Point
	Rank  int
}

// SelectCandidates sorts the query-similar points by descending similarity
// and keeps the top five plus every fifteenth point below them (positions
// 15, 30, … under 100). Ranks are 1–5 for the top and (i-5)·15+16 for the
// sampled position i.
func SelectCandidates(points []projection.Point) []Candidate {
	var similar []projection.Point
	for i := range points {
		if points[i].IsQuerySimilar && points[i].Similarity != nil {
			similar = append(similar, points[i])
		}
	}
	sort.SliceStable(similar, func(a, b int) bool {
		return similar[a].SimilarityValue() > similar[b].SimilarityValue()
	})

	var out []Candidate
	for i := 0; i < len(similar) && i < TopCount; i++ {
		out = append(out, Candidate{Point: similar[i], Rank: i + 1})
	}
	limit := len(similar)
	if limit > SampleLimit {
		limit = SampleLimit
	}
	for i := SampleStride; i < limit; i += SampleStride {
		pos := len(out)
		out = append(out, Candidate{Point: similar[i], Rank: (pos-TopCount)*SampleStride + 16})
	}
	return out
}

// FadeOpacity is the annotation opacity at scale k: 0 up to scale 2, rising
// linearly to 1 at scale 8.
func FadeOpacity(k float64) float64 {
	return geom.Clamp01((k - FadeStartScale) / (FadeEndScale - FadeStartScale))
}

// Annotation is one floating label and its connector.
type Annotation struct {
	FeatureID        projection.FeatureID `json:"feature_id"`
	Rank             int                  `json:"rank"`
	Anchor           geom.Vec             `json:"anchor"`
	Box              geom.Rect            `json:"box"`
	ConnectorEnd     geom.Vec             `json:"connector_end"`
	Opacity          float64              `json:"opacity"`
	ConnectorOpacity float64              `json:"connector_opacity"`
	Dash             float64              `json:"dash"`
	StrokeWidth      float64              `json:"stroke_width"`
	CornerRadius     float64              `json:"corner_radius"`
	RankRadius       float64              `json:"rank_radius"`
	IDFontSize       float64              `json:"id_font_size"`
	DescFontSize     float64              `json:"desc_font_size"`
	IDText           string               `json:"id_text"`
	SimText          string               `json:"sim_text"`
	Line1            string               `json:"line1"`
	Line2            string               `json:"line2,omitempty"`
	Ink              string               `json:"ink"`
	Fill             string               `json:"fill"`
}

// Layout places annotations for the candidates at scale k. The offset
// direction of each box is the unit vector from the centroid of the top
// candidates to the candidate. At zero opacity nothing is emitted. The
// result is in draw order: lowest rank last, so the top match is on top.
func Layout(cands []Candidate, scales hexbin.Scales, k float64) []Annotation {
	if k <= 0 {
		k = 1
	}
	opacity := FadeOpacity(k)
	if opacity <= 0 || len(cands) == 0 {
		return nil
	}

	var centroid geom.Vec
	top := 0
	for i := 0; i < len(cands) && i < TopCount; i++ {
		centroid = centroid.Add(scales.Pixel(&cands[i].Point))
		top++
	}
	centroid = centroid.Scale(1 / float64(top))

	width, height := BoxWidth/k, BoxHeight/k
	descSize := DescFontSize / k
	perLine := CharsPerLine(width, descSize)

	out := make([]Annotation, 0, len(cands))
	for i := len(cands) - 1; i >= 0; i-- {
		c := cands[i]
		anchor := scales.Pixel(&c.Point)
		v := anchor.Sub(centroid)
		length := v.Len()
		if length == 0 {
			length = 1
		}
		dir := v.Scale(1 / length)
		origin := anchor.Add(dir.Scale(BoxOffset))

		line1, line2 := WrapDescription(c.Point.Description, perLine)
		out = append(out, Annotation{
			FeatureID:        c.Point.FeatureID,
			Rank:             c.Rank,
			Anchor:           anchor,
			Box:              geom.Rect{X: origin.X, Y: origin.Y, Width: width, Height: height},
			ConnectorEnd:     origin.Add(ConnectorOffset(dir, width, height)),
			Opacity:          opacity,
			ConnectorOpacity: opacity * 0.5,
			Dash:             3 / k,
			StrokeWidth:      1 / k,
			CornerRadius:     6 / k,
			RankRadius:       RankRadius / k,
			IDFontSize:       IDFontSize / k,
			DescFontSize:     descSize,
			IDText:           fmt.Sprintf("ID: %s", c.Point.FeatureID),
			SimText:          fmt.Sprintf("Sim: %.3f", c.Point.SimilarityValue()),
			Line1:            line1,
			Line2:            line2,
			Ink:              AnnotationInk,
			Fill:             AnnotationFill,
		})
	}
	return out
}

// ConnectorOffset returns where the connector meets a w×h box, relative to
// the box origin, for a box offset along dir: the west edge for
// [-45°, 45°), the top edge for [45°, 135°), the east edge for
// [135°, 180°] and [-180°, -135°), the bottom edge otherwise.
func ConnectorOffset(dir geom.Vec, w, h float64) geom.Vec {
	angle := math.Atan2(dir.Y, dir.X) * 180 / math.Pi
	switch {
	case angle >= -45 && angle < 45:
		return geom.Vec{X: 0, Y: h / 2}
	case angle >= 45 && angle < 135:
		return geom.Vec{X: w / 2, Y: 0}
	case angle >= 135 || angle < -135:
		return geom.Vec{X: w, Y: h / 2}
	default:
		return geom.Vec{X: w / 2, Y: h}
	}
}

// CharsPerLine is the description budget for a box width at a font size.
func CharsPerLine(width, fontSize float64) int {
	return int(math.Floor(width / (fontSize * 0.6)))
}

// WrapDescription splits text into at most two lines of n characters. The
// break is the last space at or before n when it lies past n/2, else n. Text
// longer than two lines has its second line cut to n-3 characters plus
// "...".
func WrapDescription(text string, n int) (string, string) {
	r := []rune(text)
	if len(r) == 0 || n <= 0 {
		return "", ""
	}
	if len(r) <= n {
		return text, ""
	}

	split := n
	if b := lastSpace(r, n); b*2 > n {
		split = b
	}
	line1 := string(r[:split])
	if len(r) <= 2*n {
		return line1, strings.TrimSpace(string(r[split:]))
	}
	end := split + n - 3
	if end > len(r) {
		end = len(r)
	}
	return line1, strings.TrimSpace(string(r[split:end])) + "..."
}

// lastSpace returns the index of the last space in r at or before from, -1
// when there is none.
func lastSpace(r []rune, from int) int {
	if from >= len(r) {
		from = len(r) - 1
	}
	for i := from; i >= 0; i-- {
		if r[i] == ' ' {
			return i
		}
	}
	return -1
}
