package render

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/turtacn/FeatureScope/internal/domain/geom"
	"github.com/turtacn/FeatureScope/internal/domain/hexbin"
	"github.com/turtacn/FeatureScope/internal/domain/highlight"
	"github.com/turtacn/FeatureScope/internal/domain/outline"
	"github.com/turtacn/FeatureScope/internal/domain/projection"
	"github.com/turtacn/FeatureScope/internal/domain/zoom"
)

// Overlay constants.
const (
	TopicMinScale       = 0.8
	TopicLabelInk       = "#333"
	RelatedFill         = "#ff5722"
	RelatedHalfSize     = 4
	PinHeadRadius       = 8
	PinLength           = 24
	PinTipWidth         = 2
	PinHeadFill         = "rgb(225, 25, 25)"
	PinHeadStroke       = "#880000"
	PinNeedleFill       = "#666"
	PinNeedleStroke     = "#333"
	FocusRadius         = 6
	FocusStrokeWidth    = 2
	FocusFadeIn         = 300 * time.Millisecond
	HoverTopicCount     = 5
	AnalyzingMessage    = "Analyzing tokens..."
	tooltipPromptPrefix = 15
)

// Frame is the declarative visual state of a session after one command.
// Geometry is in untransformed pixel space; clients apply View.Transform.
type Frame struct {
	SessionID   string                      `json:"session_id"`
	Seq         uint64                      `json:"seq"`
	Trigger     string                      `json:"trigger"`
	Level       string                      `json:"level"`
	View        zoom.ViewState              `json:"view"`
	Transition  *Transition                 `json:"transition,omitempty"`
	Cells       []hexbin.Cell               `json:"cells"`
	Points      []highlight.PointStyle      `json:"points"`
	Annotations []highlight.Annotation      `json:"annotations,omitempty"`
	Outline     *Outline                    `json:"outline,omitempty"`
	Topics      []TopicLabel                `json:"topics,omitempty"`
	QueryPin    *QueryPin                   `json:"query_pin,omitempty"`
	Related     []RelatedMarker             `json:"related,omitempty"`
	Tooltip     *Tooltip                    `json:"tooltip,omitempty"`
	Focus       *FocusRing                  `json:"focus,omitempty"`
	Banner      *Banner                     `json:"banner,omitempty"`
	Selection   *Selection                  `json:"selection,omitempty"`
	Neighbours  []projection.NearestFeature `json:"neighbours"`
	Analyzing   bool                        `json:"analyzing,omitempty"`
	CommittedAt time.Time                   `json:"committed_at"`
}

// Transition asks the client to animate to Target.
type Transition struct {
	Target   zoom.Transform `json:"target"`
	Duration time.Duration  `json:"duration"`
}

// Outline is the bubble-set contour around the max-related points.
type Outline struct {
	Path        string  `json:"path"`
	Fill        string  `json:"fill"`
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"stroke_width"`
	Members     int     `json:"members"`
	Enclosed    bool    `json:"enclosed"`
}

// TopicLabel is the keyword stack drawn at a cluster centre.
type TopicLabel struct {
	ClusterID         int      `json:"cluster_id"`
	Anchor            geom.Vec `json:"anchor"`
	Topics            []string `json:"topics"`
	FontSize          float64  `json:"font_size"`
	SecondaryFontSize float64  `json:"secondary_font_size"`
	Color             string   `json:"color"`
	StrokeWidth       float64  `json:"stroke_width"`
	Padding           float64  `json:"padding"`
}

// QueryPin is the push-pin marking the query position.
type QueryPin struct {
	Anchor            geom.Vec `json:"anchor"`
	HeadRadius        float64  `json:"head_radius"`
	NeedleLength      float64  `json:"needle_length"`
	TipWidth          float64  `json:"tip_width"`
	NeedlePath        string   `json:"needle_path"`
	HeadFill          string   `json:"head_fill"`
	HeadStroke        string   `json:"head_stroke"`
	HeadStrokeWidth   float64  `json:"head_stroke_width"`
	NeedleFill        string   `json:"needle_fill"`
	NeedleStroke      string   `json:"needle_stroke"`
	NeedleStrokeWidth float64  `json:"needle_stroke_width"`
}

// RelatedMarker is the triangle drawn for a max-related point.
type RelatedMarker struct {
	FeatureID      projection.FeatureID `json:"feature_id"`
	Center         geom.Vec             `json:"center"`
	Path           string               `json:"path"`
	Fill           string               `json:"fill"`
	Stroke         string               `json:"stroke"`
	StrokeWidth    float64              `json:"stroke_width"`
	Tokens         int                  `json:"tokens"`
	VisibleInPanel bool                 `json:"visible_in_panel,omitempty"`
}

// Tooltip is the hover overlay content.
type Tooltip struct {
	Target      string               `json:"target"`
	ID          string               `json:"id,omitempty"`
	Title       string               `json:"title"`
	Badge       string               `json:"badge,omitempty"`
	Description string               `json:"description,omitempty"`
	Keywords    []projection.Keyword `json:"keywords,omitempty"`
	Lines       []string             `json:"lines,omitempty"`
}

// FocusRing highlights the point the view was moved to.
type FocusRing struct {
	FeatureID   projection.FeatureID `json:"feature_id"`
	Center      geom.Vec             `json:"center"`
	Radius      float64              `json:"radius"`
	Stroke      string               `json:"stroke"`
	StrokeWidth float64              `json:"stroke_width"`
	FadeIn      time.Duration        `json:"fade_in"`
}

// Banner is a transient notice shown on one frame.
type Banner struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Banner kinds.
const (
	BannerInfo  = "info"
	BannerError = "error"
)

// Selection is the clicked point and its detail neighbours.
type Selection struct {
	FeatureID  projection.FeatureID        `json:"feature_id"`
	Neighbours []projection.NearestFeature `json:"neighbours"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Layer builders
// ─────────────────────────────────────────────────────────────────────────────

// TopicLabels places the keyword stacks of level at scale k. Nothing is
// drawn at or below TopicMinScale.
func TopicLabels(level *projection.ClusterLevel, scales hexbin.Scales, k float64) []TopicLabel {
	if level == nil || k <= TopicMinScale {
		return nil
	}
	show := 2
	switch {
	case k > 2.5:
		show = 4
	case k > 1.5:
		show = 3
	}
	font := math.Min(16, math.Max(14, 16*k)) / k

	ids := make([]int, 0, len(level.Topics))
	for id := range level.Topics {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []TopicLabel
	for _, id := range ids {
		topics := level.Topics[id]
		center, ok := level.Center(id)
		if !ok || len(topics) == 0 {
			continue
		}
		n := show
		if n > len(topics) {
			n = len(topics)
		}
		out = append(out, TopicLabel{
			ClusterID:         id,
			Anchor:            geom.Vec{X: scales.X.Map(center[0]), Y: scales.Y.Map(center[1])},
			Topics:            append([]string(nil), topics[:n]...),
			FontSize:          font,
			SecondaryFontSize: font * 0.9,
			Color:             level.LabelColor(id, TopicLabelInk),
			StrokeWidth:       1 / k,
			Padding:           4 / k,
		})
	}
	return out
}

// NewQueryPin builds the pin for the query point, or nil without a query.
func NewQueryPin(store *projection.Store, scales hexbin.Scales, k float64) *QueryPin {
	q, ok := store.QueryPoint()
	if !ok {
		return nil
	}
	length := PinLength / k
	tip := PinTipWidth / k
	var p geom.Path
	p.MoveTo(geom.Vec{}).
		LineTo(geom.Vec{Y: -length}).
		LineTo(geom.Vec{X: -tip / 2, Y: -length * 0.7}).
		LineTo(geom.Vec{Y: -length * 0.5}).
		LineTo(geom.Vec{X: tip / 2, Y: -length * 0.7}).
		LineTo(geom.Vec{Y: -length}).
		Close()
	return &QueryPin{
		Anchor:            scales.Pixel(&q),
		HeadRadius:        PinHeadRadius / k,
		NeedleLength:      length,
		TipWidth:          tip,
		NeedlePath:        p.String(),
		HeadFill:          PinHeadFill,
		HeadStroke:        PinHeadStroke,
		HeadStrokeWidth:   1 / k,
		NeedleFill:        PinNeedleFill,
		NeedleStroke:      PinNeedleStroke,
		NeedleStrokeWidth: 0.5 / k,
	}
}

// RelatedMarkers builds one triangle per visible max-related point.
func RelatedMarkers(related []projection.Point, scales hexbin.Scales, k float64) []RelatedMarker {
	if len(related) == 0 {
		return nil
	}
	h := RelatedHalfSize / k
	out := make([]RelatedMarker, 0, len(related))
	for i := range related {
		p := &related[i]
		if !p.Visible {
			continue
		}
		c := scales.Pixel(p)
		var path geom.Path
		path.MoveTo(geom.Vec{X: c.X, Y: c.Y - h}).
			LineTo(geom.Vec{X: c.X + h, Y: c.Y + h}).
			LineTo(geom.Vec{X: c.X - h, Y: c.Y + h}).
			Close()
		width := 1 / k
		if p.IsVisibleInPanel {
			width = 2 / k
		}
		out = append(out, RelatedMarker{
			FeatureID:      p.FeatureID,
			Center:         c,
			Path:           path.String(),
			Fill:           RelatedFill,
			Stroke:         RelatedFill,
			StrokeWidth:    width,
			Tokens:         len(p.RelatedTokens),
			VisibleInPanel: p.IsVisibleInPanel,
		})
	}
	return out
}

// NewFocusRing builds the highlight circle drawn around a focused point.
func NewFocusRing(p *projection.Point, scales hexbin.Scales) *FocusRing {
	stroke := p.Color
	if stroke == "" {
		stroke = highlight.AnnotationInk
	}
	return &FocusRing{
		FeatureID:   p.FeatureID,
		Center:      scales.Pixel(p),
		Radius:      FocusRadius,
		Stroke:      stroke,
		StrokeWidth: FocusStrokeWidth,
		FadeIn:      FocusFadeIn,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Tooltips
// ─────────────────────────────────────────────────────────────────────────────

// CellTooltip describes a hex cell by its dominant cluster.
func CellTooltip(cell *hexbin.Cell, level *projection.ClusterLevel) *Tooltip {
	return &Tooltip{
		Target:   TargetCell,
		ID:       cell.ID,
		Title:    "Cluster " + strconv.Itoa(cell.DominantClusterID),
		Badge:    strconv.Itoa(len(cell.Members)) + " features",
		Keywords: level.TopKeywords(cell.DominantClusterID, HoverTopicCount),
	}
}

// PointTooltip describes a regular point.
func PointTooltip(p *projection.Point) *Tooltip {
	t := &Tooltip{
		Target:      TargetPoint,
		ID:          p.FeatureID.String(),
		Title:       "Feature ID: " + p.FeatureID.String(),
		Description: p.Description,
	}
	if p.SimilarityValue() != 0 {
		t.Badge = fmt.Sprintf("Similarity: %.3f", p.SimilarityValue())
	}
	if p.RelatedTokens != nil {
		t.Lines = []string{"Related tokens: " + strconv.Itoa(len(p.RelatedTokens))}
	}
	return t
}

// RelatedTooltip describes a max-related point with its activations.
func RelatedTooltip(p *projection.Point) *Tooltip {
	t := &Tooltip{
		Target:      TargetRelated,
		ID:          p.FeatureID.String(),
		Title:       "Intersection Feature ID: " + p.FeatureID.String(),
		Badge:       "Related tokens: " + strconv.Itoa(len(p.RelatedTokens)),
		Description: p.Description,
	}
	for _, rt := range p.RelatedTokens {
		prompt := []rune(rt.Prompt)
		if len(prompt) > tooltipPromptPrefix {
			prompt = prompt[:tooltipPromptPrefix]
		}
		t.Lines = append(t.Lines, fmt.Sprintf("%s...[%d]: %.3f", string(prompt), rt.TokenIndex, rt.Activation))
	}
	return t
}

// QueryTooltip describes the query pin.
func QueryTooltip(store *projection.Store) *Tooltip {
	t := &Tooltip{Target: TargetQuery, Title: "Query", Description: store.QueryText()}
	if n := len(store.Nearest()); n > 0 {
		t.Badge = strconv.Itoa(n) + " nearest features"
	}
	return t
}

// ─────────────────────────────────────────────────────────────────────────────
// Outline conversion
// ─────────────────────────────────────────────────────────────────────────────

func toOutline(o *outline.Outline) *Outline {
	if o == nil {
		return nil
	}
	return &Outline{
		Path:        o.Path,
		Fill:        o.Fill,
		Stroke:      o.Stroke,
		StrokeWidth: o.StrokeWidth,
		Members:     o.Members,
		Enclosed:    o.Enclosed,
	}
}

// relaxations counts how many times the field threshold was relaxed to reach
// used.
func relaxations(opts outline.Options, used float64) float64 {
	if used <= 0 || used >= opts.Threshold || opts.Relax <= 0 || opts.Relax >= 1 {
		return 0
	}
	return math.Round(math.Log(used/opts.Threshold) / math.Log(opts.Relax))
}
