// Package outline synthesizes the bubble-set contour drawn around the
// features most strongly related to the current token selection.
//
// Members are padded squares connected by virtual edges. Nodes and edges
// radiate a potential sampled on a coarse grid and the region above the
// threshold is traced with marching squares. When the traced contour leaves
// a member outside, the threshold is relaxed and the trace repeated.
package outline

import (
	"math"

	"github.com/turtacn/FeatureScope/internal/domain/geom"
)

// Style applied to every outline.
const (
	Fill   = "rgba(255, 102, 0, 0.15)"
	Stroke = "rgba(255, 102, 0, 0.5)"

	// MemberHalfSize and MemberPadding are screen pixels; members are
	// sized by 1/k in pixel space.
	MemberHalfSize = 4
	MemberPadding  = 8
)

// Options tunes the energy field. Distances are untransformed pixels.
type Options struct {
	PixelGroup    float64
	EdgeR0        float64
	EdgeR1        float64
	NodeR0        float64
	NodeR1        float64
	NodeInfluence float64
	EdgeInfluence float64
	Threshold     float64
	// Relax multiplies the threshold after a failed trace.
	Relax         float64
	MaxIterations int
	// Granularity is the number of spline samples per control span.
	Granularity int
}

// DefaultOptions returns the standard bubble-set parameters.
func DefaultOptions() Options {
	return Options{
		PixelGroup:    4,
		EdgeR0:        10,
		EdgeR1:        20,
		NodeR0:        15,
		NodeR1:        50,
		NodeInfluence: 1,
		EdgeInfluence: 1,
		Threshold:     1,
		Relax:         0.95,
		MaxIterations: 20,
		Granularity:   6,
	}
}

// Outline is a closed contour in untransformed pixel space. StrokeWidth is
// already divided by the zoom scale.
type Outline struct {
	Points      []geom.Vec
	Path        string
	Fill        string
	Stroke      string
	StrokeWidth float64
	Members     int
	// Threshold is the field level the contour was traced at.
	Threshold float64
	// Enclosed is false when relaxing the threshold never captured every
	// member; the last trace is returned anyway.
	Enclosed bool
}

// Synthesizer builds outlines with a fixed option set.
type Synthesizer struct {
	opts Options
}

// New returns a Synthesizer. Zero-valued options take their defaults.
func New(opts Options) *Synthesizer {
	def := DefaultOptions()
	if opts.PixelGroup <= 0 {
		opts.PixelGroup = def.PixelGroup
	}
	if opts.EdgeR1 <= opts.EdgeR0 {
		opts.EdgeR0, opts.EdgeR1 = def.EdgeR0, def.EdgeR1
	}
	if opts.NodeR1 <= opts.NodeR0 {
		opts.NodeR0, opts.NodeR1 = def.NodeR0, def.NodeR1
	}
	if opts.NodeInfluence == 0 {
		opts.NodeInfluence = def.NodeInfluence
	}
	if opts.EdgeInfluence == 0 {
		opts.EdgeInfluence = def.EdgeInfluence
	}
	if opts.Threshold <= 0 {
		opts.Threshold = def.Threshold
	}
	if opts.Relax <= 0 || opts.Relax >= 1 {
		opts.Relax = def.Relax
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.Granularity <= 0 {
		opts.Granularity = def.Granularity
	}
	return &Synthesizer{opts: opts}
}

// Options returns the effective options.
func (s *Synthesizer) Options() Options { return s.opts }

// Synthesize outlines the members, given as untransformed pixel positions,
// at zoom scale k. The field is sampled in untransformed pixels, so its
// grid does not grow with k. It returns nil for no members.
func (s *Synthesizer) Synthesize(members []geom.Vec, k float64) *Outline {
	if len(members) == 0 {
		return nil
	}
	if k <= 0 {
		k = 1
	}

	pts, threshold, enclosed := s.Contour(memberRects(members, k))
	if len(pts) == 0 {
		return nil
	}
	return &Outline{
		Points:      pts,
		Path:        geom.Polygon(pts),
		Fill:        Fill,
		Stroke:      Stroke,
		StrokeWidth: 1 / k,
		Members:     len(members),
		Threshold:   threshold,
		Enclosed:    enclosed,
	}
}

// Contour traces and smooths the outline around rects in their own
// coordinate space. It reports the threshold used and whether every rect
// centre ended up inside.
func (s *Synthesizer) Contour(rects []geom.Rect) ([]geom.Vec, float64, bool) {
	if len(rects) == 0 {
		return nil, 0, false
	}
	edges := connect(rects)
	f := s.energy(rects, edges)

	threshold := s.opts.Threshold
	var raw []geom.Vec
	for it := 0; it <= s.opts.MaxIterations; it++ {
		raw = trace(f, threshold)
		if len(raw) > 0 && enclosesAll(raw, rects) {
			return s.smooth(raw), threshold, true
		}
		threshold *= s.opts.Relax
	}
	if len(raw) == 0 {
		return nil, threshold, false
	}
	return s.smooth(raw), threshold, false
}

// memberRects returns the padded member squares at zoom scale k.
func memberRects(members []geom.Vec, k float64) []geom.Rect {
	rects := make([]geom.Rect, len(members))
	for i, m := range members {
		rects[i] = geom.SquareAround(m, MemberHalfSize/k).Inflate(MemberPadding / k)
	}
	return rects
}

func (s *Synthesizer) smooth(raw []geom.Vec) []geom.Vec {
	out := simplify(raw, 0)
	out = bspline(out, s.opts.Granularity)
	return simplify(out, 0)
}

func enclosesAll(poly []geom.Vec, rects []geom.Rect) bool {
	for _, r := range rects {
		if !contains(poly, r.Center()) {
			return false
		}
	}
	return true
}

// energy samples node and edge potential over the bounding region grown by
// the largest influence radius plus one cell of margin.
func (s *Synthesizer) energy(rects []geom.Rect, edges []segment) *field {
	o := s.opts
	region := rects[0]
	for _, r := range rects[1:] {
		region = region.Union(r)
	}
	margin := math.Max(o.NodeR1, o.EdgeR1) + o.PixelGroup
	region = region.Inflate(margin)

	f := &field{
		origin: geom.Vec{X: region.X, Y: region.Y},
		step:   o.PixelGroup,
		w:      int(math.Ceil(region.Width/o.PixelGroup)) + 1,
		h:      int(math.Ceil(region.Height/o.PixelGroup)) + 1,
	}
	f.values = make([]float64, f.w*f.h)

	for _, r := range rects {
		i0, j0, i1, j1 := f.cellRange(r, o.NodeR1)
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				if v := influence(rectDistance(f.center(i, j), r), o.NodeR0, o.NodeR1, o.NodeInfluence); v > 0 {
					f.add(i, j, v)
				}
			}
		}
	}
	for _, e := range edges {
		i0, j0, i1, j1 := f.cellRange(segmentBounds(e), o.EdgeR1)
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				if v := influence(segmentDistance(f.center(i, j), e), o.EdgeR0, o.EdgeR1, o.EdgeInfluence); v > 0 {
					f.add(i, j, v)
				}
			}
		}
	}
	return f
}
