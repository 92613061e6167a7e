// Package geom holds the small amount of plane geometry shared by the
// render components and an SVG path builder.
package geom

import (
	"math"
	"strconv"
	"strings"
)

// Vec is a 2D point or vector.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v+o.
func (v Vec) Add(o Vec) Vec { return Vec{v.X + o.X, v.Y + o.Y} }

// Sub returns v-o.
func (v Vec) Sub(o Vec) Vec { return Vec{v.X - o.X, v.Y - o.Y} }

// Scale returns v·s.
func (v Vec) Scale(s float64) Vec { return Vec{v.X * s, v.Y * s} }

// Len returns the Euclidean length of v.
func (v Vec) Len() float64 { return math.Hypot(v.X, v.Y) }

// Dist returns the distance between v and o.
func (v Vec) Dist(o Vec) float64 { return math.Hypot(v.X-o.X, v.Y-o.Y) }

// Rect is an axis-aligned rectangle.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// MaxX returns the right edge.
func (r Rect) MaxX() float64 { return r.X + r.Width }

// MaxY returns the bottom edge.
func (r Rect) MaxY() float64 { return r.Y + r.Height }

// Center returns the midpoint of r.
func (r Rect) Center() Vec { return Vec{r.X + r.Width/2, r.Y + r.Height/2} }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Vec) bool {
	return p.X >= r.X && p.X <= r.MaxX() && p.Y >= r.Y && p.Y <= r.MaxY()
}

// Inflate grows r by pad on every side.
func (r Rect) Inflate(pad float64) Rect {
	return Rect{r.X - pad, r.Y - pad, r.Width + 2*pad, r.Height + 2*pad}
}

// Union returns the smallest rectangle containing r and o.
func (r Rect) Union(o Rect) Rect {
	minX := math.Min(r.X, o.X)
	minY := math.Min(r.Y, o.Y)
	return Rect{minX, minY, math.Max(r.MaxX(), o.MaxX()) - minX, math.Max(r.MaxY(), o.MaxY()) - minY}
}

// SquareAround returns the square of half-size h centred on c.
func SquareAround(c Vec, h float64) Rect {
	return Rect{c.X - h, c.Y - h, 2 * h, 2 * h}
}

// Clamp01 clamps v to [0, 1].
func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Round mirrors JavaScript Math.round: halves round towards +Inf.
func Round(v float64) float64 { return math.Floor(v + 0.5) }

// ─────────────────────────────────────────────────────────────────────────────
// SVG paths
// ─────────────────────────────────────────────────────────────────────────────

// Num formats a coordinate with at most three decimals and no trailing zeros.
func Num(v float64) string {
	if v == 0 || math.Abs(v) < 5e-4 {
		return "0"
	}
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}

// Path accumulates absolute SVG path commands.
type Path struct {
	sb strings.Builder
}

// MoveTo starts a subpath.
func (p *Path) MoveTo(v Vec) *Path {
	p.cmd('M', v)
	return p
}

// LineTo draws a straight segment.
func (p *Path) LineTo(v Vec) *Path {
	p.cmd('L', v)
	return p
}

// Close ends the subpath.
func (p *Path) Close() *Path {
	p.sb.WriteByte('Z')
	return p
}

func (p *Path) cmd(c byte, v Vec) {
	p.sb.WriteByte(c)
	p.sb.WriteString(Num(v.X))
	p.sb.WriteByte(',')
	p.sb.WriteString(Num(v.Y))
}

// String returns the path data.
func (p *Path) String() string { return p.sb.String() }

// Polygon returns a closed path through pts, "" for fewer than three points.
func Polygon(pts []Vec) string {
	if len(pts) < 3 {
		return ""
	}
	var p Path
	p.MoveTo(pts[0])
	for _, v := range pts[1:] {
		p.LineTo(v)
	}
	return p.Close().String()
}
