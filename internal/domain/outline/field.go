package outline

import (
	"math"

	"github.com/turtacn/FeatureScope/internal/domain/geom"
)

// segment is a virtual edge between two member centres.
type segment struct {
	a, b geom.Vec
}

// field is the sampled potential over the active region.
type field struct {
	origin geom.Vec
	step   float64
	w, h   int
	values []float64
}

func (f *field) at(i, j int) float64 {
	if i < 0 || j < 0 || i >= f.w || j >= f.h {
		return 0
	}
	return f.values[j*f.w+i]
}

func (f *field) add(i, j int, v float64) {
	f.values[j*f.w+i] += v
}

// center returns the sample position of cell (i, j).
func (f *field) center(i, j int) geom.Vec {
	return geom.Vec{X: f.origin.X + (float64(i)+0.5)*f.step, Y: f.origin.Y + (float64(j)+0.5)*f.step}
}

// corner returns the position of lattice corner (i, j).
func (f *field) corner(i, j int) geom.Vec {
	return geom.Vec{X: f.origin.X + float64(i)*f.step, Y: f.origin.Y + float64(j)*f.step}
}

// cellRange returns the cells whose centres may lie within r of box.
func (f *field) cellRange(box geom.Rect, r float64) (i0, j0, i1, j1 int) {
	i0 = clampInt(int(math.Floor((box.X-r-f.origin.X)/f.step)), 0, f.w-1)
	j0 = clampInt(int(math.Floor((box.Y-r-f.origin.Y)/f.step)), 0, f.h-1)
	i1 = clampInt(int(math.Ceil((box.MaxX()+r-f.origin.X)/f.step)), 0, f.w-1)
	j1 = clampInt(int(math.Ceil((box.MaxY()+r-f.origin.Y)/f.step)), 0, f.h-1)
	return
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// influence is the falloff shared by nodes and edges: 0 beyond r1, 1 at r0,
// quadratic in between and rising towards the item.
func influence(d, r0, r1, weight float64) float64 {
	if d >= r1 {
		return 0
	}
	t := (r1 - d) / (r1 - r0)
	return weight * t * t
}

// rectDistance is the distance from p to r, 0 inside.
func rectDistance(p geom.Vec, r geom.Rect) float64 {
	dx := math.Max(math.Max(r.X-p.X, 0), p.X-r.MaxX())
	dy := math.Max(math.Max(r.Y-p.Y, 0), p.Y-r.MaxY())
	return math.Hypot(dx, dy)
}

// segmentDistance is the distance from p to the segment s.
func segmentDistance(p geom.Vec, s segment) float64 {
	d := s.b.Sub(s.a)
	l2 := d.X*d.X + d.Y*d.Y
	if l2 == 0 {
		return p.Dist(s.a)
	}
	t := ((p.X-s.a.X)*d.X + (p.Y-s.a.Y)*d.Y) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Dist(s.a.Add(d.Scale(t)))
}

// segmentBounds returns the bounding box of s.
func segmentBounds(s segment) geom.Rect {
	minX, minY := math.Min(s.a.X, s.b.X), math.Min(s.a.Y, s.b.Y)
	return geom.Rect{X: minX, Y: minY, Width: math.Abs(s.a.X - s.b.X), Height: math.Abs(s.a.Y - s.b.Y)}
}

// connect links every member to its nearest already-connected member,
// visiting members by distance from their common centroid.
func connect(rects []geom.Rect) []segment {
	if len(rects) < 2 {
		return nil
	}
	var centroid geom.Vec
	for _, r := range rects {
		centroid = centroid.Add(r.Center())
	}
	centroid = centroid.Scale(1 / float64(len(rects)))

	order := make([]int, len(rects))
	for i := range order {
		order[i] = i
	}
	sortByDistance(order, rects, centroid)

	connected := []geom.Vec{rects[order[0]].Center()}
	segs := make([]segment, 0, len(rects)-1)
	for _, idx := range order[1:] {
		c := rects[idx].Center()
		best, bestD := 0, math.Inf(1)
		for i, o := range connected {
			if d := c.Dist(o); d < bestD {
				best, bestD = i, d
			}
		}
		segs = append(segs, segment{a: connected[best], b: c})
		connected = append(connected, c)
	}
	return segs
}

func sortByDistance(order []int, rects []geom.Rect, c geom.Vec) {
	// insertion sort keeps equal distances in input order
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && rects[order[j]].Center().Dist(c) < rects[order[j-1]].Center().Dist(c); j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
}
