package outline

import (
	"math"

	"github.com/turtacn/FeatureScope/internal/domain/geom"
)

type heading int

const (
	none heading = iota
	up
	down
	left
	right
)

// trace walks the boundary of the region {value >= threshold} that contains
// the first inside cell in row-major order. Vertices are lattice corners;
// the region stays on the left of the walk.
func trace(f *field, threshold float64) []geom.Vec {
	inside := func(i, j int) bool { return f.at(i, j) >= threshold }

	startI, startJ := -1, -1
	for j := 0; j < f.h && startI < 0; j++ {
		for i := 0; i < f.w; i++ {
			if inside(i, j) {
				startI, startJ = i, j
				break
			}
		}
	}
	if startI < 0 {
		return nil
	}

	x, y := startI, startJ
	prev := none
	var out []geom.Vec
	limit := 4 * (f.w + 1) * (f.h + 1)
	for n := 0; n < limit; n++ {
		state := 0
		if inside(x-1, y-1) {
			state |= 1
		}
		if inside(x, y-1) {
			state |= 2
		}
		if inside(x-1, y) {
			state |= 4
		}
		if inside(x, y) {
			state |= 8
		}

		var next heading
		switch state {
		case 1, 5, 13:
			next = up
		case 2, 3, 7:
			next = right
		case 4, 12, 14:
			next = left
		case 8, 10, 11:
			next = down
		case 6:
			if prev == up {
				next = left
			} else {
				next = right
			}
		case 9:
			if prev == right {
				next = up
			} else {
				next = down
			}
		default:
			return nil
		}

		out = append(out, f.corner(x, y))
		switch next {
		case up:
			y--
		case down:
			y++
		case left:
			x--
		case right:
			x++
		}
		prev = next
		if x == startI && y == startJ {
			return out
		}
	}
	return nil
}

// contains reports whether p lies inside the polygon (even-odd rule).
func contains(poly []geom.Vec, p geom.Vec) bool {
	in := false
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) && p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			in = !in
		}
	}
	return in
}

// simplify drops repeated vertices and vertices collinear with their
// neighbours within tolerance.
func simplify(poly []geom.Vec, tolerance float64) []geom.Vec {
	if len(poly) < 3 {
		return poly
	}
	const eps = 1e-9
	out := make([]geom.Vec, 0, len(poly))
	for _, p := range poly {
		if len(out) > 0 && out[len(out)-1].Dist(p) <= eps {
			continue
		}
		out = append(out, p)
	}
	if len(out) > 1 && out[0].Dist(out[len(out)-1]) <= eps {
		out = out[:len(out)-1]
	}

	changed := true
	for changed && len(out) > 3 {
		changed = false
		for i := 0; i < len(out) && len(out) > 3; i++ {
			a := out[(i-1+len(out))%len(out)]
			b := out[i]
			c := out[(i+1)%len(out)]
			if deviation(a, b, c) <= tolerance+eps {
				out = append(out[:i], out[i+1:]...)
				changed = true
				i--
			}
		}
	}
	return out
}

// deviation is the distance of b from the line through a and c.
func deviation(a, b, c geom.Vec) float64 {
	d := c.Sub(a)
	l := d.Len()
	if l == 0 {
		return b.Dist(a)
	}
	return math.Abs(d.X*(a.Y-b.Y)-d.Y*(a.X-b.X)) / l
}

// bspline samples the closed uniform cubic B-spline through the control
// polygon with granularity samples per span.
func bspline(ctrl []geom.Vec, granularity int) []geom.Vec {
	n := len(ctrl)
	if n < 3 || granularity < 1 {
		return ctrl
	}
	out := make([]geom.Vec, 0, n*granularity)
	for i := 0; i < n; i++ {
		p0 := ctrl[(i-1+n)%n]
		p1 := ctrl[i]
		p2 := ctrl[(i+1)%n]
		p3 := ctrl[(i+2)%n]
		for s := 0; s < granularity; s++ {
			t := float64(s) / float64(granularity)
			t2, t3 := t*t, t*t*t
			b0 := (1 - 3*t + 3*t2 - t3) / 6
			b1 := (4 - 6*t2 + 3*t3) / 6
			b2 := (1 + 3*t + 3*t2 - 3*t3) / 6
			b3 := t3 / 6
			out = append(out, geom.Vec{
				X: b0*p0.X + b1*p1.X + b2*p2.X + b3*p3.X,
				Y: b0*p0.Y + b1*p1.Y + b2*p2.Y + b3*p3.Y,
			})
		}
	}
	return out
}
