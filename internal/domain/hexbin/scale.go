package hexbin

import (
	"github.com/turtacn/FeatureScope/internal/domain/geom"
	"github.com/turtacn/FeatureScope/internal/domain/projection"
)

// LinearScale maps the domain [D0, D1] onto the range [R0, R1].
type LinearScale struct {
	D0, D1 float64
	R0, R1 float64
}

// Map projects v. A degenerate domain maps everything to the range midpoint.
func (s LinearScale) Map(v float64) float64 {
	if s.D1 == s.D0 {
		return (s.R0 + s.R1) / 2
	}
	t := (v - s.D0) / (s.D1 - s.D0)
	return s.R0 + t*(s.R1-s.R0)
}

// Invert maps a range value back into the domain.
func (s LinearScale) Invert(r float64) float64 {
	if s.R1 == s.R0 {
		return s.D0
	}
	t := (r - s.R0) / (s.R1 - s.R0)
	return s.D0 + t*(s.D1-s.D0)
}

// Scales are the data→pixel scales of one viewport: x onto [0, width] and y
// onto [height, 0].
type Scales struct {
	X LinearScale
	Y LinearScale
}

// FitScales fits the scales to the extent of every point in the store, the
// query point included.
func FitScales(store *projection.Store, width, height float64) Scales {
	minX, maxX, minY, maxY, ok := store.Extent()
	if !ok {
		minX, maxX, minY, maxY = 0, 1, 0, 1
	}
	return Scales{
		X: LinearScale{D0: minX, D1: maxX, R0: 0, R1: width},
		Y: LinearScale{D0: minY, D1: maxY, R0: height, R1: 0},
	}
}

// Pixel returns the untransformed pixel position of p.
func (s Scales) Pixel(p *projection.Point) geom.Vec {
	return geom.Vec{X: s.X.Map(p.X), Y: s.Y.Map(p.Y)}
}
