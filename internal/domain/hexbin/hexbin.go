// Package hexbin buckets projected points into pointy-top hexagonal cells
// and styles each cell by its dominant cluster.
package hexbin

import (
	"math"
	"strconv"

	"github.com/turtacn/FeatureScope/internal/domain/geom"
	"github.com/turtacn/FeatureScope/internal/domain/palette"
	"github.com/turtacn/FeatureScope/internal/domain/projection"
)

// DefaultRadius is the hexagon radius in pixels.
const DefaultRadius = 10

// Cell styling constants.
const (
	FillAlpha   = 0.2
	FillOpacity = 0.5
	Stroke      = "#fff"
)

var thirdPi = math.Pi / 3

// Cell is one occupied hexagon of an aggregation pass.
type Cell struct {
	ID     string   `json:"id"`
	Center geom.Vec `json:"center"`
	// Members are positions in the store's point array.
	Members           []int   `json:"members"`
	DominantClusterID int     `json:"dominant_cluster_id"`
	DominantColor     string  `json:"dominant_color,omitempty"`
	Fill              string  `json:"fill"`
	FillOpacity       float64 `json:"fill_opacity"`
	Stroke            string  `json:"stroke"`
	StrokeWidth       float64 `json:"stroke_width"`
	Path              string  `json:"path"`
}

// Binner assigns pixel positions to hexagons of a fixed radius.
type Binner struct {
	radius float64
	dx     float64
	dy     float64
}

// NewBinner returns a Binner; non-positive radii use DefaultRadius.
func NewBinner(radius float64) Binner {
	if radius <= 0 {
		radius = DefaultRadius
	}
	return Binner{radius: radius, dx: radius * 2 * math.Sin(thirdPi), dy: radius * 1.5}
}

// Radius returns the hexagon radius.
func (b Binner) Radius() float64 { return b.radius }

// Locate returns the grid coordinates and centre of the hexagon nearest to
// (x, y). Odd rows are offset by half a column.
func (b Binner) Locate(x, y float64) (i, j int, center geom.Vec) {
	py := y / b.dy
	pj := geom.Round(py)
	px := x/b.dx - float64(int(pj)&1)/2
	pi := geom.Round(px)
	py1 := py - pj

	if math.Abs(py1)*3 > 1 {
		px1 := px - pi
		pi2 := pi
		if px < pi {
			pi2 -= 0.5
		} else {
			pi2 += 0.5
		}
		pj2 := pj
		if py < pj {
			pj2--
		} else {
			pj2++
		}
		px2 := px - pi2
		py2 := py - pj2
		if px1*px1+py1*py1 > px2*px2+py2*py2 {
			if int(pj)&1 != 0 {
				pi = pi2 + 0.5
			} else {
				pi = pi2 - 0.5
			}
			pj = pj2
		}
	}

	i, j = int(pi), int(pj)
	center = geom.Vec{X: (pi + float64(j&1)/2) * b.dx, Y: pj * b.dy}
	return i, j, center
}

// Hexagon returns the absolute path of the hexagon centred on c.
func (b Binner) Hexagon(c geom.Vec) string {
	corners := make([]geom.Vec, 6)
	for k := 0; k < 6; k++ {
		a := float64(k) * thirdPi
		corners[k] = geom.Vec{X: c.X + math.Sin(a)*b.radius, Y: c.Y - math.Cos(a)*b.radius}
	}
	return geom.Polygon(corners)
}

// Aggregate bins every non-query point of points at its pixel position and
// styles the cells for view scale k. Cells are returned in order of first
// occupancy.
func Aggregate(points []projection.Point, scales Scales, b Binner, k float64) []Cell {
	if k <= 0 {
		k = 1
	}
	index := make(map[string]int)
	var cells []Cell
	for pos := range points {
		p := &points[pos]
		if p.IsQuery {
			continue
		}
		px := scales.Pixel(p)
		i, j, center := b.Locate(px.X, px.Y)
		id := strconv.Itoa(i) + "-" + strconv.Itoa(j)
		ci, ok := index[id]
		if !ok {
			ci = len(cells)
			index[id] = ci
			cells = append(cells, Cell{ID: id, Center: center})
		}
		cells[ci].Members = append(cells[ci].Members, pos)
	}

	for ci := range cells {
		c := &cells[ci]
		c.DominantClusterID, c.DominantColor = Dominant(points, c.Members)
		c.Fill = palette.AddAlpha(c.DominantColor, FillAlpha)
		c.FillOpacity = FillOpacity
		c.Stroke = Stroke
		c.StrokeWidth = 2 / k
		c.Path = b.Hexagon(c.Center)
	}
	return cells
}

// Dominant returns the most frequent cluster among members and its color.
// Ties go to the lowest cluster id. The color is the last non-empty color
// seen on a member of that cluster.
func Dominant(points []projection.Point, members []int) (int, string) {
	counts := make(map[int]int)
	colors := make(map[int]string)
	for _, pos := range members {
		p := &points[pos]
		counts[p.ClusterID]++
		if p.Color != "" {
			colors[p.ClusterID] = p.Color
		}
	}
	best, bestCount := projection.NoCluster, -1
	for id, n := range counts {
		if n > bestCount || (n == bestCount && id < best) {
			best, bestCount = id, n
		}
	}
	return best, colors[best]
}

// TotalMembers sums the member counts of cells.
func TotalMembers(cells []Cell) int {
	n := 0
	for _, c := range cells {
		n += len(c.Members)
	}
	return n
}
