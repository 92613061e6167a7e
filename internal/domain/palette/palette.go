// Package palette converts cluster colors into the fill strings used by the
// frame and interpolates the similarity ramp.
package palette

import (
	"fmt"
	"math"
	"strconv"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Fallback is the fill used when a point or cell has no usable color.
const Fallback = "#ccc"

// Similarity ramp endpoints.
const (
	RampLow  = "#e0e0e0"
	RampHigh = "#1976d2"
)

// rgb255 returns the 8-bit channels of a hex color.
func rgb255(hex string) (r, g, b uint8, ok bool) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return 0, 0, 0, false
	}
	r, g, b = c.RGB255()
	return r, g, b, true
}

// AddAlpha renders hex as "rgba(r, g, b, alpha)". Unparseable or empty
// colors return Fallback.
func AddAlpha(hex string, alpha float64) string {
	r, g, b, ok := rgb255(hex)
	if !ok {
		return Fallback
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", r, g, b, strconv.FormatFloat(alpha, 'f', -1, 64))
}

// Interpolate blends from→to in RGB space at t∈[0,1] and renders the result
// as "rgb(r, g, b)". Channels are interpolated on their 8-bit values and
// rounded half up.
func Interpolate(from, to string, t float64) string {
	r1, g1, b1, okA := rgb255(from)
	r2, g2, b2, okB := rgb255(to)
	if !okA || !okB {
		return Fallback
	}
	return fmt.Sprintf("rgb(%d, %d, %d)", lerp(r1, r2, t), lerp(g1, g2, t), lerp(b1, b2, t))
}

// SimilarityColor maps an emphasis value to the similarity ramp.
func SimilarityColor(v float64) string {
	return Interpolate(RampLow, RampHigh, v)
}

func lerp(a, b uint8, t float64) int {
	x := int(math.Floor(float64(a) + (float64(b)-float64(a))*t + 0.5))
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return x
}
