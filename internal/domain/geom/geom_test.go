package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNum(t *testing.T) {
	assert.Equal(t, "0", Num(0))
	assert.Equal(t, "0", Num(-0.0001))
	assert.Equal(t, "1.5", Num(1.5))
	assert.Equal(t, "-2.333", Num(-2.33333))
	assert.Equal(t, "10", Num(10.0002))
}

func TestRound_MatchesJavaScript(t *testing.T) {
	assert.Equal(t, 3.0, Round(2.5))
	assert.Equal(t, -2.0, Round(-2.5))
	assert.Equal(t, 0.0, Round(0.49))
}

func TestRectOps(t *testing.T) {
	r := SquareAround(Vec{10, 10}, 2)
	assert.Equal(t, Rect{8, 8, 4, 4}, r)
	assert.True(t, r.Contains(Vec{8, 12}))
	assert.False(t, r.Contains(Vec{7.9, 10}))
	assert.Equal(t, Rect{6, 6, 8, 8}, r.Inflate(2))
	assert.Equal(t, Rect{0, 0, 12, 12}, r.Union(Rect{0, 0, 1, 1}))
	assert.Equal(t, Vec{10, 10}, r.Center())
}

func TestPolygon(t *testing.T) {
	assert.Equal(t, "", Polygon([]Vec{{0, 0}, {1, 1}}))
	assert.Equal(t, "M0,0L1,0L1,1Z", Polygon([]Vec{{0, 0}, {1, 0}, {1, 1}}))
}

func TestVecOps(t *testing.T) {
	v := Vec{3, 4}
	assert.Equal(t, 5.0, v.Len())
	assert.Equal(t, Vec{6, 8}, v.Scale(2))
	assert.Equal(t, Vec{4, 5}, v.Add(Vec{1, 1}))
	assert.Equal(t, 5.0, Vec{}.Dist(v))
	assert.Equal(t, 0.0, Clamp01(-1))
	assert.Equal(t, 1.0, Clamp01(3))
}
