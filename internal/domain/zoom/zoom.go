// Package zoom maps the continuous view-transform scale to one of a fixed set
// of cluster granularities and detects level transitions.
package zoom

import (
	"fmt"
	"math"
	"sort"

	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/FeatureScope/pkg/errors"
)

// Threshold binds a minimum scale to a level key.
type Threshold struct {
	MinScale float64 `json:"min_scale"`
	Level    string  `json:"level"`
}

// Table is an ascending list of thresholds.
type Table []Threshold

// DefaultTable is low {1,"10"}, medium {3,"30"}, high {7,"90"}.
func DefaultTable() Table {
	return Table{{MinScale: 1, Level: "10"}, {MinScale: 3, Level: "30"}, {MinScale: 7, Level: "90"}}
}

// NewTable sorts ts by MinScale and rejects empty tables, duplicate keys and
// shared scales.
func NewTable(ts []Threshold) (Table, error) {
	if len(ts) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeThresholdsInvalid, "zoom table is empty")
	}
	t := append(Table(nil), ts...)
	sort.SliceStable(t, func(i, j int) bool { return t[i].MinScale < t[j].MinScale })
	seen := make(map[string]bool, len(t))
	for i, th := range t {
		if th.Level == "" || seen[th.Level] {
			return nil, apperrors.New(apperrors.ErrCodeThresholdsInvalid, "zoom table has an empty or duplicate level").
				WithDetail(fmt.Sprintf("level=%q", th.Level))
		}
		seen[th.Level] = true
		if i > 0 && th.MinScale == t[i-1].MinScale {
			return nil, apperrors.New(apperrors.ErrCodeThresholdsInvalid, "zoom thresholds share a min scale").
				WithDetail(fmt.Sprintf("min_scale=%g", th.MinScale))
		}
	}
	return t, nil
}

// Select returns the level of the highest threshold whose MinScale is at
// most scale, or the lowest level when scale is below every threshold. A
// scale equal to a threshold selects that threshold's band.
func (t Table) Select(scale float64) string {
	if len(t) == 0 {
		return ""
	}
	for i := len(t) - 1; i >= 0; i-- {
		if scale >= t[i].MinScale {
			return t[i].Level
		}
	}
	return t[0].Level
}

// Lowest returns the first level of the table that available accepts. When
// none does it returns "".
func (t Table) Lowest(available func(string) bool) string {
	for _, th := range t {
		if available(th.Level) {
			return th.Level
		}
	}
	return ""
}

// Levels returns the level keys in ascending threshold order.
func (t Table) Levels() []string {
	out := make([]string, len(t))
	for i, th := range t {
		out[i] = th.Level
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Transform and view state
// ─────────────────────────────────────────────────────────────────────────────

// Transform is the pan/zoom view transform: screen = data·K + (X, Y).
type Transform struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	K float64 `json:"k"`
}

// Identity is the initial transform.
var Identity = Transform{K: 1}

// Apply maps an untransformed pixel position to the screen.
func (t Transform) Apply(x, y float64) (float64, float64) {
	return x*t.K + t.X, y*t.K + t.Y
}

// Invert maps a screen position back to untransformed pixels.
func (t Transform) Invert(sx, sy float64) (float64, float64) {
	return (sx - t.X) / t.K, (sy - t.Y) / t.K
}

// CenterOn returns the transform at scale k that puts pixel (px, py) in the
// middle of a width×height viewport.
func CenterOn(px, py, k, width, height float64) Transform {
	return Transform{X: width/2 - k*px, Y: height/2 - k*py, K: k}
}

// ViewState is the per-session view owned by the render loop.
type ViewState struct {
	Transform   Transform `json:"transform"`
	Scale       float64   `json:"scale"`
	ActiveLevel string    `json:"active_level"`
	Width       float64   `json:"width"`
	Height      float64   `json:"height"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Machine
// ─────────────────────────────────────────────────────────────────────────────

// Decision is the outcome of one transform update.
type Decision struct {
	// Level is the level to display; it differs from Requested only on fallback.
	Level        string
	Requested    string
	LevelChanged bool
	// Recompute is false when the scale moved by at most epsilon and the
	// level held; the transform still applies.
	Recompute bool
	FellBack  bool
}

// Options configures a Machine.
type Options struct {
	Table    Table
	MinScale float64
	MaxScale float64
	Epsilon  float64
	Logger   logging.Logger
}

// Machine decides level transitions. It is stateless; the caller owns the
// ViewState.
type Machine struct {
	table    Table
	minScale float64
	maxScale float64
	epsilon  float64
	logger   logging.Logger
}

// NewMachine returns a Machine. Zero scale bounds mean [0.5, 8] and a zero
// epsilon means 0.001.
func NewMachine(opts Options) (*Machine, error) {
	table, err := NewTable(opts.Table)
	if err != nil {
		return nil, err
	}
	m := &Machine{
		table:    table,
		minScale: opts.MinScale,
		maxScale: opts.MaxScale,
		epsilon:  opts.Epsilon,
		logger:   opts.Logger,
	}
	if m.minScale <= 0 {
		m.minScale = 0.5
	}
	if m.maxScale <= m.minScale {
		m.maxScale = 8
	}
	if m.epsilon <= 0 {
		m.epsilon = 0.001
	}
	if m.logger == nil {
		m.logger = logging.NewNopLogger()
	}
	return m, nil
}

// Table returns the threshold table.
func (m *Machine) Table() Table { return m.table }

// Clamp limits k to the scale extent. NaN and non-positive values clamp to
// the minimum.
func (m *Machine) Clamp(k float64) float64 {
	if math.IsNaN(k) || k < m.minScale {
		return m.minScale
	}
	if k > m.maxScale {
		return m.maxScale
	}
	return k
}

// Decide applies next to state. levels lists the keys present in the current
// projection in ascending order; a selected level missing from it falls back
// to the lowest available one with a warning. A nil levels skips the check.
func (m *Machine) Decide(state ViewState, next Transform, levels []string) (ViewState, Decision) {
	next.K = m.Clamp(next.K)

	requested := m.table.Select(next.K)
	level := requested
	fellBack := false
	if len(levels) > 0 && !contains(levels, level) {
		level = m.table.Lowest(func(l string) bool { return contains(levels, l) })
		if level == "" {
			level = levels[0]
		}
		fellBack = true
		m.logger.Warn("cluster level unavailable, falling back",
			logging.String("requested", requested),
			logging.String("fallback", level),
			logging.Float64("scale", next.K))
	}

	changed := level != state.ActiveLevel
	recompute := changed || math.Abs(next.K-state.Scale) > m.epsilon

	state.Transform = next
	if recompute {
		state.Scale = next.K
	}
	state.ActiveLevel = level

	return state, Decision{
		Level:        level,
		Requested:    requested,
		LevelChanged: changed,
		Recompute:    recompute,
		FellBack:     fellBack,
	}
}

func contains(keys []string, k string) bool {
	for _, v := range keys {
		if v == k {
			return true
		}
	}
	return false
}
