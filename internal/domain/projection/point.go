// Package projection holds the 2D feature projection: the point set, the
// per-granularity cluster tables and the query neighbourhood. A Store is
// replaced wholesale on every fetch and is owned by a single render loop.
package projection

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// QueryIndex is the Index carried by the synthetic query point.
const QueryIndex = -1

// NoCluster marks a point without a cluster assignment.
const NoCluster = -1

// FeatureID identifies an SAE feature. Upstream payloads carry it either as a
// JSON number or as a decimal string; both decode to the same value.
type FeatureID string

// UnmarshalJSON accepts numbers and strings.
func (f *FeatureID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FeatureID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = FeatureID(strconv.FormatInt(i, 10))
		return nil
	}
	if v, err := n.Float64(); err == nil && v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		*f = FeatureID(strconv.FormatInt(int64(v), 10))
		return nil
	}
	*f = FeatureID(n.String())
	return nil
}

// String returns the decimal form of the id.
func (f FeatureID) String() string { return string(f) }

// RelatedToken is one selected prompt token for which a feature fired.
type RelatedToken struct {
	Prompt     string  `json:"prompt"`
	TokenIndex int     `json:"token_index"`
	Activation float64 `json:"activation"`
}

// Point is one feature in the projection. X and Y are data-space
// coordinates and never change after the store is built.
type Point struct {
	Index       int       `json:"index"`
	FeatureID   FeatureID `json:"feature_id"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Description string    `json:"description"`
	Similarity  *float64  `json:"similarity,omitempty"`
	ClusterID   int       `json:"cluster_id"`
	Color       string    `json:"color,omitempty"`

	IsQuery           bool `json:"is_query,omitempty"`
	IsQuerySimilar    bool `json:"is_query_similar,omitempty"`
	IsSelected        bool `json:"is_selected,omitempty"`
	IsSelectedSimilar bool `json:"is_selected_similar,omitempty"`
	IsVisibleInPanel  bool `json:"is_visible_in_panel,omitempty"`
	Visible           bool `json:"visible"`

	// RelatedTokens is nil when the point is not related to the current
	// token selection.
	RelatedTokens []RelatedToken `json:"related_tokens,omitempty"`
}

// HasSimilarity reports whether a query similarity is attached.
func (p *Point) HasSimilarity() bool { return p.Similarity != nil }

// SimilarityValue returns the similarity or 0 when absent.
func (p *Point) SimilarityValue() float64 {
	if p.Similarity == nil {
		return 0
	}
	return *p.Similarity
}

// Float returns a pointer to v, for building points with a similarity.
func Float(v float64) *float64 { return &v }
