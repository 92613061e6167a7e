// Package scatter holds the wire types of the FeatureScope API: the frames a
// render session produces, the events it accepts and the session listings.
// They mirror the JSON served under /api/v1 and carry no behaviour beyond
// event construction.
package scatter

import "time"

// FeatureID identifies a feature. Upstream ids are numeric strings.
type FeatureID string

// Vec is a pixel position.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Transform is a pan/zoom transform; K is the scale.
type Transform struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	K float64 `json:"k"`
}

// ViewState is the committed view of a session.
type ViewState struct {
	Transform   Transform `json:"transform"`
	Scale       float64   `json:"scale"`
	ActiveLevel string    `json:"active_level"`
	Width       float64   `json:"width"`
	Height      float64   `json:"height"`
}

// Threshold maps a minimum scale to a cluster level.
type Threshold struct {
	MinScale float64 `json:"min_scale"`
	Level    string  `json:"level"`
}

// Cell is one rendered hexagon.
type Cell struct {
	ID                string  `json:"id"`
	Center            Vec     `json:"center"`
	Members           []int   `json:"members"`
	DominantClusterID int     `json:"dominant_cluster_id"`
	DominantColor     string  `json:"dominant_color,omitempty"`
	Fill              string  `json:"fill"`
	FillOpacity       float64 `json:"fill_opacity"`
	Stroke            string  `json:"stroke"`
	StrokeWidth       float64 `json:"stroke_width"`
	Path              string  `json:"path"`
}

// PointStyle is one rendered point.
type PointStyle struct {
	FeatureID   FeatureID `json:"feature_id"`
	Index       int       `json:"index"`
	Center      Vec       `json:"center"`
	Radius      float64   `json:"radius"`
	Fill        string    `json:"fill"`
	Stroke      string    `json:"stroke"`
	StrokeWidth float64   `json:"stroke_width"`
	Similar     bool      `json:"similar,omitempty"`
	Selected    bool      `json:"selected,omitempty"`
	Emphasis    float64   `json:"emphasis,omitempty"`
}

// Neighbour is a feature near the query or the selection.
type Neighbour struct {
	FeatureID   FeatureID  `json:"feature_id"`
	Similarity  float64    `json:"similarity"`
	Description string     `json:"description"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Banner is a user-facing notice attached to a frame.
type Banner struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Selection is the clicked feature and its similar features.
type Selection struct {
	FeatureID  FeatureID   `json:"feature_id"`
	Neighbours []Neighbour `json:"neighbours"`
}

// Outline is the cluster boundary of the selection.
type Outline struct {
	Path        string  `json:"path"`
	Fill        string  `json:"fill"`
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"stroke_width"`
	Members     int     `json:"members"`
	Enclosed    bool    `json:"enclosed"`
}

// TopicLabel is a cluster keyword stack.
type TopicLabel struct {
	ClusterID int      `json:"cluster_id"`
	Anchor    Vec      `json:"anchor"`
	Topics    []string `json:"topics"`
	Color     string   `json:"color"`
	FontSize  float64  `json:"font_size"`
}

// Frame is the render output committed by a session.
type Frame struct {
	SessionID   string       `json:"session_id"`
	Seq         uint64       `json:"seq"`
	Trigger     string       `json:"trigger"`
	Level       string       `json:"level"`
	View        ViewState    `json:"view"`
	Cells       []Cell       `json:"cells"`
	Points      []PointStyle `json:"points"`
	Outline     *Outline     `json:"outline,omitempty"`
	Topics      []TopicLabel `json:"topics,omitempty"`
	Banner      *Banner      `json:"banner,omitempty"`
	Selection   *Selection   `json:"selection,omitempty"`
	Neighbours  []Neighbour  `json:"neighbours"`
	Analyzing   bool         `json:"analyzing,omitempty"`
	CommittedAt time.Time    `json:"committed_at"`
}

// Query selects the projection a session renders.
type Query struct {
	SAEID       string `json:"sae_id"`
	Query       string `json:"query"`
	LLM         string `json:"llm"`
	SnapshotKey string `json:"snapshot_key,omitempty"`
}

// SessionInfo summarises an open session.
type SessionInfo struct {
	ID         string    `json:"id"`
	Query      Query     `json:"query"`
	Level      string    `json:"level"`
	Scale      float64   `json:"scale"`
	Seq        uint64    `json:"seq"`
	LastActive time.Time `json:"last_active"`
}

// RelatedToken is a selected token a feature fires on.
type RelatedToken struct {
	Prompt     string  `json:"prompt"`
	TokenIndex int     `json:"token_index"`
	Activation float64 `json:"activation"`
}

// Point is a projected feature with its interaction flags.
type Point struct {
	Index             int            `json:"index"`
	FeatureID         FeatureID      `json:"feature_id"`
	X                 float64        `json:"x"`
	Y                 float64        `json:"y"`
	Description       string         `json:"description"`
	Similarity        *float64       `json:"similarity,omitempty"`
	ClusterID         int            `json:"cluster_id"`
	Color             string         `json:"color,omitempty"`
	IsQuery           bool           `json:"is_query,omitempty"`
	IsQuerySimilar    bool           `json:"is_query_similar,omitempty"`
	IsSelected        bool           `json:"is_selected,omitempty"`
	IsSelectedSimilar bool           `json:"is_selected_similar,omitempty"`
	IsVisibleInPanel  bool           `json:"is_visible_in_panel,omitempty"`
	Visible           bool           `json:"visible"`
	RelatedTokens     []RelatedToken `json:"related_tokens,omitempty"`
}

// LevelDecision is the answer of GET /api/v1/levels.
type LevelDecision struct {
	Scale      float64     `json:"scale"`
	Clamped    float64     `json:"clamped_scale"`
	Level      string      `json:"level"`
	Requested  string      `json:"requested"`
	FellBack   bool        `json:"fell_back,omitempty"`
	Thresholds []Threshold `json:"thresholds"`
}

// SelectedToken names a token of an analysed prompt.
type SelectedToken struct {
	Prompt     string `json:"prompt"`
	TokenIndex int    `json:"token_index"`
}

// Hover targets.
const (
	TargetCell    = "cell"
	TargetPoint   = "point"
	TargetQuery   = "query"
	TargetRelated = "related"
)

// Event is an interaction sent to a session.
type Event struct {
	Type       string          `json:"type"`
	Transform  *Transform      `json:"transform,omitempty"`
	Width      float64         `json:"width,omitempty"`
	Height     float64         `json:"height,omitempty"`
	FeatureID  FeatureID       `json:"feature_id,omitempty"`
	Target     string          `json:"target,omitempty"`
	ID         string          `json:"id,omitempty"`
	FeatureIDs []FeatureID     `json:"feature_ids,omitempty"`
	Tokens     []SelectedToken `json:"tokens,omitempty"`
}

func TransformEvent(x, y, k float64) Event {
	return Event{Type: "transform", Transform: &Transform{X: x, Y: y, K: k}}
}

func ResizeEvent(width, height float64) Event {
	return Event{Type: "resize", Width: width, Height: height}
}

func ClickPointEvent(id FeatureID) Event {
	return Event{Type: "click_point", FeatureID: id}
}

func ClickQueryEvent() Event { return Event{Type: "click_query"} }

func FocusFeatureEvent(id FeatureID) Event {
	return Event{Type: "focus_feature", FeatureID: id}
}

// HoverEvent hovers a cell, point or related marker by id, or the query pin
// with an empty id.
func HoverEvent(target, id string) Event {
	return Event{Type: "hover", Target: target, ID: id}
}

func HoverOutEvent() Event { return Event{Type: "hover_out"} }

func VisibleFeaturesEvent(ids ...FeatureID) Event {
	return Event{Type: "visible_features", FeatureIDs: ids}
}

// SelectTokensEvent asks which features fire on tokens of feature id. No
// tokens clears the selection.
func SelectTokensEvent(id FeatureID, tokens ...SelectedToken) Event {
	return Event{Type: "select_tokens", FeatureID: id, Tokens: tokens}
}

func ReloadEvent() Event { return Event{Type: "reload"} }
