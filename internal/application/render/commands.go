package render

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/turtacn/FeatureScope/internal/domain/projection"
	"github.com/turtacn/FeatureScope/internal/domain/zoom"
	"github.com/turtacn/FeatureScope/internal/infrastructure/backend"
	apperrors "github.com/turtacn/FeatureScope/pkg/errors"
)

// Command is one unit of work for a session loop. Every command is applied
// on the loop goroutine; the returned trigger names the frame it produces
// and an empty trigger means nothing visible changed.
type Command interface {
	apply(d *Driver) string
}

// Frame triggers.
const (
	TriggerInitial   = "initial"
	TriggerTransform = "transform"
	TriggerResize    = "resize"
	TriggerSelect    = "select"
	TriggerDeselect  = "deselect"
	TriggerFocus     = "focus"
	TriggerHover     = "hover"
	TriggerVisible   = "visible"
	TriggerTokens    = "tokens"
	TriggerReload    = "reload"
	TriggerError     = "error"
)

// Hover targets.
const (
	TargetCell    = "cell"
	TargetPoint   = "point"
	TargetRelated = "related"
	TargetQuery   = "query"
)

// ─────────────────────────────────────────────────────────────────────────────
// Viewer commands
// ─────────────────────────────────────────────────────────────────────────────

// Transform replaces the view transform (zoom or pan).
type Transform struct {
	Transform zoom.Transform
}

// Resize changes the viewport size and refits the scales.
type Resize struct {
	Width  float64
	Height float64
}

// ClickPoint selects a regular point: the view animates to it and its
// detail is fetched.
type ClickPoint struct {
	FeatureID projection.FeatureID
}

// ClickQuery clears the selection and restores the query neighbours.
type ClickQuery struct{}

// FocusFeature zooms to a feature picked from the side panel and fetches its
// detail without touching selection flags.
type FocusFeature struct {
	FeatureID projection.FeatureID
}

// Hover shows the tooltip for a target. ID is a cell id for TargetCell and a
// feature id for points and related markers; it is ignored for the query.
type Hover struct {
	Target string
	ID     string
}

// HoverOut hides the tooltip.
type HoverOut struct{}

// SetVisibleFeatures reports the feature ids listed in the side panel. The
// set is applied after the debounce window.
type SetVisibleFeatures struct {
	FeatureIDs []projection.FeatureID
}

// SelectTokens starts a token analysis for a feature. An empty token list
// clears the related subset.
type SelectTokens struct {
	FeatureID projection.FeatureID
	Tokens    []backend.SelectedToken
}

// Reload fetches the projection again and replaces the point set.
type Reload struct{}

// ─────────────────────────────────────────────────────────────────────────────
// Continuations posted back by background work
// ─────────────────────────────────────────────────────────────────────────────

type detailLoaded struct {
	gen       uint64
	featureID projection.FeatureID
	selecting bool
	detail    *backend.FeatureDetail
	err       error
}

type tokensLoaded struct {
	gen      uint64
	tokens   int
	analysis *backend.TokenAnalysis
	err      error
}

type reloaded struct {
	gen   uint64
	store *projection.Store
	err   error
}

type flushVisible struct {
	gen uint64
}

// ─────────────────────────────────────────────────────────────────────────────
// Wire form
// ─────────────────────────────────────────────────────────────────────────────

// Event is the JSON form of a viewer command, as sent over HTTP and the
// frame stream.
type Event struct {
	Type       string                  `json:"type"`
	Transform  *zoom.Transform         `json:"transform,omitempty"`
	Width      float64                 `json:"width,omitempty"`
	Height     float64                 `json:"height,omitempty"`
	FeatureID  projection.FeatureID    `json:"feature_id,omitempty"`
	Target     string                  `json:"target,omitempty"`
	ID         string                  `json:"id,omitempty"`
	FeatureIDs []projection.FeatureID  `json:"feature_ids,omitempty"`
	Tokens     []backend.SelectedToken `json:"tokens,omitempty"`
}

// Event types.
const (
	EventTransform       = "transform"
	EventResize          = "resize"
	EventClickPoint      = "click_point"
	EventClickQuery      = "click_query"
	EventFocusFeature    = "focus_feature"
	EventHover           = "hover"
	EventHoverOut        = "hover_out"
	EventVisibleFeatures = "visible_features"
	EventSelectTokens    = "select_tokens"
	EventReload          = "reload"
)

// DecodeEvent parses a JSON event.
func DecodeEvent(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, apperrors.Wrap(err, apperrors.ErrCodeEventInvalid, "malformed event")
	}
	return ev, nil
}

// Command validates the event and converts it to a Command.
func (e Event) Command() (Command, error) {
	invalid := func(msg string) error {
		return apperrors.New(apperrors.ErrCodeEventInvalid, msg).WithDetail(e.Type)
	}
	switch strings.ToLower(e.Type) {
	case EventTransform:
		if e.Transform == nil || e.Transform.K <= 0 {
			return nil, invalid("transform with a positive k is required")
		}
		return Transform{Transform: *e.Transform}, nil
	case EventResize:
		if e.Width <= 0 || e.Height <= 0 {
			return nil, invalid("width and height must be positive")
		}
		return Resize{Width: e.Width, Height: e.Height}, nil
	case EventClickPoint:
		if e.FeatureID == "" {
			return nil, invalid("feature_id is required")
		}
		return ClickPoint{FeatureID: e.FeatureID}, nil
	case EventClickQuery:
		return ClickQuery{}, nil
	case EventFocusFeature:
		if e.FeatureID == "" {
			return nil, invalid("feature_id is required")
		}
		return FocusFeature{FeatureID: e.FeatureID}, nil
	case EventHover:
		switch e.Target {
		case TargetCell, TargetPoint, TargetRelated:
			if e.ID == "" {
				return nil, invalid("id is required")
			}
		case TargetQuery:
		default:
			return nil, invalid("unknown hover target")
		}
		return Hover{Target: e.Target, ID: e.ID}, nil
	case EventHoverOut:
		return HoverOut{}, nil
	case EventVisibleFeatures:
		return SetVisibleFeatures{FeatureIDs: e.FeatureIDs}, nil
	case EventSelectTokens:
		if e.FeatureID == "" && len(e.Tokens) > 0 {
			return nil, invalid("feature_id is required")
		}
		for _, t := range e.Tokens {
			if t.TokenIndex < 0 {
				return nil, invalid("token_index must not be negative")
			}
		}
		return SelectTokens{FeatureID: e.FeatureID, Tokens: e.Tokens}, nil
	case EventReload:
		return Reload{}, nil
	}
	return nil, invalid("unknown event type")
}

// dedupe returns the sorted distinct ids.
func dedupe(ids []projection.FeatureID) []projection.FeatureID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]projection.FeatureID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}

func sameIDs(a, b []projection.FeatureID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
