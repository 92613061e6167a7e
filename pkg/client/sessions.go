package client

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/turtacn/FeatureScope/pkg/types/scatter"
)

const apiPrefix = "/api/v1"

// CreateSessionRequest opens a render session. Empty fields take the server
// defaults.
type CreateSessionRequest struct {
	SAEID       string  `json:"sae_id,omitempty"`
	Query       string  `json:"query,omitempty"`
	LLM         string  `json:"llm,omitempty"`
	SnapshotKey string  `json:"snapshot_key,omitempty"`
	Width       float64 `json:"width,omitempty"`
	Height      float64 `json:"height,omitempty"`
}

// Session is a session and its latest frame.
type Session struct {
	Session scatter.SessionInfo `json:"session"`
	Frame   scatter.Frame       `json:"frame"`
}

type sessionList struct {
	Sessions []scatter.SessionInfo `json:"sessions"`
	Count    int                   `json:"count"`
}

type pointList struct {
	Points []scatter.Point `json:"points"`
	Count  int             `json:"count"`
}

func sessionPath(id string, parts ...string) string {
	p := apiPrefix + "/sessions/" + url.PathEscape(id)
	if len(parts) > 0 {
		p += "/" + strings.Join(parts, "/")
	}
	return p
}

// CreateSession opens a session and returns it with its first frame.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	var out Session
	if err := c.post(ctx, apiPrefix+"/sessions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions returns the open sessions, most recently active first.
func (c *Client) ListSessions(ctx context.Context) ([]scatter.SessionInfo, error) {
	var out sessionList
	if err := c.get(ctx, apiPrefix+"/sessions", &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var out Session
	if err := c.get(ctx, sessionPath(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetFrame returns the latest committed frame.
func (c *Client) GetFrame(ctx context.Context, id string) (*scatter.Frame, error) {
	var out scatter.Frame
	if err := c.get(ctx, sessionPath(id, "frame"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPoints returns every point of the session with its interaction flags.
func (c *Client) GetPoints(ctx context.Context, id string) ([]scatter.Point, error) {
	var out pointList
	if err := c.get(ctx, sessionPath(id, "points"), &out); err != nil {
		return nil, err
	}
	return out.Points, nil
}

// SendEvent applies ev and returns the frame it produced.
func (c *Client) SendEvent(ctx context.Context, id string, ev scatter.Event) (*scatter.Frame, error) {
	var out scatter.Frame
	if err := c.post(ctx, sessionPath(id, "events"), ev, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CloseSession(ctx context.Context, id string) error {
	return c.delete(ctx, sessionPath(id))
}

// Levels returns the scale thresholds of the server.
func (c *Client) Levels(ctx context.Context) ([]scatter.Threshold, error) {
	var out scatter.LevelDecision
	if err := c.get(ctx, apiPrefix+"/levels", &out); err != nil {
		return nil, err
	}
	return out.Thresholds, nil
}

// Level asks which cluster level the server renders at scale k. available,
// when set, lists the levels present in a projection.
func (c *Client) Level(ctx context.Context, k float64, available ...string) (*scatter.LevelDecision, error) {
	q := url.Values{}
	q.Set("scale", strconv.FormatFloat(k, 'g', -1, 64))
	if len(available) > 0 {
		q.Set("available", strings.Join(available, ","))
	}
	var out scatter.LevelDecision
	if err := c.get(ctx, apiPrefix+"/levels?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
