package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/turtacn/FeatureScope/pkg/types/scatter"
)

// StreamMessage is one message pushed by the server over a session stream.
type StreamMessage struct {
	Type  string         `json:"type"`
	Frame *scatter.Frame `json:"frame,omitempty"`
	Error *APIError      `json:"error,omitempty"`
}

// Stream is a live websocket connection to a session. Frames arrive in
// commit order; events sent on the stream are applied like SendEvent.
type Stream struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// OpenStream dials the frame stream of session id.
func (c *Client) OpenStream(ctx context.Context, id string) (*Stream, error) {
	u := c.baseURL + sessionPath(id, "stream")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("stream dial failed: %v", err)}
		}
		return nil, fmt.Errorf("stream dial failed: %w", err)
	}
	return &Stream{conn: conn}, nil
}

// Next blocks for the next message. It returns an error once the server
// closes the stream.
func (s *Stream) Next() (StreamMessage, error) {
	var msg StreamMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		return StreamMessage{}, err
	}
	return msg, nil
}

// NextFrame returns the next frame. An error message from the server is
// returned as *APIError.
func (s *Stream) NextFrame() (*scatter.Frame, error) {
	msg, err := s.Next()
	if err != nil {
		return nil, err
	}
	if msg.Error != nil {
		return nil, msg.Error
	}
	return msg.Frame, nil
}

// Send applies ev on the session.
func (s *Stream) Send(ev scatter.Event) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteJSON(ev)
}

// Close ends the stream.
func (s *Stream) Close() error {
	s.wmu.Lock()
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.wmu.Unlock()
	return s.conn.Close()
}

// IsClosed reports whether err marks the server ending the stream.
func IsClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure)
}
