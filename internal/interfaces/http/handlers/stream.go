package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/turtacn/FeatureScope/internal/application/render"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
)

// Stream message types.
const (
	StreamFrame = "frame"
	StreamError = "error"
)

// StreamMessage is one server-to-client websocket message.
type StreamMessage struct {
	Type  string         `json:"type"`
	Frame *render.Frame  `json:"frame,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// StreamOptions tunes websocket keepalive.
type StreamOptions struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	return o
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(set) == 0 {
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
		return set[strings.ToLower(origin)]
	}
}

// Stream handles GET /api/v1/sessions/:id/stream. The client first receives
// the latest frame, then every committed frame; text messages it sends are
// decoded as events and applied to the session.
func (h *SessionHandler) Stream(c *gin.Context) {
	d, ok := h.session(c)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logging.SessionID(d.ID()), logging.Err(err))
		return
	}

	gauge := h.metrics.WebsocketClients.WithLabelValues()
	gauge.Inc()
	defer gauge.Dec()

	log := h.log.With(logging.SessionID(d.ID()), logging.String("remote_addr", c.ClientIP()))
	log.Info("frame stream opened")

	s := &frameStream{
		conn:    conn,
		driver:  d,
		opts:    h.stream,
		timeout: h.commandTimeout,
		log:     log,
		errs:    make(chan ErrorResponse, 8),
	}
	s.serve(c.Request.Context())
	log.Info("frame stream closed")
}

type frameStream struct {
	conn    *websocket.Conn
	driver  *render.Driver
	opts    StreamOptions
	timeout time.Duration
	log     logging.Logger
	errs    chan ErrorResponse
}

func (s *frameStream) serve(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	frames, unsubscribe := s.driver.Subscribe()
	defer unsubscribe()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.write(ctx, frames)
		// Unblocks the reader when the writer leaves first.
		_ = s.conn.Close()
	}()

	s.read(ctx)
	cancel()
	<-writerDone
}

// read applies inbound events until the connection fails.
func (s *frameStream) read(ctx context.Context) {
	s.conn.SetReadLimit(s.opts.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Warn("frame stream read failed", logging.Err(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if err := s.apply(ctx, data); err != nil {
			_, body := errorBody(err)
			select {
			case s.errs <- body:
			default:
				s.log.Warn("frame stream error dropped", logging.String("code", body.Code))
			}
		}
	}
}

func (s *frameStream) apply(ctx context.Context, data []byte) error {
	ev, err := render.DecodeEvent(data)
	if err != nil {
		return err
	}
	cmd, err := ev.Command()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err = s.driver.Do(ctx, cmd)
	return err
}

// write sends the latest frame, then subscribed frames, errors and pings.
// It is the only writer on the connection.
func (s *frameStream) write(ctx context.Context, frames <-chan render.Frame) {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer ticker.Stop()

	first := s.driver.Snapshot()
	if err := s.send(StreamMessage{Type: StreamFrame, Frame: &first}); err != nil {
		return
	}
	lastSeq := first.Seq

	for {
		select {
		case <-ctx.Done():
			s.close(websocket.CloseNormalClosure, "")
			return
		case f, ok := <-frames:
			if !ok {
				s.close(websocket.CloseGoingAway, "session closed")
				return
			}
			if f.Seq <= lastSeq {
				continue
			}
			lastSeq = f.Seq
			if err := s.send(StreamMessage{Type: StreamFrame, Frame: &f}); err != nil {
				return
			}
		case e := <-s.errs:
			if err := s.send(StreamMessage{Type: StreamError, Error: &e}); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *frameStream) send(msg StreamMessage) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.log.Debug("frame stream write failed", logging.Err(err))
		return err
	}
	return nil
}

func (s *frameStream) close(code int, reason string) {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(s.opts.WriteWait))
}
