package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	appProj "github.com/turtacn/FeatureScope/internal/application/projection"
	"github.com/turtacn/FeatureScope/internal/application/render"
	"github.com/turtacn/FeatureScope/internal/domain/projection"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/turtacn/FeatureScope/pkg/errors"
)

// SessionManager is the part of render.Manager the API needs.
type SessionManager interface {
	Create(ctx context.Context, req render.CreateRequest) (*render.Driver, error)
	Get(id string) (*render.Driver, error)
	List() []render.SessionInfo
	Close(id string) error
}

// CreateSessionRequest is the body of POST /api/v1/sessions.
type CreateSessionRequest struct {
	SAEID       string  `json:"sae_id"`
	Query       string  `json:"query"`
	LLM         string  `json:"llm"`
	SnapshotKey string  `json:"snapshot_key,omitempty"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
}

// SessionResponse carries a session summary and its latest frame.
type SessionResponse struct {
	Session render.SessionInfo `json:"session"`
	Frame   render.Frame       `json:"frame"`
}

// SessionListResponse is the body of GET /api/v1/sessions.
type SessionListResponse struct {
	Sessions []render.SessionInfo `json:"sessions"`
	Count    int                  `json:"count"`
}

// PointsResponse is the body of GET /api/v1/sessions/:id/points.
type PointsResponse struct {
	Points []projection.Point `json:"points"`
	Count  int                `json:"count"`
}

// SessionHandlerOption configures a SessionHandler.
type SessionHandlerOption func(*SessionHandler)

// WithCommandTimeout bounds how long an event waits for the session loop.
func WithCommandTimeout(d time.Duration) SessionHandlerOption {
	return func(h *SessionHandler) {
		if d > 0 {
			h.commandTimeout = d
		}
	}
}

// WithStreamOptions overrides the websocket keepalive settings.
func WithStreamOptions(o StreamOptions) SessionHandlerOption {
	return func(h *SessionHandler) { h.stream = o.withDefaults() }
}

// WithAllowedOrigins restricts websocket upgrades to the given origins. An
// empty list or "*" accepts any origin.
func WithAllowedOrigins(origins []string) SessionHandlerOption {
	return func(h *SessionHandler) { h.upgrader.CheckOrigin = originChecker(origins) }
}

// SessionHandler serves the render session resources.
type SessionHandler struct {
	sessions       SessionManager
	metrics        *prometheus.AppMetrics
	log            logging.Logger
	upgrader       websocket.Upgrader
	stream         StreamOptions
	commandTimeout time.Duration
}

// NewSessionHandler creates a SessionHandler over sessions.
func NewSessionHandler(sessions SessionManager, metrics *prometheus.AppMetrics, log logging.Logger, opts ...SessionHandlerOption) *SessionHandler {
	if metrics == nil {
		metrics = prometheus.NewNoopMetrics()
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	h := &SessionHandler{
		sessions: sessions,
		metrics:  metrics,
		log:      log.Named("sessions"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 16384,
			CheckOrigin:     originChecker(nil),
		},
		stream:         StreamOptions{}.withDefaults(),
		commandTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts the session resources on g.
func (h *SessionHandler) RegisterRoutes(g *gin.RouterGroup) {
	sessions := g.Group("/sessions")
	sessions.POST("", h.Create)
	sessions.GET("", h.List)
	sessions.GET("/:id", h.Get)
	sessions.DELETE("/:id", h.Delete)
	sessions.POST("/:id/events", h.PostEvent)
	sessions.GET("/:id/frame", h.GetFrame)
	sessions.GET("/:id/points", h.GetPoints)
	sessions.GET("/:id/stream", h.Stream)
}

func sessionInfo(d *render.Driver) render.SessionInfo {
	f := d.Snapshot()
	return render.SessionInfo{
		ID:         d.ID(),
		Query:      d.Query(),
		Level:      f.Level,
		Scale:      f.View.Scale,
		Seq:        f.Seq,
		LastActive: d.LastActive(),
	}
}

// Create handles POST /api/v1/sessions.
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAppError(c, h.log, apperrors.Wrap(err, apperrors.ErrCodeBadRequest, "invalid session request"))
		return
	}
	if req.Width < 0 || req.Height < 0 {
		writeAppError(c, h.log, apperrors.New(apperrors.ErrCodeValidation, "width and height must not be negative"))
		return
	}

	d, err := h.sessions.Create(c.Request.Context(), render.CreateRequest{
		Query: appProj.Query{
			SAEID:       req.SAEID,
			Query:       req.Query,
			LLM:         req.LLM,
			SnapshotKey: req.SnapshotKey,
		},
		Width:  req.Width,
		Height: req.Height,
	})
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	c.Header("Location", "/api/v1/sessions/"+d.ID())
	c.JSON(http.StatusCreated, SessionResponse{Session: sessionInfo(d), Frame: d.Snapshot()})
}

// List handles GET /api/v1/sessions.
func (h *SessionHandler) List(c *gin.Context) {
	list := h.sessions.List()
	c.JSON(http.StatusOK, SessionListResponse{Sessions: list, Count: len(list)})
}

// Get handles GET /api/v1/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	d, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Session: sessionInfo(d), Frame: d.Snapshot()})
}

// Delete handles DELETE /api/v1/sessions/:id.
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		writeAppError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PostEvent handles POST /api/v1/sessions/:id/events: one viewer event is
// applied and the resulting frame returned.
func (h *SessionHandler) PostEvent(c *gin.Context) {
	d, ok := h.session(c)
	if !ok {
		return
	}
	var ev render.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		writeAppError(c, h.log, apperrors.Wrap(err, apperrors.ErrCodeEventInvalid, "malformed event"))
		return
	}
	cmd, err := ev.Command()
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.commandTimeout)
	defer cancel()
	f, err := d.Do(ctx, cmd)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

// GetFrame handles GET /api/v1/sessions/:id/frame.
func (h *SessionHandler) GetFrame(c *gin.Context) {
	d, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, d.Snapshot())
}

// GetPoints handles GET /api/v1/sessions/:id/points.
func (h *SessionHandler) GetPoints(c *gin.Context) {
	d, ok := h.session(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.commandTimeout)
	defer cancel()
	points, err := d.Points(ctx)
	if err != nil {
		writeAppError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, PointsResponse{Points: points, Count: len(points)})
}

func (h *SessionHandler) session(c *gin.Context) (*render.Driver, bool) {
	d, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		writeAppError(c, h.log, err)
		return nil, false
	}
	return d, true
}
