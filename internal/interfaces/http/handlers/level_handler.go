package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/FeatureScope/internal/domain/zoom"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/FeatureScope/pkg/errors"
)

// LevelResponse is the body of GET /api/v1/levels.
type LevelResponse struct {
	Scale      float64          `json:"scale"`
	Clamped    float64          `json:"clamped_scale"`
	Level      string           `json:"level"`
	Requested  string           `json:"requested"`
	FellBack   bool             `json:"fell_back,omitempty"`
	Thresholds []zoom.Threshold `json:"thresholds"`
}

// LevelHandler exposes the zoom level table.
type LevelHandler struct {
	machine *zoom.Machine
	log     logging.Logger
}

// NewLevelHandler creates a LevelHandler over machine.
func NewLevelHandler(machine *zoom.Machine, log logging.Logger) *LevelHandler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &LevelHandler{machine: machine, log: log.Named("levels")}
}

// RegisterRoutes mounts GET /levels on g.
func (h *LevelHandler) RegisterRoutes(g *gin.RouterGroup) {
	g.GET("/levels", h.Decide)
}

// Decide handles GET /api/v1/levels?scale=k[&available=10,30]. Without scale
// it returns the table alone. available lists the levels present in a
// projection so the fallback rule can be checked.
func (h *LevelHandler) Decide(c *gin.Context) {
	resp := LevelResponse{Thresholds: h.machine.Table()}
	raw := c.Query("scale")
	if raw == "" {
		c.JSON(http.StatusOK, resp)
		return
	}
	k, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(k, 0) {
		writeAppError(c, h.log, apperrors.New(apperrors.ErrCodeScaleInvalid, "scale must be a finite number").WithDetail(raw))
		return
	}

	var available []string
	if v := c.Query("available"); v != "" {
		for _, l := range strings.Split(v, ",") {
			if l = strings.TrimSpace(l); l != "" {
				available = append(available, l)
			}
		}
	}

	view, d := h.machine.Decide(zoom.ViewState{}, zoom.Transform{K: k}, available)
	resp.Scale = k
	resp.Clamped = view.Transform.K
	resp.Level = d.Level
	resp.Requested = d.Requested
	resp.FellBack = d.FellBack
	c.JSON(http.StatusOK, resp)
}
