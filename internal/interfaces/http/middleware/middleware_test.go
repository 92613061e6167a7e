package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/FeatureScope/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/api/v1/sessions/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/api/v1/sessions", func(c *gin.Context) { c.String(http.StatusCreated, "created") })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serve(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

// ─────────────────────────────────────────────────────────────────────────────
// CORS
// ─────────────────────────────────────────────────────────────────────────────

func TestCORS_PreflightRequest(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowedOrigins = []string{"https://app.example.com"}
	r := newEngine(CORS(config))
	r.OPTIONS("/api/v1/sessions", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodOptions, "/api/v1/sessions", map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": "POST",
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), RequestIDHeader)
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
	assert.Empty(t, w.Body.String())
}

func TestCORS_SimpleRequest(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowedOrigins = []string{"https://app.example.com"}
	r := newEngine(CORS(config))

	w := serve(r, http.MethodGet, "/api/v1/sessions/abc", map[string]string{"Origin": "https://app.example.com"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, RequestIDHeader, w.Header().Get("Access-Control-Expose-Headers"))
	assert.Equal(t, []string{"Origin", "Access-Control-Request-Method", "Access-Control-Request-Headers"}, w.Header().Values("Vary"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowedOrigins = []string{"https://a.com"}
	r := newEngine(CORS(config))

	w := serve(r, http.MethodGet, "/api/v1/sessions/abc", map[string]string{"Origin": "https://evil.com"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_NoOriginHeader(t *testing.T) {
	r := newEngine(CORS(DefaultCORSConfig()))
	w := serve(r, http.MethodGet, "/api/v1/sessions/abc", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Wildcards(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowedOrigins = []string{"*.example.com"}
	config.AllowWildcard = true
	r := newEngine(CORS(config))

	w := serve(r, http.MethodGet, "/api/v1/sessions/abc", map[string]string{"Origin": "https://viz.Example.com"})
	assert.Equal(t, "https://viz.Example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodGet, "/api/v1/sessions/abc", map[string]string{"Origin": "https://example.org"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	config = DefaultCORSConfig()
	config.AllowedOrigins = []string{"*"}
	w = serve(newEngine(CORS(config)), http.MethodGet, "/api/v1/sessions/abc", map[string]string{"Origin": "https://any.io"})
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	config.AllowCredentials = true
	w = serve(newEngine(CORS(config)), http.MethodGet, "/api/v1/sessions/abc", map[string]string{"Origin": "https://any.io"})
	assert.Equal(t, "https://any.io", w.Header().Get("Access-Control-Allow-Origin"), "credentials need the concrete origin")
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Request id
// ─────────────────────────────────────────────────────────────────────────────

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { seen = GetRequestID(c) })

	w := serve(r, http.MethodGet, "/x", nil)
	require.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	w = serve(r, http.MethodGet, "/x", map[string]string{RequestIDHeader: "req-123"})
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))

	serve(r, http.MethodGet, "/x", map[string]string{RequestIDHeader: strings.Repeat("a", 200)})
	assert.Len(t, seen, 36, "oversized ids are replaced")
}

// ─────────────────────────────────────────────────────────────────────────────
// Logging
// ─────────────────────────────────────────────────────────────────────────────

func TestRequestLogging_Levels(t *testing.T) {
	logger := testutil.NewMockLogger()
	r := newEngine(RequestID(), RequestLogging(logger, DefaultLoggingConfig()))

	serve(r, http.MethodGet, "/api/v1/sessions/abc?x=1", map[string]string{RequestIDHeader: "r-1"})
	serve(r, http.MethodGet, "/missing", nil)
	serve(r, http.MethodGet, "/healthz", nil)

	msgs := logger.GetMessages()
	require.Len(t, msgs, 2, "probe paths are skipped")
	assert.Equal(t, "info", msgs[0].Level)
	assert.Equal(t, "warn", msgs[1].Level)

	path, _ := logger.Field("HTTP request completed", "path")
	assert.Equal(t, "/api/v1/sessions/abc?x=1", path)
	route, _ := logger.Field("HTTP request completed", "route")
	assert.Equal(t, "/api/v1/sessions/:id", route)
	id, _ := logger.Field("HTTP request completed", "request_id")
	assert.Equal(t, "r-1", id)
}

func TestRequestLogging_Slow(t *testing.T) {
	logger := testutil.NewMockLogger()
	r := gin.New()
	r.Use(RequestLogging(logger, LoggingConfig{SlowThreshold: time.Nanosecond}))
	r.GET("/slow", func(c *gin.Context) {
		time.Sleep(time.Millisecond)
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodGet, "/slow", nil)
	assert.True(t, logger.HasMessage("warn", "HTTP request completed (slow)"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Recovery and metrics
// ─────────────────────────────────────────────────────────────────────────────

func TestRecovery(t *testing.T) {
	logger := testutil.NewMockLogger()
	r := newEngine(Recovery(logger, prometheus.NewNoopMetrics()))

	w := serve(r, http.MethodGet, "/boom", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":"COMMON_001","message":"internal server error"}`, w.Body.String())
	v, ok := logger.Field("panic recovered", "panic")
	require.True(t, ok)
	assert.Equal(t, "kaboom", v)
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "mw"}, logging.NewNopLogger())
	require.NoError(t, err)
	m := prometheus.NewAppMetrics(c)
	r := newEngine(Metrics(m))

	serve(r, http.MethodGet, "/api/v1/sessions/abc", nil)
	serve(r, http.MethodGet, "/api/v1/sessions/def", nil)
	serve(r, http.MethodGet, "/nowhere", nil)

	out := serve(c.Handler(), http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, out, `mw_http_requests_total{method="GET",path="/api/v1/sessions/:id",status_code="200"} 2`)
	assert.Contains(t, out, `mw_http_requests_total{method="GET",path="unmatched",status_code="404"} 1`)
	assert.Contains(t, out, `mw_http_active_requests{method="GET"} 0`)
}
