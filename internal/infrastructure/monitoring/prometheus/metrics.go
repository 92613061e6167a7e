package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every FeatureScope metric family.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// gRPC
	GRPCRequestsTotal   CounterVec
	GRPCRequestDuration HistogramVec

	// Render engine
	FramesTotal        CounterVec
	PassDuration       HistogramVec
	HexCells           HistogramVec
	LevelTransitions   CounterVec
	CommandsDropped    CounterVec
	ActiveSessions     GaugeVec
	WebsocketClients   GaugeVec
	OutlineDuration    HistogramVec
	OutlineRelaxations HistogramVec

	// Sources and upstream
	ProjectionLoads        CounterVec
	ProjectionLoadDuration HistogramVec
	BackendRequests        CounterVec
	BackendDuration        HistogramVec
	RequestsCancelled      CounterVec
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec

	// Messaging
	EventsPublished CounterVec

	ErrorsTotal CounterVec
}

// Bucket layouts.
var (
	DefaultHTTPDurationBuckets    = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultPassDurationBuckets    = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25}
	DefaultBackendDurationBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	DefaultCellBuckets            = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000}
	DefaultRelaxBuckets           = []float64{0, 1, 2, 5, 10, 20}
)

// NewAppMetrics registers all families on collector.
func NewAppMetrics(c MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	m.HTTPRequestsTotal = c.RegisterCounter("http_requests_total", "HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = c.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = c.RegisterGauge("http_active_requests", "In-flight HTTP requests", "method")

	m.GRPCRequestsTotal = c.RegisterCounter("grpc_requests_total", "gRPC requests", "service", "method", "code")
	m.GRPCRequestDuration = c.RegisterHistogram("grpc_request_duration_seconds", "gRPC request duration", DefaultHTTPDurationBuckets, "service", "method")

	m.FramesTotal = c.RegisterCounter("frames_total", "Committed frames", "trigger")
	m.PassDuration = c.RegisterHistogram("render_pass_duration_seconds", "Aggregation and highlight pass duration", DefaultPassDurationBuckets, "stage")
	m.HexCells = c.RegisterHistogram("hex_cells", "Hex cells per aggregation pass", DefaultCellBuckets)
	m.LevelTransitions = c.RegisterCounter("level_transitions_total", "Cluster level changes", "from", "to")
	m.CommandsDropped = c.RegisterCounter("stale_results_dropped_total", "Continuations dropped as stale", "context")
	m.ActiveSessions = c.RegisterGauge("active_sessions", "Open render sessions")
	m.WebsocketClients = c.RegisterGauge("websocket_clients", "Connected frame stream clients")
	m.OutlineDuration = c.RegisterHistogram("outline_duration_seconds", "Bubble-set synthesis duration", DefaultPassDurationBuckets)
	m.OutlineRelaxations = c.RegisterHistogram("outline_threshold_relaxations", "Threshold relaxations per outline", DefaultRelaxBuckets)

	m.ProjectionLoads = c.RegisterCounter("projection_loads_total", "Projection loads", "source", "status")
	m.ProjectionLoadDuration = c.RegisterHistogram("projection_load_duration_seconds", "Projection load duration", DefaultBackendDurationBuckets, "source")
	m.BackendRequests = c.RegisterCounter("backend_requests_total", "Upstream backend requests", "endpoint", "status")
	m.BackendDuration = c.RegisterHistogram("backend_request_duration_seconds", "Upstream backend latency", DefaultBackendDurationBuckets, "endpoint")
	m.RequestsCancelled = c.RegisterCounter("requests_cancelled_total", "Superseded upstream requests", "context")
	m.CacheHitsTotal = c.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = c.RegisterCounter("cache_misses_total", "Cache misses", "cache")

	m.EventsPublished = c.RegisterCounter("events_published_total", "Interaction events published", "kind", "status")

	m.ErrorsTotal = c.RegisterCounter("errors_total", "Errors by component", "component", "code")
	return m
}

// NewNoopMetrics returns metrics that record nothing.
func NewNoopMetrics() *AppMetrics { return NewAppMetrics(NewNoopCollector()) }

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(m *AppMetrics, method, path string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordGRPCRequest records one served RPC.
func RecordGRPCRequest(m *AppMetrics, service, method, code string, d time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(service, method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(service, method).Observe(d.Seconds())
}

// RecordBackendCall records one upstream request.
func RecordBackendCall(m *AppMetrics, endpoint string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.BackendRequests.WithLabelValues(endpoint, status).Inc()
	m.BackendDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordProjectionLoad records one projection load through a source.
func RecordProjectionLoad(m *AppMetrics, source string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.ProjectionLoads.WithLabelValues(source, status).Inc()
	m.ProjectionLoadDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordCacheAccess counts a hit or miss.
func RecordCacheAccess(m *AppMetrics, cache string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordError counts an error by component and code.
func RecordError(m *AppMetrics, component, code string) {
	m.ErrorsTotal.WithLabelValues(component, code).Inc()
}
