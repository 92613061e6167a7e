package grpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/turtacn/FeatureScope/internal/config"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/FeatureScope/internal/testutil"
)

const bufSize = 1 << 20

func testConfig() config.GRPCConfig {
	return config.GRPCConfig{Enabled: true, Port: 0, KeepaliveTime: time.Minute, KeepaliveTimeout: 10 * time.Second}
}

type bufServer struct {
	srv    *Server
	lis    *bufconn.Listener
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

func startBufServer(t *testing.T, opts ...Option) *bufServer {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	srv := NewServer(testConfig(), opts...)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		_ = srv.Stop(context.Background())
	})
	return &bufServer{srv: srv, lis: lis, conn: conn, health: healthpb.NewHealthClient(conn)}
}

func (b *bufServer) status(t *testing.T, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := b.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle and health
// ─────────────────────────────────────────────────────────────────────────────

func TestServer_HealthFollowsReadiness(t *testing.T) {
	var ready atomic.Bool
	b := startBufServer(t, WithReadiness(ready.Load, time.Hour))

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, b.status(t, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, b.status(t, RenderService))

	ready.Store(true)
	b.srv.Refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, b.status(t, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, b.status(t, RenderService))

	ready.Store(false)
	b.srv.Refresh()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, b.status(t, RenderService))
}

func TestServer_UnknownServiceNotFound(t *testing.T) {
	b := startBufServer(t)
	_, err := b.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nope"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServer_WatchReadiness(t *testing.T) {
	var ready atomic.Bool
	b := startBufServer(t, WithReadiness(ready.Load, 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.srv.WatchReadiness(ctx)
		close(done)
	}()

	ready.Store(true)
	require.Eventually(t, func() bool {
		return b.status(t, RenderService) == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestServer_StopMarksNotServing(t *testing.T) {
	lis := bufconn.Listen(bufSize)
	srv := NewServer(testConfig())
	srv.Refresh()

	served := make(chan error, 1)
	go func() { served <- srv.Serve(lis) }()
	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 5*time.Millisecond)

	require.NoError(t, srv.Stop(context.Background()))
	assert.NoError(t, <-served)
}

func TestServer_DoubleServe(t *testing.T) {
	b := startBufServer(t)
	require.Eventually(t, func() bool { return b.srv.Addr() != "" }, time.Second, 5*time.Millisecond)
	assert.Error(t, b.srv.Serve(bufconn.Listen(bufSize)))
}

func TestServer_StopBeforeStart(t *testing.T) {
	srv := NewServer(testConfig())
	assert.NoError(t, srv.Stop(context.Background()))
	assert.Empty(t, srv.Addr())
}

func TestServer_Reflection(t *testing.T) {
	cfg := testConfig()
	cfg.EnableReflection = true
	info := NewServer(cfg).GRPCServer().GetServiceInfo()
	assert.Contains(t, info, "grpc.health.v1.Health")
	assert.Contains(t, info, "grpc.reflection.v1alpha.ServerReflection")

	info = NewServer(testConfig()).GRPCServer().GetServiceInfo()
	assert.NotContains(t, info, "grpc.reflection.v1alpha.ServerReflection")
}

func TestServer_MetricsRecorded(t *testing.T) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "g"}, logging.NewNopLogger())
	require.NoError(t, err)
	b := startBufServer(t, WithMetrics(prometheus.NewAppMetrics(collector)))

	b.status(t, "")
	b.status(t, "")

	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `g_grpc_requests_total{code="OK",method="Check",service="grpc.health.v1.Health"} 2`)
}

// ─────────────────────────────────────────────────────────────────────────────
// Interceptors
// ─────────────────────────────────────────────────────────────────────────────

var unaryInfo = &grpc.UnaryServerInfo{FullMethod: "/featurescope.v1.Render/GetFrame"}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	log := testutil.NewMockLogger()
	ic := recoveryUnaryInterceptor(log)

	_, err := ic(context.Background(), nil, unaryInfo, func(context.Context, interface{}) (interface{}, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.True(t, log.HasMessage("error", "grpc panic recovered"))
	v, ok := log.Field("grpc panic recovered", "panic")
	require.True(t, ok)
	assert.Equal(t, "boom", v)

	resp, err := ic(context.Background(), nil, unaryInfo, func(context.Context, interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestRecoveryStreamInterceptor(t *testing.T) {
	log := testutil.NewMockLogger()
	err := recoveryStreamInterceptor(log)(nil, nil, &grpc.StreamServerInfo{FullMethod: "/x.Y/Z"}, func(interface{}, grpc.ServerStream) error {
		panic("stream boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.True(t, log.HasMessage("error", "grpc stream panic recovered"))
}

func TestLoggingUnaryInterceptor(t *testing.T) {
	log := testutil.NewMockLogger()
	ic := loggingUnaryInterceptor(log)

	_, err := ic(context.Background(), nil, unaryInfo, func(context.Context, interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))
	require.True(t, log.HasMessage("info", "grpc request"))
	code, _ := log.Field("grpc request", "code")
	assert.Equal(t, "NotFound", code)

	log.Clear()
	_, _ = ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(context.Context, interface{}) (interface{}, error) { return nil, nil })
	assert.True(t, log.HasMessage("debug", "grpc request"))
	assert.False(t, log.HasMessage("info", "grpc request"))
}

type checkedRequest struct{ err error }

func (r checkedRequest) Validate() error { return r.err }

func TestValidationUnaryInterceptor(t *testing.T) {
	ic := validationUnaryInterceptor()
	called := 0
	handler := func(context.Context, interface{}) (interface{}, error) {
		called++
		return nil, nil
	}

	_, err := ic(context.Background(), checkedRequest{err: errors.New("session id required")}, unaryInfo, handler)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, err.Error(), "session id required")
	assert.Equal(t, 0, called)

	_, err = ic(context.Background(), checkedRequest{}, unaryInfo, handler)
	assert.NoError(t, err)
	_, err = ic(context.Background(), "plain", unaryInfo, handler)
	assert.NoError(t, err)
	assert.Equal(t, 2, called)
}

func TestSplitMethodName(t *testing.T) {
	cases := []struct{ in, service, method string }{
		{"/featurescope.v1.Render/GetFrame", "featurescope.v1.Render", "GetFrame"},
		{"/grpc.health.v1.Health/Check", "grpc.health.v1.Health", "Check"},
		{"bare", "unknown", "bare"},
	}
	for _, c := range cases {
		s, m := splitMethodName(c.in)
		assert.Equal(t, c.service, s, c.in)
		assert.Equal(t, c.method, m, c.in)
	}
}

func TestIsHealthCheck(t *testing.T) {
	assert.True(t, isHealthCheck("/grpc.health.v1.Health/Watch"))
	assert.False(t, isHealthCheck("/featurescope.v1.Render/GetFrame"))
}
