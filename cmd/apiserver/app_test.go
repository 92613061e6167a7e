package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appProj "github.com/turtacn/FeatureScope/internal/application/projection"
	"github.com/turtacn/FeatureScope/internal/application/render"
	"github.com/turtacn/FeatureScope/internal/config"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/internal/infrastructure/storage/filesystem"
	"github.com/turtacn/FeatureScope/internal/interfaces/http/handlers"
	"github.com/turtacn/FeatureScope/internal/testutil"
)

func fileConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "projection.json")
	require.NoError(t, filesystem.NewFileStore(path).Save(testutil.Projection()))

	cfg := config.NewDefaultConfig()
	cfg.Server.Mode = "test"
	cfg.Source.Kind = appProj.KindFile
	cfg.Source.FilePath = path
	cfg.Metrics.Enabled = true
	return cfg
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestNewApp_FileSource(t *testing.T) {
	a, err := newApp(context.Background(), fileConfig(t), logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(a.close)
	t.Cleanup(a.manager.Shutdown)

	assert.Nil(t, a.grpc, "gRPC is disabled by default")
	require.Len(t, a.checks, 1)
	assert.Equal(t, "sessions", a.checks[0].Name())

	d, err := a.manager.Create(context.Background(), render.CreateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "10", d.Snapshot().Level)

	h := a.http.Handler()
	for path, want := range map[string]int{
		"/healthz":         http.StatusOK,
		"/readyz":          http.StatusOK,
		"/metrics":         http.StatusOK,
		"/api/v1/sessions": http.StatusOK,
		"/api/v1/missing":  http.StatusNotFound,
	} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, w.Code, path)
	}
}

func TestNewApp_RedisHealth(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := fileConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	a, err := newApp(context.Background(), cfg, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(a.close)
	t.Cleanup(a.manager.Shutdown)

	w := httptest.NewRecorder()
	a.http.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Components["redis"].Status)
	assert.Equal(t, "healthy", resp.Components["sessions"].Status)

	mr.Close()
	w = httptest.NewRecorder()
	a.http.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestNewApp_Errors(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Source.FilePath = ""
	_, err := newApp(context.Background(), cfg, logging.NewNopLogger())
	assert.Error(t, err)

	cfg = fileConfig(t)
	cfg.Source.Kind = appProj.KindSnapshot
	_, err = newApp(context.Background(), cfg, logging.NewNopLogger())
	assert.Error(t, err, "snapshot source without object storage")
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.GRPC.Enabled = true
	cfg.GRPC.Port = freePort(t)

	a, err := newApp(context.Background(), cfg, logging.NewNopLogger())
	require.NoError(t, err)
	require.NotNil(t, a.grpc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	url := "http://127.0.0.1:" + strconv.Itoa(cfg.Server.Port) + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	assert.False(t, a.manager.Ready())
}
