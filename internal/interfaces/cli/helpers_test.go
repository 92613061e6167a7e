package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FeatureScope/internal/application/render"
	"github.com/turtacn/FeatureScope/internal/config"
	apihttp "github.com/turtacn/FeatureScope/internal/interfaces/http"
	"github.com/turtacn/FeatureScope/internal/interfaces/http/handlers"
	"github.com/turtacn/FeatureScope/internal/testutil"
)

// writeConfig writes a minimal config file and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "featurescope.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\nlog:\n  level: warn\n"), 0o644))
	return path
}

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", writeConfig(t)}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// startServer serves the API over the static test projection.
func startServer(t *testing.T) (*httptest.Server, *render.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mgr, err := render.NewManager(config.NewDefaultConfig(), render.Deps{Source: testutil.NewStaticSource()})
	require.NoError(t, err)
	t.Cleanup(mgr.Shutdown)

	log := testutil.NewMockLogger()
	srv := httptest.NewServer(apihttp.NewRouter(apihttp.RouterConfig{
		SessionHandler: handlers.NewSessionHandler(mgr, nil, log),
		LevelHandler:   handlers.NewLevelHandler(mgr.Machine(), log),
		HealthHandler:  handlers.NewHealthHandler("test"),
		Logger:         log,
		Mode:           gin.TestMode,
	}))
	t.Cleanup(srv.Close)
	return srv, mgr
}
