package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  port: 8081
  mode: debug
log:
  level: debug
  format: console
backend:
  base_url: "http://backend:8000"
  sae_id: "gemma-2b-res-12"
  llm: "gemma-2b"
redis:
  enabled: true
  addr: "redis:6379"
source:
  kind: backend
  cache: true
  cache_ttl: 5m
render:
  width: 800
  height: 600
  levels:
    - min_scale: 1
      level: "10"
    - min_scale: 4
      level: "40"
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_ValidFile(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "http://backend:8000", cfg.Backend.BaseURL)
	assert.Equal(t, "gemma-2b-res-12", cfg.Backend.SAEID)
	assert.True(t, cfg.Source.Cache)
	assert.Equal(t, 5*time.Minute, cfg.Source.CacheTTL)
	assert.Equal(t, float64(800), cfg.Render.Width)
	require.Len(t, cfg.Render.Levels, 2)
	assert.Equal(t, "40", cfg.Render.Levels[1].Level)
	assert.Equal(t, float64(4), cfg.Render.Levels[1].MinScale)

	// Defaults fill the rest.
	assert.Equal(t, float64(DefaultHexRadius), cfg.Render.HexRadius)
	assert.Equal(t, DefaultVisibleDebounce, cfg.Render.VisibleDebounce)
	assert.Equal(t, DefaultRedisPrefix, cfg.Redis.KeyPrefix)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidValueFailsValidation(t *testing.T) {
	path := createTempConfigFile(t, "server:\n  port: 70000\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	t.Setenv("FEATURESCOPE_SERVER_PORT", "9999")
	t.Setenv("FEATURESCOPE_BACKEND_LLM", "llama")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "llama", cfg.Backend.LLM)
}

func TestLoadFromEnv_DefaultsOnly(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, "backend", cfg.Source.Kind)
	assert.Equal(t, DefaultLevels(), cfg.Render.Levels)
}

func TestLoadFromEnv_FileSource(t *testing.T) {
	t.Setenv("FEATURESCOPE_SOURCE_KIND", "file")
	t.Setenv("FEATURESCOPE_SOURCE_FILE_PATH", "/data/projection.json")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Source.Kind)
	assert.Equal(t, "/data/projection.json", cfg.Source.FilePath)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	path := createTempConfigFile(t, validConfigYAML)
	cfg, err = LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}
