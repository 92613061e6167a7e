package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig_IsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, float64(DefaultMinScale), cfg.Render.MinScale)
	assert.Equal(t, float64(DefaultMaxScale), cfg.Render.MaxScale)
	assert.Equal(t, DefaultEpsilon, cfg.Render.ScaleEpsilon)
	assert.Equal(t, DefaultTransitionDuration, cfg.Render.TransitionDuration)
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 7000}, Render: RenderConfig{HexRadius: 14}}
	ApplyDefaults(cfg)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, float64(14), cfg.Render.HexRadius)
	ApplyDefaults(nil)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad mode", func(c *Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "text" }, "log.format"},
		{"grpc port", func(c *Config) { c.GRPC.Enabled = true; c.GRPC.Port = -1 }, "grpc.port"},
		{"file source needs path", func(c *Config) { c.Source.Kind = "file" }, "source.file_path"},
		{"snapshot needs minio", func(c *Config) { c.Source.Kind = "snapshot" }, "minio.enabled"},
		{"unknown source", func(c *Config) { c.Source.Kind = "ftp" }, "source.kind"},
		{"cache needs redis", func(c *Config) { c.Source.Cache = true }, "redis.enabled"},
		{"redis cluster needs addrs", func(c *Config) { c.Redis.Enabled = true; c.Redis.Mode = "cluster" }, "redis.addrs"},
		{"redis bad mode", func(c *Config) { c.Redis.Enabled = true; c.Redis.Mode = "ring" }, "redis.mode"},
		{"kafka topic", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Topic = "" }, "kafka.topic"},
		{"render size", func(c *Config) { c.Render.Width = -1 }, "render.width"},
		{"scale extent", func(c *Config) { c.Render.MaxScale = 0.1 }, "scale extent"},
		{"hex radius", func(c *Config) { c.Render.HexRadius = -2 }, "hex_radius"},
		{"no levels", func(c *Config) { c.Render.Levels = nil }, "at least one threshold"},
		{"duplicate level", func(c *Config) {
			c.Render.Levels = []LevelThreshold{{MinScale: 1, Level: "10"}, {MinScale: 2, Level: "10"}}
		}, "listed twice"},
		{"shared min scale", func(c *Config) {
			c.Render.Levels = []LevelThreshold{{MinScale: 1, Level: "10"}, {MinScale: 1, Level: "30"}}
		}, "share min_scale"},
		{"empty level key", func(c *Config) {
			c.Render.Levels = []LevelThreshold{{MinScale: 1, Level: ""}}
		}, "empty level key"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSortedLevels(t *testing.T) {
	r := RenderConfig{Levels: []LevelThreshold{
		{MinScale: 7, Level: "90"},
		{MinScale: 1, Level: "10"},
		{MinScale: 3, Level: "30"},
	}}
	sorted := r.SortedLevels()
	assert.Equal(t, []string{"10", "30", "90"}, []string{sorted[0].Level, sorted[1].Level, sorted[2].Level})
	assert.Equal(t, "90", r.Levels[0].Level, "receiver is not reordered")
}
