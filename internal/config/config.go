// Package config defines the FeatureScope configuration tree. Loading lives
// in loader.go and defaults in defaults.go; this file holds only data types
// and validation.
package config

import (
	"fmt"
	"sort"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sections
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// GRPCConfig holds the health/reflection gRPC listener settings.
type GRPCConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Port             int           `mapstructure:"port"`
	EnableReflection bool          `mapstructure:"enable_reflection"`
	KeepaliveTime    time.Duration `mapstructure:"keepalive_time"`
	KeepaliveTimeout time.Duration `mapstructure:"keepalive_timeout"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level       string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// BackendConfig points at the feature-analysis backend that serves scatter,
// detail and token-analysis payloads.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	SAEID   string        `mapstructure:"sae_id"`
	LLM     string        `mapstructure:"llm"`
}

// RedisConfig holds Redis connection parameters for the projection cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Mode         string        `mapstructure:"mode"` // "standalone" | "sentinel" | "cluster"
	Addr         string        `mapstructure:"addr"`
	Addrs        []string      `mapstructure:"addrs"`
	MasterName   string        `mapstructure:"master_name"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
}

// MinIOConfig holds object-storage parameters for projection snapshots.
type MinIOConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// KafkaConfig holds the interaction-event producer settings.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	Async        bool          `mapstructure:"async"`

	// EnsureTopic creates Topic on start when it is missing.
	EnsureTopic       bool `mapstructure:"ensure_topic"`
	Partitions        int  `mapstructure:"partitions"`
	ReplicationFactor int  `mapstructure:"replication_factor"`
}

// SourceConfig selects where projections are loaded from.
type SourceConfig struct {
	Kind        string        `mapstructure:"kind"` // "backend" | "file" | "snapshot"
	FilePath    string        `mapstructure:"file_path"`
	Watch       bool          `mapstructure:"watch"`
	SnapshotKey string        `mapstructure:"snapshot_key"`
	Cache       bool          `mapstructure:"cache"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// LevelThreshold binds a minimum zoom scale to a cluster level key.
type LevelThreshold struct {
	MinScale float64 `mapstructure:"min_scale" json:"min_scale" yaml:"min_scale"`
	Level    string  `mapstructure:"level" json:"level" yaml:"level"`
}

// RenderConfig holds the visual tunables of the render engine.
type RenderConfig struct {
	Width              float64          `mapstructure:"width"`
	Height             float64          `mapstructure:"height"`
	Levels             []LevelThreshold `mapstructure:"levels"`
	MinScale           float64          `mapstructure:"min_scale"`
	MaxScale           float64          `mapstructure:"max_scale"`
	ScaleEpsilon       float64          `mapstructure:"scale_epsilon"`
	HexRadius          float64          `mapstructure:"hex_radius"`
	VisibleDebounce    time.Duration    `mapstructure:"visible_debounce"`
	FocusScale         float64          `mapstructure:"focus_scale"`
	TransitionDuration time.Duration    `mapstructure:"transition_duration"`
	SessionTTL         time.Duration    `mapstructure:"session_ttl"`
	MaxSessions        int              `mapstructure:"max_sessions"`
	StreamBuffer       int              `mapstructure:"stream_buffer"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	GRPC    GRPCConfig    `mapstructure:"grpc"`
	Log     LogConfig     `mapstructure:"log"`
	Backend BackendConfig `mapstructure:"backend"`
	Redis   RedisConfig   `mapstructure:"redis"`
	MinIO   MinIOConfig   `mapstructure:"minio"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Source  SourceConfig  `mapstructure:"source"`
	Render  RenderConfig  `mapstructure:"render"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// SortedLevels returns the level thresholds ordered by ascending MinScale.
func (r RenderConfig) SortedLevels() []LevelThreshold {
	out := make([]LevelThreshold, len(r.Levels))
	copy(out, r.Levels)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinScale < out[j].MinScale })
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate checks the populated Config and returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}
	if c.GRPC.Enabled && (c.GRPC.Port < 1 || c.GRPC.Port > 65535) {
		return fmt.Errorf("config: grpc.port %d is out of range [1, 65535]", c.GRPC.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	switch c.Source.Kind {
	case "backend":
		if c.Backend.BaseURL == "" {
			return fmt.Errorf("config: backend.base_url is required when source.kind is backend")
		}
	case "file":
		if c.Source.FilePath == "" {
			return fmt.Errorf("config: source.file_path is required when source.kind is file")
		}
	case "snapshot":
		if !c.MinIO.Enabled {
			return fmt.Errorf("config: minio.enabled must be true when source.kind is snapshot")
		}
	default:
		return fmt.Errorf("config: source.kind %q is invalid; expected backend|file|snapshot", c.Source.Kind)
	}
	if c.Source.Cache && !c.Redis.Enabled {
		return fmt.Errorf("config: source.cache requires redis.enabled")
	}

	if c.Redis.Enabled {
		switch c.Redis.Mode {
		case "standalone":
			if c.Redis.Addr == "" {
				return fmt.Errorf("config: redis.addr is required")
			}
		case "sentinel", "cluster":
			if len(c.Redis.Addrs) == 0 {
				return fmt.Errorf("config: redis.addrs is required in %s mode", c.Redis.Mode)
			}
		default:
			return fmt.Errorf("config: redis.mode %q is invalid", c.Redis.Mode)
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
		}
	}
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return fmt.Errorf("config: minio.endpoint and minio.bucket are required")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("config: kafka.topic is required")
		}
	}

	return c.Render.validate()
}

func (r RenderConfig) validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("config: render.width and render.height must be positive")
	}
	if r.MinScale <= 0 || r.MaxScale <= r.MinScale {
		return fmt.Errorf("config: render scale extent [%g, %g] is invalid", r.MinScale, r.MaxScale)
	}
	if r.HexRadius <= 0 {
		return fmt.Errorf("config: render.hex_radius must be positive, got %g", r.HexRadius)
	}
	if len(r.Levels) == 0 {
		return fmt.Errorf("config: render.levels must contain at least one threshold")
	}
	seen := make(map[string]bool, len(r.Levels))
	levels := r.SortedLevels()
	for i, lt := range levels {
		if lt.Level == "" {
			return fmt.Errorf("config: render.levels[%d] has an empty level key", i)
		}
		if seen[lt.Level] {
			return fmt.Errorf("config: render level %q is listed twice", lt.Level)
		}
		seen[lt.Level] = true
		if i > 0 && lt.MinScale == levels[i-1].MinScale {
			return fmt.Errorf("config: render levels %q and %q share min_scale %g", levels[i-1].Level, lt.Level, lt.MinScale)
		}
	}
	return nil
}
