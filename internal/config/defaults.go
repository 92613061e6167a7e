package config

import "time"

// Default values applied to unset fields.
const (
	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 8080
	DefaultServerMode = "release"
	DefaultGRPCPort   = 9090

	DefaultBackendURL     = "http://localhost:8000"
	DefaultBackendTimeout = 30 * time.Second

	DefaultRedisAddr   = "localhost:6379"
	DefaultRedisPrefix = "featurescope:"
	DefaultRedisTTL    = 10 * time.Minute

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "featurescope-projections"

	DefaultKafkaBroker = "localhost:9092"
	DefaultKafkaTopic  = "featurescope.interactions"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultWidth     = 960
	DefaultHeight    = 720
	DefaultMinScale  = 0.5
	DefaultMaxScale  = 8
	DefaultEpsilon   = 0.001
	DefaultHexRadius = 10

	DefaultVisibleDebounce    = 150 * time.Millisecond
	DefaultFocusScale         = 4
	DefaultTransitionDuration = 750 * time.Millisecond
	DefaultSessionTTL         = 30 * time.Minute
	DefaultMaxSessions        = 256
	DefaultStreamBuffer       = 16

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "featurescope"
)

// DefaultLevels is the zoom threshold table used when none is configured.
func DefaultLevels() []LevelThreshold {
	return []LevelThreshold{
		{MinScale: 1, Level: "10"},
		{MinScale: 3, Level: "30"},
		{MinScale: 7, Level: "90"},
	}
}

// NewDefaultConfig returns a Config with every default applied. The source is
// the backend at DefaultBackendURL.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-value fields in cfg. Explicit values always win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.GRPC.Port == 0 {
		cfg.GRPC.Port = DefaultGRPCPort
	}
	if cfg.GRPC.KeepaliveTime == 0 {
		cfg.GRPC.KeepaliveTime = 30 * time.Second
	}
	if cfg.GRPC.KeepaliveTimeout == 0 {
		cfg.GRPC.KeepaliveTimeout = 10 * time.Second
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Backend / source ──────────────────────────────────────────────────────
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBackendURL
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = "backend"
	}
	if cfg.Source.SnapshotKey == "" {
		cfg.Source.SnapshotKey = "latest.json"
	}
	if cfg.Source.CacheTTL == 0 {
		cfg.Source.CacheTTL = DefaultRedisTTL
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Mode == "" {
		cfg.Redis.Mode = "standalone"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisPrefix
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.Partitions == 0 {
		cfg.Kafka.Partitions = 3
	}
	if cfg.Kafka.ReplicationFactor == 0 {
		cfg.Kafka.ReplicationFactor = 1
	}

	// ── Render ────────────────────────────────────────────────────────────────
	r := &cfg.Render
	if r.Width == 0 {
		r.Width = DefaultWidth
	}
	if r.Height == 0 {
		r.Height = DefaultHeight
	}
	if len(r.Levels) == 0 {
		r.Levels = DefaultLevels()
	}
	if r.MinScale == 0 {
		r.MinScale = DefaultMinScale
	}
	if r.MaxScale == 0 {
		r.MaxScale = DefaultMaxScale
	}
	if r.ScaleEpsilon == 0 {
		r.ScaleEpsilon = DefaultEpsilon
	}
	if r.HexRadius == 0 {
		r.HexRadius = DefaultHexRadius
	}
	if r.VisibleDebounce == 0 {
		r.VisibleDebounce = DefaultVisibleDebounce
	}
	if r.FocusScale == 0 {
		r.FocusScale = DefaultFocusScale
	}
	if r.TransitionDuration == 0 {
		r.TransitionDuration = DefaultTransitionDuration
	}
	if r.SessionTTL == 0 {
		r.SessionTTL = DefaultSessionTTL
	}
	if r.MaxSessions == 0 {
		r.MaxSessions = DefaultMaxSessions
	}
	if r.StreamBuffer == 0 {
		r.StreamBuffer = DefaultStreamBuffer
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}
