package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for every setting:
// FEATURESCOPE_<SECTION>_<FIELD>, e.g. FEATURESCOPE_SERVER_PORT.
const envPrefix = "FEATURESCOPE"

// envKeys lists the scalar keys that may be set purely from the environment.
// Viper only resolves AutomaticEnv for keys it already knows about.
var envKeys = []string{
	"server.host", "server.port", "server.mode", "server.read_timeout",
	"server.write_timeout", "server.shutdown_timeout",
	"grpc.enabled", "grpc.port", "grpc.enable_reflection",
	"log.level", "log.format",
	"backend.base_url", "backend.timeout", "backend.sae_id", "backend.llm",
	"redis.enabled", "redis.mode", "redis.addr", "redis.password", "redis.db",
	"redis.key_prefix", "redis.default_ttl",
	"minio.enabled", "minio.endpoint", "minio.access_key", "minio.secret_key",
	"minio.bucket", "minio.prefix", "minio.region", "minio.use_ssl",
	"kafka.enabled", "kafka.topic", "kafka.async", "kafka.ensure_topic",
	"source.kind", "source.file_path", "source.watch", "source.snapshot_key",
	"source.cache", "source.cache_ttl",
	"render.width", "render.height", "render.hex_radius", "render.visible_debounce",
	"render.session_ttl", "render.max_sessions",
	"metrics.enabled", "metrics.path", "metrics.namespace",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the YAML file at configPath, merges FEATURESCOPE_* overrides,
// applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from FEATURESCOPE_* variables and defaults only.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadOrDefault loads configPath when it is non-empty and falls back to
// LoadFromEnv otherwise.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// Watch re-parses configPath on every change and hands valid configs to
// onChange; invalid edits are reported through onError when it is non-nil.
// Only the log level and render tunables are safe to apply at runtime.
func Watch(configPath string, onChange func(*Config), onError func(error)) {
	v := newViper()
	v.SetConfigFile(configPath)
	_ = v.ReadInConfig()

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// MustLoad is Load that panics on error. For main() only.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
