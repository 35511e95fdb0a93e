// Package config loads the ingestion process configuration from built-in
// defaults, an optional YAML file and INGEST_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/event-ingest/pkg/client"
	"github.com/Sternrassler/event-ingest/pkg/logging"
	"github.com/Sternrassler/event-ingest/pkg/ratelimit"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables read by Load. A double underscore
// separates nesting levels: INGEST_API__BASE_URL sets api.base_url.
const EnvPrefix = "INGEST_"

// Checkpoint backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config is the top-level process configuration.
type Config struct {
	API        APIConfig        `koanf:"api"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Database   DatabaseConfig   `koanf:"database"`
	Checkpoint CheckpointConfig `koanf:"checkpoint"`
	Redis      RedisConfig      `koanf:"redis"`
	Log        LogConfig        `koanf:"log"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

type APIConfig struct {
	BaseURL        string        `koanf:"base_url"`
	APIKey         string        `koanf:"api_key"`
	PageSize       int           `koanf:"page_size"`
	Timeout        time.Duration `koanf:"timeout"`
	MaxRetries     int           `koanf:"max_retries"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
}

type RateLimitConfig struct {
	Limit        int           `koanf:"limit"`
	SafetyBuffer int           `koanf:"safety_buffer"`
	Margin       time.Duration `koanf:"margin"`
	MaxWait      time.Duration `koanf:"max_wait"`
	FallbackWait time.Duration `koanf:"fallback_wait"`
}

type IngestConfig struct {
	Target           int64         `koanf:"target"`
	MaxPasses        int           `koanf:"max_passes"`
	ProgressInterval time.Duration `koanf:"progress_interval"`
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type CheckpointConfig struct {
	Backend string `koanf:"backend"` // postgres | redis
	Stream  string `koanf:"stream"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

type MetricsConfig struct {
	Addr string `koanf:"addr"` // empty disables the metrics server
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"api.page_size":            5000,
		"api.timeout":              "30s",
		"api.max_retries":          3,
		"api.initial_backoff":      "1s",
		"api.max_backoff":          "30s",
		"rate_limit.limit":         ratelimit.DefaultLimit,
		"rate_limit.safety_buffer": ratelimit.DefaultSafetyBuffer,
		"rate_limit.margin":        "200ms",
		"rate_limit.max_wait":      "5s",
		"rate_limit.fallback_wait": "10s",
		"ingest.target":            3000000,
		"ingest.max_passes":        0,
		"ingest.progress_interval": "5s",
		"database.max_open_conns":  10,
		"database.max_idle_conns":  10,
		"database.auto_migrate":    true,
		"checkpoint.backend":       BackendPostgres,
		"checkpoint.stream":        "events",
		"redis.addr":               "localhost:6379",
		"redis.db":                 0,
		"log.level":                "info",
		"log.pretty":               false,
		"metrics.addr":             ":9090",
	}
}

// Load parses config from defaults, the optional file at configPath and the
// environment, then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults() {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if strings.TrimSpace(c.API.APIKey) == "" {
		return fmt.Errorf("api.api_key is required")
	}
	if c.API.PageSize <= 0 {
		return fmt.Errorf("api.page_size must be > 0")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must be >= 0")
	}
	if c.Ingest.Target <= 0 {
		return fmt.Errorf("ingest.target must be > 0")
	}
	if c.Ingest.MaxPasses < 0 {
		return fmt.Errorf("ingest.max_passes must be >= 0")
	}
	if c.RateLimit.SafetyBuffer < 0 {
		return fmt.Errorf("rate_limit.safety_buffer must be >= 0")
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}

	switch c.Checkpoint.Backend {
	case BackendPostgres:
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("redis.addr is required for the redis checkpoint backend")
		}
	default:
		return fmt.Errorf("unsupported checkpoint.backend %q (must be postgres or redis)", c.Checkpoint.Backend)
	}

	return nil
}

// ClientConfig maps the api section onto the retrieval client configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.API.BaseURL, c.API.APIKey)
	cfg.Timeout = c.API.Timeout
	cfg.Retry.MaxAttempts = c.API.MaxRetries + 1
	if c.API.InitialBackoff > 0 {
		cfg.Retry.InitialBackoff = c.API.InitialBackoff
	}
	if c.API.MaxBackoff > 0 {
		cfg.Retry.MaxBackoff = c.API.MaxBackoff
	}
	return cfg
}

// LimiterConfig maps the rate_limit section onto the limiter configuration.
func (c *Config) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		Limit:        c.RateLimit.Limit,
		SafetyBuffer: c.RateLimit.SafetyBuffer,
		Margin:       c.RateLimit.Margin,
		MaxWait:      c.RateLimit.MaxWait,
		FallbackWait: c.RateLimit.FallbackWait,
	}
}

// LoggingConfig maps the log section onto the logging setup.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
