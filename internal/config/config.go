// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	API           APIConfig           `yaml:"api"`
	Session       SessionConfig       `yaml:"session"`
	Definitions   DefinitionsConfig   `yaml:"definitions"`
	Specs         SpecsConfig         `yaml:"specs"`
	Capability    CapabilityConfig    `yaml:"capability"`
	Table         TableConfig         `yaml:"table"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// APIConfig describes the remote forms API.
type APIConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	TokenPath      string               `yaml:"token_path"`
	RefreshPath    string               `yaml:"refresh_path"`
	RefreshLeeway  time.Duration        `yaml:"refresh_leeway"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
}

// CircuitBreakerConfig describes circuit breaker settings.
type CircuitBreakerConfig struct {
	FailureThreshold   int           `yaml:"failure_threshold"`
	SuccessThreshold   int           `yaml:"success_threshold"`
	Timeout            time.Duration `yaml:"timeout"`
	ErrorRateThreshold float64       `yaml:"error_rate_threshold"`
	ErrorRateWindow    time.Duration `yaml:"error_rate_window"`
}

// RetryConfig describes retry settings for idempotent calls.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// SessionConfig describes where browser sessions and their credentials live.
type SessionConfig struct {
	Driver     string        `yaml:"driver"`
	AddrEnv    string        `yaml:"addr_env"`
	Addr       string        `yaml:"addr"`
	DB         int           `yaml:"db"`
	Path       string        `yaml:"path"`
	TTL        time.Duration `yaml:"ttl"`
	CookieName string        `yaml:"cookie_name"`
}

// Session store drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// DefinitionsConfig describes where to find definition YAML files.
type DefinitionsConfig struct {
	Directories []string `yaml:"directories"`
}

// SpecsConfig points at the remote API's OpenAPI document. An empty file
// skips endpoint verification.
type SpecsConfig struct {
	File string `yaml:"file"`
}

// CapabilityConfig describes authorization settings.
type CapabilityConfig struct {
	StaticPolicyFile string        `yaml:"static_policy_file"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
}

// TableConfig holds the defaults applied to resource tables that do not
// override them.
type TableConfig struct {
	PageSize        int           `yaml:"page_size"`
	Debounce        time.Duration `yaml:"debounce"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	StaleTime       time.Duration `yaml:"stale_time"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	Cache           CacheConfig   `yaml:"cache"`
}

// CacheConfig describes the fetch cache backend.
type CacheConfig struct {
	Driver string `yaml:"driver"`
}

// Bounds for table timing.
const (
	MinDebounce        = 600 * time.Millisecond
	MaxDebounce        = 1200 * time.Millisecond
	MinRefreshInterval = 2 * time.Minute
	MaxRefreshInterval = 5 * time.Minute
)

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Session-Id", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		API: APIConfig{
			Timeout:       10 * time.Second,
			TokenPath:     "/auth/token/",
			RefreshPath:   "/auth/token/refresh/",
			RefreshLeeway: 30 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:       2,
				BackoffInitial:    100 * time.Millisecond,
				BackoffMultiplier: 2,
				BackoffMax:        2 * time.Second,
			},
		},
		Session: SessionConfig{
			Driver:     DriverMemory,
			TTL:        12 * time.Hour,
			CookieName: "formdesk_session",
		},
		Definitions: DefinitionsConfig{
			Directories: []string{"/definitions"},
		},
		Capability: CapabilityConfig{
			CacheTTL: 5 * time.Minute,
		},
		Table: TableConfig{
			PageSize:        10,
			Debounce:        MinDebounce,
			RefreshInterval: MaxRefreshInterval,
			StaleTime:       5 * time.Minute,
			IdleTimeout:     30 * time.Minute,
			Cache:           CacheConfig{Driver: DriverMemory},
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.API.BaseURL == "" {
		errs = append(errs, "api.base_url is required")
	}
	if !slices.Contains([]string{DriverMemory, DriverRedis, DriverSQLite}, c.Session.Driver) {
		errs = append(errs, "session.driver must be one of memory, redis, sqlite")
	}
	if c.Session.Driver == DriverRedis && c.RedisAddr() == "" {
		errs = append(errs, "session.addr (or the variable named by session.addr_env) is required for the redis driver")
	}
	if c.Session.Driver == DriverSQLite && c.Session.Path == "" {
		errs = append(errs, "session.path is required for the sqlite driver")
	}
	if !slices.Contains([]string{DriverMemory, DriverRedis}, c.Table.Cache.Driver) {
		errs = append(errs, "table.cache.driver must be one of memory, redis")
	}
	if c.Table.Cache.Driver == DriverRedis && c.RedisAddr() == "" {
		errs = append(errs, "a redis address is required for the redis table cache")
	}
	if c.Table.Debounce < MinDebounce || c.Table.Debounce > MaxDebounce {
		errs = append(errs, "table.debounce must be between 600ms and 1.2s")
	}
	if c.Table.RefreshInterval < MinRefreshInterval || c.Table.RefreshInterval > MaxRefreshInterval {
		errs = append(errs, "table.refresh_interval must be between 2m and 5m")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// RedisAddr resolves the redis address from the config or the environment
// variable it names.
func (c *Config) RedisAddr() string {
	if c.Session.Addr != "" {
		return c.Session.Addr
	}
	if c.Session.AddrEnv != "" {
		return os.Getenv(c.Session.AddrEnv)
	}
	return ""
}

// applyEnvOverrides reads FORMDESK_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FORMDESK_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FORMDESK_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("FORMDESK_SESSION_DRIVER"); v != "" {
		cfg.Session.Driver = v
	}
	if v := os.Getenv("FORMDESK_SESSION_ADDR"); v != "" {
		cfg.Session.Addr = v
	}
	if v := os.Getenv("FORMDESK_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
