package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.API.BaseURL != "https://forms.example.com/api" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("API.Timeout = %v, want 5s", cfg.API.Timeout)
	}
	if cfg.API.CircuitBreaker.FailureThreshold != 3 {
		t.Errorf("API.CircuitBreaker.FailureThreshold = %d, want 3", cfg.API.CircuitBreaker.FailureThreshold)
	}
	if cfg.API.RefreshPath != "/auth/token/refresh/" {
		t.Errorf("API.RefreshPath = %q, want default", cfg.API.RefreshPath)
	}
	if cfg.Session.Driver != DriverSQLite || cfg.Session.Path == "" {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.Table.Debounce != 800*time.Millisecond {
		t.Errorf("Table.Debounce = %v, want 800ms", cfg.Table.Debounce)
	}
	if cfg.Table.RefreshInterval != 2*time.Minute {
		t.Errorf("Table.RefreshInterval = %v, want 2m", cfg.Table.RefreshInterval)
	}
	if cfg.Specs.File != "/etc/formdesk/openapi.yaml" {
		t.Errorf("Specs.File = %q", cfg.Specs.File)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Observability.LogLevel)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_api(t *testing.T) {
	_, err := Load("testdata/missing_api.yaml")
	if err == nil {
		t.Fatal("Load() without api.base_url should return error")
	}
	if !strings.Contains(err.Error(), "api.base_url is required") {
		t.Errorf("error = %v", err)
	}
}

func TestLoad_timingOutOfRange(t *testing.T) {
	_, err := Load("testdata/bad_timing.yaml")
	if err == nil {
		t.Fatal("Load() with out-of-range timing should return error")
	}
	for _, want := range []string{"table.debounce", "table.refresh_interval"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoad_envOverride(t *testing.T) {
	t.Setenv("FORMDESK_API_BASE_URL", "https://override.example.com")
	t.Setenv("FORMDESK_SERVER_PORT", "7070")

	cfg, err := Load("testdata/missing_api.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "https://override.example.com" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Table.Debounce != 600*time.Millisecond {
		t.Errorf("default Table.Debounce = %v, want 600ms", cfg.Table.Debounce)
	}
	if cfg.Session.Driver != DriverMemory {
		t.Errorf("default Session.Driver = %q", cfg.Session.Driver)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
}

func TestValidate_redisNeedsAddress(t *testing.T) {
	cfg := Defaults()
	cfg.API.BaseURL = "https://forms.example.com/api"
	cfg.Session.Driver = DriverRedis
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should require a redis address")
	}

	t.Setenv("TEST_REDIS_ADDR", "localhost:6379")
	cfg.Session.AddrEnv = "TEST_REDIS_ADDR"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
