// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "concierge.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "127.0.0.1:9090"

session:
  backend: redis
  ttl: "12h"
  history_limit: 20
  op_timeout: "2s"

redis:
  addr: "localhost:6379"
  db: 2

database:
  path: "./concierge.db"

catalog:
  seed_file: "./catalog.yaml"
  timeout: "4s"

whatsapp:
  enabled: true
  phone_number_id: "12345"
  access_token: "EAAB"
  verify_token: "verify-me"
  app_secret: "shh"

support:
  message: "Call us"

ratelimit:
  window: "1m"
  max_requests: 10

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/prom"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9090")
	}
	if cfg.Session.Backend != BackendRedis {
		t.Errorf("Session.Backend = %q, want %q", cfg.Session.Backend, BackendRedis)
	}
	if cfg.Session.TTL != 12*time.Hour {
		t.Errorf("Session.TTL = %v, want %v", cfg.Session.TTL, 12*time.Hour)
	}
	if cfg.Session.HistoryLimit != 20 {
		t.Errorf("Session.HistoryLimit = %d, want 20", cfg.Session.HistoryLimit)
	}
	if cfg.Session.OpTimeout != 2*time.Second {
		t.Errorf("Session.OpTimeout = %v, want 2s", cfg.Session.OpTimeout)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Database.Path != "./concierge.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Catalog.SeedFile != "./catalog.yaml" || cfg.Catalog.Timeout != 4*time.Second {
		t.Errorf("Catalog = %+v", cfg.Catalog)
	}
	if !cfg.WhatsApp.Enabled || cfg.WhatsApp.PhoneNumberID != "12345" || cfg.WhatsApp.AppSecret != "shh" {
		t.Errorf("WhatsApp = %+v", cfg.WhatsApp)
	}
	if cfg.Support.Message != "Call us" {
		t.Errorf("Support.Message = %q", cfg.Support.Message)
	}
	if cfg.RateLimit.Window != time.Minute || cfg.RateLimit.MaxRequests != 10 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/prom" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
session:
  backend: sqlite
database:
  path: "./concierge.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != DefaultHTTPAddr {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Session.TTL != 24*time.Hour {
		t.Errorf("Session.TTL = %v, want 24h", cfg.Session.TTL)
	}
	if cfg.Session.HistoryLimit != 50 {
		t.Errorf("Session.HistoryLimit = %d, want 50", cfg.Session.HistoryLimit)
	}
	if cfg.Session.OpTimeout != DefaultOpTimeout {
		t.Errorf("Session.OpTimeout = %v", cfg.Session.OpTimeout)
	}
	if cfg.Catalog.Timeout != DefaultCatalogTimeout {
		t.Errorf("Catalog.Timeout = %v", cfg.Catalog.Timeout)
	}
	if cfg.RateLimit.Window != 15*time.Minute || cfg.RateLimit.MaxRequests != 100 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q", cfg.Metrics.Path)
	}
}

func TestLoad_BackendDefaultsToRedis(t *testing.T) {
	configPath := writeConfig(t, `
redis:
  addr: "localhost:6379"
database:
  path: "./concierge.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.Backend != BackendRedis {
		t.Errorf("Session.Backend = %q, want %q", cfg.Session.Backend, BackendRedis)
	}
}

func TestLoad_BackendIsCaseInsensitive(t *testing.T) {
	configPath := writeConfig(t, `
session:
  backend: SQLite
database:
  path: "./concierge.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.Backend != BackendSQLite {
		t.Errorf("Session.Backend = %q, want %q", cfg.Session.Backend, BackendSQLite)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_WA_TOKEN", "token-from-env")
	t.Setenv("TEST_DB_PATH", "/var/lib/concierge.db")

	configPath := writeConfig(t, `
session:
  backend: sqlite
database:
  path: "${TEST_DB_PATH}"
whatsapp:
  enabled: true
  phone_number_id: "1"
  access_token: "${TEST_WA_TOKEN}"
  verify_token: "v"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WhatsApp.AccessToken != "token-from-env" {
		t.Errorf("WhatsApp.AccessToken = %q, want %q", cfg.WhatsApp.AccessToken, "token-from-env")
	}
	if cfg.Database.Path != "/var/lib/concierge.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	os.Unsetenv("TEST_UNSET_SUPPORT_MSG")

	configPath := writeConfig(t, `
session:
  backend: sqlite
database:
  path: "./concierge.db"
support:
  message: "${TEST_UNSET_SUPPORT_MSG}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Support.Message != "" {
		t.Errorf("Support.Message = %q, want empty", cfg.Support.Message)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/concierge.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "session: [unclosed")
	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tests := []struct {
		name  string
		field string
		yaml  string
	}{
		{"ttl", "session.ttl", "session:\n  backend: sqlite\n  ttl: \"a day\"\n"},
		{"op_timeout", "session.op_timeout", "session:\n  backend: sqlite\n  op_timeout: \"3 seconds\"\n"},
		{"catalog timeout", "catalog.timeout", "session:\n  backend: sqlite\ncatalog:\n  timeout: \"soon\"\n"},
		{"rate window", "ratelimit.window", "session:\n  backend: sqlite\nratelimit:\n  window: \"15\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.yaml+"database:\n  path: x.db\n")
			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Load() expected error for invalid duration, got nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:    ServerConfig{HTTPAddr: ":8080"},
			Session:   SessionConfig{Backend: BackendSQLite, TTL: time.Hour, HistoryLimit: 50, OpTimeout: time.Second},
			Database:  DatabaseConfig{Path: "x.db"},
			Catalog:   CatalogConfig{Timeout: time.Second},
			RateLimit: RateLimitConfig{Window: time.Minute, MaxRequests: 1},
			Metrics:   MetricsConfig{Path: "/metrics"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"tailscale without hostname", func(c *Config) { c.Tailscale.Enabled = true }, "tailscale.hostname"},
		{"tailscale replaces http addr", func(c *Config) {
			c.Server.HTTPAddr = ""
			c.Tailscale = TailscaleConfig{Enabled: true, Hostname: "concierge"}
		}, ""},
		{"missing database", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"redis without addr", func(c *Config) { c.Session.Backend = BackendRedis }, "redis.addr"},
		{"unknown backend", func(c *Config) { c.Session.Backend = "memcached" }, "session.backend"},
		{"negative ttl", func(c *Config) { c.Session.TTL = -time.Second }, "negative"},
		{"negative history", func(c *Config) { c.Session.HistoryLimit = -1 }, "history_limit"},
		{"negative max requests", func(c *Config) { c.RateLimit.MaxRequests = -5 }, "max_requests"},
		{"whatsapp without phone id", func(c *Config) {
			c.WhatsApp = WhatsAppConfig{Enabled: true, AccessToken: "t", VerifyToken: "v"}
		}, "phone_number_id"},
		{"whatsapp without token", func(c *Config) {
			c.WhatsApp = WhatsAppConfig{Enabled: true, PhoneNumberID: "1", VerifyToken: "v"}
		}, "access_token"},
		{"whatsapp without verify token", func(c *Config) {
			c.WhatsApp = WhatsAppConfig{Enabled: true, PhoneNumberID: "1", AccessToken: "t"}
		}, "verify_token"},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR_A", "alpha")
	t.Setenv("TEST_VAR_B", "beta")

	tests := []struct {
		input string
		want  string
	}{
		{"no vars", "no vars"},
		{"${TEST_VAR_A}", "alpha"},
		{"${TEST_VAR_A}-${TEST_VAR_B}", "alpha-beta"},
		{"prefix ${TEST_VAR_B} suffix", "prefix beta suffix"},
		{"${TEST_VAR_NOT_SET_ANYWHERE}", ""},
		{"$TEST_VAR_A", "$TEST_VAR_A"},
	}

	for _, tt := range tests {
		if got := expandEnvVars(tt.input); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPath(t *testing.T) {
	t.Setenv("COVEN_CONCIERGE_CONFIG", "/etc/concierge.yaml")
	if got := Path(); got != "/etc/concierge.yaml" {
		t.Errorf("Path() = %q, want env override", got)
	}

	t.Setenv("COVEN_CONCIERGE_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := Path(); got != filepath.Join("/tmp/xdg", "coven", "concierge.yaml") {
		t.Errorf("Path() = %q, want XDG location", got)
	}
}
