// ABOUTME: Configuration loading and parsing for concierge-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Session backends
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Defaults applied when a field is left empty
const (
	DefaultHTTPAddr       = "0.0.0.0:8080"
	DefaultSessionTTL     = 24 * time.Hour
	DefaultHistoryLimit   = 50
	DefaultOpTimeout      = 3 * time.Second
	DefaultCatalogTimeout = 5 * time.Second
	DefaultRateWindow     = 15 * time.Minute
	DefaultRateMax        = 100
	DefaultMetricsPath    = "/metrics"
)

// Config represents the complete concierge-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Session   SessionConfig   `yaml:"session"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Admin     AdminConfig     `yaml:"admin"`
	Support   SupportConfig   `yaml:"support"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"`  // serve TLS on :443 with tailnet certs
	Funnel    bool   `yaml:"funnel"` // expose publicly, implies HTTPS; needed for webhook delivery
}

// SessionConfig selects and tunes the session backend
type SessionConfig struct {
	Backend      string        `yaml:"backend"`
	HistoryLimit int           `yaml:"history_limit"`
	TTL          time.Duration `yaml:"-"`
	OpTimeout    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TTLRaw       string `yaml:"ttl"`
	OpTimeoutRaw string `yaml:"op_timeout"`
}

// RedisConfig holds the Redis connection for the redis session backend
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CatalogConfig tunes access to the record store
type CatalogConfig struct {
	SeedFile   string        `yaml:"seed_file"` // imported at startup when set
	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// WhatsAppConfig holds WhatsApp Cloud API credentials
type WhatsAppConfig struct {
	Enabled       bool   `yaml:"enabled"`
	APIURL        string `yaml:"api_url"`
	PhoneNumberID string `yaml:"phone_number_id"`
	AccessToken   string `yaml:"access_token"`
	VerifyToken   string `yaml:"verify_token"`
	AppSecret     string `yaml:"app_secret"` // enables X-Hub-Signature-256 checks
}

// AdminConfig holds admin API credentials
type AdminConfig struct {
	APIKeyHash string `yaml:"api_key_hash"` // bcrypt hash of the shared X-API-Key
	JWTSecret  string `yaml:"jwt_secret"`
}

// SupportConfig holds the text sent for the support command
type SupportConfig struct {
	Message string `yaml:"message"`
}

// RateLimitConfig bounds webhook requests per window
type RateLimitConfig struct {
	Window      time.Duration `yaml:"-"`
	WindowRaw   string        `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Path returns the config file location.
// Priority: COVEN_CONCIERGE_CONFIG env var > XDG_CONFIG_HOME/coven/concierge.yaml > ~/.config/coven/concierge.yaml
func Path() string {
	if envPath := os.Getenv("COVEN_CONCIERGE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "concierge.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "concierge.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content the same way Load does.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	c.Session.Backend = strings.ToLower(c.Session.Backend)
	if c.Session.Backend == "" {
		c.Session.Backend = BackendRedis
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = DefaultSessionTTL
	}
	if c.Session.HistoryLimit == 0 {
		c.Session.HistoryLimit = DefaultHistoryLimit
	}
	if c.Session.OpTimeout == 0 {
		c.Session.OpTimeout = DefaultOpTimeout
	}
	if c.Catalog.Timeout == 0 {
		c.Catalog.Timeout = DefaultCatalogTimeout
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = DefaultRateWindow
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = DefaultRateMax
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Session.Backend {
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis session backend")
		}
	case BackendSQLite:
	default:
		return fmt.Errorf("session.backend must be %q or %q, got %q", BackendRedis, BackendSQLite, c.Session.Backend)
	}

	if c.Session.TTL < 0 || c.Session.OpTimeout < 0 || c.Catalog.Timeout < 0 || c.RateLimit.Window < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.Session.HistoryLimit < 0 {
		return fmt.Errorf("session.history_limit must not be negative")
	}
	if c.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("ratelimit.max_requests must not be negative")
	}

	if c.WhatsApp.Enabled {
		if c.WhatsApp.PhoneNumberID == "" {
			return fmt.Errorf("whatsapp.phone_number_id is required when whatsapp is enabled")
		}
		if c.WhatsApp.AccessToken == "" {
			return fmt.Errorf("whatsapp.access_token is required when whatsapp is enabled")
		}
		if c.WhatsApp.VerifyToken == "" {
			return fmt.Errorf("whatsapp.verify_token is required when whatsapp is enabled")
		}
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"session.ttl", cfg.Session.TTLRaw, &cfg.Session.TTL},
		{"session.op_timeout", cfg.Session.OpTimeoutRaw, &cfg.Session.OpTimeout},
		{"catalog.timeout", cfg.Catalog.TimeoutRaw, &cfg.Catalog.Timeout},
		{"ratelimit.window", cfg.RateLimit.WindowRaw, &cfg.RateLimit.Window},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
