// ABOUTME: TOML configuration for the concierge Matrix bridge
// ABOUTME: Matrix login, gateway dispatch credentials and room filtering, with ${VAR} expansion

package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

const defaultGatewayURL = "http://localhost:8080"

type Config struct {
	Matrix  MatrixConfig  `toml:"matrix"`
	Gateway GatewayConfig `toml:"gateway"`
	Bridge  BridgeConfig  `toml:"bridge"`
	Logging LoggingConfig `toml:"logging"`
}

// MatrixConfig is the account the bridge logs in as. Username may be a
// localpart or a full @user:server id.
type MatrixConfig struct {
	Homeserver string `toml:"homeserver"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
}

// GatewayConfig points at the concierge gateway. Token wins over APIKey
// when both are set.
type GatewayConfig struct {
	URL    string `toml:"url"`
	Token  string `toml:"token"`
	APIKey string `toml:"api_key"`
}

type BridgeConfig struct {
	// empty means every room the bot is invited to
	AllowedRooms    []string `toml:"allowed_rooms"`
	CommandPrefix   string   `toml:"command_prefix"`
	TypingIndicator bool     `toml:"typing_indicator"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the bridge config at path, expanding ${VAR} references first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(expandEnvVars(string(data)))
}

// Parse decodes TOML text, fills defaults and validates the result.
func Parse(data string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing config: unknown key %q", undecoded[0].String())
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

func (c *Config) applyDefaults() {
	if c.Gateway.URL == "" {
		c.Gateway.URL = defaultGatewayURL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Bridge.CommandPrefix = strings.TrimSpace(c.Bridge.CommandPrefix)
}

// Validate reports every problem at once so a broken config can be fixed
// in one edit.
func (c *Config) Validate() error {
	var errs []error

	switch {
	case c.Matrix.Homeserver == "":
		errs = append(errs, errors.New("matrix.homeserver is required"))
	default:
		if err := requireHTTPURL(c.Matrix.Homeserver); err != nil {
			errs = append(errs, fmt.Errorf("matrix.homeserver %w", err))
		}
	}
	if c.Matrix.Username == "" {
		errs = append(errs, errors.New("matrix.username is required"))
	}
	if c.Matrix.Password == "" {
		errs = append(errs, errors.New("matrix.password is required"))
	}

	if err := requireHTTPURL(c.Gateway.URL); err != nil {
		errs = append(errs, fmt.Errorf("gateway.url %w", err))
	}

	for _, room := range c.Bridge.AllowedRooms {
		if !strings.HasPrefix(room, "!") || !strings.Contains(room, ":") {
			errs = append(errs, fmt.Errorf("bridge.allowed_rooms: %q is not a room id (!room:server)", room))
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level))
	}

	return errors.Join(errs...)
}

func requireHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https scheme")
	}
	if u.Host == "" {
		return errors.New("has no host")
	}
	return nil
}
