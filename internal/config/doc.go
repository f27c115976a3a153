// Package config handles configuration loading for concierge-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_CONCIERGE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/concierge.yaml
//  3. ~/.config/coven/concierge.yaml
//
// The binaries load a .env file from the working directory before reading
// the config, so secrets can live there.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	whatsapp:
//	  access_token: "${WHATSAPP_ACCESS_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	session:
//	  ttl: "24h"
//	  op_timeout: "3s"
//	ratelimit:
//	  window: "15m"
//
// # Session Backends
//
// session.backend selects where conversation state lives:
//
//   - redis: requires redis.addr (default)
//   - sqlite: stores sessions in database.path next to the catalog
package config
