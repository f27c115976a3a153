// Package metrics exposes Prometheus collectors for the concierge gateway.
package metrics
