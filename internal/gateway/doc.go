// Package gateway orchestrates the concierge server components.
//
// # Overview
//
// The gateway package owns every long-lived component: the SQLite catalog,
// the session store (Redis or SQLite), the conversation engine, the live
// interaction feed, the deduplication window, the WhatsApp client and the
// HTTP server.
//
// # HTTP API
//
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (pings catalog and session store)
//   - GET /metrics - Prometheus metrics, when enabled
//   - GET /webhook - WhatsApp subscription handshake
//   - POST /webhook - WhatsApp message delivery
//   - POST /api/dispatch - Run one message through the engine and return the reply
//   - /admin/... - Operator endpoints, see package admin
//
// The webhook, dispatch and admin routes share a per-client rate limit.
//
// # Webhook Flow
//
//  1. Verify X-Hub-Signature-256 when an app secret is configured
//  2. Drop messages already seen within the dedupe window
//  3. Log the inbound interaction and dispatch the text
//  4. Send the reply through the Cloud API and log it
//
// Meta retries anything that is not a 2xx, so per-message failures are
// logged and the webhook still answers 200.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
//	cancel() // Run shuts the server down and closes every component
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, routing, Run/Shutdown
//   - webhook.go: WhatsApp webhook handlers
//   - dispatch.go: /api/dispatch and interaction logging
//   - ratelimit.go: per-client token buckets
package gateway
