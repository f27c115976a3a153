// Package admin provides the operator HTTP API for the concierge.
//
// # Overview
//
// The admin package exposes session inspection, audit queries and a live
// interaction feed as chi routes. The concierge-admin CLI is its main client.
//
// # Endpoints
//
// Sessions:
//
//   - GET /admin/history/{user}?limit=N - Recent history, newest first
//   - GET /admin/session/{user} - Stored session record, {} when absent
//   - DELETE /admin/session/{user} - Clear session and history
//
// Audit log:
//
//   - GET /admin/interactions?user=U&limit=N - Interaction log, newest first
//   - GET /admin/feedback?status=S&limit=N - Feedback entries
//
// Operations:
//
//   - GET /admin/status - Backend health and counters
//   - GET /admin/feed?user=U - Server-Sent Events stream of interactions
//
// # Authentication
//
// Routes are mounted behind the guard passed to RegisterRoutes, normally
// auth.AdminMiddleware (X-API-Key or an admin Bearer JWT).
//
// # Usage
//
//	h := admin.NewHandler(sessions, catalog, feed, logger)
//	h.RegisterRoutes(router, auth.AdminMiddleware(keys, tokens, logger))
package admin
