// ABOUTME: Admin HTTP handlers for sessions, audit records and backend status
// ABOUTME: Routes are registered on a chi router behind an auth guard

package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/coven-concierge/internal/conversation"
	"github.com/2389/coven-concierge/internal/session"
	"github.com/2389/coven-concierge/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	statusTimeout    = 5 * time.Second
)

// Handler serves the admin API.
type Handler struct {
	sessions session.Store
	catalog  store.Catalog
	feed     *conversation.Feed
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler creates a Handler. feed may be nil, in which case the feed
// route answers 503.
func NewHandler(sessions session.Store, catalog store.Catalog, feed *conversation.Feed, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions: sessions,
		catalog:  catalog,
		feed:     feed,
		logger:   logger.With("component", "admin"),
		now:      time.Now,
	}
}

// RegisterRoutes mounts the admin routes under /admin. guard wraps every
// route; pass nil only in tests.
func (h *Handler) RegisterRoutes(r chi.Router, guard func(http.Handler) http.Handler) {
	r.Route("/admin", func(r chi.Router) {
		if guard != nil {
			r.Use(guard)
		}
		r.Get("/history/{user}", h.GetHistory)
		r.Get("/session/{user}", h.GetSession)
		r.Delete("/session/{user}", h.ClearSession)
		r.Get("/interactions", h.ListInteractions)
		r.Get("/feedback", h.ListFeedback)
		r.Get("/status", h.Status)
		r.Get("/feed", h.StreamFeed)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// parseLimit reads ?limit=, defaulting to 50 and capping at maxListLimit.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxListLimit), nil
}

// GetHistory returns the user's recent history, newest first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	limit, err := parseLimit(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.sessions.GetHistory(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("fetching history", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	JSON(w, http.StatusOK, entries)
}

// GetSession returns the stored session record in its persisted shape, or
// {} when the user has none.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")

	sess, err := h.sessions.Get(r.Context(), userID)
	if errors.Is(err, session.ErrMalformedSession) {
		Error(w, http.StatusUnprocessableEntity, "stored session is malformed")
		return
	}
	if err != nil {
		h.logger.Error("fetching session", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if sess == nil {
		JSON(w, http.StatusOK, struct{}{})
		return
	}

	data, err := session.Encode(sess)
	if err != nil {
		h.logger.Error("encoding session", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	JSON(w, http.StatusOK, json.RawMessage(data))
}

// ClearSession removes the user's session and history.
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")

	if err := h.sessions.Clear(r.Context(), userID); err != nil {
		h.logger.Error("clearing session", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.logger.Info("session cleared", "user_id", userID)
	JSON(w, http.StatusOK, map[string]string{"message": "Session cleared successfully"})
}

// ListInteractions returns logged interactions, optionally for one user.
func (h *Handler) ListInteractions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.catalog.ListInteractions(r.Context(), r.URL.Query().Get("user"), limit)
	if err != nil {
		h.logger.Error("listing interactions", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if items == nil {
		items = []*store.Interaction{}
	}
	JSON(w, http.StatusOK, items)
}

// ListFeedback returns feedback entries, optionally filtered by status.
func (h *Handler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	status := store.FeedbackStatus(r.URL.Query().Get("status"))
	switch status {
	case "", store.FeedbackStatusNew, store.FeedbackStatusReviewed:
	default:
		Error(w, http.StatusBadRequest, "status must be new or reviewed")
		return
	}

	items, err := h.catalog.ListFeedback(r.Context(), store.FeedbackFilter{Status: status, Limit: limit})
	if err != nil {
		h.logger.Error("listing feedback", "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if items == nil {
		items = []*store.Feedback{}
	}
	JSON(w, http.StatusOK, items)
}

// StatusResponse is the body of GET /admin/status.
type StatusResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Metrics   StatusMetrics     `json:"metrics"`
}

// StatusMetrics holds the counters reported by the status route. A counter
// is -1 when its backend could not answer.
type StatusMetrics struct {
	ActiveSessions    int `json:"active_sessions"`
	TotalInteractions int `json:"total_interactions"`
}

// Status probes both backends. It answers 200 when both respond and 503
// with the same body otherwise.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	resp := StatusResponse{
		Status:    "ok",
		Timestamp: h.now().UTC(),
		Services:  map[string]string{},
		Metrics:   StatusMetrics{ActiveSessions: -1, TotalInteractions: -1},
	}

	if err := h.sessions.Ping(ctx); err != nil {
		resp.Services["sessions"] = err.Error()
		resp.Status = "degraded"
	} else {
		resp.Services["sessions"] = "connected"
		if n, err := h.sessions.CountActive(ctx); err == nil {
			resp.Metrics.ActiveSessions = n
		} else {
			h.logger.Warn("counting sessions", "error", err)
		}
	}

	if err := h.catalog.Ping(ctx); err != nil {
		resp.Services["records"] = err.Error()
		resp.Status = "degraded"
	} else {
		resp.Services["records"] = "connected"
		if n, err := h.catalog.CountInteractions(ctx); err == nil {
			resp.Metrics.TotalInteractions = n
		} else {
			h.logger.Warn("counting interactions", "error", err)
		}
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	JSON(w, code, resp)
}
