// ABOUTME: HTTP dispatch API for bridges and testing, plus the shared audit path
// ABOUTME: Every inbound and outbound message is logged and published to the live feed

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/2389/coven-concierge/internal/reply"
	"github.com/2389/coven-concierge/internal/store"
)

// DispatchRequest is the body of POST /api/dispatch.
type DispatchRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`

	// MessageID is the channel's id for the message. When set, redeliveries
	// of the same id are answered with Duplicate and no reply.
	MessageID string `json:"message_id,omitempty"`
}

// DispatchResponse is the body returned by POST /api/dispatch.
type DispatchResponse struct {
	Reply     *reply.JSON `json:"reply,omitempty"`
	Duplicate bool        `json:"duplicate,omitempty"`
}

// parseDispatchRequest parses and validates a DispatchRequest from the given reader.
func parseDispatchRequest(r io.Reader) (*DispatchRequest, error) {
	var req DispatchRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, errors.New("user_id is required")
	}
	return &req, nil
}

// handleDispatch runs one message through the engine and returns the reply
// descriptor. The caller is responsible for delivering it.
func (g *Gateway) handleDispatch(w http.ResponseWriter, r *http.Request) {
	req, err := parseDispatchRequest(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.MessageID != "" && g.dedupe.Seen("api:"+req.MessageID) {
		writeJSON(w, http.StatusOK, DispatchResponse{Duplicate: true})
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), messageTimeout)
	defer cancel()

	out := g.converse(ctx, req.UserID, req.Text, req.MessageID)
	g.recordInteraction(ctx, req.UserID, out.Body(), store.DirectionSent, "")

	writeJSON(w, http.StatusOK, DispatchResponse{Reply: &reply.JSON{Reply: out}})
}

// converse logs the inbound message and asks the engine for a reply.
func (g *Gateway) converse(ctx context.Context, userID, text, messageID string) reply.Reply {
	g.recordInteraction(ctx, userID, text, store.DirectionReceived, messageID)
	return g.engine.Handle(ctx, userID, text)
}

// recordInteraction writes an audit row and publishes it to the feed. A
// failed write is logged and counted; the conversation goes on.
func (g *Gateway) recordInteraction(ctx context.Context, userID, text string, dir store.Direction, messageID string) {
	in := &store.Interaction{
		UserID:    userID,
		Message:   text,
		Direction: dir,
		MessageID: messageID,
		CreatedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Catalog.Timeout)
	defer cancel()
	if err := g.catalog.SaveInteraction(ctx, in); err != nil {
		g.metrics.ObserveFailure("upstream", "save_interaction")
		g.logger.Warn("saving interaction failed", "user_id", userID, "direction", dir, "error", err)
	}

	g.feed.Publish(in)
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
