// ABOUTME: WhatsApp Cloud API webhook: subscription verification and message intake
// ABOUTME: Each inbound message is deduplicated, dispatched, answered and audited

package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/2389/coven-concierge/internal/store"
	"github.com/2389/coven-concierge/internal/whatsapp"
)

const (
	// maxWebhookBody bounds the payload read before signature checks.
	maxWebhookBody = 1 << 20

	// messageTimeout bounds the work done for one inbound message,
	// independent of the webhook request's lifetime.
	messageTimeout = 30 * time.Second

	signatureHeader = "X-Hub-Signature-256"
)

// handleWebhookVerify answers the platform's subscription handshake.
func (g *Gateway) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")

	if mode != "subscribe" || token == "" || token != g.config.WhatsApp.VerifyToken {
		g.logger.Warn("webhook verification rejected", "mode", mode, "remote", r.RemoteAddr)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	g.logger.Info("webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// handleWebhook processes a delivery. Messages are handled in order before
// the response is written; per-message failures are logged and do not fail
// the delivery.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if secret := g.config.WhatsApp.AppSecret; secret != "" {
		if err := whatsapp.VerifySignature(secret, body, r.Header.Get(signatureHeader)); err != nil {
			g.metrics.WebhookMessage("invalid_signature")
			g.logger.Warn("webhook signature rejected", "remote", r.RemoteAddr)
			sendJSONError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var payload whatsapp.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.Object != whatsapp.BusinessAccountObject {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	for _, msg := range payload.Messages() {
		g.handleInbound(ctx, msg)
	}
	w.WriteHeader(http.StatusOK)
}

// handleInbound runs one message through the concierge and sends the reply.
func (g *Gateway) handleInbound(ctx context.Context, msg whatsapp.InboundMessage) {
	ctx, cancel := context.WithTimeout(ctx, messageTimeout)
	defer cancel()

	if msg.From == "" {
		g.metrics.WebhookMessage("ignored")
		return
	}
	if msg.ID != "" && g.dedupe.Seen(msg.ID) {
		g.metrics.WebhookMessage("duplicate")
		g.logger.Debug("duplicate webhook message ignored", "message_id", msg.ID)
		return
	}

	text, ok := msg.Text()
	if !ok {
		g.metrics.WebhookMessage("ignored")
		g.logger.Debug("unsupported message type ignored", "type", msg.Type, "message_id", msg.ID)
		return
	}

	out := g.converse(ctx, msg.From, text, msg.ID)

	if g.sender == nil {
		g.metrics.WebhookMessage("no_sender")
		g.logger.Error("no outbound sender configured", "user_id", msg.From)
		return
	}
	err := g.sender.Send(ctx, msg.From, out)
	g.metrics.OutboundReply(string(out.Kind()), err)
	if err != nil {
		g.metrics.WebhookMessage("send_failed")
		g.logger.Error("sending reply failed", "user_id", msg.From, "kind", out.Kind(), "error", err)
		return
	}

	g.recordInteraction(ctx, msg.From, out.Body(), store.DirectionSent, "")
	g.metrics.WebhookMessage("dispatched")
}
