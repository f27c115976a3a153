// ABOUTME: Matrix bridge core for the concierge
// ABOUTME: Routes room messages to the gateway and renders replies as numbered Markdown

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-concierge/internal/reply"
)

// Bridge connects Matrix rooms to the concierge gateway. Each Matrix user
// is one concierge user, whichever room they write from.
type Bridge struct {
	config  *Config
	matrix  *mautrix.Client
	gateway *GatewayClient
	logger  *slog.Logger
	started time.Time

	// per-sender locks keep one user's messages in order
	senders sync.Map

	mu      sync.Mutex
	options map[string][]string // sender -> option ids of the last reply

	// ctx is the parent context for message processing goroutines
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridge creates a new Matrix bridge.
func NewBridge(cfg *Config, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Matrix.Homeserver, "", "")
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	return &Bridge{
		config:  cfg,
		matrix:  client,
		gateway: NewGatewayClient(cfg.Gateway),
		logger:  logger.With("component", "matrix"),
		options: make(map[string][]string),
	}, nil
}

// Login authenticates with the homeserver using the configured password.
func (b *Bridge) Login(ctx context.Context) error {
	resp, err := b.matrix.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: b.config.Matrix.Username,
		},
		Password:                 b.config.Matrix.Password,
		InitialDeviceDisplayName: "concierge-matrix",
		StoreCredentials:         true,
	})
	if err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}
	b.logger.Info("logged in", "user_id", resp.UserID.String(), "device_id", resp.DeviceID.String())
	return nil
}

// Run starts the bridge and blocks until context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting matrix bridge",
		"homeserver", b.config.Matrix.Homeserver,
		"user_id", b.matrix.UserID.String(),
		"gateway", b.config.Gateway.URL,
	)

	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()
	b.started = time.Now()

	syncer, ok := b.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)
	syncer.OnEventType(event.StateMember, b.handleMemberEvent)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.matrix.SyncWithContext(b.ctx)
	}()

	b.logger.Info("matrix bridge running")

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
		b.cancel()
		return nil
	case err := <-syncErr:
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMemberEvent accepts invites to allowed rooms.
func (b *Bridge) handleMemberEvent(ctx context.Context, evt *event.Event) {
	member, ok := evt.Content.Parsed.(*event.MemberEventContent)
	if !ok || member.Membership != event.MembershipInvite {
		return
	}
	if evt.GetStateKey() != b.matrix.UserID.String() || !b.isRoomAllowed(evt.RoomID.String()) {
		return
	}

	joinCtx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if _, err := b.matrix.JoinRoomByID(joinCtx, evt.RoomID); err != nil {
		b.logger.Warn("failed to join room", "room", evt.RoomID.String(), "error", err)
		return
	}
	b.logger.Info("joined room", "room", evt.RoomID.String(), "inviter", evt.Sender.String())
}

// handleMessageEvent processes incoming Matrix messages.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	if evt.Sender == b.matrix.UserID {
		return
	}

	// the first sync replays room history
	if time.UnixMilli(evt.Timestamp).Before(b.started) {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}

	roomID := evt.RoomID.String()
	if !b.isRoomAllowed(roomID) {
		b.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return
	}

	msgBody, ok := b.stripPrefix(content.Body)
	if !ok || msgBody == "" {
		return
	}

	b.logger.Info("received message",
		"room", roomID,
		"sender", evt.Sender.String(),
		"content", truncate(msgBody, 50),
	)

	// don't block sync
	go b.processMessage(b.ctx, evt.RoomID, evt.Sender, evt.ID, msgBody)
}

func (b *Bridge) stripPrefix(body string) (string, bool) {
	prefix := b.config.Bridge.CommandPrefix
	if prefix == "" {
		return strings.TrimSpace(body), true
	}
	if !strings.HasPrefix(body, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(body, prefix)), true
}

// processMessage sends the message to the gateway and posts the reply.
func (b *Bridge) processMessage(ctx context.Context, roomID id.RoomID, sender id.UserID, eventID id.EventID, text string) {
	lock := b.senderLock(sender.String())
	lock.Lock()
	defer lock.Unlock()

	if b.config.Bridge.TypingIndicator {
		b.setTyping(roomID, true)
		defer b.setTyping(roomID, false)
	}

	resp, err := b.gateway.Dispatch(ctx, DispatchRequest{
		UserID:    sender.String(),
		Text:      b.resolveAnswer(sender.String(), text),
		MessageID: eventID.String(),
	})
	if err != nil {
		b.logger.Error("gateway request failed", "room", roomID.String(), "error", err)
		b.sendContent(roomID, &event.MessageEventContent{
			MsgType: event.MsgNotice,
			Body:    "Sorry, the concierge is unavailable right now. Please try again shortly.",
		})
		return
	}
	if resp.Duplicate {
		b.logger.Debug("duplicate event", "event_id", eventID.String())
		return
	}

	r := resp.Reply.Reply
	b.rememberOptions(sender.String(), reply.OptionIDs(r))

	content, err := renderReply(r)
	if err != nil {
		b.logger.Warn("rendering reply as HTML failed, sending plain text", "error", err)
	}

	b.logger.Info("sending reply",
		"room", roomID.String(),
		"kind", string(r.Kind()),
	)
	b.sendContent(roomID, content)
}

func (b *Bridge) senderLock(sender string) *sync.Mutex {
	v, _ := b.senders.LoadOrStore(sender, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (b *Bridge) rememberOptions(sender string, ids []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(ids) == 0 {
		delete(b.options, sender)
		return
	}
	b.options[sender] = ids
}

// resolveAnswer maps a numbered answer ("2") to the id of the matching
// option in the sender's last reply. Anything else passes through unchanged.
func (b *Bridge) resolveAnswer(sender, text string) string {
	n, err := strconv.Atoi(strings.TrimSuffix(text, "."))
	if err != nil {
		return text
	}

	b.mu.Lock()
	ids := b.options[sender]
	b.mu.Unlock()

	if n < 1 || n > len(ids) {
		return text
	}
	return ids[n-1]
}

// renderReply builds a Matrix message with a Markdown body and an HTML
// formatted body. On a render error the plain body is still usable.
func renderReply(r reply.Reply) (*event.MessageEventContent, error) {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    reply.Markdown(r),
	}
	html, err := reply.HTML(r)
	if err != nil {
		return content, err
	}
	content.Format = event.FormatHTML
	content.FormattedBody = html
	return content, nil
}

// isRoomAllowed checks if the room is in the allowed list.
func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.config.Bridge.AllowedRooms) == 0 {
		return true // Allow all if no filter
	}

	for _, allowed := range b.config.Bridge.AllowedRooms {
		if allowed == roomID {
			return true
		}
	}
	return false
}

// typingTimeout is the duration the typing indicator shows (30 seconds).
const typingTimeout = 30 * time.Second

// networkTimeout is the timeout for Matrix API calls.
const networkTimeout = 10 * time.Second

// setTyping sends typing indicator to room.
func (b *Bridge) setTyping(roomID id.RoomID, typing bool) {
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()
	if _, err := b.matrix.UserTyping(ctx, roomID, typing, timeout); err != nil {
		b.logger.Debug("failed to set typing indicator", "room", roomID.String(), "error", err)
	}
}

// sendContent posts a message event to a room.
func (b *Bridge) sendContent(roomID id.RoomID, content *event.MessageEventContent) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := b.matrix.SendMessageEvent(ctx, roomID, event.EventMessage, content); err != nil {
		b.logger.Error("failed to send message", "room", roomID.String(), "error", err)
	}
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
