// ABOUTME: In-memory fan-out of logged interactions for live admin views
// ABOUTME: Subscribers follow one user, or every user with an empty user id

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-concierge/internal/store"
)

const (
	// feedBufferSize is the channel buffer for each subscriber.
	feedBufferSize = 64

	// allUsers is the subscription key that receives every interaction.
	allUsers = ""
)

// Feed publishes interactions to subscribers as the gateway logs them.
// Publishing never blocks; slow subscribers miss events.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *store.Interaction // userID -> subID -> ch
	logger      *slog.Logger
}

// NewFeed creates a feed. Pass nil logger for default.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		subscribers: make(map[string]map[string]chan *store.Interaction),
		logger:      logger.With("component", "feed"),
	}
}

// Subscribe registers for interactions of userID, or of everyone when
// userID is empty. The subscription ends, and the channel closes, when ctx
// is cancelled.
func (f *Feed) Subscribe(ctx context.Context, userID string) (<-chan *store.Interaction, string) {
	subID := uuid.New().String()
	ch := make(chan *store.Interaction, feedBufferSize)

	f.mu.Lock()
	if _, ok := f.subscribers[userID]; !ok {
		f.subscribers[userID] = make(map[string]chan *store.Interaction)
	}
	f.subscribers[userID][subID] = ch
	f.mu.Unlock()

	f.logger.Debug("subscriber added", "user_id", userID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		f.Unsubscribe(userID, subID)
	}()

	return ch, subID
}

// Publish delivers in to the user's subscribers and to all-user subscribers.
func (f *Feed) Publish(in *store.Interaction) {
	// Sends are non-blocking, so holding the read lock keeps Unsubscribe
	// from closing a channel mid-send.
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys := []string{allUsers}
	if in.UserID != allUsers {
		keys = append(keys, in.UserID)
	}
	for _, key := range keys {
		for subID, ch := range f.subscribers[key] {
			select {
			case ch <- in:
			default:
				f.logger.Debug("dropped interaction for slow subscriber",
					"user_id", in.UserID,
					"sub_id", subID)
			}
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (f *Feed) Unsubscribe(userID, subID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, ok := f.subscribers[userID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(f.subscribers, userID)
	}

	f.logger.Debug("subscriber removed", "user_id", userID, "sub_id", subID)
}

// Close ends every subscription.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for userID, subs := range f.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(f.subscribers, userID)
	}
}
