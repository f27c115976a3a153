// ABOUTME: Dispatch engine: one inbound message in, one reply descriptor out
// ABOUTME: Loads the session, runs a command or state transition, persists the result

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/coven-concierge/internal/reply"
	"github.com/2389/coven-concierge/internal/session"
	"github.com/2389/coven-concierge/internal/store"
)

const (
	msgWelcome       = "Welcome! How can I help you today?"
	msgSearchPrompt  = "What product are you looking for? You can search by name, category, or description."
	msgNoResults     = "No products found matching your search. Please try different keywords."
	msgFeedbackThank = "Thank you for your feedback! Is there anything else I can help you with?"
	msgIdleMenu      = "I'm not sure how to help with that. Please select an option:"
	msgUnknown       = "I didn't understand that. Please try again or select an option from the menu."
	msgError         = "Sorry, I encountered an error. Please try again later."

	// DefaultSupportMessage is used when no support text is configured.
	DefaultSupportMessage = "Our support team is available Monday to Friday, 9 AM to 6 PM. You can reach us at support@yourbusiness.com or call +1-234-567-8900."

	// DefaultCatalogTimeout bounds each record store call.
	DefaultCatalogTimeout = 5 * time.Second
)

// Catalog is what the engine needs from the record store.
type Catalog interface {
	SearchProducts(ctx context.Context, query string) ([]store.Product, error)
	ListFAQs(ctx context.Context) ([]store.FAQ, error)
	GetFAQ(ctx context.Context, id string) (*store.FAQ, error)
	SaveFeedback(ctx context.Context, fb *store.Feedback) error
}

// Observer receives dispatch outcomes. The metrics package implements it.
type Observer interface {
	ObserveDispatch(route, outcome string, elapsed time.Duration)
	ObserveFailure(kind, op string)
}

type nopObserver struct{}

func (nopObserver) ObserveDispatch(string, string, time.Duration) {}
func (nopObserver) ObserveFailure(string, string)                 {}

// Options configures an Engine. Zero fields take defaults.
type Options struct {
	SupportMessage string
	CatalogTimeout time.Duration
	Observer       Observer
}

// Engine maps inbound text to replies through the per-user state machine.
// It holds no per-user state; every dispatch re-reads the session store.
type Engine struct {
	sessions       session.Store
	catalog        Catalog
	supportMessage string
	catalogTimeout time.Duration
	observer       Observer
	logger         *slog.Logger
	now            func() time.Time
}

// New creates an Engine.
func New(sessions session.Store, catalog Catalog, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SupportMessage == "" {
		opts.SupportMessage = DefaultSupportMessage
	}
	if opts.CatalogTimeout <= 0 {
		opts.CatalogTimeout = DefaultCatalogTimeout
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Engine{
		sessions:       sessions,
		catalog:        catalog,
		supportMessage: opts.SupportMessage,
		catalogTimeout: opts.CatalogTimeout,
		observer:       opts.Observer,
		logger:         logger.With("component", "conversation"),
		now:            time.Now,
	}
}

// Handle processes one inbound message and always returns a reply. Store
// failures are logged and turned into a generic apology; the session is
// left as it was before the message.
//
// Concurrent calls for the same user are not serialized: each reads then
// overwrites the session, so the last Put wins.
func (e *Engine) Handle(ctx context.Context, userID, text string) reply.Reply {
	start := e.now()

	out, route, err := e.dispatch(ctx, userID, text)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		e.recordFailure(route, err)
		e.logger.Error("dispatch failed",
			"user_id", userID,
			"route", route,
			"error", err)
		out = reply.Text{Content: msgError}
	}

	e.observer.ObserveDispatch(route, outcome, e.now().Sub(start))
	return out
}

func (e *Engine) recordFailure(route string, err error) {
	switch {
	case errors.Is(err, session.ErrStorageUnavailable):
		e.observer.ObserveFailure("session", route)
	case errors.Is(err, ErrUpstreamUnavailable):
		e.observer.ObserveFailure("upstream", route)
	default:
		e.observer.ObserveFailure("internal", route)
	}
}

// dispatch returns the reply, a route label for logs and metrics, and any
// failure that should replace the reply with an apology.
func (e *Engine) dispatch(ctx context.Context, userID, text string) (reply.Reply, string, error) {
	e.appendHistory(ctx, userID, store.DirectionReceived, text)

	sess, err := e.sessions.Get(ctx, userID)
	if errors.Is(err, session.ErrMalformedSession) {
		e.logger.Warn("treating malformed session as idle", "user_id", userID, "error", err)
		sess, err = nil, nil
	}
	if err != nil {
		return nil, "load", err
	}
	current := sess.Current()

	input := strings.TrimSpace(text)
	var (
		st    step
		route string
	)
	if cmd, ok := LookupCommand(strings.ToLower(input)); ok {
		route = "command:" + cmd.String()
		st, err = commandHandlers[cmd](ctx, e, userID)
	} else {
		route = "state:" + string(current.Name())
		st, err = e.transition(ctx, userID, current, input)
	}
	if err != nil {
		return nil, route, err
	}

	if st.next != nil {
		if err := e.sessions.Put(ctx, userID, &session.Session{State: st.next}); err != nil {
			return nil, route, err
		}
	}

	if !st.reset {
		e.appendHistory(ctx, userID, store.DirectionSent, st.reply.Body())
	}

	e.logger.Debug("dispatched",
		"user_id", userID,
		"route", route,
		"reply", st.reply.Kind())
	return st.reply, route, nil
}

// appendHistory records one side of the exchange. Failures are logged and
// never change the reply.
func (e *Engine) appendHistory(ctx context.Context, userID string, dir store.Direction, content string) {
	if err := e.sessions.AppendHistory(ctx, userID, session.Entry{
		Direction: dir,
		Content:   content,
		Timestamp: e.now(),
	}); err != nil {
		e.observer.ObserveFailure("session", "append_history")
		e.logger.Warn("history append failed", "user_id", userID, "direction", dir, "error", err)
	}
}

// transition evaluates input against the current state.
func (e *Engine) transition(ctx context.Context, userID string, current session.State, input string) (step, error) {
	switch st := current.(type) {
	case session.Idle:
		return step{next: session.Idle{}, reply: reply.RootMenu(msgIdleMenu)}, nil

	case session.AwaitingSearchInput:
		products, err := e.searchProducts(ctx, input)
		if err != nil {
			return step{}, err
		}
		if len(products) == 0 {
			return step{reply: reply.Text{Content: msgNoResults}}, nil
		}
		return step{
			next:  session.NewShowingResults(products),
			reply: reply.ProductResults(products),
		}, nil

	case session.ShowingResults:
		p, ok := st.Find(input)
		if !ok {
			return fallThrough(), nil
		}
		return step{
			next:  session.CollectingFeedback{ProductID: p.ID, ProductName: p.Name},
			reply: reply.ProductDetail(p),
		}, nil

	case session.CollectingFeedback:
		if err := e.saveFeedback(ctx, &store.Feedback{
			UserID:    userID,
			ProductID: st.ProductID,
			Text:      input,
		}); err != nil {
			return step{}, err
		}
		return step{next: session.Idle{}, reply: reply.Text{Content: msgFeedbackThank}}, nil

	case session.BrowsingFAQ:
		faq, err := e.getFAQ(ctx, input)
		if errors.Is(err, store.ErrNotFound) {
			return fallThrough(), nil
		}
		if err != nil {
			return step{}, err
		}
		return step{next: session.Idle{}, reply: reply.FAQAnswer(*faq)}, nil

	default:
		return step{}, fmt.Errorf("unhandled state %T", current)
	}
}

// fallThrough answers an unresolved selection without touching the session.
func fallThrough() step {
	return step{reply: reply.Text{Content: msgUnknown}}
}

func (e *Engine) upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstreamUnavailable, op, err)
}

func (e *Engine) searchProducts(ctx context.Context, query string) ([]store.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, e.catalogTimeout)
	defer cancel()

	products, err := e.catalog.SearchProducts(ctx, query)
	if err != nil {
		return nil, e.upstream("search products", err)
	}
	return products, nil
}

func (e *Engine) listFAQs(ctx context.Context) ([]store.FAQ, error) {
	ctx, cancel := context.WithTimeout(ctx, e.catalogTimeout)
	defer cancel()

	faqs, err := e.catalog.ListFAQs(ctx)
	if err != nil {
		return nil, e.upstream("list faqs", err)
	}
	return faqs, nil
}

func (e *Engine) getFAQ(ctx context.Context, id string) (*store.FAQ, error) {
	ctx, cancel := context.WithTimeout(ctx, e.catalogTimeout)
	defer cancel()

	faq, err := e.catalog.GetFAQ(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, e.upstream("get faq", err)
	}
	return faq, nil
}

func (e *Engine) saveFeedback(ctx context.Context, fb *store.Feedback) error {
	ctx, cancel := context.WithTimeout(ctx, e.catalogTimeout)
	defer cancel()

	if err := e.catalog.SaveFeedback(ctx, fb); err != nil {
		return e.upstream("save feedback", err)
	}
	return nil
}
