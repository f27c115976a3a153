// Package conversation implements the concierge's dispatch engine.
//
// # Overview
//
// Engine.Handle takes one inbound message and returns one reply descriptor:
//
//	engine := conversation.New(sessions, catalog, conversation.Options{}, logger)
//	out := engine.Handle(ctx, "+15551234567", "products")
//
// Each dispatch appends the message to history, loads the session, and
// then either runs a command or evaluates the current state:
//
//   - Commands (start, products, faq, support) match in every state
//   - Idle answers anything else with the root menu
//   - AwaitingSearchInput searches the catalog
//   - ShowingResults resolves a product id from the stored results
//   - CollectingFeedback records feedback and returns to Idle
//   - BrowsingFAQ resolves an FAQ id and returns to Idle
//
// Unresolved selections get a generic "didn't understand" reply and the
// session is not written. A successful turn also appends the reply to
// history as a sent entry, except for start, which leaves history empty.
//
// # Failures
//
// Handle never returns an error. Session store failures
// (session.ErrStorageUnavailable) and record store failures
// (ErrUpstreamUnavailable) are logged, reported to the Observer, and
// replaced by an apology. Nothing is persisted for a failed turn.
//
// # Feed
//
// Feed fans out logged interactions to live subscribers such as the admin
// event stream. It is independent of the engine.
package conversation
