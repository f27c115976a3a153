// Package session stores each user's conversational position and recent
// message history.
//
// # State model
//
// State is a sealed interface with one variant per conversational state.
// Each variant carries exactly the context that state needs:
//
//   - Idle, AwaitingSearchInput, BrowsingFAQ: no context
//   - ShowingResults: the last search results, indexed by product id
//   - CollectingFeedback: the product the feedback is about
//
// On the wire a session is {"state": "...", "context": {...}}. Decode
// rejects unknown states and contexts of the wrong shape with
// ErrMalformedSession, which callers treat as an absent session.
//
// # Backends
//
// RedisStore keeps session:<user> and history:<user> keys with a shared
// TTL. SQLiteStore keeps the same model in two tables with an expires_at
// column. MemoryStore is used by tests.
//
// Writes are unconditional overwrites. Two concurrent dispatches for the
// same user race and the later Put wins; no per-user lock is taken.
package session
