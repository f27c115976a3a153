// Package store provides the record store backing the concierge.
//
// # Architecture
//
// The Catalog interface covers everything the conversation engine and the
// admin surface need from durable storage:
//
//   - Product search and FAQ lookup (read side)
//   - Interaction and feedback logs (audit side)
//   - Admin queries over those logs
//
// CatalogWriter is kept separate because only seeding and tests load
// catalog content. SQLiteStore implements both on a single modernc.org/sqlite
// database in WAL mode; MockStore is an in-memory twin with error injection.
//
// # Seeding
//
// Catalog content is loaded from a YAML file with LoadSeed and written with
// Seed.Apply. Upserts are keyed by record id, so re-applying a seed is safe.
//
// # Errors
//
// ErrNotFound is returned by GetFAQ for unknown ids. All other failures are
// wrapped driver errors; callers treat them as the upstream being unavailable.
package store
