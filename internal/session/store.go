// ABOUTME: Session Store interface, options and sentinel errors
// ABOUTME: Implemented by the Redis, SQLite and in-memory backends

package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStorageUnavailable is returned when the backend cannot be reached
	// or does not answer within the per-call timeout.
	ErrStorageUnavailable = errors.New("session storage unavailable")

	// ErrMalformedSession is returned when a stored record does not decode
	// into a valid state. Callers treat it as an absent session.
	ErrMalformedSession = errors.New("malformed session")
)

const (
	DefaultTTL          = 24 * time.Hour
	DefaultHistoryLimit = 50
	DefaultOpTimeout    = 3 * time.Second
)

// Store persists sessions and recent history. Both keys for a user share
// one inactivity clock; Put and AppendHistory reset it.
type Store interface {
	// Get returns nil, nil when the user has no live session.
	Get(ctx context.Context, userID string) (*Session, error)

	// Put overwrites the session unconditionally. Last writer wins.
	Put(ctx context.Context, userID string, s *Session) error

	// AppendHistory pushes newest-first and trims to the history limit atomically.
	AppendHistory(ctx context.Context, userID string, e Entry) error

	// GetHistory returns up to limit entries, newest first. limit <= 0 means all.
	GetHistory(ctx context.Context, userID string, limit int) ([]Entry, error)

	// Clear removes session and history together. Clearing an absent user succeeds.
	Clear(ctx context.Context, userID string) error

	// CountActive returns the number of live sessions.
	CountActive(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
}

// Options tunes a Store. Zero fields take the defaults.
type Options struct {
	TTL          time.Duration
	HistoryLimit int
	OpTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = DefaultOpTimeout
	}
	return o
}

// clampLimit bounds a caller's history limit by the retained length.
func (o Options) clampLimit(limit int) int {
	if limit <= 0 || limit > o.HistoryLimit {
		return o.HistoryLimit
	}
	return limit
}
