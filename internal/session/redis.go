// ABOUTME: Redis-backed session store using go-redis
// ABOUTME: session:<user> holds the state record, history:<user> the bounded list

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionPrefix = "session:"
	historyPrefix = "history:"
)

// RedisStore implements Store on Redis. Writes that touch both keys run in
// a MULTI/EXEC pipeline so the shared TTL never diverges.
type RedisStore struct {
	client redis.UniversalClient
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisStore wraps an existing client. The caller owns the client.
func NewRedisStore(client redis.UniversalClient, opts Options, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client: client,
		opts:   opts.withDefaults(),
		logger: logger.With("component", "session.redis"),
		now:    time.Now,
	}
}

func sessionKey(userID string) string { return sessionPrefix + userID }
func historyKey(userID string) string { return historyPrefix + userID }

func (s *RedisStore) unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// Get loads and decodes the session.
func (s *RedisStore) Get(ctx context.Context, userID string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, s.unavailable("get session", err)
	}

	sess, err := Decode(data)
	if err != nil {
		s.logger.Warn("discarding malformed session", "user_id", userID, "error", err)
		return nil, err
	}
	return sess, nil
}

// Put writes the session and refreshes the TTL on both keys.
func (s *RedisStore) Put(ctx context.Context, userID string, sess *Session) error {
	stamped := Session{State: sess.State, UpdatedAt: s.now()}
	data, err := Encode(&stamped)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(userID), data, s.opts.TTL)
		pipe.Expire(ctx, historyKey(userID), s.opts.TTL)
		return nil
	})
	if err != nil {
		return s.unavailable("put session", err)
	}
	return nil
}

// AppendHistory pushes, trims and refreshes the TTL in one transaction.
func (s *RedisStore) AppendHistory(ctx context.Context, userID string, e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	data, err := encodeEntry(e)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	hk := historyKey(userID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, hk, data)
		pipe.LTrim(ctx, hk, 0, int64(s.opts.HistoryLimit-1))
		pipe.Expire(ctx, hk, s.opts.TTL)
		pipe.Expire(ctx, sessionKey(userID), s.opts.TTL)
		return nil
	})
	if err != nil {
		return s.unavailable("append history", err)
	}
	return nil
}

// GetHistory returns the newest entries first. Undecodable entries are skipped.
func (s *RedisStore) GetHistory(ctx context.Context, userID string, limit int) ([]Entry, error) {
	limit = s.opts.clampLimit(limit)

	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	raw, err := s.client.LRange(ctx, historyKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, s.unavailable("get history", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		e, err := decodeEntry([]byte(item))
		if err != nil {
			s.logger.Warn("skipping malformed history entry", "user_id", userID, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Clear deletes both keys with a single DEL.
func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, sessionKey(userID), historyKey(userID)).Err(); err != nil {
		return s.unavailable("clear", err)
	}
	return nil
}

// CountActive scans session keys. Cost is linear in the keyspace, so this
// is for admin status only.
func (s *RedisStore) CountActive(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionPrefix+"*", 100).Result()
		if err != nil {
			return 0, s.unavailable("count sessions", err)
		}
		count += len(keys)
		if next == 0 {
			return count, nil
		}
		cursor = next
	}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.unavailable("ping", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
