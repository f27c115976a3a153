// ABOUTME: SQLite-backed session store for single-node deployments without Redis
// ABOUTME: Expiry is an expires_at column shared by the session row and its history

package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SQLiteStore implements Store on a database/sql handle opened with
// modernc.org/sqlite. It can share the record store's database.
type SQLiteStore struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates the session tables on db if needed.
func NewSQLiteStore(db *sql.DB, opts Options, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLiteStore{
		db:     db,
		opts:   opts.withDefaults(),
		logger: logger.With("component", "session.sqlite"),
		now:    time.Now,
	}
	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("creating session schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		-- data is NULL while only history exists for the user
		CREATE TABLE IF NOT EXISTS sessions (
			user_id    TEXT PRIMARY KEY,
			data       TEXT,
			expires_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

		CREATE TABLE IF NOT EXISTS session_history (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			entry   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_session_history_user ON session_history(user_id, id DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// withTx runs fn in a transaction bounded by the op timeout.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.unavailable(op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(ctx, tx); err != nil {
		return s.unavailable(op, err)
	}
	if err := tx.Commit(); err != nil {
		return s.unavailable(op, err)
	}
	return nil
}

// dropExpired removes a user's rows if their clock already ran out, so a
// returning user never inherits stale history.
func dropExpired(ctx context.Context, tx *sql.Tx, userID string, now int64) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM session_history
		WHERE user_id = ? AND EXISTS (
			SELECT 1 FROM sessions WHERE user_id = ? AND expires_at <= ?
		)
	`, userID, userID, now); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ? AND expires_at <= ?`, userID, now)
	return err
}

// Get returns the live session, or nil when absent or expired.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	var data sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM sessions WHERE user_id = ? AND expires_at > ?
	`, userID, s.now().UnixNano()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.unavailable("get session", err)
	}
	if !data.Valid {
		return nil, nil
	}

	sess, err := Decode([]byte(data.String))
	if err != nil {
		s.logger.Warn("discarding malformed session", "user_id", userID, "error", err)
		return nil, err
	}
	return sess, nil
}

// Put overwrites the session and moves the shared expiry forward.
func (s *SQLiteStore) Put(ctx context.Context, userID string, sess *Session) error {
	now := s.now()
	stamped := Session{State: sess.State, UpdatedAt: now}
	data, err := Encode(&stamped)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	return s.withTx(ctx, "put session", func(ctx context.Context, tx *sql.Tx) error {
		if err := dropExpired(ctx, tx, userID, now.UnixNano()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (user_id, data, expires_at) VALUES (?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				data = excluded.data,
				expires_at = excluded.expires_at
		`, userID, string(data), now.Add(s.opts.TTL).UnixNano())
		return err
	})
}

// AppendHistory inserts the entry, trims to the limit and refreshes the
// expiry in one transaction.
func (s *SQLiteStore) AppendHistory(ctx context.Context, userID string, e Entry) error {
	now := s.now()
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	data, err := encodeEntry(e)
	if err != nil {
		return fmt.Errorf("encoding history entry: %w", err)
	}

	return s.withTx(ctx, "append history", func(ctx context.Context, tx *sql.Tx) error {
		if err := dropExpired(ctx, tx, userID, now.UnixNano()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_history (user_id, entry) VALUES (?, ?)
		`, userID, string(data)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM session_history
			WHERE user_id = ? AND id NOT IN (
				SELECT id FROM session_history WHERE user_id = ? ORDER BY id DESC LIMIT ?
			)
		`, userID, userID, s.opts.HistoryLimit); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (user_id, data, expires_at) VALUES (?, NULL, ?)
			ON CONFLICT(user_id) DO UPDATE SET expires_at = excluded.expires_at
		`, userID, now.Add(s.opts.TTL).UnixNano())
		return err
	})
}

// GetHistory returns live entries newest first.
func (s *SQLiteStore) GetHistory(ctx context.Context, userID string, limit int) ([]Entry, error) {
	limit = s.opts.clampLimit(limit)

	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT h.entry
		FROM session_history h
		JOIN sessions s ON s.user_id = h.user_id
		WHERE h.user_id = ? AND s.expires_at > ?
		ORDER BY h.id DESC
		LIMIT ?
	`, userID, s.now().UnixNano(), limit)
	if err != nil {
		return nil, s.unavailable("get history", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, s.unavailable("scan history", err)
		}
		e, err := decodeEntry([]byte(raw))
		if err != nil {
			s.logger.Warn("skipping malformed history entry", "user_id", userID, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.unavailable("get history", err)
	}
	return entries, nil
}

// Clear deletes session and history in one transaction.
func (s *SQLiteStore) Clear(ctx context.Context, userID string) error {
	return s.withTx(ctx, "clear", func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_history WHERE user_id = ?`, userID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
		return err
	})
}

// CountActive counts live sessions with state.
func (s *SQLiteStore) CountActive(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE data IS NOT NULL AND expires_at > ?
	`, s.now().UnixNano()).Scan(&n)
	if err != nil {
		return 0, s.unavailable("count sessions", err)
	}
	return n, nil
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return s.unavailable("ping", err)
	}
	return nil
}

// Purge deletes expired sessions and their history, returning how many
// sessions were removed.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	var removed int64
	now := s.now().UnixNano()
	err := s.withTx(ctx, "purge", func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM session_history
			WHERE user_id IN (SELECT user_id FROM sessions WHERE expires_at <= ?)
		`, now); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

// RunJanitor purges expired rows every interval until ctx is done.
func (s *SQLiteStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Purge(ctx)
			if err != nil {
				s.logger.Warn("session purge failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("purged expired sessions", "count", n)
			}
		}
	}
}

var _ Store = (*SQLiteStore)(nil)
