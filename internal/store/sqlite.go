// ABOUTME: SQLite implementation of the Catalog interface using modernc.org/sqlite
// ABOUTME: Provides product/FAQ lookup and audit logging with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// tsLayout is fixed-width so timestamps sort lexicographically in SQL.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Catalog and CatalogWriter using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// dsn sets the pragmas on every pooled connection. Transactions begin
// IMMEDIATE so concurrent writers wait on busy_timeout instead of failing
// on lock upgrade.
func dsn(path string) string {
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS products (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price       REAL NOT NULL DEFAULT 0,
			category    TEXT NOT NULL DEFAULT '',
			image_url   TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);

		CREATE TABLE IF NOT EXISTS faqs (
			id       TEXT PRIMARY KEY,
			question TEXT NOT NULL,
			answer   TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS interactions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			message    TEXT NOT NULL,
			direction  TEXT NOT NULL,
			message_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,

			CHECK (direction IN ('received', 'sent'))
		);

		CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS feedback (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			product_id TEXT NOT NULL DEFAULT '',
			feedback   TEXT NOT NULL,
			status     TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_feedback_status ON feedback(status, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// DB exposes the handle so other stores can share one database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close releases the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SearchProducts returns products whose name, description or category
// contains the query, case-insensitively, ordered by name.
func (s *SQLiteStore) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, price, category, image_url
		FROM products
		WHERE instr(lower(name), lower(?1)) > 0
		   OR instr(lower(description), lower(?1)) > 0
		   OR instr(lower(category), lower(?1)) > 0
		ORDER BY name ASC, id ASC
	`, query)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.ImageURL); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListFAQs returns all FAQs ordered by question
func (s *SQLiteStore) ListFAQs(ctx context.Context) ([]FAQ, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question, answer, category
		FROM faqs
		ORDER BY question ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing faqs: %w", err)
	}
	defer rows.Close()

	var faqs []FAQ
	for rows.Next() {
		var f FAQ
		if err := rows.Scan(&f.ID, &f.Question, &f.Answer, &f.Category); err != nil {
			return nil, fmt.Errorf("scanning faq: %w", err)
		}
		faqs = append(faqs, f)
	}
	return faqs, rows.Err()
}

// GetFAQ returns a single FAQ or ErrNotFound
func (s *SQLiteStore) GetFAQ(ctx context.Context, id string) (*FAQ, error) {
	var f FAQ
	err := s.db.QueryRowContext(ctx, `
		SELECT id, question, answer, category FROM faqs WHERE id = ?
	`, id).Scan(&f.ID, &f.Question, &f.Answer, &f.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting faq: %w", err)
	}
	return &f, nil
}

// UpsertProduct inserts or replaces a product
func (s *SQLiteStore) UpsertProduct(ctx context.Context, p *Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price, category, image_url)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			category = excluded.category,
			image_url = excluded.image_url
	`, p.ID, p.Name, p.Description, p.Price, p.Category, p.ImageURL)
	if err != nil {
		return fmt.Errorf("upserting product %s: %w", p.ID, err)
	}
	return nil
}

// UpsertFAQ inserts or replaces an FAQ
func (s *SQLiteStore) UpsertFAQ(ctx context.Context, f *FAQ) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO faqs (id, question, answer, category)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question = excluded.question,
			answer = excluded.answer,
			category = excluded.category
	`, f.ID, f.Question, f.Answer, f.Category)
	if err != nil {
		return fmt.Errorf("upserting faq %s: %w", f.ID, err)
	}
	return nil
}

// SaveFeedback records feedback. ID, Status and CreatedAt are filled in when empty.
func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb *Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.New().String()
	}
	if fb.Status == "" {
		fb.Status = FeedbackStatusNew
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, user_id, product_id, feedback, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, fb.ID, fb.UserID, fb.ProductID, fb.Text, string(fb.Status), fb.CreatedAt.UTC().Format(tsLayout))
	if err != nil {
		return fmt.Errorf("saving feedback: %w", err)
	}
	return nil
}

// SaveInteraction appends an interaction. ID and CreatedAt are filled in when empty.
func (s *SQLiteStore) SaveInteraction(ctx context.Context, in *Interaction) error {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, user_id, message, direction, message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, in.ID, in.UserID, in.Message, string(in.Direction), in.MessageID, in.CreatedAt.UTC().Format(tsLayout))
	if err != nil {
		return fmt.Errorf("saving interaction: %w", err)
	}
	return nil
}

// ListInteractions returns the newest interactions first. An empty userID
// lists across all users.
func (s *SQLiteStore) ListInteractions(ctx context.Context, userID string, limit int) ([]*Interaction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, user_id, message, direction, message_id, created_at FROM interactions`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing interactions: %w", err)
	}
	defer rows.Close()

	var out []*Interaction
	for rows.Next() {
		var in Interaction
		var direction, createdAt string
		if err := rows.Scan(&in.ID, &in.UserID, &in.Message, &direction, &in.MessageID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning interaction: %w", err)
		}
		in.Direction = Direction(direction)
		in.CreatedAt, err = time.Parse(tsLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing interaction timestamp: %w", err)
		}
		out = append(out, &in)
	}
	return out, rows.Err()
}

// ListFeedback returns feedback newest first, optionally filtered by status
func (s *SQLiteStore) ListFeedback(ctx context.Context, filter FeedbackFilter) ([]*Feedback, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, user_id, product_id, feedback, status, created_at FROM feedback`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}
	defer rows.Close()

	var out []*Feedback
	for rows.Next() {
		var fb Feedback
		var status, createdAt string
		if err := rows.Scan(&fb.ID, &fb.UserID, &fb.ProductID, &fb.Text, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning feedback: %w", err)
		}
		fb.Status = FeedbackStatus(status)
		fb.CreatedAt, err = time.Parse(tsLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing feedback timestamp: %w", err)
		}
		out = append(out, &fb)
	}
	return out, rows.Err()
}

// CountInteractions returns the size of the interaction log
func (s *SQLiteStore) CountInteractions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting interactions: %w", err)
	}
	return n, nil
}

// Compile-time interface checks
var (
	_ Catalog       = (*SQLiteStore)(nil)
	_ CatalogWriter = (*SQLiteStore)(nil)
)
