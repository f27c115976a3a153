// ABOUTME: Record store types and the Catalog interface used by the concierge
// ABOUTME: Products, FAQs, interaction log and feedback log live here

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// Product is a searchable catalog entry
type Product struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Price       float64 `json:"price" yaml:"price"`
	Category    string  `json:"category" yaml:"category"`
	ImageURL    string  `json:"image_url,omitempty" yaml:"image_url"`
}

// FAQ is a question/answer pair
type FAQ struct {
	ID       string `json:"id" yaml:"id"`
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
	Category string `json:"category,omitempty" yaml:"category"`
}

// Direction of a logged message relative to the concierge
type Direction string

const (
	DirectionReceived Direction = "received"
	DirectionSent     Direction = "sent"
)

// Interaction is one audit-log row for a message crossing the channel
type Interaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Direction Direction `json:"direction"`
	MessageID string    `json:"message_id,omitempty"` // channel-specific id, if any
	CreatedAt time.Time `json:"created_at"`
}

// FeedbackStatus tracks triage of a feedback entry
type FeedbackStatus string

const (
	FeedbackStatusNew      FeedbackStatus = "new"
	FeedbackStatusReviewed FeedbackStatus = "reviewed"
)

// Feedback is free-form text a user left about a product
type Feedback struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	ProductID string         `json:"product_id,omitempty"`
	Text      string         `json:"feedback"`
	Status    FeedbackStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// FeedbackFilter narrows ListFeedback; zero values match everything
type FeedbackFilter struct {
	Status FeedbackStatus
	Limit  int
}

// Catalog is the record store the conversation engine reads from and
// writes audit records to.
type Catalog interface {
	// Read side
	SearchProducts(ctx context.Context, query string) ([]Product, error)
	ListFAQs(ctx context.Context) ([]FAQ, error)
	GetFAQ(ctx context.Context, id string) (*FAQ, error)

	// Audit side
	SaveFeedback(ctx context.Context, fb *Feedback) error
	SaveInteraction(ctx context.Context, in *Interaction) error

	// Admin queries
	ListInteractions(ctx context.Context, userID string, limit int) ([]*Interaction, error)
	ListFeedback(ctx context.Context, filter FeedbackFilter) ([]*Feedback, error)
	CountInteractions(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
}

// CatalogWriter loads catalog content; used by seeding and tests.
type CatalogWriter interface {
	UpsertProduct(ctx context.Context, p *Product) error
	UpsertFAQ(ctx context.Context, f *FAQ) error
}
