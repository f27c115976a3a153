// ABOUTME: Mock Catalog implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject upstream failures

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Catalog implementation for testing.
// Setting Err makes every call fail with it.
type MockStore struct {
	mu           sync.RWMutex
	products     []Product
	faqs         []FAQ
	interactions []*Interaction
	feedback     []*Feedback

	Err error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{}
}

func (m *MockStore) fail() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Err
}

// SetErr injects (or clears, with nil) a failure for every call.
func (m *MockStore) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// UpsertProduct adds or replaces a product.
func (m *MockStore) UpsertProduct(ctx context.Context, p *Product) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.products {
		if m.products[i].ID == p.ID {
			m.products[i] = *p
			return nil
		}
	}
	m.products = append(m.products, *p)
	return nil
}

// UpsertFAQ adds or replaces an FAQ.
func (m *MockStore) UpsertFAQ(ctx context.Context, f *FAQ) error {
	if err := m.fail(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.faqs {
		if m.faqs[i].ID == f.ID {
			m.faqs[i] = *f
			return nil
		}
	}
	m.faqs = append(m.faqs, *f)
	return nil
}

// SearchProducts mirrors the SQLite matching rules.
func (m *MockStore) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := strings.ToLower(query)
	var out []Product
	for _, p := range m.products {
		if strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q) ||
			strings.Contains(strings.ToLower(p.Category), q) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListFAQs returns FAQs ordered by question.
func (m *MockStore) ListFAQs(ctx context.Context) ([]FAQ, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]FAQ(nil), m.faqs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Question < out[j].Question })
	return out, nil
}

// GetFAQ returns an FAQ by id.
func (m *MockStore) GetFAQ(ctx context.Context, id string) (*FAQ, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.faqs {
		if f.ID == id {
			result := f
			return &result, nil
		}
	}
	return nil, ErrNotFound
}

// SaveFeedback stores a copy of the feedback.
func (m *MockStore) SaveFeedback(ctx context.Context, fb *Feedback) error {
	if err := m.fail(); err != nil {
		return err
	}
	if fb.ID == "" {
		fb.ID = uuid.New().String()
	}
	if fb.Status == "" {
		fb.Status = FeedbackStatusNew
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *fb
	m.feedback = append(m.feedback, &c)
	return nil
}

// SaveInteraction stores a copy of the interaction.
func (m *MockStore) SaveInteraction(ctx context.Context, in *Interaction) error {
	if err := m.fail(); err != nil {
		return err
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *in
	m.interactions = append(m.interactions, &c)
	return nil
}

// ListInteractions returns interactions newest first.
func (m *MockStore) ListInteractions(ctx context.Context, userID string, limit int) ([]*Interaction, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Interaction
	for i := len(m.interactions) - 1; i >= 0; i-- {
		in := m.interactions[i]
		if userID != "" && in.UserID != userID {
			continue
		}
		c := *in
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListFeedback returns feedback newest first.
func (m *MockStore) ListFeedback(ctx context.Context, filter FeedbackFilter) ([]*Feedback, error) {
	if err := m.fail(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Feedback
	for i := len(m.feedback) - 1; i >= 0; i-- {
		fb := m.feedback[i]
		if filter.Status != "" && fb.Status != filter.Status {
			continue
		}
		c := *fb
		out = append(out, &c)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// CountInteractions returns the number of stored interactions.
func (m *MockStore) CountInteractions(ctx context.Context) (int, error) {
	if err := m.fail(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.interactions), nil
}

// Ping reports the injected error, if any.
func (m *MockStore) Ping(ctx context.Context) error {
	return m.fail()
}

var (
	_ Catalog       = (*MockStore)(nil)
	_ CatalogWriter = (*MockStore)(nil)
)
