// ABOUTME: Conversation states as a sealed set of variants, each with its own context
// ABOUTME: Session and history entry types persisted by the session stores

package session

import (
	"time"

	"github.com/2389/coven-concierge/internal/store"
)

// StateName is the persisted discriminator of a State.
type StateName string

const (
	NameIdle                StateName = "idle"
	NameAwaitingSearchInput StateName = "awaiting_search_input"
	NameShowingResults      StateName = "showing_results"
	NameCollectingFeedback  StateName = "collecting_feedback"
	NameBrowsingFAQ         StateName = "browsing_faq"
)

// State is one position in the conversation. Only the variants in this
// package implement it.
type State interface {
	Name() StateName
	isState()
}

// Idle is the resting state; the user sees the root menu.
type Idle struct{}

// AwaitingSearchInput means the next message is a product query.
type AwaitingSearchInput struct{}

// ShowingResults holds the last search results so a selection can be
// resolved without another catalog round trip.
type ShowingResults struct {
	products []store.Product
	index    map[string]int
}

// CollectingFeedback means the next message is feedback about ProductID.
type CollectingFeedback struct {
	ProductID   string
	ProductName string
}

// BrowsingFAQ means the next message is an FAQ selection.
type BrowsingFAQ struct{}

func (Idle) Name() StateName                { return NameIdle }
func (AwaitingSearchInput) Name() StateName { return NameAwaitingSearchInput }
func (ShowingResults) Name() StateName      { return NameShowingResults }
func (CollectingFeedback) Name() StateName  { return NameCollectingFeedback }
func (BrowsingFAQ) Name() StateName         { return NameBrowsingFAQ }

func (Idle) isState()                {}
func (AwaitingSearchInput) isState() {}
func (ShowingResults) isState()      {}
func (CollectingFeedback) isState()  {}
func (BrowsingFAQ) isState()         {}

// NewShowingResults builds the state for a result set, keeping source order.
// When ids repeat, the first occurrence wins on lookup.
func NewShowingResults(products []store.Product) ShowingResults {
	s := ShowingResults{
		products: append([]store.Product(nil), products...),
		index:    make(map[string]int, len(products)),
	}
	for i, p := range s.products {
		if _, dup := s.index[p.ID]; !dup {
			s.index[p.ID] = i
		}
	}
	return s
}

// Products returns the stored results in their original order.
func (s ShowingResults) Products() []store.Product {
	return append([]store.Product(nil), s.products...)
}

// Find resolves a result by id.
func (s ShowingResults) Find(id string) (store.Product, bool) {
	i, ok := s.index[id]
	if !ok {
		return store.Product{}, false
	}
	return s.products[i], true
}

// Session is the persisted per-user record.
type Session struct {
	State     State
	UpdatedAt time.Time
}

// Current returns the session's state, treating a nil session or state as Idle.
func (s *Session) Current() State {
	if s == nil || s.State == nil {
		return Idle{}
	}
	return s.State
}

// Entry is one line of a user's recent message history.
type Entry struct {
	Direction store.Direction `json:"direction"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
}
