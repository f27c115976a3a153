// ABOUTME: JSON encoding of sessions as {"state", "context"} records
// ABOUTME: Decoding rejects unknown states and contexts of the wrong shape

package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/coven-concierge/internal/store"
)

type record struct {
	State     StateName       `json:"state"`
	Context   json.RawMessage `json:"context,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type resultsContext struct {
	Products []store.Product `json:"products"`
}

type feedbackContext struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
}

// Encode serializes a session. A nil state is stored as idle.
func Encode(s *Session) ([]byte, error) {
	rec := record{UpdatedAt: s.UpdatedAt.UTC()}

	var ctxValue any
	switch st := s.Current().(type) {
	case Idle, AwaitingSearchInput, BrowsingFAQ:
		rec.State = st.Name()
	case ShowingResults:
		rec.State = st.Name()
		ctxValue = resultsContext{Products: st.products}
	case CollectingFeedback:
		rec.State = st.Name()
		ctxValue = feedbackContext{ProductID: st.ProductID, ProductName: st.ProductName}
	default:
		return nil, fmt.Errorf("unknown state type %T", st)
	}

	if ctxValue != nil {
		raw, err := json.Marshal(ctxValue)
		if err != nil {
			return nil, fmt.Errorf("encoding %s context: %w", rec.State, err)
		}
		rec.Context = raw
	}

	return json.Marshal(rec)
}

// Decode parses a stored session. Every failure wraps ErrMalformedSession.
func Decode(data []byte) (*Session, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}

	s := &Session{UpdatedAt: rec.UpdatedAt}
	switch rec.State {
	case NameIdle, NameAwaitingSearchInput, NameBrowsingFAQ:
		if hasContext(rec.Context) {
			return nil, fmt.Errorf("%w: state %s carries no context", ErrMalformedSession, rec.State)
		}
		switch rec.State {
		case NameIdle:
			s.State = Idle{}
		case NameAwaitingSearchInput:
			s.State = AwaitingSearchInput{}
		default:
			s.State = BrowsingFAQ{}
		}

	case NameShowingResults:
		var c resultsContext
		if err := decodeStrict(rec.Context, &c); err != nil {
			return nil, fmt.Errorf("%w: %s context: %v", ErrMalformedSession, rec.State, err)
		}
		if len(c.Products) == 0 {
			return nil, fmt.Errorf("%w: %s without products", ErrMalformedSession, rec.State)
		}
		s.State = NewShowingResults(c.Products)

	case NameCollectingFeedback:
		var c feedbackContext
		if err := decodeStrict(rec.Context, &c); err != nil {
			return nil, fmt.Errorf("%w: %s context: %v", ErrMalformedSession, rec.State, err)
		}
		if c.ProductID == "" {
			return nil, fmt.Errorf("%w: %s without product", ErrMalformedSession, rec.State)
		}
		s.State = CollectingFeedback{ProductID: c.ProductID, ProductName: c.ProductName}

	default:
		return nil, fmt.Errorf("%w: unknown state %q", ErrMalformedSession, rec.State)
	}

	return s, nil
}

func hasContext(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) && !bytes.Equal(trimmed, []byte("{}"))
}

func decodeStrict(raw json.RawMessage, v any) error {
	if !hasContext(raw) {
		return fmt.Errorf("missing context")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func encodeEntry(e Entry) ([]byte, error) {
	e.Timestamp = e.Timestamp.UTC()
	return json.Marshal(e)
}

func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}
