// ABOUTME: Tests for session encoding and strict decoding
// ABOUTME: Every state/context mismatch must surface as ErrMalformedSession

package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-concierge/internal/store"
)

func TestEncode_WireShape(t *testing.T) {
	data, err := Encode(&Session{
		State:     NewShowingResults([]store.Product{{ID: "rec1", Name: "Red Shoes", Price: 20}}),
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "showing_results", raw["state"])

	ctx, ok := raw["context"].(map[string]any)
	require.True(t, ok)
	products, ok := ctx["products"].([]any)
	require.True(t, ok)
	assert.Len(t, products, 1)
}

func TestEncode_StatelessVariantsOmitContext(t *testing.T) {
	for _, st := range []State{Idle{}, AwaitingSearchInput{}, BrowsingFAQ{}} {
		data, err := Encode(&Session{State: st})
		require.NoError(t, err)
		assert.NotContains(t, string(data), "context")
	}
}

func TestEncode_NilStateIsIdle(t *testing.T) {
	data, err := Encode(&Session{})
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Idle{}, got.State)
}

func TestDecode_RoundTripFeedback(t *testing.T) {
	data, err := Encode(&Session{State: CollectingFeedback{ProductID: "rec1", ProductName: "Red Shoes"}})
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, CollectingFeedback{ProductID: "rec1", ProductName: "Red Shoes"}, got.State)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{bad`},
		{"unknown state", `{"state":"dancing"}`},
		{"missing state", `{"context":{}}`},
		{"idle with context", `{"state":"idle","context":{"products":[{"id":"a"}]}}`},
		{"faq with context", `{"state":"browsing_faq","context":{"product_id":"a"}}`},
		{"results without context", `{"state":"showing_results"}`},
		{"results with empty list", `{"state":"showing_results","context":{"products":[]}}`},
		{"results with feedback context", `{"state":"showing_results","context":{"product_id":"a"}}`},
		{"feedback with results context", `{"state":"collecting_feedback","context":{"products":[{"id":"a"}]}}`},
		{"feedback without product", `{"state":"collecting_feedback","context":{"product_name":"x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, ErrMalformedSession)
		})
	}
}

func TestDecode_AcceptsEmptyContextForStatelessVariants(t *testing.T) {
	got, err := Decode([]byte(`{"state":"awaiting_search_input","context":{}}`))
	require.NoError(t, err)
	assert.Equal(t, AwaitingSearchInput{}, got.State)
}

func TestShowingResults_FindAndCopy(t *testing.T) {
	src := []store.Product{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}, {ID: "a", Name: "A2"}}
	st := NewShowingResults(src)

	p, ok := st.Find("a")
	require.True(t, ok)
	assert.Equal(t, "A", p.Name, "first occurrence wins")

	_, ok = st.Find("zzz")
	assert.False(t, ok)

	// Mutating the caller's slice must not leak into the state
	src[1].Name = "changed"
	p, _ = st.Find("b")
	assert.Equal(t, "B", p.Name)
	assert.Len(t, st.Products(), 3)
}
