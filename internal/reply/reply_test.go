// ABOUTME: Tests for reply shaping, JSON encoding and markdown rendering
// ABOUTME: Checks ordering preservation and the numbered option layout

package reply

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-concierge/internal/store"
)

func TestProductResults_PreservesOrderAndFormatsTitle(t *testing.T) {
	products := []store.Product{
		{ID: "rec2", Name: "Zebra Socks", Price: 4.5, Description: "striped"},
		{ID: "rec1", Name: "Red Shoes", Price: 20, Description: "shiny"},
	}

	list := ProductResults(products)

	require.Len(t, list.Sections, 1)
	assert.Equal(t, "Search Results", list.Sections[0].Title)
	rows := list.Sections[0].Rows
	require.Len(t, rows, 2)
	assert.Equal(t, "rec2", rows[0].ID)
	assert.Equal(t, "Zebra Socks - $4.5", rows[0].Label)
	assert.Equal(t, "Red Shoes - $20", rows[1].Label)
	assert.Equal(t, "shiny", rows[1].Detail)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "$20", FormatPrice(20))
	assert.Equal(t, "$19.99", FormatPrice(19.99))
	assert.Equal(t, "$0", FormatPrice(0))
}

func TestRootMenu_OptionsAreCommands(t *testing.T) {
	menu := RootMenu("hello")
	assert.Equal(t, []string{"products", "faq", "support"}, OptionIDs(menu))
}

func TestFAQAnswer(t *testing.T) {
	got := FAQAnswer(store.FAQ{Question: "Hours?", Answer: "9 to 5"})
	assert.Equal(t, "Q: Hours?\n\nA: 9 to 5", got.Content)
}

func TestMarshal_Discriminator(t *testing.T) {
	cases := []struct {
		reply Reply
		kind  string
	}{
		{Text{Content: "hi"}, "text"},
		{RootMenu("menu"), "buttons"},
		{FAQList([]store.FAQ{{ID: "f1", Question: "Q"}}), "list"},
	}
	for _, tc := range cases {
		data, err := Marshal(tc.reply)
		require.NoError(t, err)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.Equal(t, tc.kind, raw["type"])

		back, err := Unmarshal(data)
		require.NoError(t, err)
		assert.Equal(t, tc.reply, back)
	}
}

func TestUnmarshal_UnknownType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":"carousel","content":"x"}`))
	assert.Error(t, err)
}

func TestJSON_EmbedsInDocuments(t *testing.T) {
	doc := struct {
		Reply JSON `json:"reply"`
	}{Reply: JSON{Text{Content: "ok"}}}

	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"reply":{"type":"text","content":"ok"}}`, string(data))
}

func TestMarkdown_NumbersOptions(t *testing.T) {
	md := Markdown(ProductResults([]store.Product{
		{ID: "a", Name: "A", Price: 1},
		{ID: "b", Name: "B", Price: 2, Description: "bee"},
	}))

	assert.Contains(t, md, "**Search Results**")
	assert.Contains(t, md, "1. A - $1")
	assert.Contains(t, md, "2. B - $2 (bee)")
}

func TestHTML_RendersList(t *testing.T) {
	html, err := HTML(RootMenu("Pick one"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(html, "<ol>"), html)
	assert.Contains(t, html, "<li>Browse Products</li>")
}
