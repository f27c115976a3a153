// ABOUTME: Pure shaping of catalog rows into reply descriptors
// ABOUTME: Preserves the ordering the record store applied; never re-sorts

package reply

import (
	"fmt"
	"strconv"

	"github.com/2389/coven-concierge/internal/store"
)

// Menu option ids double as command keywords so a button press dispatches
// the same way as typing the word.
const (
	OptionProducts = "products"
	OptionFAQ      = "faq"
	OptionSupport  = "support"

	OptionYes = "yes"
	OptionNo  = "no"
)

// RootMenu builds the top-level menu with the given prompt.
func RootMenu(prompt string) ButtonSet {
	return ButtonSet{
		Content: prompt,
		Options: []Option{
			{ID: OptionProducts, Label: "Browse Products"},
			{ID: OptionFAQ, Label: "FAQs"},
			{ID: OptionSupport, Label: "Contact Support"},
		},
	}
}

// FormatPrice renders a price without trailing zeros, e.g. 20 -> "$20".
func FormatPrice(price float64) string {
	return "$" + strconv.FormatFloat(price, 'f', -1, 64)
}

// ProductResults lists search results in one "Search Results" section.
func ProductResults(products []store.Product) SelectableList {
	rows := make([]Row, 0, len(products))
	for _, p := range products {
		rows = append(rows, Row{
			ID:     p.ID,
			Label:  fmt.Sprintf("%s - %s", p.Name, FormatPrice(p.Price)),
			Detail: p.Description,
		})
	}
	return SelectableList{
		Content:  "Here are the products matching your search:",
		Sections: []Section{{Title: "Search Results", Rows: rows}},
	}
}

// ProductDetail describes one product and asks whether the user wants more.
func ProductDetail(p store.Product) ButtonSet {
	return ButtonSet{
		Content: fmt.Sprintf("Product: %s\nPrice: %s\nDescription: %s\n\nWould you like to know more about this product?",
			p.Name, FormatPrice(p.Price), p.Description),
		Options: []Option{
			{ID: OptionYes, Label: "Yes, tell me more"},
			{ID: OptionNo, Label: "No, thanks"},
		},
	}
}

// FAQList lists questions so the user can pick one.
func FAQList(faqs []store.FAQ) SelectableList {
	rows := make([]Row, 0, len(faqs))
	for _, f := range faqs {
		rows = append(rows, Row{ID: f.ID, Label: f.Question})
	}
	return SelectableList{
		Content:  "Select a question to view the answer:",
		Sections: []Section{{Title: "Frequently Asked Questions", Rows: rows}},
	}
}

// FAQAnswer renders a question with its answer.
func FAQAnswer(f store.FAQ) Text {
	return Text{Content: fmt.Sprintf("Q: %s\n\nA: %s", f.Question, f.Answer)}
}
