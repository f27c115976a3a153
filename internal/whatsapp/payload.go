// ABOUTME: WhatsApp Cloud API payloads for inbound webhooks and outbound messages
// ABOUTME: Translates reply descriptors into text, button and list messages

package whatsapp

import (
	"github.com/2389/coven-concierge/internal/reply"
)

// Platform limits for interactive messages.
const (
	maxButtons        = 3
	maxButtonTitle    = 20
	maxRowTitle       = 24
	maxRowDescription = 72
	maxSectionTitle   = 24
	maxListRows       = 10

	listButtonLabel = "Select an option"
)

// ---- outbound ----

// Message is the body of POST /{phone-number-id}/messages.
type Message struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *TextBody    `json:"text,omitempty"`
	Interactive      *Interactive `json:"interactive,omitempty"`
}

type TextBody struct {
	Body string `json:"body"`
}

type Interactive struct {
	Type   string   `json:"type"` // "button" or "list"
	Body   TextBody `json:"body"`
	Action Action   `json:"action"`
}

type Action struct {
	Button   string        `json:"button,omitempty"`
	Buttons  []Button      `json:"buttons,omitempty"`
	Sections []ListSection `json:"sections,omitempty"`
}

type Button struct {
	Type  string      `json:"type"`
	Reply ButtonReply `json:"reply"`
}

type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ListSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []ListRow `json:"rows"`
}

type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Build converts a reply into a Cloud API message for recipient to.
// Labels longer than the platform allows are truncated and options past
// the platform maximum are dropped. A list without rows goes out as text.
func Build(to string, r reply.Reply) Message {
	msg := Message{MessagingProduct: "whatsapp", To: to}

	switch v := r.(type) {
	case reply.ButtonSet:
		buttons := make([]Button, 0, len(v.Options))
		for i, o := range v.Options {
			if i == maxButtons {
				break
			}
			buttons = append(buttons, Button{
				Type:  "reply",
				Reply: ButtonReply{ID: o.ID, Title: truncate(o.Label, maxButtonTitle)},
			})
		}
		msg.Type = "interactive"
		msg.Interactive = &Interactive{
			Type:   "button",
			Body:   TextBody{Body: v.Content},
			Action: Action{Buttons: buttons},
		}

	case reply.SelectableList:
		remaining := maxListRows
		sections := make([]ListSection, 0, len(v.Sections))
		for _, s := range v.Sections {
			if remaining == 0 {
				break
			}
			rows := make([]ListRow, 0, len(s.Rows))
			for _, row := range s.Rows {
				if remaining == 0 {
					break
				}
				rows = append(rows, ListRow{
					ID:          row.ID,
					Title:       truncate(row.Label, maxRowTitle),
					Description: truncate(row.Detail, maxRowDescription),
				})
				remaining--
			}
			if len(rows) > 0 {
				sections = append(sections, ListSection{Title: truncate(s.Title, maxSectionTitle), Rows: rows})
			}
		}
		// the API rejects rowless sections and lists
		if len(sections) == 0 {
			msg.Type = "text"
			msg.Text = &TextBody{Body: v.Content}
			break
		}
		msg.Type = "interactive"
		msg.Interactive = &Interactive{
			Type:   "list",
			Body:   TextBody{Body: v.Content},
			Action: Action{Button: listButtonLabel, Sections: sections},
		}

	default:
		msg.Type = "text"
		msg.Text = &TextBody{Body: r.Body()}
	}

	return msg
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// ---- inbound ----

// WebhookPayload is the body Meta posts to the webhook.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []InboundMessage `json:"messages"`
}

type InboundMessage struct {
	ID          string              `json:"id"`
	From        string              `json:"from"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	TextBody    *TextBody           `json:"text,omitempty"`
	Interactive *InboundInteractive `json:"interactive,omitempty"`
}

type InboundInteractive struct {
	Type        string       `json:"type"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty"`
	ListReply   *ButtonReply `json:"list_reply,omitempty"`
}

// BusinessAccountObject is the only webhook object the gateway handles.
const BusinessAccountObject = "whatsapp_business_account"

// Messages flattens every message in the payload, in delivery order.
func (p *WebhookPayload) Messages() []InboundMessage {
	var out []InboundMessage
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			out = append(out, c.Value.Messages...)
		}
	}
	return out
}

// Text returns the text to dispatch for a message: the typed body, or the
// id of the pressed button or list row. ok is false for message types the
// concierge does not understand (media, location, reactions).
func (m InboundMessage) Text() (text string, ok bool) {
	if m.TextBody != nil {
		return m.TextBody.Body, true
	}
	if m.Interactive != nil {
		switch {
		case m.Interactive.ButtonReply != nil:
			return m.Interactive.ButtonReply.ID, true
		case m.Interactive.ListReply != nil:
			return m.Interactive.ListReply.ID, true
		}
	}
	return "", false
}
