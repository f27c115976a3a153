// ABOUTME: Reply descriptors produced by the conversation engine
// ABOUTME: Text, button-set and selectable-list shapes with a JSON type discriminator

package reply

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the three reply shapes on the wire.
type Kind string

const (
	KindText    Kind = "text"
	KindButtons Kind = "buttons"
	KindList    Kind = "list"
)

// Reply is the channel-agnostic output of one dispatch.
// Only Text, ButtonSet and SelectableList implement it.
type Reply interface {
	Kind() Kind
	Body() string
	sealed()
}

// Text is a plain text reply.
type Text struct {
	Content string
}

// Option is a single button in a ButtonSet.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"title"`
}

// ButtonSet is a prompt with an ordered set of buttons.
type ButtonSet struct {
	Content string
	Options []Option
}

// Row is one selectable entry of a list section.
type Row struct {
	ID     string `json:"id"`
	Label  string `json:"title"`
	Detail string `json:"description,omitempty"`
}

// Section groups rows under a title.
type Section struct {
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// SelectableList is a prompt with one or more sections of selectable rows.
type SelectableList struct {
	Content  string
	Sections []Section
}

func (Text) Kind() Kind           { return KindText }
func (ButtonSet) Kind() Kind      { return KindButtons }
func (SelectableList) Kind() Kind { return KindList }

func (t Text) Body() string           { return t.Content }
func (b ButtonSet) Body() string      { return b.Content }
func (l SelectableList) Body() string { return l.Content }

func (Text) sealed()           {}
func (ButtonSet) sealed()      {}
func (SelectableList) sealed() {}

// OptionIDs returns the ids a user may answer with, in display order.
// Text replies have none.
func OptionIDs(r Reply) []string {
	var ids []string
	switch v := r.(type) {
	case ButtonSet:
		for _, o := range v.Options {
			ids = append(ids, o.ID)
		}
	case SelectableList:
		for _, s := range v.Sections {
			for _, row := range s.Rows {
				ids = append(ids, row.ID)
			}
		}
	}
	return ids
}

// envelope is the JSON wire form shared by all shapes.
type envelope struct {
	Type     Kind      `json:"type"`
	Content  string    `json:"content"`
	Buttons  []Option  `json:"buttons,omitempty"`
	Sections []Section `json:"sections,omitempty"`
}

// Marshal encodes a reply with its type discriminator.
func Marshal(r Reply) ([]byte, error) {
	env := envelope{Type: r.Kind(), Content: r.Body()}
	switch v := r.(type) {
	case ButtonSet:
		env.Buttons = v.Options
	case SelectableList:
		env.Sections = v.Sections
	}
	return json.Marshal(env)
}

// Unmarshal decodes a reply previously encoded with Marshal.
func Unmarshal(data []byte) (Reply, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding reply: %w", err)
	}
	switch env.Type {
	case KindText:
		return Text{Content: env.Content}, nil
	case KindButtons:
		return ButtonSet{Content: env.Content, Options: env.Buttons}, nil
	case KindList:
		return SelectableList{Content: env.Content, Sections: env.Sections}, nil
	default:
		return nil, fmt.Errorf("unknown reply type %q", env.Type)
	}
}

// JSON wraps a reply so it can be embedded in other JSON documents.
type JSON struct {
	Reply
}

func (j JSON) MarshalJSON() ([]byte, error) {
	return Marshal(j.Reply)
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	r, err := Unmarshal(data)
	if err != nil {
		return err
	}
	j.Reply = r
	return nil
}
