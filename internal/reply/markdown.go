// ABOUTME: Markdown and HTML rendering of replies for text-only channels
// ABOUTME: Options become a numbered list so users can answer with a number

package reply

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
)

// Markdown renders a reply for channels without native buttons or lists.
// Options are numbered in the same order as OptionIDs.
func Markdown(r Reply) string {
	var b strings.Builder
	b.WriteString(escapeLines(r.Body()))

	n := 0
	switch v := r.(type) {
	case ButtonSet:
		b.WriteString("\n\n")
		for _, o := range v.Options {
			n++
			fmt.Fprintf(&b, "%d. %s\n", n, o.Label)
		}
	case SelectableList:
		for _, s := range v.Sections {
			b.WriteString("\n\n**" + s.Title + "**\n\n")
			for _, row := range s.Rows {
				n++
				fmt.Fprintf(&b, "%d. %s", n, row.Label)
				if row.Detail != "" {
					fmt.Fprintf(&b, " (%s)", row.Detail)
				}
				b.WriteString("\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// HTML renders the Markdown form of a reply to HTML.
func HTML(r Reply) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(r)), &buf); err != nil {
		return "", fmt.Errorf("rendering reply: %w", err)
	}
	return buf.String(), nil
}

// escapeLines keeps single newlines in the body as hard line breaks.
func escapeLines(s string) string {
	lines := strings.Split(s, "\n")
	for i := 0; i < len(lines)-1; i++ {
		if lines[i] != "" && lines[i+1] != "" {
			lines[i] += "  "
		}
	}
	return strings.Join(lines, "\n")
}
