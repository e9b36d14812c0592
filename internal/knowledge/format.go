package knowledge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Format renders data as chat text: list items as "• item" lines,
// fields as "**key**: value" lines and FAQs as "**Q: …**\nA: …" blocks.
func (d Data) Format() string {
	var b strings.Builder
	if d.Text != "" {
		b.WriteString(d.Text)
	}
	for i, it := range d.List {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		if it.FAQ != nil {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "**Q: %s**\nA: %s", it.FAQ.Question, it.FAQ.Answer)
			continue
		}
		b.WriteString("• ")
		b.WriteString(it.Text)
	}
	for _, p := range d.Fields {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "**%s**: %s", p.Key, p.Value)
	}
	return b.String()
}

// FormatEntries renders search hits, each under a bold heading.
func FormatEntries(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("**%s**\n%s", e.Title, e.Data.Format()))
	}
	return strings.Join(parts, "\n\n")
}

// ComprehensiveAnswer formats every match for query, or the default menu
// when nothing matches. It never returns an empty string.
func (b *Base) ComprehensiveAnswer(query string) string {
	entries := b.Search(query)
	if len(entries) == 0 {
		return b.DefaultMenu()
	}
	return FormatEntries(entries)
}

// DefaultMenu lists the top-level categories.
func (b *Base) DefaultMenu() string {
	var sb strings.Builder
	sb.WriteString("I can help with these EM&V topics:\n")
	for _, c := range b.categories {
		sb.WriteString("\n• **")
		sb.WriteString(c.displayTitle())
		sb.WriteString("**")
		if c.Summary != "" {
			sb.WriteString(": ")
			sb.WriteString(c.Summary)
		}
	}
	sb.WriteString("\n\nAsk about any of these for details.")
	return sb.String()
}

// MarshalJSON encodes text as a string, a list as an array of strings and
// {question, answer} objects, and fields as an object in declaration
// order.
func (d Data) MarshalJSON() ([]byte, error) {
	switch {
	case d.List != nil:
		items := make([]any, len(d.List))
		for i, it := range d.List {
			if it.FAQ != nil {
				items[i] = it.FAQ
			} else {
				items[i] = it.Text
			}
		}
		return json.Marshal(items)

	case d.Fields != nil:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, p := range d.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(p.Key)
			if err != nil {
				return nil, err
			}
			v, err := json.Marshal(p.Value)
			if err != nil {
				return nil, err
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	default:
		return json.Marshal(d.Text)
	}
}
