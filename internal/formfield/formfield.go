// Package formfield reads named form fields out of a page. Callers
// describe each logical field as a list of selector aliases (a Table);
// a Reader answers selector lookups against either a parsed HTML snapshot
// (Document) or a live headless-browser page (RodPage).
package formfield

import (
	"context"
	"strings"
)

// Element is the subset of a DOM element the extractors care about.
type Element struct {
	Tag   string            `json:"tag"`
	ID    string            `json:"id,omitempty"`
	Name  string            `json:"name,omitempty"`
	Value string            `json:"value,omitempty"`
	Text  string            `json:"text,omitempty"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// FieldValue returns the form value of input-like elements and the
// trimmed text of everything else.
func (e Element) FieldValue() string {
	switch e.Tag {
	case "input", "select", "textarea":
		return strings.TrimSpace(e.Value)
	}
	if v := strings.TrimSpace(e.Value); v != "" {
		return v
	}
	return strings.TrimSpace(e.Text)
}

// Reader looks up elements by selector in document order. An invalid
// selector is an error; no match is an empty result.
type Reader interface {
	Lookup(ctx context.Context, selector string) ([]Element, error)
}
