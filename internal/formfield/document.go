package formfield

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a Reader over a parsed HTML snapshot. It is immutable and
// safe for concurrent use.
type Document struct {
	root *html.Node
}

// ParseDocument parses HTML from r.
func ParseDocument(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString parses an HTML string.
func ParseString(s string) (*Document, error) {
	return ParseDocument(strings.NewReader(s))
}

// LoadFile parses the HTML file at path.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()
	return ParseDocument(f)
}

// Lookup implements Reader. Matches are returned in document order.
func (d *Document) Lookup(ctx context.Context, sel string) ([]Element, error) {
	compiled, err := compileSelector(sel)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nodes := cascadia.QueryAll(d.root, compiled)
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, toElement(n, attrMap(n)))
	}
	return out, nil
}

// compileSelector parses a CSS selector group. Both readers reject the
// same selectors.
func compileSelector(sel string) (cascadia.Selector, error) {
	compiled, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("selector %q: %w", sel, err)
	}
	return compiled, nil
}

func attrMap(n *html.Node) map[string]string {
	m := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		m[a.Key] = a.Val
	}
	return m
}

func toElement(n *html.Node, attrs map[string]string) Element {
	el := Element{
		Tag:   n.Data,
		ID:    attrs["id"],
		Name:  attrs["name"],
		Text:  strings.Join(strings.Fields(textContent(n)), " "),
		Attrs: attrs,
	}
	switch n.DataAtom {
	case atom.Input:
		el.Value = attrs["value"]
	case atom.Textarea:
		el.Value = textContent(n)
	case atom.Select:
		el.Value = selectedOption(n)
	default:
		el.Value = attrs["value"]
	}
	return el
}

// textContent returns concatenated text of all children.
func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

// selectedOption returns the value of the option marked selected, or of
// the first option when none is, mirroring what a browser reports.
func selectedOption(sel *html.Node) string {
	var first, chosen *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Option {
			if first == nil {
				first = n
			}
			for _, a := range n.Attr {
				if a.Key == "selected" && chosen == nil {
					chosen = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(sel)

	opt := chosen
	if opt == nil {
		opt = first
	}
	if opt == nil {
		return ""
	}
	for _, a := range opt.Attr {
		if a.Key == "value" {
			return a.Val
		}
	}
	return strings.TrimSpace(textContent(opt))
}
