// Package knowledge is the assistant's offline reference: a fixed tree of
// EM&V topics (category → subcategory → facts) searched by substring when
// the remote AI service cannot answer.
//
// A Base is built once and never modified. Search results come back in
// declaration order with no ranking.
package knowledge

import (
	"strings"
)

// FAQ is a question and its answer.
type FAQ struct {
	Question string `yaml:"question" json:"question"`
	Answer   string `yaml:"answer" json:"answer"`
}

// Item is one element of a list: plain text or an FAQ.
type Item struct {
	Text string
	FAQ  *FAQ
}

// Pair is one line of an ordered mapping.
type Pair struct {
	Key   string
	Value string
}

// Data is the content of a subcategory. Exactly one of Text, List or
// Fields is set.
type Data struct {
	Text   string
	List   []Item
	Fields []Pair
}

// Subcategory is a named leaf group inside a category.
type Subcategory struct {
	Name  string
	Title string
	Data  Data
}

// Category is a top-level topic. Summary is the line shown in the default
// menu.
type Category struct {
	Name          string        `yaml:"name"`
	Title         string        `yaml:"title"`
	Summary       string        `yaml:"summary"`
	Subcategories []Subcategory `yaml:"subcategories"`
}

// Entry is one search hit.
type Entry struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Title       string `json:"title"`
	Data        Data   `json:"data"`
}

// Base is an immutable knowledge tree. It is safe for concurrent use.
type Base struct {
	categories []Category
}

// New builds a Base from categories. Categories with the same name are
// merged, later subcategories appended after earlier ones; the input is
// copied so later changes by the caller are not visible.
func New(categories ...Category) *Base {
	b := &Base{}
	index := make(map[string]int)
	for _, c := range categories {
		c = c.clone()
		if i, ok := index[c.Name]; ok {
			b.categories[i].Subcategories = append(b.categories[i].Subcategories, c.Subcategories...)
			continue
		}
		index[c.Name] = len(b.categories)
		b.categories = append(b.categories, c)
	}
	return b
}

// Categories returns a copy of the top-level categories.
func (b *Base) Categories() []Category {
	out := make([]Category, len(b.categories))
	for i, c := range b.categories {
		out[i] = c.clone()
	}
	return out
}

// Search returns every subcategory where the lowercased query occurs in
// any string it holds: its name, its category's name or title, and every
// leaf value. A blank query matches nothing.
func (b *Base) Search(query string) []Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	return b.collect(func(c *Category, s *Subcategory) bool {
		return c.contains(q) || s.contains(q)
	})
}

// SearchKeywords splits a free-text question into significant keywords
// and returns every subcategory matching any of them, in declaration
// order and without duplicates.
func (b *Base) SearchKeywords(question string) []Entry {
	keywords := Keywords(question)
	if len(keywords) == 0 {
		return nil
	}
	return b.collect(func(c *Category, s *Subcategory) bool {
		for _, k := range keywords {
			if c.contains(k) || s.contains(k) {
				return true
			}
		}
		return false
	})
}

func (b *Base) collect(match func(*Category, *Subcategory) bool) []Entry {
	var out []Entry
	for i := range b.categories {
		c := &b.categories[i]
		for j := range c.Subcategories {
			s := &c.Subcategories[j]
			if match(c, s) {
				out = append(out, Entry{
					Category:    c.Name,
					Subcategory: s.Name,
					Title:       c.displayTitle() + " - " + s.displayTitle(),
					Data:        s.Data.clone(),
				})
			}
		}
	}
	return out
}

// Filter keeps the entries of one category. An empty or "all" category
// keeps everything.
func Filter(entries []Entry, category string) []Entry {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" || category == "all" {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if strings.ToLower(e.Category) == category {
			out = append(out, e)
		}
	}
	return out
}

// stopWords are dropped from questions before keyword search.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "your": true, "can": true, "how": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"why": true, "with": true, "this": true, "that": true, "these": true,
	"those": true, "from": true, "into": true, "about": true, "does": true,
	"did": true, "have": true, "has": true, "was": true, "were": true,
	"will": true, "would": true, "should": true, "could": true, "there": true,
	"their": true, "them": true, "then": true, "than": true, "our": true,
	"any": true, "all": true, "tell": true, "please": true, "need": true,
	"know": true, "explain": true, "show": true, "give": true, "get": true,
	"use": true, "using": true, "its": true, "it's": true, "i'm": true,
	"is": true, "my": true, "me": true, "do": true,
}

// Keywords lowercases s, splits it into words and drops stop words and
// words shorter than three characters. Duplicates are removed; order is
// kept.
func Keywords(s string) []string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'' || r == '-')
	})
	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		w = strings.Trim(w, "'-")
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func (c *Category) displayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return humanize(c.Name)
}

func (s *Subcategory) displayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return humanize(s.Name)
}

func (c *Category) contains(q string) bool {
	return containsFold(c.Name, q) || containsFold(c.Title, q)
}

func (s *Subcategory) contains(q string) bool {
	return containsFold(s.Name, q) || containsFold(s.Title, q) || s.Data.contains(q)
}

func (d *Data) contains(q string) bool {
	if containsFold(d.Text, q) {
		return true
	}
	for _, it := range d.List {
		if containsFold(it.Text, q) {
			return true
		}
		if it.FAQ != nil && (containsFold(it.FAQ.Question, q) || containsFold(it.FAQ.Answer, q)) {
			return true
		}
	}
	for _, p := range d.Fields {
		if containsFold(p.Key, q) || containsFold(p.Value, q) {
			return true
		}
	}
	return false
}

// containsFold reports whether s contains q; q must already be lowercase.
func containsFold(s, q string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), q)
}

// humanize turns "ashrae_guideline_14" into "Ashrae Guideline 14".
func humanize(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func (c Category) clone() Category {
	subs := make([]Subcategory, len(c.Subcategories))
	for i, s := range c.Subcategories {
		s.Data = s.Data.clone()
		subs[i] = s
	}
	c.Subcategories = subs
	return c
}

func (d Data) clone() Data {
	out := Data{Text: d.Text}
	if d.List != nil {
		out.List = make([]Item, len(d.List))
		for i, it := range d.List {
			if it.FAQ != nil {
				faq := *it.FAQ
				it.FAQ = &faq
			}
			out.List[i] = it
		}
	}
	if d.Fields != nil {
		out.Fields = append([]Pair(nil), d.Fields...)
	}
	return out
}
