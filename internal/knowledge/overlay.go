package knowledge

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// overlayFile is the on-disk shape of extra knowledge:
//
//	categories:
//	  - name: rebates
//	    title: Utility Rebates
//	    summary: Incentive programs and paperwork
//	    subcategories:
//	      - name: overview
//	        text: Most utilities require pre-approval.
//	      - name: faq
//	        items:
//	          - Keep invoices for three years
//	          - question: Who files the application?
//	            answer: The facility owner or their contractor.
//	      - name: contacts
//	        fields:
//	          Phone: 555-0100
//	          Hours: 8-5 weekdays
type overlayFile struct {
	Categories []Category `yaml:"categories"`
}

// UnmarshalYAML decodes a subcategory with exactly one of text, items or
// fields.
func (s *Subcategory) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name   string    `yaml:"name"`
		Title  string    `yaml:"title"`
		Text   string    `yaml:"text"`
		Items  []Item    `yaml:"items"`
		Fields yaml.Node `yaml:"fields"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Name == "" {
		return fmt.Errorf("line %d: subcategory without a name", node.Line)
	}

	s.Name, s.Title = raw.Name, raw.Title
	s.Data = Data{Text: raw.Text, List: raw.Items}

	if raw.Fields.Kind != 0 {
		if raw.Fields.Kind != yaml.MappingNode {
			return fmt.Errorf("line %d: %s: fields must be a mapping", raw.Fields.Line, raw.Name)
		}
		for i := 0; i+1 < len(raw.Fields.Content); i += 2 {
			s.Data.Fields = append(s.Data.Fields, Pair{
				Key:   raw.Fields.Content[i].Value,
				Value: raw.Fields.Content[i+1].Value,
			})
		}
	}

	set := 0
	for _, ok := range []bool{s.Data.Text != "", len(s.Data.List) > 0, len(s.Data.Fields) > 0} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("line %d: %s: exactly one of text, items or fields is required", node.Line, raw.Name)
	}
	return nil
}

// UnmarshalYAML accepts a plain string or a {question, answer} mapping.
func (it *Item) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		it.Text = node.Value
		return nil
	case yaml.MappingNode:
		var faq FAQ
		if err := node.Decode(&faq); err != nil {
			return err
		}
		if faq.Question == "" || faq.Answer == "" {
			return fmt.Errorf("line %d: FAQ needs both question and answer", node.Line)
		}
		it.FAQ = &faq
		return nil
	default:
		return fmt.Errorf("line %d: list item must be a string or a question/answer mapping", node.Line)
	}
}

// ParseOverlay decodes overlay YAML into categories.
func ParseOverlay(data []byte) ([]Category, error) {
	var f overlayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse knowledge overlay: %w", err)
	}
	for _, c := range f.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("parse knowledge overlay: category without a name")
		}
	}
	return f.Categories, nil
}

// LoadOverlay reads categories from a YAML file.
func LoadOverlay(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge overlay: %w", err)
	}
	return ParseOverlay(data)
}

// Load returns the built-in knowledge plus the overlay at path. An empty
// path loads only the built-in content.
func Load(path string) (*Base, error) {
	cats := Seed()
	if path != "" {
		extra, err := LoadOverlay(path)
		if err != nil {
			return nil, err
		}
		cats = append(cats, extra...)
	}
	return New(cats...), nil
}
