package web

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/Gdockery/synerex-platform-sub002/internal/knowledge"
)

// KnowledgeData is the template context for the knowledge browser.
type KnowledgeData struct {
	PageData
	Query      string
	Category   string
	Categories []categoryRow
	Entries    []entryRow
}

// entryRow is one rendered knowledge section.
type entryRow struct {
	Title    string
	Category string
	Body     template.HTML
}

// handleKnowledge lists the sections matching ?q=, optionally limited to
// ?category=. Without a query the whole selected category is listed.
func (s *WebServer) handleKnowledge(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	category := r.URL.Query().Get("category")

	data := KnowledgeData{
		PageData: PageData{BrandName: s.brandName, ActiveNav: "knowledge"},
		Query:    query,
		Category: category,
	}
	for _, c := range s.kb.Categories() {
		data.Categories = append(data.Categories, categoryRow{Name: c.Name, Title: c.Title})
	}

	var entries []knowledge.Entry
	switch {
	case query != "":
		entries = knowledge.Filter(s.kb.Search(query), category)
	case category != "" && category != "all":
		entries = s.kb.Search(category)
		entries = knowledge.Filter(entries, category)
	}

	for _, e := range entries {
		body, err := knowledge.RenderHTML(e.Data.Format())
		if err != nil {
			s.logger.Warn("render knowledge entry failed", "title", e.Title, "error", err)
			body = template.HTMLEscapeString(e.Data.Format())
		}
		data.Entries = append(data.Entries, entryRow{
			Title:    e.Title,
			Category: e.Category,
			// RenderHTML output comes from the built-in base or the
			// operator's own overlay file.
			Body: template.HTML(body),
		})
	}

	s.render(w, r, "knowledge.html", data)
}
