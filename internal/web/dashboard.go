package web

import (
	"net/http"
	"sort"
	"time"

	"github.com/Gdockery/synerex-platform-sub002/internal/buildinfo"
	"github.com/Gdockery/synerex-platform-sub002/internal/connwatch"
	"github.com/Gdockery/synerex-platform-sub002/internal/location"
)

// DashboardData is the template context for the overview page.
type DashboardData struct {
	PageData
	AI         *connwatch.ServiceStatus
	LastCheck  string
	Project    []fieldRow
	Location   location.Data
	Results    []string
	Metrics    []fieldRow
	CapturedAt string
	Categories []categoryRow
	Version    string
	Uptime     time.Duration
}

type fieldRow struct {
	Key   string
	Value string
}

type categoryRow struct {
	Name    string
	Title   string
	Summary string
	Count   int
}

func (s *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := DashboardData{
		PageData: PageData{BrandName: s.brandName, ActiveNav: "overview"},
		Version:  buildinfo.Version,
		Uptime:   buildinfo.Uptime(),
	}

	if s.statusFunc != nil {
		st := s.statusFunc()
		data.AI = &st
		if !st.LastCheck.IsZero() {
			data.LastCheck = timeAgo(s.now().Sub(st.LastCheck))
		}
	}

	if s.projectFunc != nil {
		project := s.projectFunc()
		data.Project = sortedRows(project)
		data.Location = location.Resolve(project)
	}

	if s.analysisFunc != nil {
		if snap, ok := s.analysisFunc(); ok {
			data.Results = snap.Results
			data.Metrics = sortedRows(snap.Metrics)
			data.CapturedAt = snap.CapturedAt.Format(time.DateTime)
		}
	}

	for _, c := range s.kb.Categories() {
		title := c.Title
		if title == "" {
			title = c.Name
		}
		data.Categories = append(data.Categories, categoryRow{
			Name:    c.Name,
			Title:   title,
			Summary: c.Summary,
			Count:   len(c.Subcategories),
		})
	}

	s.render(w, r, "dashboard.html", data)
}

func sortedRows[M ~map[string]string](m M) []fieldRow {
	rows := make([]fieldRow, 0, len(m))
	for k, v := range m {
		rows = append(rows, fieldRow{Key: k, Value: v})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}
