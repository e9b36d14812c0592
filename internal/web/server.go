// Package web serves the assistant's operator pages: a status dashboard
// and a browser for the offline knowledge base. Pages are server-rendered
// templates; htmx requests get only the content block.
package web

import (
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/Gdockery/synerex-platform-sub002/internal/connwatch"
	"github.com/Gdockery/synerex-platform-sub002/internal/knowledge"
	"github.com/Gdockery/synerex-platform-sub002/internal/pagecontext"
)

// Config wires a WebServer. Every provider is optional; a missing one
// leaves its panel empty.
type Config struct {
	BrandName    string
	Knowledge    *knowledge.Base
	StatusFunc   func() connwatch.ServiceStatus
	AnalysisFunc func() (pagecontext.Analysis, bool)
	ProjectFunc  func() pagecontext.Project
	Logger       *slog.Logger
}

// WebServer renders the operator pages.
type WebServer struct {
	brandName    string
	kb           *knowledge.Base
	statusFunc   func() connwatch.ServiceStatus
	analysisFunc func() (pagecontext.Analysis, bool)
	projectFunc  func() pagecontext.Project
	templates    map[string]*template.Template
	logger       *slog.Logger
	now          func() time.Time
}

// NewWebServer parses the embedded templates and returns a server.
// It panics on a template syntax error.
func NewWebServer(cfg Config) *WebServer {
	if cfg.BrandName == "" {
		cfg.BrandName = "EM&V Assistant"
	}
	if cfg.Knowledge == nil {
		cfg.Knowledge = knowledge.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebServer{
		brandName:    cfg.BrandName,
		kb:           cfg.Knowledge,
		statusFunc:   cfg.StatusFunc,
		analysisFunc: cfg.AnalysisFunc,
		projectFunc:  cfg.ProjectFunc,
		templates:    loadTemplates(),
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// RegisterRoutes adds the operator pages to mux.
func (s *WebServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /kb", s.handleKnowledge)
}

// PageData is the shared template context.
type PageData struct {
	BrandName string
	ActiveNav string
}
