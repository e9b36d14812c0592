// Package api serves the EM&V assistant over HTTP and WebSocket for the
// chat widget embedded in the analysis page.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Gdockery/synerex-platform-sub002/internal/assistant"
	"github.com/Gdockery/synerex-platform-sub002/internal/buildinfo"
	"github.com/Gdockery/synerex-platform-sub002/internal/connwatch"
	"github.com/Gdockery/synerex-platform-sub002/internal/events"
	"github.com/Gdockery/synerex-platform-sub002/internal/knowledge"
)

// maxBodyBytes bounds request bodies. Questions plus page context are
// small.
const maxBodyBytes = 1 << 20

// Answer formats accepted by the ask endpoints.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// StatusSource reports the remote AI backend's availability.
type StatusSource interface {
	Status() connwatch.ServiceStatus
	Model() string
}

// Config wires a Server. Assistant is required.
type Config struct {
	// Addr is the host:port to listen on.
	Addr       string
	Assistant  *assistant.Assistant
	Knowledge  *knowledge.Base
	AI         StatusSource
	Analysis   assistant.AnalysisSource
	Bus        *events.Bus
	Sessions   SessionConfig
	Logger     *slog.Logger
	ExtraRoute func(mux *http.ServeMux)
}

// Server is the HTTP API server.
type Server struct {
	addr      string
	assistant *assistant.Assistant
	kb        *knowledge.Base
	ai        StatusSource
	analysis  assistant.AnalysisSource
	bus       *events.Bus
	sessions  *sessionTable
	validate  *validator.Validate
	logger    *slog.Logger
	extra     func(mux *http.ServeMux)
	server    *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	if cfg.Assistant == nil {
		panic("api: Config.Assistant must not be nil")
	}
	if cfg.Knowledge == nil {
		cfg.Knowledge = knowledge.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		addr:      cfg.Addr,
		assistant: cfg.Assistant,
		kb:        cfg.Knowledge,
		ai:        cfg.AI,
		analysis:  cfg.Analysis,
		bus:       cfg.Bus,
		sessions:  newSessionTable(cfg.Assistant, cfg.Sessions),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    cfg.Logger,
		extra:     cfg.ExtraRoute,
	}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /v1/status", s.handleStatus)

	mux.HandleFunc("POST /v1/ask", s.handleAsk)
	mux.HandleFunc("GET /v1/ws", s.handleWebSocket)

	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("DELETE /v1/history", s.handleHistoryClear)
	mux.HandleFunc("GET /v1/preferences", s.handlePreferences)
	mux.HandleFunc("PATCH /v1/preferences", s.handlePreferencesUpdate)

	// Path kept compatible with the widget's knowledge search call.
	mux.HandleFunc("POST /api/ai/knowledge/search", s.handleKnowledgeSearch)

	if s.extra != nil {
		s.extra(mux)
	}
	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until ctx is cancelled
// or the listener fails. Cancelling ctx shuts the server down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second, // a chat answer may take the full 60s backend deadline
	}

	s.logger.Info("starting API server", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown API server: %w", err)
		}
		return nil
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessions.close()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.errorResponse(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "healthy"}
	if s.ai != nil {
		resp["ai"] = s.ai.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Get(), s.logger)
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	AI        *connwatch.ServiceStatus `json:"ai,omitempty"`
	Model     string                   `json:"model,omitempty"`
	Analysis  any                      `json:"analysis"`
	Sessions  int                      `json:"sessions"`
	// Listeners counts open event subscriptions, one per connected
	// WebSocket widget.
	Listeners int                      `json:"listeners"`
	Uptime    string                   `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Sessions:  s.sessions.count(),
		Listeners: s.bus.SubscriberCount(),
		Uptime:    buildinfo.Uptime().String(),
	}
	if s.ai != nil {
		st := s.ai.Status()
		resp.AI = &st
		resp.Model = s.ai.Model()
	}
	if s.analysis != nil {
		if snap, ok := s.analysis.Latest(); ok {
			resp.Analysis = snap
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

// AskRequest is the body of POST /v1/ask and of WebSocket ask frames.
type AskRequest struct {
	Question  string         `json:"question" validate:"required,max=4000"`
	Context   map[string]any `json:"context,omitempty"`
	SessionID string         `json:"session_id,omitempty" validate:"omitempty,max=128"`
	Format    string         `json:"format,omitempty" validate:"omitempty,oneof=markdown html"`
}

// AskResponse is an answer delivered to the widget.
type AskResponse struct {
	Answer    string           `json:"answer"`
	Format    string           `json:"format"`
	Source    assistant.Source `json:"source"`
	Model     string           `json:"model,omitempty"`
	SessionID string           `json:"session_id"`
	Seq       uint64           `json:"seq"`
	Stale     bool             `json:"stale"`
	RequestID string           `json:"request_id"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !s.decode(w, r, &req) {
		return
	}

	st := s.sessions.get(req.SessionID)
	if !s.sessions.allow(st, req.SessionID, r.RemoteAddr) {
		w.Header().Set("Retry-After", "1")
		s.errorResponse(w, http.StatusTooManyRequests, "too many questions, slow down")
		return
	}

	reply := st.session.Ask(r.Context(), req.Question, req.Context)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.render(reply, req.Format), s.logger)
}

// render converts a reply into the requested format. A rendering failure
// falls back to the markdown text so the widget always gets an answer.
func (s *Server) render(reply assistant.Reply, format string) AskResponse {
	resp := AskResponse{
		Answer:    reply.Text,
		Format:    FormatMarkdown,
		Source:    reply.Source,
		Model:     reply.Model,
		SessionID: reply.SessionID,
		Seq:       reply.Seq,
		Stale:     reply.Stale,
		RequestID: reply.RequestID,
	}
	if format == FormatHTML {
		html, err := knowledge.RenderHTML(reply.Text)
		if err != nil {
			s.logger.Warn("render answer as HTML failed", "request_id", reply.RequestID, "error", err)
			return resp
		}
		resp.Answer = html
		resp.Format = FormatHTML
	}
	return resp
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.assistant.History()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"history": history,
		"count":   len(history),
	}, s.logger)
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if err := s.assistant.ClearHistory(); err != nil {
		s.logger.Error("clear history failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "clear history failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.assistant.UserPreferences(), s.logger)
}

func (s *Server) handlePreferencesUpdate(w http.ResponseWriter, r *http.Request) {
	var update map[string]any
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if update == nil {
		s.errorResponse(w, http.StatusBadRequest, "preferences must be a JSON object")
		return
	}

	merged, err := s.assistant.UpdateUserPreferences(update)
	if err != nil {
		s.logger.Error("update preferences failed", "error", err)
		s.errorResponse(w, http.StatusServiceUnavailable, "preferences could not be saved")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, merged, s.logger)
}

// SearchRequest is the body of the knowledge search endpoint. Type
// restricts results to one category; empty or "all" searches everything.
type SearchRequest struct {
	Query string `json:"query" validate:"required,max=500"`
	Type  string `json:"type,omitempty"`
}

// SearchResult is one matching knowledge-base section.
type SearchResult struct {
	Category    string         `json:"category"`
	Subcategory string         `json:"subcategory"`
	Title       string         `json:"title"`
	Data        knowledge.Data `json:"data"`
	Content     string         `json:"content"`
}

func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !s.decode(w, r, &req) {
		return
	}

	entries := knowledge.Filter(s.kb.Search(req.Query), req.Type)
	results := make([]SearchResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, SearchResult{
			Category:    e.Category,
			Subcategory: e.Subcategory,
			Title:       e.Title,
			Data:        e.Data,
			Content:     e.Data.Format(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"results":       results,
		"total_results": len(results),
	}, s.logger)
}
