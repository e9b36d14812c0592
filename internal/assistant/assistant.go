// Package assistant answers EM&V questions. It tries the remote AI
// service first, then the offline knowledge base, then a canned answer,
// and always returns displayable text: every error and panic below this
// boundary is logged and turned into the next fallback tier.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/Gdockery/synerex-platform-sub002/internal/aiclient"
	"github.com/Gdockery/synerex-platform-sub002/internal/events"
	"github.com/Gdockery/synerex-platform-sub002/internal/fallback"
	"github.com/Gdockery/synerex-platform-sub002/internal/knowledge"
	"github.com/Gdockery/synerex-platform-sub002/internal/location"
	"github.com/Gdockery/synerex-platform-sub002/internal/memory"
	"github.com/Gdockery/synerex-platform-sub002/internal/pagecontext"
)

// MaxKnowledgeEntries caps how many knowledge-base sections one answer
// includes.
const MaxKnowledgeEntries = 6

// Payload keys added on top of the project and location fields.
const (
	KeyAnalysisResults = "analysis_results"
	KeyUserPreferences = "user_preferences"
)

// Source names the tier that produced an answer.
type Source string

const (
	SourceAI        Source = "ai"
	SourceKnowledge Source = "knowledge"
	SourceFallback  Source = "fallback"
)

// Remote is the remote AI tier.
type Remote interface {
	AskAI(ctx context.Context, question string, projectContext map[string]any) aiclient.Response
}

// LocationProvider is implemented by remotes that can supply the
// canonical project location.
type LocationProvider interface {
	ProjectLocation(ctx context.Context) (location.Data, bool)
}

// AnalysisSource supplies the most recent analysis results.
type AnalysisSource interface {
	Latest() (pagecontext.Analysis, bool)
}

// Config wires an Assistant. Every field is optional; a zero Config
// answers from the built-in knowledge base only.
type Config struct {
	Remote    Remote
	Extractor *pagecontext.Extractor
	Knowledge *knowledge.Base
	Memory    *memory.Store
	Analysis  AnalysisSource
	Bus       *events.Bus
	Logger    *slog.Logger
}

// Assistant is the answer orchestrator. It is safe for concurrent use.
type Assistant struct {
	remote    Remote
	extractor *pagecontext.Extractor
	kb        *knowledge.Base
	memory    *memory.Store
	analysis  AnalysisSource
	bus       *events.Bus
	logger    *slog.Logger
}

// New creates an Assistant.
func New(cfg Config) *Assistant {
	if cfg.Knowledge == nil {
		cfg.Knowledge = knowledge.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Assistant{
		remote:    cfg.Remote,
		extractor: cfg.Extractor,
		kb:        cfg.Knowledge,
		memory:    cfg.Memory,
		analysis:  cfg.Analysis,
		bus:       cfg.Bus,
		logger:    cfg.Logger,
	}
}

// Answer is a produced answer with its provenance.
type Answer struct {
	Text      string        `json:"answer"`
	Source    Source        `json:"source"`
	Model     string        `json:"model,omitempty"`
	RequestID string        `json:"request_id"`
	Elapsed   time.Duration `json:"-"`
}

// GenerateEnhancedResponse answers question and returns only the text.
// It never panics and never returns an empty string.
func (a *Assistant) GenerateEnhancedResponse(ctx context.Context, question string, extra map[string]any) string {
	return a.Answer(ctx, question, extra).Text
}

// Answer runs the fallback cascade for question. extra is merged into
// the context payload below the page-derived fields.
func (a *Assistant) Answer(ctx context.Context, question string, extra map[string]any) (ans Answer) {
	start := time.Now()
	reqID := newRequestID()
	log := a.logger.With("request_id", reqID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("answer pipeline panicked, using canned answer", "panic", r)
			ans = Answer{Text: fallback.Canned(question), Source: SourceFallback}
		}
		if ans.Text == "" {
			ans.Text = fallback.Response(fallback.TopicGeneral)
			ans.Source = SourceFallback
		}
		ans.RequestID = reqID
		ans.Elapsed = time.Since(start)
		log.Debug("answer produced", "source", ans.Source, "elapsed", ans.Elapsed)
	}()

	if a.remote != nil {
		if resp, ok := a.tryRemote(ctx, log, reqID, question, extra); ok {
			return Answer{Text: resp.Response, Source: SourceAI, Model: resp.Model}
		}
	} else {
		a.bus.Emit(events.SourceAssistant, events.KindFallback, map[string]any{
			"request_id": reqID,
			"reason":     "no remote client",
		})
	}

	if text, ok := a.tryKnowledge(log, question); ok {
		return Answer{Text: text, Source: SourceKnowledge}
	}

	return Answer{Text: fallback.Canned(question), Source: SourceFallback}
}

// tryRemote builds the payload and asks the remote tier. A panic here
// only skips this tier.
func (a *Assistant) tryRemote(ctx context.Context, log *slog.Logger, reqID, question string, extra map[string]any) (resp aiclient.Response, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("remote tier panicked", "panic", r)
			ok = false
		}
	}()

	payload := a.Payload(ctx, extra)
	resp = a.remote.AskAI(ctx, question, payload)
	if resp.Success && resp.Response != "" {
		return resp, true
	}

	reason := resp.Error
	if reason == "" {
		reason = "empty response"
	}
	log.Info("remote tier failed, falling back", "reason", reason)
	a.bus.Emit(events.SourceAssistant, events.KindFallback, map[string]any{
		"request_id": reqID,
		"reason":     reason,
	})
	return resp, false
}

func (a *Assistant) tryKnowledge(log *slog.Logger, question string) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("knowledge tier panicked", "panic", r)
			ok = false
		}
	}()

	entries := a.kb.SearchKeywords(question)
	if len(entries) == 0 {
		log.Debug("no knowledge base match")
		return "", false
	}
	if len(entries) > MaxKnowledgeEntries {
		entries = entries[:MaxKnowledgeEntries]
	}
	return "From the offline EM&V reference:\n\n" + knowledge.FormatEntries(entries), true
}

// Payload assembles the context sent with a question. Later layers
// overwrite earlier keys: extra < project fields < location fields <
// analysis results and user preferences.
func (a *Assistant) Payload(ctx context.Context, extra map[string]any) map[string]any {
	payload := make(map[string]any)
	maps.Copy(payload, extra)

	project := pagecontext.Project{}
	if a.extractor != nil {
		project = a.extractor.Project(ctx)
	}
	for k, v := range project {
		payload[k] = v
	}

	if loc, ok := a.location(ctx, project); ok {
		for k, v := range loc.Map() {
			payload[k] = v
		}
	}

	if a.analysis != nil {
		if snap, ok := a.analysis.Latest(); ok {
			payload[KeyAnalysisResults] = snap
		}
	}
	if a.memory != nil {
		if prefs := a.memory.Preferences(); len(prefs) > 0 {
			payload[KeyUserPreferences] = prefs
		}
	}
	return payload
}

// location prefers the remote client's accessor and falls back to
// resolving the already-extracted project fields.
func (a *Assistant) location(ctx context.Context, project pagecontext.Project) (location.Data, bool) {
	if lp, ok := a.remote.(LocationProvider); ok {
		if loc, ok := lp.ProjectLocation(ctx); ok && !loc.IsZero() {
			return loc, true
		}
	}
	var loc location.Data
	if a.extractor != nil {
		loc = a.extractor.ResolveLocation(project)
	} else {
		loc = location.Resolve(project)
	}
	return loc, !loc.IsZero()
}

// UserPreferences returns the stored preferences. Reading never changes
// them.
func (a *Assistant) UserPreferences() memory.Preferences {
	if a.memory == nil {
		return memory.Preferences{}
	}
	return a.memory.Preferences()
}

// UpdateUserPreferences shallow-merges update into the stored
// preferences.
func (a *Assistant) UpdateUserPreferences(update map[string]any) (memory.Preferences, error) {
	if a.memory == nil {
		return nil, fmt.Errorf("update preferences: no preference store configured")
	}
	return a.memory.UpdatePreferences(update)
}

// History returns the conversation log, oldest first.
func (a *Assistant) History() []memory.Entry {
	if a.memory == nil {
		return []memory.Entry{}
	}
	return a.memory.History()
}

// ClearHistory empties the conversation log.
func (a *Assistant) ClearHistory() error {
	if a.memory == nil {
		return nil
	}
	return a.memory.ClearHistory()
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
