package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gdockery/synerex-platform-sub002/internal/aiclient"
	"github.com/Gdockery/synerex-platform-sub002/internal/assistant"
	"github.com/Gdockery/synerex-platform-sub002/internal/connwatch"
	"github.com/Gdockery/synerex-platform-sub002/internal/localstore"
	"github.com/Gdockery/synerex-platform-sub002/internal/memory"
	"github.com/Gdockery/synerex-platform-sub002/internal/pagecontext"
)

type stubRemote struct{ answer string }

func (s stubRemote) AskAI(context.Context, string, map[string]any) aiclient.Response {
	return aiclient.Response{Success: true, Response: s.answer, Model: "stub-model"}
}

type stubStatus struct{}

func (stubStatus) Status() connwatch.ServiceStatus {
	return connwatch.ServiceStatus{Name: "ai-backend", State: "connected", Capability: connwatch.Available}
}

func (stubStatus) Model() string { return "llama3" }

type stubAnalysis struct{}

func (stubAnalysis) Latest() (pagecontext.Analysis, bool) {
	return pagecontext.Analysis{Results: []string{"kW savings 12.4%"}}, true
}

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	if cfg.Assistant == nil {
		cfg.Assistant = assistant.New(assistant.Config{
			Remote: stubRemote{answer: "Use **Option B** for retrofit isolation."},
			Memory: memory.New(localstore.NewMemoryBucket(), nil),
		})
	}
	return NewServer(cfg).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, Config{AI: stubStatus{}})
	rec := do(t, h, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status = %v", body["status"])
	}
	ai, _ := body["ai"].(map[string]any)
	if ai["capability"] != "available" {
		t.Errorf("ai = %v", body["ai"])
	}
}

func TestVersion(t *testing.T) {
	rec := do(t, newTestServer(t, Config{}), "GET", "/v1/version", "")
	body := decodeBody[map[string]string](t, rec)
	if body["version"] == "" || body["go_version"] == "" {
		t.Errorf("unexpected version body %v", body)
	}
}

func TestStatus(t *testing.T) {
	h := newTestServer(t, Config{AI: stubStatus{}, Analysis: stubAnalysis{}})
	do(t, h, "POST", "/v1/ask", `{"question":"hi","session_id":"s1"}`)

	body := decodeBody[map[string]any](t, do(t, h, "GET", "/v1/status", ""))
	if body["model"] != "llama3" {
		t.Errorf("model = %v", body["model"])
	}
	if body["sessions"] != float64(1) {
		t.Errorf("sessions = %v, want 1", body["sessions"])
	}
	if body["listeners"] != float64(0) {
		t.Errorf("listeners = %v, want 0 without a bus", body["listeners"])
	}
	analysis, _ := body["analysis"].(map[string]any)
	if analysis == nil {
		t.Fatalf("analysis missing: %v", body)
	}
}

func TestAsk_SequencesPerSession(t *testing.T) {
	h := newTestServer(t, Config{})

	first := decodeBody[AskResponse](t, do(t, h, "POST", "/v1/ask", `{"question":"Which IPMVP option?"}`))
	if first.SessionID == "" {
		t.Fatal("expected a generated session id")
	}
	if first.Seq != 1 || first.Stale {
		t.Errorf("first = seq %d stale %v", first.Seq, first.Stale)
	}
	if first.Source != assistant.SourceAI || first.Model != "stub-model" {
		t.Errorf("source/model = %v/%v", first.Source, first.Model)
	}
	if first.Format != FormatMarkdown || !strings.Contains(first.Answer, "**Option B**") {
		t.Errorf("answer = %q (%s)", first.Answer, first.Format)
	}

	body := `{"question":"And for whole-building?","session_id":"` + first.SessionID + `"}`
	second := decodeBody[AskResponse](t, do(t, h, "POST", "/v1/ask", body))
	if second.Seq != 2 || second.SessionID != first.SessionID {
		t.Errorf("second = seq %d session %q", second.Seq, second.SessionID)
	}

	other := decodeBody[AskResponse](t, do(t, h, "POST", "/v1/ask", `{"question":"x","session_id":"other"}`))
	if other.Seq != 1 {
		t.Errorf("other session seq = %d, want 1", other.Seq)
	}
}

func TestAsk_HTMLFormat(t *testing.T) {
	h := newTestServer(t, Config{})
	resp := decodeBody[AskResponse](t, do(t, h, "POST", "/v1/ask", `{"question":"q","format":"html"}`))
	if resp.Format != FormatHTML {
		t.Errorf("format = %q", resp.Format)
	}
	if !strings.Contains(resp.Answer, "<strong>Option B</strong>") {
		t.Errorf("answer not rendered: %q", resp.Answer)
	}
}

func TestAsk_Validation(t *testing.T) {
	h := newTestServer(t, Config{})
	tests := []struct {
		name string
		body string
	}{
		{"empty question", `{"question":""}`},
		{"missing question", `{}`},
		{"bad format", `{"question":"q","format":"pdf"}`},
		{"not json", `question=q`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/v1/ask", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAsk_RateLimited(t *testing.T) {
	h := newTestServer(t, Config{Sessions: SessionConfig{RateLimit: 0.001, Burst: 1}})

	if rec := do(t, h, "POST", "/v1/ask", `{"question":"q","session_id":"s"}`); rec.Code != http.StatusOK {
		t.Fatalf("first ask status = %d", rec.Code)
	}
	rec := do(t, h, "POST", "/v1/ask", `{"question":"q","session_id":"s"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second ask status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	// Limits are per session.
	if rec := do(t, h, "POST", "/v1/ask", `{"question":"q","session_id":"t"}`); rec.Code != http.StatusOK {
		t.Errorf("other session status = %d", rec.Code)
	}
}

func TestAsk_RateLimitedWithoutSession(t *testing.T) {
	h := newTestServer(t, Config{Sessions: SessionConfig{RateLimit: 0.001, Burst: 1}})

	if rec := do(t, h, "POST", "/v1/ask", `{"question":"q"}`); rec.Code != http.StatusOK {
		t.Fatalf("first ask status = %d", rec.Code)
	}
	// Omitting the session id must not hand out a fresh limiter.
	if rec := do(t, h, "POST", "/v1/ask", `{"question":"q"}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second ask status = %d, want 429", rec.Code)
	}

	// Another client host has its own budget.
	req := httptest.NewRequest("POST", "/v1/ask", strings.NewReader(`{"question":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.7:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other client status = %d", rec.Code)
	}
}

type historyBody struct {
	History []memory.Entry `json:"history"`
	Count   int            `json:"count"`
}

func TestHistory(t *testing.T) {
	mem := memory.New(localstore.NewMemoryBucket(), nil)
	if err := mem.AppendExchange("What is IPMVP?", "A measurement protocol."); err != nil {
		t.Fatal(err)
	}
	h := newTestServer(t, Config{Assistant: assistant.New(assistant.Config{Memory: mem})})

	body := decodeBody[historyBody](t, do(t, h, "GET", "/v1/history", ""))
	if body.Count != 2 || body.History[0].Role != memory.RoleUser || body.History[1].Text != "A measurement protocol." {
		t.Fatalf("history = %+v", body)
	}

	if rec := do(t, h, "DELETE", "/v1/history", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	body = decodeBody[historyBody](t, do(t, h, "GET", "/v1/history", ""))
	if body.Count != 0 || len(body.History) != 0 {
		t.Errorf("history after clear = %+v", body)
	}
}

func TestPreferences(t *testing.T) {
	h := newTestServer(t, Config{})

	rec := do(t, h, "PATCH", "/v1/preferences", `{"units":"kW","detail":"brief"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", rec.Code, rec.Body.String())
	}
	do(t, h, "PATCH", "/v1/preferences", `{"detail":"full"}`)

	prefs := decodeBody[map[string]any](t, do(t, h, "GET", "/v1/preferences", ""))
	if prefs["units"] != "kW" || prefs["detail"] != "full" {
		t.Errorf("prefs = %v", prefs)
	}

	for _, bad := range []string{`[1,2]`, `null`, `{`} {
		if rec := do(t, h, "PATCH", "/v1/preferences", bad); rec.Code != http.StatusBadRequest {
			t.Errorf("PATCH %s status = %d, want 400", bad, rec.Code)
		}
	}
}

func TestPreferences_NoStore(t *testing.T) {
	h := newTestServer(t, Config{Assistant: assistant.New(assistant.Config{})})
	if rec := do(t, h, "PATCH", "/v1/preferences", `{"a":1}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	prefs := decodeBody[map[string]any](t, do(t, h, "GET", "/v1/preferences", ""))
	if len(prefs) != 0 {
		t.Errorf("prefs = %v, want empty", prefs)
	}
}

func TestKnowledgeSearch(t *testing.T) {
	h := newTestServer(t, Config{})

	type result struct {
		Category string          `json:"category"`
		Title    string          `json:"title"`
		Data     json.RawMessage `json:"data"`
		Content  string          `json:"content"`
	}
	type searchBody struct {
		Results      []result `json:"results"`
		TotalResults int      `json:"total_results"`
	}

	all := decodeBody[searchBody](t, do(t, h, "POST", "/api/ai/knowledge/search", `{"query":"standards"}`))
	if all.TotalResults == 0 || all.TotalResults != len(all.Results) {
		t.Fatalf("total_results = %d, results = %d", all.TotalResults, len(all.Results))
	}
	for _, r := range all.Results {
		if r.Title == "" || r.Content == "" || len(r.Data) == 0 {
			t.Errorf("incomplete result %+v", r)
		}
	}

	filtered := decodeBody[searchBody](t, do(t, h, "POST", "/api/ai/knowledge/search", `{"query":"standards","type":"standards"}`))
	if filtered.TotalResults == 0 || filtered.TotalResults > all.TotalResults {
		t.Errorf("filtered = %d, all = %d", filtered.TotalResults, all.TotalResults)
	}
	for _, r := range filtered.Results {
		if r.Category != "standards" {
			t.Errorf("result from category %q", r.Category)
		}
	}

	none := decodeBody[searchBody](t, do(t, h, "POST", "/api/ai/knowledge/search", `{"query":"zzzzqqqq"}`))
	if none.TotalResults != 0 || none.Results == nil {
		t.Errorf("no-match body = %+v, want empty non-nil results", none)
	}

	if rec := do(t, h, "POST", "/api/ai/knowledge/search", `{"query":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("blank query status = %d, want 400", rec.Code)
	}
}

func TestUnknownMethod(t *testing.T) {
	rec := do(t, newTestServer(t, Config{}), "PUT", "/v1/ask", `{}`)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
