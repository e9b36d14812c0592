package assistant

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gdockery/synerex-platform-sub002/internal/aiclient"
	"github.com/Gdockery/synerex-platform-sub002/internal/events"
	"github.com/Gdockery/synerex-platform-sub002/internal/fallback"
	"github.com/Gdockery/synerex-platform-sub002/internal/formfield"
	"github.com/Gdockery/synerex-platform-sub002/internal/knowledge"
	"github.com/Gdockery/synerex-platform-sub002/internal/localstore"
	"github.com/Gdockery/synerex-platform-sub002/internal/location"
	"github.com/Gdockery/synerex-platform-sub002/internal/memory"
	"github.com/Gdockery/synerex-platform-sub002/internal/pagecontext"
)

// fakeRemote answers with a fixed response and records payloads.
type fakeRemote struct {
	mu       sync.Mutex
	resp     aiclient.Response
	panicMsg string
	payloads []map[string]any
}

func (f *fakeRemote) AskAI(_ context.Context, _ string, payload map[string]any) aiclient.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.payloads = append(f.payloads, payload)
	return f.resp
}

func (f *fakeRemote) lastPayload() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return nil
	}
	return f.payloads[len(f.payloads)-1]
}

// locatingRemote also implements LocationProvider.
type locatingRemote struct {
	fakeRemote
	loc location.Data
	ok  bool
}

func (l *locatingRemote) ProjectLocation(context.Context) (location.Data, bool) {
	return l.loc, l.ok
}

type staticAnalysis struct{ a pagecontext.Analysis }

func (s staticAnalysis) Latest() (pagecontext.Analysis, bool) { return s.a, true }

func pageExtractor(t *testing.T, html string) *pagecontext.Extractor {
	t.Helper()
	doc, err := formfield.ParseString(html)
	require.NoError(t, err)
	return pagecontext.NewExtractor(pagecontext.ExtractorConfig{Source: pagecontext.StaticSource(doc)})
}

var failed = aiclient.Response{Success: false, Model: aiclient.ModelFallback, Error: aiclient.UnavailableError}

func TestGenerateEnhancedResponse_NeverEmpty(t *testing.T) {
	remotes := map[string]Remote{
		"none":           nil,
		"unavailable":    &fakeRemote{resp: failed},
		"empty success":  &fakeRemote{resp: aiclient.Response{Success: true}},
		"panics":         &fakeRemote{panicMsg: "boom"},
		"success":        &fakeRemote{resp: aiclient.Response{Success: true, Response: "remote says hi"}},
		"typed nil":      (*aiclient.Client)(nil),
		"locating panic": &locatingRemote{fakeRemote: fakeRemote{panicMsg: "boom"}},
	}
	questions := []string{"", "   ", "install", "IEEE 519", "zzzz qqqq", "What is my utility rate?"}

	for name, remote := range remotes {
		a := New(Config{Remote: remote, Extractor: pageExtractor(t, `<input name="city" value="Austin">`)})
		for _, q := range questions {
			assert.NotPanics(t, func() {
				got := a.GenerateEnhancedResponse(context.Background(), q, nil)
				assert.NotEmpty(t, strings.TrimSpace(got), "remote=%s question=%q", name, q)
			})
		}
	}
}

func TestAnswer_Tiers(t *testing.T) {
	a := New(Config{Remote: &fakeRemote{resp: aiclient.Response{Success: true, Response: "Use Option C.", Model: "m1"}}})
	ans := a.Answer(context.Background(), "Which IPMVP option?", nil)
	assert.Equal(t, SourceAI, ans.Source)
	assert.Equal(t, "Use Option C.", ans.Text)
	assert.Equal(t, "m1", ans.Model)
	assert.NotEmpty(t, ans.RequestID)

	a = New(Config{Remote: &fakeRemote{resp: failed}})
	ans = a.Answer(context.Background(), "What are the IEEE 519 harmonic limits?", nil)
	assert.Equal(t, SourceKnowledge, ans.Source)
	assert.Contains(t, ans.Text, "IEEE 519-2014")

	ans = a.Answer(context.Background(), "zzzz qqqq", nil)
	assert.Equal(t, SourceFallback, ans.Source)
	assert.Equal(t, fallback.Canned("zzzz qqqq"), ans.Text)
}

func TestAnswer_KnowledgeCapped(t *testing.T) {
	const q = "power standards analysis reporting installation"
	entries := knowledge.Default().SearchKeywords(q)
	require.Greater(t, len(entries), MaxKnowledgeEntries)

	ans := New(Config{}).Answer(context.Background(), q, nil)
	require.Equal(t, SourceKnowledge, ans.Source)
	want := "From the offline EM&V reference:\n\n" + knowledge.FormatEntries(entries[:MaxKnowledgeEntries])
	assert.Equal(t, want, ans.Text)
}

func TestAnswer_RemotePanicStillTriesKnowledge(t *testing.T) {
	a := New(Config{Remote: &fakeRemote{panicMsg: "nil map"}})
	ans := a.Answer(context.Background(), "power factor penalty", nil)
	assert.Equal(t, SourceKnowledge, ans.Source)
}

func TestPayload_MergeOrder(t *testing.T) {
	remote := &fakeRemote{resp: aiclient.Response{Success: true, Response: "ok"}}
	mem := memory.New(localstore.NewMemoryBucket(), nil)
	_, err := mem.UpdatePreferences(map[string]any{"units": "kW"})
	require.NoError(t, err)

	snap := pagecontext.Analysis{Results: []string{"PF 0.97"}}
	a := New(Config{
		Remote:    remote,
		Extractor: pageExtractor(t, `<input name="city" value="Austin"><input name="state" value="Texas"><input id="projectName" value="Plant 7">`),
		Memory:    mem,
		Analysis:  staticAnalysis{snap},
	})

	extra := map[string]any{
		"city":             "Dallas",
		"session_note":     "kept",
		KeyAnalysisResults: "stale",
		KeyUserPreferences: "stale",
		"project_name":     "Old Name",
		"climateZone":      "zone_9",
	}
	a.Answer(context.Background(), "anything", extra)

	p := remote.lastPayload()
	require.NotNil(t, p)
	assert.Equal(t, "kept", p["session_note"])
	assert.Equal(t, "Plant 7", p["project_name"], "project fields beat extra context")
	assert.Equal(t, "Austin", p["city"])
	assert.Equal(t, "Austin, Texas", p["cityState"])
	assert.Equal(t, "zone_2", p["climateZone"], "location fields beat extra context")
	assert.Equal(t, snap, p[KeyAnalysisResults])
	assert.Equal(t, memory.Preferences{"units": "kW"}, p[KeyUserPreferences])

	// The caller's map is not modified.
	assert.Equal(t, "Dallas", extra["city"])
}

func TestPayload_PrefersRemoteLocation(t *testing.T) {
	remote := &locatingRemote{
		fakeRemote: fakeRemote{resp: aiclient.Response{Success: true, Response: "ok"}},
		loc:        location.Data{City: "Boise", State: "ID", CityState: "Boise, ID", ClimateZone: "zone_5"},
		ok:         true,
	}
	a := New(Config{Remote: remote, Extractor: pageExtractor(t, `<input name="city" value="Austin"><input name="state" value="Texas">`)})

	p := a.Payload(context.Background(), nil)
	assert.Equal(t, "Boise", p["city"], "location fields override project fields")
	assert.Equal(t, "Boise, ID", p["cityState"])

	// An empty accessor result falls back to the page.
	remote.ok = false
	p = a.Payload(context.Background(), nil)
	assert.Equal(t, "Austin, Texas", p["cityState"])
}

func TestPayload_NoLocation(t *testing.T) {
	a := New(Config{Extractor: pageExtractor(t, `<p>empty</p>`)})
	p := a.Payload(context.Background(), nil)
	assert.NotContains(t, p, "climateZone")
	assert.Empty(t, p)
}

func TestPreferences_RoundTripAcrossInstances(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "emv.db")

	store1, err := localstore.NewStore(dbPath, localstore.DriverPure)
	require.NoError(t, err)
	a1 := New(Config{Memory: memory.New(store1.Bucket(memory.Namespace), nil)})
	_, err = a1.UpdateUserPreferences(map[string]any{"a": 1})
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := localstore.NewStore(dbPath, localstore.DriverPure)
	require.NoError(t, err)
	defer store2.Close()
	a2 := New(Config{Memory: memory.New(store2.Bucket(memory.Namespace), nil)})

	assert.EqualValues(t, 1, a2.UserPreferences()["a"])
}

func TestPreferences_WithoutStore(t *testing.T) {
	a := New(Config{})
	assert.Empty(t, a.UserPreferences())
	_, err := a.UpdateUserPreferences(map[string]any{"a": 1})
	assert.Error(t, err)
	assert.Empty(t, a.History())
	assert.NoError(t, a.ClearHistory())
}

func TestHistoryAndClear(t *testing.T) {
	mem := memory.New(localstore.NewMemoryBucket(), nil)
	mem.AppendExchange("q", "a")
	a := New(Config{Memory: mem})

	require.Len(t, a.History(), 2)
	require.NoError(t, a.ClearHistory())
	assert.Empty(t, a.History())
}

// gatedRemote blocks questions listed in gates until their channel is
// closed.
type gatedRemote struct {
	gates   map[string]chan struct{}
	arrived chan string
}

func (g *gatedRemote) AskAI(_ context.Context, q string, _ map[string]any) aiclient.Response {
	g.arrived <- q
	if gate, ok := g.gates[q]; ok {
		<-gate
	}
	return aiclient.Response{Success: true, Response: "answer to " + q}
}

func TestSession_StaleAnswerIsFlagged(t *testing.T) {
	release := make(chan struct{})
	remote := &gatedRemote{
		gates:   map[string]chan struct{}{"slow": release},
		arrived: make(chan string, 2),
	}
	bus := events.New()
	ch := bus.Subscribe(16)
	defer bus.Unsubscribe(ch)

	s := New(Config{Remote: remote, Bus: bus}).NewSession("widget-1")

	slowReply := make(chan Reply, 1)
	go func() { slowReply <- s.Ask(context.Background(), "slow", nil) }()
	require.Equal(t, "slow", <-remote.arrived)

	fast := s.Ask(context.Background(), "fast", nil)
	<-remote.arrived
	assert.Equal(t, uint64(2), fast.Seq)
	assert.False(t, fast.Stale)

	close(release)
	var slow Reply
	select {
	case slow = <-slowReply:
	case <-time.After(2 * time.Second):
		t.Fatal("slow question never answered")
	}

	assert.Equal(t, uint64(1), slow.Seq)
	assert.True(t, slow.Stale, "answer overtaken by a newer one must be stale")
	assert.Equal(t, "answer to slow", slow.Text)
	assert.Equal(t, uint64(2), s.Latest())

	var staleEvents int
	for len(ch) > 0 {
		ev := <-ch
		if ev.Kind == events.KindAnswer && ev.Data["stale"] == true {
			staleEvents++
		}
	}
	assert.Equal(t, 1, staleEvents)
}

func TestSession_InOrderAnswersAreFresh(t *testing.T) {
	s := New(Config{}).NewSession("w")
	r1 := s.Ask(context.Background(), "install", nil)
	r2 := s.Ask(context.Background(), "install", nil)
	assert.False(t, r1.Stale)
	assert.False(t, r2.Stale)
	assert.Equal(t, uint64(1), r1.Seq)
	assert.Equal(t, uint64(2), r2.Seq)
	assert.Equal(t, "w", r2.SessionID)
}
