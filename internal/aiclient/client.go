// Package aiclient talks to the locally-run EM&V AI backend. The backend
// is optional: its availability is probed once in the background at
// startup and cached, and every failure is turned into a Response with
// Success=false rather than an error.
package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Gdockery/synerex-platform-sub002/internal/connwatch"
	"github.com/Gdockery/synerex-platform-sub002/internal/events"
	"github.com/Gdockery/synerex-platform-sub002/internal/httpkit"
	"github.com/Gdockery/synerex-platform-sub002/internal/location"
	"github.com/Gdockery/synerex-platform-sub002/internal/memory"
	"github.com/Gdockery/synerex-platform-sub002/internal/pagecontext"
)

// DefaultBaseURL is where the AI backend listens when run alongside the
// analysis application.
const DefaultBaseURL = "http://localhost:8000"

// Fixed request ceilings. These are not configurable.
const (
	HealthTimeout = 3 * time.Second
	ChatTimeout   = 60 * time.Second
)

// HistoryWindow is how many recent conversation entries accompany each
// question.
const HistoryWindow = 5

// HealthyStatus is the status value the health endpoint reports when the
// backend and its model are ready.
const HealthyStatus = "healthy"

// ModelFallback tags responses produced without the backend.
const ModelFallback = "fallback"

// UnavailableError is the Error value of a Response given when the
// backend cannot be reached at all.
const UnavailableError = "AI service unavailable"

// Failure classes, matched with errors.Is against Response.Err.
var (
	ErrUnavailable = errors.New("ai service unavailable")
	ErrTimeout     = errors.New("ai request timed out")
	ErrNetwork     = errors.New("ai service unreachable")
	ErrMalformed   = errors.New("malformed ai response")
	// ErrCanceled means the caller gave up before the backend answered.
	ErrCanceled    = errors.New("ai request canceled")
)

// Response is the outcome of AskAI.
type Response struct {
	Success   bool   `json:"success"`
	Response  string `json:"response"`
	Model     string `json:"model,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`

	// Err carries the failure class for callers; nil on success.
	Err error `json:"-"`
}

// Indicator shows backend availability to the user, such as the status
// dot next to the chat widget.
type Indicator interface {
	SetStatus(connected bool, label string)
}

// Config configures a Client. All fields are optional.
type Config struct {
	BaseURL      string
	HTTPClient   *http.Client
	History      *memory.Store
	Extractor    *pagecontext.Extractor
	Bus          *events.Bus
	Indicator    Indicator
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Client is the remote AI client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	history    *memory.Store
	extractor  *pagecontext.Extractor
	bus        *events.Bus
	indicator  Indicator
	logger     *slog.Logger
	watcher    *connwatch.Watcher

	healthTimeout time.Duration
	chatTimeout   time.Duration

	mu    sync.Mutex
	model string
}

// New creates a client. Call Start to begin the background health probe.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpkit.NewClient()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:    cfg.HTTPClient,
		history:       cfg.History,
		extractor:     cfg.Extractor,
		bus:           cfg.Bus,
		indicator:     cfg.Indicator,
		logger:        cfg.Logger,
		healthTimeout: HealthTimeout,
		chatTimeout:   ChatTimeout,
	}
	c.watcher = connwatch.New(connwatch.WatcherConfig{
		Name:         "ai-backend",
		Probe:        c.probe,
		PollInterval: cfg.PollInterval,
		OnChange:     c.onChange,
		Logger:       cfg.Logger,
	})
	return c
}

// Start launches the first health check in the background and returns
// immediately. AskAI waits for that check to finish.
func (c *Client) Start(ctx context.Context) {
	c.setIndicator(false, "Connecting…")
	c.watcher.Start(ctx)
}

// Stop ends background polling.
func (c *Client) Stop() {
	c.watcher.Stop()
}

// TestConnection probes the health endpoint now and reports whether the
// backend is ready.
func (c *Client) TestConnection(ctx context.Context) bool {
	return c.watcher.Check(ctx)
}

// Status returns the cached availability of the backend.
func (c *Client) Status() connwatch.ServiceStatus {
	return c.watcher.Status()
}

// Available reports whether the last health check succeeded.
func (c *Client) Available() bool {
	return c.watcher.IsReady()
}

// Model returns the model name the backend last reported.
func (c *Client) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

type healthResponse struct {
	Status       string `json:"status"`
	Model        string `json:"model,omitempty"`
	OllamaStatus string `json:"ollama_status,omitempty"`
}

// probe is the connwatch probe: GET /health within the health timeout.
func (c *Client) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("%w: decode health: %v", ErrMalformed, err)
	}
	if health.Status != HealthyStatus {
		return fmt.Errorf("%w: status %q (model backend %q)", ErrUnavailable, health.Status, health.OllamaStatus)
	}

	c.mu.Lock()
	c.model = health.Model
	c.mu.Unlock()
	return nil
}

func (c *Client) onChange(state connwatch.State, err error) {
	connected := state == connwatch.StateConnected
	if connected {
		c.setIndicator(true, "AI Connected")
	} else {
		c.setIndicator(false, "AI Offline")
	}

	data := map[string]any{
		"state":      state.String(),
		"capability": string(c.watcher.Capability()),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	c.bus.Emit(events.SourceAIClient, events.KindStatusChange, data)
}

func (c *Client) setIndicator(connected bool, label string) {
	if c.indicator != nil {
		c.indicator.SetStatus(connected, label)
	}
}

// ProjectLocation derives location data from the project fields on the
// page. It reports false when no location could be found.
func (c *Client) ProjectLocation(ctx context.Context) (location.Data, bool) {
	if c.extractor == nil {
		return location.Data{}, false
	}
	loc := c.extractor.Location(ctx)
	return loc, !loc.IsZero()
}
