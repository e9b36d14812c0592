// Package connwatch tracks whether an optional backend service is
// reachable and caches the answer as a capability.
//
// A Watcher moves through Uninitialized → Initializing → {Connected,
// Disconnected}. Start fires the first probe in the background and
// returns immediately; callers that need the result block on
// WaitInitialized. After that the cached state is only re-derived by an
// explicit Check or, when PollInterval is set, by background polling with
// state-transition callbacks.
package connwatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotStarted is returned by WaitInitialized when neither Start nor
// Check has ever been called.
var ErrNotStarted = errors.New("connwatch: watcher not started")

// ProbeFunc checks whether a service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// State is the connection state of a watched service.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateConnected
	StateDisconnected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Capability is the cached availability verdict derived from State.
type Capability string

const (
	Available   Capability = "available"
	Unavailable Capability = "unavailable"
	Unknown     Capability = "unknown"
)

// WatcherConfig configures a single service watcher.
type WatcherConfig struct {
	// Name is a human-readable identifier for logging (e.g., "ai-backend").
	Name string

	// Probe checks service health. Must be safe for concurrent use.
	Probe ProbeFunc

	// ProbeTimeout limits how long each individual probe call may take.
	// Zero means the probe's own deadline (if any) applies.
	ProbeTimeout time.Duration

	// PollInterval enables background re-probing after initialization.
	// Zero disables polling: the state only changes on Check.
	PollInterval time.Duration

	// OnChange is called after every state transition, synchronously and
	// outside the watcher's lock. Must not block. Optional.
	OnChange func(state State, err error)

	// Logger for structured logging. Uses slog.Default() if nil.
	Logger *slog.Logger
}

// ServiceStatus is the health status of a watched service, suitable for
// JSON serialization in health endpoints.
type ServiceStatus struct {
	Name       string     `json:"name"`
	State      string     `json:"state"`
	Capability Capability `json:"capability"`
	LastCheck  time.Time  `json:"last_check,omitzero"`
	LastError  string     `json:"last_error,omitempty"`
}

// Watcher monitors a single service's health.
type Watcher struct {
	config WatcherConfig
	state  atomic.Int32

	startOnce sync.Once
	initOnce  sync.Once
	initDone  chan struct{}
	cancel    context.CancelFunc
	done      chan struct{}

	mu        sync.Mutex
	lastErr   error
	lastCheck time.Time
}

// New creates a watcher in the Uninitialized state. It panics if Probe is
// nil, which is a programming error.
func New(cfg WatcherConfig) *Watcher {
	if cfg.Probe == nil {
		panic("connwatch: WatcherConfig.Probe must not be nil")
	}
	if cfg.Name == "" {
		cfg.Name = "service"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{
		config:   cfg,
		initDone: make(chan struct{}),
	}
}

// Start launches the first probe in the background and returns without
// waiting for it. Subsequent calls are no-ops. The goroutine runs until
// ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing))
		runCtx, cancel := context.WithCancel(ctx)
		w.cancel = cancel
		w.done = make(chan struct{})
		go w.run(runCtx)
	})
}

// WaitInitialized blocks until the first probe has completed or ctx ends.
func (w *Watcher) WaitInitialized(ctx context.Context) error {
	if w.State() == StateUninitialized {
		return ErrNotStarted
	}
	select {
	case <-w.initDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Check probes the service now and updates the cached state. It reports
// whether the service is reachable.
func (w *Watcher) Check(ctx context.Context) bool {
	err := w.probe(ctx)
	w.record(err)
	return err == nil
}

// State returns the current connection state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// IsReady reports whether the watched service is currently reachable.
func (w *Watcher) IsReady() bool {
	return w.State() == StateConnected
}

// Capability returns the cached availability verdict.
func (w *Watcher) Capability() Capability {
	switch w.State() {
	case StateConnected:
		return Available
	case StateDisconnected:
		return Unavailable
	default:
		return Unknown
	}
}

// LastError returns the most recent probe error, or nil if healthy.
func (w *Watcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Status returns the current health status.
func (w *Watcher) Status() ServiceStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := ServiceStatus{
		Name:       w.config.Name,
		State:      w.State().String(),
		Capability: w.Capability(),
		LastCheck:  w.lastCheck,
	}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Stop cancels the background goroutine and waits for it to exit. Safe
// to call on a watcher that was never started.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	w.Check(ctx)

	if w.config.PollInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// probe calls the configured ProbeFunc with a timeout.
func (w *Watcher) probe(ctx context.Context) error {
	if w.config.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.ProbeTimeout)
		defer cancel()
	}
	return w.config.Probe(ctx)
}

// record stores the probe outcome and fires OnChange on transitions.
func (w *Watcher) record(err error) {
	next := StateConnected
	if err != nil {
		next = StateDisconnected
	}

	w.mu.Lock()
	prev := State(w.state.Swap(int32(next)))
	w.lastErr = err
	w.lastCheck = time.Now()
	w.mu.Unlock()

	w.initOnce.Do(func() { close(w.initDone) })

	if prev == next {
		if err != nil {
			w.config.Logger.Debug("service still unreachable",
				"service", w.config.Name,
				"error", err,
			)
		}
		return
	}

	switch next {
	case StateConnected:
		w.config.Logger.Info("service connected",
			"service", w.config.Name,
			"previous", prev.String(),
		)
	case StateDisconnected:
		w.config.Logger.Info("service unreachable",
			"service", w.config.Name,
			"previous", prev.String(),
			"error", err,
		)
	}

	if w.config.OnChange != nil {
		w.config.OnChange(next, err)
	}
}
