package api

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/Gdockery/synerex-platform-sub002/internal/assistant"
)

// DefaultSessionTTL is how long an idle widget session keeps its
// sequence state.
const DefaultSessionTTL = 30 * time.Minute

// SessionConfig tunes per-session state.
type SessionConfig struct {
	// TTL expires idle sessions. Zero uses DefaultSessionTTL.
	TTL time.Duration
	// RateLimit is the sustained questions per second allowed per
	// session. Zero disables limiting.
	RateLimit float64
	// Burst is the number of questions allowed at once.
	Burst int
}

// sessionState is what the table keeps per widget session.
type sessionState struct {
	session *assistant.Session
	limiter *rate.Limiter
}

// allow reports whether another question may be asked now.
func (st *sessionState) allow() bool {
	return st.limiter == nil || st.limiter.Allow()
}

// sessionTable maps session ids to their sequence state. Idle sessions
// expire; a question on an expired id starts a fresh sequence.
type sessionTable struct {
	assistant *assistant.Assistant
	cfg       SessionConfig

	mu    sync.Mutex
	cache *cache.Cache
	// clients limits asks that carry no session id, keyed by client host.
	clients *cache.Cache
}

func newSessionTable(a *assistant.Assistant, cfg SessionConfig) *sessionTable {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.RateLimit > 0 && cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &sessionTable{
		assistant: a,
		cfg:       cfg,
		cache:     cache.New(cfg.TTL, cfg.TTL/2),
		clients:   cache.New(cfg.TTL, cfg.TTL/2),
	}
}

// get returns the state for id, creating it when missing. An empty id
// gets a newly generated one. Every call refreshes the expiry.
func (t *sessionTable) get(id string) *sessionState {
	if id == "" {
		id = uuid.NewString()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if x, ok := t.cache.Get(id); ok {
		st := x.(*sessionState)
		t.cache.SetDefault(id, st)
		return st
	}

	st := &sessionState{session: t.assistant.NewSession(id)}
	if t.cfg.RateLimit > 0 {
		st.limiter = rate.NewLimiter(rate.Limit(t.cfg.RateLimit), t.cfg.Burst)
	}
	t.cache.SetDefault(id, st)
	return st
}

// allow applies the session's limiter, or the client's when the caller
// sent no session id.
func (t *sessionTable) allow(st *sessionState, id, remoteAddr string) bool {
	if id == "" {
		return t.allowClient(remoteAddr)
	}
	return st.allow()
}

// allowClient reports whether a client that sent no session id may ask
// now. Such asks share one limiter per remote host, so omitting the id
// does not reset the limit.
func (t *sessionTable) allowClient(remoteAddr string) bool {
	if t.cfg.RateLimit <= 0 {
		return true
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var limiter *rate.Limiter
	if x, ok := t.clients.Get(host); ok {
		limiter = x.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(rate.Limit(t.cfg.RateLimit), t.cfg.Burst)
	}
	t.clients.SetDefault(host, limiter)
	return limiter.Allow()
}

func (t *sessionTable) count() int {
	return t.cache.ItemCount()
}

// close drops every session.
func (t *sessionTable) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Flush()
	t.clients.Flush()
}
