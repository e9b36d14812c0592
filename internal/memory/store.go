// Package memory holds the assistant's conversation history and user
// preferences. Both live in a localstore.Bucket as JSON blobs, are loaded
// once when the Store is built, and are rewritten on every mutation.
package memory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/Gdockery/synerex-platform-sub002/internal/localstore"
)

// Storage namespace and keys.
const (
	Namespace      = "emv_ai"
	HistoryKey     = "conversation_history"
	PreferencesKey = "user_preferences"
)

// MaxHistory is the number of entries kept. Older entries are evicted
// first.
const MaxHistory = 50

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one turn of the conversation log.
type Entry struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Preferences is an open, schema-less mapping of user settings.
type Preferences map[string]any

// Store manages history and preferences over a bucket. It is safe for
// concurrent use.
type Store struct {
	bucket localstore.Bucket
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	history []Entry
	prefs   Preferences
}

// New creates a Store and loads any previously persisted state from
// bucket. Unreadable blobs are discarded with a warning.
func New(bucket localstore.Bucket, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		bucket: bucket,
		logger: logger,
		now:    time.Now,
	}
	s.history = s.loadHistory()
	s.prefs = s.loadPreferences()
	return s
}

func (s *Store) loadHistory() []Entry {
	raw, err := s.bucket.Get(HistoryKey)
	if err != nil {
		s.logger.Warn("conversation history unreadable, starting empty", "error", err)
		return nil
	}
	if raw == "" {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.logger.Warn("conversation history corrupt, starting empty", "error", err)
		return nil
	}
	if len(entries) > MaxHistory {
		entries = entries[len(entries)-MaxHistory:]
	}
	return entries
}

func (s *Store) loadPreferences() Preferences {
	raw, err := s.bucket.Get(PreferencesKey)
	if err != nil {
		s.logger.Warn("user preferences unreadable, starting empty", "error", err)
		return Preferences{}
	}
	if raw == "" {
		return Preferences{}
	}
	var prefs Preferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil || prefs == nil {
		s.logger.Warn("user preferences corrupt, starting empty", "error", err)
		return Preferences{}
	}
	return prefs
}

// Append adds one entry stamped with the current time and persists the
// log.
func (s *Store) Append(role, text string) error {
	return s.append(Entry{Role: role, Text: text, Timestamp: s.stamp()})
}

// AppendExchange records a question and its answer as two entries with
// a single write.
func (s *Store) AppendExchange(question, answer string) error {
	ts := s.stamp()
	return s.append(
		Entry{Role: RoleUser, Text: question, Timestamp: ts},
		Entry{Role: RoleAssistant, Text: answer, Timestamp: ts},
	)
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *Store) append(entries ...Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, entries...)
	if over := len(s.history) - MaxHistory; over > 0 {
		// Copy so the evicted prefix can be collected.
		s.history = append([]Entry(nil), s.history[over:]...)
	}
	return s.saveHistoryLocked()
}

// History returns a copy of the full log, oldest first.
func (s *Store) History() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.history))
	copy(out, s.history)
	return out
}

// Recent returns at most n of the newest entries, oldest first.
func (s *Store) Recent(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return []Entry{}
	}
	start := max(len(s.history)-n, 0)
	out := make([]Entry, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}

// ClearHistory drops every entry and removes the persisted blob.
func (s *Store) ClearHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	if err := s.bucket.Delete(HistoryKey); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Preferences returns a shallow copy of the stored preferences.
func (s *Store) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.prefs)
}

// UpdatePreferences shallow-merges update into the stored preferences,
// persists them, and returns the merged result. Keys absent from update
// are left untouched.
func (s *Store) UpdatePreferences(update map[string]any) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maps.Copy(s.prefs, update)

	data, err := json.Marshal(s.prefs)
	if err != nil {
		return maps.Clone(s.prefs), fmt.Errorf("encode preferences: %w", err)
	}
	if err := s.bucket.Set(PreferencesKey, string(data)); err != nil {
		return maps.Clone(s.prefs), fmt.Errorf("save preferences: %w", err)
	}
	return maps.Clone(s.prefs), nil
}

func (s *Store) saveHistoryLocked() error {
	data, err := json.Marshal(s.history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.bucket.Set(HistoryKey, string(data)); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
