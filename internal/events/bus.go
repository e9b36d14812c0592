// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from components (AI client, assistant,
// page watcher) to subscribers (the chat widget's WebSocket, the status
// indicator). The bus is nil-safe: calling Publish on a nil *Bus is a
// no-op, so components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceAIClient identifies events from the remote AI client.
	SourceAIClient = "aiclient"
	// SourceAssistant identifies events from the answer orchestrator.
	SourceAssistant = "assistant"
	// SourcePage identifies events from the analysis page watcher.
	SourcePage = "page"
)

// Kind constants describe the type of event within a source.
const (
	// KindStatusChange signals the AI backend became reachable or
	// unreachable. This drives the widget's status indicator.
	// Data: state, capability, error.
	KindStatusChange = "status_change"

	// KindAskStart signals the beginning of a question.
	// Data: request_id, session_id, seq.
	KindAskStart = "ask_start"
	// KindAnswer signals an answer was produced.
	// Data: request_id, session_id, seq, source, stale, elapsed_ms.
	KindAnswer = "answer"
	// KindFallback signals the remote tier was skipped or failed.
	// Data: request_id, reason.
	KindFallback = "fallback"

	// KindResultsUpdated signals new analysis results on the page.
	// Data: results, metrics.
	KindResultsUpdated = "results_updated"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]kindSet
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]kindSet),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, kinds := range b.subs {
		if !kinds.wants(e.Kind) {
			continue
		}
		select {
		case ch <- e:
		default:
			// Subscriber is full; drop the event rather than block.
		}
	}
}

// Emit is shorthand for publishing an event stamped with the current
// time. Safe to call on a nil receiver.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// Subscribe returns a channel that receives published events of the
// given kinds, or of every kind when none are named. The caller must
// eventually call Unsubscribe to avoid resource leaks. bufSize controls
// the channel buffer; 64 is a reasonable default for WebSocket
// consumers.
func (b *Bus) Subscribe(bufSize int, kinds ...string) <-chan Event {
	ch := make(chan Event, bufSize)
	var set kindSet
	if len(kinds) > 0 {
		set = make(kindSet, len(kinds))
		for _, k := range kinds {
			set[k] = struct{}{}
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = set
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// kindSet filters a subscription by event kind. A nil set accepts all.
type kindSet map[string]struct{}

func (k kindSet) wants(kind string) bool {
	if k == nil {
		return true
	}
	_, ok := k[kind]
	return ok
}
