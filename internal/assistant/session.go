package assistant

import (
	"context"
	"sync"

	"github.com/Gdockery/synerex-platform-sub002/internal/events"
)

// Session orders the answers of one chat widget. Questions are not
// cancelled when a newer one is asked; instead each is stamped with a
// sequence number, and an answer that completes after a newer answer was
// already delivered is marked Stale.
type Session struct {
	ID string

	assistant *Assistant

	mu        sync.Mutex
	issued    uint64
	delivered uint64
}

// Reply is an answer stamped with its session sequence number.
type Reply struct {
	Answer
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`
	Stale     bool   `json:"stale"`
}

// NewSession starts a sequence for one client.
func (a *Assistant) NewSession(id string) *Session {
	return &Session{ID: id, assistant: a}
}

// Ask answers question and reports whether a newer answer overtook it.
func (s *Session) Ask(ctx context.Context, question string, extra map[string]any) Reply {
	s.mu.Lock()
	s.issued++
	seq := s.issued
	s.mu.Unlock()

	s.assistant.bus.Emit(events.SourceAssistant, events.KindAskStart, map[string]any{
		"session_id": s.ID,
		"seq":        seq,
	})

	ans := s.assistant.Answer(ctx, question, extra)

	s.mu.Lock()
	stale := seq < s.delivered
	if !stale {
		s.delivered = seq
	}
	s.mu.Unlock()

	s.assistant.bus.Emit(events.SourceAssistant, events.KindAnswer, map[string]any{
		"request_id": ans.RequestID,
		"session_id": s.ID,
		"seq":        seq,
		"source":     string(ans.Source),
		"stale":      stale,
		"elapsed_ms": ans.Elapsed.Milliseconds(),
	})
	if stale {
		s.assistant.logger.Info("answer overtaken by a newer one",
			"session_id", s.ID, "seq", seq, "request_id", ans.RequestID)
	}

	return Reply{Answer: ans, SessionID: s.ID, Seq: seq, Stale: stale}
}

// Latest returns the sequence number of the newest delivered answer.
func (s *Session) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}
