package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Gdockery/synerex-platform-sub002/internal/events"
)

// WebSocket frame types sent to the widget.
const (
	FrameHello   = "hello"
	FrameAnswer  = "answer"
	FrameStatus  = "status"
	FrameResults = "results_updated"
	FrameError   = "error"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 16 * 1024,
	// The widget is embedded in the analysis page, which is usually
	// served from a different origin than this API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame is one server-to-widget WebSocket message.
type Frame struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one concurrent
// writer.
type wsConn struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu sync.Mutex
}

func (c *wsConn) write(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteJSON(f); err != nil {
		c.logger.Debug("websocket write failed", "type", f.Type, "error", err)
	}
}

// handleWebSocket serves one widget connection. Each question frame is
// answered concurrently; an answer overtaken by a newer one in the same
// session is dropped instead of sent. AI status changes and analysis
// updates are pushed as they happen.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	c := &wsConn{conn: conn, logger: s.logger}
	sessionID := r.URL.Query().Get("session_id")
	st := s.sessions.get(sessionID)
	log := s.logger.With("session_id", st.session.ID)

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer conn.Close()
	defer wg.Wait()
	defer cancel()

	if s.bus != nil {
		ch := s.bus.Subscribe(64, events.KindStatusChange, events.KindResultsUpdated)
		defer s.bus.Unsubscribe(ch)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.forwardEvents(ctx, c, ch)
		}()
	}

	hello := map[string]any{"session_id": st.session.ID}
	if s.ai != nil {
		hello["ai"] = s.ai.Status()
	}
	c.write(Frame{Type: FrameHello, Data: hello})
	log.Debug("websocket connected")

	conn.SetReadLimit(maxBodyBytes)
	for {
		var req AskRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read failed", "error", err)
			}
			return
		}
		if err := s.validate.Struct(&req); err != nil {
			c.write(Frame{Type: FrameError, Error: validationMessage(err)})
			continue
		}
		if !s.sessions.allow(st, sessionID, r.RemoteAddr) {
			c.write(Frame{Type: FrameError, Error: "too many questions, slow down"})
			continue
		}

		wg.Add(1)
		go func(req AskRequest) {
			defer wg.Done()
			reply := st.session.Ask(ctx, req.Question, req.Context)
			if reply.Stale {
				log.Debug("dropping stale answer",
					"seq", reply.Seq,
					"delivered", st.session.Latest(),
					"request_id", reply.RequestID)
				return
			}
			c.write(Frame{Type: FrameAnswer, Data: s.render(reply, req.Format)})
		}(req)
	}
}

// forwardEvents pushes AI status changes and analysis updates to the
// widget until ctx ends.
func (s *Server) forwardEvents(ctx context.Context, c *wsConn, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch {
			case ev.Source == events.SourceAIClient && ev.Kind == events.KindStatusChange:
				c.write(Frame{Type: FrameStatus, Data: ev.Data})
			case ev.Source == events.SourcePage && ev.Kind == events.KindResultsUpdated:
				c.write(Frame{Type: FrameResults, Data: ev.Data})
			}
		}
	}
}
