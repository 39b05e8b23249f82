package httpapi

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/browseragent/control-plane/pkg/protocol"
)

// EventHub broadcasts every agent.Loop's raw AgentEvents to any number of
// connected debug WebSocket clients (GET /v1/events). It is independent
// of the per-task SSE stream in tasks.go, which only carries the coarser
// plan/verify/repair lifecycle events for one task.
type EventHub struct {
	mu   sync.Mutex
	subs map[int]chan protocol.AgentEvent
	next int
}

// NewEventHub builds an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[int]chan protocol.AgentEvent)}
}

// Publish fans ev out to every connected subscriber, dropping it for any
// subscriber whose buffer is full rather than blocking the agent loop.
func (h *EventHub) Publish(ev protocol.AgentEvent) {
	h.mu.Lock()
	chans := make([]chan protocol.AgentEvent, 0, len(h.subs))
	for _, ch := range h.subs {
		chans = append(chans, ch)
	}
	h.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *EventHub) subscribe() (int, chan protocol.AgentEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan protocol.AgentEvent, 64)
	h.subs[id] = ch
	return id, ch
}

func (h *EventHub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Debug stream only; the REST surface itself carries no browser
	// origin, so the default same-origin check is relaxed here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "event stream disabled"})
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id, ch := s.events.subscribe()
	defer s.events.unsubscribe(id)

	go drainClientReads(conn)

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// drainClientReads discards inbound frames so the connection's read
// deadline logic (pings/close frames) keeps working; this endpoint is
// publish-only.
func drainClientReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
