package ws

import (
	"sync"

	"github.com/hubenschmidt/session-analyzer/internal/store"
)

// Hub fans session state transitions out to websocket subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan store.Status]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan store.Status]struct{}{}}
}

func (h *Hub) subscribe(sessionID string) chan store.Status {
	ch := make(chan store.Status, 1)
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = map[chan store.Status]struct{}{}
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(sessionID string, ch chan store.Status) {
	h.mu.Lock()
	delete(h.subs[sessionID], ch)
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
	h.mu.Unlock()
}

// Publish delivers st to the session's subscribers without blocking. A slow
// subscriber's pending state is replaced, so it always reads the latest one.
func (h *Hub) Publish(st store.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[st.ID] {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

// Subscribers returns the number of open streams for a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}
