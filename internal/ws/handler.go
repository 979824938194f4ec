// Package ws streams session progress to websocket clients.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/session-analyzer/internal/session"
	"github.com/hubenschmidt/session-analyzer/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// StatusSource reads the persisted poller fields of a session.
type StatusSource interface {
	GetStatus(ctx context.Context, id string) (*store.Status, error)
}

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	Hub           *Hub
	Status        StatusSource
	MaxConcurrent int
}

// Handler serves GET /ws/sessions/{id}: the current state first, then every
// transition until the session is archived or failed.
type Handler struct {
	cfg HandlerConfig
	sem chan struct{}
}

// NewHandler creates a Handler with a concurrency limit.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 100
	}
	return &Handler{cfg: cfg, sem: make(chan struct{}, maxConc)}
}

// ServeHTTP upgrades the connection and streams states.
// Returns 503 if at max concurrent stream capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	// subscribe before reading so a transition persisted after the read is still delivered
	ch := h.cfg.Hub.subscribe(id)
	defer h.cfg.Hub.unsubscribe(id, ch)

	current, err := h.cfg.Status.GetStatus(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.stream(conn, *current, ch)
}

func (h *Handler) stream(conn *websocket.Conn, current store.Status, ch <-chan store.Status) {
	closed := make(chan struct{})
	go readPump(conn, closed)

	if !send(conn, current) || session.Terminal(current.Status) {
		closeNormal(conn)
		return
	}

	last := current
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case st := <-ch:
			if progress(st) <= progress(last) {
				continue
			}
			last = st
			if !send(conn, st) || session.Terminal(st.Status) {
				closeNormal(conn)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// progress orders states along the state machine. A state at or behind the
// last one sent is a duplicate of what the client already has.
func progress(st store.Status) int {
	switch {
	case session.Terminal(st.Status):
		return 3
	case st.AnalysisStage == session.StageVoiceprint:
		return 2
	case st.AnalysisStage == session.StageTranscript:
		return 1
	}
	return 0
}

// readPump discards client frames and reports when the peer goes away.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func send(conn *websocket.Conn, st store.Status) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(st); err != nil {
		slog.Info("status stream closed", "session_id", st.ID, "error", err)
		return false
	}
	return true
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
