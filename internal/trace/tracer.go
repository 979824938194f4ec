// Package trace records the timed stages of a session analysis.
package trace

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hubenschmidt/session-analyzer/internal/store"
)

const maxIOLen = 500

// Span statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// SpanWriter persists spans.
type SpanWriter interface {
	CreateSpan(ctx context.Context, sp store.Span) error
}

// Tracer writes spans asynchronously via a buffered channel.
// All methods are nil-safe (no-op on nil receiver).
type Tracer struct {
	w         SpanWriter
	sessionID string
	ch        chan store.Span
	done      chan struct{}
}

// New creates a tracer bound to a session. Must call Close when done.
// A nil writer yields a nil Tracer.
func New(w SpanWriter, sessionID string) *Tracer {
	if w == nil {
		return nil
	}
	t := &Tracer{
		w:         w,
		sessionID: sessionID,
		ch:        make(chan store.Span, 64),
		done:      make(chan struct{}),
	}
	go t.drain()
	return t
}

func (t *Tracer) drain() {
	defer close(t.done)
	for sp := range t.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := t.w.CreateSpan(ctx, sp); err != nil {
			slog.Warn("trace write failed", "session_id", sp.SessionID, "span", sp.Name, "error", err)
		}
		cancel()
	}
}

// Record stores a finished span started at start.
func (t *Tracer) Record(name string, start time.Time, input, output string, err error) {
	if t == nil {
		return
	}
	sp := store.Span{
		ID:         uuid.NewString(),
		SessionID:  t.sessionID,
		Name:       name,
		StartedAt:  start,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
		Input:      truncate(input, maxIOLen),
		Output:     truncate(output, maxIOLen),
		Status:     StatusOK,
	}
	if err != nil {
		sp.Status = StatusError
		sp.Error = truncate(err.Error(), maxIOLen)
	}
	t.ch <- sp
}

// Close drains pending writes and shuts down the background goroutine.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	close(t.ch)
	<-t.done
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
