// Package session runs the analysis of one uploaded recording and persists
// every transition of its state machine as it happens.
package session

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hubenschmidt/session-analyzer/internal/store"
)

// Statuses.
const (
	StatusAnalyzing = "analyzing"
	StatusArchived  = "archived"
	StatusFailed    = "failed"
)

// Stages reported while a session is analyzing.
const (
	StageTranscript = "gemini_analysis"
	StageVoiceprint = "voiceprint"
)

const maxErrorRunes = 1000

// Terminal reports whether status ends the state machine.
func Terminal(status string) bool {
	return status == StatusArchived || status == StatusFailed
}

// Notifier receives every persisted transition.
type Notifier interface {
	Publish(st store.Status)
}

// StateWriter persists the poller fields.
type StateWriter interface {
	SetState(ctx context.Context, id, status, stage, errMsg string) error
}

// machine writes transitions for one session through to the store first and
// the notifier second.
type machine struct {
	id       string
	w        StateWriter
	notifier Notifier
	status   string
	stage    string
}

func newMachine(id string, w StateWriter, n Notifier) *machine {
	return &machine{id: id, w: w, notifier: n, status: StatusAnalyzing}
}

// enter moves to stage while analyzing.
func (m *machine) enter(ctx context.Context, stage string) error {
	return m.set(ctx, StatusAnalyzing, stage, "")
}

func (m *machine) archive(ctx context.Context) error {
	return m.set(ctx, StatusArchived, m.stage, "")
}

// fail records err. It uses its own deadline so an expired pipeline context
// still lands the failure.
func (m *machine) fail(ctx context.Context, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if setErr := m.set(ctx, StatusFailed, m.stage, truncateRunes(err.Error(), maxErrorRunes)); setErr != nil {
		slog.Error("persist failure state", "session_id", m.id, "error", setErr)
	}
}

func (m *machine) set(ctx context.Context, status, stage, errMsg string) error {
	if Terminal(m.status) {
		return nil
	}
	if err := m.w.SetState(ctx, m.id, status, stage, errMsg); err != nil {
		return err
	}
	m.status, m.stage = status, stage
	slog.Info("session transition", "session_id", m.id, "status", status, "stage", stage)
	if m.notifier != nil {
		m.notifier.Publish(store.Status{
			ID: m.id, Status: status, AnalysisStage: stage, ErrorMessage: errMsg, UpdatedAt: time.Now().UTC(),
		})
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
