package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hubenschmidt/session-analyzer/internal/scene"
	"github.com/hubenschmidt/session-analyzer/internal/skills"
	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

// Session is one uploaded recording and its analysis lifecycle.
type Session struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Title         string     `json:"title"`
	Status        string     `json:"status"`
	AnalysisStage string     `json:"analysis_stage"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	AudioURL      string     `json:"audio_url,omitempty"`
	AudioPath     string     `json:"-"`
	DurationS     float64    `json:"duration_s"`
	SpeakerCount  int        `json:"speaker_count"`
	EmotionScore  *int       `json:"emotion_score,omitempty"`
	Tags          []string   `json:"tags"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Status is the polling view of a session.
type Status struct {
	ID            string    `json:"session_id"`
	Status        string    `json:"status"`
	AnalysisStage string    `json:"analysis_stage"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Insights are the session-level numbers derived from the transcript.
type Insights struct {
	DurationS    float64
	SpeakerCount int
	EmotionScore *int
	Tags         []string
}

// TranscriptResult is the persisted transcript of a session.
type TranscriptResult struct {
	SessionID           string                `json:"session_id"`
	Transcript          []transcript.Turn     `json:"transcript"`
	Dialogues           []transcript.Dialogue `json:"dialogues"`
	Risks               []string              `json:"risks"`
	Summary             string                `json:"summary"`
	MoodScore           *int                  `json:"mood_score,omitempty"`
	SighCount           int                   `json:"sigh_count"`
	LaughCount          int                   `json:"laugh_count"`
	SpeakerMapping      map[string]string     `json:"speaker_mapping"`
	ConversationSummary string                `json:"conversation_summary"`
	CreatedAt           time.Time             `json:"created_at"`
}

// StrategyAnalysis is the persisted skill output of a session.
type StrategyAnalysis struct {
	SessionID     string                `json:"session_id"`
	Scenes        []scene.Scene         `json:"scenes"`
	PrimaryScene  string                `json:"primary_scene"`
	AppliedSkills []skills.AppliedSkill `json:"applied_skills"`
	Cards         []skills.Card         `json:"skill_cards"`
	Visual        []skills.Visual       `json:"visual"`
	Strategies    []skills.Strategy     `json:"strategies"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Profile is a contact a speaker may resolve to.
type Profile struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Relationship string    `json:"relationship"`
	Notes        string    `json:"notes,omitempty"`
	AudioURL     string    `json:"audio_url,omitempty"`
	VoiceprintID string    `json:"voiceprint_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Span is one timed stage of a session analysis.
type Span struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

// toJSON encodes v for a JSON column; nil slices and maps become empty.
func toJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func fromJSON(col, raw string, dst any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode %s: %w", col, err)
	}
	return nil
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func intPtr(n *int64) *int {
	if n == nil {
		return nil
	}
	v := int(*n)
	return &v
}
