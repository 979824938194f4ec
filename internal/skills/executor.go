package skills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hubenschmidt/session-analyzer/internal/llm"
	"github.com/hubenschmidt/session-analyzer/internal/metrics"
	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

// Input is everything a skill run may read.
type Input struct {
	SessionID string
	UserID    string
	Turns     []transcript.Turn
	Memory    []string
}

// AppliedSkill records one skill run for the analysis result.
type AppliedSkill struct {
	SkillID      string  `json:"skill_id"`
	Name         string  `json:"name"`
	Category     string  `json:"category"`
	Priority     int     `json:"priority"`
	Confidence   float64 `json:"confidence"`
	Success      bool    `json:"success"`
	ErrorMessage string  `json:"error_message,omitempty"`
	ExecutionMs  int64   `json:"execution_time_ms"`
}

// Outcome is the result of one skill run. Card is nil on failure.
type Outcome struct {
	Applied AppliedSkill
	Card    *Card
	Prompt  string
	Raw     string
}

// ExecutorConfig tunes an Executor.
type ExecutorConfig struct {
	Model       string
	Parallelism int           // 4
	Timeout     time.Duration // per skill, 90s
}

// Executor runs matched skills against a transcript.
type Executor struct {
	gen llm.Generator
	cfg ExecutorConfig
}

// NewExecutor creates an Executor.
func NewExecutor(gen llm.Generator, cfg ExecutorConfig) *Executor {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	return &Executor{gen: gen, cfg: cfg}
}

// ExecuteAll runs every match concurrently. A failing skill yields an outcome
// with Success false and never affects its siblings. Outcomes keep match order.
func (e *Executor) ExecuteAll(ctx context.Context, matches []Matched, in Input) []Outcome {
	outcomes := make([]Outcome, len(matches))
	var g errgroup.Group
	g.SetLimit(e.cfg.Parallelism)
	for i, m := range matches {
		g.Go(func() error {
			outcomes[i] = e.Execute(ctx, m, in)
			return nil
		})
	}
	g.Wait()
	return outcomes
}

// Execute runs one skill.
func (e *Executor) Execute(ctx context.Context, m Matched, in Input) Outcome {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	out := Outcome{Applied: AppliedSkill{
		SkillID:    m.Skill.ID,
		Name:       m.Skill.Name,
		Category:   m.Skill.Category,
		Priority:   m.Skill.Priority,
		Confidence: m.Confidence,
	}}

	var err error
	switch m.Skill.Kind() {
	case KindEmotion:
		err = e.runEmotion(ctx, m.Skill, in, &out)
	case KindMentalHealth:
		err = e.runMentalHealth(ctx, m.Skill, in, &out)
	default:
		err = e.runStrategy(ctx, m.Skill, in, &out)
	}

	elapsed := time.Since(start)
	out.Applied.ExecutionMs = elapsed.Milliseconds()
	metrics.SkillDuration.WithLabelValues(m.Skill.ID).Observe(elapsed.Seconds())

	if err != nil {
		out.Card = nil
		out.Applied.ErrorMessage = err.Error()
		metrics.SkillExecutions.WithLabelValues(m.Skill.ID, "error").Inc()
		slog.Warn("skill failed", "session_id", in.SessionID, "skill_id", m.Skill.ID, "error", err, "ms", elapsed.Milliseconds())
		return out
	}
	out.Applied.Success = true
	metrics.SkillExecutions.WithLabelValues(m.Skill.ID, "ok").Inc()
	slog.Info("skill executed", "session_id", in.SessionID, "skill_id", m.Skill.ID, "kind", out.Card.ContentType, "ms", elapsed.Milliseconds())
	return out
}

func (e *Executor) generate(ctx context.Context, prompt string) (string, error) {
	req := llm.Prompt("", prompt)
	req.Model = e.cfg.Model
	req.JSON = true
	resp, err := e.gen.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (e *Executor) runStrategy(ctx context.Context, s Skill, in Input, out *Outcome) error {
	out.Prompt = BuildPrompt(s, in, transcript.JSON(in.Turns))
	text, err := e.generate(ctx, out.Prompt)
	if err != nil {
		return err
	}
	out.Raw = text
	content, err := ParseStrategy(text, in.Turns)
	if err != nil {
		return err
	}
	out.Card = &Card{SkillID: s.ID, SkillName: s.Name, ContentType: KindStrategy, Strategy: content}
	return nil
}

// BuildPrompt substitutes the run context into the skill template and appends
// the knowledge base. Memory is appended when the template has no slot for it.
func BuildPrompt(s Skill, in Input, transcriptJSON string) string {
	memory := strings.Join(in.Memory, "\n---\n")
	prompt := strings.NewReplacer(
		"{transcript_json}", transcriptJSON,
		"{session_id}", in.SessionID,
		"{user_id}", in.UserID,
		"{memory_context}", memory,
	).Replace(s.Prompt)

	if memory != "" && !strings.Contains(s.Prompt, "{memory_context}") {
		prompt += "\n\n## 历史记忆\n" + memory
	}
	if s.KnowledgeBase != "" {
		prompt += "\n\n## 知识库参考\n" + s.KnowledgeBase
	}
	return prompt
}

var errNoSelfSpeech = errors.New("account owner has no lines in this conversation")

func wrapDecode(kind string, err error) error {
	return fmt.Errorf("%s output: %w", kind, err)
}
