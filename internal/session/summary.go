package session

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hubenschmidt/session-analyzer/internal/llm"
	"github.com/hubenschmidt/session-analyzer/internal/prompts"
	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

// Summarizer writes the who-talked-to-whom summary once speakers are resolved.
type Summarizer struct {
	gen   llm.Generator
	model string
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(gen llm.Generator, model string) *Summarizer {
	return &Summarizer{gen: gen, model: model}
}

// Summarize describes the conversation using names (speaker label -> display
// name) for resolved speakers.
func (s *Summarizer) Summarize(ctx context.Context, turns []transcript.Turn, names map[string]string) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}
	labels := make([]string, 0, len(names))
	for label := range names {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	var who strings.Builder
	for _, label := range labels {
		fmt.Fprintf(&who, "- %s：%s\n", label, names[label])
	}
	if who.Len() == 0 {
		who.WriteString("（无）\n")
	}

	req := llm.Prompt(prompts.SummarySystem, prompts.Fill(prompts.Summary, map[string]string{
		"NAMES":      strings.TrimRight(who.String(), "\n"),
		"TRANSCRIPT": transcript.Render(turns, names),
	}))
	req.Model = s.model
	resp, err := s.gen.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(llm.StripFences(resp.Text)), nil
}
