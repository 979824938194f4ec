package skills

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hubenschmidt/session-analyzer/internal/llm"
	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

// Visual list bounds for a strategy card.
const (
	MinVisuals = 3
	MaxVisuals = 5
)

const (
	defaultSpeaker     = "Speaker_0"
	defaultImagePrompt = "宫崎骏吉卜力动画风格，温暖自然色调。左侧为用户，右侧为对方。"
	backfillImageFmt   = "宫崎骏吉卜力动画风格，温暖自然色调。画面表现推荐策略「%s」：%s。左侧为用户采纳该策略时的自信姿态，右侧为对方反应。"
	backfillFallback   = "该策略的核心建议"
	previewRunes       = 80
)

// ParseStrategy decodes a strategy skill response and repairs its visual list.
func ParseStrategy(text string, turns []transcript.Turn) (*StrategyContent, error) {
	var raw struct {
		Visual     json.RawMessage `json:"visual"`
		Strategies []Strategy      `json:"strategies"`
	}
	if err := llm.DecodeJSON(text, &raw); err != nil {
		return nil, wrapDecode(KindStrategy, err)
	}
	if raw.Strategies == nil {
		return nil, fmt.Errorf("%w: strategies missing", llm.ErrDecode)
	}
	visual, err := decodeVisual(raw.Visual)
	if err != nil {
		return nil, err
	}
	visual, err = RepairVisual(visual, raw.Strategies, turns)
	if err != nil {
		return nil, err
	}
	return &StrategyContent{Visual: visual, Strategies: raw.Strategies}, nil
}

// decodeVisual accepts an array or a single object.
func decodeVisual(raw json.RawMessage) ([]Visual, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: visual missing", llm.ErrDecode)
	}
	switch trimmed[0] {
	case '[':
		var list []Visual
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%w: visual: %v", llm.ErrDecode, err)
		}
		return list, nil
	case '{':
		var one Visual
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("%w: visual: %v", llm.ErrDecode, err)
		}
		return []Visual{one}, nil
	default:
		return nil, fmt.Errorf("%w: visual must be an array or object", llm.ErrDecode)
	}
}

// RepairVisual enforces the card's visual invariants: a non-empty list (seeded
// from the first transcript line when the model gave none), transcript indexes
// clamped into range, speakers filled from the transcript, at least MinVisuals
// entries when strategies can supply them, and at most MaxVisuals entries.
func RepairVisual(visual []Visual, strategies []Strategy, turns []transcript.Turn) ([]Visual, error) {
	if len(visual) == 0 {
		if len(turns) == 0 {
			return nil, errors.New("visual is empty and there is no transcript to seed it from")
		}
		visual = []Visual{{
			TranscriptIndex: 0,
			Speaker:         turns[0].Speaker,
			ImagePrompt:     defaultImagePrompt,
			Emotion:         "未知",
			Context:         "对话开始",
		}}
	}

	for i := range visual {
		visual[i].TranscriptIndex = clampIndex(visual[i].TranscriptIndex, len(turns))
		if visual[i].Speaker == "" && len(turns) > 0 {
			visual[i].Speaker = turns[visual[i].TranscriptIndex].Speaker
		}
	}

	visual = backfill(visual, strategies)
	if len(visual) > MaxVisuals {
		visual = visual[:MaxVisuals]
	}
	return visual, nil
}

func clampIndex(idx, n int) int {
	if n == 0 || idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

// backfill pads visual to MinVisuals with scenes drawn from the strategies,
// cycling when there are fewer strategies than missing entries.
func backfill(visual []Visual, strategies []Strategy) []Visual {
	if len(visual) >= MinVisuals || len(strategies) == 0 {
		return visual
	}
	var pool []Strategy
	for _, s := range strategies {
		if s.ID != "" && s.ID != "s0" {
			pool = append(pool, s)
		}
	}
	if len(pool) == 0 {
		pool = strategies[:min(MinVisuals, len(strategies))]
	}

	for i := 0; len(visual) < MinVisuals; i++ {
		s := pool[i%len(pool)]
		last := visual[len(visual)-1]
		speaker := last.Speaker
		if speaker == "" {
			speaker = defaultSpeaker
		}
		title := s.Title
		if title == "" {
			title = s.Label
		}
		visual = append(visual, Visual{
			TranscriptIndex: last.TranscriptIndex,
			Speaker:         speaker,
			ImagePrompt:     fmt.Sprintf(backfillImageFmt, title, contentPreview(s.Content)),
			Emotion:         "策略建议",
			Context:         "推荐策略: " + title,
		})
	}
	return visual
}

func contentPreview(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return backfillFallback
	}
	if len(r) > previewRunes {
		return string(r[:previewRunes]) + "…"
	}
	return s
}
