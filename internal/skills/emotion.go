package skills

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hubenschmidt/session-analyzer/internal/llm"
	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

// DefaultMood is used when the owner said nothing or the model answer is unusable.
const DefaultMood = "平常心"

// moods is the label vocabulary in match order.
var moods = []string{"高兴", "焦虑", "平常心", "亢奋", "悲伤"}

// MoodEmoji maps the mood vocabulary to display emoji.
var MoodEmoji = map[string]string{
	"高兴":  "😊",
	"焦虑":  "😰",
	"平常心": "😐",
	"亢奋":  "🤩",
	"悲伤":  "😢",
}

var (
	sighRe = regexp.MustCompile(`唉|哎|唉声叹气|唉呀|哎呦|哎哟`)
	hahaRe = regexp.MustCompile(`哈哈+|呵呵+|嘿哈|嘻哈`)
)

// CountExpressions counts sighs, laughs and non-whitespace characters over the
// owner's lines only.
func CountExpressions(turns []transcript.Turn) EmotionInsight {
	var ins EmotionInsight
	for _, t := range transcript.SelfTurns(turns) {
		ins.SighCount += len(sighRe.FindAllStringIndex(t.Text, -1))
		ins.HahaCount += len(hahaRe.FindAllStringIndex(t.Text, -1))
		for _, r := range t.Text {
			if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
				ins.CharCount++
			}
		}
	}
	return ins
}

// runEmotion counts expressions locally and asks the model for a mood label
// using only the owner's lines. A model failure keeps the counts and falls
// back to DefaultMood.
func (e *Executor) runEmotion(ctx context.Context, s Skill, in Input, out *Outcome) error {
	ins := CountExpressions(in.Turns)
	ins.MoodState = DefaultMood

	self := transcript.SelfTurns(in.Turns)
	if len(self) > 0 && strings.TrimSpace(s.Prompt) != "" {
		out.Prompt = BuildPrompt(s, in, transcript.JSON(self))
		text, err := e.generate(ctx, out.Prompt)
		out.Raw = text
		switch {
		case err != nil:
			slog.Warn("emotion mood lookup failed", "session_id", in.SessionID, "error", err)
		default:
			var reply struct {
				MoodState string `json:"mood_state"`
			}
			if llm.DecodeJSON(text, &reply) == nil {
				ins.MoodState = normalizeMood(reply.MoodState)
			}
		}
	}
	ins.MoodEmoji = MoodEmoji[ins.MoodState]

	out.Card = &Card{SkillID: s.ID, SkillName: s.Name, ContentType: KindEmotion, Emotion: &ins}
	return nil
}

// normalizeMood maps a model reply onto the vocabulary. An exact label wins,
// otherwise the label appearing earliest in the reply, otherwise DefaultMood.
func normalizeMood(m string) string {
	m = strings.TrimSpace(m)
	if _, ok := MoodEmoji[m]; ok {
		return m
	}
	best, at := DefaultMood, -1
	for _, k := range moods {
		if i := strings.Index(m, k); i >= 0 && (at < 0 || i < at) {
			best, at = k, i
		}
	}
	return best
}
