package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

func TestEmotionScorePrefersModelScore(t *testing.T) {
	mood := 130
	assert.Equal(t, 100, EmotionScore(&transcript.Result{MoodScore: &mood, Risks: []string{"a"}}))
}

func TestEmotionScoreFromTone(t *testing.T) {
	res := &transcript.Result{
		Dialogues: []transcript.Dialogue{{Tone: "愤怒"}, {Tone: "Calm"}, {Tone: "平静"}},
		Risks:     []string{"画饼"},
	}
	assert.Equal(t, 70-20+5+5-10, EmotionScore(res))

	res = &transcript.Result{Risks: make([]string, 9)}
	assert.Equal(t, 0, EmotionScore(res))
}

func TestTags(t *testing.T) {
	res := &transcript.Result{
		Risks:     []string{"疑似PUA话术", "预算超支", "Budget cut"},
		Dialogues: []transcript.Dialogue{{Tone: "angry"}, {Tone: "画饼"}},
	}
	assert.Equal(t, []string{"#PUA预警", "#预算", "#急躁", "#画饼"}, Tags(res))
	assert.Equal(t, []string{"#正常"}, Tags(&transcript.Result{}))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "错误", truncateRunes("错误信息", 2))
	assert.Equal(t, "ok", truncateRunes("ok", 2))
}
