package session

import (
	"strings"

	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

var (
	tenseTones = []string{"愤怒", "焦虑", "紧张", "angry", "anxious", "tense"}
	calmTones  = []string{"轻松", "平静", "relaxed", "calm"}
)

// EmotionScore prefers the model's mood score and otherwise derives one from
// dialogue tone and risk count: base 70, -20 per tense line, +5 per calm
// line, -10 per risk, clamped to 0..100.
func EmotionScore(res *transcript.Result) int {
	if res.MoodScore != nil {
		return clamp(*res.MoodScore)
	}
	score := 70
	for _, d := range res.Dialogues {
		tone := strings.ToLower(d.Tone)
		switch {
		case contains(tenseTones, tone):
			score -= 20
		case contains(calmTones, tone):
			score += 5
		}
	}
	score -= 10 * len(res.Risks)
	return clamp(score)
}

// Tags labels the session from its risks and dialogue tone. A session with
// nothing notable is "#正常".
func Tags(res *transcript.Result) []string {
	var tags []string
	add := func(tag string) {
		if !contains(tags, tag) {
			tags = append(tags, tag)
		}
	}
	for _, risk := range res.Risks {
		lower := strings.ToLower(risk)
		if strings.Contains(lower, "pua") {
			add("#PUA预警")
		}
		if strings.Contains(risk, "预算") || strings.Contains(lower, "budget") {
			add("#预算")
		}
		if strings.Contains(risk, "争议") || strings.Contains(lower, "dispute") {
			add("#争议")
		}
	}
	for _, d := range res.Dialogues {
		lower := strings.ToLower(d.Tone)
		if strings.Contains(d.Tone, "愤怒") || strings.Contains(lower, "angry") {
			add("#急躁")
		}
		if strings.Contains(d.Tone, "画饼") || strings.Contains(lower, "promise") {
			add("#画饼")
		}
	}
	if len(tags) == 0 {
		return []string{"#正常"}
	}
	return tags
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clamp(n int) int {
	return max(0, min(n, 100))
}
