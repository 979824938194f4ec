package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/session-analyzer/internal/scene"
)

func catalog() []Skill {
	return []Skill{
		{ID: "brainstorm_facilitator", Category: "brainstorm", Priority: 60, Enabled: true},
		{ID: "education_coach", Category: "education", Priority: 70, Enabled: true},
		{ID: "emotion_recognition", Category: "emotion", Priority: 50, Enabled: true},
		{ID: "family_harmony", Category: "family", Priority: 80, Enabled: true},
		{ID: "family_legacy", Category: "family", Priority: 10, Enabled: false},
		{ID: "workplace_jungle", Category: "workplace", Priority: 80, Enabled: true},
	}
}

func ids(ms []Matched) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Skill.ID
	}
	return out
}

func TestMatchThresholdAndEmotion(t *testing.T) {
	res := scene.Result{Scenes: []scene.Scene{
		{Category: "workplace", Confidence: 0.9},
		{Category: "family", Confidence: 0.3},
	}}
	got := Match(res, catalog(), MatchConfig{})

	assert.Equal(t, []string{"workplace_jungle", "emotion_recognition"}, ids(got), "0.3 is not above the threshold")
	assert.Equal(t, 0.9, got[1].Confidence)
	assert.Equal(t, "", got[1].Scene)
}

func TestMatchTopThreeScenes(t *testing.T) {
	res := scene.Result{Scenes: []scene.Scene{
		{Category: "brainstorm", Confidence: 0.35},
		{Category: "workplace", Confidence: 0.8},
		{Category: "education", Confidence: 0.5},
		{Category: "family", Confidence: 0.6},
	}}
	got := Match(res, catalog(), MatchConfig{})
	assert.NotContains(t, ids(got), "brainstorm_facilitator")
	assert.Len(t, got, 4)
}

func TestMatchSortsByPriorityThenConfidence(t *testing.T) {
	res := scene.Result{Scenes: []scene.Scene{
		{Category: "family", Confidence: 0.6},
		{Category: "workplace", Confidence: 0.95},
		{Category: "education", Confidence: 0.7},
	}}
	got := Match(res, catalog(), MatchConfig{})
	assert.Equal(t, []string{"workplace_jungle", "family_harmony", "education_coach", "emotion_recognition"}, ids(got))
}

func TestMatchDeduplicatesSkills(t *testing.T) {
	cat := []Skill{{ID: "x", Category: "workplace", Enabled: true}}
	res := scene.Result{Scenes: []scene.Scene{
		{Category: "workplace", Confidence: 0.9},
		{Category: "workplace", Confidence: 0.5},
	}}
	got := Match(res, cat, MatchConfig{})
	require.Len(t, got, 1)
	assert.Equal(t, 0.9, got[0].Confidence, "first occurrence wins")
}

func TestMatchEmptyWhenNothingQualifies(t *testing.T) {
	cat := []Skill{{ID: "w", Category: "workplace", Enabled: true}}
	got := Match(scene.Result{Scenes: []scene.Scene{{Category: "other", Confidence: 0.2}}}, cat, MatchConfig{})
	assert.Empty(t, got)
	assert.False(t, HasScenario(got))
}

func TestMatchTunableThreshold(t *testing.T) {
	res := scene.Result{Scenes: []scene.Scene{{Category: "family", Confidence: 0.4}}}
	got := Match(res, catalog(), MatchConfig{Threshold: 0.5})
	assert.Equal(t, []string{"emotion_recognition"}, ids(got))
}
