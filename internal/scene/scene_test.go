package scene

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/session-analyzer/internal/llm"
	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

func reply(text string, err error) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		if err != nil {
			return nil, err
		}
		return &llm.Response{Text: text}, nil
	})
}

func turns(lines ...string) []transcript.Turn {
	out := make([]transcript.Turn, len(lines))
	for i, l := range lines {
		out[i] = transcript.Turn{Speaker: "Speaker_0", Text: l}
	}
	return out
}

func TestClassifyUsesModelAnswer(t *testing.T) {
	c := NewClassifier(reply(`{"scenes":[{"category":"education","confidence":0.8},{"category":"family","confidence":0.4}],"primary_scene":"education"}`, nil), Config{})
	res := c.Classify(context.Background(), turns("作业写完了吗"))

	assert.Equal(t, Education, res.Primary)
	assert.Equal(t, 0.8, res.Confidence(Education))
	assert.Equal(t, 0.4, res.Confidence(Family))
}

func TestClassifyFillsMissingPrimary(t *testing.T) {
	c := NewClassifier(reply("```json\n{\"scenes\":[{\"category\":\"brainstorm\",\"confidence\":0.3},{\"category\":\"workplace\",\"confidence\":0.9}]}\n```", nil), Config{})
	res := c.Classify(context.Background(), turns("我们想想方案"))
	assert.Equal(t, Workplace, res.Primary)
}

func TestClassifyDropsUnknownCategories(t *testing.T) {
	c := NewClassifier(reply(`{"scenes":[{"category":"dating","confidence":0.9}],"primary_scene":"dating"}`, nil), Config{})
	res := c.Classify(context.Background(), turns("hello"))
	require.Len(t, res.Scenes, 1)
	assert.Equal(t, Other, res.Scenes[0].Category)
	assert.Equal(t, Other, res.Primary)
}

func TestClassifyFallsBackOnModelError(t *testing.T) {
	c := NewClassifier(reply("", errors.New("timeout")), Config{})
	res := c.Classify(context.Background(), turns("今天天气不错"))

	require.Len(t, res.Scenes, 1)
	assert.Equal(t, Other, res.Primary)
	assert.Equal(t, DefaultFallbackConfidence, res.Scenes[0].Confidence)
}

func TestClassifyFallsBackOnGarbage(t *testing.T) {
	c := NewClassifier(reply("I think it's about work", nil), Config{})
	res := c.Classify(context.Background(), turns("随便聊聊"))
	assert.Equal(t, Other, res.Primary)
}

func TestKeywordSupplementAddsWorkplace(t *testing.T) {
	c := NewClassifier(reply(`{"scenes":[{"category":"other","confidence":0.7}],"primary_scene":"other"}`, nil), Config{})
	res := c.Classify(context.Background(), turns("经理说明天要交报告"))

	assert.Equal(t, 0.6, res.Confidence(Workplace))
	assert.Equal(t, Other, res.Primary, "supplementation never changes the primary scene")
}

func TestKeywordSupplementKeepsModelConfidence(t *testing.T) {
	res := Supplement(Result{Scenes: []Scene{{Category: Family, Confidence: 0.95}}}, turns("妈妈做饭了"), 0.6)
	require.Len(t, res.Scenes, 1)
	assert.Equal(t, 0.95, res.Confidence(Family))
}

func TestKeywordSupplementSkipsZeroConfidenceEntry(t *testing.T) {
	res := Supplement(Result{Scenes: []Scene{{Category: Workplace, Confidence: 0}}}, turns("老板让我加班"), 0.6)
	require.Len(t, res.Scenes, 1)
	assert.True(t, res.Has(Workplace))
	assert.Zero(t, res.Confidence(Workplace))
}

func TestKeywordSupplementOnFallbackPath(t *testing.T) {
	c := NewClassifier(reply("", errors.New("down")), Config{KeywordConfidence: 0.65})
	res := c.Classify(context.Background(), turns("老公你几点回家", "老板让我加班"))
	assert.Equal(t, 0.65, res.Confidence(Family))
	assert.Equal(t, 0.65, res.Confidence(Workplace))
}

func TestSorted(t *testing.T) {
	s := Sorted([]Scene{{Category: Family, Confidence: 0.2}, {Category: Workplace, Confidence: 0.9}})
	assert.Equal(t, Workplace, s[0].Category)
}
