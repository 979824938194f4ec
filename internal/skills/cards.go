package skills

import (
	"encoding/json"
	"fmt"
)

// Visual is one illustrated moment of the conversation.
type Visual struct {
	TranscriptIndex int    `json:"transcript_index"`
	Speaker         string `json:"speaker"`
	ImagePrompt     string `json:"image_prompt"`
	Emotion         string `json:"emotion"`
	Subtext         string `json:"subtext,omitempty"`
	Context         string `json:"context"`
	MyInner         string `json:"my_inner,omitempty"`
	OtherInner      string `json:"other_inner,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
}

// Strategy is one recommended response strategy.
type Strategy struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Emoji   string `json:"emoji,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// StrategyContent is the payload of a strategy card.
type StrategyContent struct {
	Visual     []Visual   `json:"visual"`
	Strategies []Strategy `json:"strategies"`
}

// EmotionInsight is the payload of an emotion card.
type EmotionInsight struct {
	SighCount int    `json:"sigh_count"`
	HahaCount int    `json:"haha_count"`
	CharCount int    `json:"char_count"`
	MoodState string `json:"mood_state"`
	MoodEmoji string `json:"mood_emoji"`
}

// TriadItem rates one leg of the cognitive triad.
type TriadItem struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// CognitiveTriad is the self/world/future view.
type CognitiveTriad struct {
	Self   TriadItem `json:"self"`
	World  TriadItem `json:"world"`
	Future TriadItem `json:"future"`
}

// MentalHealthInsight is the payload of a mental-health card.
type MentalHealthInsight struct {
	DefenseEnergyPct int            `json:"defense_energy_pct"`
	DominantDefense  string         `json:"dominant_defense"`
	StatusAssessment string         `json:"status_assessment"`
	CognitiveTriad   CognitiveTriad `json:"cognitive_triad"`
	Insight          string         `json:"insight"`
	Strategy         string         `json:"strategy"`
	CrisisAlert      bool           `json:"crisis_alert"`
}

// Card is the output of one skill run. Exactly one payload is set, selected
// by ContentType.
type Card struct {
	SkillID      string
	SkillName    string
	ContentType  string
	Strategy     *StrategyContent
	Emotion      *EmotionInsight
	MentalHealth *MentalHealthInsight
}

type cardEnvelope struct {
	SkillID     string          `json:"skill_id"`
	SkillName   string          `json:"skill_name"`
	ContentType string          `json:"content_type"`
	Content     json.RawMessage `json:"content"`
}

// MarshalJSON writes {skill_id, skill_name, content_type, content}.
func (c Card) MarshalJSON() ([]byte, error) {
	var payload any
	switch c.ContentType {
	case KindStrategy:
		payload = c.Strategy
	case KindEmotion:
		payload = c.Emotion
	case KindMentalHealth:
		payload = c.MentalHealth
	default:
		return nil, fmt.Errorf("card %s: unknown content type %q", c.SkillID, c.ContentType)
	}
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cardEnvelope{SkillID: c.SkillID, SkillName: c.SkillName, ContentType: c.ContentType, Content: content})
}

// UnmarshalJSON selects the payload type from content_type.
func (c *Card) UnmarshalJSON(data []byte) error {
	var env cardEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*c = Card{SkillID: env.SkillID, SkillName: env.SkillName, ContentType: env.ContentType}
	switch env.ContentType {
	case KindStrategy:
		c.Strategy = &StrategyContent{}
		return json.Unmarshal(env.Content, c.Strategy)
	case KindEmotion:
		c.Emotion = &EmotionInsight{}
		return json.Unmarshal(env.Content, c.Emotion)
	case KindMentalHealth:
		c.MentalHealth = &MentalHealthInsight{}
		return json.Unmarshal(env.Content, c.MentalHealth)
	default:
		return fmt.Errorf("card %s: unknown content type %q", env.SkillID, env.ContentType)
	}
}
