package skills

import (
	"sort"
	"strings"
)

// MaxCombinedVisuals caps the merged visual list.
const MaxCombinedVisuals = 5

// Combined is the flattened view older clients read: every strategy card's
// visuals and strategies merged into two lists.
type Combined struct {
	Visual     []Visual   `json:"visual"`
	Strategies []Strategy `json:"strategies"`
}

// Compose merges successful strategy cards in outcome order. Visuals are
// ordered by transcript position and capped; strategies with a title already
// seen are dropped.
func Compose(outcomes []Outcome) Combined {
	combined := Combined{Visual: []Visual{}, Strategies: []Strategy{}}
	titles := make(map[string]bool)
	for _, o := range outcomes {
		if o.Card == nil || o.Card.Strategy == nil {
			continue
		}
		combined.Visual = append(combined.Visual, o.Card.Strategy.Visual...)
		for _, s := range o.Card.Strategy.Strategies {
			key := strings.ToLower(strings.TrimSpace(s.Title))
			if key != "" && titles[key] {
				continue
			}
			titles[key] = true
			combined.Strategies = append(combined.Strategies, s)
		}
	}
	sort.SliceStable(combined.Visual, func(i, j int) bool {
		return combined.Visual[i].TranscriptIndex < combined.Visual[j].TranscriptIndex
	})
	if len(combined.Visual) > MaxCombinedVisuals {
		combined.Visual = combined.Visual[:MaxCombinedVisuals]
	}
	return combined
}

// Cards returns the cards of successful outcomes in outcome order.
func Cards(outcomes []Outcome) []Card {
	cards := make([]Card, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Card != nil {
			cards = append(cards, *o.Card)
		}
	}
	return cards
}

// Applied returns the execution record of every outcome.
func Applied(outcomes []Outcome) []AppliedSkill {
	out := make([]AppliedSkill, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Applied
	}
	return out
}
