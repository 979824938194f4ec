package skills

import (
	"sort"

	"github.com/hubenschmidt/session-analyzer/internal/scene"
)

// MatchConfig tunes Match. Zero values take the defaults.
type MatchConfig struct {
	Threshold         float64 // scenes must score strictly above this; 0.3
	MaxScenes         int     // 3
	EmotionConfidence float64 // 0.9
}

func (c MatchConfig) withDefaults() MatchConfig {
	if c.Threshold <= 0 {
		c.Threshold = 0.3
	}
	if c.MaxScenes <= 0 {
		c.MaxScenes = 3
	}
	if c.EmotionConfidence <= 0 {
		c.EmotionConfidence = 0.9
	}
	return c
}

// Matched is a skill selected for a session with the confidence it was
// selected at.
type Matched struct {
	Skill      Skill   `json:"skill"`
	Confidence float64 `json:"confidence"`
	Scene      string  `json:"scene,omitempty"`
}

// Match picks the enabled skills for the top scenes above threshold, adds
// the always-on emotion skills, keeps the first occurrence of each skill and
// orders by priority then confidence, both descending. An empty result means
// the caller should fall back to its default skill.
func Match(res scene.Result, catalog []Skill, cfg MatchConfig) []Matched {
	cfg = cfg.withDefaults()

	var picked []scene.Scene
	for _, s := range scene.Sorted(res.Scenes) {
		if s.Confidence <= cfg.Threshold {
			continue
		}
		picked = append(picked, s)
		if len(picked) == cfg.MaxScenes {
			break
		}
	}

	var out []Matched
	seen := make(map[string]bool)
	add := func(m Matched) {
		if seen[m.Skill.ID] {
			return
		}
		seen[m.Skill.ID] = true
		out = append(out, m)
	}

	for _, sc := range picked {
		for _, sk := range catalog {
			if sk.Enabled && !sk.AlwaysOn() && sk.Category == sc.Category {
				add(Matched{Skill: sk, Confidence: sc.Confidence, Scene: sc.Category})
			}
		}
	}
	for _, sk := range catalog {
		if sk.Enabled && sk.AlwaysOn() {
			add(Matched{Skill: sk, Confidence: cfg.EmotionConfidence})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Skill.Priority != out[j].Skill.Priority {
			return out[i].Skill.Priority > out[j].Skill.Priority
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// HasScenario reports whether any match came from a scene rather than the
// always-on set.
func HasScenario(matches []Matched) bool {
	for _, m := range matches {
		if m.Scene != "" {
			return true
		}
	}
	return false
}
