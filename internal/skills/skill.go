// Package skills loads analysis skills from SKILL.md definitions, matches them
// to classified scenes, and runs them against a transcript.
package skills

import "errors"

// ErrSkillNotFound is returned when a skill id is not registered.
var ErrSkillNotFound = errors.New("skill not found")

// Output kinds, one per card variant.
const (
	KindStrategy     = "strategy"
	KindEmotion      = "emotion"
	KindMentalHealth = "mental_health"
)

// CategoryEmotion marks skills that run for every session regardless of scene.
const CategoryEmotion = "emotion"

// DefaultPriority applies when a definition omits priority.
const DefaultPriority = 50

// Skill is one loaded skill definition.
type Skill struct {
	ID           string   `json:"skill_id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Priority     int      `json:"priority"`
	Enabled      bool     `json:"enabled"`
	Version      string   `json:"version"`
	Output       string   `json:"output"`
	Keywords     []string `json:"keywords,omitempty"`
	Scenarios    []string `json:"scenarios,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Author       string   `json:"author,omitempty"`
	Path         string   `json:"skill_path"`

	Prompt        string `json:"-"`
	KnowledgeBase string `json:"-"`
}

// Kind returns the card variant this skill produces.
func (s Skill) Kind() string {
	switch s.Output {
	case KindStrategy, KindEmotion, KindMentalHealth:
		return s.Output
	}
	if s.Category == CategoryEmotion {
		return KindEmotion
	}
	return KindStrategy
}

// AlwaysOn reports whether the skill is added to every match list.
func (s Skill) AlwaysOn() bool {
	return s.Category == CategoryEmotion
}
