// Package transcript turns uploaded audio into a structured, speaker-labelled
// transcript with mood statistics.
package transcript

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Turn is one utterance.
type Turn struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
	IsSelf    bool   `json:"is_me"`
}

// Dialogue is the older per-utterance shape carrying a tone label instead of
// timestamps and the self flag.
type Dialogue struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
	Tone    string `json:"tone,omitempty"`
}

// Stats are the counters reported alongside the transcript.
type Stats struct {
	SighCount  int `json:"sigh_count"`
	LaughCount int `json:"laugh_count"`
}

// Result is the outcome of transcript extraction.
type Result struct {
	MoodScore    *int       `json:"mood_score,omitempty"`
	Stats        Stats      `json:"stats"`
	Summary      string     `json:"summary"`
	Turns        []Turn     `json:"transcript"`
	Dialogues    []Dialogue `json:"dialogues"`
	Risks        []string   `json:"risks"`
	SpeakerCount int        `json:"speaker_count"`
	Legacy       bool       `json:"legacy,omitempty"`
}

// Speakers returns the distinct speaker labels in order of first appearance.
func Speakers(turns []Turn) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range turns {
		if t.Speaker == "" || seen[t.Speaker] {
			continue
		}
		seen[t.Speaker] = true
		out = append(out, t.Speaker)
	}
	return out
}

// SelfSpeaker returns the label carrying the most self-flagged turns, or "".
func SelfSpeaker(turns []Turn) string {
	counts := make(map[string]int)
	for _, t := range turns {
		if t.IsSelf && t.Speaker != "" {
			counts[t.Speaker]++
		}
	}
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] != counts[labels[j]] {
			return counts[labels[i]] > counts[labels[j]]
		}
		return labels[i] < labels[j]
	})
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}

// SelfTurns returns the turns spoken by the account owner.
func SelfTurns(turns []Turn) []Turn {
	var out []Turn
	for _, t := range turns {
		if t.IsSelf {
			out = append(out, t)
		}
	}
	return out
}

// Render formats turns as "[ts] speaker: text" lines, substituting names for
// labels when present.
func Render(turns []Turn, names map[string]string) string {
	var sb strings.Builder
	for _, t := range turns {
		who := t.Speaker
		if n, ok := names[t.Speaker]; ok && n != "" {
			who = n
		}
		if t.Timestamp != "" {
			fmt.Fprintf(&sb, "[%s] ", t.Timestamp)
		}
		fmt.Fprintf(&sb, "%s: %s\n", who, t.Text)
	}
	return sb.String()
}

// JSON encodes turns compactly for prompt substitution.
func JSON(turns []Turn) string {
	if turns == nil {
		turns = []Turn{}
	}
	b, _ := json.Marshal(turns)
	return string(b)
}
