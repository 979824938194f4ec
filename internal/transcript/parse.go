package transcript

import (
	"github.com/hubenschmidt/session-analyzer/internal/llm"
)

// modelOutput is the contract the transcript prompt asks for.
type modelOutput struct {
	MoodScore  *float64   `json:"mood_score" jsonschema:"required,minimum=0,maximum=100"`
	SighCount  int        `json:"sigh_count" jsonschema:"required"`
	LaughCount int        `json:"laugh_count" jsonschema:"required"`
	Summary    string     `json:"summary" jsonschema:"required"`
	Transcript *[]rawTurn `json:"transcript" jsonschema:"required"`
	Risks      []string   `json:"risks"`

	// older shape
	SpeakerCount int        `json:"speaker_count,omitempty"`
	Dialogues    []Dialogue `json:"dialogues,omitempty"`
}

type rawTurn struct {
	Speaker   string `json:"speaker" jsonschema:"required"`
	Text      string `json:"text" jsonschema:"required"`
	Timestamp string `json:"timestamp" jsonschema:"required"`
	IsSelf    bool   `json:"is_me" jsonschema:"required"`
	Chunk     int    `json:"chunk,omitempty"`
}

var outputSchema = llm.Schema[struct {
	MoodScore  float64   `json:"mood_score" jsonschema:"required,minimum=0,maximum=100"`
	SighCount  int       `json:"sigh_count" jsonschema:"required"`
	LaughCount int       `json:"laugh_count" jsonschema:"required"`
	Summary    string    `json:"summary" jsonschema:"required"`
	Transcript []rawTurn `json:"transcript" jsonschema:"required"`
	Risks      []string  `json:"risks"`
}]()

// Parse decodes model text into a Result. starts holds each chunk's start
// second and is used to repair chunk-local timestamps. Output without a
// transcript key is read as the older dialogue shape, empty when dialogues
// are absent too. Only undecodable text is an error.
func Parse(text string, starts []float64) (*Result, error) {
	var out modelOutput
	if err := llm.DecodeJSON(text, &out); err != nil {
		return nil, err
	}

	res := &Result{
		Stats:   Stats{SighCount: out.SighCount, LaughCount: out.LaughCount},
		Summary: out.Summary,
		Risks:   out.Risks,
	}
	if out.MoodScore != nil {
		score := clamp(int(*out.MoodScore+0.5), 0, 100)
		res.MoodScore = &score
	}
	if res.Risks == nil {
		res.Risks = []string{}
	}

	switch {
	case out.Transcript != nil:
		raw := *out.Transcript
		res.Turns = make([]Turn, len(raw))
		chunk := make([]int, len(raw))
		for i, r := range raw {
			res.Turns[i] = Turn{Speaker: r.Speaker, Text: r.Text, Timestamp: r.Timestamp, IsSelf: r.IsSelf}
			chunk[i] = r.Chunk
		}
		offsetChunkTurns(res.Turns, chunk, starts)
		res.Dialogues = make([]Dialogue, len(res.Turns))
		for i, t := range res.Turns {
			res.Dialogues[i] = Dialogue{Speaker: t.Speaker, Content: t.Text}
		}
	default:
		res.Legacy = true
		res.Dialogues = out.Dialogues
		if res.Dialogues == nil {
			res.Dialogues = []Dialogue{}
		}
		res.Turns = make([]Turn, len(res.Dialogues))
		for i, d := range res.Dialogues {
			res.Turns[i] = Turn{Speaker: d.Speaker, Text: d.Content}
		}
	}

	res.SpeakerCount = len(Speakers(res.Turns))
	if out.SpeakerCount > res.SpeakerCount {
		res.SpeakerCount = out.SpeakerCount
	}
	return res, nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
