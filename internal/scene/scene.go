// Package scene classifies a conversation into the fixed scene taxonomy.
package scene

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hubenschmidt/session-analyzer/internal/llm"
	"github.com/hubenschmidt/session-analyzer/internal/metrics"
	"github.com/hubenschmidt/session-analyzer/internal/prompts"
	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

// Scene categories.
const (
	Workplace  = "workplace"
	Family     = "family"
	Education  = "education"
	Brainstorm = "brainstorm"
	Other      = "other"
)

// Categories lists the taxonomy in display order.
var Categories = []string{Workplace, Family, Education, Brainstorm, Other}

// Defaults applied when tuning is left empty.
const (
	DefaultKeywordConfidence  = 0.6
	DefaultFallbackConfidence = 0.5
)

// Scene is one candidate classification.
type Scene struct {
	Category   string  `json:"category" jsonschema:"required,enum=workplace,enum=family,enum=education,enum=brainstorm,enum=other"`
	Confidence float64 `json:"confidence" jsonschema:"required,minimum=0,maximum=1"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Result holds every candidate scene and the primary one.
type Result struct {
	Scenes  []Scene `json:"scenes" jsonschema:"required"`
	Primary string  `json:"primary_scene"`
}

// Has reports whether the model listed category at any confidence.
func (r Result) Has(category string) bool {
	for _, s := range r.Scenes {
		if s.Category == category {
			return true
		}
	}
	return false
}

// Confidence returns the confidence recorded for category, or 0.
func (r Result) Confidence(category string) float64 {
	for _, s := range r.Scenes {
		if s.Category == category {
			return s.Confidence
		}
	}
	return 0
}

var outputSchema = llm.Schema[Result]()

// Classifier asks the model for scene categories and supplements the answer
// with keyword hits.
type Classifier struct {
	gen                llm.Generator
	model              string
	keywordConfidence  float64
	fallbackConfidence float64
}

// Config tunes a Classifier.
type Config struct {
	Model              string
	KeywordConfidence  float64
	FallbackConfidence float64
}

// NewClassifier creates a Classifier.
func NewClassifier(gen llm.Generator, cfg Config) *Classifier {
	if cfg.KeywordConfidence <= 0 {
		cfg.KeywordConfidence = DefaultKeywordConfidence
	}
	if cfg.FallbackConfidence <= 0 {
		cfg.FallbackConfidence = DefaultFallbackConfidence
	}
	return &Classifier{
		gen:                gen,
		model:              cfg.Model,
		keywordConfidence:  cfg.KeywordConfidence,
		fallbackConfidence: cfg.FallbackConfidence,
	}
}

// Classify never fails: model or decode errors degrade to a single "other"
// scene, which keyword supplementation may still extend.
func (c *Classifier) Classify(ctx context.Context, turns []transcript.Turn) Result {
	start := time.Now()
	res, err := c.ask(ctx, turns)
	if err != nil {
		metrics.Errors.WithLabelValues("scene", "classify").Inc()
		slog.Warn("scene classification failed, using fallback", "error", err)
		res = Result{Scenes: []Scene{{Category: Other, Confidence: c.fallbackConfidence, Reasoning: "classification unavailable"}}, Primary: Other}
	}
	res = Supplement(res, turns, c.keywordConfidence)
	metrics.StageDuration.WithLabelValues("scene").Observe(time.Since(start).Seconds())
	return res
}

func (c *Classifier) ask(ctx context.Context, turns []transcript.Turn) (Result, error) {
	req := llm.Prompt(prompts.SceneSystem, prompts.Fill(prompts.Scene, map[string]string{
		"TRANSCRIPT": transcript.Render(turns, nil),
		"SCHEMA":     outputSchema,
	}))
	req.Model = c.model
	req.JSON = true

	resp, err := c.gen.Generate(ctx, req)
	if err != nil {
		return Result{}, err
	}
	var res Result
	if err = llm.DecodeJSON(resp.Text, &res); err != nil {
		return Result{}, err
	}
	return normalize(res), nil
}

// normalize drops unknown categories, clamps confidences and fills a missing
// primary with the most confident scene.
func normalize(res Result) Result {
	valid := make([]Scene, 0, len(res.Scenes))
	for _, s := range res.Scenes {
		s.Category = strings.ToLower(strings.TrimSpace(s.Category))
		if !isCategory(s.Category) {
			continue
		}
		s.Confidence = max(0, min(s.Confidence, 1))
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		valid = []Scene{{Category: Other, Confidence: DefaultFallbackConfidence}}
	}
	res.Scenes = valid
	if !isCategory(res.Primary) {
		res.Primary = top(valid)
	}
	return res
}

func top(scenes []Scene) string {
	if len(scenes) == 0 {
		return Other
	}
	best := scenes[0]
	for _, s := range scenes[1:] {
		if s.Confidence > best.Confidence {
			best = s
		}
	}
	return best.Category
}

func isCategory(c string) bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Sorted returns scenes by descending confidence.
func Sorted(scenes []Scene) []Scene {
	out := append([]Scene(nil), scenes...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}
