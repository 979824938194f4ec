package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hubenschmidt/session-analyzer/internal/audio"
	"github.com/hubenschmidt/session-analyzer/internal/identity"
	"github.com/hubenschmidt/session-analyzer/internal/memory"
	"github.com/hubenschmidt/session-analyzer/internal/metrics"
	"github.com/hubenschmidt/session-analyzer/internal/scene"
	"github.com/hubenschmidt/session-analyzer/internal/skills"
	"github.com/hubenschmidt/session-analyzer/internal/store"
	"github.com/hubenschmidt/session-analyzer/internal/trace"
	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

// Store is the persistence the pipeline writes through.
type Store interface {
	StateWriter
	trace.SpanWriter
	UpdateInsights(ctx context.Context, id string, in store.Insights) error
	SaveTranscriptResult(ctx context.Context, tr store.TranscriptResult) error
	UpdateSpeakerMapping(ctx context.Context, sessionID string, mapping map[string]string) error
	UpdateConversationSummary(ctx context.Context, sessionID, summary string) error
	UpsertStrategyAnalysis(ctx context.Context, sa store.StrategyAnalysis) error
}

// Profiles lists a user's contact profiles.
type Profiles interface {
	Profiles(ctx context.Context, userID string) ([]store.Profile, error)
}

// AudioResolver makes the original recording readable on disk.
type AudioResolver interface {
	Resolve(ctx context.Context, ref string) (*audio.Local, error)
}

// Splitter cuts a recording into upload-sized chunks.
type Splitter interface {
	Split(ctx context.Context, path string) (*audio.ChunkSet, error)
	Probe(ctx context.Context, path string) (float64, error)
}

// Transcriber turns chunks into a transcript.
type Transcriber interface {
	Extract(ctx context.Context, chunks []audio.Chunk) (*transcript.Result, error)
}

// SceneClassifier labels the conversation. It never fails.
type SceneClassifier interface {
	Classify(ctx context.Context, turns []transcript.Turn) scene.Result
}

// SkillRunner executes matched skills.
type SkillRunner interface {
	ExecuteAll(ctx context.Context, matches []skills.Matched, in skills.Input) []skills.Outcome
}

// Memory is the long-term memory store. Implementations must tolerate outages.
type Memory interface {
	Search(ctx context.Context, userID, query string, limit int) ([]string, error)
	AddAsync(ctx context.Context, rec memory.Record)
}

// SummaryWriter produces the post-identity conversation summary.
type SummaryWriter interface {
	Summarize(ctx context.Context, turns []transcript.Turn, names map[string]string) (string, error)
}

// Config bounds one session run.
type Config struct {
	TranscriptTimeout time.Duration // 10m
	PipelineTimeout   time.Duration // 20m
	DefaultSkillID    string
	MemoryTopK        int // 5
	Match             skills.MatchConfig
}

// Deps are the collaborators of a Pipeline. Memory, Summary and Notifier may
// be nil.
type Deps struct {
	Store       Store
	Profiles    Profiles
	Audio       AudioResolver
	Splitter    Splitter
	Transcriber Transcriber
	Scenes      SceneClassifier
	Registry    skills.Registry
	Skills      SkillRunner
	Memory      Memory
	Summary     SummaryWriter
	Notifier    Notifier
}

// Job identifies one uploaded recording.
type Job struct {
	SessionID string
	UserID    string
	AudioRef  string // local path or URL
}

// Pipeline runs the full analysis of a session.
type Pipeline struct {
	d   Deps
	cfg Config
}

// NewPipeline creates a Pipeline.
func NewPipeline(d Deps, cfg Config) *Pipeline {
	if cfg.TranscriptTimeout <= 0 {
		cfg.TranscriptTimeout = 10 * time.Minute
	}
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = 20 * time.Minute
	}
	if cfg.MemoryTopK <= 0 {
		cfg.MemoryTopK = 5
	}
	return &Pipeline{d: d, cfg: cfg}
}

// MarkFailed fails a session that never reached the pipeline.
func (p *Pipeline) MarkFailed(ctx context.Context, sessionID string, err error) {
	newMachine(sessionID, p.d.Store, p.d.Notifier).fail(ctx, err)
	metrics.SessionsTotal.WithLabelValues(StatusFailed).Inc()
}

// Run analyzes job to a terminal state. The returned error is the one
// persisted as the session's error message.
func (p *Pipeline) Run(ctx context.Context, job Job) error {
	start := time.Now()
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.PipelineTimeout)
	defer cancel()

	var spans trace.SpanWriter
	if p.d.Store != nil {
		spans = p.d.Store
	}
	tr := trace.New(spans, job.SessionID)
	defer tr.Close()

	m := newMachine(job.SessionID, p.d.Store, p.d.Notifier)
	r := &run{p: p, job: job, m: m, tr: tr}

	err := r.execute(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			err = fmt.Errorf("analysis timed out after %s: %w", p.cfg.PipelineTimeout, err)
		}
		m.fail(ctx, err)
		metrics.SessionsTotal.WithLabelValues(StatusFailed).Inc()
		metrics.Errors.WithLabelValues(m.stage, "fatal").Inc()
		slog.Error("session failed", "session_id", job.SessionID, "stage", m.stage, "error", err)
		return err
	}

	metrics.SessionsTotal.WithLabelValues(StatusArchived).Inc()
	metrics.E2EDuration.Observe(time.Since(start).Seconds())
	slog.Info("session archived", "session_id", job.SessionID, "ms", time.Since(start).Milliseconds())
	return nil
}

// run carries the state of one execution.
type run struct {
	p   *Pipeline
	job Job
	m   *machine
	tr  *trace.Tracer

	result   *transcript.Result
	mapping  map[string]string
	names    map[string]string // profile id -> display name
	summary  string
	duration float64
}

func (r *run) execute(ctx context.Context) error {
	if err := r.m.enter(ctx, StageTranscript); err != nil {
		return fmt.Errorf("persist stage: %w", err)
	}
	if err := r.transcribe(ctx); err != nil {
		return err
	}

	if err := r.m.enter(ctx, StageVoiceprint); err != nil {
		return fmt.Errorf("persist stage: %w", err)
	}
	r.resolveIdentity(ctx)
	r.summarize(ctx)
	r.rememberConversation(ctx)

	if err := r.analyze(ctx); err != nil {
		return err
	}
	if err := r.m.archive(ctx); err != nil {
		return fmt.Errorf("persist archive: %w", err)
	}
	return nil
}

// transcribe resolves, splits and transcribes the recording, then stores the
// transcript. Every failure here is fatal.
func (r *run) transcribe(ctx context.Context) error {
	d := r.p.d
	start := time.Now()

	local, err := d.Audio.Resolve(ctx, r.job.AudioRef)
	if err != nil {
		return fmt.Errorf("resolve audio: %w", err)
	}
	defer local.Release()

	set, err := d.Splitter.Split(ctx, local.Path)
	if err != nil {
		r.tr.Record("split", start, local.Path, "", err)
		return fmt.Errorf("split audio: %w", err)
	}
	defer set.Cleanup()
	r.tr.Record("split", start, local.Path, fmt.Sprintf("%d chunks", len(set.Chunks)), nil)
	r.duration = recordingDuration(ctx, d.Splitter, set.Chunks, local.Path)

	tctx, cancel := context.WithTimeout(ctx, r.p.cfg.TranscriptTimeout)
	defer cancel()
	extractStart := time.Now()
	res, err := d.Transcriber.Extract(tctx, set.Chunks)
	if err != nil {
		r.tr.Record("transcript", extractStart, "", "", err)
		if errors.Is(err, context.DeadlineExceeded) && tctx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("transcript generation timed out after %s", r.p.cfg.TranscriptTimeout)
		}
		return fmt.Errorf("transcript: %w", err)
	}
	r.tr.Record("transcript", extractStart, "", transcript.JSON(res.Turns), nil)
	r.result = res

	err = d.Store.SaveTranscriptResult(ctx, store.TranscriptResult{
		SessionID:  r.job.SessionID,
		Transcript: res.Turns,
		Dialogues:  res.Dialogues,
		Risks:      res.Risks,
		Summary:    res.Summary,
		MoodScore:  res.MoodScore,
		SighCount:  res.Stats.SighCount,
		LaughCount: res.Stats.LaughCount,
	})
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}

	score := EmotionScore(res)
	speakers := res.SpeakerCount
	if speakers == 0 {
		speakers = len(transcript.Speakers(res.Turns))
	}
	if err = d.Store.UpdateInsights(ctx, r.job.SessionID, store.Insights{
		DurationS: r.duration, SpeakerCount: speakers, EmotionScore: &score, Tags: Tags(res),
	}); err != nil {
		return fmt.Errorf("save insights: %w", err)
	}
	metrics.StageDuration.WithLabelValues(StageTranscript).Observe(time.Since(start).Seconds())
	return nil
}

// recordingDuration takes the end of the last chunk, probing unsplit files.
func recordingDuration(ctx context.Context, sp Splitter, chunks []audio.Chunk, path string) float64 {
	if n := len(chunks); n > 0 && chunks[n-1].Span.End > 0 {
		return chunks[n-1].Span.End
	}
	d, err := sp.Probe(ctx, path)
	if err != nil {
		slog.Warn("probe duration failed", "path", path, "error", err)
		return 0
	}
	return d
}

// resolveIdentity maps speakers to profiles. Failures leave the mapping empty.
func (r *run) resolveIdentity(ctx context.Context) {
	start := time.Now()
	r.mapping = map[string]string{}
	r.names = map[string]string{}

	if r.p.d.Profiles == nil {
		return
	}
	profiles, err := r.p.d.Profiles.Profiles(ctx, r.job.UserID)
	if err != nil {
		r.tr.Record("identity", start, r.job.UserID, "", err)
		metrics.Errors.WithLabelValues(StageVoiceprint, "profiles").Inc()
		slog.Warn("identity skipped", "session_id", r.job.SessionID, "error", err)
		return
	}
	ids := store.Identity(profiles)
	r.mapping = identity.Resolve(r.result.Turns, ids)
	r.names = identity.Names(r.mapping, ids)

	if err = r.p.d.Store.UpdateSpeakerMapping(ctx, r.job.SessionID, r.mapping); err != nil {
		metrics.Errors.WithLabelValues(StageVoiceprint, "persist").Inc()
		slog.Warn("speaker mapping not saved", "session_id", r.job.SessionID, "error", err)
	}
	r.tr.Record("identity", start, fmt.Sprintf("%d profiles", len(profiles)), fmt.Sprint(r.mapping), err)
	metrics.StageDuration.WithLabelValues(StageVoiceprint).Observe(time.Since(start).Seconds())
}

// labelNames returns speaker label -> display name for mapped speakers.
func (r *run) labelNames() map[string]string {
	out := make(map[string]string, len(r.mapping))
	for label, id := range r.mapping {
		if name, ok := r.names[id]; ok {
			out[label] = name
		}
	}
	return out
}

func (r *run) summarize(ctx context.Context) {
	if r.p.d.Summary == nil {
		return
	}
	start := time.Now()
	summary, err := r.p.d.Summary.Summarize(ctx, r.result.Turns, r.labelNames())
	r.tr.Record("summary", start, "", summary, err)
	if err != nil {
		metrics.Errors.WithLabelValues("summary", "generate").Inc()
		slog.Warn("conversation summary failed", "session_id", r.job.SessionID, "error", err)
		return
	}
	r.summary = summary
	if err = r.p.d.Store.UpdateConversationSummary(ctx, r.job.SessionID, summary); err != nil {
		slog.Warn("conversation summary not saved", "session_id", r.job.SessionID, "error", err)
	}
}

// rememberConversation writes the conversation to long-term memory once
// speakers, summary and names are all known.
func (r *run) rememberConversation(ctx context.Context) {
	if r.p.d.Memory == nil || len(r.mapping) == 0 || r.summary == "" || len(r.names) == 0 {
		return
	}
	r.p.d.Memory.AddAsync(ctx, memory.Record{
		UserID:     r.job.UserID,
		SessionID:  r.job.SessionID,
		Kind:       memory.KindConversation,
		Text:       memory.BuildPayload(r.result.Turns, r.summary, r.mapping, r.names),
		ProfileIDs: identity.ProfileIDs(r.mapping),
	})
}

// analyze classifies the scene, runs the matching skills and stores their
// cards.
func (r *run) analyze(ctx context.Context) error {
	d := r.p.d
	turns := r.result.Turns

	start := time.Now()
	scenes := d.Scenes.Classify(ctx, turns)
	r.tr.Record("scene", start, "", fmt.Sprintf("%s %v", scenes.Primary, scenes.Scenes), nil)

	matches, err := r.match(ctx, scenes)
	if err != nil {
		return err
	}

	in := skills.Input{
		SessionID: r.job.SessionID,
		UserID:    r.job.UserID,
		Turns:     turns,
		Memory:    r.recall(ctx),
	}
	start = time.Now()
	outcomes := d.Skills.ExecuteAll(ctx, matches, in)
	for _, o := range outcomes {
		var skillErr error
		if !o.Applied.Success {
			skillErr = errors.New(o.Applied.ErrorMessage)
		}
		r.tr.Record("skill:"+o.Applied.SkillID, time.Now().Add(-time.Duration(o.Applied.ExecutionMs)*time.Millisecond), o.Prompt, o.Raw, skillErr)
	}
	metrics.StageDuration.WithLabelValues("skills").Observe(time.Since(start).Seconds())

	combined := skills.Compose(outcomes)
	err = d.Store.UpsertStrategyAnalysis(ctx, store.StrategyAnalysis{
		SessionID:     r.job.SessionID,
		Scenes:        scenes.Scenes,
		PrimaryScene:  scenes.Primary,
		AppliedSkills: skills.Applied(outcomes),
		Cards:         skills.Cards(outcomes),
		Visual:        combined.Visual,
		Strategies:    combined.Strategies,
	})
	if err != nil {
		return fmt.Errorf("save strategy analysis: %w", err)
	}
	r.rememberStrategies(ctx, combined.Strategies)
	return nil
}

// match picks the skills for scenes, falling back to the default skill when
// nothing matched.
func (r *run) match(ctx context.Context, scenes scene.Result) ([]skills.Matched, error) {
	d := r.p.d
	catalog, err := d.Registry.List(ctx, skills.Filter{EnabledOnly: true})
	if err != nil {
		return nil, fmt.Errorf("load skills: %w", err)
	}
	matches := skills.Match(scenes, catalog, r.p.cfg.Match)
	if len(matches) > 0 {
		if !skills.HasScenario(matches) {
			slog.Info("only always-on skills matched", "session_id", r.job.SessionID, "primary_scene", scenes.Primary)
		}
		return matches, nil
	}

	def, err := d.Registry.Get(ctx, r.p.cfg.DefaultSkillID)
	if err != nil {
		return nil, fmt.Errorf("default skill: %w", err)
	}
	slog.Info("no skill matched, using default", "session_id", r.job.SessionID, "skill_id", def.ID, "primary_scene", scenes.Primary)
	return []skills.Matched{{Skill: *def, Confidence: scene.DefaultFallbackConfidence, Scene: scenes.Primary}}, nil
}

// recall searches memory with the conversation summary. Failures yield no
// memories.
func (r *run) recall(ctx context.Context) []string {
	if r.p.d.Memory == nil {
		return nil
	}
	query := r.summary
	if query == "" {
		query = r.result.Summary
	}
	start := time.Now()
	hits, err := r.p.d.Memory.Search(ctx, r.job.UserID, query, r.p.cfg.MemoryTopK)
	r.tr.Record("memory_search", start, query, strings.Join(hits, "\n---\n"), err)
	if err != nil {
		metrics.Errors.WithLabelValues("memory", "search").Inc()
		slog.Warn("memory search failed", "session_id", r.job.SessionID, "error", err)
		return nil
	}
	if len(hits) > r.p.cfg.MemoryTopK {
		hits = hits[:r.p.cfg.MemoryTopK]
	}
	return hits
}

func (r *run) rememberStrategies(ctx context.Context, strategies []skills.Strategy) {
	if r.p.d.Memory == nil || len(strategies) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString("策略建议：")
	for _, s := range strategies {
		b.WriteString("\n- " + s.Title + "：" + s.Content)
	}
	r.p.d.Memory.AddAsync(ctx, memory.Record{
		UserID:     r.job.UserID,
		SessionID:  r.job.SessionID,
		Kind:       memory.KindStrategy,
		Text:       b.String(),
		ProfileIDs: identity.ProfileIDs(r.mapping),
	})
}
