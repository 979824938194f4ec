package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hubenschmidt/session-analyzer/internal/audio"
	"github.com/hubenschmidt/session-analyzer/internal/llm"
	"github.com/hubenschmidt/session-analyzer/internal/metrics"
	"github.com/hubenschmidt/session-analyzer/internal/prompts"
)

// Config tunes an Extractor. Zero values take the defaults noted.
type Config struct {
	Model        string
	Attempts     int           // 3
	RetryDelay   time.Duration // 5s
	PollInterval time.Duration // 2s
	MaxWait      time.Duration // 600s
	Uploads      int           // parallel chunk uploads, 3
}

// Extractor uploads recording chunks and asks the model for a structured transcript.
type Extractor struct {
	files llm.FileStore
	gen   llm.Generator
	cfg   Config
}

// NewExtractor creates an Extractor.
func NewExtractor(files llm.FileStore, gen llm.Generator, cfg Config) *Extractor {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 600 * time.Second
	}
	if cfg.Uploads <= 0 {
		cfg.Uploads = 3
	}
	return &Extractor{files: files, gen: gen, cfg: cfg}
}

// Extract transcribes the chunks of one recording. Uploaded files are deleted
// before returning, whatever the outcome.
func (e *Extractor) Extract(ctx context.Context, chunks []audio.Chunk) (*Result, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no audio chunks")
	}
	start := time.Now()

	uploaded := make([]*llm.File, len(chunks))
	defer e.deleteAll(ctx, uploaded)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Uploads)
	for i, c := range chunks {
		g.Go(func() error {
			f, err := e.upload(gctx, c)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", c.Index, err)
			}
			uploaded[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.Errors.WithLabelValues("transcript", "upload").Inc()
		return nil, err
	}

	req := llm.Request{
		Model:  e.cfg.Model,
		System: prompts.TranscriptSystem,
		Parts:  []llm.Part{llm.TextPart(buildPrompt(chunks))},
		JSON:   true,
	}
	for _, f := range uploaded {
		req.Parts = append(req.Parts, llm.FilePart(f))
	}

	resp, err := llm.Retry(ctx, "generate transcript", e.cfg.Attempts, e.cfg.RetryDelay, func(ctx context.Context) (*llm.Response, error) {
		return e.gen.Generate(ctx, req)
	})
	if err != nil {
		metrics.Errors.WithLabelValues("transcript", "generate").Inc()
		return nil, err
	}

	res, err := Parse(resp.Text, chunkStarts(chunks))
	if err != nil {
		metrics.Errors.WithLabelValues("transcript", "decode").Inc()
		return nil, err
	}

	metrics.StageDuration.WithLabelValues("transcript").Observe(time.Since(start).Seconds())
	slog.Info("transcript extracted", "chunks", len(chunks), "turns", len(res.Turns), "legacy", res.Legacy, "ms", time.Since(start).Milliseconds())
	return res, nil
}

func (e *Extractor) upload(ctx context.Context, c audio.Chunk) (*llm.File, error) {
	f, err := llm.Retry(ctx, "upload audio", e.cfg.Attempts, e.cfg.RetryDelay, func(ctx context.Context) (*llm.File, error) {
		return e.files.Upload(ctx, c.Path, c.MimeType)
	})
	if err != nil {
		return nil, err
	}
	active, err := llm.WaitActive(ctx, e.files, f, e.cfg.PollInterval, e.cfg.MaxWait)
	if err != nil {
		e.deleteAll(ctx, []*llm.File{f})
		return nil, err
	}
	return active, nil
}

func (e *Extractor) deleteAll(ctx context.Context, files []*llm.File) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	for _, f := range files {
		if f == nil {
			continue
		}
		if err := e.files.Delete(ctx, f.Name); err != nil {
			slog.Warn("delete uploaded audio", "file", f.Name, "error", err)
		}
	}
}

func chunkStarts(chunks []audio.Chunk) []float64 {
	starts := make([]float64, len(chunks))
	for i, c := range chunks {
		starts[i] = c.Span.Start
	}
	return starts
}

func buildPrompt(chunks []audio.Chunk) string {
	p := prompts.Fill(prompts.Transcript, map[string]string{"SCHEMA": outputSchema})
	if len(chunks) < 2 {
		return p
	}
	var offsets strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&offsets, "- 片段 %d：从 %s 开始\n", i+1, FormatTimestamp(c.Span.Start))
	}
	return p + prompts.Fill(prompts.ChunkOffsets, map[string]string{"OFFSETS": offsets.String()})
}
