// Package memory keeps long-term, per-user conversation memories in a vector
// store. Every operation is best effort: a nil or unreachable Service
// degrades to "nothing remembered".
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hubenschmidt/session-analyzer/internal/metrics"
	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

// Kinds of memory records.
const (
	KindConversation = "conversation"
	KindStrategy     = "strategy"
	KindNote         = "note"
)

// Record is one memory to store.
type Record struct {
	UserID     string
	SessionID  string
	Kind       string
	Text       string
	ProfileIDs []string
}

// Config wires a Service.
type Config struct {
	Embedder       Embedder
	Qdrant         *QdrantClient
	Collection     string
	TopK           int
	ScoreThreshold float64
	WriteTimeout   time.Duration
}

// Service stores and searches memories.
type Service struct {
	embedder       Embedder
	qdrant         *QdrantClient
	collection     string
	topK           int
	scoreThreshold float64
	writeTimeout   time.Duration
	pending        sync.WaitGroup
}

// NewService creates a memory Service.
func NewService(cfg Config) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	return &Service{
		embedder:       cfg.Embedder,
		qdrant:         cfg.Qdrant,
		collection:     cfg.Collection,
		topK:           cfg.TopK,
		scoreThreshold: cfg.ScoreThreshold,
		writeTimeout:   cfg.WriteTimeout,
	}
}

// Enabled reports whether memories can be stored at all.
func (s *Service) Enabled() bool {
	return s != nil && s.embedder != nil && s.qdrant != nil
}

// Ensure creates the collection and the user_id index.
func (s *Service) Ensure(ctx context.Context, vectorSize int) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.qdrant.EnsureCollection(ctx, s.collection, vectorSize); err != nil {
		return err
	}
	return s.qdrant.EnsureIndex(ctx, s.collection, "user_id")
}

// Add embeds and stores one record.
func (s *Service) Add(ctx context.Context, rec Record) error {
	if !s.Enabled() {
		return nil
	}
	start := time.Now()
	defer func() { metrics.MemoryDuration.WithLabelValues("add").Observe(time.Since(start).Seconds()) }()

	vector, err := s.embedder.Embed(ctx, rec.Text)
	if err != nil {
		return fmt.Errorf("embed memory: %w", err)
	}
	point := Point{
		ID:     uuid.NewString(),
		Vector: vector,
		Payload: map[string]any{
			"text":        rec.Text,
			"user_id":     rec.UserID,
			"session_id":  rec.SessionID,
			"kind":        rec.Kind,
			"profile_ids": rec.ProfileIDs,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err = s.qdrant.Upsert(ctx, s.collection, []Point{point}); err != nil {
		return fmt.Errorf("store memory: %w", err)
	}
	return nil
}

// AddAsync stores rec in the background. Failures are logged.
func (s *Service) AddAsync(ctx context.Context, rec Record) {
	if !s.Enabled() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
		defer cancel()
		if err := s.Add(ctx, rec); err != nil {
			metrics.Errors.WithLabelValues("memory", "write").Inc()
			slog.Warn("memory write failed", "session_id", rec.SessionID, "kind", rec.Kind, "error", err)
			return
		}
		slog.Info("memory written", "session_id", rec.SessionID, "kind", rec.Kind, "chars", len([]rune(rec.Text)))
	}()
}

// Wait blocks until background writes have finished.
func (s *Service) Wait() {
	if s != nil {
		s.pending.Wait()
	}
}

// Search returns up to limit memory texts of userID closest to query.
// limit <= 0 uses the configured top-k.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]string, error) {
	if !s.Enabled() || strings.TrimSpace(query) == "" || userID == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = s.topK
	}
	start := time.Now()
	defer func() { metrics.MemoryDuration.WithLabelValues("search").Observe(time.Since(start).Seconds()) }()

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.qdrant.Search(ctx, s.collection, vector, limit, s.scoreThreshold, Match{Key: "user_id", Value: userID})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		if text, ok := h.Payload["text"].(string); ok && text != "" {
			texts = append(texts, text)
		}
	}
	return texts, nil
}

// BuildPayload renders the conversation with resolved names followed by the
// summary. Unmapped speakers keep their label.
func BuildPayload(turns []transcript.Turn, summary string, mapping, names map[string]string) string {
	var b strings.Builder
	b.WriteString("对话内容：\n")
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		speaker := t.Speaker
		if speaker == "" {
			speaker = "未知"
		}
		name, ok := names[mapping[speaker]]
		if !ok {
			name = speaker
		}
		b.WriteString(name + ": " + strings.TrimSpace(t.Text))
	}
	b.WriteString("\n\n总结：" + summary)
	return b.String()
}
