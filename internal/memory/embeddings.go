package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hubenschmidt/session-analyzer/internal/llm"
	"github.com/hubenschmidt/session-analyzer/internal/metrics"
)

// maxEmbedRunes clips inputs to what the embedding models accept.
const maxEmbedRunes = 8000

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbeddingClient requests embeddings from an Ollama server.
type EmbeddingClient struct {
	endpoint string
	model    string
	http     *http.Client
}

// NewEmbeddingClient creates a client for baseURL's /api/embed.
func NewEmbeddingClient(baseURL, model string, poolSize int) *EmbeddingClient {
	return &EmbeddingClient{
		endpoint: baseURL + "/api/embed",
		model:    model,
		http:     llm.NewPooledHTTPClient(poolSize, 30*time.Second),
	}
}

// Embed returns the vector of a single text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, returning vectors in input order.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	start := time.Now()
	defer func() { metrics.EmbeddingDuration.Observe(time.Since(start).Seconds()) }()

	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = clip(t, maxEmbedRunes)
	}
	payload, err := json.Marshal(map[string]any{"model": c.model, "input": inputs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embed: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var out struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embed: decode: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed: got %d vectors for %d inputs", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
