package llm

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"google.golang.org/genai"

	"github.com/hubenschmidt/session-analyzer/internal/metrics"
)

// GeminiConfig configures a GeminiClient. HTTPClient carries any relay rewrite.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
}

// GeminiClient serves multimodal generation and the files API used for
// audio uploads through the genai SDK.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int
}

// NewGeminiClient creates a Gemini client against the Developer API.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewPooledHTTPClient(10, 5*time.Minute)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}, nil
}

// Generate runs a single generateContent call.
func (c *GeminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	useModel := c.model
	if req.Model != "" {
		useModel = req.Model
	}
	resp, err := c.client.Models.GenerateContent(ctx, useModel, c.contents(req), c.generateConfig(req))
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "api").Inc()
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("llm").Observe(latency.Seconds())
	return &Response{Text: text, LatencyMs: float64(latency.Milliseconds())}, nil
}

func (c *GeminiClient) contents(req Request) []*genai.Content {
	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.File != nil {
			parts = append(parts, genai.NewPartFromURI(p.File.URI, p.File.MimeType))
			continue
		}
		parts = append(parts, genai.NewPartFromText(p.Text))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func (c *GeminiClient) generateConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	cfg.MaxOutputTokens = int32(maxTokens)
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked prompt: %s", fb.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty text (finish reason %s)", resp.Candidates[0].FinishReason)
	}
	return text, nil
}

// Upload sends a local file through the resumable files API.
func (c *GeminiClient) Upload(ctx context.Context, path, mimeType string) (*File, error) {
	f, err := c.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: filepath.Base(path),
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	return fromGenaiFile(f), nil
}

// File fetches the current state of an uploaded file.
func (c *GeminiClient) File(ctx context.Context, name string) (*File, error) {
	f, err := c.client.Files.Get(ctx, name, nil)
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", name, err)
	}
	return fromGenaiFile(f), nil
}

// Delete removes an uploaded file.
func (c *GeminiClient) Delete(ctx context.Context, name string) error {
	if _, err := c.client.Files.Delete(ctx, name, nil); err != nil {
		return fmt.Errorf("delete file %s: %w", name, err)
	}
	return nil
}

func fromGenaiFile(f *genai.File) *File {
	return &File{
		Name:     f.Name,
		URI:      f.URI,
		MimeType: f.MIMEType,
		State:    string(f.State),
	}
}

// WaitActive polls an uploaded file until it leaves PROCESSING, failing unless
// the final state is ACTIVE or maxWait elapses.
func WaitActive(ctx context.Context, files FileStore, f *File, interval, maxWait time.Duration) (*File, error) {
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	cur := f
	for cur.State == FileProcessing || cur.State == "" || cur.State == "STATE_UNSPECIFIED" {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for %s: %w", f.Name, ctx.Err())
		case <-time.After(interval):
		}
		next, err := files.File(ctx, f.Name)
		if err != nil {
			return nil, fmt.Errorf("poll file state: %w", err)
		}
		cur = next
	}
	if cur.State != FileActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrFileNotActive, cur.Name, cur.State)
	}
	return cur, nil
}
