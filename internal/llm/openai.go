package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/hubenschmidt/session-analyzer/internal/metrics"
)

// OpenAIClient generates completions through any OpenAI-compatible chat endpoint.
type OpenAIClient struct {
	client    openai.Client
	model     string
	maxTokens int
}

// NewOpenAIClient creates a chat-completions client. baseURL may be empty for
// the public API.
func NewOpenAIClient(apiKey, baseURL, model string, maxTokens int, httpClient *http.Client) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), model: model, maxTokens: maxTokens}
}

// Generate implements Generator. File parts are rejected.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	text, err := textOnly(req.Parts)
	if err != nil {
		return nil, err
	}
	useModel := c.model
	if req.Model != "" {
		useModel = req.Model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(text))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(useModel),
		Messages: messages,
	}
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai chat returned no choices")
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("llm").Observe(latency.Seconds())
	return &Response{Text: completion.Choices[0].Message.Content, LatencyMs: float64(latency.Milliseconds())}, nil
}
