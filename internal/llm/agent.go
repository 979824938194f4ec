package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/hubenschmidt/session-analyzer/internal/metrics"
)

// AgentClient runs single-turn generations through the openai-agents-go runner,
// which lets any provider registered with the SDK back a pipeline stage.
type AgentClient struct {
	provider  agents.ModelProvider
	model     string
	maxTokens int
}

// NewAgentClient binds a model provider and default model.
func NewAgentClient(provider agents.ModelProvider, model string, maxTokens int) *AgentClient {
	return &AgentClient{provider: provider, model: model, maxTokens: maxTokens}
}

// NewAgentProvider builds an OpenAI-compatible provider for the agents SDK.
func NewAgentProvider(apiKey, baseURL string) agents.ModelProvider {
	params := agents.OpenAIProviderParams{
		APIKey:       param.NewOpt(apiKey),
		UseResponses: param.NewOpt(false),
	}
	if baseURL != "" {
		params.BaseURL = param.NewOpt(baseURL)
	}
	return agents.NewOpenAIProvider(params)
}

// Generate implements Generator. File parts are rejected.
func (c *AgentClient) Generate(ctx context.Context, req Request) (*Response, error) {
	text, err := textOnly(req.Parts)
	if err != nil {
		return nil, err
	}
	useModel := c.model
	if req.Model != "" {
		useModel = req.Model
	}
	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	var settings modelsettings.ModelSettings
	if maxTokens > 0 {
		settings.MaxTokens = param.NewOpt(int64(maxTokens))
	}
	agent := agents.New("analyst").
		WithInstructions(req.System).
		WithModel(useModel).
		WithModelSettings(settings)

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   c.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	start := time.Now()

	events, errCh, err := runner.RunStreamedChan(ctx, agent, text)
	if err != nil {
		return nil, fmt.Errorf("agent stream start: %w", err)
	}

	var textBuf strings.Builder
	for ev := range events {
		raw, ok := ev.(agents.RawResponsesStreamEvent)
		if !ok || raw.Data.Type != "response.output_text.delta" {
			continue
		}
		textBuf.WriteString(raw.Data.Delta)
	}
	if streamErr := <-errCh; streamErr != nil {
		metrics.Errors.WithLabelValues("llm", "stream").Inc()
		return nil, fmt.Errorf("agent stream: %w", streamErr)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("llm").Observe(latency.Seconds())
	return &Response{Text: textBuf.String(), LatencyMs: float64(latency.Milliseconds())}, nil
}
