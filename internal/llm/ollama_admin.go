package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LoadedModel is a model resident in Ollama memory.
type LoadedModel struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Models lists installed generation models, skipping embedding models.
func (c *OllamaClient) Models(ctx context.Context) ([]string, error) {
	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/tags", &out); err != nil {
		return nil, fmt.Errorf("ollama tags: %w", err)
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		if strings.Contains(m.Name, "embed") {
			continue
		}
		names = append(names, m.Name)
	}
	return names, nil
}

// Loaded lists the models currently loaded by Ollama.
func (c *OllamaClient) Loaded(ctx context.Context) ([]LoadedModel, error) {
	var out struct {
		Models []LoadedModel `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/ps", &out); err != nil {
		return nil, fmt.Errorf("ollama ps: %w", err)
	}
	return out.Models, nil
}

// Unload asks Ollama to evict model immediately.
func (c *OllamaClient) Unload(ctx context.Context, model string) error {
	body, err := json.Marshal(map[string]any{"model": model, "keep_alive": 0, "stream": false})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/generate", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unload %s: %w", model, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama unload %s: status %d", model, resp.StatusCode)
	}
	return nil
}

// UnloadAll evicts every loaded model. Used on shutdown so a stopped
// analyzer does not keep GPU memory pinned.
func (c *OllamaClient) UnloadAll(ctx context.Context) error {
	loaded, err := c.Loaded(ctx)
	if err != nil {
		return err
	}
	for _, m := range loaded {
		if err := c.Unload(ctx, m.Name); err != nil {
			return err
		}
	}
	return nil
}

func (c *OllamaClient) getJSON(ctx context.Context, path string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.url+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
