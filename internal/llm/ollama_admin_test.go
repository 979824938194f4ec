package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaModelsSkipsEmbedders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"qwen2.5:7b"},{"name":"nomic-embed-text"},{"name":"llama3.2:3b"}]}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "qwen2.5:7b", 0, 1)
	names, err := c.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2.5:7b", "llama3.2:3b"}, names)
}

func TestOllamaUnloadAll(t *testing.T) {
	var mu sync.Mutex
	var unloaded []string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ps", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"a","size":1},{"name":"b","size":2}]}`))
	})
	mux.HandleFunc("POST /api/generate", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model     string `json:"model"`
			KeepAlive int    `json:"keep_alive"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Zero(t, body.KeepAlive)
		mu.Lock()
		unloaded = append(unloaded, body.Model)
		mu.Unlock()
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "a", 0, 1)
	require.NoError(t, c.UnloadAll(context.Background()))
	assert.Equal(t, []string{"a", "b"}, unloaded)
}

func TestOllamaModelsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewOllamaClient(srv.URL, "m", 0, 1).Models(context.Background())
	assert.ErrorContains(t, err, "status 502")
}
