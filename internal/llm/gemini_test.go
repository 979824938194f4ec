package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// generateBody is the subset of a generateContent request the tests inspect.
type generateBody struct {
	Contents []struct {
		Parts []struct {
			Text     string `json:"text"`
			FileData *struct {
				FileURI  string `json:"fileUri"`
				MimeType string `json:"mimeType"`
			} `json:"fileData"`
		} `json:"parts"`
	} `json:"contents"`
	SystemInstruction struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"systemInstruction"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType"`
		MaxOutputTokens  int    `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

func newTestGemini(t *testing.T, baseURL string) *GeminiClient {
	t.Helper()
	c, err := NewGeminiClient(context.Background(), GeminiConfig{APIKey: "k", BaseURL: baseURL, Model: "flash", MaxTokens: 512})
	require.NoError(t, err)
	return c
}

func TestGeminiGenerateSendsFileParts(t *testing.T) {
	var captured generateBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/flash:generateContent", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"ok\":"},{"text":"true}"}]}}]}`)
	}))
	defer srv.Close()

	c := newTestGemini(t, srv.URL)
	resp, err := c.Generate(context.Background(), Request{
		System: "sys",
		Parts:  []Part{TextPart("analyze"), FilePart(&File{URI: "u://1", MimeType: "audio/mp4"})},
		JSON:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Text)

	require.Len(t, captured.Contents, 1)
	require.Len(t, captured.Contents[0].Parts, 2)
	assert.Equal(t, "analyze", captured.Contents[0].Parts[0].Text)
	require.NotNil(t, captured.Contents[0].Parts[1].FileData)
	assert.Equal(t, "u://1", captured.Contents[0].Parts[1].FileData.FileURI)
	assert.Equal(t, "application/json", captured.GenerationConfig.ResponseMimeType)
	assert.Equal(t, 512, captured.GenerationConfig.MaxOutputTokens)
	require.Len(t, captured.SystemInstruction.Parts, 1)
	assert.Equal(t, "sys", captured.SystemInstruction.Parts[0].Text)
}

func TestGeminiGenerateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()

	_, err := newTestGemini(t, srv.URL).Generate(context.Background(), Prompt("", "hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGeminiGenerateBlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer srv.Close()

	_, err := newTestGemini(t, srv.URL).Generate(context.Background(), Prompt("", "hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGeminiRequiresAPIKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	_, err := NewGeminiClient(context.Background(), GeminiConfig{BaseURL: "http://127.0.0.1:1"})
	require.Error(t, err)
}

func TestGeminiUploadAndWaitActive(t *testing.T) {
	var polls atomic.Int32
	var deleted atomic.Bool
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == "POST" && r.URL.Path == "/upload/v1beta/files":
			assert.Equal(t, "resumable", r.Header.Get("X-Goog-Upload-Protocol"))
			assert.Equal(t, "start", r.Header.Get("X-Goog-Upload-Command"))
			w.Header().Set("X-Goog-Upload-URL", srv.URL+"/resumable/a1")
			io.WriteString(w, `{}`)
		case r.Method == "POST" && r.URL.Path == "/resumable/a1":
			assert.Contains(t, r.Header.Get("X-Goog-Upload-Command"), "finalize")
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "audio", string(body))
			w.Header().Set("X-Goog-Upload-Status", "final")
			io.WriteString(w, `{"file":{"name":"files/a1","uri":"u://a1","mimeType":"audio/mp4","state":"PROCESSING"}}`)
		case r.Method == "GET" && r.URL.Path == "/v1beta/files/a1":
			state := "PROCESSING"
			if polls.Add(1) >= 2 {
				state = "ACTIVE"
			}
			io.WriteString(w, `{"name":"files/a1","uri":"u://a1","mimeType":"audio/mp4","state":"`+state+`"}`)
		case r.Method == "DELETE" && r.URL.Path == "/v1beta/files/a1":
			deleted.Store(true)
			io.WriteString(w, `{}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":{"code":404,"message":"`+r.Method+` `+r.URL.Path+`"}}`)
		}
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "rec.m4a")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))

	c := newTestGemini(t, srv.URL)
	f, err := c.Upload(context.Background(), path, "audio/mp4")
	require.NoError(t, err)
	assert.Equal(t, "files/a1", f.Name)
	assert.Equal(t, FileProcessing, f.State)

	active, err := WaitActive(context.Background(), c, f, time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, FileActive, active.State)
	assert.Equal(t, "u://a1", active.URI)

	require.NoError(t, c.Delete(context.Background(), f.Name))
	assert.True(t, deleted.Load())
}

type stubFiles struct{ state string }

func (s stubFiles) Upload(context.Context, string, string) (*File, error) { return nil, nil }
func (s stubFiles) File(_ context.Context, name string) (*File, error) {
	return &File{Name: name, State: s.state}, nil
}
func (s stubFiles) Delete(context.Context, string) error { return nil }

func TestWaitActiveRejectsFailedFile(t *testing.T) {
	_, err := WaitActive(context.Background(), stubFiles{state: FileFailed}, &File{Name: "files/x", State: FileProcessing}, time.Millisecond, time.Second)
	require.ErrorIs(t, err, ErrFileNotActive)
}

func TestWaitActiveTimesOut(t *testing.T) {
	_, err := WaitActive(context.Background(), stubFiles{state: FileProcessing}, &File{Name: "files/x", State: FileProcessing}, time.Millisecond, 20*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
