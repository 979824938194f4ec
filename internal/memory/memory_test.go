package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/session-analyzer/internal/transcript"
)

type fakeQdrant struct {
	mu       sync.Mutex
	points   []Point
	searches []searchRequest
}

func (f *fakeQdrant) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /collections/mem/points", func(w http.ResponseWriter, r *http.Request) {
		var req upsertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.points = append(f.points, req.Points...)
		f.mu.Unlock()
		w.Write([]byte(`{"result":{"status":"completed"}}`))
	})
	mux.HandleFunc("POST /collections/mem/points/search", func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.searches = append(f.searches, req)
		f.mu.Unlock()
		w.Write([]byte(`{"result":[
			{"id":"a","score":0.9,"payload":{"text":"上次和王总谈过预算"}},
			{"id":"b","score":0.8,"payload":{"kind":"strategy"}}
		]}`))
	})
	mux.HandleFunc("PUT /collections/mem", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	mux.HandleFunc("PUT /collections/mem/index", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{}}`))
	})
	return mux
}

type staticEmbedder struct{ calls int }

func (e *staticEmbedder) Embed(context.Context, string) ([]float64, error) {
	e.calls++
	return []float64{0.1, 0.2, 0.3}, nil
}

func newTestService(t *testing.T) (*Service, *fakeQdrant) {
	t.Helper()
	fq := &fakeQdrant{}
	srv := httptest.NewServer(fq.handler())
	t.Cleanup(srv.Close)
	return NewService(Config{
		Embedder:   &staticEmbedder{},
		Qdrant:     NewQdrantClient(srv.URL, 2),
		Collection: "mem",
	}), fq
}

func TestAddAsyncStoresPayload(t *testing.T) {
	svc, fq := newTestService(t)
	svc.AddAsync(context.Background(), Record{UserID: "u1", SessionID: "s1", Kind: KindConversation, Text: "hello", ProfileIDs: []string{"p1"}})
	svc.Wait()

	require.Len(t, fq.points, 1)
	p := fq.points[0].Payload
	assert.Equal(t, "u1", p["user_id"])
	assert.Equal(t, "s1", p["session_id"])
	assert.Equal(t, KindConversation, p["kind"])
	assert.Equal(t, "hello", p["text"])
	assert.Equal(t, []any{"p1"}, p["profile_ids"])
}

func TestSearchFiltersByUser(t *testing.T) {
	svc, fq := newTestService(t)
	got, err := svc.Search(context.Background(), "u1", "预算", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"上次和王总谈过预算"}, got)

	require.Len(t, fq.searches, 1)
	req := fq.searches[0]
	assert.Equal(t, 5, req.Limit)
	require.NotNil(t, req.Filter)
	assert.Equal(t, []condition{{Key: "user_id", Match: matchValue{Value: "u1"}}}, req.Filter.Must)
}

func TestSearchSkipsEmptyQuery(t *testing.T) {
	svc, fq := newTestService(t)
	got, err := svc.Search(context.Background(), "u1", "  ", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, fq.searches)
}

func TestEnsureToleratesExistingCollection(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.Ensure(context.Background(), 3))
}

func TestNilServiceIsInert(t *testing.T) {
	var svc *Service
	assert.False(t, svc.Enabled())
	svc.AddAsync(context.Background(), Record{Text: "x"})
	svc.Wait()
	got, err := svc.Search(context.Background(), "u", "q", 1)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, svc.Add(context.Background(), Record{}))
}

func TestSearchSurfacesQdrantErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	svc := NewService(Config{Embedder: &staticEmbedder{}, Qdrant: NewQdrantClient(srv.URL, 1), Collection: "mem"})
	_, err := svc.Search(context.Background(), "u1", "q", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search status 500")
}

func TestEmbeddingClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, "nomic-embed-text", req.Model)
		if len(req.Input) == 2 {
			w.Write([]byte(`{"embeddings":[[1,2,3],[4,5,6]]}`))
			return
		}
		w.Write([]byte(`{"embeddings":[[1,2,3]]}`))
	}))
	defer srv.Close()

	c := NewEmbeddingClient(srv.URL, "nomic-embed-text", 1)
	vec, err := c.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, vec)

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, vecs)

	_, err = c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	assert.ErrorContains(t, err, "got 1 vectors for 3 inputs")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "对话", clip("对话内容", 2))
	assert.Equal(t, "ok", clip("ok", 2))
}

func TestBuildPayload(t *testing.T) {
	turns := []transcript.Turn{
		{Speaker: "Speaker_0", Text: " 预算不够 "},
		{Speaker: "Speaker_1", Text: "我再想想", IsSelf: true},
		{Speaker: "Speaker_2", Text: "路过"},
	}
	mapping := map[string]string{"Speaker_0": "p-boss", "Speaker_1": "p-me"}
	names := map[string]string{"p-boss": "王总（领导）", "p-me": "Alex"}

	got := BuildPayload(turns, "讨论预算", mapping, names)
	assert.Equal(t, "对话内容：\n王总（领导）: 预算不够\nAlex: 我再想想\nSpeaker_2: 路过\n\n总结：讨论预算", got)
}
