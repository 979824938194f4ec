package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/session-analyzer/internal/llm"
	"github.com/hubenschmidt/session-analyzer/internal/session"
	"github.com/hubenschmidt/session-analyzer/internal/skills"
	"github.com/hubenschmidt/session-analyzer/internal/store"
)

type fakePool struct {
	jobs []session.Job
	err  error
}

func (p *fakePool) Submit(job session.Job) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

type fakeFailer struct {
	st *store.Store
}

func (f fakeFailer) MarkFailed(ctx context.Context, id string, err error) {
	f.st.SetState(ctx, id, session.StatusFailed, "", err.Error())
}

const skillDoc = "---\n" +
	"name: 职场丛林法则\n" +
	"category: workplace\n" +
	"priority: 80\n" +
	"---\n" +
	"## Prompt模板\n" +
	"```prompt\n" +
	"{transcript_json}\n" +
	"```\n"

type testServer struct {
	st   *store.Store
	pool *fakePool
	mux  *http.ServeMux
	cfg  config
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	st, err := store.Open(ctx, store.SQLite, filepath.Join(dir, "analyzer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	skillsDir := filepath.Join(dir, "skills")
	require.NoError(t, os.MkdirAll(filepath.Join(skillsDir, "workplace_jungle"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skillsDir, "workplace_jungle", skills.DefinitionFile), []byte(skillDoc), 0o644))

	cfg := config{audioDir: filepath.Join(dir, "audio"), textEngine: "gemini"}
	require.NoError(t, os.MkdirAll(cfg.audioDir, 0o755))

	s := &testServer{st: st, pool: &fakePool{}, mux: http.NewServeMux(), cfg: cfg}
	registerRoutes(s.mux, deps{
		cfg:      cfg,
		store:    st,
		profiles: store.NewProfileCache(st, time.Minute),
		registry: skills.NewDirRegistry(skillsDir, st, time.Minute),
		pipeline: fakeFailer{st: st},
		pool:     s.pool,
		engines:  &llmEngines{router: llm.NewEngineRouter(map[string]llm.Generator{"gemini": nil}, "gemini")},
		stream:   http.NotFoundHandler(),
	})
	return s
}

func (s *testServer) do(t *testing.T, req *http.Request, user string) *httptest.ResponseRecorder {
	t.Helper()
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, filename string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		fw.Write([]byte("fake audio bytes"))
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest("POST", "/api/v1/audio/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestUploadQueuesSession(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, uploadRequest(t, "talk.MP3", map[string]string{"title": "周会"}), "u1")
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decode[map[string]string](t, rec)
	id := resp["session_id"]
	require.NotEmpty(t, id)

	require.Len(t, s.pool.jobs, 1)
	job := s.pool.jobs[0]
	assert.Equal(t, id, job.SessionID)
	assert.Equal(t, "u1", job.UserID)
	assert.Equal(t, filepath.Join(s.cfg.audioDir, id+".mp3"), job.AudioRef)
	data, err := os.ReadFile(job.AudioRef)
	require.NoError(t, err)
	assert.Equal(t, "fake audio bytes", string(data))

	sess, err := s.st.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusAnalyzing, sess.Status)
	assert.Equal(t, "周会", sess.Title)
}

func TestUploadByURL(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, uploadRequest(t, "", map[string]string{"audio_url": "https://cdn.example.com/a.m4a"}), "u1")
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, s.pool.jobs, 1)
	assert.Equal(t, "https://cdn.example.com/a.m4a", s.pool.jobs[0].AudioRef)
	sess, err := s.st.GetSession(context.Background(), s.pool.jobs[0].SessionID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.m4a", sess.AudioURL)
	assert.True(t, strings.HasPrefix(sess.Title, "录音 "))
}

func TestUploadRejectedWhenQueueFull(t *testing.T) {
	s := newServer(t)
	s.pool.err = session.ErrQueueFull

	rec := s.do(t, uploadRequest(t, "talk.wav", nil), "u1")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	id := decode[map[string]string](t, rec)["session_id"]
	st, err := s.st.GetStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, st.Status)
	assert.Equal(t, "server busy", st.ErrorMessage)
}

func TestUploadValidation(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, uploadRequest(t, "a.mp3", nil), "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, uploadRequest(t, "notes.txt", nil), "u1").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, uploadRequest(t, "", nil), "u1").Code)
	assert.Empty(t, s.pool.jobs)
}

func TestSessionDetailScopedToOwner(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	require.NoError(t, s.st.CreateSession(ctx, store.Session{ID: "s1", UserID: "u1", Status: session.StatusAnalyzing}))

	rec := s.do(t, httptest.NewRequest("GET", "/api/v1/sessions/s1", nil), "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]json.RawMessage](t, rec)
	assert.Contains(t, body, "session")
	assert.NotContains(t, body, "transcript")

	assert.Equal(t, http.StatusNotFound, s.do(t, httptest.NewRequest("GET", "/api/v1/sessions/s1", nil), "u2").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, httptest.NewRequest("GET", "/api/v1/sessions/nope", nil), "u1").Code)

	status := s.do(t, httptest.NewRequest("GET", "/api/v1/sessions/s1/status", nil), "")
	require.Equal(t, http.StatusOK, status.Code)
	assert.Equal(t, session.StatusAnalyzing, decode[store.Status](t, status).Status)

	list := s.do(t, httptest.NewRequest("GET", "/api/v1/sessions?limit=500", nil), "u1")
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), `"total":1`)
}

func TestSkillRoutes(t *testing.T) {
	s := newServer(t)

	list := s.do(t, httptest.NewRequest("GET", "/api/v1/skills", nil), "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), `"skill_id":"workplace_jungle"`)

	one := s.do(t, httptest.NewRequest("GET", "/api/v1/skills/workplace_jungle", nil), "")
	require.Equal(t, http.StatusOK, one.Code)
	assert.Equal(t, 80, decode[skills.Skill](t, one).Priority)

	assert.Equal(t, http.StatusNotFound, s.do(t, httptest.NewRequest("GET", "/api/v1/skills/missing", nil), "").Code)

	reload := s.do(t, httptest.NewRequest("POST", "/api/v1/skills/workplace_jungle/reload", nil), "")
	require.Equal(t, http.StatusOK, reload.Code)
	entries, err := s.st.ListCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "workplace_jungle", entries[0].ID)
}

func TestProfileRoutes(t *testing.T) {
	s := newServer(t)

	body := strings.NewReader(`{"name":"Alex","relationship":"自己","audio_url":"https://cdn.example.com/vp.wav"}`)
	rec := s.do(t, httptest.NewRequest("POST", "/api/v1/profiles", body), "u1")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[store.Profile](t, rec)
	assert.Equal(t, "mock_vp_"+created.ID, created.VoiceprintID)

	bad := s.do(t, httptest.NewRequest("POST", "/api/v1/profiles", strings.NewReader(`{"name":" "}`)), "u1")
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	list := s.do(t, httptest.NewRequest("GET", "/api/v1/profiles", nil), "u1")
	require.Equal(t, http.StatusOK, list.Code)
	got := decode[map[string][]store.Profile](t, list)["profiles"]
	require.Len(t, got, 1)
	assert.Equal(t, "Alex", got[0].Name)

	other := s.do(t, httptest.NewRequest("GET", "/api/v1/profiles", nil), "u2")
	assert.Empty(t, decode[map[string][]store.Profile](t, other)["profiles"])
}

func TestEnginesRoute(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, httptest.NewRequest("GET", "/api/v1/engines", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"engines":["gemini"],"text_engine":"gemini"}`, rec.Body.String())
}
