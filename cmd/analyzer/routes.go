package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/session-analyzer/internal/identity"
	"github.com/hubenschmidt/session-analyzer/internal/session"
	"github.com/hubenschmidt/session-analyzer/internal/skills"
	"github.com/hubenschmidt/session-analyzer/internal/store"
)

const (
	// maxUploadBytes bounds the multipart body of an upload.
	maxUploadBytes = 500 << 20

	defaultSessionLimit = 20
	maxSessionLimit     = 100
)

var allowedAudioExt = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".aac": true, ".ogg": true, ".flac": true, ".webm": true, ".amr": true,
}

// submitter admits analysis jobs.
type submitter interface {
	Submit(job session.Job) error
}

// failer marks sessions that never reached the pipeline.
type failer interface {
	MarkFailed(ctx context.Context, sessionID string, err error)
}

type deps struct {
	cfg      config
	store    *store.Store
	profiles *store.ProfileCache
	registry *skills.DirRegistry
	pipeline failer
	pool     submitter
	engines  *llmEngines
	stream   http.Handler
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.HandleFunc("/health", d.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /ws/sessions/{id}", d.stream)

	mux.HandleFunc("POST /api/v1/audio/upload", d.handleUpload)
	mux.HandleFunc("GET /api/v1/sessions", d.handleListSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", d.handleSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/status", d.handleStatus)
	mux.HandleFunc("GET /api/v1/sessions/{id}/spans", d.handleSpans)

	mux.HandleFunc("GET /api/v1/skills", d.handleSkills)
	mux.HandleFunc("GET /api/v1/skills/{id}", d.handleSkill)
	mux.HandleFunc("POST /api/v1/skills/{id}/reload", d.handleSkillReload)

	mux.HandleFunc("GET /api/v1/profiles", d.handleProfiles)
	mux.HandleFunc("POST /api/v1/profiles", d.handleCreateProfile)

	mux.HandleFunc("GET /api/v1/engines", d.handleEngines)
}

func (d deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := d.store.Ping(r.Context()); err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (d deps) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "bad multipart form", http.StatusBadRequest)
		return
	}

	id := uuid.NewString()
	sess := store.Session{
		ID:     id,
		UserID: userID,
		Title:  r.FormValue("title"),
		Status: session.StatusAnalyzing,
	}

	ref, err := d.saveAudio(r, id)
	switch {
	case errors.Is(err, errNoAudio):
		ref = strings.TrimSpace(r.FormValue("audio_url"))
		if ref == "" {
			http.Error(w, "file or audio_url required", http.StatusBadRequest)
			return
		}
		sess.AudioURL = ref
	case err != nil:
		slog.Error("save upload", "session_id", id, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	default:
		sess.AudioPath = ref
	}
	if sess.Title == "" {
		sess.Title = "录音 " + id[:8]
	}

	if err := d.store.CreateSession(r.Context(), sess); err != nil {
		slog.Error("create session", "session_id", id, "error", err)
		http.Error(w, "create session failed", http.StatusInternalServerError)
		return
	}

	err = d.pool.Submit(session.Job{SessionID: id, UserID: userID, AudioRef: ref})
	if err != nil {
		slog.Warn("upload rejected", "session_id", id, "error", err)
		d.pipeline.MarkFailed(r.Context(), id, errors.New("server busy"))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"session_id": id, "error": "server busy"})
		return
	}

	slog.Info("session queued", "session_id", id, "user_id", userID)
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id, "status": session.StatusAnalyzing})
}

var errNoAudio = errors.New("no audio file")

// saveAudio persists the uploaded file as <audioDir>/<id><ext>.
func (d deps) saveAudio(r *http.Request, id string) (string, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return "", errNoAudio
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedAudioExt[ext] {
		return "", fmt.Errorf("unsupported audio format %q", ext)
	}

	path := filepath.Join(d.cfg.audioDir, id+ext)
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err = io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(path)
		return "", fmt.Errorf("write audio: %w", err)
	}
	return path, out.Close()
}

func (d deps) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit := min(queryInt(r, "limit", defaultSessionLimit), maxSessionLimit)
	offset := queryInt(r, "offset", 0)
	sessions, total, err := d.store.ListSessions(r.Context(), userID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "total": total})
}

func (d deps) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := d.ownedSession(w, r)
	if !ok {
		return
	}
	resp := map[string]any{"session": sess}

	tr, err := d.store.GetTranscriptResult(r.Context(), sess.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tr != nil {
		resp["transcript"] = tr
	}

	sa, err := d.store.GetStrategyAnalysis(r.Context(), sess.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sa != nil {
		resp["strategy"] = sa
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d deps) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := d.store.GetStatus(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (d deps) handleSpans(w http.ResponseWriter, r *http.Request) {
	sess, ok := d.ownedSession(w, r)
	if !ok {
		return
	}
	spans, err := d.store.ListSpans(r.Context(), sess.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sess.ID, "spans": spans})
}

// ownedSession loads the path session and checks it belongs to the caller.
func (d deps) ownedSession(w http.ResponseWriter, r *http.Request) (*store.Session, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	sess, err := d.store.GetSession(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) || (err == nil && sess.UserID != userID) {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return sess, true
}

func (d deps) handleSkills(w http.ResponseWriter, r *http.Request) {
	f := skills.Filter{Category: r.URL.Query().Get("category")}
	f.EnabledOnly, _ = strconv.ParseBool(r.URL.Query().Get("enabled"))
	list, err := d.registry.List(r.Context(), f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": list, "total": len(list)})
}

func (d deps) handleSkill(w http.ResponseWriter, r *http.Request) {
	sk, err := d.registry.Get(r.Context(), r.PathValue("id"))
	writeSkill(w, sk, err)
}

func (d deps) handleSkillReload(w http.ResponseWriter, r *http.Request) {
	sk, err := d.registry.Reload(r.Context(), r.PathValue("id"))
	if err == nil {
		slog.Info("skill reloaded", "skill_id", sk.ID, "version", sk.Version)
	}
	writeSkill(w, sk, err)
}

func writeSkill(w http.ResponseWriter, sk *skills.Skill, err error) {
	if errors.Is(err, skills.ErrSkillNotFound) {
		http.Error(w, "skill not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sk)
}

func (d deps) handleProfiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	profiles, err := d.profiles.Profiles(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profiles": profiles})
}

func (d deps) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Name         string `json:"name"`
		Relationship string `json:"relationship"`
		AudioURL     string `json:"audio_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	p := store.Profile{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         strings.TrimSpace(req.Name),
		Relationship: req.Relationship,
		AudioURL:     req.AudioURL,
	}
	p.VoiceprintID = identity.RegisterVoiceprint(p.ID, req.AudioURL)
	created, err := d.profiles.Create(r.Context(), p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (d deps) handleEngines(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"engines":     d.engines.router.Engines(),
		"text_engine": d.cfg.textEngine,
	}
	if d.engines.ollama != nil {
		models, err := d.engines.ollama.Models(r.Context())
		if err != nil {
			slog.Warn("list ollama models", "error", err)
		}
		resp["ollama_models"] = models
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireUser reads the caller from X-User-ID.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if id == "" {
		http.Error(w, "missing X-User-ID", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
