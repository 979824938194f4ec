package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubenschmidt/session-analyzer/internal/audio"
	"github.com/hubenschmidt/session-analyzer/internal/llm"
	"github.com/hubenschmidt/session-analyzer/internal/memory"
	"github.com/hubenschmidt/session-analyzer/internal/scene"
	"github.com/hubenschmidt/session-analyzer/internal/session"
	"github.com/hubenschmidt/session-analyzer/internal/skills"
	"github.com/hubenschmidt/session-analyzer/internal/store"
	"github.com/hubenschmidt/session-analyzer/internal/transcript"
	"github.com/hubenschmidt/session-analyzer/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg := loadConfig()

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	db, err := store.Open(initCtx, cfg.storeDriver, cfg.storeDSN)
	if err != nil {
		slog.Error("open store", "driver", cfg.storeDriver, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := os.MkdirAll(cfg.audioDir, 0o755); err != nil {
		slog.Error("audio storage dir", "dir", cfg.audioDir, "error", err)
		os.Exit(1)
	}

	registry := skills.NewDirRegistry(cfg.skillsDir, db, cfg.skillCacheTTL)
	n, err := registry.Sync(initCtx)
	if err != nil {
		slog.Error("sync skills", "dir", cfg.skillsDir, "error", err)
		os.Exit(1)
	}
	if _, err := registry.Get(initCtx, cfg.defaultSkillID); err != nil {
		slog.Error("default skill missing", "skill_id", cfg.defaultSkillID, "error", err)
		os.Exit(1)
	}
	slog.Info("skills registered", "count", n, "dir", cfg.skillsDir)

	engines, err := newEngines(initCtx, cfg)
	if err != nil {
		slog.Error("llm engines", "error", err)
		os.Exit(1)
	}
	text := engines.router.Bind(cfg.textEngine)
	textModel := ""
	if cfg.textEngine == "gemini" {
		textModel = cfg.flashModel
	}

	mem := newMemory(initCtx, cfg)

	hub := ws.NewHub()
	profiles := store.NewProfileCache(db, cfg.profileCacheTTL)
	pipeline := session.NewPipeline(session.Deps{
		Store:    db,
		Profiles: profiles,
		Audio:    audio.NewResolver(""),
		Splitter: audio.NewSplitter(audio.SplitterConfig{
			FFmpeg:        cfg.ffmpegBin,
			FFprobe:       cfg.ffprobeBin,
			MaxChunkBytes: int64(cfg.maxChunkMB) << 20,
		}),
		Transcriber: transcript.NewExtractor(engines.gemini, engines.gemini, transcript.Config{Model: cfg.transcriptModel}),
		Scenes:      scene.NewClassifier(text, scene.Config{Model: textModel}),
		Registry:    registry,
		Skills:      skills.NewExecutor(text, skills.ExecutorConfig{Model: textModel, Parallelism: cfg.skillParallel}),
		Memory:      mem,
		Summary:     session.NewSummarizer(text, textModel),
		Notifier:    hub,
	}, session.Config{
		TranscriptTimeout: cfg.transcriptTimeout,
		PipelineTimeout:   cfg.pipelineTimeout,
		DefaultSkillID:    cfg.defaultSkillID,
		MemoryTopK:        cfg.memoryTopK,
		Match:             skills.MatchConfig{Threshold: cfg.sceneThreshold},
	})
	pool := session.NewPool(pipeline, cfg.workers, cfg.queueSize)

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		cfg:      cfg,
		store:    db,
		profiles: profiles,
		registry: registry,
		pipeline: pipeline,
		pool:     pool,
		engines:  engines,
		stream:   ws.NewHandler(ws.HandlerConfig{Hub: hub, Status: db, MaxConcurrent: cfg.maxStreams}),
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	drain := func(ctx context.Context) {
		if err := pool.Shutdown(ctx); err != nil {
			slog.Warn("analysis pool shutdown", "error", err)
		}
		mem.Wait()

		if engines.ollama != nil {
			slog.Info("unloading ollama models")
			if err := engines.ollama.UnloadAll(ctx); err != nil {
				slog.Warn("ollama unload", "error", err)
			}
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("analyzer starting", "addr", addr, "workers", cfg.workers, "queue", cfg.queueSize,
		"text_engine", cfg.textEngine, "memory", mem.Enabled())

	if err := serve(srv, sigCh, 30*time.Second, drain); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("analyzer stopped")
}

type server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// serve runs srv until a signal arrives, then stops the listener and runs
// drain. It returns only after drain has finished.
func serve(srv server, sigCh <-chan os.Signal, timeout time.Duration, drain func(context.Context)) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown", "error", err)
		}
		drain(ctx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}

// llmEngines holds the configured generation backends.
type llmEngines struct {
	router *llm.EngineRouter
	gemini *llm.GeminiClient
	ollama *llm.OllamaClient
}

func newEngines(ctx context.Context, cfg config) (*llmEngines, error) {
	httpClient, err := llm.NewRelayHTTPClient(cfg.llmPoolSize, 5*time.Minute, cfg.proxyURL)
	if err != nil {
		return nil, err
	}

	gemini, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey:     cfg.geminiAPIKey,
		BaseURL:    cfg.geminiBaseURL,
		Model:      cfg.flashModel,
		MaxTokens:  cfg.llmMaxTokens,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, err
	}
	e := &llmEngines{gemini: gemini}
	backends := map[string]llm.Generator{"gemini": e.gemini}

	if cfg.ollamaURL != "" {
		e.ollama = llm.NewOllamaClient(cfg.ollamaURL, cfg.ollamaModel, cfg.llmMaxTokens, cfg.llmPoolSize)
		backends["ollama"] = e.ollama
	}
	if cfg.anthropicAPIKey != "" {
		backends["anthropic"] = llm.NewAnthropicClient(cfg.anthropicAPIKey, cfg.anthropicURL, cfg.anthropicModel, cfg.llmMaxTokens, httpClient)
	}
	if cfg.openaiAPIKey != "" {
		backends["openai"] = llm.NewOpenAIClient(cfg.openaiAPIKey, cfg.openaiBaseURL, cfg.openaiModel, cfg.llmMaxTokens, httpClient)
		backends["agents"] = llm.NewAgentClient(llm.NewAgentProvider(cfg.openaiAPIKey, cfg.openaiBaseURL), cfg.openaiModel, cfg.llmMaxTokens)
	}

	e.router = llm.NewEngineRouter(backends, "gemini")
	if !e.router.Has(cfg.textEngine) {
		slog.Warn("text engine not configured, using gemini", "engine", cfg.textEngine)
	}
	return e, nil
}

// newMemory returns a disabled service when Qdrant is not configured.
func newMemory(ctx context.Context, cfg config) *memory.Service {
	if cfg.qdrantURL == "" {
		return memory.NewService(memory.Config{})
	}
	mem := memory.NewService(memory.Config{
		Embedder:       memory.NewEmbeddingClient(cfg.embeddingURL(), cfg.embeddingModel, cfg.llmPoolSize),
		Qdrant:         memory.NewQdrantClient(cfg.qdrantURL, cfg.qdrantPoolSize),
		Collection:     cfg.memoryCollection,
		TopK:           cfg.memoryTopK,
		ScoreThreshold: cfg.memoryThreshold,
	})
	if err := mem.Ensure(ctx, cfg.vectorSize); err != nil {
		slog.Warn("memory collection", "collection", cfg.memoryCollection, "error", err)
	}
	slog.Info("memory enabled", "qdrant", cfg.qdrantURL, "embedding_model", cfg.embeddingModel)
	return mem
}
