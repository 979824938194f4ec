package main

import (
	"time"

	"github.com/hubenschmidt/session-analyzer/internal/env"
	"github.com/hubenschmidt/session-analyzer/internal/store"
)

type config struct {
	port            string
	storeDriver     string
	storeDSN        string
	audioDir        string
	geminiAPIKey    string
	geminiBaseURL   string
	proxyURL        string
	transcriptModel string
	flashModel      string
	textEngine      string
	llmPoolSize     int
	llmMaxTokens    int

	ollamaURL       string
	ollamaModel     string
	anthropicAPIKey string
	anthropicURL    string
	anthropicModel  string
	openaiAPIKey    string
	openaiBaseURL   string
	openaiModel     string

	maxChunkMB        int
	ffmpegBin         string
	ffprobeBin        string
	transcriptTimeout time.Duration
	pipelineTimeout   time.Duration
	workers           int
	queueSize         int
	maxStreams        int

	skillsDir       string
	defaultSkillID  string
	skillCacheTTL   time.Duration
	profileCacheTTL time.Duration
	sceneThreshold  float64
	skillParallel   int

	qdrantURL        string
	qdrantPoolSize   int
	embeddingModel   string
	vectorSize       int
	memoryCollection string
	memoryTopK       int
	memoryThreshold  float64
}

func loadConfig() config {
	return config{
		port:            env.Str("ANALYZER_PORT", "8000"),
		storeDriver:     env.Str("STORE_DRIVER", store.SQLite),
		storeDSN:        env.Str("STORE_DSN", "data/analyzer.db"),
		audioDir:        env.Str("AUDIO_STORAGE_DIR", "data/audio/sessions"),
		geminiAPIKey:    env.Str("GEMINI_API_KEY", ""),
		geminiBaseURL:   env.Str("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		proxyURL:        env.Str("PROXY_URL", ""),
		transcriptModel: env.Str("TRANSCRIPT_MODEL", "gemini-3-flash-preview"),
		flashModel:      env.Str("FLASH_MODEL", "gemini-3-flash-preview"),
		textEngine:      env.Str("TEXT_ENGINE", "gemini"),
		llmPoolSize:     env.Int("LLM_POOL_SIZE", 16),
		llmMaxTokens:    env.Int("LLM_MAX_TOKENS", 8192),

		ollamaURL:       env.Str("OLLAMA_URL", ""),
		ollamaModel:     env.Str("OLLAMA_MODEL", "qwen2.5:7b"),
		anthropicAPIKey: env.Str("ANTHROPIC_API_KEY", ""),
		anthropicURL:    env.Str("ANTHROPIC_URL", "https://api.anthropic.com"),
		anthropicModel:  env.Str("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		openaiAPIKey:    env.Str("OPENAI_API_KEY", ""),
		openaiBaseURL:   env.Str("OPENAI_BASE_URL", ""),
		openaiModel:     env.Str("OPENAI_MODEL", "gpt-4o-mini"),

		maxChunkMB:        env.Int("MAX_CHUNK_MB", 18),
		ffmpegBin:         env.Str("FFMPEG_BIN", "ffmpeg"),
		ffprobeBin:        env.Str("FFPROBE_BIN", "ffprobe"),
		transcriptTimeout: env.Duration("TRANSCRIPT_TIMEOUT", 10*time.Minute),
		pipelineTimeout:   env.Duration("PIPELINE_TIMEOUT", 20*time.Minute),
		workers:           env.Int("WORKERS", 4),
		queueSize:         env.Int("QUEUE_SIZE", 64),
		maxStreams:        env.Int("MAX_STREAMS", 200),

		skillsDir:       env.Str("SKILLS_DIR", "skills"),
		defaultSkillID:  env.Str("DEFAULT_SKILL_ID", "workplace_jungle"),
		skillCacheTTL:   env.Duration("SKILL_CACHE_TTL", 30*time.Second),
		profileCacheTTL: env.Duration("PROFILE_CACHE_TTL", 10*time.Second),
		sceneThreshold:  env.Float("SCENE_THRESHOLD", 0.3),
		skillParallel:   env.Int("SKILL_PARALLELISM", 4),

		qdrantURL:        env.Str("QDRANT_URL", ""),
		qdrantPoolSize:   env.Int("QDRANT_POOL_SIZE", 10),
		embeddingModel:   env.Str("EMBEDDING_MODEL", "nomic-embed-text"),
		vectorSize:       env.Int("VECTOR_SIZE", 768),
		memoryCollection: env.Str("MEMORY_COLLECTION", "session_memory"),
		memoryTopK:       env.Int("MEMORY_TOP_K", 5),
		memoryThreshold:  env.Float("MEMORY_SCORE_THRESHOLD", 0),
	}
}

// embeddingURL is where embeddings are requested: the Ollama server, or the
// local default when only memory is configured.
func (c config) embeddingURL() string {
	if c.ollamaURL != "" {
		return c.ollamaURL
	}
	return "http://localhost:11434"
}
