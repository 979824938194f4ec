package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "analyzer_sessions_active",
		Help: "Sessions currently being analyzed by a worker",
	})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_sessions_total",
		Help: "Sessions reaching a terminal status",
	}, []string{"status"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "analyzer_queue_depth",
		Help: "Sessions admitted but not yet picked up by a worker",
	})

	QueueRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_queue_rejected_total",
		Help: "Uploads rejected because the analysis queue was full",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analyzer_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	E2EDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analyzer_e2e_duration_seconds",
		Help:    "Upload-to-terminal latency per session",
		Buckets: []float64{5, 10, 30, 60, 120, 300, 600, 1200},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	AudioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_audio_chunks_total",
		Help: "Audio chunks produced by the splitter",
	})

	SkillExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_skill_executions_total",
		Help: "Skill runs by skill id and outcome",
	}, []string{"skill_id", "outcome"})

	SkillDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analyzer_skill_duration_seconds",
		Help:    "Per-skill execution latency",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"skill_id"})

	EmbeddingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analyzer_embedding_duration_seconds",
		Help:    "Embedding generation latency",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1},
	})

	MemoryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analyzer_memory_duration_seconds",
		Help:    "Memory search/write latency (embed + qdrant)",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1, 2},
	}, []string{"op"})
)
