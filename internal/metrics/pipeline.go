package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline Prometheus metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinevid",
			Name:      "queries_total",
			Help:      "Total queries handled, by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	RankingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clinevid",
			Name:      "ranking_duration_seconds",
			Help:      "Document and fact ranking duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"stage"}, // "stage1" / "stage2"
	)

	MapPhaseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinevid",
			Name:      "map_phase_total",
			Help:      "Per-paper map phase outcomes",
		},
		[]string{"outcome"}, // "grounded" / "irrelevant" / "failed"
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinevid",
			Name:      "generation_requests_total",
			Help:      "LLM generation requests",
		},
		[]string{"purpose", "status"}, // purpose: "translate" / "map" / "reduce" / "direct"
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clinevid",
			Name:      "generation_duration_seconds",
			Help:      "LLM generation duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 180},
		},
		[]string{"purpose"},
	)

	EndpointRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinevid",
			Name:      "endpoint_retries_total",
			Help:      "Cold-start retry attempts per endpoint",
		},
		[]string{"endpoint"},
	)

	EndpointState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "clinevid",
			Name:      "endpoint_state",
			Help:      "Last observed endpoint state (0 unknown, 1 ready, 2 sleeping, 3 error)",
		},
		[]string{"endpoint"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clinevid",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

// ObserveGeneration records one LLM call and its wall time.
func ObserveGeneration(purpose string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	GenerationRequestsTotal.WithLabelValues(purpose, status).Inc()
	GenerationDuration.WithLabelValues(purpose).Observe(time.Since(started).Seconds())
}

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(RankingDuration)
	prometheus.MustRegister(MapPhaseTotal)
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationDuration)
	prometheus.MustRegister(EndpointRetriesTotal)
	prometheus.MustRegister(EndpointState)
	prometheus.MustRegister(EmbeddingCacheTotal)
	pipelineMetricsRegistered = true
}
