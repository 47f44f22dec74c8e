package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search pipeline metrics.
var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Search pipeline stage duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage", "status"},
	)

	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches by terminal outcome",
		},
		[]string{"outcome"}, // completed / partial / error / canceled
	)

	ScoringBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_batches_total",
			Help:      "Trait scoring batches by status",
		},
		[]string{"status"},
	)

	CandidatesRetrieved = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidates_retrieved",
			Help:      "Candidates returned per retrieval path",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		},
		[]string{"source"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers search pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(ScoringBatchesTotal)
	prometheus.MustRegister(CandidatesRetrieved)
	pipelineMetricsRegistered = true
}
