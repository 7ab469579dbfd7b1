package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	expansionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lyceum_expansion_latency_ms",
		Help:    "Latency of one expansion method (LLM call plus retrieval) in milliseconds",
		Buckets: []float64{25, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000},
	}, []string{"method"})

	expansionQueries = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lyceum_expansion_queries",
		Help:    "Number of expanded queries produced by a method",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8},
	}, []string{"method"})

	methodFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lyceum_method_failures_total",
		Help: "Expansion methods that fell back or failed",
	}, []string{"method"})

	retrievalLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lyceum_retrieval_latency_ms",
		Help:    "Latency of vector store calls in milliseconds",
		Buckets: []float64{10, 25, 50, 75, 100, 150, 200, 300, 500, 800, 1200},
	}, []string{"stage"})

	retrievalResults = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lyceum_retrieval_results",
		Help:    "Number of nodes returned by a vector store call",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	}, []string{"stage"})

	fusionLists = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lyceum_fusion_input_lists",
		Help:    "Number of method lists fused per request",
		Buckets: []float64{0, 1, 2, 3, 4, 5},
	})

	pipelineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lyceum_pipeline_runs_total",
		Help: "Requests served per pipeline path",
	}, []string{"path"})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lyceum_result_cache_total",
		Help: "Result cache lookups",
	}, []string{"result"})
)

func ensureRegistered() {
	once.Do(func() {
		prometheus.MustRegister(
			expansionLatency, expansionQueries, methodFailures,
			retrievalLatency, retrievalResults, fusionLists,
			pipelineRuns, cacheLookups,
		)
	})
}

// ObserveExpansion records one method's duration and produced query count.
func ObserveExpansion(method string, elapsed time.Duration, queries int) {
	ensureRegistered()
	expansionLatency.WithLabelValues(method).Observe(float64(elapsed.Milliseconds()))
	expansionQueries.WithLabelValues(method).Observe(float64(queries))
}

// IncMethodFailure counts a method that fell back or errored.
func IncMethodFailure(method string) {
	ensureRegistered()
	methodFailures.WithLabelValues(method).Inc()
}

// ObserveRetrieval records latency and result size for one store call.
// Stage is "seed", "expanded" or "meta".
func ObserveRetrieval(stage string, elapsed time.Duration, results int) {
	ensureRegistered()
	retrievalLatency.WithLabelValues(stage).Observe(float64(elapsed.Milliseconds()))
	retrievalResults.WithLabelValues(stage).Observe(float64(results))
}

// ObserveFusion records how many lists were fused.
func ObserveFusion(n int) {
	ensureRegistered()
	fusionLists.Observe(float64(n))
}

// IncPipeline counts a request served by "modern" or "legacy".
func IncPipeline(path string) {
	ensureRegistered()
	pipelineRuns.WithLabelValues(path).Inc()
}

// IncCache records a result cache "hit" or "miss".
func IncCache(result string) {
	ensureRegistered()
	cacheLookups.WithLabelValues(result).Inc()
}
