package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_sessions_total",
			Help: "Analysis sessions finished, by variant and final status",
		},
		[]string{"variant", "status"},
	)

	ActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "factcheck_active_runs",
			Help: "Analysis runs currently executing",
		},
	)

	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "factcheck_step_duration_seconds",
			Help:    "Analysis step duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"step_type"},
	)

	StepOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_step_outcomes_total",
			Help: "Analysis step outcomes (completed, fallback, failed)",
		},
		[]string{"step_type", "outcome"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "factcheck_confidence_score",
			Help:    "Confidence of completed sessions",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	CitationsMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "factcheck_citations_merged_total",
			Help: "Sources created from web-search citations",
		},
	)

	SearchQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_search_queries_total",
			Help: "Web searches, by search type and status",
		},
		[]string{"search_type", "status"},
	)

	CrawlResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_crawl_results_total",
			Help: "Crawled pages, by result",
		},
		[]string{"result"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "factcheck_queue_depth",
			Help: "Sessions waiting for a worker",
		},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "factcheck_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"breaker"},
	)

	BreakerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factcheck_breaker_rejections_total",
			Help: "Calls rejected by an open circuit breaker",
		},
		[]string{"breaker"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(SessionsTotal)
		prometheus.MustRegister(ActiveRuns)
		prometheus.MustRegister(StepDuration)
		prometheus.MustRegister(StepOutcomes)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(ConfidenceScore)
		prometheus.MustRegister(CitationsMerged)
		prometheus.MustRegister(SearchQueries)
		prometheus.MustRegister(CrawlResults)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(QueueDepth)
		prometheus.MustRegister(BreakerState)
		prometheus.MustRegister(BreakerRejections)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
