package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_questions_total",
			Help: "Total number of questions by outcome (ok or failure reason).",
		},
		[]string{"outcome"},
	)
	questionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_question_latency_ms",
			Help:    "End-to-end question latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
	)
	modelLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_model_latency_ms",
			Help:    "Completion service latency in milliseconds, retries included.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
	)
	modelRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_model_retries_total",
			Help: "Total number of completion retries after a transient failure.",
		},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_query_rows_returned",
			Help:    "Rows returned per executed statement.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 250, 500, 1000},
		},
	)
	queryTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_query_truncated_total",
			Help: "Total number of results cut at the row limit.",
		},
	)
	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_auth_failures_total",
			Help: "Total number of rejected credentials by cause.",
		},
		[]string{"cause"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		questionsTotal,
		questionLatencyMs,
		modelLatencyMs,
		modelRetriesTotal,
		queryRowsReturned,
		queryTruncatedTotal,
		authFailuresTotal,
	)
}

// ObserveQuestion records one finished question; outcome is "ok" or the
// failure reason.
func ObserveQuestion(outcome string, elapsed time.Duration) {
	questionsTotal.WithLabelValues(outcome).Inc()
	questionLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveModelCall(attempts int, elapsed time.Duration) {
	modelLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if attempts > 1 {
		modelRetriesTotal.Add(float64(attempts - 1))
	}
}

func ObserveQueryRows(rows int, truncated bool) {
	queryRowsReturned.Observe(float64(rows))
	if truncated {
		queryTruncatedTotal.Inc()
	}
}

func ObserveAuthFailure(cause string) {
	authFailuresTotal.WithLabelValues(cause).Inc()
}
