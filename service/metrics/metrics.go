package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Upstream API metrics (Helius, Solana RPC, OpenAI)
	apiCallsTotal     *prometheus.CounterVec
	apiCallDuration   *prometheus.HistogramVec
	apiRateLimitHits  *prometheus.CounterVec
	apiRetries        *prometheus.CounterVec
	apiPagesPerWallet *prometheus.HistogramVec

	// Transaction pipeline metrics
	transactionsFetchedTotal  prometheus.Counter
	transactionsRetainedTotal prometheus.Counter
	transactionsSmallTotal    prometheus.Counter
	stageDuration             *prometheus.HistogramVec

	// Report metrics
	reportsTotal     *prometheus.CounterVec
	narrativesTotal  *prometheus.CounterVec
	creditScoreValue prometheus.Histogram

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   prometheus.Histogram
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		apiCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solcredit_api_calls_total",
				Help: "Total number of upstream API calls by API, method and status",
			},
			[]string{"api", "method", "status"},
		),
		apiCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solcredit_api_call_duration_seconds",
				Help:    "Duration of upstream API calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"api", "method"},
		),
		apiRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solcredit_api_rate_limit_hits_total",
				Help: "Total number of upstream rate limit responses (429)",
			},
			[]string{"api"},
		),
		apiRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solcredit_api_retries_total",
				Help: "Total number of upstream API retry attempts",
			},
			[]string{"api", "reason"},
		),
		apiPagesPerWallet: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solcredit_api_pages_per_wallet",
				Help:    "Number of transaction history pages fetched per wallet",
				Buckets: []float64{1, 2, 3, 5, 10},
			},
			[]string{"api"},
		),

		transactionsFetchedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "solcredit_transactions_fetched_total",
				Help: "Total number of raw transactions fetched",
			},
		),
		transactionsRetainedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "solcredit_transactions_retained_total",
				Help: "Total number of transactions retained by the filter",
			},
		),
		transactionsSmallTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "solcredit_transactions_small_total",
				Help: "Total number of transactions discarded below the minimum amount",
			},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solcredit_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"stage", "status"},
		),

		reportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solcredit_reports_total",
				Help: "Total number of credit reports by tier",
			},
			[]string{"tier"},
		),
		narrativesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solcredit_narratives_total",
				Help: "Total number of narrative generation attempts by status",
			},
			[]string{"status"},
		),
		creditScoreValue: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "solcredit_credit_score",
				Help:    "Distribution of produced credit scores",
				Buckets: []float64{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000},
			},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solcredit_nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "solcredit_nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),
	}
}

// Upstream API metric helpers

// RecordAPICall records an upstream API call with duration.
func (m *Metrics) RecordAPICall(api, method, status string, duration float64) {
	if m == nil {
		return
	}
	m.apiCallsTotal.WithLabelValues(api, method, status).Inc()
	m.apiCallDuration.WithLabelValues(api, method).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(api string) {
	if m == nil {
		return
	}
	m.apiRateLimitHits.WithLabelValues(api).Inc()
}

// RecordRetry records a retry attempt.
func (m *Metrics) RecordRetry(api, reason string) {
	if m == nil {
		return
	}
	m.apiRetries.WithLabelValues(api, reason).Inc()
}

// RecordPages records how many history pages one wallet needed.
func (m *Metrics) RecordPages(api string, pages int) {
	if m == nil {
		return
	}
	m.apiPagesPerWallet.WithLabelValues(api).Observe(float64(pages))
}

// Pipeline metric helpers

// RecordFilter records the outcome of one filter pass.
func (m *Metrics) RecordFilter(fetched, retained, small int) {
	if m == nil {
		return
	}
	m.transactionsFetchedTotal.Add(float64(fetched))
	m.transactionsRetainedTotal.Add(float64(retained))
	m.transactionsSmallTotal.Add(float64(small))
}

// RecordStage records a pipeline stage duration.
func (m *Metrics) RecordStage(stage string, err error, duration float64) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(duration)
}

// RecordReport records an emitted report.
func (m *Metrics) RecordReport(tier string, score float64) {
	if m == nil {
		return
	}
	m.reportsTotal.WithLabelValues(tier).Inc()
	m.creditScoreValue.Observe(score)
}

// RecordNarrative records a narrative generation attempt ("success" or "unavailable").
func (m *Metrics) RecordNarrative(status string) {
	if m == nil {
		return
	}
	m.narrativesTotal.WithLabelValues(status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.Observe(duration)
}

// StatusFromCode groups HTTP status codes by class.
func StatusFromCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
