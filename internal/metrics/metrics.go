package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks the number of outbound API calls to Zoho.
	ZohoRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zoho_api_requests_total",
			Help: "Total number of Zoho API requests made (by endpoint and method).",
		},
		[]string{"endpoint", "method", "status"},
	)

	// Measures duration of API requests to Zoho.
	ZohoRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zoho_api_request_duration_seconds",
			Help:    "Duration of Zoho API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"endpoint", "method"},
	)

	// Tracks OAuth token refreshes against the accounts endpoint.
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zoho_token_refreshes_total",
			Help: "Total number of access token refreshes.",
		},
		[]string{"result"}, // ok | error
	)

	// Tracks bulk read jobs created per CRM module.
	BulkJobsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_jobs_created_total",
			Help: "Total number of bulk read jobs created.",
		},
		[]string{"module"},
	)

	// Tracks records deleted per CRM module.
	RecordsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_deleted_total",
			Help: "Total number of CRM records deleted.",
		},
		[]string{"module"},
	)

	// Tracks NATS messages processed by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages processed.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Tracks cache hits and misses for secrets / credentials.
	SecretsCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secrets_cache_access_total",
			Help: "Number of cache hits/misses in secret cache.",
		},
		[]string{"result"}, // hit | miss
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_errors_total",
			Help: "Count of tool-level errors by component.",
		},
		[]string{"component", "reason"},
	)

	// Gauges the last successful job status poll (seconds since epoch).
	LastPollTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bulk_last_poll_timestamp",
			Help: "Timestamp (unix seconds) of the last successful job status poll.",
		},
		[]string{"component"},
	)
)

// ObserveDuration records the time taken for a function and updates the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// silently ignore counters; they're not meant for duration tracking
	}
}

func IncZohoRequest(endpoint, method, status string) {
	ZohoRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

func IncTokenRefresh(result string) {
	TokenRefreshesTotal.WithLabelValues(result).Inc()
}

func IncBulkJobCreated(module string) {
	BulkJobsCreated.WithLabelValues(module).Inc()
}

func AddRecordsDeleted(module string, n int) {
	RecordsDeleted.WithLabelValues(module).Add(float64(n))
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncCacheHit(result string) {
	SecretsCacheHits.WithLabelValues(result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetLastPoll(component string, t time.Time) {
	LastPollTimestamp.WithLabelValues(component).Set(float64(t.Unix()))
}
