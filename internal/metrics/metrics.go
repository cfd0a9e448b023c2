// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zgate_http_requests_total",
			Help: "Total number of file requests",
		},
		[]string{"method", "channel", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zgate_http_request_duration_seconds",
			Help:    "Time until response headers were written",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "channel"},
	)

	bytesServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zgate_bytes_served_total",
			Help: "Total body bytes written to clients",
		},
		[]string{"channel"},
	)

	accessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zgate_access_decisions_total",
			Help: "Access gate decisions",
		},
		[]string{"decision"},
	)

	chunkFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zgate_chunk_fetches_total",
			Help: "Chunk fetch attempts by result",
		},
		[]string{"result"},
	)

	chunkFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zgate_chunk_fetch_duration_seconds",
			Help:    "Duration of a single chunk fetch attempt",
			Buckets: prometheus.DefBuckets,
		},
	)

	backendOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zgate_backend_operations_total",
			Help: "Backend operations by backend, operation and result",
		},
		[]string{"backend", "operation", "success"},
	)

	backendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zgate_backend_operation_duration_seconds",
			Help:    "Backend operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)
)

// RecordRequest records a finished file request.
func RecordRequest(method, channel string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, channel, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, channel).Observe(duration.Seconds())
}

// RecordBytes adds to the bytes served for a channel.
func RecordBytes(channel string, n int64) {
	if n > 0 {
		bytesServed.WithLabelValues(channel).Add(float64(n))
	}
}

// RecordDecision counts an access gate decision.
func RecordDecision(decision string) {
	accessDecisions.WithLabelValues(decision).Inc()
}

// RecordChunkFetch records one chunk fetch attempt. result is "ok", "retry" or "failed".
func RecordChunkFetch(result string, duration time.Duration) {
	chunkFetches.WithLabelValues(result).Inc()
	chunkFetchDuration.Observe(duration.Seconds())
}

// RecordBackendOperation records a call to a storage backend.
func RecordBackendOperation(backend, operation string, duration time.Duration, success bool) {
	backendOperations.WithLabelValues(backend, operation, strconv.FormatBool(success)).Inc()
	backendDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
