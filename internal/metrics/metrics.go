// Package metrics exposes Prometheus collectors for the download client.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the collectors.
const (
	OutcomeOK        = "ok"
	OutcomeTransport = "transport_error"
	OutcomeServer    = "server_error"
	OutcomeInvalid   = "validation_error"
)

var (
	gatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytdl_gateway_requests_total",
			Help: "Total number of backend API calls, labeled by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	gatewayRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ytdl_gateway_request_duration_seconds",
			Help:    "Histogram of backend API call latencies, labeled by operation.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	heartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytdl_heartbeats_total",
			Help: "Total number of activity heartbeats sent, labeled by trigger.",
		},
		[]string{"trigger"},
	)

	streamFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ytdl_stream_fallbacks_total",
			Help: "Total number of times progress monitoring fell back from the push stream to polling.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytdl_http_requests_total",
			Help: "Total number of operator HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ytdl_http_request_duration_seconds",
			Help:    "Histogram of operator HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"method", "route"},
	)

	statusPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ytdl_status_polls_total",
			Help: "Total number of fallback status polls, labeled by result.",
		},
		[]string{"result"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGatewayRequest records one backend call.
func ObserveGatewayRequest(operation, outcome string, duration time.Duration) {
	gatewayRequestsTotal.WithLabelValues(operation, outcome).Inc()
	gatewayRequestDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveHeartbeat increments the heartbeat counter for the given trigger.
func ObserveHeartbeat(trigger string) {
	heartbeatsTotal.WithLabelValues(trigger).Inc()
}

// ObserveStreamFallback counts a switch from the push stream to polling.
func ObserveStreamFallback() {
	streamFallbacksTotal.Inc()
}

// ObserveStatusPoll records a poll result ("ok" or "error").
func ObserveStatusPoll(result string) {
	statusPollsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest records metrics for an operator HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
