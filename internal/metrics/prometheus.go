package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the TTS gateway
type Metrics struct {
	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec

	// Synthesis metrics
	SynthesisRequests  prometheus.Counter
	SynthesisSuccesses prometheus.Counter
	SynthesisFailures  *prometheus.CounterVec
	ActiveStreams      prometheus.Gauge
	StreamDuration     prometheus.Histogram
	StreamedBytes      prometheus.Counter

	// Upstream metrics
	UpstreamConnectDuration prometheus.Histogram
	ClientDisconnects       prometheus.Counter
	MidStreamFailures       prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tts_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tts_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tts_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),

		// Synthesis metrics
		SynthesisRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tts_synthesis_requests_total",
			Help: "Total number of synthesis requests accepted for relay",
		}),
		SynthesisSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tts_synthesis_successes_total",
			Help: "Total number of fully relayed synthesis streams",
		}),
		SynthesisFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tts_synthesis_failures_total",
			Help: "Total number of failed synthesis requests by reason",
		}, []string{"reason"}),
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tts_active_streams",
			Help: "Current number of in-flight audio relays",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tts_stream_duration_seconds",
			Help:    "Duration of audio relays in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7 minutes
		}),
		StreamedBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tts_streamed_bytes_total",
			Help: "Total number of audio bytes relayed to callers",
		}),

		// Upstream metrics
		UpstreamConnectDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tts_upstream_connect_duration_seconds",
			Help:    "Time from synthesis request to first upstream response",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		ClientDisconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tts_client_disconnects_total",
			Help: "Total number of relays aborted by client disconnect",
		}),
		MidStreamFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tts_midstream_failures_total",
			Help: "Total number of upstream failures after streaming began",
		}),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

// RecordSynthesisRequest increments the synthesis requests counter
func (m *Metrics) RecordSynthesisRequest() {
	m.SynthesisRequests.Inc()
}

// RecordSynthesisSuccess records a fully relayed stream
func (m *Metrics) RecordSynthesisSuccess(durationSeconds float64, bytes int64) {
	m.SynthesisSuccesses.Inc()
	m.StreamDuration.Observe(durationSeconds)
	m.StreamedBytes.Add(float64(bytes))
}

// RecordSynthesisFailure records a failed synthesis request by reason
func (m *Metrics) RecordSynthesisFailure(reason string) {
	m.SynthesisFailures.WithLabelValues(reason).Inc()
}

// RecordUpstreamConnect records the time until the upstream responded
func (m *Metrics) RecordUpstreamConnect(durationSeconds float64) {
	m.UpstreamConnectDuration.Observe(durationSeconds)
}

// RecordClientDisconnect increments the client disconnect counter
func (m *Metrics) RecordClientDisconnect() {
	m.ClientDisconnects.Inc()
}

// RecordMidStreamFailure increments the mid-stream upstream failure counter
func (m *Metrics) RecordMidStreamFailure() {
	m.MidStreamFailures.Inc()
}

// StreamStarted increments the active stream gauge
func (m *Metrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamFinished decrements the active stream gauge
func (m *Metrics) StreamFinished() {
	m.ActiveStreams.Dec()
}
