package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics provides observability for HTTP adapter operations.
//
// Implementations can collect metrics about requests, connection lifecycle,
// throughput, admission control and the worker pool. This interface is
// optional - if not provided to the HTTP adapter, a no-op implementation is
// used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	m := metrics.NewHTTPMetrics()
//	adapter, err := http.New(config, m)
//
//	// Without metrics (no-op)
//	adapter, err := http.New(config, nil)
type HTTPMetrics interface {
	// RecordRequest records a completed request with its method, response
	// status and the time spent building and writing the response.
	RecordRequest(method string, status int, duration time.Duration)

	// RecordBytesSent records bytes written to clients (headers and body).
	RecordBytesSent(bytes int64)

	// RecordRateLimited increments the counter of requests answered with 429.
	RecordRateLimited()

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionRejected counts connections closed without being
	// served.
	//
	// Parameters:
	//   - reason: "queue_full" or "shutdown"
	RecordConnectionRejected(reason string)

	// RecordConnectionForceClosed counts connections closed after the
	// shutdown timeout expired.
	RecordConnectionForceClosed()

	// SetWorkerPool updates the busy worker and queued connection gauges.
	SetWorkerPool(busy, queued int)
}

// httpMetrics is the Prometheus implementation of HTTPMetrics.
type httpMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	bytesSent              prometheus.Counter
	rateLimited            prometheus.Counter
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsRejected    *prometheus.CounterVec
	connectionsForceClosed prometheus.Counter
	workersBusy            prometheus.Gauge
	queueDepth             prometheus.Gauge
}

// NewHTTPMetrics creates a new Prometheus-backed HTTPMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewHTTPMetrics() HTTPMetrics {
	if !IsEnabled() {
		return NewNoopHTTPMetrics()
	}

	reg := GetRegistry()

	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoserve_http_requests_total",
				Help: "Total number of HTTP requests by method and status code",
			},
			[]string{"method", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoserve_http_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
				Buckets: []float64{
					0.0005, // 500us
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.025,  // 25ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.25,   // 250ms
					0.5,    // 500ms
					1.0,    // 1s
					5.0,    // 5s
				},
			},
			[]string{"method"},
		),
		bytesSent: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoserve_http_bytes_sent_total",
				Help: "Total bytes written to HTTP clients",
			},
		),
		rateLimited: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoserve_http_rate_limited_total",
				Help: "Total number of requests rejected by the per-client rate limiter",
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoserve_http_active_connections",
				Help: "Current number of HTTP connections accepted and not yet closed",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoserve_http_connections_accepted_total",
				Help: "Total number of HTTP connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoserve_http_connections_closed_total",
				Help: "Total number of HTTP connections closed",
			},
		),
		connectionsRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoserve_http_connections_rejected_total",
				Help: "Total number of HTTP connections closed without being served",
			},
			[]string{"reason"},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoserve_http_connections_force_closed_total",
				Help: "Total number of HTTP connections force-closed during shutdown timeout",
			},
		),
		workersBusy: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoserve_http_workers_busy",
				Help: "Current number of workers serving a connection",
			},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoserve_http_queue_depth",
				Help: "Current number of accepted connections waiting for a worker",
			},
		),
	}
}

func (m *httpMetrics) RecordRequest(method string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *httpMetrics) RecordBytesSent(bytes int64) {
	m.bytesSent.Add(float64(bytes))
}

func (m *httpMetrics) RecordRateLimited() {
	m.rateLimited.Inc()
}

func (m *httpMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *httpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *httpMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *httpMetrics) RecordConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *httpMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *httpMetrics) SetWorkerPool(busy, queued int) {
	m.workersBusy.Set(float64(busy))
	m.queueDepth.Set(float64(queued))
}

// NewNoopHTTPMetrics returns an HTTPMetrics that discards everything.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

// noopHTTPMetrics is a no-op implementation of HTTPMetrics with zero overhead.
type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(method string, status int, duration time.Duration) {}
func (noopHTTPMetrics) RecordBytesSent(bytes int64)                                     {}
func (noopHTTPMetrics) RecordRateLimited()                                              {}
func (noopHTTPMetrics) SetActiveConnections(count int32)                                {}
func (noopHTTPMetrics) RecordConnectionAccepted()                                       {}
func (noopHTTPMetrics) RecordConnectionClosed()                                         {}
func (noopHTTPMetrics) RecordConnectionRejected(reason string)                          {}
func (noopHTTPMetrics) RecordConnectionForceClosed()                                    {}
func (noopHTTPMetrics) SetWorkerPool(busy, queued int)                                  {}
