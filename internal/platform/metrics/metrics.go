package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playback session service.
type Metrics struct {
	registry                   *prometheus.Registry
	requestsTotal              prometheus.Counter
	errorsTotal                prometheus.Counter
	sessionsStartedTotal       prometheus.Counter
	resolutionsTotal           *prometheus.CounterVec
	staleResultsDroppedTotal   prometheus.Counter
	positionWritesTotal        *prometheus.CounterVec
	positionWriteFailuresTotal prometheus.Counter
	activeSessions             prometheus.Gauge
}

// New creates and registers Prometheus metrics for the playback session service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	sessionsStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_sessions_started_total",
		Help: "Total number of playback sessions started",
	})
	resolutionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_resolutions_total",
		Help: "Total number of source resolutions by outcome",
	}, []string{"outcome"})
	staleResultsDroppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_stale_results_dropped_total",
		Help: "Total number of async results discarded because their session generation was stale",
	})
	positionWritesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playback_position_writes_total",
		Help: "Total number of successful position writes by operation (create or update)",
	}, []string{"op"})
	positionWriteFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_position_write_failures_total",
		Help: "Total number of failed position writes (logged and swallowed)",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_active_sessions",
		Help: "Number of playback sessions that are not disposed",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		sessionsStartedTotal,
		resolutionsTotal,
		staleResultsDroppedTotal,
		positionWritesTotal,
		positionWriteFailuresTotal,
		activeSessions,
	)

	return &Metrics{
		registry:                   registry,
		requestsTotal:              requestsTotal,
		errorsTotal:                errorsTotal,
		sessionsStartedTotal:       sessionsStartedTotal,
		resolutionsTotal:           resolutionsTotal,
		staleResultsDroppedTotal:   staleResultsDroppedTotal,
		positionWritesTotal:        positionWritesTotal,
		positionWriteFailuresTotal: positionWriteFailuresTotal,
		activeSessions:             activeSessions,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSessionsStarted increments the sessions started counter.
func (m *Metrics) IncSessionsStarted() {
	m.sessionsStartedTotal.Inc()
}

// IncResolution increments the resolution counter for the given outcome label.
func (m *Metrics) IncResolution(outcome string) {
	m.resolutionsTotal.WithLabelValues(outcome).Inc()
}

// IncStaleResultsDropped increments the stale result counter.
func (m *Metrics) IncStaleResultsDropped() {
	m.staleResultsDroppedTotal.Inc()
}

// IncPositionWrite increments the position write counter for op ("create" or "update").
func (m *Metrics) IncPositionWrite(op string) {
	m.positionWritesTotal.WithLabelValues(op).Inc()
}

// IncPositionWriteFailure increments the position write failure counter.
func (m *Metrics) IncPositionWriteFailure() {
	m.positionWriteFailuresTotal.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
