// Package metrics exposes the service's Prometheus collectors.
//
// All methods are safe to call on a nil *Metrics, so components can be
// constructed without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "floorplan"

// Feed update kinds.
const (
	KindPrimary   = "primary"
	KindSecondary = "secondary"
	KindEvent     = "event"
)

// Stale result kinds.
const (
	StalePopup = "popup"
	StaleBatch = "batch"
)

// Metrics holds the service's collectors on a private registry.
type Metrics struct {
	registry            *prometheus.Registry
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeSessions      prometheus.Gauge
	levelSwitches       prometheus.Counter
	levelLoadDuration   prometheus.Histogram
	feedUpdates         *prometheus.CounterVec
	pollErrors          prometheus.Counter
	staleResults        *prometheus.CounterVec
	imageLoads          *prometheus.CounterVec
}

// New creates a fresh registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests processed",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of open floor plan viewing sessions",
		}),
		levelSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_switches_total",
			Help:      "Level activations, including the initial one of each session",
		}),
		levelLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "level_load_duration_seconds",
			Help:      "Time from level selection to the level being active",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		feedUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_updates_total",
			Help:      "Live telemetry updates delivered to sessions",
		}, []string{"kind"}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_poll_errors_total",
			Help:      "Failed event poll queries",
		}),
		staleResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_results_discarded_total",
			Help:      "Asynchronous results dropped because the level changed",
		}, []string{"kind"}),
		imageLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_loads_total",
			Help:      "Level image loads from the asset service",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.httpRequests,
		m.httpRequestDuration,
		m.activeSessions,
		m.levelSwitches,
		m.levelLoadDuration,
		m.feedUpdates,
		m.pollErrors,
		m.staleResults,
		m.imageLoads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveHTTPRequest records a single HTTP request/response cycle.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpRequestDuration.With(labels).Observe(duration.Seconds())
}

// SessionOpened increments the active sessions gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active sessions gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// ObserveLevelSwitch records a completed level activation.
func (m *Metrics) ObserveLevelSwitch(duration time.Duration) {
	if m == nil {
		return
	}
	m.levelSwitches.Inc()
	m.levelLoadDuration.Observe(duration.Seconds())
}

// IncFeedUpdate counts one delivered update of kind.
func (m *Metrics) IncFeedUpdate(kind string) {
	if m == nil {
		return
	}
	m.feedUpdates.WithLabelValues(kind).Inc()
}

// IncPollError counts a failed event poll.
func (m *Metrics) IncPollError() {
	if m == nil {
		return
	}
	m.pollErrors.Inc()
}

// IncStaleResult counts a discarded asynchronous result of kind.
func (m *Metrics) IncStaleResult(kind string) {
	if m == nil {
		return
	}
	m.staleResults.WithLabelValues(kind).Inc()
}

// ObserveImageLoad counts an image load by outcome.
func (m *Metrics) ObserveImageLoad(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.imageLoads.WithLabelValues(result).Inc()
}

// Handler exposes the Prometheus registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics unavailable"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
