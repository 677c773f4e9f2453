package ui

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fraser29/zfmrf/pkg/core"
)

// Metrics holds the Prometheus collectors exposed at /metrics. Each server
// carries its own registry so tests and embedded servers stay isolated.
type Metrics struct {
	registry *prometheus.Registry

	subjectsIndexed prometheus.Gauge
	actionRuns      *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
	watchEvents     prometheus.Counter
	checkReports    prometheus.Counter
}

// NewMetrics creates and registers the server's collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		subjectsIndexed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "zfmrf",
			Name:      "subjects_indexed",
			Help:      "Number of subject directories currently in the index",
		}),
		actionRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zfmrf",
			Name:      "action_runs_total",
			Help:      "Subject actions executed through the UI server",
		}, []string{"action", "status"}),
		actionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zfmrf",
			Name:      "action_duration_seconds",
			Help:      "Wall time of subject actions executed through the UI server",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"action"}),
		watchEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "zfmrf",
			Name:      "watch_events_total",
			Help:      "Filesystem change events accepted by the data-root watcher",
		}),
		checkReports: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "zfmrf",
			Name:      "check_reports_total",
			Help:      "Check reports generated for subjects",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetSubjectsIndexed records the current index size.
func (m *Metrics) SetSubjectsIndexed(n int) {
	m.subjectsIndexed.Set(float64(n))
}

// ObserveAction records one action execution.
func (m *Metrics) ObserveAction(action string, status core.ActionRunStatus, d time.Duration) {
	m.actionRuns.WithLabelValues(action, string(status)).Inc()
	m.actionDuration.WithLabelValues(action).Observe(d.Seconds())
}

// IncWatchEvents counts an accepted watcher event.
func (m *Metrics) IncWatchEvents() {
	m.watchEvents.Inc()
}

// IncCheckReports counts a generated check report.
func (m *Metrics) IncCheckReports() {
	m.checkReports.Inc()
}
