// Package metrics defines the Prometheus collectors exported by logsync.
// Collectors are registered on an injected registerer so tests can use an
// isolated registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "logsync"

type Metrics struct {
	queueLength    prometheus.Gauge
	online         prometheus.Gauge
	drains         *prometheus.CounterVec
	items          *prometheus.CounterVec
	drainDuration  prometheus.Histogram
	reconciliation *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		queueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_length",
			Help: "Pending mutations in the sync queue.",
		}),
		online: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "backend_online",
			Help: "1 when the backend answered the last reachability probe.",
		}),
		drains: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "drains_total",
			Help: "Drain passes by outcome.",
		}, []string{"outcome"}),
		items: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_items_total",
			Help: "Processed queue entries by operation and result.",
		}, []string{"operation", "result"}),
		drainDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "drain_duration_seconds",
			Help:    "Duration of drain passes.",
			Buckets: prometheus.DefBuckets,
		}),
		reconciliation: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconciliations_total",
			Help: "Identity reconciliations by result.",
		}, []string{"result"}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "integrity_checks_total",
			Help: "Integrity verifications by result.",
		}, []string{"result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "Control API requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "Control API request duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) SetQueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}

func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	v := 0.0
	if online {
		v = 1
	}
	m.online.Set(v)
}

// ObserveDrain records a finished drain. outcome is "completed" or "error".
func (m *Metrics) ObserveDrain(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.drains.WithLabelValues(outcome).Inc()
	m.drainDuration.Observe(d.Seconds())
}

// ItemProcessed counts one queue entry. result is success, failure or abandoned.
func (m *Metrics) ItemProcessed(operation, result string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(operation, result).Inc()
}

// Reconciled counts a resolution: canonical, resolved, ambiguous, not_found, error.
func (m *Metrics) Reconciled(result string) {
	if m == nil {
		return
	}
	m.reconciliation.WithLabelValues(result).Inc()
}

// Verified counts an integrity check: valid, invalid, unresolved, error.
func (m *Metrics) Verified(result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
