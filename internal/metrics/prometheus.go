// Package metrics provides Prometheus metrics for remipn.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultTimeout = "timeout"
)

// Metrics holds all Prometheus metrics for remipn. All recording methods
// are safe to call on a nil *Metrics.
type Metrics struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	AttemptsTotal     *prometheus.CounterVec

	// Invariant enforcement
	ConflictDisconnects   prometheus.Counter
	StabilizationFailures prometheus.Counter
	IntruderDisconnects   prometheus.Counter

	// Reconciliation metrics
	ReconcileTotal    *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram
	ConnectionUp      *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remipn_operations_total",
			Help: "Total number of orchestrated connect/disconnect operations",
		},
		[]string{"op", "result"},
	)

	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remipn_operation_duration_seconds",
			Help:    "Duration of orchestrated operations including retries",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"op"},
	)

	m.AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remipn_operation_attempts_total",
			Help: "Total number of operation attempts",
		},
		[]string{"op"},
	)

	m.ConflictDisconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "remipn_conflict_disconnects_total",
			Help: "Profiles disconnected to keep a single VPN active",
		},
	)

	m.StabilizationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "remipn_stabilization_failures_total",
			Help: "Connections that dropped during the stabilization window",
		},
	)

	m.IntruderDisconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "remipn_intruder_disconnects_total",
			Help: "Profiles that became active during stabilization and were disconnected",
		},
	)

	m.ReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remipn_reconcile_total",
			Help: "Total number of reconciliation passes",
		},
		[]string{"result"},
	)

	m.ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "remipn_reconcile_duration_seconds",
			Help:    "Duration of reconciliation passes",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	m.ConnectionUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "remipn_connection_up",
			Help: "Connection state per profile (1 = connected, 0 = not connected)",
		},
		[]string{"profile"},
	)

	// Register all metrics
	m.registry.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.AttemptsTotal,
		m.ConflictDisconnects,
		m.StabilizationFailures,
		m.IntruderDisconnects,
		m.ReconcileTotal,
		m.ReconcileDuration,
		m.ConnectionUp,
	)

	// Register default Go metrics
	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordOperation records the outcome of an orchestrated operation.
func (m *Metrics) RecordOperation(op, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, result).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordAttempt counts one attempt of op.
func (m *Metrics) RecordAttempt(op string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(op).Inc()
}

// RecordConflictDisconnect counts a profile disconnected before a connect.
func (m *Metrics) RecordConflictDisconnect() {
	if m == nil {
		return
	}
	m.ConflictDisconnects.Inc()
}

// RecordIntruderDisconnect counts a profile disconnected during stabilization.
func (m *Metrics) RecordIntruderDisconnect() {
	if m == nil {
		return
	}
	m.IntruderDisconnects.Inc()
}

// RecordStabilizationFailure counts a connection that did not hold.
func (m *Metrics) RecordStabilizationFailure() {
	if m == nil {
		return
	}
	m.StabilizationFailures.Inc()
}

// RecordReconcile records one reconciliation pass.
func (m *Metrics) RecordReconcile(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.ReconcileTotal.WithLabelValues(result).Inc()
	m.ReconcileDuration.Observe(d.Seconds())
}

// SetConnectionUp sets the per-profile connection gauge.
func (m *Metrics) SetConnectionUp(profile string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.ConnectionUp.WithLabelValues(profile).Set(v)
}
