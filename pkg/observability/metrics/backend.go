package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// BackendCollectors are the storage backend metrics.
type BackendCollectors struct {
	// OperationsTotal counts backend calls. Labels: backend, operation, outcome
	OperationsTotal *prometheus.CounterVec
	// OperationDuration tracks backend call latency in seconds. Labels: backend, operation
	OperationDuration *prometheus.HistogramVec
	// Connected is 1 while a backend holds a live connection. Labels: backend
	Connected *prometheus.GaugeVec
	// GatingRejections counts service calls refused before reaching the backend.
	// Labels: operation, reason
	GatingRejections *prometheus.CounterVec
}

// NewBackendCollectors creates unregistered collectors under namespace.
func NewBackendCollectors(namespace string) *BackendCollectors {
	return &BackendCollectors{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_operations_total",
				Help:      "Total number of storage backend operations",
			},
			[]string{"backend", "operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_operation_duration_seconds",
				Help:      "Storage backend operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),
		Connected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_connected",
				Help:      "Whether the storage backend is connected (1) or not (0)",
			},
			[]string{"backend"},
		),
		GatingRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_gating_rejections_total",
				Help:      "Total number of directory operations rejected by the service gate",
			},
			[]string{"operation", "reason"},
		),
	}
}

// Collectors returns every collector for registration.
func (c *BackendCollectors) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.OperationsTotal, c.OperationDuration, c.Connected, c.GatingRejections}
}

// ObserveOperation records one backend call.
func (c *BackendCollectors) ObserveOperation(backend, operation string, ok bool, duration time.Duration) {
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeFailure
	}
	c.OperationsTotal.WithLabelValues(backend, operation, outcome).Inc()
	c.OperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// SetConnected updates the connection gauge of backend.
func (c *BackendCollectors) SetConnected(backend string, connected bool) {
	value := 0.0
	if connected {
		value = 1
	}
	c.Connected.WithLabelValues(backend).Set(value)
}

// RecordRejection counts a gating rejection.
func (c *BackendCollectors) RecordRejection(operation, reason string) {
	c.GatingRejections.WithLabelValues(operation, reason).Inc()
}
