package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Upstream API metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec

	// Session store metrics
	SessionOperations *prometheus.CounterVec
	SessionLatency    *prometheus.HistogramVec
	LoginsTotal       prometheus.Counter

	// Adherence metrics
	GridBuilds  prometheus.Counter
	GridRecords prometheus.Histogram

	// Audit metrics
	AuditEvents   *prometheus.CounterVec
	AuditConsumed *prometheus.CounterVec
	AuditLag      prometheus.Histogram
}

// NewMetrics creates and registers all application metrics. A nil registerer
// registers on the default Prometheus registry.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		UpstreamRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "upstream_requests_total",
			Help:      "Total number of calls to the patient API",
		}, []string{"operation", "outcome"}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of calls to the patient API",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),

		SessionOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_operations_total",
			Help:      "Total number of session store operations",
		}, []string{"operation", "status"}),
		SessionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_operation_duration_seconds",
			Help:      "Duration of session store operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"operation"}),
		LoginsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "logins_total",
			Help:      "Total number of successful logins",
		}),

		GridBuilds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "adherence_grid_builds_total",
			Help:      "Total number of adherence grids built",
		}),
		GridRecords: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "adherence_grid_records",
			Help:      "Number of daily records fed into each grid",
			Buckets:   []float64{0, 1, 7, 14, 30, 60, 90, 180, 365},
		}),

		AuditEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_events_total",
			Help:      "Total number of PHI access events published",
		}, []string{"status"}),
		AuditConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_events_consumed_total",
			Help:      "Total number of PHI access events read by the audit worker",
		}, []string{"status"}),
		AuditLag: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_event_lag_seconds",
			Help:      "Time between an access and the audit worker recording it",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
	}
}

// New registers metrics on a private registry; used by tests and tools that
// must not collide with the default registry.
func New(namespace string) *Metrics {
	return NewMetrics(namespace, "", prometheus.NewRegistry())
}
