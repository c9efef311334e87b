package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency. Shared across all handlers.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "mockfactory",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// EnvironmentsByState tracks the current count of Environments per state (§4.3).
var EnvironmentsByState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "mockfactory",
		Subsystem: "environments",
		Name:      "by_state",
		Help:      "Current number of environments in each lifecycle state.",
	},
	[]string{"state"},
)

// PortsInUse tracks the current number of active port allocations (§4.4).
var PortsInUse = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "mockfactory",
		Subsystem: "ports",
		Name:      "in_use",
		Help:      "Current number of active port allocations.",
	},
)

// ProvisioningDuration tracks how long service provisioning takes per kind (§4.5).
var ProvisioningDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "mockfactory",
		Subsystem: "provisioning",
		Name:      "duration_seconds",
		Help:      "Service provisioning duration in seconds, by service kind and outcome.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 15, 30, 60, 120},
	},
	[]string{"service_kind", "outcome"},
)

// AccrualReconciliationsTotal counts hour-boundary UsageInterval reconciliations (§4.8).
var AccrualReconciliationsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "mockfactory",
		Subsystem: "metering",
		Name:      "accrual_reconciliations_total",
		Help:      "Total number of usage intervals closed and reopened at hour boundaries.",
	},
)

// SQSMessagesInFlight tracks messages currently invisible pending ack (§4.6 SQS).
var SQSMessagesInFlight = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "mockfactory",
		Subsystem: "sqs",
		Name:      "messages_in_flight",
		Help:      "Current number of SQS messages with an unexpired visibility timeout.",
	},
	[]string{"queue"},
)

// LambdaConcurrentInvocations tracks in-flight Lambda invokes per function (§4.6 Lambda).
var LambdaConcurrentInvocations = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "mockfactory",
		Subsystem: "lambda",
		Name:      "concurrent_invocations",
		Help:      "Current number of in-flight Lambda invocations per function.",
	},
	[]string{"function"},
)

// AutoShutdownsTotal counts environments stopped by the auto-shutdown loop (§4.9).
var AutoShutdownsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "mockfactory",
		Subsystem: "scheduler",
		Name:      "auto_shutdowns_total",
		Help:      "Total number of environments stopped by the auto-shutdown loop.",
	},
)

// PortsReclaimedTotal counts port allocations reclaimed by the port-GC loop (§4.9).
var PortsReclaimedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "mockfactory",
		Subsystem: "scheduler",
		Name:      "ports_reclaimed_total",
		Help:      "Total number of port allocations marked inactive by the GC loop.",
	},
)

// All returns all MockFactory-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		EnvironmentsByState,
		PortsInUse,
		ProvisioningDuration,
		AccrualReconciliationsTotal,
		SQSMessagesInFlight,
		LambdaConcurrentInvocations,
		AutoShutdownsTotal,
		PortsReclaimedTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional service-specific
// collectors passed as arguments.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
