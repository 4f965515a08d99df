// Package metrics provides Prometheus observability metrics for the attendance engine.
// It includes Critical and Important metrics for business and operational visibility.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom prometheus registry for our application
var Registry = prometheus.NewRegistry()

// factory allows us to register metrics to our custom Registry directly
var factory = promauto.With(Registry)

// =============================================================================
// CRITICAL METRICS - Business Impact Visibility
// =============================================================================

// DaysEvaluatedTotal counts evaluated agent-days by final status code.
var DaysEvaluatedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "attendance",
	Name:      "days_evaluated_total",
	Help:      "Agent-days evaluated, by final status code",
}, []string{"status"})

// OverridesAppliedTotal counts agent-days whose status came from an override.
var OverridesAppliedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "attendance",
	Name:      "overrides_applied_total",
	Help:      "Overrides applied during evaluation, by override code",
}, []string{"type"})

// LateMinutesTotal accumulates reported lateness minutes.
var LateMinutesTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "attendance",
	Name:      "late_minutes_total",
	Help:      "Lateness minutes reported across evaluated agent-days",
})

// AgentsReported tracks the number of agents in the last computed range.
var AgentsReported = factory.NewGauge(prometheus.GaugeOpts{
	Namespace: "attendance",
	Name:      "agents_reported",
	Help:      "Number of agents in the most recent range result",
})

// =============================================================================
// IMPORTANT METRICS - Operational Health
// =============================================================================

// AgentDaysSkippedTotal counts agent-days dropped by the recovery boundary.
var AgentDaysSkippedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "attendance",
	Name:      "agent_days_skipped_total",
	Help:      "Agent-days excluded from a range because of malformed input",
}, []string{"reason"})

// RangeDurationSeconds tracks time to compute a range.
var RangeDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "attendance",
	Name:      "range_duration_seconds",
	Help:      "Time taken to compute an attendance range",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
})

// ScheduleLookupsTotal counts roster lookups that reached the schedule source.
var ScheduleLookupsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "schedule",
	Name:      "lookups_total",
	Help:      "Roster lookups that missed the per-query cache",
})

// ParserErrorsTotal tracks parse errors by error type.
var ParserErrorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "parser",
	Name:      "errors_total",
	Help:      "Total parse errors by error type",
}, []string{"error_type"})

// ParserRecordsTotal tracks total records successfully parsed.
var ParserRecordsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "parser",
	Name:      "records_total",
	Help:      "Total CSV records successfully parsed",
})

// ParserDurationSeconds tracks time to parse input files.
var ParserDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "parser",
	Name:      "duration_seconds",
	Help:      "Time taken to parse CSV input file",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
})

// StoreOperationsTotal counts store calls by operation and result.
var StoreOperationsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "store",
	Name:      "operations_total",
	Help:      "Store operations by operation and result",
}, []string{"op", "result"})

// FileReloadsTotal counts reloads triggered by changes to watched input files.
var FileReloadsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "watch",
	Name:      "file_reloads_total",
	Help:      "Reloads triggered by watched file changes, by file and result",
}, []string{"file", "result"})

// HTTPRequestsTotal counts API requests by route pattern and status code.
var HTTPRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by route and status code",
}, []string{"route", "code"})

// =============================================================================
// Helper Functions
// =============================================================================

// ObserveStore records the outcome of a store operation.
func ObserveStore(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StoreOperationsTotal.WithLabelValues(op, result).Inc()
}
