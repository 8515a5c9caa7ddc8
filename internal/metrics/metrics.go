package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Check outcomes used as the "outcome" label.
const (
	OutcomeOK             = "ok"
	OutcomeIncident       = "incident"
	OutcomeProcessFailure = "process_failure"
	OutcomeToolError      = "tool_error"
	OutcomeError          = "error"
)

// Check metrics
var (
	// ChecksTotal tracks executed ingest checks by outcome
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipguard_checks_total",
			Help: "Total number of ingest checks by check kind and outcome",
		},
		[]string{"check", "outcome"},
	)

	// CheckDuration tracks check duration
	CheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sipguard_check_duration_seconds",
			Help:    "Ingest check duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600, 14400},
		},
		[]string{"check"},
	)

	// ChecksInProgress tracks currently running checks
	ChecksInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sipguard_checks_in_progress",
			Help: "Number of ingest checks currently running",
		},
		[]string{"check"},
	)
)

// Issue metrics
var (
	// IssuesRecordedTotal tracks persisted issues
	IssuesRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipguard_issues_recorded_total",
			Help: "Total number of issues recorded by check code and policy resolution",
		},
		[]string{"check_code", "resolved_by_policy"},
	)

	// IncidentsOpen tracks incidents waiting for an operator
	IncidentsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sipguard_incidents_open",
			Help: "Number of workflows suspended on an incident",
		},
	)

	// IncidentsTotal tracks incident lifecycle events
	IncidentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipguard_incidents_total",
			Help: "Total number of incident events by event",
		},
		[]string{"event"},
	)

	// QuarantinedTotal tracks packages moved to quarantine
	QuarantinedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sipguard_quarantined_packages_total",
			Help: "Total number of packages moved to quarantine",
		},
	)
)

// Subprocess metrics
var (
	// ProcessDuration tracks external tool run time
	ProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sipguard_process_duration_seconds",
			Help:    "External tool run time in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		},
		[]string{"tool"},
	)

	// ProcessTimeoutsTotal tracks tools stopped by the timeout
	ProcessTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipguard_process_timeouts_total",
			Help: "Total number of external tool runs stopped by timeout, by signal",
		},
		[]string{"tool", "signal"},
	)

	// LogsDroppedTotal tracks records dropped by log sampling
	LogsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipguard_logs_dropped_total",
			Help: "Total number of log records dropped by sampling",
		},
		[]string{"level"},
	)
)
