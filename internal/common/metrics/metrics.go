// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_tasks_processed_total",
			Help: "Follow-up tasks processed by outcome (sent, failed, dead, skipped)",
		},
		[]string{"outcome"},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_job_runs_total",
			Help: "Scheduler job runs by status (success, failure, skipped)",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "followup_job_duration_seconds",
			Help:    "Duration of scheduler job runs in seconds",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 180, 300, 600},
		},
		[]string{"job"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "followup_due_queue_depth",
			Help: "Due follow-up tasks observed at the start of the last cycle",
		},
	)

	BatchSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "followup_batch_size",
			Help: "Adaptive batch size chosen for the last cycle",
		},
	)

	StrategySelected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_strategy_selected_total",
			Help: "Message artifacts produced by strategy tier",
		},
		[]string{"strategy"},
	)

	GenerationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_generation_attempts_total",
			Help: "AI generation attempts by result (ok, timeout, error)",
		},
		[]string{"result"},
	)

	TemplateEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "followup_template_evictions_total",
			Help: "Templates deleted by quota enforcement pass",
		},
		[]string{"pass"},
	)

	RegistryInconsistencies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "followup_registry_inconsistencies_total",
			Help: "Remote template deletions that failed after local state was kept authoritative",
		},
	)

	ApprovedTemplates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "followup_approved_templates",
			Help: "Approved templates per account as last observed by the quota manager",
		},
		[]string{"account_id"},
	)

	HealthDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "followup_health_degraded",
			Help: "1 when the scheduler reports degraded health",
		},
	)
)
