// internal/followup/scheduler/models.go
package scheduler

import "time"

const (
	JobProcessDueTasks      = "process-due-tasks"
	JobDeadLeadSweep        = "dead-lead-sweep"
	JobPerformanceAnalytics = "performance-analytics"
	JobHealthCheck          = "health-check"
	JobTemplatePerformance  = "template-performance"
)

type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
)

// outcome of one task in a cycle
type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeDead
	outcomeSkipped
)

func (o outcome) String() string {
	switch o {
	case outcomeSent:
		return "sent"
	case outcomeFailed:
		return "failed"
	case outcomeDead:
		return "dead"
	default:
		return "skipped"
	}
}

// CycleStats summarises one main-processor run.
type CycleStats struct {
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	QueueDepth int           `json:"queueDepth"`
	BatchSize  int           `json:"batchSize"`
	Processed  int           `json:"processed"`
	Sent       int           `json:"sent"`
	Failed     int           `json:"failed"`
	Dead       int           `json:"dead"`
	Skipped    int           `json:"skipped"`
}

// FailureRatio counts dead-by-retry tasks as failures.
func (c CycleStats) FailureRatio() float64 {
	if c.Processed == 0 {
		return 0
	}
	return float64(c.Failed+c.Dead) / float64(c.Processed)
}

type JobStatus struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Running      bool          `json:"running"`
	Runs         int64         `json:"runs"`
	Failures     int64         `json:"failures"`
	Skipped      int64         `json:"skipped"`
	LastRun      *time.Time    `json:"lastRun,omitempty"`
	LastDuration time.Duration `json:"lastDuration"`
	LastError    string        `json:"lastError,omitempty"`
}

// Status is the operational snapshot returned by GetStatus.
type Status struct {
	Running       bool        `json:"running"`
	StartedAt     *time.Time  `json:"startedAt,omitempty"`
	Health        HealthState `json:"health"`
	HealthReasons []string    `json:"healthReasons,omitempty"`
	QueueDepth    int         `json:"queueDepth"`
	RecentErrors  int         `json:"recentErrors"`
	LastCycle     *CycleStats `json:"lastCycle,omitempty"`
	Jobs          []JobStatus `json:"jobs"`
}
