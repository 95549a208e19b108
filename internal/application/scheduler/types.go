package scheduler

import (
	"errors"
	"time"

	"github.com/dreschagin/pipeline-analytics/internal/application/port"
	"github.com/dreschagin/pipeline-analytics/internal/domain/analyzer"
	"github.com/dreschagin/pipeline-analytics/internal/domain/valueobject"
)

var (
	// ErrInvalidSchedule marks a cron expression the parser rejected.
	ErrInvalidSchedule = errors.New("scheduler: invalid schedule")

	// ErrConcurrencyLimit is returned when the running-job ceiling is reached.
	ErrConcurrencyLimit = errors.New("scheduler: concurrency limit exceeded")

	// ErrJobNotFound is returned for an unknown job or execution id.
	ErrJobNotFound = errors.New("scheduler: job not found")

	// ErrStopped is returned after Shutdown.
	ErrStopped = errors.New("scheduler: stopped")
)

// JobType selects which analysis a job runs.
type JobType string

const (
	JobAnomalyDetection JobType = "anomaly_detection"
	JobTrendAnalysis    JobType = "trend_analysis"
	JobSLAMonitoring    JobType = "sla_monitoring"
	JobCostAnalysis     JobType = "cost_analysis"
	JobFullAnalysis     JobType = "full_analysis"
)

// Validate checks that the job type is supported.
func (jt JobType) Validate() error {
	switch jt {
	case JobAnomalyDetection, JobTrendAnalysis, JobSLAMonitoring, JobCostAnalysis, JobFullAnalysis:
		return nil
	default:
		return errors.New("invalid job type")
	}
}

// JobParameters carry the analysis arguments for one scheduled job.
type JobParameters struct {
	PipelineID    string                 `json:"pipeline_id"`
	Metric        valueobject.MetricKind `json:"metric"`
	Method        analyzer.Method        `json:"method,omitempty"`
	SLATarget     float64                `json:"sla_target,omitempty"`
	ViolationType analyzer.ViolationType `json:"violation_type,omitempty"`
	LookbackDays  int                    `json:"lookback_days,omitempty"`
}

// JobConfiguration is one registered scheduled job. RunCount, ErrorCount
// and LastResult are maintained by the scheduler as executions finish.
type JobConfiguration struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Type       JobType       `json:"type"`
	Schedule   string        `json:"schedule"`
	Enabled    bool          `json:"enabled"`
	Parameters JobParameters `json:"parameters"`
	CreatedBy  string        `json:"created_by,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	NextRun    time.Time     `json:"next_run"`
	LastRun    time.Time     `json:"last_run,omitempty"`
	LastResult string        `json:"last_result,omitempty"`
	RunCount   int64         `json:"run_count"`
	ErrorCount int64         `json:"error_count"`
}

// ExecutionStatus tracks a job execution's lifecycle.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionTimedOut  ExecutionStatus = "timed_out"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// JobExecution records one run of a scheduled job. AlertsGenerated counts
// the alerts the run's analysis raised; for full_analysis it aggregates
// across the fanned-out sections.
type JobExecution struct {
	ID              string             `json:"id"`
	JobID           string             `json:"job_id"`
	JobName         string             `json:"job_name"`
	Type            JobType            `json:"type"`
	Status          ExecutionStatus    `json:"status"`
	StartedAt       time.Time          `json:"started_at"`
	CompletedAt     time.Time          `json:"completed_at,omitempty"`
	Duration        time.Duration      `json:"duration,omitempty"`
	Error           string             `json:"error,omitempty"`
	Result          interface{}        `json:"result,omitempty"`
	AlertsGenerated int                `json:"alerts_generated"`
	Runtime         port.RuntimeSample `json:"runtime,omitempty"`
}

// Metrics summarizes scheduler activity since startup.
type Metrics struct {
	ScheduledJobs   int   `json:"scheduled_jobs"`
	RunningJobs     int   `json:"running_jobs"`
	TotalExecutions int64 `json:"total_executions"`
	Succeeded       int64 `json:"succeeded"`
	Failed          int64 `json:"failed"`
	TimedOut        int64 `json:"timed_out"`
	Cancelled       int64 `json:"cancelled"`
}
