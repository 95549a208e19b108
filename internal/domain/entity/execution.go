package entity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus describes the outcome of a pipeline run.
type ExecutionStatus string

const (
	StatusSuccess   ExecutionStatus = "success"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
	StatusRunning   ExecutionStatus = "running"
)

// PipelineExecution represents one CI/CD pipeline run (Aggregate Root).
// It carries the duration, outcome and resource consumption of the run.
type PipelineExecution struct {
	ID          string
	PipelineID  string
	Status      ExecutionStatus
	Environment string
	Branch      string

	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration

	CPUCores          float64
	CPUUtilization    float64
	MemoryGB          float64
	MemoryUtilization float64
	StorageGB         float64
	NetworkGB         float64

	TestCoverage float64
	TestsTotal   int
	TestsFailed  int

	Metadata map[string]interface{}
}

// NewPipelineExecution creates a new running execution (Factory Method).
func NewPipelineExecution(pipelineID, environment string, startedAt time.Time) (*PipelineExecution, error) {
	if pipelineID == "" {
		return nil, errors.New("pipeline id cannot be empty")
	}

	if startedAt.IsZero() {
		return nil, errors.New("start time cannot be zero")
	}

	return &PipelineExecution{
		ID:          uuid.New().String(),
		PipelineID:  pipelineID,
		Status:      StatusRunning,
		Environment: environment,
		StartedAt:   startedAt,
		Metadata:    make(map[string]interface{}),
	}, nil
}

// Complete records the final status and duration of the run.
func (e *PipelineExecution) Complete(status ExecutionStatus, completedAt time.Time) error {
	if completedAt.Before(e.StartedAt) {
		return errors.New("completion time cannot precede start time")
	}

	e.Status = status
	e.CompletedAt = completedAt
	e.Duration = completedAt.Sub(e.StartedAt)
	return nil
}

// Succeeded reports whether the run finished successfully.
func (e *PipelineExecution) Succeeded() bool {
	return e.Status == StatusSuccess
}

// Finished reports whether the run has completed.
func (e *PipelineExecution) Finished() bool {
	return e.Status != StatusRunning
}

// DurationHours returns the run duration in hours.
func (e *PipelineExecution) DurationHours() float64 {
	return e.Duration.Hours()
}

// SuccessValue returns 1 for a successful run and 0 otherwise.
// Used when building success_rate series.
func (e *PipelineExecution) SuccessValue() float64 {
	if e.Succeeded() {
		return 1
	}
	return 0
}
