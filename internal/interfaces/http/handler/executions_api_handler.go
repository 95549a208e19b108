package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/dreschagin/pipeline-analytics/internal/application/analytics"
	"github.com/dreschagin/pipeline-analytics/internal/domain/entity"
	"github.com/dreschagin/pipeline-analytics/internal/interfaces/http/middleware"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"
)

// ExecutionsAPIHandler ingests pipeline execution records from CI systems
// and exposes the stored history.
type ExecutionsAPIHandler struct {
	service *analytics.Service
	logger  *logger.Logger
}

func NewExecutionsAPIHandler(service *analytics.Service, log *logger.Logger) *ExecutionsAPIHandler {
	return &ExecutionsAPIHandler{
		service: service,
		logger:  log,
	}
}

type executionRequest struct {
	PipelineID        string    `json:"pipeline_id"`
	Environment       string    `json:"environment"`
	Branch            string    `json:"branch,omitempty"`
	Status            string    `json:"status"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       time.Time `json:"completed_at,omitempty"`
	CPUCores          float64   `json:"cpu_cores,omitempty"`
	CPUUtilization    float64   `json:"cpu_utilization,omitempty"`
	MemoryGB          float64   `json:"memory_gb,omitempty"`
	MemoryUtilization float64   `json:"memory_utilization,omitempty"`
	StorageGB         float64   `json:"storage_gb,omitempty"`
	NetworkGB         float64   `json:"network_gb,omitempty"`
	TestCoverage      float64   `json:"test_coverage,omitempty"`
	TestsTotal        int       `json:"tests_total,omitempty"`
	TestsFailed       int       `json:"tests_failed,omitempty"`
}

type executionResponse struct {
	ID                string    `json:"id"`
	PipelineID        string    `json:"pipeline_id"`
	Environment       string    `json:"environment"`
	Branch            string    `json:"branch,omitempty"`
	Status            string    `json:"status"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       time.Time `json:"completed_at,omitempty"`
	DurationSeconds   float64   `json:"duration_seconds"`
	CPUUtilization    float64   `json:"cpu_utilization"`
	MemoryUtilization float64   `json:"memory_utilization"`
	TestCoverage      float64   `json:"test_coverage"`
}

// Ingest records one finished or running pipeline execution.
func (h *ExecutionsAPIHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req executionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requirePipeline(w, req.PipelineID) {
		return
	}

	status := entity.ExecutionStatus(req.Status)
	switch status {
	case entity.StatusSuccess, entity.StatusFailed, entity.StatusCancelled, entity.StatusRunning:
	default:
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	execution, err := entity.NewPipelineExecution(req.PipelineID, req.Environment, req.StartedAt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	execution.Branch = req.Branch
	execution.CPUCores = req.CPUCores
	execution.CPUUtilization = req.CPUUtilization
	execution.MemoryGB = req.MemoryGB
	execution.MemoryUtilization = req.MemoryUtilization
	execution.StorageGB = req.StorageGB
	execution.NetworkGB = req.NetworkGB
	execution.TestCoverage = req.TestCoverage
	execution.TestsTotal = req.TestsTotal
	execution.TestsFailed = req.TestsFailed

	if status != entity.StatusRunning {
		if req.CompletedAt.IsZero() {
			http.Error(w, "completed_at is required for a finished execution", http.StatusBadRequest)
			return
		}
		if err := execution.Complete(status, req.CompletedAt); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := h.service.RecordExecution(r.Context(), execution); err != nil {
		h.logger.Error("Failed to record execution", err, "pipeline", req.PipelineID)
		http.Error(w, "Failed to record execution", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"id": execution.ID,
	})
}

// List returns stored executions for a pipeline or an environment.
func (h *ExecutionsAPIHandler) List(w http.ResponseWriter, r *http.Request) {
	pipelineID := strings.TrimSpace(r.URL.Query().Get("pipeline_id"))
	environment := strings.TrimSpace(r.URL.Query().Get("environment"))
	if pipelineID == "" && environment == "" {
		http.Error(w, "pipeline_id or environment is required", http.StatusBadRequest)
		return
	}

	days := queryInt(r, "days", 0)

	executions, err := h.service.ListExecutions(r.Context(), pipelineID, environment, days)
	if err != nil {
		h.logger.Error("Failed to list executions", err, "pipeline", pipelineID, "environment", environment)
		http.Error(w, "Failed to fetch executions", http.StatusInternalServerError)
		return
	}

	out := make([]executionResponse, 0, len(executions))
	for _, e := range executions {
		out = append(out, executionResponse{
			ID:                e.ID,
			PipelineID:        e.PipelineID,
			Environment:       e.Environment,
			Branch:            e.Branch,
			Status:            string(e.Status),
			StartedAt:         e.StartedAt,
			CompletedAt:       e.CompletedAt,
			DurationSeconds:   e.Duration.Seconds(),
			CPUUtilization:    e.CPUUtilization,
			MemoryUtilization: e.MemoryUtilization,
			TestCoverage:      e.TestCoverage,
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"executions": out,
	})
}
