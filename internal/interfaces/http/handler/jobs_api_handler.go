package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dreschagin/pipeline-analytics/internal/application/scheduler"
	"github.com/dreschagin/pipeline-analytics/internal/interfaces/http/middleware"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"
)

// JobsAPIHandler exposes scheduled job management.
type JobsAPIHandler struct {
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

func NewJobsAPIHandler(sched *scheduler.Scheduler, log *logger.Logger) *JobsAPIHandler {
	return &JobsAPIHandler{
		scheduler: sched,
		logger:    log,
	}
}

// Create registers a new scheduled job.
func (h *JobsAPIHandler) Create(w http.ResponseWriter, r *http.Request) {
	var job scheduler.JobConfiguration
	if !decodeBody(w, r, &job) {
		return
	}

	created, err := h.scheduler.CreateJob(job)
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, created)
}

// List returns every registered job.
func (h *JobsAPIHandler) List(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"jobs": h.scheduler.ListJobs(),
	})
}

// Get returns one job by id.
func (h *JobsAPIHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.scheduler.GetJob(r.PathValue("id"))
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// Update replaces a job's configuration.
func (h *JobsAPIHandler) Update(w http.ResponseWriter, r *http.Request) {
	var job scheduler.JobConfiguration
	if !decodeBody(w, r, &job) {
		return
	}

	updated, err := h.scheduler.UpdateJob(r.PathValue("id"), job)
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, updated)
}

// Delete removes a job.
func (h *JobsAPIHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.DeleteJob(r.PathValue("id")); err != nil {
		h.writeSchedulerError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Enable turns a job's schedule on.
func (h *JobsAPIHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// Disable turns a job's schedule off without deleting it.
func (h *JobsAPIHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *JobsAPIHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	job, err := h.scheduler.SetJobEnabled(r.PathValue("id"), enabled)
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// Trigger starts a job immediately, outside its schedule.
func (h *JobsAPIHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	execution, err := h.scheduler.TriggerJob(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeSchedulerError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, execution)
}

// Cancel requests cancellation of a running execution.
func (h *JobsAPIHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.CancelJob(r.PathValue("executionID")); err != nil {
		h.writeSchedulerError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}

// History returns recent job executions, newest first, optionally
// narrowed to one job.
func (h *JobsAPIHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	jobID := strings.TrimSpace(r.URL.Query().Get("job_id"))

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"executions": h.scheduler.History(jobID, limit),
	})
}

// Metrics reports scheduler activity counters.
func (h *JobsAPIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.scheduler.Metrics())
}

func (h *JobsAPIHandler) writeSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, scheduler.ErrConcurrencyLimit):
		middleware.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, scheduler.ErrInvalidSchedule):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, scheduler.ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
