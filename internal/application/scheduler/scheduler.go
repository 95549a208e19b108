// Package scheduler runs registered analysis jobs on cron schedules with a
// concurrency ceiling, per-job timeouts and an in-memory execution history.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/dreschagin/pipeline-analytics/internal/application/analytics"
	"github.com/dreschagin/pipeline-analytics/internal/application/dto"
	"github.com/dreschagin/pipeline-analytics/internal/application/port"
	"github.com/dreschagin/pipeline-analytics/pkg/config"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"
)

// tickInterval is how often the loop scans for due jobs.
const tickInterval = time.Second

// AnalyticsRunner is the slice of the analytics service the scheduler
// drives. *analytics.Service satisfies it.
type AnalyticsRunner interface {
	AnalyzeAnomalies(ctx context.Context, req analytics.AnomalyRequest) (*analytics.AnomalyReport, error)
	AnalyzeTrends(ctx context.Context, req analytics.TrendRequest) (*analytics.TrendReport, error)
	MonitorSLA(ctx context.Context, req analytics.SLARequest) (*analytics.SLAReport, error)
	AnalyzeCosts(ctx context.Context, req analytics.CostRequest) (*analytics.CostReport, error)
	RunFullAnalysis(ctx context.Context, req analytics.FullAnalysisRequest) (*analytics.FullReport, error)
}

// Scheduler owns job configurations and drives their execution. All state is
// guarded by mu; the run loop is a single goroutine started by Start.
type Scheduler struct {
	analytics AnalyticsRunner
	sampler   port.RuntimeSampler
	realtime  port.RealtimePublisher
	cfg       config.SchedulerConfig
	logger    *logger.Logger
	parser    cron.Parser

	mu      sync.Mutex
	jobs    map[string]*JobConfiguration
	running map[string]context.CancelFunc
	history []*JobExecution
	stopped bool

	totalExecutions int64
	succeeded       int64
	failed          int64
	timedOut        int64
	cancelled       int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler creates a scheduler. The cron parser accepts standard five
// field expressions with an optional leading seconds field.
func NewScheduler(
	svc AnalyticsRunner,
	sampler port.RuntimeSampler,
	realtime port.RealtimePublisher,
	cfg config.SchedulerConfig,
	log *logger.Logger,
) *Scheduler {
	return &Scheduler{
		analytics: svc,
		sampler:   sampler,
		realtime:  realtime,
		cfg:       cfg,
		logger:    log.Named("scheduler"),
		parser: cron.NewParser(
			cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		),
		jobs:    make(map[string]*JobConfiguration),
		running: make(map[string]context.CancelFunc),
		stop:    make(chan struct{}),
	}
}

// CreateJob validates and registers a job configuration. The id is assigned
// here; NextRun is computed from the schedule.
func (s *Scheduler) CreateJob(job JobConfiguration) (*JobConfiguration, error) {
	if err := job.Type.Validate(); err != nil {
		return nil, err
	}
	if job.Parameters.PipelineID == "" {
		return nil, fmt.Errorf("pipeline id is required")
	}

	schedule, err := s.parser.Parse(job.Schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	now := time.Now()
	job.ID = uuid.New().String()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.NextRun = schedule.Next(now)
	job.LastRun = time.Time{}
	job.LastResult = ""
	job.RunCount = 0
	job.ErrorCount = 0

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	s.jobs[job.ID] = &job

	s.logger.Info("Job created",
		"job_id", job.ID,
		"name", job.Name,
		"type", string(job.Type),
		"schedule", job.Schedule,
		"next_run", job.NextRun.Format(time.RFC3339))

	return &job, nil
}

// UpdateJob replaces the mutable fields of an existing job.
func (s *Scheduler) UpdateJob(id string, update JobConfiguration) (*JobConfiguration, error) {
	if err := update.Type.Validate(); err != nil {
		return nil, err
	}

	schedule, err := s.parser.Parse(update.Schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	job.Name = update.Name
	job.Type = update.Type
	job.Schedule = update.Schedule
	job.Enabled = update.Enabled
	job.Parameters = update.Parameters
	job.UpdatedAt = time.Now()
	job.NextRun = schedule.Next(time.Now())

	copied := *job
	return &copied, nil
}

// SetJobEnabled flips a job's schedule on or off without touching the rest
// of its configuration. Re-enabling recomputes the next fire time so a long
// disabled period does not produce a burst of catch-up runs.
func (s *Scheduler) SetJobEnabled(id string, enabled bool) (*JobConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	now := time.Now()
	if enabled && !job.Enabled {
		if schedule, err := s.parser.Parse(job.Schedule); err == nil {
			job.NextRun = schedule.Next(now)
		}
	}
	job.Enabled = enabled
	job.UpdatedAt = now

	copied := *job
	return &copied, nil
}

// DeleteJob removes a job. A running execution of it is not interrupted.
func (s *Scheduler) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

// GetJob returns a copy of one job configuration.
func (s *Scheduler) GetJob(id string) (*JobConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

// ListJobs returns copies of all job configurations sorted by creation time.
func (s *Scheduler) ListJobs() []*JobConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*JobConfiguration, 0, len(s.jobs))
	for _, job := range s.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// Start runs the scheduling loop until Shutdown or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		s.logger.Info("Scheduler started", "max_concurrent", s.cfg.MaxConcurrentJobs)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case now := <-ticker.C:
				s.fireDue(ctx, now)
			}
		}
	}()
}

// fireDue triggers every enabled job whose next fire time has passed.
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*JobConfiguration
	for _, job := range s.jobs {
		if job.Enabled && !job.NextRun.IsZero() && !job.NextRun.After(now) {
			due = append(due, job)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		if _, err := s.TriggerJob(ctx, job.ID); err != nil {
			s.logger.Warn("Scheduled trigger skipped", "job_id", job.ID, "reason", err.Error())
			// Re-arm so a skipped fire does not retrigger every tick.
			s.advance(job.ID, now)
		}
	}
}

// TriggerJob starts one execution of a job, scheduled or manual. The
// concurrency check and the running-set insert happen under one lock so
// concurrent triggers cannot both pass the ceiling.
func (s *Scheduler) TriggerJob(ctx context.Context, jobID string) (*JobExecution, error) {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}

	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrJobNotFound
	}

	if len(s.running) >= s.cfg.MaxConcurrentJobs {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d jobs running", ErrConcurrencyLimit, s.cfg.MaxConcurrentJobs)
	}

	execution := &JobExecution{
		ID:        uuid.New().String(),
		JobID:     job.ID,
		JobName:   job.Name,
		Type:      job.Type,
		Status:    ExecutionRunning,
		StartedAt: time.Now(),
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.JobTimeout)
	s.running[execution.ID] = cancel
	s.history = append(s.history, execution)
	s.totalExecutions++

	params := job.Parameters
	jobType := job.Type
	s.advanceLocked(job, execution.StartedAt)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx, cancel, execution, jobType, params)

	return execution, nil
}

// run executes the job body and finalizes the execution record.
func (s *Scheduler) run(ctx context.Context, cancel context.CancelFunc, execution *JobExecution, jobType JobType, params JobParameters) {
	defer s.wg.Done()
	defer cancel()

	result, err := s.execute(ctx, jobType, params)

	var sample port.RuntimeSample
	if s.sampler != nil {
		if rs, sErr := s.sampler.Sample(context.Background()); sErr == nil {
			sample = rs
		}
	}

	s.mu.Lock()
	delete(s.running, execution.ID)

	now := time.Now()
	execution.CompletedAt = now
	execution.Duration = now.Sub(execution.StartedAt)
	execution.Runtime = sample

	switch {
	case execution.Status == ExecutionCancelled:
		s.cancelled++
	case ctx.Err() == context.DeadlineExceeded:
		execution.Status = ExecutionTimedOut
		execution.Error = "execution exceeded the job timeout"
		s.timedOut++
	case err != nil:
		execution.Status = ExecutionFailed
		execution.Error = err.Error()
		s.failed++
	default:
		execution.Status = ExecutionCompleted
		execution.Result = result
		if counter, ok := result.(interface{ AlertCount() int }); ok {
			execution.AlertsGenerated = counter.AlertCount()
		}
		s.succeeded++
	}

	if job, ok := s.jobs[execution.JobID]; ok {
		job.RunCount++
		job.LastResult = string(execution.Status)
		if execution.Status == ExecutionFailed || execution.Status == ExecutionTimedOut {
			job.ErrorCount++
		}
	}

	s.trimHistoryLocked(now)
	status := execution.Status
	jobID := execution.JobID
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Job execution finished with error", err, "job_id", jobID, "status", string(status))
	} else {
		s.logger.Debug("Job execution finished", "job_id", jobID, "status", string(status))
	}

	if s.realtime != nil {
		s.realtime.Broadcast(dto.NewRealtimeUpdate(dto.UpdateJobStatus, params.PipelineID, params.Metric.String(), map[string]interface{}{
			"execution_id": execution.ID,
			"job_id":       jobID,
			"status":       string(status),
		}))
	}
}

// execute dispatches to the analytics service by job type.
func (s *Scheduler) execute(ctx context.Context, jobType JobType, params JobParameters) (interface{}, error) {
	switch jobType {
	case JobAnomalyDetection:
		return s.analytics.AnalyzeAnomalies(ctx, analytics.AnomalyRequest{
			PipelineID:   params.PipelineID,
			Metric:       params.Metric,
			Method:       params.Method,
			LookbackDays: params.LookbackDays,
		})
	case JobTrendAnalysis:
		return s.analytics.AnalyzeTrends(ctx, analytics.TrendRequest{
			PipelineID:   params.PipelineID,
			Metric:       params.Metric,
			LookbackDays: params.LookbackDays,
		})
	case JobSLAMonitoring:
		return s.analytics.MonitorSLA(ctx, analytics.SLARequest{
			PipelineID:    params.PipelineID,
			Metric:        params.Metric,
			Target:        params.SLATarget,
			ViolationType: params.ViolationType,
			LookbackDays:  params.LookbackDays,
		})
	case JobCostAnalysis:
		return s.analytics.AnalyzeCosts(ctx, analytics.CostRequest{
			PipelineID:   params.PipelineID,
			LookbackDays: params.LookbackDays,
		})
	case JobFullAnalysis:
		return s.analytics.RunFullAnalysis(ctx, analytics.FullAnalysisRequest{
			PipelineID:    params.PipelineID,
			Metric:        params.Metric,
			Method:        params.Method,
			SLATarget:     params.SLATarget,
			ViolationType: params.ViolationType,
			LookbackDays:  params.LookbackDays,
		})
	default:
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}
}

// CancelJob requests cancellation of a running execution. Cancellation is
// advisory: the analysis observes it at its next context check.
func (s *Scheduler) CancelJob(executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.running[executionID]
	if !ok {
		return ErrJobNotFound
	}

	for _, execution := range s.history {
		if execution.ID == executionID {
			execution.Status = ExecutionCancelled
			break
		}
	}
	cancel()
	return nil
}

// History returns the most recent executions, newest first. A non-empty
// jobID narrows the listing to one job.
func (s *Scheduler) History(jobID string, limit int) []*JobExecution {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.history)
	if limit <= 0 {
		limit = n
	}

	out := make([]*JobExecution, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		if jobID != "" && s.history[i].JobID != jobID {
			continue
		}
		copied := *s.history[i]
		out = append(out, &copied)
	}
	return out
}

// Metrics returns the scheduler counters.
func (s *Scheduler) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Metrics{
		ScheduledJobs:   len(s.jobs),
		RunningJobs:     len(s.running),
		TotalExecutions: s.totalExecutions,
		Succeeded:       s.succeeded,
		Failed:          s.failed,
		TimedOut:        s.timedOut,
		Cancelled:       s.cancelled,
	}
}

// Shutdown stops the loop and waits for running executions up to the
// configured drain timeout.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stop)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	drain := s.cfg.DrainTimeout
	if drain <= 0 {
		drain = 30 * time.Second
	}

	select {
	case <-done:
		s.logger.Info("Scheduler drained")
		return nil
	case <-time.After(drain):
		return fmt.Errorf("scheduler drain timed out after %s", drain)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// advance recomputes a job's next fire time after now.
func (s *Scheduler) advance(jobID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		s.advanceLocked(job, now)
	}
}

func (s *Scheduler) advanceLocked(job *JobConfiguration, now time.Time) {
	schedule, err := s.parser.Parse(job.Schedule)
	if err != nil {
		// The schedule was validated on create; disable rather than spin.
		job.Enabled = false
		return
	}
	job.LastRun = now
	job.NextRun = schedule.Next(now)
}

// trimHistoryLocked drops executions older than the retention window.
func (s *Scheduler) trimHistoryLocked(now time.Time) {
	if s.cfg.RetentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -s.cfg.RetentionDays)

	kept := s.history[:0]
	for _, execution := range s.history {
		if execution.StartedAt.After(cutoff) || execution.Status == ExecutionRunning {
			kept = append(kept, execution)
		}
	}
	s.history = kept
}
