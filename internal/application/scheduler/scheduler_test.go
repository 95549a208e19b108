package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dreschagin/pipeline-analytics/internal/application/analytics"
	"github.com/dreschagin/pipeline-analytics/internal/domain/valueobject"
	"github.com/dreschagin/pipeline-analytics/pkg/config"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"
)

// mockAnalytics blocks each call on release when set, so tests can hold
// executions in the running state.
type mockAnalytics struct {
	release chan struct{}
	err     error
	alerts  int
	calls   atomic.Int64
}

func (m *mockAnalytics) wait(ctx context.Context) error {
	m.calls.Add(1)
	if m.release == nil {
		return m.err
	}
	select {
	case <-m.release:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *mockAnalytics) AnalyzeAnomalies(ctx context.Context, _ analytics.AnomalyRequest) (*analytics.AnomalyReport, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return &analytics.AnomalyReport{}, nil
}

func (m *mockAnalytics) AnalyzeTrends(ctx context.Context, _ analytics.TrendRequest) (*analytics.TrendReport, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return &analytics.TrendReport{AlertsGenerated: m.alerts}, nil
}

func (m *mockAnalytics) MonitorSLA(ctx context.Context, _ analytics.SLARequest) (*analytics.SLAReport, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return &analytics.SLAReport{}, nil
}

func (m *mockAnalytics) AnalyzeCosts(ctx context.Context, _ analytics.CostRequest) (*analytics.CostReport, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return &analytics.CostReport{}, nil
}

func (m *mockAnalytics) RunFullAnalysis(ctx context.Context, _ analytics.FullAnalysisRequest) (*analytics.FullReport, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return &analytics.FullReport{AlertsGenerated: m.alerts}, nil
}

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		MaxConcurrentJobs: 2,
		JobTimeout:        time.Second,
		RetentionDays:     7,
		DrainTimeout:      2 * time.Second,
	}
}

func newTestScheduler(mock *mockAnalytics, cfg config.SchedulerConfig) *Scheduler {
	return NewScheduler(mock, nil, nil, cfg, logger.New("error"))
}

func jobSpec(name string) JobConfiguration {
	return JobConfiguration{
		Name:     name,
		Type:     JobTrendAnalysis,
		Schedule: "0 * * * *",
		Enabled:  true,
		Parameters: JobParameters{
			PipelineID: "deploy-api",
			Metric:     valueobject.Duration,
		},
	}
}

func waitForExecutions(t *testing.T, s *Scheduler, want int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m := s.Metrics()
		if m.Succeeded+m.Failed+m.TimedOut+m.Cancelled >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d finished executions, metrics %+v", want, s.Metrics())
}

func TestCreateJobAssignsIDAndNextRun(t *testing.T) {
	s := newTestScheduler(&mockAnalytics{}, testSchedulerConfig())

	job, err := s.CreateJob(jobSpec("hourly trend"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if job.ID == "" {
		t.Fatal("expected an assigned id")
	}
	if job.NextRun.IsZero() || !job.NextRun.After(time.Now().Add(-time.Second)) {
		t.Fatalf("expected a future next run, got %v", job.NextRun)
	}
}

func TestCreateJobValidation(t *testing.T) {
	s := newTestScheduler(&mockAnalytics{}, testSchedulerConfig())

	tests := []struct {
		name   string
		mutate func(*JobConfiguration)
		want   error
	}{
		{
			name:   "bad cron expression",
			mutate: func(j *JobConfiguration) { j.Schedule = "not a schedule" },
			want:   ErrInvalidSchedule,
		},
		{
			name:   "too many fields",
			mutate: func(j *JobConfiguration) { j.Schedule = "* * * * * * *" },
			want:   ErrInvalidSchedule,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := jobSpec("bad")
			tc.mutate(&spec)
			if _, err := s.CreateJob(spec); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	t.Run("unknown job type", func(t *testing.T) {
		spec := jobSpec("bad")
		spec.Type = JobType("mystery")
		if _, err := s.CreateJob(spec); err == nil {
			t.Fatal("expected error for unknown job type")
		}
	})

	t.Run("missing pipeline id", func(t *testing.T) {
		spec := jobSpec("bad")
		spec.Parameters.PipelineID = ""
		if _, err := s.CreateJob(spec); err == nil {
			t.Fatal("expected error for missing pipeline id")
		}
	})
}

func TestCreateJobAcceptsSecondsField(t *testing.T) {
	s := newTestScheduler(&mockAnalytics{}, testSchedulerConfig())

	spec := jobSpec("every thirty seconds")
	spec.Schedule = "*/30 * * * * *"
	if _, err := s.CreateJob(spec); err != nil {
		t.Fatalf("CreateJob() with seconds field error = %v", err)
	}
}

func TestTriggerJobRunsToCompletion(t *testing.T) {
	mock := &mockAnalytics{}
	s := newTestScheduler(mock, testSchedulerConfig())

	job, err := s.CreateJob(jobSpec("trend"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	execution, err := s.TriggerJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("TriggerJob() error = %v", err)
	}
	if execution.Status != ExecutionRunning {
		t.Fatalf("expected running status, got %s", execution.Status)
	}

	waitForExecutions(t, s, 1)

	history := s.History("", 10)
	if len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(history))
	}
	if history[0].Status != ExecutionCompleted {
		t.Fatalf("expected completed, got %s", history[0].Status)
	}
	if history[0].Duration < 0 {
		t.Fatalf("expected non-negative duration, got %v", history[0].Duration)
	}
	if mock.calls.Load() != 1 {
		t.Fatalf("expected 1 analytics call, got %d", mock.calls.Load())
	}
}

func TestTriggerJobConcurrencyCeiling(t *testing.T) {
	mock := &mockAnalytics{release: make(chan struct{})}
	s := newTestScheduler(mock, testSchedulerConfig())

	job, err := s.CreateJob(jobSpec("trend"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if _, err := s.TriggerJob(context.Background(), job.ID); err != nil {
		t.Fatalf("first trigger error = %v", err)
	}
	if _, err := s.TriggerJob(context.Background(), job.ID); err != nil {
		t.Fatalf("second trigger error = %v", err)
	}

	if _, err := s.TriggerJob(context.Background(), job.ID); !errors.Is(err, ErrConcurrencyLimit) {
		t.Fatalf("expected ErrConcurrencyLimit, got %v", err)
	}

	if got := s.Metrics().RunningJobs; got != 2 {
		t.Fatalf("expected 2 running jobs, got %d", got)
	}

	close(mock.release)
	waitForExecutions(t, s, 2)

	// Capacity is released after completion.
	if _, err := s.TriggerJob(context.Background(), job.ID); err != nil {
		t.Fatalf("trigger after drain error = %v", err)
	}
}

func TestTriggerJobConcurrencyCeilingUnderContention(t *testing.T) {
	mock := &mockAnalytics{release: make(chan struct{})}
	cfg := testSchedulerConfig()
	cfg.MaxConcurrentJobs = 3
	s := newTestScheduler(mock, cfg)

	job, err := s.CreateJob(jobSpec("trend"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	var wg sync.WaitGroup
	var started, rejected atomic.Int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.TriggerJob(context.Background(), job.ID)
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, ErrConcurrencyLimit):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	if started.Load() != 3 {
		t.Fatalf("expected exactly 3 started executions, got %d", started.Load())
	}
	if rejected.Load() != 17 {
		t.Fatalf("expected 17 rejections, got %d", rejected.Load())
	}

	close(mock.release)
	waitForExecutions(t, s, 3)
}

func TestTriggerJobTimeout(t *testing.T) {
	mock := &mockAnalytics{release: make(chan struct{})}
	cfg := testSchedulerConfig()
	cfg.JobTimeout = 30 * time.Millisecond
	s := newTestScheduler(mock, cfg)

	job, err := s.CreateJob(jobSpec("trend"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if _, err := s.TriggerJob(context.Background(), job.ID); err != nil {
		t.Fatalf("TriggerJob() error = %v", err)
	}

	waitForExecutions(t, s, 1)

	history := s.History("", 1)
	if history[0].Status != ExecutionTimedOut {
		t.Fatalf("expected timed_out, got %s", history[0].Status)
	}
	if s.Metrics().TimedOut != 1 {
		t.Fatalf("expected 1 timeout in metrics, got %+v", s.Metrics())
	}
}

func TestCancelJob(t *testing.T) {
	mock := &mockAnalytics{release: make(chan struct{})}
	s := newTestScheduler(mock, testSchedulerConfig())

	job, err := s.CreateJob(jobSpec("trend"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	execution, err := s.TriggerJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("TriggerJob() error = %v", err)
	}

	if err := s.CancelJob(execution.ID); err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}

	waitForExecutions(t, s, 1)

	history := s.History("", 1)
	if history[0].Status != ExecutionCancelled {
		t.Fatalf("expected cancelled, got %s", history[0].Status)
	}

	if err := s.CancelJob("unknown"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound for unknown execution, got %v", err)
	}
}

func TestJobFailureRecorded(t *testing.T) {
	mock := &mockAnalytics{err: errors.New("source unavailable")}
	s := newTestScheduler(mock, testSchedulerConfig())

	job, err := s.CreateJob(jobSpec("trend"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if _, err := s.TriggerJob(context.Background(), job.ID); err != nil {
		t.Fatalf("TriggerJob() error = %v", err)
	}

	waitForExecutions(t, s, 1)

	history := s.History("", 1)
	if history[0].Status != ExecutionFailed {
		t.Fatalf("expected failed, got %s", history[0].Status)
	}
	if history[0].Error == "" {
		t.Fatal("expected the error message to be recorded")
	}
}

func TestJobCountersTrackOutcomes(t *testing.T) {
	mock := &mockAnalytics{}
	s := newTestScheduler(mock, testSchedulerConfig())

	job, err := s.CreateJob(jobSpec("trend"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if _, err := s.TriggerJob(context.Background(), job.ID); err != nil {
		t.Fatalf("TriggerJob() error = %v", err)
	}
	waitForExecutions(t, s, 1)

	got, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.RunCount != 1 || got.ErrorCount != 0 {
		t.Fatalf("expected run=1 error=0, got run=%d error=%d", got.RunCount, got.ErrorCount)
	}
	if got.LastResult != string(ExecutionCompleted) {
		t.Fatalf("expected last result %q, got %q", ExecutionCompleted, got.LastResult)
	}

	mock.err = errors.New("source unavailable")
	if _, err := s.TriggerJob(context.Background(), job.ID); err != nil {
		t.Fatalf("TriggerJob() error = %v", err)
	}
	waitForExecutions(t, s, 2)

	got, err = s.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.RunCount != 2 || got.ErrorCount != 1 {
		t.Fatalf("expected run=2 error=1, got run=%d error=%d", got.RunCount, got.ErrorCount)
	}
	if got.LastResult != string(ExecutionFailed) {
		t.Fatalf("expected last result %q, got %q", ExecutionFailed, got.LastResult)
	}
}

func TestExecutionRecordsAlertCount(t *testing.T) {
	mock := &mockAnalytics{alerts: 3}
	s := newTestScheduler(mock, testSchedulerConfig())

	job, err := s.CreateJob(jobSpec("trend"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if _, err := s.TriggerJob(context.Background(), job.ID); err != nil {
		t.Fatalf("TriggerJob() error = %v", err)
	}
	waitForExecutions(t, s, 1)

	history := s.History("", 1)
	if history[0].AlertsGenerated != 3 {
		t.Fatalf("expected 3 alerts on the execution, got %d", history[0].AlertsGenerated)
	}
}

func TestHistoryFiltersByJob(t *testing.T) {
	s := newTestScheduler(&mockAnalytics{}, testSchedulerConfig())

	first, err := s.CreateJob(jobSpec("first"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	second, err := s.CreateJob(jobSpec("second"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if _, err := s.TriggerJob(context.Background(), first.ID); err != nil {
		t.Fatalf("TriggerJob() error = %v", err)
	}
	waitForExecutions(t, s, 1)
	if _, err := s.TriggerJob(context.Background(), second.ID); err != nil {
		t.Fatalf("TriggerJob() error = %v", err)
	}
	waitForExecutions(t, s, 2)

	all := s.History("", 10)
	if len(all) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(all))
	}

	filtered := s.History(first.ID, 10)
	if len(filtered) != 1 || filtered[0].JobID != first.ID {
		t.Fatalf("expected only the first job's execution, got %+v", filtered)
	}
}

func TestUpdateAndDeleteJob(t *testing.T) {
	s := newTestScheduler(&mockAnalytics{}, testSchedulerConfig())

	job, err := s.CreateJob(jobSpec("trend"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	update := jobSpec("renamed")
	update.Schedule = "30 2 * * *"
	updated, err := s.UpdateJob(job.ID, update)
	if err != nil {
		t.Fatalf("UpdateJob() error = %v", err)
	}
	if updated.Name != "renamed" || updated.Schedule != "30 2 * * *" {
		t.Fatalf("update not applied: %+v", updated)
	}

	if _, err := s.UpdateJob("unknown", update); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	if err := s.DeleteJob(job.ID); err != nil {
		t.Fatalf("DeleteJob() error = %v", err)
	}
	if _, err := s.GetJob(job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound after delete, got %v", err)
	}
}

func TestSetJobEnabledReArmsSchedule(t *testing.T) {
	s := newTestScheduler(&mockAnalytics{}, testSchedulerConfig())

	job, err := s.CreateJob(jobSpec("toggled"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	disabled, err := s.SetJobEnabled(job.ID, false)
	if err != nil {
		t.Fatalf("SetJobEnabled(false) error = %v", err)
	}
	if disabled.Enabled {
		t.Fatal("expected job to be disabled")
	}

	// Make the stale next run lie in the past, then re-enable.
	s.mu.Lock()
	s.jobs[job.ID].NextRun = time.Now().Add(-time.Hour)
	s.mu.Unlock()

	enabled, err := s.SetJobEnabled(job.ID, true)
	if err != nil {
		t.Fatalf("SetJobEnabled(true) error = %v", err)
	}
	if !enabled.Enabled {
		t.Fatal("expected job to be enabled")
	}
	if !enabled.NextRun.After(time.Now()) {
		t.Fatalf("expected next run to be recomputed, got %v", enabled.NextRun)
	}

	if _, err := s.SetJobEnabled("unknown", true); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestSchedulerFiresDueJobs(t *testing.T) {
	mock := &mockAnalytics{}
	s := newTestScheduler(mock, testSchedulerConfig())

	job, err := s.CreateJob(jobSpec("due"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	// Force the job due immediately instead of waiting out a real schedule.
	s.mu.Lock()
	s.jobs[job.ID].NextRun = time.Now().Add(-time.Second)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer func() {
		if err := s.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
	}()

	waitForExecutions(t, s, 1)

	got, err := s.GetJob(job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if !got.NextRun.After(time.Now().Add(-time.Second)) {
		t.Fatalf("expected next run to be re-armed, got %v", got.NextRun)
	}
}

func TestShutdownRejectsNewWork(t *testing.T) {
	s := newTestScheduler(&mockAnalytics{}, testSchedulerConfig())

	job, err := s.CreateJob(jobSpec("trend"))
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if _, err := s.TriggerJob(context.Background(), job.ID); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if _, err := s.CreateJob(jobSpec("late")); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped on create, got %v", err)
	}
}
