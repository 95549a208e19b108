package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dreschagin/pipeline-analytics/internal/application/port"
	"github.com/dreschagin/pipeline-analytics/internal/domain/analyzer"
	"github.com/dreschagin/pipeline-analytics/internal/domain/entity"
	"github.com/dreschagin/pipeline-analytics/internal/domain/valueobject"
	"github.com/dreschagin/pipeline-analytics/pkg/config"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"
)

type mockExecutionSource struct {
	mu         sync.Mutex
	executions []*entity.PipelineExecution
	err        error
	calls      int
}

func (m *mockExecutionSource) FindByPipeline(_ context.Context, _ string, _ valueobject.TimeRange) ([]*entity.PipelineExecution, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.executions, m.err
}

func (m *mockExecutionSource) FindByEnvironment(_ context.Context, _ string, _ valueobject.TimeRange) ([]*entity.PipelineExecution, error) {
	return m.executions, m.err
}

func (m *mockExecutionSource) Save(_ context.Context, execution *entity.PipelineExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.executions = append(m.executions, execution)
	return nil
}

type mockResultStore struct {
	mu      sync.Mutex
	records []port.AnalysisRecord
	err     error
}

func (m *mockResultStore) SaveResult(_ context.Context, record port.AnalysisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

func (m *mockResultStore) ListResults(_ context.Context, _, _ string, _ int) ([]port.AnalysisRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records, nil
}

func (m *mockResultStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// mockCache stores JSON to mirror how the Redis adapter round-trips values.
type mockCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string][]byte)}
}

func (m *mockCache) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(data, dest)
}

func (m *mockCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = data
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *mockCache) DeletePattern(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string][]byte)
	return nil
}

func (m *mockCache) Close() error { return nil }

// mockAlertSink reports one fired alert per call so tests can check the
// counts land on the reports.
type mockAlertSink struct {
	mu           sync.Mutex
	anomalyCalls int
	trendCalls   int
	slaCalls     int
	costCalls    int
}

func (m *mockAlertSink) RaiseFromAnomalies(_ context.Context, _ *AnomalyReport) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalyCalls++
	return 1
}

func (m *mockAlertSink) RaiseFromTrend(_ context.Context, _ *TrendReport) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trendCalls++
	return 1
}

func (m *mockAlertSink) RaiseFromSLA(_ context.Context, _ *SLAReport) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slaCalls++
	return 1
}

func (m *mockAlertSink) RaiseFromCost(_ context.Context, _ *CostReport) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.costCalls++
	return 1
}

func testConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		CacheTTL:            5 * time.Minute,
		MinDataPoints:       10,
		ZScoreThreshold:     2.0,
		DefaultLookbackDays: 30,
	}
}

// buildExecutions produces one finished run per day ending today, with the
// given durations in minutes.
func buildExecutions(t *testing.T, durationsMin []float64) []*entity.PipelineExecution {
	t.Helper()

	executions := make([]*entity.PipelineExecution, 0, len(durationsMin))
	base := time.Now().Add(-time.Duration(len(durationsMin)) * 24 * time.Hour)

	for i, minutes := range durationsMin {
		start := base.Add(time.Duration(i) * 24 * time.Hour)
		e, err := entity.NewPipelineExecution("deploy-api", "production", start)
		if err != nil {
			t.Fatalf("NewPipelineExecution() error = %v", err)
		}
		if err := e.Complete(entity.StatusSuccess, start.Add(time.Duration(minutes*float64(time.Minute)))); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		e.CPUCores = 4
		e.CPUUtilization = 75
		e.MemoryGB = 8
		e.MemoryUtilization = 60
		e.StorageGB = 50
		e.NetworkGB = 2
		e.TestCoverage = 80
		executions = append(executions, e)
	}

	return executions
}

func steadyDurations(n int, value float64) []float64 {
	durations := make([]float64, n)
	for i := range durations {
		durations[i] = value
	}
	return durations
}

func TestServiceAnalyzeAnomaliesDetectsSpike(t *testing.T) {
	durations := steadyDurations(29, 10)
	durations = append(durations, 50)

	source := &mockExecutionSource{executions: buildExecutions(t, durations)}
	store := &mockResultStore{}
	svc := NewService(source, store, nil, nil, nil, testConfig(), logger.New("error"))

	report, err := svc.AnalyzeAnomalies(context.Background(), AnomalyRequest{
		PipelineID: "deploy-api",
		Metric:     valueobject.Duration,
		Method:     analyzer.MethodZScore,
	})
	if err != nil {
		t.Fatalf("AnalyzeAnomalies() error = %v", err)
	}

	if report.DataPoints != 30 {
		t.Fatalf("expected 30 data points, got %d", report.DataPoints)
	}
	if len(report.Anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(report.Anomalies))
	}
	if report.Anomalies[0].ActualValue != 50 {
		t.Fatalf("expected the spike to be flagged, got value %v", report.Anomalies[0].ActualValue)
	}
	if store.count() != 1 {
		t.Fatalf("expected 1 persisted record, got %d", store.count())
	}
}

func TestServiceAnalyzeAnomaliesUsesCache(t *testing.T) {
	durations := steadyDurations(29, 10)
	durations = append(durations, 50)

	source := &mockExecutionSource{executions: buildExecutions(t, durations)}
	cache := newMockCache()
	svc := NewService(source, nil, cache, nil, nil, testConfig(), logger.New("error"))

	req := AnomalyRequest{PipelineID: "deploy-api", Metric: valueobject.Duration, Method: analyzer.MethodZScore}

	first, err := svc.AnalyzeAnomalies(context.Background(), req)
	if err != nil {
		t.Fatalf("first AnalyzeAnomalies() error = %v", err)
	}

	// The write is asynchronous.
	deadline := time.Now().Add(time.Second)
	for {
		cache.mu.Lock()
		n := len(cache.entries)
		cache.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	second, err := svc.AnalyzeAnomalies(context.Background(), req)
	if err != nil {
		t.Fatalf("second AnalyzeAnomalies() error = %v", err)
	}

	if source.calls != 1 {
		t.Fatalf("expected 1 source call, got %d", source.calls)
	}
	if len(second.Anomalies) != len(first.Anomalies) {
		t.Fatalf("cached report differs: %d vs %d anomalies", len(second.Anomalies), len(first.Anomalies))
	}

	stats := svc.CacheStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %+v", stats)
	}
}

func TestServiceAnalyzeAnomaliesRaisesAlerts(t *testing.T) {
	durations := steadyDurations(29, 10)
	durations = append(durations, 50)

	source := &mockExecutionSource{executions: buildExecutions(t, durations)}
	sink := &mockAlertSink{}
	svc := NewService(source, nil, nil, nil, nil, testConfig(), logger.New("error"))
	svc.SetAlertSink(sink)

	report, err := svc.AnalyzeAnomalies(context.Background(), AnomalyRequest{
		PipelineID: "deploy-api",
		Metric:     valueobject.Duration,
	})
	if err != nil {
		t.Fatalf("AnalyzeAnomalies() error = %v", err)
	}

	if sink.anomalyCalls != 1 {
		t.Fatalf("expected 1 alert sink call, got %d", sink.anomalyCalls)
	}
	if report.AlertsGenerated != 1 {
		t.Fatalf("expected the fired count on the report, got %d", report.AlertsGenerated)
	}
}

func TestServiceAnalyzeAnomaliesInsufficientData(t *testing.T) {
	source := &mockExecutionSource{executions: buildExecutions(t, steadyDurations(3, 10))}
	svc := NewService(source, nil, nil, nil, nil, testConfig(), logger.New("error"))

	_, err := svc.AnalyzeAnomalies(context.Background(), AnomalyRequest{
		PipelineID: "deploy-api",
		Metric:     valueobject.Duration,
	})
	if !errors.Is(err, analyzer.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestServiceAnalyzeAnomaliesInvalidMetric(t *testing.T) {
	svc := NewService(&mockExecutionSource{}, nil, nil, nil, nil, testConfig(), logger.New("error"))

	_, err := svc.AnalyzeAnomalies(context.Background(), AnomalyRequest{
		PipelineID: "deploy-api",
		Metric:     valueobject.MetricKind("latency"),
	})
	if err == nil {
		t.Fatal("expected error for unknown metric kind")
	}
}

func TestServiceAnalyzeTrends(t *testing.T) {
	durations := make([]float64, 10)
	for i := range durations {
		durations[i] = 10 + float64(i)*5
	}

	source := &mockExecutionSource{executions: buildExecutions(t, durations)}
	svc := NewService(source, nil, nil, nil, nil, testConfig(), logger.New("error"))

	report, err := svc.AnalyzeTrends(context.Background(), TrendRequest{
		PipelineID: "deploy-api",
		Metric:     valueobject.Duration,
	})
	if err != nil {
		t.Fatalf("AnalyzeTrends() error = %v", err)
	}

	if report.Trend.Trend != analyzer.TrendIncreasing {
		t.Fatalf("expected increasing trend, got %s", report.Trend.Trend)
	}
	if report.Trend.Slope <= 0 {
		t.Fatalf("expected positive slope, got %v", report.Trend.Slope)
	}
}

func TestServiceMonitorSLAViolationRaisesAlert(t *testing.T) {
	// Coverage sits at 80 for every run; target 90 violates by ~11%.
	source := &mockExecutionSource{executions: buildExecutions(t, steadyDurations(10, 10))}
	sink := &mockAlertSink{}
	svc := NewService(source, nil, nil, nil, nil, testConfig(), logger.New("error"))
	svc.SetAlertSink(sink)

	report, err := svc.MonitorSLA(context.Background(), SLARequest{
		PipelineID:    "deploy-api",
		Metric:        valueobject.TestCoverage,
		Target:        90,
		ViolationType: analyzer.ViolationOther,
	})
	if err != nil {
		t.Fatalf("MonitorSLA() error = %v", err)
	}

	if !report.Result.Violated {
		t.Fatal("expected a violation")
	}
	if report.Result.Severity != analyzer.SLAMajor {
		t.Fatalf("expected major severity, got %s", report.Result.Severity)
	}
	if sink.slaCalls != 1 {
		t.Fatalf("expected 1 alert sink call, got %d", sink.slaCalls)
	}
	if report.AlertsGenerated != 1 {
		t.Fatalf("expected the fired count on the report, got %d", report.AlertsGenerated)
	}
}

func TestServiceAnalyzeTrendsOffersToAlertSink(t *testing.T) {
	durations := make([]float64, 10)
	for i := range durations {
		durations[i] = 10 + float64(i)*5
	}

	source := &mockExecutionSource{executions: buildExecutions(t, durations)}
	sink := &mockAlertSink{}
	svc := NewService(source, nil, nil, nil, nil, testConfig(), logger.New("error"))
	svc.SetAlertSink(sink)

	report, err := svc.AnalyzeTrends(context.Background(), TrendRequest{
		PipelineID: "deploy-api",
		Metric:     valueobject.Duration,
	})
	if err != nil {
		t.Fatalf("AnalyzeTrends() error = %v", err)
	}

	if sink.trendCalls != 1 {
		t.Fatalf("expected the trend to be offered to the sink, got %d calls", sink.trendCalls)
	}
	if report.AlertsGenerated != 1 {
		t.Fatalf("expected the fired count on the report, got %d", report.AlertsGenerated)
	}
}

func TestServiceAnalyzeCostsOffersToAlertSink(t *testing.T) {
	source := &mockExecutionSource{executions: buildExecutions(t, steadyDurations(10, 30))}
	sink := &mockAlertSink{}
	svc := NewService(source, nil, nil, nil, nil, testConfig(), logger.New("error"))
	svc.SetAlertSink(sink)

	report, err := svc.AnalyzeCosts(context.Background(), CostRequest{PipelineID: "deploy-api"})
	if err != nil {
		t.Fatalf("AnalyzeCosts() error = %v", err)
	}

	if sink.costCalls != 1 {
		t.Fatalf("expected the cost result to be offered to the sink, got %d calls", sink.costCalls)
	}
	if report.AlertsGenerated != 1 {
		t.Fatalf("expected the fired count on the report, got %d", report.AlertsGenerated)
	}
}

func TestServiceAnalyzeCosts(t *testing.T) {
	source := &mockExecutionSource{executions: buildExecutions(t, steadyDurations(10, 30))}
	svc := NewService(source, nil, nil, nil, nil, testConfig(), logger.New("error"))

	report, err := svc.AnalyzeCosts(context.Background(), CostRequest{PipelineID: "deploy-api"})
	if err != nil {
		t.Fatalf("AnalyzeCosts() error = %v", err)
	}

	if report.Result.TotalCost <= 0 {
		t.Fatalf("expected positive total cost, got %v", report.Result.TotalCost)
	}
	if report.ExecutionID == "" {
		t.Fatal("expected the latest execution id")
	}
	if report.Result.CostTrend == nil {
		t.Fatal("expected a cost trend with 10 executions of history")
	}
}

func TestServiceSourceErrorPropagates(t *testing.T) {
	source := &mockExecutionSource{err: errors.New("connection refused")}
	svc := NewService(source, nil, nil, nil, nil, testConfig(), logger.New("error"))

	_, err := svc.AnalyzeTrends(context.Background(), TrendRequest{
		PipelineID: "deploy-api",
		Metric:     valueobject.Duration,
	})
	if err == nil {
		t.Fatal("expected source error to propagate")
	}
}

func TestServiceRunFullAnalysis(t *testing.T) {
	durations := steadyDurations(29, 10)
	durations = append(durations, 50)

	source := &mockExecutionSource{executions: buildExecutions(t, durations)}
	store := &mockResultStore{}
	svc := NewService(source, store, nil, nil, nil, testConfig(), logger.New("error"))

	report, err := svc.RunFullAnalysis(context.Background(), FullAnalysisRequest{
		PipelineID:    "deploy-api",
		Metric:        valueobject.Duration,
		SLATarget:     15,
		ViolationType: analyzer.ViolationPerformance,
	})
	if err != nil {
		t.Fatalf("RunFullAnalysis() error = %v", err)
	}

	if report.Anomalies == nil || report.Trend == nil || report.Benchmark == nil || report.Cost == nil {
		t.Fatalf("expected all sections to be present: %+v", report)
	}
	if report.SLA == nil {
		t.Fatal("expected SLA section with a target set")
	}
	if len(report.Errors) != 0 {
		t.Fatalf("expected no section errors, got %v", report.Errors)
	}
}

func TestServiceRunFullAnalysisSkipsThinSections(t *testing.T) {
	// 6 points satisfy trend and benchmark but not anomaly detection; the
	// thin section is omitted rather than reported as an error.
	source := &mockExecutionSource{executions: buildExecutions(t, steadyDurations(6, 10))}
	svc := NewService(source, nil, nil, nil, nil, testConfig(), logger.New("error"))

	report, err := svc.RunFullAnalysis(context.Background(), FullAnalysisRequest{
		PipelineID: "deploy-api",
		Metric:     valueobject.Duration,
	})
	if err != nil {
		t.Fatalf("RunFullAnalysis() error = %v", err)
	}

	if report.Anomalies != nil {
		t.Fatal("expected anomaly section to be skipped")
	}
	if report.Trend == nil {
		t.Fatal("expected trend section to be present")
	}
	if len(report.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", report.Errors)
	}
}

func TestServiceRunFullAnalysisAggregatesAlertCounts(t *testing.T) {
	durations := steadyDurations(29, 10)
	durations = append(durations, 50)

	source := &mockExecutionSource{executions: buildExecutions(t, durations)}
	sink := &mockAlertSink{}
	svc := NewService(source, nil, nil, nil, nil, testConfig(), logger.New("error"))
	svc.SetAlertSink(sink)

	report, err := svc.RunFullAnalysis(context.Background(), FullAnalysisRequest{
		PipelineID: "deploy-api",
		Metric:     valueobject.Duration,
	})
	if err != nil {
		t.Fatalf("RunFullAnalysis() error = %v", err)
	}

	want := report.Anomalies.AlertsGenerated + report.Trend.AlertsGenerated + report.Cost.AlertsGenerated
	if report.AlertsGenerated != want {
		t.Fatalf("expected the report to sum its sections (%d), got %d", want, report.AlertsGenerated)
	}
	if report.AlertsGenerated == 0 {
		t.Fatal("expected the duration spike to raise at least one alert")
	}
}

func TestServiceRecordExecution(t *testing.T) {
	source := &mockExecutionSource{}
	cache := newMockCache()
	svc := NewService(source, nil, cache, nil, nil, testConfig(), logger.New("error"))

	if err := cache.Set(context.Background(), "analytics:anomalies:deploy-api:x", "stale", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	execution, err := entity.NewPipelineExecution("deploy-api", "production", time.Now().Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("NewPipelineExecution() error = %v", err)
	}
	if err := execution.Complete(entity.StatusSuccess, time.Now()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if err := svc.RecordExecution(context.Background(), execution); err != nil {
		t.Fatalf("RecordExecution() error = %v", err)
	}

	if len(source.executions) != 1 {
		t.Fatalf("expected the execution to be saved, got %d", len(source.executions))
	}
	var dest string
	if err := cache.Get(context.Background(), "analytics:anomalies:deploy-api:x", &dest); err == nil {
		t.Fatal("expected cached reports for the pipeline to be invalidated")
	}
}

func TestServiceRecordExecutionSaveError(t *testing.T) {
	source := &mockExecutionSource{err: errors.New("connection refused")}
	svc := NewService(source, nil, nil, nil, nil, testConfig(), logger.New("error"))

	execution, err := entity.NewPipelineExecution("deploy-api", "production", time.Now())
	if err != nil {
		t.Fatalf("NewPipelineExecution() error = %v", err)
	}
	if err := svc.RecordExecution(context.Background(), execution); err == nil {
		t.Fatal("expected the save error to propagate")
	}
}

func TestServiceListExecutions(t *testing.T) {
	source := &mockExecutionSource{executions: buildExecutions(t, steadyDurations(5, 10))}
	svc := NewService(source, nil, nil, nil, nil, testConfig(), logger.New("error"))

	byPipeline, err := svc.ListExecutions(context.Background(), "deploy-api", "", 0)
	if err != nil {
		t.Fatalf("ListExecutions() by pipeline error = %v", err)
	}
	if len(byPipeline) != 5 {
		t.Fatalf("expected 5 executions, got %d", len(byPipeline))
	}

	byEnvironment, err := svc.ListExecutions(context.Background(), "", "production", 7)
	if err != nil {
		t.Fatalf("ListExecutions() by environment error = %v", err)
	}
	if len(byEnvironment) != 5 {
		t.Fatalf("expected 5 executions, got %d", len(byEnvironment))
	}

	if _, err := svc.ListExecutions(context.Background(), "", "", 0); err == nil {
		t.Fatal("expected an error without a pipeline or environment")
	}
}

func TestSeriesFromExecutionsSkipsRunning(t *testing.T) {
	executions := buildExecutions(t, steadyDurations(3, 10))

	running, err := entity.NewPipelineExecution("deploy-api", "production", time.Now())
	if err != nil {
		t.Fatalf("NewPipelineExecution() error = %v", err)
	}
	executions = append(executions, running)

	points := seriesFromExecutions(executions, valueobject.Duration)
	if len(points) != 3 {
		t.Fatalf("expected running executions to be skipped, got %d points", len(points))
	}
}

func TestSeriesFromExecutionsSuccessRate(t *testing.T) {
	executions := buildExecutions(t, steadyDurations(4, 10))
	executions[1].Status = entity.StatusFailed

	points := seriesFromExecutions(executions, valueobject.SuccessRate)
	if len(points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(points))
	}
	if points[1].Value != 0 {
		t.Fatalf("expected failed run to map to 0, got %v", points[1].Value)
	}
	if points[0].Value != 1 {
		t.Fatalf("expected successful run to map to 1, got %v", points[0].Value)
	}
}
