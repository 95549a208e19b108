// Package analytics coordinates the domain analyzers with data loading,
// caching, persistence and event publication.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dreschagin/pipeline-analytics/internal/application/dto"
	"github.com/dreschagin/pipeline-analytics/internal/application/port"
	"github.com/dreschagin/pipeline-analytics/internal/domain/analyzer"
	"github.com/dreschagin/pipeline-analytics/internal/domain/entity"
	"github.com/dreschagin/pipeline-analytics/internal/domain/valueobject"
	"github.com/dreschagin/pipeline-analytics/pkg/config"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"
)

// NATS subjects for published analysis events.
const (
	SubjectAnomaly   = "pipeline.analysis.anomaly"
	SubjectTrend     = "pipeline.analysis.trend"
	SubjectBenchmark = "pipeline.analysis.benchmark"
	SubjectSLA       = "pipeline.analysis.sla"
	SubjectCost      = "pipeline.analysis.cost"
)

// AlertSink receives analysis outcomes that may warrant alerting and
// reports how many alerts each outcome fired. The alerting engine
// implements it; a nil sink disables alert evaluation.
type AlertSink interface {
	RaiseFromAnomalies(ctx context.Context, report *AnomalyReport) int
	RaiseFromTrend(ctx context.Context, report *TrendReport) int
	RaiseFromSLA(ctx context.Context, report *SLAReport) int
	RaiseFromCost(ctx context.Context, report *CostReport) int
}

// CacheStats reports cache effectiveness counters.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Service runs analyses over pipeline execution history. Results are cached
// with a TTL, persisted best effort and published to the broker and to
// connected clients.
type Service struct {
	source   port.ExecutionSource
	results  port.ResultStore
	cache    port.Cache
	events   port.EventPublisher
	realtime port.RealtimePublisher
	alerts   AlertSink
	archive  port.ReportArchive

	detector  *analyzer.AnomalyDetector
	trends    *analyzer.TrendAnalyzer
	benchmark *analyzer.BenchmarkEngine
	sla       *analyzer.SLAMonitor
	cost      *analyzer.CostAnalyzer

	cacheTTL     time.Duration
	lookbackDays int
	logger       *logger.Logger

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// NewService wires the analyzers with the given ports. cache, events,
// realtime and alerts may be nil; the matching step is then skipped.
func NewService(
	source port.ExecutionSource,
	results port.ResultStore,
	cache port.Cache,
	events port.EventPublisher,
	realtime port.RealtimePublisher,
	cfg config.AnalyticsConfig,
	log *logger.Logger,
) *Service {
	detector := analyzer.NewAnomalyDetector()
	if cfg.MinDataPoints > 0 {
		detector.MinDataPoints = cfg.MinDataPoints
	}
	if cfg.ZScoreThreshold > 0 {
		detector.ZScoreThreshold = cfg.ZScoreThreshold
	}

	trends := analyzer.NewTrendAnalyzer()

	return &Service{
		source:       source,
		results:      results,
		cache:        cache,
		events:       events,
		realtime:     realtime,
		detector:     detector,
		trends:       trends,
		benchmark:    analyzer.NewBenchmarkEngine(),
		sla:          analyzer.NewSLAMonitor(),
		cost:         analyzer.NewCostAnalyzer(analyzer.DefaultCostRates(), trends),
		cacheTTL:     cfg.CacheTTL,
		lookbackDays: cfg.DefaultLookbackDays,
		logger:       log.Named("analytics"),
	}
}

// SetAlertSink attaches the alerting engine. Called once during wiring.
func (s *Service) SetAlertSink(sink AlertSink) {
	s.alerts = sink
}

// SetReportArchive attaches long-term report storage. Called once during
// wiring; a nil archive disables archiving.
func (s *Service) SetReportArchive(archive port.ReportArchive) {
	s.archive = archive
}

// AnalyzeAnomalies runs anomaly detection for one pipeline metric series.
func (s *Service) AnalyzeAnomalies(ctx context.Context, req AnomalyRequest) (*AnomalyReport, error) {
	if err := req.Metric.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metric: %w", err)
	}
	if req.Method == "" {
		req.Method = analyzer.MethodZScore
	}

	key := s.cacheKey("anomaly", req.PipelineID, req.Metric.String(), string(req.Method), s.lookback(req.LookbackDays))

	var cached AnomalyReport
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	points, err := s.loadSeries(ctx, req.PipelineID, req.Metric, req.LookbackDays)
	if err != nil {
		return nil, err
	}

	anomalies, err := s.detector.Detect(points, req.Method)
	if err != nil {
		return nil, fmt.Errorf("anomaly detection failed: %w", err)
	}

	report := &AnomalyReport{
		PipelineID:  req.PipelineID,
		Metric:      req.Metric,
		Method:      req.Method,
		DataPoints:  len(points),
		Anomalies:   anomalies,
		GeneratedAt: time.Now(),
	}

	s.logger.Debug("Anomaly analysis completed",
		"pipeline", req.PipelineID,
		"metric", req.Metric.String(),
		"points", len(points),
		"anomalies", len(anomalies))

	if s.alerts != nil && len(anomalies) > 0 {
		report.AlertsGenerated = s.alerts.RaiseFromAnomalies(ctx, report)
	}

	s.cacheSet(key, report)
	s.persist(ctx, "anomaly", req.PipelineID, req.Metric.String(), report)
	s.publish(ctx, SubjectAnomaly, dto.UpdateAnalysisResult, req.PipelineID, req.Metric.String(), report)

	return report, nil
}

// AnalyzeTrends fits a trend for one pipeline metric series.
func (s *Service) AnalyzeTrends(ctx context.Context, req TrendRequest) (*TrendReport, error) {
	if err := req.Metric.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metric: %w", err)
	}

	key := s.cacheKey("trend", req.PipelineID, req.Metric.String(), s.lookback(req.LookbackDays))

	var cached TrendReport
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	points, err := s.loadSeries(ctx, req.PipelineID, req.Metric, req.LookbackDays)
	if err != nil {
		return nil, err
	}

	trend, err := s.trends.Analyze(points)
	if err != nil {
		return nil, fmt.Errorf("trend analysis failed: %w", err)
	}

	report := &TrendReport{
		PipelineID:  req.PipelineID,
		Metric:      req.Metric,
		DataPoints:  len(points),
		Trend:       trend,
		GeneratedAt: time.Now(),
	}

	s.logger.Debug("Trend analysis completed",
		"pipeline", req.PipelineID,
		"metric", req.Metric.String(),
		"trend", string(trend.Trend))

	if s.alerts != nil {
		report.AlertsGenerated = s.alerts.RaiseFromTrend(ctx, report)
	}

	s.cacheSet(key, report)
	s.persist(ctx, "trend", req.PipelineID, req.Metric.String(), report)
	s.publish(ctx, SubjectTrend, dto.UpdateAnalysisResult, req.PipelineID, req.Metric.String(), report)

	return report, nil
}

// BenchmarkPerformance ranks a current value against the pipeline's history.
func (s *Service) BenchmarkPerformance(ctx context.Context, req BenchmarkRequest) (*BenchmarkReport, error) {
	if err := req.Metric.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metric: %w", err)
	}

	key := s.cacheKey("benchmark", req.PipelineID, req.Metric.String(),
		fmt.Sprintf("%.4f", req.CurrentValue), s.lookback(req.LookbackDays))

	var cached BenchmarkReport
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	points, err := s.loadSeries(ctx, req.PipelineID, req.Metric, req.LookbackDays)
	if err != nil {
		return nil, err
	}

	result, err := s.benchmark.Compare(req.CurrentValue, points)
	if err != nil {
		return nil, fmt.Errorf("benchmark comparison failed: %w", err)
	}

	report := &BenchmarkReport{
		PipelineID:  req.PipelineID,
		Metric:      req.Metric,
		DataPoints:  len(points),
		Result:      result,
		GeneratedAt: time.Now(),
	}

	s.cacheSet(key, report)
	s.persist(ctx, "benchmark", req.PipelineID, req.Metric.String(), report)
	s.publish(ctx, SubjectBenchmark, dto.UpdateAnalysisResult, req.PipelineID, req.Metric.String(), report)

	return report, nil
}

// MonitorSLA evaluates the latest value of a series against its target.
// SLA evaluations are not cached: the latest value must always be fresh.
func (s *Service) MonitorSLA(ctx context.Context, req SLARequest) (*SLAReport, error) {
	if err := req.Metric.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metric: %w", err)
	}

	points, err := s.loadSeries(ctx, req.PipelineID, req.Metric, req.LookbackDays)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no executions for pipeline %s", analyzer.ErrInsufficientData, req.PipelineID)
	}

	latest := points[len(points)-1]
	history := points[:len(points)-1]

	result, err := s.sla.Evaluate(latest.Value, req.Target, req.ViolationType, history)
	if err != nil {
		return nil, fmt.Errorf("sla evaluation failed: %w", err)
	}

	report := &SLAReport{
		PipelineID:  req.PipelineID,
		Metric:      req.Metric,
		Result:      result,
		GeneratedAt: time.Now(),
	}

	if result.Violated {
		s.logger.Warn("SLA violation detected",
			"pipeline", req.PipelineID,
			"metric", req.Metric.String(),
			"severity", string(result.Severity))
	}

	if s.alerts != nil && result.Violated {
		report.AlertsGenerated = s.alerts.RaiseFromSLA(ctx, report)
	}

	s.persist(ctx, "sla", req.PipelineID, req.Metric.String(), report)
	s.publish(ctx, SubjectSLA, dto.UpdateAnalysisResult, req.PipelineID, req.Metric.String(), report)

	return report, nil
}

// AnalyzeCosts prices the pipeline's most recent execution and fits a trend
// over its cost history.
func (s *Service) AnalyzeCosts(ctx context.Context, req CostRequest) (*CostReport, error) {
	key := s.cacheKey("cost", req.PipelineID, s.lookback(req.LookbackDays))

	var cached CostReport
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	executions, err := s.loadExecutions(ctx, req.PipelineID, req.LookbackDays)
	if err != nil {
		return nil, err
	}

	latest := latestFinished(executions)
	if latest == nil {
		return nil, fmt.Errorf("%w: no finished executions for pipeline %s", analyzer.ErrInsufficientData, req.PipelineID)
	}

	usage := analyzer.ResourceUsage{
		CPUCores:          latest.CPUCores,
		CPUUtilization:    latest.CPUUtilization,
		MemoryGB:          latest.MemoryGB,
		MemoryUtilization: latest.MemoryUtilization,
		StorageGB:         latest.StorageGB,
		NetworkGB:         latest.NetworkGB,
	}

	result, err := s.cost.Analyze(usage, latest.DurationHours(), costHistory(executions, s.cost.Rates))
	if err != nil {
		return nil, fmt.Errorf("cost analysis failed: %w", err)
	}

	report := &CostReport{
		PipelineID:  req.PipelineID,
		ExecutionID: latest.ID,
		Result:      result,
		GeneratedAt: time.Now(),
	}

	if s.alerts != nil {
		report.AlertsGenerated = s.alerts.RaiseFromCost(ctx, report)
	}

	s.cacheSet(key, report)
	s.persist(ctx, "cost", req.PipelineID, "", report)
	s.publish(ctx, SubjectCost, dto.UpdateAnalysisResult, req.PipelineID, "", report)

	return report, nil
}

// ListResults returns persisted analysis records for a pipeline, newest
// first. analysisType narrows the listing when non-empty.
func (s *Service) ListResults(ctx context.Context, pipelineID, analysisType string, limit int) ([]port.AnalysisRecord, error) {
	if s.results == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	return s.results.ListResults(ctx, pipelineID, analysisType, limit)
}

// RecordExecution stores an incoming pipeline execution and drops the
// pipeline's cached analyses so the next analysis sees the new data.
func (s *Service) RecordExecution(ctx context.Context, execution *entity.PipelineExecution) error {
	if err := s.source.Save(ctx, execution); err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	s.InvalidatePipeline(ctx, execution.PipelineID)
	s.logger.Debug("Execution recorded",
		"pipeline", execution.PipelineID,
		"execution_id", execution.ID,
		"status", string(execution.Status))
	return nil
}

// ListExecutions returns execution history scoped to one pipeline or to a
// whole environment over the lookback period.
func (s *Service) ListExecutions(ctx context.Context, pipelineID, environment string, lookbackDays int) ([]*entity.PipelineExecution, error) {
	days := lookbackDays
	if days <= 0 {
		days = s.lookbackDays
	}
	tr, err := valueobject.LastNDays(days)
	if err != nil {
		return nil, fmt.Errorf("invalid lookback: %w", err)
	}

	switch {
	case pipelineID != "":
		return s.source.FindByPipeline(ctx, pipelineID, tr)
	case environment != "":
		return s.source.FindByEnvironment(ctx, environment, tr)
	default:
		return nil, fmt.Errorf("invalid listing: pipeline id or environment is required")
	}
}

// CacheStats returns the hit and miss counters since startup.
func (s *Service) CacheStats() CacheStats {
	return CacheStats{
		Hits:   s.cacheHits.Load(),
		Misses: s.cacheMisses.Load(),
	}
}

// InvalidatePipeline drops all cached analyses for a pipeline. Called when
// new execution data arrives.
func (s *Service) InvalidatePipeline(ctx context.Context, pipelineID string) {
	if s.cache == nil {
		return
	}
	pattern := "analytics:*:" + pipelineID + ":*"
	if err := s.cache.DeletePattern(ctx, pattern); err != nil {
		s.logger.Warn("Failed to invalidate pipeline cache", "pipeline", pipelineID, "error", err.Error())
	}
}

func (s *Service) loadExecutions(ctx context.Context, pipelineID string, lookbackDays int) ([]*entity.PipelineExecution, error) {
	days := lookbackDays
	if days <= 0 {
		days = s.lookbackDays
	}

	tr, err := valueobject.LastNDays(days)
	if err != nil {
		return nil, fmt.Errorf("invalid lookback: %w", err)
	}

	executions, err := s.source.FindByPipeline(ctx, pipelineID, tr)
	if err != nil {
		s.logger.Error("Failed to load executions", err, "pipeline", pipelineID)
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	return executions, nil
}

func (s *Service) loadSeries(ctx context.Context, pipelineID string, kind valueobject.MetricKind, lookbackDays int) ([]analyzer.DataPoint, error) {
	executions, err := s.loadExecutions(ctx, pipelineID, lookbackDays)
	if err != nil {
		return nil, err
	}
	return seriesFromExecutions(executions, kind), nil
}

// cacheKey joins the analysis type and its parameters into a deterministic key.
func (s *Service) cacheKey(analysisType string, parts ...string) string {
	return "analytics:" + analysisType + ":" + strings.Join(parts, ":")
}

func (s *Service) lookback(days int) string {
	if days <= 0 {
		days = s.lookbackDays
	}
	return fmt.Sprintf("%dd", days)
}

func (s *Service) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	if err := s.cache.Get(ctx, key, dest); err != nil {
		s.cacheMisses.Add(1)
		return false
	}
	s.cacheHits.Add(1)
	s.logger.Debug("Cache hit", "key", key)
	return true
}

// cacheSet stores asynchronously so the response is not blocked on Redis.
func (s *Service) cacheSet(key string, value interface{}) {
	if s.cache == nil {
		return
	}
	go func() {
		if err := s.cache.Set(context.Background(), key, value, s.cacheTTL); err != nil {
			s.logger.Warn("Failed to cache analysis result", "key", key, "error", err.Error())
		}
	}()
}

// persist stores the record best effort; analysis output is still returned
// to the caller when the store is unavailable.
func (s *Service) persist(ctx context.Context, analysisType, pipelineID, metricKind string, result interface{}) {
	if s.results == nil {
		return
	}
	record := port.AnalysisRecord{
		ID:           uuid.New().String(),
		AnalysisType: analysisType,
		PipelineID:   pipelineID,
		MetricKind:   metricKind,
		Result:       result,
		CreatedAt:    time.Now(),
	}
	if err := s.results.SaveResult(ctx, record); err != nil {
		s.logger.Warn("Failed to persist analysis result", "type", analysisType, "error", err.Error())
	}

	s.archiveReport(ctx, analysisType, pipelineID, record.CreatedAt, result)
}

// archiveReport ships the report JSON to long-term storage best effort.
func (s *Service) archiveReport(ctx context.Context, analysisType, pipelineID string, generatedAt time.Time, result interface{}) {
	if s.archive == nil {
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("Failed to serialize report for archiving", "type", analysisType, "error", err.Error())
		return
	}

	url, err := s.archive.PutReport(ctx, pipelineID, analysisType, generatedAt, body)
	if err != nil {
		s.logger.Warn("Failed to archive analysis report", "type", analysisType, "error", err.Error())
		return
	}
	s.logger.Debug("Report archived", "type", analysisType, "pipeline", pipelineID, "url", url)
}

// publish fans the result out to the broker and to websocket clients.
// Both deliveries are best effort.
func (s *Service) publish(ctx context.Context, subject, updateType, pipelineID, metricKind string, payload interface{}) {
	if s.events != nil {
		if err := s.events.PublishEvent(ctx, subject, payload); err != nil {
			s.logger.Warn("Failed to publish analysis event", "subject", subject, "error", err.Error())
		}
	}
	if s.realtime != nil {
		s.realtime.Broadcast(dto.NewRealtimeUpdate(updateType, pipelineID, metricKind, payload))
	}
}

func latestFinished(executions []*entity.PipelineExecution) *entity.PipelineExecution {
	for i := len(executions) - 1; i >= 0; i-- {
		if executions[i].Finished() {
			return executions[i]
		}
	}
	return nil
}
