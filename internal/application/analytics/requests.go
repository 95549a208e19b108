package analytics

import (
	"time"

	"github.com/dreschagin/pipeline-analytics/internal/domain/analyzer"
	"github.com/dreschagin/pipeline-analytics/internal/domain/entity"
	"github.com/dreschagin/pipeline-analytics/internal/domain/valueobject"
)

// AnomalyRequest asks for anomaly detection over one pipeline metric series.
type AnomalyRequest struct {
	PipelineID   string                 `json:"pipeline_id"`
	Metric       valueobject.MetricKind `json:"metric"`
	Method       analyzer.Method        `json:"method"`
	LookbackDays int                    `json:"lookback_days"`
}

// TrendRequest asks for trend analysis over one pipeline metric series.
type TrendRequest struct {
	PipelineID   string                 `json:"pipeline_id"`
	Metric       valueobject.MetricKind `json:"metric"`
	LookbackDays int                    `json:"lookback_days"`
}

// BenchmarkRequest compares a current value against the pipeline's history.
type BenchmarkRequest struct {
	PipelineID   string                 `json:"pipeline_id"`
	Metric       valueobject.MetricKind `json:"metric"`
	CurrentValue float64                `json:"current_value"`
	LookbackDays int                    `json:"lookback_days"`
}

// SLARequest evaluates the latest value of a series against a target.
type SLARequest struct {
	PipelineID    string                 `json:"pipeline_id"`
	Metric        valueobject.MetricKind `json:"metric"`
	Target        float64                `json:"target"`
	ViolationType analyzer.ViolationType `json:"violation_type"`
	LookbackDays  int                    `json:"lookback_days"`
}

// CostRequest asks for a cost breakdown of the pipeline's latest execution
// and a trend over its cost history.
type CostRequest struct {
	PipelineID   string `json:"pipeline_id"`
	LookbackDays int    `json:"lookback_days"`
}

// AnomalyReport is the service-level result of an anomaly analysis.
type AnomalyReport struct {
	PipelineID      string                 `json:"pipeline_id"`
	Metric          valueobject.MetricKind `json:"metric"`
	Method          analyzer.Method        `json:"method"`
	DataPoints      int                    `json:"data_points"`
	Anomalies       []analyzer.Anomaly     `json:"anomalies"`
	AlertsGenerated int                    `json:"alerts_generated"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

// AlertCount reports how many alerts this analysis raised. The scheduler
// records it on the job execution.
func (r *AnomalyReport) AlertCount() int { return r.AlertsGenerated }

// TrendReport is the service-level result of a trend analysis.
type TrendReport struct {
	PipelineID      string                 `json:"pipeline_id"`
	Metric          valueobject.MetricKind `json:"metric"`
	DataPoints      int                    `json:"data_points"`
	Trend           *analyzer.TrendResult  `json:"trend"`
	AlertsGenerated int                    `json:"alerts_generated"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

func (r *TrendReport) AlertCount() int { return r.AlertsGenerated }

// BenchmarkReport is the service-level result of a benchmark comparison.
type BenchmarkReport struct {
	PipelineID  string                    `json:"pipeline_id"`
	Metric      valueobject.MetricKind    `json:"metric"`
	DataPoints  int                       `json:"data_points"`
	Result      *analyzer.BenchmarkResult `json:"result"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// SLAReport is the service-level result of an SLA evaluation.
type SLAReport struct {
	PipelineID      string                 `json:"pipeline_id"`
	Metric          valueobject.MetricKind `json:"metric"`
	Result          *analyzer.SLAResult    `json:"result"`
	AlertsGenerated int                    `json:"alerts_generated"`
	GeneratedAt     time.Time              `json:"generated_at"`
}

func (r *SLAReport) AlertCount() int { return r.AlertsGenerated }

// CostReport is the service-level result of a cost analysis.
type CostReport struct {
	PipelineID      string               `json:"pipeline_id"`
	ExecutionID     string               `json:"execution_id"`
	Result          *analyzer.CostResult `json:"result"`
	AlertsGenerated int                  `json:"alerts_generated"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

func (r *CostReport) AlertCount() int { return r.AlertsGenerated }

// seriesFromExecutions projects executions onto the requested metric series.
// Runs still in progress are skipped because their values are not final.
func seriesFromExecutions(executions []*entity.PipelineExecution, kind valueobject.MetricKind) []analyzer.DataPoint {
	points := make([]analyzer.DataPoint, 0, len(executions))

	for _, e := range executions {
		if !e.Finished() {
			continue
		}

		var value float64
		switch kind {
		case valueobject.Duration:
			value = e.Duration.Minutes()
		case valueobject.CPU:
			value = e.CPUUtilization
		case valueobject.Memory:
			value = e.MemoryUtilization
		case valueobject.SuccessRate:
			value = e.SuccessValue()
		case valueobject.TestCoverage:
			value = e.TestCoverage
		default:
			continue
		}

		points = append(points, analyzer.DataPoint{
			Timestamp: e.StartedAt,
			Value:     value,
		})
	}

	return points
}

// costHistory builds the per-execution cost series used for cost trends.
func costHistory(executions []*entity.PipelineExecution, rates analyzer.CostRates) []analyzer.DataPoint {
	points := make([]analyzer.DataPoint, 0, len(executions))

	for _, e := range executions {
		if !e.Finished() {
			continue
		}

		hours := e.DurationHours()
		cost := (e.CPUCores*rates.CPUPerCoreHour+e.MemoryGB*rates.MemoryPerGBHour+e.StorageGB*rates.StoragePerGBHour)*hours +
			e.NetworkGB*rates.NetworkPerGB

		points = append(points, analyzer.DataPoint{
			Timestamp: e.StartedAt,
			Value:     cost,
		})
	}

	return points
}
