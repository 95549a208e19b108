// Package analyzer implements the statistical analysis algorithms that run
// over pipeline execution time series: anomaly detection, trend analysis,
// benchmarking, SLA monitoring and cost analysis. All analyzers are pure
// computations over their inputs; loading data and persisting results is the
// caller's concern.
package analyzer

import (
	"errors"
	"time"

	"github.com/dreschagin/pipeline-analytics/internal/domain/stats"
)

// ErrInsufficientData marks an analysis request with fewer samples than the
// method requires. Callers may skip that analysis type for the cycle instead
// of failing the whole run.
var ErrInsufficientData = errors.New("analyzer: insufficient data")

// ErrInvalidInput marks malformed analysis arguments, as opposed to a
// well-formed request over too small a sample.
var ErrInvalidInput = errors.New("analyzer: invalid input")

// DataPoint is a single observation in a time series. Points are immutable
// once produced and must be passed in ascending timestamp order; analyzers do
// not re-sort because regression pairs values by index.
type DataPoint struct {
	Timestamp time.Time              `json:"timestamp"`
	Value     float64                `json:"value"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Method selects the anomaly detection algorithm.
type Method string

const (
	MethodZScore     Method = "z-score"
	MethodPercentile Method = "percentile"
	MethodIQR        Method = "iqr"
	MethodAll        Method = "all"
)

// Severity classifies how far outside normal an anomalous point is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank orders severities for threshold comparisons.
func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

// Anomaly is one (point, method) pair that crossed a detection threshold.
// Non-anomalous points produce no result: output is sparse.
type Anomaly struct {
	Timestamp     time.Time    `json:"timestamp"`
	ActualValue   float64      `json:"actual_value"`
	Method        Method       `json:"method"`
	AnomalyScore  float64      `json:"anomaly_score"`
	Threshold     float64      `json:"threshold"`
	ExpectedRange stats.Bounds `json:"expected_range"`
	Confidence    float64      `json:"confidence"`
	Severity      Severity     `json:"severity"`
}

// TrendDirection classifies the fitted trend of a series.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
	TrendVolatile   TrendDirection = "volatile"
)

// Forecast holds linear extrapolations at the fixed horizons.
type Forecast struct {
	Next24h float64 `json:"next_24h"`
	Next7d  float64 `json:"next_7d"`
	Next30d float64 `json:"next_30d"`
}

// TrendResult is the outcome of fitting one time series.
type TrendResult struct {
	Trend              TrendDirection `json:"trend"`
	Slope              float64        `json:"slope"`
	Correlation        float64        `json:"correlation"`
	RSquared           float64        `json:"r_squared"`
	ConfidenceInterval stats.Bounds   `json:"confidence_interval"`
	Prediction         Forecast       `json:"prediction"`
	ChangeRatePerDay   float64        `json:"change_rate_per_day"`
	Volatility         float64        `json:"volatility"`
}

// PerformanceTier is the qualitative benchmark classification.
type PerformanceTier string

const (
	PerformanceExcellent    PerformanceTier = "excellent"
	PerformanceGood         PerformanceTier = "good"
	PerformanceAverage      PerformanceTier = "average"
	PerformanceBelowAverage PerformanceTier = "below-average"
	PerformancePoor         PerformanceTier = "poor"
)

// HistoricalContext summarizes the comparison distribution.
type HistoricalContext struct {
	Best    float64 `json:"best"`
	Worst   float64 `json:"worst"`
	Average float64 `json:"average"`
	Median  float64 `json:"median"`
}

// BenchmarkResult compares a current value against a historical distribution.
type BenchmarkResult struct {
	CurrentValue      float64           `json:"current_value"`
	Benchmark         float64           `json:"benchmark"`
	Percentile        float64           `json:"percentile"`
	DeviationPercent  float64           `json:"deviation_percent"`
	Performance       PerformanceTier   `json:"performance"`
	HistoricalContext HistoricalContext `json:"historical_context"`
	BetterThanPercent float64           `json:"better_than_percent"`
}

// SLASeverity grades a violation by its magnitude.
type SLASeverity string

const (
	SLAMinor    SLASeverity = "minor"
	SLAMajor    SLASeverity = "major"
	SLACritical SLASeverity = "critical"
)

// ViolationType selects the remediation guidance family.
type ViolationType string

const (
	ViolationPerformance  ViolationType = "performance"
	ViolationAvailability ViolationType = "availability"
	ViolationOther        ViolationType = "other"
)

// Remediation is advisory guidance attached to a violation. It is a fixed
// lookup by violation type, not a computed optimization.
type Remediation struct {
	ImmediateActions []string `json:"immediate_actions"`
	LongTermActions  []string `json:"long_term_actions"`
	EstimatedImpact  string   `json:"estimated_impact"`
}

// SLAResult is the outcome of evaluating one value against its SLA target.
type SLAResult struct {
	Violated             bool          `json:"violated"`
	SLATarget            float64       `json:"sla_target"`
	ActualValue          float64       `json:"actual_value"`
	ViolationPercent     float64       `json:"violation_percent"`
	ViolationType        ViolationType `json:"violation_type"`
	Severity             SLASeverity   `json:"severity"`
	TimeInViolation      time.Duration `json:"time_in_violation"`
	ViolationFrequency24 int           `json:"violation_frequency_24h"`
	Remediation          Remediation   `json:"remediation"`
}

// ResourceUsage describes what one pipeline execution consumed.
type ResourceUsage struct {
	CPUCores          float64 `json:"cpu_cores"`
	CPUUtilization    float64 `json:"cpu_utilization"`
	MemoryGB          float64 `json:"memory_gb"`
	MemoryUtilization float64 `json:"memory_utilization"`
	StorageGB         float64 `json:"storage_gb"`
	NetworkGB         float64 `json:"network_gb"`
}

// Opportunity is a threshold-triggered cost optimization suggestion.
type Opportunity struct {
	Kind             string  `json:"kind"`
	Description      string  `json:"description"`
	EstimatedSavings float64 `json:"estimated_savings"`
}

// Efficiency scores how well resources were used, with recommendations.
type Efficiency struct {
	Score           float64  `json:"score"`
	Recommendations []string `json:"recommendations"`
}

// CostResult is the monetary view of an execution plus its trend.
type CostResult struct {
	TotalCost           float64       `json:"total_cost"`
	CostPerMinute       float64       `json:"cost_per_minute"`
	CostTrend           *TrendResult  `json:"cost_trend,omitempty"`
	Opportunities       []Opportunity `json:"optimization_opportunities"`
	ResourceUtilization float64       `json:"resource_utilization"`
	Efficiency          Efficiency    `json:"efficiency"`
}

// Values extracts the value column from a series.
func Values(points []DataPoint) []float64 {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values
}
