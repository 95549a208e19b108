package valueobject

import "errors"

// MetricKind identifies which pipeline execution metric a time series carries.
type MetricKind string

const (
	Duration     MetricKind = "duration"
	CPU          MetricKind = "cpu"
	Memory       MetricKind = "memory"
	SuccessRate  MetricKind = "success_rate"
	TestCoverage MetricKind = "test_coverage"
)

// Validate checks that the metric kind is one of the supported series.
func (mk MetricKind) Validate() error {
	switch mk {
	case Duration, CPU, Memory, SuccessRate, TestCoverage:
		return nil
	default:
		return errors.New("invalid metric kind")
	}
}

// String returns the string representation of the metric kind.
func (mk MetricKind) String() string {
	return string(mk)
}

// AllMetricKinds lists every supported metric kind.
func AllMetricKinds() []MetricKind {
	return []MetricKind{Duration, CPU, Memory, SuccessRate, TestCoverage}
}
