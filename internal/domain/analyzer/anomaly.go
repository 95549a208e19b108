package analyzer

import (
	"fmt"
	"math"
	"sort"

	"github.com/dreschagin/pipeline-analytics/internal/domain/stats"
)

// AnomalyDetector flags points that fall outside the normal range of their
// window by one or more statistical methods.
type AnomalyDetector struct {
	MinDataPoints       int
	ZScoreThreshold     float64
	PercentileThreshold float64
	IQRMultiplier       float64
}

// NewAnomalyDetector returns a detector with the standard thresholds.
func NewAnomalyDetector() *AnomalyDetector {
	return &AnomalyDetector{
		MinDataPoints:       10,
		ZScoreThreshold:     2.0,
		PercentileThreshold: 95,
		IQRMultiplier:       1.5,
	}
}

// Detect evaluates every point of the window against the requested method(s).
// The output is sparse: only (point, method) pairs that crossed a threshold
// are emitted, so a single point can contribute zero, one, or several results
// when method is MethodAll.
func (d *AnomalyDetector) Detect(points []DataPoint, method Method) ([]Anomaly, error) {
	if len(points) < d.MinDataPoints {
		return nil, fmt.Errorf("%w: need %d points, got %d", ErrInsufficientData, d.MinDataPoints, len(points))
	}

	values := Values(points)
	mean, err := stats.Mean(values)
	if err != nil {
		return nil, err
	}
	stdDev, err := stats.StdDevWithMean(values, mean)
	if err != nil {
		return nil, err
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var anomalies []Anomaly
	for _, point := range points {
		if method == MethodZScore || method == MethodAll {
			if a, ok := d.checkZScore(point, mean, stdDev); ok {
				anomalies = append(anomalies, a)
			}
		}
		if method == MethodPercentile || method == MethodAll {
			if a, ok := d.checkPercentile(point, sorted); ok {
				anomalies = append(anomalies, a)
			}
		}
		if method == MethodIQR || method == MethodAll {
			if a, ok := d.checkIQR(point, sorted); ok {
				anomalies = append(anomalies, a)
			}
		}
	}

	return anomalies, nil
}

func (d *AnomalyDetector) checkZScore(point DataPoint, mean, stdDev float64) (Anomaly, bool) {
	if stdDev == 0 {
		return Anomaly{}, false
	}

	score := math.Abs(point.Value-mean) / stdDev
	if score <= d.ZScoreThreshold {
		return Anomaly{}, false
	}

	var severity Severity
	switch {
	case score >= 5:
		severity = SeverityCritical
	case score >= 3:
		severity = SeverityHigh
	case score >= 2:
		severity = SeverityMedium
	default:
		severity = SeverityLow
	}

	return Anomaly{
		Timestamp:    point.Timestamp,
		ActualValue:  point.Value,
		Method:       MethodZScore,
		AnomalyScore: score,
		Threshold:    d.ZScoreThreshold,
		ExpectedRange: stats.Bounds{
			Lower: mean - d.ZScoreThreshold*stdDev,
			Upper: mean + d.ZScoreThreshold*stdDev,
		},
		Confidence: math.Min(100, score/d.ZScoreThreshold*100),
		Severity:   severity,
	}, true
}

func (d *AnomalyDetector) checkPercentile(point DataPoint, sorted []float64) (Anomaly, bool) {
	if sorted[0] == sorted[len(sorted)-1] {
		// Degenerate distribution: every value ranks at 100 and the method
		// would flag the whole window.
		return Anomaly{}, false
	}

	rank, err := stats.ValuePercentile(sorted, point.Value)
	if err != nil {
		return Anomaly{}, false
	}

	upper := d.PercentileThreshold
	lower := 100 - d.PercentileThreshold
	if rank <= upper && rank >= lower {
		return Anomaly{}, false
	}

	// Extremeness is the distance from the 50th percentile expressed as a
	// rank, so both tails share one severity ladder.
	extremeness := rank
	if rank < 50 {
		extremeness = 100 - rank
	}

	var severity Severity
	switch {
	case extremeness >= 99:
		severity = SeverityCritical
	case extremeness >= 97:
		severity = SeverityHigh
	case extremeness >= d.PercentileThreshold:
		severity = SeverityMedium
	default:
		severity = SeverityLow
	}

	lowerBound, _ := stats.Percentile(sorted, lower)
	upperBound, _ := stats.Percentile(sorted, upper)

	return Anomaly{
		Timestamp:    point.Timestamp,
		ActualValue:  point.Value,
		Method:       MethodPercentile,
		AnomalyScore: extremeness,
		Threshold:    d.PercentileThreshold,
		ExpectedRange: stats.Bounds{
			Lower: lowerBound,
			Upper: upperBound,
		},
		Confidence: math.Min(100, extremeness),
		Severity:   severity,
	}, true
}

func (d *AnomalyDetector) checkIQR(point DataPoint, sorted []float64) (Anomaly, bool) {
	q1, err := stats.Percentile(sorted, 25)
	if err != nil {
		return Anomaly{}, false
	}
	q3, _ := stats.Percentile(sorted, 75)

	iqr := q3 - q1
	if iqr <= 0 {
		// Degenerate distribution: the fence collapses to a point and every
		// deviation would be infinitely scored. Skip the method.
		return Anomaly{}, false
	}

	bounds := stats.Bounds{
		Lower: q1 - d.IQRMultiplier*iqr,
		Upper: q3 + d.IQRMultiplier*iqr,
	}
	if point.Value >= bounds.Lower && point.Value <= bounds.Upper {
		return Anomaly{}, false
	}

	var distance float64
	if point.Value < bounds.Lower {
		distance = bounds.Lower - point.Value
	} else {
		distance = point.Value - bounds.Upper
	}
	score := distance / iqr

	var severity Severity
	switch {
	case score >= 3:
		severity = SeverityCritical
	case score >= 2:
		severity = SeverityHigh
	case score >= 1.5:
		severity = SeverityMedium
	default:
		severity = SeverityLow
	}

	return Anomaly{
		Timestamp:     point.Timestamp,
		ActualValue:   point.Value,
		Method:        MethodIQR,
		AnomalyScore:  score,
		Threshold:     d.IQRMultiplier,
		ExpectedRange: bounds,
		Confidence:    math.Min(100, score/d.IQRMultiplier*100),
		Severity:      severity,
	}, true
}
