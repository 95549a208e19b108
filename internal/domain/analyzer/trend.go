package analyzer

import (
	"fmt"
	"math"

	"github.com/dreschagin/pipeline-analytics/internal/domain/stats"
)

const slopeEpsilon = 1e-10

// TrendAnalyzer fits a linear trend over a chronologically sorted series and
// extrapolates it at fixed horizons.
type TrendAnalyzer struct {
	MinDataPoints   int
	ConfidenceLevel float64
}

// NewTrendAnalyzer returns an analyzer with the standard minimums.
func NewTrendAnalyzer() *TrendAnalyzer {
	return &TrendAnalyzer{
		MinDataPoints:   5,
		ConfidenceLevel: 0.95,
	}
}

// Analyze regresses value against hours-since-first-point and classifies the
// trend. Points must be sorted ascending by timestamp.
func (t *TrendAnalyzer) Analyze(points []DataPoint) (*TrendResult, error) {
	if len(points) < t.MinDataPoints {
		return nil, fmt.Errorf("%w: need %d points, got %d", ErrInsufficientData, t.MinDataPoints, len(points))
	}

	first := points[0].Timestamp
	x := make([]float64, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Timestamp.Sub(first).Hours()
		y[i] = p.Value
	}

	reg, err := stats.LinearRegression(x, y, t.ConfidenceLevel)
	if err != nil {
		return nil, err
	}

	absSlope := math.Abs(reg.Slope)

	var trend TrendDirection
	switch {
	case reg.StandardError > 3*absSlope && reg.StandardError > 0:
		trend = TrendVolatile
	case absSlope/math.Max(reg.StandardError, slopeEpsilon) < 0.5:
		trend = TrendStable
	case reg.Slope > 0:
		trend = TrendIncreasing
	default:
		trend = TrendDecreasing
	}

	lastX := x[len(x)-1]
	predict := func(hoursAhead float64) float64 {
		return reg.Slope*(lastX+hoursAhead) + reg.Intercept
	}

	meanValue, _ := stats.Mean(y)
	var changeRate float64
	if meanValue != 0 {
		changeRate = reg.Slope * 24 / meanValue * 100
	}

	// Volatility is the spread of the residuals around the fitted line.
	residuals := make([]float64, len(points))
	for i := range points {
		residuals[i] = y[i] - (reg.Slope*x[i] + reg.Intercept)
	}
	volatility, _ := stats.StdDev(residuals)

	return &TrendResult{
		Trend:              trend,
		Slope:              reg.Slope,
		Correlation:        reg.Correlation,
		RSquared:           reg.RSquared,
		ConfidenceInterval: reg.SlopeConfidence,
		Prediction: Forecast{
			Next24h: predict(24),
			Next7d:  predict(168),
			Next30d: predict(720),
		},
		ChangeRatePerDay: changeRate,
		Volatility:       volatility,
	}, nil
}
