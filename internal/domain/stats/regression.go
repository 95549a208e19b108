package stats

import (
	"fmt"
	"math"
)

// Regression is the result of a least-squares linear fit.
type Regression struct {
	Slope           float64 `json:"slope"`
	Intercept       float64 `json:"intercept"`
	Correlation     float64 `json:"correlation"`
	RSquared        float64 `json:"r_squared"`
	StandardError   float64 `json:"standard_error"`
	TStatistic      float64 `json:"t_statistic"`
	PValue          float64 `json:"p_value"`
	SlopeConfidence Bounds  `json:"slope_confidence"`
}

// tCritical approximates the two-tailed critical value for common confidence
// levels. A general t-distribution inversion is deliberately out of scope;
// with the sample sizes the analyzers require, the normal approximation is
// close enough.
func tCritical(confidenceLevel float64) float64 {
	switch {
	case confidenceLevel >= 0.99:
		return 2.576
	case confidenceLevel >= 0.95:
		return 1.96
	case confidenceLevel >= 0.90:
		return 1.645
	default:
		return 1.96
	}
}

// LinearRegression fits y = slope*x + intercept by least squares using
// centered sums (Sxx, Sxy, Syy) for numerical stability. confidenceLevel
// controls the width of the slope confidence band (0.90, 0.95 or 0.99).
func LinearRegression(x, y []float64, confidenceLevel float64) (Regression, error) {
	if len(x) != len(y) {
		return Regression{}, fmt.Errorf("%w: x and y lengths differ (%d vs %d)", ErrInvalidInput, len(x), len(y))
	}
	n := len(x)
	if n < 2 {
		return Regression{}, fmt.Errorf("%w: regression needs at least 2 points, got %d", ErrInvalidInput, n)
	}

	var meanX, meanY float64
	for i := range x {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var sxx, sxy, syy float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}

	if sxx == 0 {
		return Regression{}, fmt.Errorf("%w: all x values are identical", ErrInvalidInput)
	}

	slope := sxy / sxx
	intercept := meanY - slope*meanX

	correlation := 0.0
	if syy > 0 {
		correlation = sxy / math.Sqrt(sxx*syy)
	}

	// Residual sum of squares via the identity RSS = Syy - slope*Sxy.
	residualSS := syy - slope*sxy
	if residualSS < 0 {
		residualSS = 0
	}

	var stdErr float64
	if n > 2 {
		stdErr = math.Sqrt(residualSS / (float64(n-2) * sxx))
	}

	var tStat float64
	if stdErr > 0 {
		tStat = slope / stdErr
	}

	// Two-tailed p-value via the normal approximation of the t statistic.
	pValue := math.Erfc(math.Abs(tStat) / math.Sqrt2)

	margin := tCritical(confidenceLevel) * stdErr

	return Regression{
		Slope:         slope,
		Intercept:     intercept,
		Correlation:   correlation,
		RSquared:      correlation * correlation,
		StandardError: stdErr,
		TStatistic:    tStat,
		PValue:        pValue,
		SlopeConfidence: Bounds{
			Lower: slope - margin,
			Upper: slope + margin,
		},
	}, nil
}
