// Package stats contains the pure numerical primitives the analyzers are
// built on. Every function is deterministic and free of hidden state: same
// input, same output. Callers are responsible for sorting where a function
// documents that it expects sorted input.
package stats

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput marks malformed arguments: empty slices, out-of-range
// percentiles, mismatched or degenerate regression input. It is never retried.
var ErrInvalidInput = errors.New("stats: invalid input")

// Mean returns the arithmetic mean of values.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: mean of empty slice", ErrInvalidInput)
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

// Variance returns the population variance of values.
func Variance(values []float64) (float64, error) {
	mean, err := Mean(values)
	if err != nil {
		return 0, err
	}
	return varianceWithMean(values, mean), nil
}

func varianceWithMean(values []float64, mean float64) float64 {
	var sum float64
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation of values.
func StdDev(values []float64) (float64, error) {
	variance, err := Variance(values)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(variance), nil
}

// StdDevWithMean returns the population standard deviation using a mean the
// caller already computed, avoiding a second pass.
func StdDevWithMean(values []float64, mean float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: stddev of empty slice", ErrInvalidInput)
	}
	return math.Sqrt(varianceWithMean(values, mean)), nil
}

// Percentile returns the p-th percentile of sorted (ascending) using linear
// interpolation between the neighbouring ranks. p is in [0, 100].
func Percentile(sorted []float64, p float64) (float64, error) {
	if len(sorted) == 0 {
		return 0, fmt.Errorf("%w: percentile of empty slice", ErrInvalidInput)
	}
	if p < 0 || p > 100 {
		return 0, fmt.Errorf("%w: percentile %.2f out of range [0,100]", ErrInvalidInput, p)
	}

	index := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sorted[lower], nil
	}

	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight, nil
}

// Median returns the 50th percentile of sorted (ascending).
func Median(sorted []float64) (float64, error) {
	return Percentile(sorted, 50)
}

// ValuePercentile returns the CDF-style rank of value within sorted
// (ascending): the share of values <= value, in percent. This is a different
// operation from Percentile and the two must not be conflated.
func ValuePercentile(sorted []float64, value float64) (float64, error) {
	if len(sorted) == 0 {
		return 0, fmt.Errorf("%w: rank within empty slice", ErrInvalidInput)
	}

	count := 0
	for _, v := range sorted {
		if v <= value {
			count++
		}
	}
	return float64(count) / float64(len(sorted)) * 100, nil
}

// Bounds is an inclusive value range.
type Bounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// OutlierBounds returns the IQR fence [q1 - k*iqr, q3 + k*iqr] for sorted
// (ascending). The conventional multiplier is 1.5.
func OutlierBounds(sorted []float64, multiplier float64) (Bounds, error) {
	q1, err := Percentile(sorted, 25)
	if err != nil {
		return Bounds{}, err
	}
	q3, err := Percentile(sorted, 75)
	if err != nil {
		return Bounds{}, err
	}

	iqr := q3 - q1
	return Bounds{
		Lower: q1 - multiplier*iqr,
		Upper: q3 + multiplier*iqr,
	}, nil
}

// MovingAverage returns the trailing moving average of values with the given
// window. The first window-1 positions average the values seen so far.
func MovingAverage(values []float64, window int) ([]float64, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: moving average of empty slice", ErrInvalidInput)
	}
	if window < 1 {
		return nil, fmt.Errorf("%w: moving average window %d", ErrInvalidInput, window)
	}

	result := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
			result[i] = sum / float64(window)
		} else {
			result[i] = sum / float64(i+1)
		}
	}
	return result, nil
}
