package stats

import (
	"fmt"
	"math"
	"sort"
)

// Summary is the derived descriptive view of a value set. It is computed,
// never stored.
type Summary struct {
	Count             int     `json:"count"`
	Sum               float64 `json:"sum"`
	Mean              float64 `json:"mean"`
	Variance          float64 `json:"variance"`
	StandardDeviation float64 `json:"standard_deviation"`
	Min               float64 `json:"min"`
	Max               float64 `json:"max"`
	Median            float64 `json:"median"`
	Q1                float64 `json:"q1"`
	Q3                float64 `json:"q3"`
	IQR               float64 `json:"iqr"`
	Skewness          float64 `json:"skewness"`
	Kurtosis          float64 `json:"kurtosis"`
}

// Summarize computes the full summary in one pass over the data plus one sort
// for the quantiles. The input is not modified.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, fmt.Errorf("%w: summary of empty slice", ErrInvalidInput)
	}

	n := float64(len(values))

	var sum float64
	min, max := values[0], values[0]
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean := sum / n

	var m2, m3, m4 float64
	for _, v := range values {
		d := v - mean
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	variance := m2 / n
	stdDev := math.Sqrt(variance)

	var skewness, kurtosis float64
	if stdDev > 0 {
		skewness = (m3 / n) / math.Pow(stdDev, 3)
		kurtosis = (m4/n)/math.Pow(stdDev, 4) - 3
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	median, _ := Percentile(sorted, 50)
	q1, _ := Percentile(sorted, 25)
	q3, _ := Percentile(sorted, 75)

	return Summary{
		Count:             len(values),
		Sum:               sum,
		Mean:              mean,
		Variance:          variance,
		StandardDeviation: stdDev,
		Min:               min,
		Max:               max,
		Median:            median,
		Q1:                q1,
		Q3:                q3,
		IQR:               q3 - q1,
		Skewness:          skewness,
		Kurtosis:          kurtosis,
	}, nil
}
