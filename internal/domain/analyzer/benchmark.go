package analyzer

import (
	"fmt"
	"sort"

	"github.com/dreschagin/pipeline-analytics/internal/domain/stats"
)

// BenchmarkEngine places a current value within a historical distribution.
type BenchmarkEngine struct {
	MinSamples int
}

// NewBenchmarkEngine returns an engine with the standard minimum sample size.
func NewBenchmarkEngine() *BenchmarkEngine {
	return &BenchmarkEngine{MinSamples: 5}
}

// Compare ranks currentValue against the historical values and grades it.
func (b *BenchmarkEngine) Compare(currentValue float64, history []DataPoint) (*BenchmarkResult, error) {
	if len(history) < b.MinSamples {
		return nil, fmt.Errorf("%w: need %d samples, got %d", ErrInsufficientData, b.MinSamples, len(history))
	}

	values := Values(history)
	benchmark, err := stats.Mean(values)
	if err != nil {
		return nil, err
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	percentile, err := stats.ValuePercentile(sorted, currentValue)
	if err != nil {
		return nil, err
	}

	var deviation float64
	if benchmark != 0 {
		deviation = (currentValue - benchmark) / benchmark * 100
	}

	var tier PerformanceTier
	switch {
	case percentile >= 90:
		tier = PerformanceExcellent
	case percentile >= 75:
		tier = PerformanceGood
	case percentile >= 50:
		tier = PerformanceAverage
	case percentile >= 25:
		tier = PerformanceBelowAverage
	default:
		tier = PerformancePoor
	}

	median, _ := stats.Median(sorted)

	return &BenchmarkResult{
		CurrentValue:     currentValue,
		Benchmark:        benchmark,
		Percentile:       percentile,
		DeviationPercent: deviation,
		Performance:      tier,
		HistoricalContext: HistoricalContext{
			Best:    sorted[len(sorted)-1],
			Worst:   sorted[0],
			Average: benchmark,
			Median:  median,
		},
		BetterThanPercent: percentile,
	}, nil
}
