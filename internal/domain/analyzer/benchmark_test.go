package analyzer

import (
	"errors"
	"math"
	"testing"
)

func TestBenchmarkEngine_InsufficientData(t *testing.T) {
	engine := NewBenchmarkEngine()

	_, err := engine.Compare(50, makeSeries([]float64{1, 2}))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestBenchmarkEngine_Tiers(t *testing.T) {
	history := makeSeries([]float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100})

	tests := []struct {
		name    string
		current float64
		tier    PerformanceTier
	}{
		{name: "top of distribution", current: 100, tier: PerformanceExcellent},
		{name: "upper quartile", current: 80, tier: PerformanceGood},
		{name: "middle", current: 50, tier: PerformanceAverage},
		{name: "lower quartile", current: 30, tier: PerformanceBelowAverage},
		{name: "bottom", current: 5, tier: PerformancePoor},
	}

	engine := NewBenchmarkEngine()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := engine.Compare(tc.current, history)
			if err != nil {
				t.Fatalf("Compare() error = %v", err)
			}
			if result.Performance != tc.tier {
				t.Fatalf("Performance = %s (percentile %.0f), want %s", result.Performance, result.Percentile, tc.tier)
			}
		})
	}
}

func TestBenchmarkEngine_Context(t *testing.T) {
	history := makeSeries([]float64{10, 20, 30, 40, 50})

	engine := NewBenchmarkEngine()
	result, err := engine.Compare(45, history)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if result.Benchmark != 30 {
		t.Fatalf("Benchmark = %v, want mean 30", result.Benchmark)
	}
	if result.HistoricalContext.Best != 50 || result.HistoricalContext.Worst != 10 {
		t.Fatalf("context best/worst = %v/%v, want 50/10", result.HistoricalContext.Best, result.HistoricalContext.Worst)
	}
	if result.HistoricalContext.Median != 30 {
		t.Fatalf("Median = %v, want 30", result.HistoricalContext.Median)
	}

	// (45-30)/30 = 50% above the benchmark.
	if math.Abs(result.DeviationPercent-50) > 1e-9 {
		t.Fatalf("DeviationPercent = %v, want 50", result.DeviationPercent)
	}
}
