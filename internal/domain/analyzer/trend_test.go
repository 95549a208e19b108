package analyzer

import (
	"errors"
	"math"
	"testing"
)

func TestTrendAnalyzer_InsufficientData(t *testing.T) {
	analyzer := NewTrendAnalyzer()

	_, err := analyzer.Analyze(makeSeries([]float64{1, 2, 3, 4}))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestTrendAnalyzer_StrictlyDecreasing(t *testing.T) {
	values := []float64{100, 95, 90, 85, 80, 75, 70, 65, 60, 55}

	analyzer := NewTrendAnalyzer()
	result, err := analyzer.Analyze(makeSeries(values))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if result.Trend != TrendDecreasing {
		t.Fatalf("Trend = %s, want decreasing", result.Trend)
	}
	if result.Slope >= 0 {
		t.Fatalf("Slope = %v, want negative", result.Slope)
	}
	if math.Abs(result.Correlation) < 0.99 {
		t.Fatalf("Correlation = %v, want near -1 magnitude", result.Correlation)
	}
}

func TestTrendAnalyzer_IncreasingForecast(t *testing.T) {
	// 10 per day on a daily series: slope should be 10/24 per hour.
	values := []float64{10, 20, 30, 40, 50, 60, 70}

	analyzer := NewTrendAnalyzer()
	result, err := analyzer.Analyze(makeSeries(values))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if result.Trend != TrendIncreasing {
		t.Fatalf("Trend = %s, want increasing", result.Trend)
	}

	last := values[len(values)-1]
	if math.Abs(result.Prediction.Next24h-(last+10)) > 1e-6 {
		t.Fatalf("Next24h = %v, want %v", result.Prediction.Next24h, last+10)
	}
	if math.Abs(result.Prediction.Next7d-(last+70)) > 1e-6 {
		t.Fatalf("Next7d = %v, want %v", result.Prediction.Next7d, last+70)
	}
	if math.Abs(result.Prediction.Next30d-(last+300)) > 1e-6 {
		t.Fatalf("Next30d = %v, want %v", result.Prediction.Next30d, last+300)
	}

	// 10 per day relative to the series mean of 40 is 25% per day.
	if math.Abs(result.ChangeRatePerDay-25) > 1e-6 {
		t.Fatalf("ChangeRatePerDay = %v, want 25", result.ChangeRatePerDay)
	}
	if result.Volatility > 1e-6 {
		t.Fatalf("Volatility = %v, want ~0 for noise-free line", result.Volatility)
	}
}

func TestTrendAnalyzer_FlatSeriesIsStable(t *testing.T) {
	values := []float64{50, 50, 50, 50, 50, 50}

	analyzer := NewTrendAnalyzer()
	result, err := analyzer.Analyze(makeSeries(values))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if result.Trend != TrendStable {
		t.Fatalf("Trend = %s, want stable", result.Trend)
	}
	if result.Slope != 0 {
		t.Fatalf("Slope = %v, want 0", result.Slope)
	}
}

func TestTrendAnalyzer_NoisyFlatSeriesIsVolatile(t *testing.T) {
	// Perfectly alternating noise with no direction: the slope is zero and
	// the standard error dominates.
	values := []float64{100, 10, 100, 10, 100, 10, 100, 10, 100, 10, 100}

	analyzer := NewTrendAnalyzer()
	result, err := analyzer.Analyze(makeSeries(values))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if result.Trend != TrendVolatile {
		t.Fatalf("Trend = %s, want volatile", result.Trend)
	}
	if result.Volatility == 0 {
		t.Fatalf("Volatility = 0, want positive for noisy series")
	}
}
