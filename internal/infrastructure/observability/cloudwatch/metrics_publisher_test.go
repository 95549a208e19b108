package cloudwatch

import (
	"testing"
	"time"

	"github.com/dreschagin/pipeline-analytics/internal/application/port"
)

func TestMapUnit(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected string
	}{
		{"percentage", "%", "Percent"},
		{"milliseconds", "ms", "Milliseconds"},
		{"seconds", "s", "Seconds"},
		{"count", "count", "Count"},
		{"unknown", "custom", "None"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mapUnit(tt.unit)
			if string(result) != tt.expected {
				t.Errorf("mapUnit(%q) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestConvertToDatum(t *testing.T) {
	// Create test publisher (minimal config)
	p := &MetricsPublisher{
		namespace: "Test/Namespace",
		defaultDimensions: map[string]string{
			"Environment": "test",
			"Region":      "us-east-1",
		},
		storageResolution: 60,
	}

	collected := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	metric := port.MetricDatum{
		Name:      "analysis_duration",
		Value:     75.5,
		Unit:      "ms",
		Timestamp: collected,
		Dimensions: map[string]string{
			"AnalysisType": "anomaly",
			"Pipeline":     "deploy-api",
		},
	}

	// Convert to CloudWatch datum
	datum := p.convertToDatum(metric)

	// Verify fields
	if datum.MetricName == nil || *datum.MetricName != "analysis_duration" {
		t.Errorf("Expected MetricName=analysis_duration, got %v", datum.MetricName)
	}

	if datum.Value == nil || *datum.Value != 75.5 {
		t.Errorf("Expected Value=75.5, got %v", datum.Value)
	}

	if datum.Unit != "Milliseconds" {
		t.Errorf("Expected Unit=Milliseconds, got %v", datum.Unit)
	}

	if datum.Timestamp == nil || !datum.Timestamp.Equal(collected) {
		t.Errorf("Expected Timestamp=%v, got %v", collected, datum.Timestamp)
	}

	if datum.StorageResolution == nil || *datum.StorageResolution != 60 {
		t.Errorf("Expected StorageResolution=60, got %v", datum.StorageResolution)
	}

	// Verify dimensions
	expectedDimensions := map[string]string{
		"Environment":  "test",
		"Region":       "us-east-1",
		"AnalysisType": "anomaly",
		"Pipeline":     "deploy-api",
	}

	if len(datum.Dimensions) != len(expectedDimensions) {
		t.Errorf("Expected %d dimensions, got %d", len(expectedDimensions), len(datum.Dimensions))
	}

	for _, dim := range datum.Dimensions {
		if dim.Name == nil || dim.Value == nil {
			t.Error("Dimension name or value is nil")
			continue
		}

		expectedValue, ok := expectedDimensions[*dim.Name]
		if !ok {
			t.Errorf("Unexpected dimension: %s", *dim.Name)
			continue
		}

		if *dim.Value != expectedValue {
			t.Errorf("Dimension %s: expected %s, got %s", *dim.Name, expectedValue, *dim.Value)
		}
	}
}

func TestConvertToDatumDefaultsTimestamp(t *testing.T) {
	p := &MetricsPublisher{namespace: "Test/Namespace"}

	datum := p.convertToDatum(port.MetricDatum{Name: "cache_hits", Value: 1, Unit: "count"})

	if datum.Timestamp == nil || datum.Timestamp.IsZero() {
		t.Error("Expected a default timestamp for zero-value input")
	}
}
