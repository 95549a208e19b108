package analyzer

import (
	"errors"
	"testing"
	"time"
)

func TestSLAMonitor_InvalidTarget(t *testing.T) {
	monitor := NewSLAMonitor()

	for _, target := range []float64{0, -5} {
		if _, err := monitor.Evaluate(99.5, target, ViolationAvailability, nil); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("Evaluate() with target %v: expected ErrInvalidInput, got %v", target, err)
		}
	}
}

func TestSLAMonitor_NoViolation(t *testing.T) {
	monitor := NewSLAMonitor()

	result, err := monitor.Evaluate(99.5, 99.0, ViolationAvailability, nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Violated {
		t.Fatalf("expected no violation for value above target")
	}
	if result.ViolationPercent != 0 {
		t.Fatalf("ViolationPercent = %v, want 0", result.ViolationPercent)
	}
}

func TestSLAMonitor_SeverityLadder(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		target   float64
		severity SLASeverity
	}{
		{name: "5 percent below is minor", actual: 95, target: 100, severity: SLAMinor},
		{name: "15 percent below is major", actual: 85, target: 100, severity: SLAMajor},
		{name: "25 percent below is critical", actual: 75, target: 100, severity: SLACritical},
	}

	monitor := NewSLAMonitor()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := monitor.Evaluate(tc.actual, tc.target, ViolationPerformance, nil)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if !result.Violated {
				t.Fatalf("expected violation")
			}
			if result.Severity != tc.severity {
				t.Fatalf("Severity = %s, want %s", result.Severity, tc.severity)
			}
		})
	}
}

func TestSLAMonitor_ViolationFrequency(t *testing.T) {
	now := time.Now()
	history := []DataPoint{
		{Timestamp: now.Add(-30 * time.Hour), Value: 80}, // outside the window
		{Timestamp: now.Add(-20 * time.Hour), Value: 80},
		{Timestamp: now.Add(-10 * time.Hour), Value: 95},
		{Timestamp: now.Add(-5 * time.Hour), Value: 70},
	}

	monitor := NewSLAMonitor()
	result, err := monitor.Evaluate(70, 90, ViolationAvailability, history)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if result.ViolationFrequency24 != 2 {
		t.Fatalf("ViolationFrequency24 = %d, want 2", result.ViolationFrequency24)
	}
	if result.TimeInViolation <= 0 {
		t.Fatalf("TimeInViolation = %v, want positive", result.TimeInViolation)
	}
}

func TestSLAMonitor_RemediationByType(t *testing.T) {
	monitor := NewSLAMonitor()

	for _, violationType := range []ViolationType{ViolationPerformance, ViolationAvailability, ViolationOther} {
		result, err := monitor.Evaluate(50, 100, violationType, nil)
		if err != nil {
			t.Fatalf("Evaluate(%s) error = %v", violationType, err)
		}
		if len(result.Remediation.ImmediateActions) == 0 {
			t.Fatalf("no immediate actions for %s", violationType)
		}
		if len(result.Remediation.LongTermActions) == 0 {
			t.Fatalf("no long-term actions for %s", violationType)
		}
		if result.Remediation.EstimatedImpact == "" {
			t.Fatalf("no estimated impact for %s", violationType)
		}
	}
}
