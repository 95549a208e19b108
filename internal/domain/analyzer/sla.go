package analyzer

import (
	"fmt"
	"time"
)

// SLAMonitor evaluates a metric value against its agreed target.
type SLAMonitor struct{}

// NewSLAMonitor returns a monitor.
func NewSLAMonitor() *SLAMonitor {
	return &SLAMonitor{}
}

// Evaluate checks actualValue against slaTarget. Values below the target are
// violations; the history series is used to count violations within the
// trailing 24 hours for frequency context.
func (m *SLAMonitor) Evaluate(actualValue, slaTarget float64, violationType ViolationType, history []DataPoint) (*SLAResult, error) {
	if slaTarget <= 0 {
		return nil, fmt.Errorf("%w: SLA target must be positive, got %v", ErrInvalidInput, slaTarget)
	}

	result := &SLAResult{
		SLATarget:     slaTarget,
		ActualValue:   actualValue,
		ViolationType: violationType,
		Severity:      SLAMinor,
	}

	if actualValue >= slaTarget {
		return result, nil
	}

	result.Violated = true
	result.ViolationPercent = (slaTarget - actualValue) / slaTarget * 100

	switch {
	case result.ViolationPercent >= 20:
		result.Severity = SLACritical
	case result.ViolationPercent >= 10:
		result.Severity = SLAMajor
	default:
		result.Severity = SLAMinor
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	var firstViolation time.Time
	for _, p := range history {
		if p.Timestamp.Before(cutoff) {
			continue
		}
		if p.Value < slaTarget {
			result.ViolationFrequency24++
			if firstViolation.IsZero() || p.Timestamp.Before(firstViolation) {
				firstViolation = p.Timestamp
			}
		}
	}
	if !firstViolation.IsZero() {
		result.TimeInViolation = time.Since(firstViolation)
	}

	result.Remediation = remediationFor(violationType, result.Severity)

	return result, nil
}

// remediationFor is a fixed guidance lookup. The text is advisory, not a
// computed optimization.
func remediationFor(violationType ViolationType, severity SLASeverity) Remediation {
	switch violationType {
	case ViolationPerformance:
		return Remediation{
			ImmediateActions: []string{
				"Review the slowest stages of recent pipeline runs",
				"Check runner capacity and queue times",
				"Verify no recent dependency or image changes regressed build speed",
			},
			LongTermActions: []string{
				"Introduce caching for dependency resolution and build artifacts",
				"Split long stages into parallel jobs",
				"Right-size runner instances to the workload",
			},
			EstimatedImpact: estimatedImpact(severity, "pipeline duration"),
		}
	case ViolationAvailability:
		return Remediation{
			ImmediateActions: []string{
				"Inspect the most recent failed executions for a common cause",
				"Check external service dependencies used by the pipeline",
				"Re-run flaky jobs to separate infrastructure failures from code failures",
			},
			LongTermActions: []string{
				"Quarantine known-flaky tests behind a separate gate",
				"Add retries with backoff around transient infrastructure steps",
				"Track failure categories to target the dominant cause",
			},
			EstimatedImpact: estimatedImpact(severity, "success rate"),
		}
	default:
		return Remediation{
			ImmediateActions: []string{
				"Review the metric's recent history for the point of regression",
				"Correlate the regression with recent configuration changes",
			},
			LongTermActions: []string{
				"Define an owner and an alert for this metric",
				"Add the metric to the scheduled benchmark analysis",
			},
			EstimatedImpact: estimatedImpact(severity, "the affected metric"),
		}
	}
}

func estimatedImpact(severity SLASeverity, subject string) string {
	switch severity {
	case SLACritical:
		return fmt.Sprintf("Addressing this should restore %s to target; current gap is severe (>=20%%)", subject)
	case SLAMajor:
		return fmt.Sprintf("Addressing this should recover most of the gap in %s (10-20%% below target)", subject)
	default:
		return fmt.Sprintf("Minor gap in %s (<10%%); routine follow-up is sufficient", subject)
	}
}
