package alerting

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for an unknown configuration or alert id.
	ErrNotFound = errors.New("alerting: not found")

	// ErrInvalidState is returned for lifecycle transitions the alert's
	// current status does not allow.
	ErrInvalidState = errors.New("alerting: invalid state")

	// ErrInvalidConfiguration marks a configuration that failed validation.
	ErrInvalidConfiguration = errors.New("alerting: invalid configuration")
)

// Event types fed into the engine.
const (
	EventAnomaly      = "anomaly"
	EventTrend        = "trend"
	EventSLAViolation = "sla_violation"
	EventCost         = "cost"
)

func validEventType(eventType string) bool {
	switch eventType {
	case EventAnomaly, EventTrend, EventSLAViolation, EventCost:
		return true
	default:
		return false
	}
}

// Event is one analysis outcome offered to the engine for alerting. The
// numeric fields carry the type-specific trigger values: slope and
// correlation for trend events, the efficiency score for cost events.
type Event struct {
	Type            string      `json:"type"`
	Severity        string      `json:"severity"`
	PipelineID      string      `json:"pipeline_id"`
	Environment     string      `json:"environment"`
	Metric          string      `json:"metric"`
	Title           string      `json:"title"`
	Message         string      `json:"message"`
	Slope           float64     `json:"slope,omitempty"`
	Correlation     float64     `json:"correlation,omitempty"`
	EfficiencyScore float64     `json:"efficiency_score,omitempty"`
	Payload         interface{} `json:"payload,omitempty"`
}

// Filters restrict which events a configuration matches. Empty lists match
// everything.
type Filters struct {
	Pipelines    []string `json:"pipelines,omitempty"`
	Environments []string `json:"environments,omitempty"`
	Metrics      []string `json:"metrics,omitempty"`
}

// Thresholds gate how significant an event must be to fire. The fields form
// a per-type union: MinSeverity applies to every type, MinSlope and
// MinCorrelation to trend events, MaxEfficiencyScore to cost events. Zero
// values leave that check off.
type Thresholds struct {
	MinSeverity        string  `json:"min_severity,omitempty"`
	MinSlope           float64 `json:"min_slope,omitempty"`
	MinCorrelation     float64 `json:"min_correlation,omitempty"`
	MaxEfficiencyScore float64 `json:"max_efficiency_score,omitempty"`
}

// RateLimit caps how many alerts a configuration may fire per hour.
// Zero means unlimited.
type RateLimit struct {
	MaxPerHour int `json:"max_per_hour,omitempty"`
}

// EscalationStage widens delivery to extra channels after a delay without
// acknowledgement.
type EscalationStage struct {
	After    time.Duration `json:"after"`
	Channels []string      `json:"channels"`
}

// EscalationPolicy is an ordered list of stages.
type EscalationPolicy struct {
	Enabled bool              `json:"enabled"`
	Stages  []EscalationStage `json:"stages,omitempty"`
}

// AlertConfiguration is one registered alerting rule. An event may match
// several configurations; each fires its own alert.
type AlertConfiguration struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	EventType  string           `json:"event_type"`
	Enabled    bool             `json:"enabled"`
	Filters    Filters          `json:"filters"`
	Thresholds Thresholds       `json:"thresholds"`
	Channels   []string         `json:"channels"`
	Escalation EscalationPolicy `json:"escalation"`
	RateLimit  RateLimit        `json:"rate_limit"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// AlertStatus tracks an alert's lifecycle. Escalated alerts stay
// acknowledgeable and resolvable.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertEscalated    AlertStatus = "escalated"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Acknowledgment records who saw the alert and when.
type Acknowledgment struct {
	By      string    `json:"by"`
	Comment string    `json:"comment,omitempty"`
	At      time.Time `json:"at"`
}

// Resolution records how an alert was closed.
type Resolution struct {
	By        string    `json:"by"`
	Type      string    `json:"type,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	RootCause string    `json:"root_cause,omitempty"`
	Actions   []string  `json:"actions,omitempty"`
	At        time.Time `json:"at"`
}

// EscalationRecord is one stage advance of an unacknowledged alert.
type EscalationRecord struct {
	Level       int       `json:"level"`
	Channels    []string  `json:"channels"`
	EscalatedAt time.Time `json:"escalated_at"`
}

// NotificationRecord is the delivery outcome for one channel.
type NotificationRecord struct {
	Channel   string    `json:"channel"`
	Attempts  int       `json:"attempts"`
	Delivered bool      `json:"delivered"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}

// Alert is one fired instance of a configuration.
type Alert struct {
	ID              string               `json:"id"`
	ConfigID        string               `json:"config_id"`
	ConfigName      string               `json:"config_name"`
	Type            string               `json:"type"`
	Severity        string               `json:"severity"`
	Title           string               `json:"title"`
	Message         string               `json:"message"`
	PipelineID      string               `json:"pipeline_id"`
	Environment     string               `json:"environment"`
	Metric          string               `json:"metric"`
	Status          AlertStatus          `json:"status"`
	FiredAt         time.Time            `json:"fired_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	Acknowledgment  *Acknowledgment      `json:"acknowledgment,omitempty"`
	Resolution      *Resolution          `json:"resolution,omitempty"`
	ResolvedAt      time.Time            `json:"resolved_at,omitempty"`
	EscalationLevel int                  `json:"escalation_level"`
	Escalations     []EscalationRecord   `json:"escalations,omitempty"`
	Notifications   []NotificationRecord `json:"notifications,omitempty"`
	Payload         interface{}          `json:"payload,omitempty"`
}

// AlertFilter narrows alert listings. Zero-valued fields match everything.
type AlertFilter struct {
	PipelineID string
	Severity   string
	Status     AlertStatus
	Type       string
}

func (f AlertFilter) match(a *Alert) bool {
	if f.PipelineID != "" && a.PipelineID != f.PipelineID {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	return true
}

// Metrics summarizes engine activity since startup.
type Metrics struct {
	Configurations   int   `json:"configurations"`
	ActiveAlerts     int   `json:"active_alerts"`
	Triggered        int64 `json:"triggered"`
	Deduplicated     int64 `json:"deduplicated"`
	RateLimited      int64 `json:"rate_limited"`
	Delivered        int64 `json:"delivered"`
	DeliveryFailures int64 `json:"delivery_failures"`
	Escalations      int64 `json:"escalations"`
}

// severityRank orders the shared severity vocabulary used by both anomaly
// severities and SLA severities.
func severityRank(severity string) int {
	switch severity {
	case "low", "minor":
		return 0
	case "medium", "major":
		return 1
	case "high":
		return 2
	case "critical":
		return 3
	default:
		return -1
	}
}
