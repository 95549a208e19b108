package dto

import "time"

// Update types pushed to websocket clients.
const (
	UpdateAnalysisResult = "analysis_result"
	UpdateAlert          = "alert"
	UpdateJobStatus      = "job_status"
)

// RealtimeUpdate represents an event pushed to connected clients.
// Used for delivery over WebSocket.
type RealtimeUpdate struct {
	Type       string      `json:"type"`
	Timestamp  time.Time   `json:"timestamp"`
	PipelineID string      `json:"pipeline_id,omitempty"`
	MetricKind string      `json:"metric_kind,omitempty"`
	Payload    interface{} `json:"payload"`
}

// NewRealtimeUpdate creates an update stamped with the current time.
func NewRealtimeUpdate(updateType, pipelineID, metricKind string, payload interface{}) *RealtimeUpdate {
	return &RealtimeUpdate{
		Type:       updateType,
		Timestamp:  time.Now(),
		PipelineID: pipelineID,
		MetricKind: metricKind,
		Payload:    payload,
	}
}
