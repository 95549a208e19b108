package port

import (
	"context"
	"time"
)

// Notification is a rendered alert message handed to a delivery channel.
type Notification struct {
	AlertID    string
	AlertType  string
	Severity   string
	Title      string
	Message    string
	PipelineID string
	Metadata   map[string]interface{}
	FiredAt    time.Time
}

// NotificationChannel defines the interface for delivering alert
// notifications to an external destination (Port).
type NotificationChannel interface {
	// Name returns the channel identifier ("webhook", "slack", "email")
	Name() string

	// Send delivers one notification
	Send(ctx context.Context, notification Notification) error

	// Retryable reports whether failed sends should be retried
	Retryable() bool
}
