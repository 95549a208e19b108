package channels

import (
	"context"
	"strings"

	"github.com/dreschagin/pipeline-analytics/internal/application/port"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"
)

// EmailChannel records alert notifications addressed to a recipient list.
// Delivery goes through the structured log; an SMTP relay is expected to
// pick the entries up downstream.
// Implements port.NotificationChannel.
type EmailChannel struct {
	recipients []string
	logger     *logger.Logger
}

// NewEmailChannel creates an email channel for the given recipients.
func NewEmailChannel(recipients []string, log *logger.Logger) *EmailChannel {
	return &EmailChannel{
		recipients: recipients,
		logger:     log,
	}
}

// Name implements port.NotificationChannel
func (c *EmailChannel) Name() string { return "email" }

// Retryable implements port.NotificationChannel.
// Log writes do not fail transiently, so there is nothing to retry.
func (c *EmailChannel) Retryable() bool { return false }

// Send implements port.NotificationChannel
func (c *EmailChannel) Send(_ context.Context, notification port.Notification) error {
	c.logger.Info("Email notification queued",
		"alert_id", notification.AlertID,
		"recipients", strings.Join(c.recipients, ","),
		"severity", notification.Severity,
		"subject", notification.Title,
		"body", notification.Message)
	return nil
}
