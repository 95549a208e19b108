package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dreschagin/pipeline-analytics/internal/application/port"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"
)

// severityColors map alert severities to Slack attachment colors.
var severityColors = map[string]string{
	"low":      "#36a64f",
	"minor":    "#36a64f",
	"medium":   "#daa038",
	"major":    "#daa038",
	"high":     "#e8912d",
	"critical": "#d00000",
}

// SlackChannel delivers alerts to a Slack incoming webhook.
// Implements port.NotificationChannel.
type SlackChannel struct {
	webhookURL string
	client     *http.Client
	logger     *logger.Logger
}

// NewSlackChannel creates a Slack channel for the given incoming webhook URL.
func NewSlackChannel(webhookURL string, log *logger.Logger) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}
}

// Name implements port.NotificationChannel
func (c *SlackChannel) Name() string { return "slack" }

// Retryable implements port.NotificationChannel
func (c *SlackChannel) Retryable() bool { return true }

type slackAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer"`
	Ts     int64  `json:"ts"`
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

// Send posts the notification as a Slack message with a colored attachment.
func (c *SlackChannel) Send(ctx context.Context, notification port.Notification) error {
	color, ok := severityColors[notification.Severity]
	if !ok {
		color = "#cccccc"
	}

	payload := slackPayload{
		Text: fmt.Sprintf(":rotating_light: [%s] %s", notification.Severity, notification.Title),
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  notification.Title,
			Text:   notification.Message,
			Footer: "pipeline " + notification.PipelineID,
			Ts:     notification.FiredAt.Unix(),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	c.logger.Debug("Slack notification delivered", "alert_id", notification.AlertID)
	return nil
}
