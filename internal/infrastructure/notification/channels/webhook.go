// Package channels implements the outbound alert delivery channels.
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

// WebhookChannel posts alert notifications as JSON to a configured URL.
// Implements port.NotificationChannel.
type WebhookChannel struct {
	url     string
	headers map[string]string
	client  *http.Client
	logger  *logger.Logger
}

// NewWebhookChannel creates a webhook channel. headers may be nil.
func NewWebhookChannel(url string, headers map[string]string, log *logger.Logger) *WebhookChannel {
	return &WebhookChannel{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  log,
	}
}

// Name implements port.NotificationChannel
func (c *WebhookChannel) Name() string { return "webhook" }

// Retryable implements port.NotificationChannel
func (c *WebhookChannel) Retryable() bool { return true }

// Send posts the notification. Any non-2xx response is an error.
func (c *WebhookChannel) Send(ctx context.Context, notification port.Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	c.logger.Debug("Webhook notification delivered", "alert_id", notification.AlertID, "status", resp.StatusCode)
	return nil
}
