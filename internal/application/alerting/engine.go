// Package alerting evaluates analysis outcomes against registered alert
// configurations, deduplicates repeats, delivers notifications with retries
// and escalates unacknowledged alerts.
package alerting

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreschagin/pipeline-analytics/internal/application/analytics"
	"github.com/dreschagin/pipeline-analytics/internal/application/dto"
	"github.com/dreschagin/pipeline-analytics/internal/application/port"
	"github.com/dreschagin/pipeline-analytics/internal/domain/analyzer"
	"github.com/dreschagin/pipeline-analytics/pkg/config"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"
)

// Engine holds alert configurations and fired alerts. All state is guarded
// by mu; notification delivery runs in per-alert goroutines.
type Engine struct {
	channels map[string]port.NotificationChannel
	realtime port.RealtimePublisher
	events   port.EventPublisher
	cfg      config.AlertingConfig
	logger   *logger.Logger

	mu      sync.Mutex
	configs map[string]*AlertConfiguration
	active  map[string]*Alert
	history []*Alert
	dedup   map[string]time.Time
	fired   map[string][]time.Time

	triggered        int64
	deduplicated     int64
	rateLimited      int64
	delivered        int64
	deliveryFailures int64
	escalations      int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewEngine creates an alerting engine delivering through the given
// channels, keyed by channel name. realtime and events may be nil.
func NewEngine(
	channels []port.NotificationChannel,
	realtime port.RealtimePublisher,
	events port.EventPublisher,
	cfg config.AlertingConfig,
	log *logger.Logger,
) *Engine {
	byName := make(map[string]port.NotificationChannel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}

	return &Engine{
		channels: byName,
		realtime: realtime,
		events:   events,
		cfg:      cfg,
		logger:   log.Named("alerting"),
		configs:  make(map[string]*AlertConfiguration),
		active:   make(map[string]*Alert),
		dedup:    make(map[string]time.Time),
		fired:    make(map[string][]time.Time),
		stop:     make(chan struct{}),
	}
}

// CreateConfiguration validates and registers an alert configuration.
func (e *Engine) CreateConfiguration(cfg AlertConfiguration) (*AlertConfiguration, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfiguration)
	}
	if !validEventType(cfg.EventType) {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidConfiguration, cfg.EventType)
	}
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("%w: at least one channel is required", ErrInvalidConfiguration)
	}
	for _, name := range cfg.Channels {
		if _, ok := e.channels[name]; !ok {
			return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidConfiguration, name)
		}
	}
	if cfg.Thresholds.MinSeverity != "" && severityRank(cfg.Thresholds.MinSeverity) < 0 {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidConfiguration, cfg.Thresholds.MinSeverity)
	}

	now := time.Now()
	cfg.ID = uuid.New().String()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs[cfg.ID] = &cfg

	e.logger.Info("Alert configuration created", "config_id", cfg.ID, "name", cfg.Name, "event_type", cfg.EventType)

	copied := cfg
	return &copied, nil
}

// UpdateConfiguration replaces the mutable fields of a configuration.
func (e *Engine) UpdateConfiguration(id string, update AlertConfiguration) (*AlertConfiguration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, ok := e.configs[id]
	if !ok {
		return nil, ErrNotFound
	}

	cfg.Name = update.Name
	cfg.EventType = update.EventType
	cfg.Enabled = update.Enabled
	cfg.Filters = update.Filters
	cfg.Thresholds = update.Thresholds
	cfg.Channels = update.Channels
	cfg.Escalation = update.Escalation
	cfg.RateLimit = update.RateLimit
	cfg.UpdatedAt = time.Now()

	copied := *cfg
	return &copied, nil
}

// DeleteConfiguration removes a configuration. Already fired alerts remain.
func (e *Engine) DeleteConfiguration(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.configs[id]; !ok {
		return ErrNotFound
	}
	delete(e.configs, id)
	return nil
}

// ListConfigurations returns copies of all configurations.
func (e *Engine) ListConfigurations() []*AlertConfiguration {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*AlertConfiguration, 0, len(e.configs))
	for _, cfg := range e.configs {
		copied := *cfg
		out = append(out, &copied)
	}
	return out
}

// Trigger offers an event to every configuration. Each matching
// configuration fires its own alert; configurations suppressed by
// deduplication or rate limiting produce nothing. The returned slice holds
// the alerts that actually fired.
func (e *Engine) Trigger(ctx context.Context, event Event) []*Alert {
	now := time.Now()

	e.mu.Lock()

	var fired []*Alert
	for _, cfg := range e.configs {
		if !cfg.Enabled || cfg.EventType != event.Type {
			continue
		}
		if !matches(cfg.Filters, event) {
			continue
		}
		if cfg.Thresholds.MinSeverity != "" &&
			severityRank(event.Severity) < severityRank(cfg.Thresholds.MinSeverity) {
			continue
		}
		if !passesTypeThresholds(cfg.Thresholds, event) {
			continue
		}

		key := dedupKey(cfg.ID, event)
		if last, ok := e.dedup[key]; ok && now.Sub(last) < e.cfg.DedupWindow {
			e.deduplicated++
			continue
		}

		if cfg.RateLimit.MaxPerHour > 0 {
			recent := prune(e.fired[cfg.ID], now.Add(-time.Hour))
			e.fired[cfg.ID] = recent
			if len(recent) >= cfg.RateLimit.MaxPerHour {
				e.rateLimited++
				continue
			}
		}

		alert := &Alert{
			ID:          uuid.New().String(),
			ConfigID:    cfg.ID,
			ConfigName:  cfg.Name,
			Type:        event.Type,
			Severity:    event.Severity,
			Title:       event.Title,
			Message:     event.Message,
			PipelineID:  event.PipelineID,
			Environment: event.Environment,
			Metric:      event.Metric,
			Status:      AlertActive,
			FiredAt:     now,
			UpdatedAt:   now,
			Payload:     event.Payload,
		}

		e.dedup[key] = now
		e.fired[cfg.ID] = append(e.fired[cfg.ID], now)
		e.active[alert.ID] = alert
		e.history = append(e.history, alert)
		e.triggered++
		fired = append(fired, alert)
	}

	// Copies are returned because delivery goroutines keep appending
	// notification records to the stored alerts.
	out := make([]*Alert, len(fired))
	for i, alert := range fired {
		copied := *alert
		out[i] = &copied
	}
	e.mu.Unlock()

	for i, alert := range fired {
		e.logger.Warn("Alert fired",
			"alert_id", alert.ID,
			"config", alert.ConfigName,
			"severity", alert.Severity,
			"pipeline", alert.PipelineID)

		// The broadcast gets the copy; the stored alert keeps accumulating
		// notification records concurrently.
		e.broadcast(ctx, out[i])
		e.dispatch(alert, e.configChannels(alert.ConfigID))
	}

	return out
}

// configChannels resolves a configuration's channel list at dispatch time.
func (e *Engine) configChannels(configID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cfg, ok := e.configs[configID]; ok {
		return append([]string(nil), cfg.Channels...)
	}
	return nil
}

// dispatch delivers the alert to the named channels in the background.
// Failures are recorded on the alert, never propagated.
func (e *Engine) dispatch(alert *Alert, channelNames []string) {
	notification := port.Notification{
		AlertID:    alert.ID,
		AlertType:  alert.Type,
		Severity:   alert.Severity,
		Title:      alert.Title,
		Message:    alert.Message,
		PipelineID: alert.PipelineID,
		FiredAt:    alert.FiredAt,
	}

	for _, name := range channelNames {
		channel, ok := e.channels[name]
		if !ok {
			continue
		}

		e.wg.Add(1)
		go func(channel port.NotificationChannel) {
			defer e.wg.Done()
			e.deliver(channel, alert, notification)
		}(channel)
	}
}

// deliver sends through one channel, retrying with exponential backoff when
// the channel allows it.
func (e *Engine) deliver(channel port.NotificationChannel, alert *Alert, notification port.Notification) {
	record := NotificationRecord{Channel: channel.Name()}

	attempts := 1
	if channel.Retryable() && e.cfg.NotificationRetries > 0 {
		attempts = e.cfg.NotificationRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(e.cfg.RetryBackoff * time.Duration(1<<(attempt-1)))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		lastErr = channel.Send(ctx, notification)
		cancel()

		record.Attempts++
		if lastErr == nil {
			record.Delivered = true
			break
		}
	}
	record.SentAt = time.Now()

	e.mu.Lock()
	if lastErr != nil {
		record.Error = lastErr.Error()
		e.deliveryFailures++
	} else {
		e.delivered++
	}
	alert.Notifications = append(alert.Notifications, record)
	e.mu.Unlock()

	if lastErr != nil {
		e.logger.Error("Notification delivery failed", lastErr,
			"alert_id", alert.ID,
			"channel", channel.Name(),
			"attempts", record.Attempts)
	}
}

func (e *Engine) broadcast(ctx context.Context, alert *Alert) {
	if e.realtime != nil {
		e.realtime.Broadcast(dto.NewRealtimeUpdate(dto.UpdateAlert, alert.PipelineID, alert.Metric, alert))
	}
	if e.events != nil {
		if err := e.events.PublishEvent(ctx, "pipeline.alerts.fired", alert); err != nil {
			e.logger.Warn("Failed to publish alert event", "alert_id", alert.ID, "error", err.Error())
		}
	}
}

// Acknowledge marks an active or escalated alert as seen and stops its
// escalation.
func (e *Engine) Acknowledge(id, by, comment string) (*Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, ok := e.active[id]
	if !ok {
		return nil, ErrNotFound
	}
	if alert.Status != AlertActive && alert.Status != AlertEscalated {
		return nil, fmt.Errorf("%w: alert is %s", ErrInvalidState, alert.Status)
	}

	now := time.Now()
	alert.Status = AlertAcknowledged
	alert.UpdatedAt = now
	alert.Acknowledgment = &Acknowledgment{By: by, Comment: comment, At: now}

	copied := *alert
	return &copied, nil
}

// Resolve closes an alert in any non-resolved state and records the
// resolution metadata.
func (e *Engine) Resolve(id string, resolution Resolution) (*Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, ok := e.active[id]
	if !ok {
		return nil, ErrNotFound
	}
	if alert.Status == AlertResolved {
		return nil, fmt.Errorf("%w: alert already resolved", ErrInvalidState)
	}

	now := time.Now()
	resolution.At = now
	alert.Status = AlertResolved
	alert.UpdatedAt = now
	alert.ResolvedAt = now
	alert.Resolution = &resolution
	delete(e.active, id)

	copied := *alert
	return &copied, nil
}

// GetActiveAlerts returns copies of unresolved alerts matching the filter.
func (e *Engine) GetActiveAlerts(filter AlertFilter) []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Alert, 0, len(e.active))
	for _, alert := range e.active {
		if !filter.match(alert) {
			continue
		}
		copied := *alert
		out = append(out, &copied)
	}
	return out
}

// GetAlertHistory returns the most recent alerts matching the filter,
// newest first.
func (e *Engine) GetAlertHistory(filter AlertFilter, limit int) []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.history)
	if limit <= 0 {
		limit = n
	}

	out := make([]*Alert, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		if !filter.match(e.history[i]) {
			continue
		}
		copied := *e.history[i]
		out = append(out, &copied)
	}
	return out
}

// Metrics returns the engine counters.
func (e *Engine) Metrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Metrics{
		Configurations:   len(e.configs),
		ActiveAlerts:     len(e.active),
		Triggered:        e.triggered,
		Deduplicated:     e.deduplicated,
		RateLimited:      e.rateLimited,
		Delivered:        e.delivered,
		DeliveryFailures: e.deliveryFailures,
		Escalations:      e.escalations,
	}
}

// Start runs the periodic escalation sweep and history cleanup until
// Shutdown or ctx cancellation.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		escalate := time.NewTicker(e.cfg.EscalationInterval)
		cleanup := time.NewTicker(e.cfg.CleanupInterval)
		defer escalate.Stop()
		defer cleanup.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case now := <-escalate.C:
				e.RunEscalations(now)
			case now := <-cleanup.C:
				e.Cleanup(now)
			}
		}
	}()
}

// RunEscalations advances every active unacknowledged alert whose next
// escalation stage has come due and widens delivery to that stage's channels.
func (e *Engine) RunEscalations(now time.Time) {
	type pending struct {
		alert    *Alert
		channels []string
	}

	e.mu.Lock()
	var due []pending
	for _, alert := range e.active {
		if alert.Status != AlertActive && alert.Status != AlertEscalated {
			continue
		}
		cfg, ok := e.configs[alert.ConfigID]
		if !ok || !cfg.Escalation.Enabled {
			continue
		}

		for alert.EscalationLevel < len(cfg.Escalation.Stages) {
			stage := cfg.Escalation.Stages[alert.EscalationLevel]
			if now.Sub(alert.FiredAt) < stage.After {
				break
			}
			alert.EscalationLevel++
			alert.Status = AlertEscalated
			alert.UpdatedAt = now
			alert.Escalations = append(alert.Escalations, EscalationRecord{
				Level:       alert.EscalationLevel,
				Channels:    append([]string(nil), stage.Channels...),
				EscalatedAt: now,
			})
			e.escalations++
			due = append(due, pending{alert: alert, channels: append([]string(nil), stage.Channels...)})
		}
	}
	e.mu.Unlock()

	for _, p := range due {
		e.logger.Warn("Alert escalated",
			"alert_id", p.alert.ID,
			"level", p.alert.EscalationLevel)
		e.dispatch(p.alert, p.channels)
	}
}

// Cleanup drops resolved alerts older than the retention window and expired
// deduplication entries.
func (e *Engine) Cleanup(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := now.Add(-e.cfg.HistoryRetention)
	kept := e.history[:0]
	for _, alert := range e.history {
		if alert.Status != AlertResolved || alert.FiredAt.After(cutoff) {
			kept = append(kept, alert)
		}
	}
	e.history = kept

	for key, last := range e.dedup {
		if now.Sub(last) >= e.cfg.DedupWindow {
			delete(e.dedup, key)
		}
	}
}

// Shutdown stops the periodic loop and waits for in-flight deliveries.
func (e *Engine) Shutdown(ctx context.Context) error {
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RaiseFromAnomalies implements analytics.AlertSink. Reports whose worst
// severity sits below the configured floor raise nothing.
func (e *Engine) RaiseFromAnomalies(ctx context.Context, report *analytics.AnomalyReport) int {
	worst := ""
	for _, anomaly := range report.Anomalies {
		if severityRank(string(anomaly.Severity)) > severityRank(worst) {
			worst = string(anomaly.Severity)
		}
	}
	if worst == "" {
		return 0
	}
	if e.cfg.MinAnomalySeverity != "" && severityRank(worst) < severityRank(e.cfg.MinAnomalySeverity) {
		return 0
	}

	fired := e.Trigger(ctx, Event{
		Type:       EventAnomaly,
		Severity:   worst,
		PipelineID: report.PipelineID,
		Metric:     report.Metric.String(),
		Title:      fmt.Sprintf("Anomalies detected in %s %s", report.PipelineID, report.Metric),
		Message: fmt.Sprintf("%d of %d data points flagged as anomalous by %s",
			len(report.Anomalies), report.DataPoints, report.Method),
		Payload: report,
	})
	return len(fired)
}

// RaiseFromTrend implements analytics.AlertSink. Only directional trends
// whose correlation clears the configured floor are significant enough to
// offer to the configurations.
func (e *Engine) RaiseFromTrend(ctx context.Context, report *analytics.TrendReport) int {
	trend := report.Trend
	if trend == nil {
		return 0
	}
	if trend.Trend != analyzer.TrendIncreasing && trend.Trend != analyzer.TrendDecreasing {
		return 0
	}
	if math.Abs(trend.Correlation) < e.cfg.TrendCorrelationFloor {
		return 0
	}

	severity := "medium"
	if math.Abs(trend.Correlation) >= 0.9 {
		severity = "high"
	}

	fired := e.Trigger(ctx, Event{
		Type:       EventTrend,
		Severity:   severity,
		PipelineID: report.PipelineID,
		Metric:     report.Metric.String(),
		Title:      fmt.Sprintf("%s trend in %s %s", trend.Trend, report.PipelineID, report.Metric),
		Message: fmt.Sprintf("slope %.4f per hour, correlation %.2f, change rate %.1f%%/day",
			trend.Slope, trend.Correlation, trend.ChangeRatePerDay),
		Slope:       trend.Slope,
		Correlation: trend.Correlation,
		Payload:     report,
	})
	return len(fired)
}

// RaiseFromSLA implements analytics.AlertSink.
func (e *Engine) RaiseFromSLA(ctx context.Context, report *analytics.SLAReport) int {
	if report.Result == nil || !report.Result.Violated {
		return 0
	}

	fired := e.Trigger(ctx, Event{
		Type:       EventSLAViolation,
		Severity:   string(report.Result.Severity),
		PipelineID: report.PipelineID,
		Metric:     report.Metric.String(),
		Title:      fmt.Sprintf("SLA violation for %s %s", report.PipelineID, report.Metric),
		Message: fmt.Sprintf("value %.2f missed target %.2f by %.1f%%",
			report.Result.ActualValue, report.Result.SLATarget, report.Result.ViolationPercent),
		Payload: report,
	})
	return len(fired)
}

// RaiseFromCost implements analytics.AlertSink. Only reports scoring below
// the efficiency floor raise an event.
func (e *Engine) RaiseFromCost(ctx context.Context, report *analytics.CostReport) int {
	if report.Result == nil {
		return 0
	}
	score := report.Result.Efficiency.Score
	if score >= e.cfg.CostEfficiencyFloor {
		return 0
	}

	severity := "medium"
	if score < e.cfg.CostEfficiencyFloor/2 {
		severity = "high"
	}

	fired := e.Trigger(ctx, Event{
		Type:       EventCost,
		Severity:   severity,
		PipelineID: report.PipelineID,
		Title:      fmt.Sprintf("Low cost efficiency for %s", report.PipelineID),
		Message: fmt.Sprintf("efficiency score %.0f with total cost %.2f per execution",
			score, report.Result.TotalCost),
		EfficiencyScore: score,
		Payload:         report,
	})
	return len(fired)
}

// passesTypeThresholds applies the type-specific threshold predicates a
// configuration may carry. Zero-valued thresholds pass everything.
func passesTypeThresholds(t Thresholds, event Event) bool {
	if t.MinSlope > 0 && math.Abs(event.Slope) < t.MinSlope {
		return false
	}
	if t.MinCorrelation > 0 && math.Abs(event.Correlation) < t.MinCorrelation {
		return false
	}
	if t.MaxEfficiencyScore > 0 && event.EfficiencyScore > t.MaxEfficiencyScore {
		return false
	}
	return true
}

// matches checks the configuration filters against the event. An empty
// filter list matches everything.
func matches(filters Filters, event Event) bool {
	return containsOrEmpty(filters.Pipelines, event.PipelineID) &&
		containsOrEmpty(filters.Environments, event.Environment) &&
		containsOrEmpty(filters.Metrics, event.Metric)
}

func containsOrEmpty(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// dedupKey identifies a repeat of the same condition for one configuration.
func dedupKey(configID string, event Event) string {
	return configID + ":" + event.Type + "-" + event.Metric + "-" + event.PipelineID + "-" + event.Environment
}

// prune drops timestamps before cutoff.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
