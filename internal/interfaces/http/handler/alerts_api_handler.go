package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dreschagin/pipeline-analytics/internal/application/alerting"
	"github.com/dreschagin/pipeline-analytics/internal/interfaces/http/middleware"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"
)

// AlertsAPIHandler exposes alert configurations and the alert lifecycle.
type AlertsAPIHandler struct {
	engine *alerting.Engine
	logger *logger.Logger
}

type acknowledgeRequest struct {
	By      string `json:"by"`
	Comment string `json:"comment,omitempty"`
}

type resolveRequest struct {
	By        string   `json:"by"`
	Type      string   `json:"type,omitempty"`
	Comment   string   `json:"comment,omitempty"`
	RootCause string   `json:"root_cause,omitempty"`
	Actions   []string `json:"actions,omitempty"`
}

func NewAlertsAPIHandler(engine *alerting.Engine, log *logger.Logger) *AlertsAPIHandler {
	return &AlertsAPIHandler{
		engine: engine,
		logger: log,
	}
}

// CreateConfiguration registers a new alerting rule.
func (h *AlertsAPIHandler) CreateConfiguration(w http.ResponseWriter, r *http.Request) {
	var cfg alerting.AlertConfiguration
	if !decodeBody(w, r, &cfg) {
		return
	}

	created, err := h.engine.CreateConfiguration(cfg)
	if err != nil {
		h.writeAlertingError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, created)
}

// ListConfigurations returns every registered rule.
func (h *AlertsAPIHandler) ListConfigurations(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"configurations": h.engine.ListConfigurations(),
	})
}

// UpdateConfiguration replaces a rule.
func (h *AlertsAPIHandler) UpdateConfiguration(w http.ResponseWriter, r *http.Request) {
	var cfg alerting.AlertConfiguration
	if !decodeBody(w, r, &cfg) {
		return
	}

	updated, err := h.engine.UpdateConfiguration(r.PathValue("id"), cfg)
	if err != nil {
		h.writeAlertingError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, updated)
}

// DeleteConfiguration removes a rule.
func (h *AlertsAPIHandler) DeleteConfiguration(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteConfiguration(r.PathValue("id")); err != nil {
		h.writeAlertingError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TriggerEvent feeds an event into the engine by hand. Useful for testing
// configurations and for external producers without broker access.
func (h *AlertsAPIHandler) TriggerEvent(w http.ResponseWriter, r *http.Request) {
	var event alerting.Event
	if !decodeBody(w, r, &event) {
		return
	}
	if strings.TrimSpace(event.Type) == "" {
		http.Error(w, "type is required", http.StatusBadRequest)
		return
	}

	fired := h.engine.Trigger(r.Context(), event)
	if fired == nil {
		fired = []*alerting.Alert{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"fired":  len(fired),
		"alerts": fired,
	})
}

// ActiveAlerts returns alerts that are not yet resolved, optionally
// narrowed by pipeline, severity, status or event type.
func (h *AlertsAPIHandler) ActiveAlerts(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"alerts": h.engine.GetActiveAlerts(alertFilterFromQuery(r)),
	})
}

// AlertHistory returns resolved and active alerts, newest first.
func (h *AlertsAPIHandler) AlertHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"alerts": h.engine.GetAlertHistory(alertFilterFromQuery(r), limit),
	})
}

func alertFilterFromQuery(r *http.Request) alerting.AlertFilter {
	q := r.URL.Query()
	return alerting.AlertFilter{
		PipelineID: strings.TrimSpace(q.Get("pipeline_id")),
		Severity:   strings.TrimSpace(q.Get("severity")),
		Status:     alerting.AlertStatus(strings.TrimSpace(q.Get("status"))),
		Type:       strings.TrimSpace(q.Get("type")),
	}
}

// Acknowledge marks an active alert as seen and stops its escalation.
func (h *AlertsAPIHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.By) == "" {
		http.Error(w, "by is required", http.StatusBadRequest)
		return
	}

	alert, err := h.engine.Acknowledge(r.PathValue("id"), req.By, req.Comment)
	if err != nil {
		h.writeAlertingError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, alert)
}

// Resolve closes an alert and records who resolved it and how.
func (h *AlertsAPIHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.By) == "" {
		http.Error(w, "by is required", http.StatusBadRequest)
		return
	}

	alert, err := h.engine.Resolve(r.PathValue("id"), alerting.Resolution{
		By:        req.By,
		Type:      req.Type,
		Comment:   req.Comment,
		RootCause: req.RootCause,
		Actions:   req.Actions,
	})
	if err != nil {
		h.writeAlertingError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, alert)
}

// Metrics reports engine activity counters.
func (h *AlertsAPIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.engine.Metrics())
}

func (h *AlertsAPIHandler) writeAlertingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alerting.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, alerting.ErrInvalidState):
		middleware.WriteJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, alerting.ErrInvalidConfiguration):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
