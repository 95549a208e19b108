package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dreschagin/pipeline-analytics/internal/application/analytics"
	"github.com/dreschagin/pipeline-analytics/internal/domain/analyzer"
	"github.com/dreschagin/pipeline-analytics/internal/domain/stats"
	"github.com/dreschagin/pipeline-analytics/internal/interfaces/http/middleware"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"
)

// AnalysisAPIHandler exposes the on-demand analysis operations.
type AnalysisAPIHandler struct {
	service *analytics.Service
	logger  *logger.Logger
}

func NewAnalysisAPIHandler(service *analytics.Service, log *logger.Logger) *AnalysisAPIHandler {
	return &AnalysisAPIHandler{
		service: service,
		logger:  log,
	}
}

// DetectAnomalies runs anomaly detection for one pipeline metric.
func (h *AnalysisAPIHandler) DetectAnomalies(w http.ResponseWriter, r *http.Request) {
	var req analytics.AnomalyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requirePipeline(w, req.PipelineID) {
		return
	}

	report, err := h.service.AnalyzeAnomalies(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, "anomaly analysis", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

// AnalyzeTrends fits a trend for one pipeline metric.
func (h *AnalysisAPIHandler) AnalyzeTrends(w http.ResponseWriter, r *http.Request) {
	var req analytics.TrendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requirePipeline(w, req.PipelineID) {
		return
	}

	report, err := h.service.AnalyzeTrends(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, "trend analysis", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

// BenchmarkPerformance compares a value against the pipeline's history.
func (h *AnalysisAPIHandler) BenchmarkPerformance(w http.ResponseWriter, r *http.Request) {
	var req analytics.BenchmarkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requirePipeline(w, req.PipelineID) {
		return
	}

	report, err := h.service.BenchmarkPerformance(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, "benchmark", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

// MonitorSLA evaluates the latest value of a metric against a target.
func (h *AnalysisAPIHandler) MonitorSLA(w http.ResponseWriter, r *http.Request) {
	var req analytics.SLARequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requirePipeline(w, req.PipelineID) {
		return
	}
	if req.Target <= 0 {
		http.Error(w, "target must be positive", http.StatusBadRequest)
		return
	}

	report, err := h.service.MonitorSLA(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, "sla evaluation", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

// AnalyzeCosts breaks down the cost of the pipeline's latest execution.
func (h *AnalysisAPIHandler) AnalyzeCosts(w http.ResponseWriter, r *http.Request) {
	var req analytics.CostRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requirePipeline(w, req.PipelineID) {
		return
	}

	report, err := h.service.AnalyzeCosts(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, "cost analysis", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

// RunFullAnalysis fans out every analysis for one pipeline.
func (h *AnalysisAPIHandler) RunFullAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analytics.FullAnalysisRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !requirePipeline(w, req.PipelineID) {
		return
	}

	report, err := h.service.RunFullAnalysis(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, "full analysis", err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

// ListResults returns persisted analysis records for a pipeline.
func (h *AnalysisAPIHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	pipelineID := strings.TrimSpace(r.URL.Query().Get("pipeline_id"))
	if pipelineID == "" {
		http.Error(w, "Missing required parameter: pipeline_id", http.StatusBadRequest)
		return
	}

	analysisType := strings.TrimSpace(r.URL.Query().Get("type"))
	limit := queryInt(r, "limit", 50)

	records, err := h.service.ListResults(r.Context(), pipelineID, analysisType, limit)
	if err != nil {
		h.logger.Error("Failed to list analysis results", err, "pipeline", pipelineID)
		http.Error(w, "Failed to fetch results", http.StatusInternalServerError)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"pipeline_id": pipelineID,
		"results":     records,
	})
}

// CacheStats reports cache hit and miss counters.
func (h *AnalysisAPIHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.service.CacheStats())
}

// InvalidateCache drops cached analyses for one pipeline.
func (h *AnalysisAPIHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	pipelineID := r.PathValue("pipelineID")
	if strings.TrimSpace(pipelineID) == "" {
		http.Error(w, "Missing pipeline id", http.StatusBadRequest)
		return
	}

	h.service.InvalidatePipeline(r.Context(), pipelineID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AnalysisAPIHandler) writeAnalysisError(w http.ResponseWriter, operation string, err error) {
	switch {
	case errors.Is(err, analyzer.ErrInsufficientData):
		middleware.WriteJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
	case errors.Is(err, analyzer.ErrInvalidInput), errors.Is(err, stats.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case strings.HasPrefix(err.Error(), "invalid "):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("Analysis request failed", err, "operation", operation)
		http.Error(w, "Analysis failed", http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func requirePipeline(w http.ResponseWriter, pipelineID string) bool {
	if strings.TrimSpace(pipelineID) == "" {
		http.Error(w, "pipeline_id is required", http.StatusBadRequest)
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
