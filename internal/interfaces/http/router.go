package http

import (
	"net/http"

	"github.com/dreschagin/pipeline-analytics/internal/interfaces/http/handler"
	"github.com/dreschagin/pipeline-analytics/internal/interfaces/http/middleware"
	"github.com/dreschagin/pipeline-analytics/pkg/config"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"
)

// Router wires the API handlers into one http.Handler.
type Router struct {
	mux               *http.ServeMux
	analysisHandler   *handler.AnalysisAPIHandler
	executionsHandler *handler.ExecutionsAPIHandler
	jobsHandler       *handler.JobsAPIHandler
	alertsHandler     *handler.AlertsAPIHandler
	websocketHandler  *handler.WebSocketHandler
	authHandler       *handler.AuthAPIHandler
	security          config.SecurityConfig
	rateLimiter       *middleware.IPRateLimiter
	logger            *logger.Logger
}

func NewRouter(
	analysisHandler *handler.AnalysisAPIHandler,
	executionsHandler *handler.ExecutionsAPIHandler,
	jobsHandler *handler.JobsAPIHandler,
	alertsHandler *handler.AlertsAPIHandler,
	websocketHandler *handler.WebSocketHandler,
	authHandler *handler.AuthAPIHandler,
	security config.SecurityConfig,
	rateLimiter *middleware.IPRateLimiter,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:               http.NewServeMux(),
		analysisHandler:   analysisHandler,
		executionsHandler: executionsHandler,
		jobsHandler:       jobsHandler,
		alertsHandler:     alertsHandler,
		websocketHandler:  websocketHandler,
		authHandler:       authHandler,
		security:          security,
		rateLimiter:       rateLimiter,
		logger:            logger,
	}
}

// Setup registers all routes and returns the composed handler.
func (rt *Router) Setup() http.Handler {
	// Health endpoints are intentionally unauthenticated for probes.
	rt.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	rt.mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	auth := middleware.Auth(middleware.AuthConfig{
		Enabled:     rt.security.AuthEnabled,
		BearerToken: rt.security.AuthToken,
	}, rt.logger)

	// WebSocket performs its own auth so browsers can pass the token
	// as a query parameter.
	rt.mux.HandleFunc("GET /ws", rt.websocketHandler.HandleConnection)

	rt.mux.HandleFunc("POST /api/v1/auth/login", rt.authHandler.Login)
	rt.mux.HandleFunc("POST /api/v1/auth/logout", rt.authHandler.Logout)
	rt.mux.HandleFunc("GET /api/v1/auth/status", rt.authHandler.Status)

	protected := func(pattern string, fn http.HandlerFunc) {
		rt.mux.Handle(pattern, auth(fn))
	}

	// Analysis
	protected("POST /api/v1/analysis/anomalies", rt.analysisHandler.DetectAnomalies)
	protected("POST /api/v1/analysis/trends", rt.analysisHandler.AnalyzeTrends)
	protected("POST /api/v1/analysis/benchmark", rt.analysisHandler.BenchmarkPerformance)
	protected("POST /api/v1/analysis/sla", rt.analysisHandler.MonitorSLA)
	protected("POST /api/v1/analysis/cost", rt.analysisHandler.AnalyzeCosts)
	protected("POST /api/v1/analysis/full", rt.analysisHandler.RunFullAnalysis)
	protected("GET /api/v1/analysis/results", rt.analysisHandler.ListResults)
	protected("GET /api/v1/analysis/cache/stats", rt.analysisHandler.CacheStats)
	protected("DELETE /api/v1/analysis/cache/{pipelineID}", rt.analysisHandler.InvalidateCache)

	// Execution ingestion
	protected("POST /api/v1/pipelines/executions", rt.executionsHandler.Ingest)
	protected("GET /api/v1/pipelines/executions", rt.executionsHandler.List)

	// Scheduled jobs
	protected("POST /api/v1/jobs", rt.jobsHandler.Create)
	protected("GET /api/v1/jobs", rt.jobsHandler.List)
	protected("GET /api/v1/jobs/{id}", rt.jobsHandler.Get)
	protected("PUT /api/v1/jobs/{id}", rt.jobsHandler.Update)
	protected("DELETE /api/v1/jobs/{id}", rt.jobsHandler.Delete)
	protected("POST /api/v1/jobs/{id}/enable", rt.jobsHandler.Enable)
	protected("POST /api/v1/jobs/{id}/disable", rt.jobsHandler.Disable)
	protected("POST /api/v1/jobs/{id}/trigger", rt.jobsHandler.Trigger)
	protected("POST /api/v1/executions/{executionID}/cancel", rt.jobsHandler.Cancel)
	protected("GET /api/v1/executions", rt.jobsHandler.History)
	protected("GET /api/v1/jobs/metrics/summary", rt.jobsHandler.Metrics)

	// Alerting
	protected("POST /api/v1/alerts/configurations", rt.alertsHandler.CreateConfiguration)
	protected("GET /api/v1/alerts/configurations", rt.alertsHandler.ListConfigurations)
	protected("PUT /api/v1/alerts/configurations/{id}", rt.alertsHandler.UpdateConfiguration)
	protected("DELETE /api/v1/alerts/configurations/{id}", rt.alertsHandler.DeleteConfiguration)
	protected("POST /api/v1/alerts/trigger", rt.alertsHandler.TriggerEvent)
	protected("GET /api/v1/alerts/active", rt.alertsHandler.ActiveAlerts)
	protected("GET /api/v1/alerts/history", rt.alertsHandler.AlertHistory)
	protected("POST /api/v1/alerts/{id}/acknowledge", rt.alertsHandler.Acknowledge)
	protected("POST /api/v1/alerts/{id}/resolve", rt.alertsHandler.Resolve)
	protected("GET /api/v1/alerts/metrics/summary", rt.alertsHandler.Metrics)

	var h http.Handler = rt.mux
	h = middleware.Compression(h)
	if rt.rateLimiter != nil {
		h = middleware.RateLimit(rt.rateLimiter)(h)
	}
	h = middleware.Logger(rt.logger)(h)
	h = middleware.Recovery(rt.logger)(h)

	return h
}
