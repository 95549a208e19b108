package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Application
	"github.com/dreschagin/pipeline-analytics/internal/application/alerting"
	"github.com/dreschagin/pipeline-analytics/internal/application/analytics"
	"github.com/dreschagin/pipeline-analytics/internal/application/port"
	"github.com/dreschagin/pipeline-analytics/internal/application/scheduler"

	// Infrastructure
	rediscache "github.com/dreschagin/pipeline-analytics/internal/infrastructure/cache/redis"
	"github.com/dreschagin/pipeline-analytics/internal/infrastructure/collector"
	natsinfra "github.com/dreschagin/pipeline-analytics/internal/infrastructure/messaging/nats"
	"github.com/dreschagin/pipeline-analytics/internal/infrastructure/notification/channels"
	wsInfra "github.com/dreschagin/pipeline-analytics/internal/infrastructure/notification/websocket"
	cwatch "github.com/dreschagin/pipeline-analytics/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/pipeline-analytics/internal/infrastructure/persistence/postgres"
	s3storage "github.com/dreschagin/pipeline-analytics/internal/infrastructure/storage/s3"

	// Interfaces
	httpInterface "github.com/dreschagin/pipeline-analytics/internal/interfaces/http"
	"github.com/dreschagin/pipeline-analytics/internal/interfaces/http/handler"
	"github.com/dreschagin/pipeline-analytics/internal/interfaces/http/middleware"

	// Shared
	"github.com/dreschagin/pipeline-analytics/pkg/config"
	"github.com/dreschagin/pipeline-analytics/pkg/logger"

	_ "github.com/lib/pq"
)

func main() {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Logger
	log := logger.New(os.Getenv("LOG_LEVEL"))
	log.Info("Starting Pipeline Analytics")

	// 3. Database
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Error("Failed to connect to database", err)
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		log.Error("Failed to ping database", err)
		os.Exit(1)
	}
	log.Info("Database connected successfully")

	// 4. Infrastructure

	executionRepository := postgres.NewPostgresExecutionRepository(db)
	resultStore := postgres.NewPostgresResultStore(db)

	var cache port.Cache
	if cfg.Redis.Enabled {
		redisCache, err := rediscache.NewRedisCache(cfg.Redis)
		if err != nil {
			log.Error("Failed to connect to Redis", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		cache = redisCache
		log.Info("Redis cache connected")
	} else {
		log.Warn("Redis is disabled, analysis results will not be cached")
	}

	var events port.EventPublisher
	if cfg.NATS.Enabled {
		publisher, err := natsinfra.NewNATSPublisher(cfg.NATS.URL, log)
		if err != nil {
			log.Error("Failed to connect to NATS", err)
			os.Exit(1)
		}
		defer publisher.Close()
		events = publisher
		log.Info("NATS publisher connected", "url", cfg.NATS.URL)
	} else {
		log.Warn("NATS is disabled, analysis events will not be published")
	}

	hub := wsInfra.NewHub(log)

	// 5. Analytics service

	analyticsService := analytics.NewService(
		executionRepository,
		resultStore,
		cache,
		events,
		hub,
		cfg.Analytics,
		log,
	)

	if cfg.S3.Enabled {
		archive, err := s3storage.NewReportArchive(context.Background(), s3storage.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			URLMode:         s3storage.URLMode(cfg.S3.URLMode),
			PresignedTTL:    cfg.S3.PresignedTTL,
			KeyPrefix:       cfg.S3.KeyPrefix,
		})
		if err != nil {
			log.Error("Failed to initialize report archive", err)
			os.Exit(1)
		}
		analyticsService.SetReportArchive(archive)
		log.Info("Report archive enabled", "bucket", cfg.S3.Bucket)
	}

	// 6. Alerting

	notificationChannels := buildNotificationChannels(cfg.Notify, log)
	alertEngine := alerting.NewEngine(notificationChannels, hub, events, cfg.Alerting, log)
	analyticsService.SetAlertSink(alertEngine)

	// 7. Scheduler

	sampler := collector.NewRuntimeSampler()
	jobScheduler := scheduler.NewScheduler(analyticsService, sampler, hub, cfg.Scheduler, log)

	// 8. HTTP handlers

	authConfig := middleware.AuthConfig{
		Enabled:     cfg.Security.AuthEnabled,
		BearerToken: cfg.Security.AuthToken,
	}

	analysisHandler := handler.NewAnalysisAPIHandler(analyticsService, log)
	executionsHandler := handler.NewExecutionsAPIHandler(analyticsService, log)
	jobsHandler := handler.NewJobsAPIHandler(jobScheduler, log)
	alertsHandler := handler.NewAlertsAPIHandler(alertEngine, log)
	websocketHandler := handler.NewWebSocketHandler(hub, cfg.Security.AllowedOrigins, authConfig, log)
	authHandler := handler.NewAuthAPIHandler(authConfig, log)

	rateLimiter := middleware.NewIPRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	router := httpInterface.NewRouter(
		analysisHandler,
		executionsHandler,
		jobsHandler,
		alertsHandler,
		websocketHandler,
		authHandler,
		cfg.Security,
		rateLimiter,
		log,
	)

	// 9. Background processes

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run()
	log.Info("WebSocket hub started")

	jobScheduler.Start(ctx)
	log.Info("Job scheduler started",
		"max_concurrent", cfg.Scheduler.MaxConcurrentJobs,
		"job_timeout", cfg.Scheduler.JobTimeout.String())

	alertEngine.Start(ctx)
	log.Info("Alert engine started")

	var metricsPublisher *cwatch.MetricsPublisher
	if cfg.CloudWatch.Enabled {
		metricsPublisher, err = cwatch.NewMetricsPublisher(ctx, cwatch.MetricsPublisherConfig{
			Namespace:  cfg.CloudWatch.Namespace,
			Region:     cfg.CloudWatch.Region,
			BufferSize: cfg.CloudWatch.FlushSize,
		})
		if err != nil {
			log.Error("Failed to initialize CloudWatch publisher", err)
			os.Exit(1)
		}

		go publishOperationalMetrics(ctx, metricsPublisher, analyticsService, jobScheduler, alertEngine, hub, log)
		log.Info("CloudWatch metrics publisher started", "namespace", cfg.CloudWatch.Namespace)
	}

	// 10. HTTP server

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	// 11. Graceful shutdown

	<-sigChan
	log.Info("Shutdown signal received, starting graceful shutdown...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	if err := jobScheduler.Shutdown(shutdownCtx); err != nil {
		log.Error("Scheduler shutdown error", err)
	}

	if err := alertEngine.Shutdown(shutdownCtx); err != nil {
		log.Error("Alert engine shutdown error", err)
	}

	if metricsPublisher != nil {
		if err := metricsPublisher.Close(shutdownCtx); err != nil {
			log.Error("CloudWatch publisher shutdown error", err)
		}
	}

	log.Info("Server stopped gracefully")
}

// buildNotificationChannels assembles the delivery channels that are
// configured via environment.
func buildNotificationChannels(cfg config.NotifyConfig, log *logger.Logger) []port.NotificationChannel {
	var list []port.NotificationChannel

	if cfg.WebhookURL != "" {
		list = append(list, channels.NewWebhookChannel(cfg.WebhookURL, nil, log))
	}
	if cfg.SlackWebhookURL != "" {
		list = append(list, channels.NewSlackChannel(cfg.SlackWebhookURL, log))
	}
	if len(cfg.EmailRecipients) > 0 {
		list = append(list, channels.NewEmailChannel(cfg.EmailRecipients, log))
	}

	if len(list) == 0 {
		log.Warn("No notification channels configured, alerts will only appear in the API")
	}

	return list
}

// publishOperationalMetrics periodically ships engine counters to CloudWatch.
func publishOperationalMetrics(
	ctx context.Context,
	publisher port.MetricsPublisher,
	analyticsService *analytics.Service,
	jobScheduler *scheduler.Scheduler,
	alertEngine *alerting.Engine,
	hub *wsInfra.Hub,
	log *logger.Logger,
) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			cacheStats := analyticsService.CacheStats()
			schedMetrics := jobScheduler.Metrics()
			alertMetrics := alertEngine.Metrics()

			batch := []port.MetricDatum{
				{Name: "cache_hits", Value: float64(cacheStats.Hits), Unit: "count", Timestamp: now},
				{Name: "cache_misses", Value: float64(cacheStats.Misses), Unit: "count", Timestamp: now},
				{Name: "scheduled_jobs", Value: float64(schedMetrics.ScheduledJobs), Unit: "count", Timestamp: now},
				{Name: "running_jobs", Value: float64(schedMetrics.RunningJobs), Unit: "count", Timestamp: now},
				{Name: "job_executions_total", Value: float64(schedMetrics.TotalExecutions), Unit: "count", Timestamp: now},
				{Name: "job_executions_failed", Value: float64(schedMetrics.Failed), Unit: "count", Timestamp: now},
				{Name: "active_alerts", Value: float64(alertMetrics.ActiveAlerts), Unit: "count", Timestamp: now},
				{Name: "alerts_triggered", Value: float64(alertMetrics.Triggered), Unit: "count", Timestamp: now},
				{Name: "alert_delivery_failures", Value: float64(alertMetrics.DeliveryFailures), Unit: "count", Timestamp: now},
				{Name: "websocket_clients", Value: float64(hub.ClientCount()), Unit: "count", Timestamp: now},
			}

			if err := publisher.PublishBatch(ctx, batch); err != nil {
				log.Warn("Failed to publish operational metrics", "error", err.Error())
			}
		case <-ctx.Done():
			return
		}
	}
}
