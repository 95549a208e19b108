package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	NATS       NATSConfig
	Scheduler  SchedulerConfig
	Alerting   AlertingConfig
	Analytics  AnalyticsConfig
	CloudWatch CloudWatchConfig
	S3         S3Config
	Security   SecurityConfig
	Notify     NotifyConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type NATSConfig struct {
	Enabled bool
	URL     string
}

type SchedulerConfig struct {
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetentionDays     int
	DrainTimeout      time.Duration
}

type AlertingConfig struct {
	DedupWindow         time.Duration
	EscalationInterval  time.Duration
	CleanupInterval     time.Duration
	HistoryRetention    time.Duration
	NotificationRetries int
	RetryBackoff        time.Duration

	// Floors the analysis runners apply before offering an event to the
	// engine: anomalies below the severity floor, trends weaker than the
	// correlation floor and cost reports scoring at or above the
	// efficiency floor raise no alert at all.
	MinAnomalySeverity    string
	TrendCorrelationFloor float64
	CostEfficiencyFloor   float64
}

type AnalyticsConfig struct {
	CacheTTL            time.Duration
	MinDataPoints       int
	ZScoreThreshold     float64
	DefaultLookbackDays int
}

type CloudWatchConfig struct {
	Enabled   bool
	Namespace string
	Region    string
	FlushSize int
}

type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	KeyPrefix       string
	URLMode         string
	PresignedTTL    time.Duration
}

type SecurityConfig struct {
	AuthEnabled    bool
	AuthToken      string
	AllowedOrigins []string
}

type NotifyConfig struct {
	WebhookURL      string
	SlackWebhookURL string
	EmailRecipients []string
}

func Load() (*Config, error) {
	// .env is optional; real deployments inject environment directly.
	_ = godotenv.Load()

	jobTimeout, err := parseDuration(getEnv("SCHEDULER_JOB_TIMEOUT", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_JOB_TIMEOUT: %w", err)
	}

	maxConcurrent, err := strconv.Atoi(getEnv("SCHEDULER_MAX_CONCURRENT_JOBS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_MAX_CONCURRENT_JOBS: %w", err)
	}

	retentionDays, err := strconv.Atoi(getEnv("SCHEDULER_RETENTION_DAYS", "7"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_RETENTION_DAYS: %w", err)
	}

	dedupWindow, err := parseDuration(getEnv("ALERT_DEDUP_WINDOW", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_DEDUP_WINDOW: %w", err)
	}

	trendCorrelationFloor, err := strconv.ParseFloat(getEnv("ALERT_TREND_CORRELATION_FLOOR", "0.7"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_TREND_CORRELATION_FLOOR: %w", err)
	}

	costEfficiencyFloor, err := strconv.ParseFloat(getEnv("ALERT_COST_EFFICIENCY_FLOOR", "50"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_COST_EFFICIENCY_FLOOR: %w", err)
	}

	cacheTTL, err := parseDuration(getEnv("ANALYTICS_CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYTICS_CACHE_TTL: %w", err)
	}

	minDataPoints, err := strconv.Atoi(getEnv("ANALYTICS_MIN_DATA_POINTS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYTICS_MIN_DATA_POINTS: %w", err)
	}

	zScoreThreshold, err := strconv.ParseFloat(getEnv("ANALYTICS_ZSCORE_THRESHOLD", "2.0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYTICS_ZSCORE_THRESHOLD: %w", err)
	}

	lookbackDays, err := strconv.Atoi(getEnv("ANALYTICS_DEFAULT_LOOKBACK_DAYS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYTICS_DEFAULT_LOOKBACK_DAYS: %w", err)
	}

	rateLimitRPS, err := strconv.ParseFloat(getEnv("SERVER_RATE_LIMIT_RPS", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_RATE_LIMIT_RPS: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	presignedTTL, err := parseDuration(getEnv("S3_PRESIGNED_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid S3_PRESIGNED_TTL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitRPS:    rateLimitRPS,
			RateLimitBurst:  20,
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "pipeline_analytics"),
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           redisDB,
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		NATS: NATSConfig{
			Enabled: getEnvBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Scheduler: SchedulerConfig{
			MaxConcurrentJobs: maxConcurrent,
			JobTimeout:        jobTimeout,
			RetentionDays:     retentionDays,
			DrainTimeout:      30 * time.Second,
		},
		Alerting: AlertingConfig{
			DedupWindow:           dedupWindow,
			EscalationInterval:    time.Minute,
			CleanupInterval:       time.Hour,
			HistoryRetention:      30 * 24 * time.Hour,
			NotificationRetries:   3,
			RetryBackoff:          500 * time.Millisecond,
			MinAnomalySeverity:    getEnv("ALERT_MIN_ANOMALY_SEVERITY", "low"),
			TrendCorrelationFloor: trendCorrelationFloor,
			CostEfficiencyFloor:   costEfficiencyFloor,
		},
		Analytics: AnalyticsConfig{
			CacheTTL:            cacheTTL,
			MinDataPoints:       minDataPoints,
			ZScoreThreshold:     zScoreThreshold,
			DefaultLookbackDays: lookbackDays,
		},
		CloudWatch: CloudWatchConfig{
			Enabled:   getEnvBool("CLOUDWATCH_ENABLED", false),
			Namespace: getEnv("CLOUDWATCH_NAMESPACE", "PipelineAnalytics"),
			Region:    getEnv("CLOUDWATCH_REGION", "us-east-1"),
			FlushSize: 20,
		},
		S3: S3Config{
			Enabled:         getEnvBool("S3_ENABLED", false),
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", true),
			KeyPrefix:       getEnv("S3_KEY_PREFIX", "reports"),
			URLMode:         getEnv("S3_URL_MODE", "presigned"),
			PresignedTTL:    presignedTTL,
		},
		Security: SecurityConfig{
			AuthEnabled:    getEnvBool("AUTH_ENABLED", false),
			AuthToken:      getEnv("AUTH_BEARER_TOKEN", ""),
			AllowedOrigins: getEnvList("WS_ALLOWED_ORIGINS", "http://localhost:8080"),
		},
		Notify: NotifyConfig{
			WebhookURL:      getEnv("NOTIFY_WEBHOOK_URL", ""),
			SlackWebhookURL: getEnv("NOTIFY_SLACK_WEBHOOK_URL", ""),
			EmailRecipients: getEnvList("NOTIFY_EMAIL_RECIPIENTS", ""),
		},
	}

	if cfg.Security.AuthEnabled && cfg.Security.AuthToken == "" {
		return nil, fmt.Errorf("AUTH_BEARER_TOKEN is required when AUTH_ENABLED=true")
	}
	if cfg.Scheduler.MaxConcurrentJobs < 1 {
		return nil, fmt.Errorf("SCHEDULER_MAX_CONCURRENT_JOBS must be at least 1")
	}
	if cfg.S3.Enabled && cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when S3_ENABLED=true")
	}

	return cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Database)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
