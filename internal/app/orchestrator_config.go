package app

import (
	"strings"
	"time"

	"pixav/internal/orchestrator"
)

// OrchestratorConfig holds cmd/orchestrator's environment-derived settings.
type OrchestratorConfig struct {
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	LogFormat   string

	CrawlQueueName    string
	DownloadQueueName string
	UploadQueueName   string

	TickInterval      time.Duration
	SweepInterval     time.Duration
	OrphanMaxAge      time.Duration
	ExpiredVideoAge   time.Duration
	BatchSize         int
	WarnThreshold     int64
	CriticalThreshold int64
	NoAccountPolicy   orchestrator.NoAccountPolicy

	AccountLeaseSeconds time.Duration
	SystemPauseKey      string
}

func LoadOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		DatabaseURL: getEnv("STORE_DSN", getEnv("DATABASE_URL", "postgres://localhost:5432/pixav")),
		RedisURL:    getEnv("BROKER_URL", getEnv("REDIS_URL", "redis://localhost:6379/0")),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "text")),

		CrawlQueueName:    getEnv("QUEUE_CRAWL", "queue:crawl"),
		DownloadQueueName: getEnv("QUEUE_DOWNLOAD", "queue:download"),
		UploadQueueName:   getEnv("QUEUE_UPLOAD", "queue:upload"),

		TickInterval:      getEnvDuration("ORCHESTRATOR_TICK_INTERVAL", 30*time.Second),
		SweepInterval:     getEnvDuration("ORCHESTRATOR_SWEEP_INTERVAL", time.Hour),
		OrphanMaxAge:      getEnvDuration("ORCHESTRATOR_ORPHAN_MAX_AGE", 2*time.Hour),
		ExpiredVideoAge:   getEnvDuration("ORCHESTRATOR_EXPIRED_VIDEO_AGE", 30*24*time.Hour),
		BatchSize:         getEnvInt("ORCHESTRATOR_BATCH_SIZE", 5),
		WarnThreshold:     getEnvInt64("ORCHESTRATOR_WARN_THRESHOLD", 50),
		CriticalThreshold: getEnvInt64("ORCHESTRATOR_CRITICAL_THRESHOLD", 100),
		NoAccountPolicy:   parseNoAccountPolicy(getEnv("NO_ACCOUNT_POLICY", "wait")),

		AccountLeaseSeconds: getEnvDuration("ACCOUNT_LEASE_SECONDS", 600*time.Second),
		SystemPauseKey:      getEnv("SYSTEM_PAUSE_KEY", "pixav:pause"),
	}
}

func parseNoAccountPolicy(raw string) orchestrator.NoAccountPolicy {
	if strings.ToLower(strings.TrimSpace(raw)) == "fail" {
		return orchestrator.PolicyFail
	}
	return orchestrator.PolicyWait
}
