package app

import (
	"strings"
	"time"
)

// UploaderMode selects between the container-backed runtime and the
// synthetic local-mode upload path.
type UploaderMode string

const (
	UploaderModeRedroid UploaderMode = "redroid"
	UploaderModeLocal    UploaderMode = "local"
)

// UploaderConfig holds cmd/uploader's environment-derived settings.
type UploaderConfig struct {
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	LogFormat   string

	UploadQueueName string
	UploadDLQName   string
	ReplaySetName   string
	SystemPauseKey  string

	Mode              UploaderMode
	LocalShareScheme  string
	RuntimeImage      string
	RuntimeNetwork    string
	DockerHost        string
	TriggerCommand    []string
	ShareURLPattern   string

	TaskTimeout     time.Duration
	ReadyTimeout    time.Duration
	VerifyTimeout   time.Duration
	LockKeyPrefix   string
	LockTTL         time.Duration
	PollTimeout     time.Duration
	MaxConcurrency  int

	MaxRetries        int
	DLQReplayMax      int
	DLQBackoffSeconds []int
}

func LoadUploaderConfig() UploaderConfig {
	return UploaderConfig{
		DatabaseURL: getEnv("STORE_DSN", getEnv("DATABASE_URL", "postgres://localhost:5432/pixav")),
		RedisURL:    getEnv("BROKER_URL", getEnv("REDIS_URL", "redis://localhost:6379/0")),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "text")),

		UploadQueueName: getEnv("QUEUE_UPLOAD", "queue:upload"),
		UploadDLQName:   getEnv("QUEUE_UPLOAD_DLQ", "queue:upload:dlq"),
		ReplaySetName:   getEnv("QUEUE_UPLOAD_REPLAY", "queue:upload:replay"),
		SystemPauseKey:  getEnv("SYSTEM_PAUSE_KEY", "pixav:pause"),

		Mode:             parseUploaderMode(getEnv("PIXEL_INJECTOR_MODE", "redroid")),
		LocalShareScheme: getEnv("PIXEL_INJECTOR_MODE_LOCAL_SHARE_SCHEME", "local://"),
		RuntimeImage:     getEnv("PIXEL_INJECTOR_IMAGE", "pixav/pixel-injector:latest"),
		RuntimeNetwork:   getEnv("PIXEL_INJECTOR_NETWORK", ""),
		DockerHost:       getEnv("DOCKER_HOST", ""),
		TriggerCommand:   parseCSV(getEnv("PIXEL_INJECTOR_TRIGGER_CMD", "/bin/sh,-c,ingest.sh $REMOTE_PATH")),
		ShareURLPattern:  getEnv("PIXEL_INJECTOR_SHARE_URL_PATTERN", `https://lh3\.googleusercontent\.com/\S+`),

		TaskTimeout:    getEnvDuration("UPLOAD_TASK_TIMEOUT_SECONDS", 10*time.Minute),
		ReadyTimeout:   getEnvDuration("UPLOAD_READY_TIMEOUT_SECONDS", 120*time.Second),
		VerifyTimeout:  getEnvDuration("UPLOAD_VERIFY_TIMEOUT_SECONDS", 300*time.Second),
		LockKeyPrefix:  getEnv("UPLOAD_LOCK_KEY", "pixav:upload:lock:"),
		LockTTL:        getEnvDuration("UPLOAD_LOCK_TTL_SECONDS", 30*time.Second),
		PollTimeout:    getEnvDuration("UPLOAD_POLL_TIMEOUT", 5*time.Second),
		MaxConcurrency: getEnvInt("UPLOAD_MAX_CONCURRENCY", 3),

		MaxRetries:        getEnvInt("UPLOAD_MAX_RETRIES", 5),
		DLQReplayMax:      getEnvInt("UPLOAD_DLQ_REPLAY_MAX", 3),
		DLQBackoffSeconds: parseBackoffSeconds(getEnv("UPLOAD_DLQ_REPLAY_BACKOFF_SECONDS", "30,120,600")),
	}
}

func parseUploaderMode(raw string) UploaderMode {
	if strings.ToLower(strings.TrimSpace(raw)) == "local" {
		return UploaderModeLocal
	}
	return UploaderModeRedroid
}
