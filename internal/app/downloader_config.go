package app

import (
	"strings"
	"time"

	"pixav/internal/download"
)

// DownloaderConfig holds cmd/downloader's environment-derived settings.
type DownloaderConfig struct {
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	LogFormat   string

	DownloadQueueName string
	DownloadDLQName   string
	ReplaySetName     string
	UploadQueueName   string
	SystemPauseKey    string

	MaxRetries        int
	DownloadTimeout   time.Duration
	Mode              download.Mode
	PlaceholderPath   string
	TorrentDataDir    string
	FFMPEGPath        string
	Concurrency       int
	DLQReplayMax      int
	DLQBackoffSeconds []int
	LockTTL           time.Duration
	PollTimeout       time.Duration

	TMDBAPIKey   string
	TMDBBaseURL  string
	TMDBCacheTTL time.Duration
}

func LoadDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		DatabaseURL: getEnv("STORE_DSN", getEnv("DATABASE_URL", "postgres://localhost:5432/pixav")),
		RedisURL:    getEnv("BROKER_URL", getEnv("REDIS_URL", "redis://localhost:6379/0")),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "text")),

		DownloadQueueName: getEnv("QUEUE_DOWNLOAD", "queue:download"),
		DownloadDLQName:   getEnv("QUEUE_DOWNLOAD_DLQ", "queue:download:dlq"),
		ReplaySetName:     getEnv("QUEUE_DOWNLOAD_REPLAY", "queue:download:replay"),
		UploadQueueName:   getEnv("QUEUE_UPLOAD", "queue:upload"),
		SystemPauseKey:    getEnv("SYSTEM_PAUSE_KEY", "pixav:pause"),

		MaxRetries:      getEnvInt("DOWNLOAD_MAX_RETRIES", 10),
		DownloadTimeout: getEnvDuration("DOWNLOAD_TIMEOUT", 2*time.Hour),
		Mode:            parseMediaLoaderMode(getEnv("MEDIA_LOADER_MODE", "full")),
		PlaceholderPath: getEnv("MEDIA_LOADER_PLACEHOLDER_PATH", ""),
		TorrentDataDir:  getEnv("TORRENT_DATA_DIR", "data/downloads"),
		FFMPEGPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		Concurrency:     getEnvInt("DOWNLOADER_CONCURRENCY", 2),

		DLQReplayMax:      getEnvInt("DOWNLOAD_DLQ_REPLAY_MAX", 3),
		DLQBackoffSeconds: parseBackoffSeconds(getEnv("DOWNLOAD_DLQ_REPLAY_BACKOFF_SECONDS", "30,120,600")),
		LockTTL:           getEnvDuration("DOWNLOAD_LOCK_TTL", 30*time.Second),
		PollTimeout:       getEnvDuration("DOWNLOAD_POLL_TIMEOUT", 5*time.Second),

		TMDBAPIKey:   getEnv("TMDB_API_KEY", ""),
		TMDBBaseURL:  getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBCacheTTL: getEnvDuration("TMDB_CACHE_TTL", 7*24*time.Hour),
	}
}

func parseMediaLoaderMode(raw string) download.Mode {
	if strings.ToLower(strings.TrimSpace(raw)) == "verify" {
		return download.ModeVerify
	}
	return download.ModeFull
}
