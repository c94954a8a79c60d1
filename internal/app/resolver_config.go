package app

import (
	"strings"
	"time"
)

// ResolverConfig holds cmd/resolver's environment-derived settings.
type ResolverConfig struct {
	DatabaseURL string
	RedisURL    string
	LogLevel    string
	LogFormat   string

	HTTPAddr string

	CacheTTL           time.Duration
	LocalShareScheme   string
	LocalURLPrefix     string
	MaxConcurrentCalls int64
	FetchTimeout       time.Duration

	RateLimitRPM float64
	RateBurst    int
}

func LoadResolverConfig() ResolverConfig {
	return ResolverConfig{
		DatabaseURL: getEnv("STORE_DSN", getEnv("DATABASE_URL", "postgres://localhost:5432/pixav")),
		RedisURL:    getEnv("BROKER_URL", getEnv("REDIS_URL", "redis://localhost:6379/0")),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "text")),

		HTTPAddr: getEnv("HTTP_ADDR", ":8091"),

		CacheTTL:           getEnvDuration("RESOLVER_CACHE_TTL_SECONDS", 3300*time.Second),
		LocalShareScheme:   getEnv("PIXEL_INJECTOR_MODE_LOCAL_SHARE_SCHEME", "local://"),
		LocalURLPrefix:     getEnv("RESOLVER_LOCAL_URL_PREFIX", "/local/"),
		MaxConcurrentCalls: getEnvInt64("RESOLVER_CONCURRENCY", 3),
		FetchTimeout:       getEnvDuration("RESOLVER_FETCH_TIMEOUT_SECONDS", 15*time.Second),

		RateLimitRPM: float64(getEnvInt64("RESOLVER_RATE_LIMIT_RPM", 0)),
		RateBurst:    getEnvInt("RESOLVER_RATE_BURST", 20),
	}
}
