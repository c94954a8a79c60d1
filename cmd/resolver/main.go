package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"pixav/internal/app"
	"pixav/internal/metrics"
	"pixav/internal/resolver"
	"pixav/internal/resolver/httpapi"
	"pixav/internal/store/postgres"
	"pixav/internal/telemetry"
)

func main() {
	cfg := app.LoadResolverConfig()
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "pixav-resolver")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "pixav-resolver"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.Int64("concurrency", cfg.MaxConcurrentCalls),
		slog.Duration("fetchTimeout", cfg.FetchTimeout),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(rootCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to store failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid broker url", slog.String("error", err.Error()))
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(rootCtx).Err(); err != nil {
		logger.Error("cache not reachable", slog.String("error", err.Error()))
		os.Exit(1)
	}

	videoStore := postgres.NewVideoStore(pool)
	cache := resolver.NewRedisCDNCache(redisClient)
	resolveService := resolver.New(videoStore, cache, resolver.Config{
		CacheTTL:           cfg.CacheTTL,
		LocalShareScheme:   cfg.LocalShareScheme,
		LocalURLPrefix:     cfg.LocalURLPrefix,
		MaxConcurrentCalls: cfg.MaxConcurrentCalls,
		FetchTimeout:       cfg.FetchTimeout,
	})

	server := httpapi.NewServer(resolveService, videoStore, httpapi.Config{
		RateLimitRPM: cfg.RateLimitRPM,
		RateBurst:    cfg.RateBurst,
	}, httpapi.WithLogger(logger))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	logger.Info("resolver started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("resolver stopped")
}
