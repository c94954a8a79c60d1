package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"pixav/internal/app"
	"pixav/internal/broker"
	"pixav/internal/domain/ports"
	"pixav/internal/metrics"
	"pixav/internal/scheduler"
	"pixav/internal/store/postgres"
	"pixav/internal/telemetry"
	"pixav/internal/upload"
	"pixav/internal/upload/localmode"
	"pixav/internal/upload/runtime/docker"
)

func main() {
	cfg := app.LoadUploaderConfig()
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "pixav-uploader")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "pixav-uploader"),
		slog.String("uploadQueue", cfg.UploadQueueName),
		slog.String("mode", string(cfg.Mode)),
		slog.Int("maxConcurrency", cfg.MaxConcurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
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
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("broker not reachable", slog.String("error", err.Error()))
		os.Exit(1)
	}

	videoStore := postgres.NewVideoStore(pool)
	accountStore := postgres.NewAccountStore(pool)
	brk := broker.New(redisClient)
	sched := scheduler.New(accountStore, 0)

	executor, err := buildExecutor(ctx, cfg, videoStore, sched, logger)
	if err != nil {
		logger.Error("build upload executor failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	worker := upload.NewWorker(brk, postgres.NewTaskStore(pool), videoStore, executor, upload.WorkerConfig{
		UploadQueueName:   cfg.UploadQueueName,
		DLQName:           cfg.UploadDLQName,
		ReplaySetName:     cfg.ReplaySetName,
		PauseKey:          cfg.SystemPauseKey,
		LockKeyPrefix:     cfg.LockKeyPrefix,
		LockTTL:           cfg.LockTTL,
		PollTimeout:       cfg.PollTimeout,
		DLQReplayMax:      cfg.DLQReplayMax,
		DLQBackoffSeconds: cfg.DLQBackoffSeconds,
	}, logger)

	logger.Info("uploader started")

	var wg sync.WaitGroup
	for i := 0; i < cfg.MaxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	wg.Wait()
	logger.Info("uploader stopped")
}

func buildExecutor(ctx context.Context, cfg app.UploaderConfig, videoStore ports.VideoRepository,
	sched ports.AccountScheduler, logger *slog.Logger) (ports.UploadExecutor, error) {
	if cfg.Mode == app.UploaderModeLocal {
		logger.Info("local upload mode: synthesizing share urls, no container runtime")
		return localmode.New(videoStore, sched, localmode.Config{ShareScheme: cfg.LocalShareScheme}), nil
	}

	manager, err := docker.NewManager(ctx, docker.Config{Image: cfg.RuntimeImage, Network: cfg.RuntimeNetwork, Host: cfg.DockerHost})
	if err != nil {
		return nil, err
	}
	pattern, err := regexp.Compile(cfg.ShareURLPattern)
	if err != nil {
		return nil, err
	}
	uploader := docker.NewUploader(manager.Client(), cfg.TriggerCommand)
	verifier := docker.NewVerifier(manager.Client(), pattern, nil)

	return upload.New(manager, uploader, verifier, videoStore, sched, upload.Config{
		TaskTimeout:   cfg.TaskTimeout,
		ReadyTimeout:  cfg.ReadyTimeout,
		VerifyTimeout: cfg.VerifyTimeout,
	}), nil
}
