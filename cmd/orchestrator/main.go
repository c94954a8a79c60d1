package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"pixav/internal/app"
	"pixav/internal/broker"
	"pixav/internal/domain/ports"
	"pixav/internal/ingester"
	"pixav/internal/metrics"
	"pixav/internal/orchestrator"
	"pixav/internal/scheduler"
	"pixav/internal/store/migrate"
	"pixav/internal/store/postgres"
	"pixav/internal/telemetry"
)

func main() {
	cfg := app.LoadOrchestratorConfig()
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "pixav-orchestrator")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "pixav-orchestrator"),
		slog.String("downloadQueue", cfg.DownloadQueueName),
		slog.String("uploadQueue", cfg.UploadQueueName),
		slog.Duration("tickInterval", cfg.TickInterval),
		slog.Duration("sweepInterval", cfg.SweepInterval),
		slog.String("noAccountPolicy", string(cfg.NoAccountPolicy)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect to store failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrate.Run(ctx, pool, logger); err != nil {
		logger.Error("migrations failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

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
	taskStore := postgres.NewTaskStore(pool)
	accountStore := postgres.NewAccountStore(pool)

	brk := broker.New(redisClient)
	queues := map[string]ports.Queue{
		cfg.DownloadQueueName: brk.Queue(cfg.DownloadQueueName),
		cfg.UploadQueueName:   brk.Queue(cfg.UploadQueueName),
	}

	sched := scheduler.New(accountStore, cfg.AccountLeaseSeconds)
	dispatcher := orchestrator.NewQueueDispatcher(taskStore, queues)
	monitor := orchestrator.NewQueueDepthMonitor(queues, cfg.WarnThreshold, cfg.CriticalThreshold)

	orch := orchestrator.New(sched, dispatcher, monitor, taskStore, videoStore, orchestrator.Config{
		DownloadQueueName: cfg.DownloadQueueName,
		UploadQueueName:   cfg.UploadQueueName,
		NoAccountPolicy:   cfg.NoAccountPolicy,
		BatchSize:         cfg.BatchSize,
		OrphanMaxAge:      cfg.OrphanMaxAge,
		ExpiredVideoAge:   cfg.ExpiredVideoAge,
	}, logger)

	ing := ingester.New(brk.Queue(cfg.CrawlQueueName), taskStore, videoStore, cfg.DownloadQueueName, logger)

	tickTicker := time.NewTicker(cfg.TickInterval)
	defer tickTicker.Stop()
	sweepTicker := time.NewTicker(cfg.SweepInterval)
	defer sweepTicker.Stop()
	ingestTicker := time.NewTicker(5 * time.Second)
	defer ingestTicker.Stop()

	logger.Info("orchestrator started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown signal received")
			logger.Info("orchestrator stopped")
			return
		case <-ingestTicker.C:
			created, err := ing.Drain(ctx, cfg.BatchSize)
			if err != nil {
				logger.Error("ingest drain failed", slog.String("error", err.Error()))
				continue
			}
			if created > 0 {
				logger.Info("ingest drain complete", slog.Int("created", created))
			}
		case <-tickTicker.C:
			stats, err := orch.Tick(ctx)
			if err != nil {
				logger.Error("tick failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("tick complete",
				slog.Int("dispatched", stats.Dispatched),
				slog.Int("skippedPressure", stats.SkippedPressure),
				slog.Int("orphansCleaned", stats.OrphansCleaned),
				slog.Int("waitingNoAccount", stats.WaitingNoAccount),
				slog.Int("failedNoAccount", stats.FailedNoAccount),
			)
		case <-sweepTicker.C:
			expired, err := orch.RunExpiredVideosSweep(ctx)
			if err != nil {
				logger.Error("expired videos sweep failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("expired videos sweep complete", slog.Int("expired", expired))
		}
	}
}
