package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"pixav/internal/app"
	"pixav/internal/broker"
	"pixav/internal/download"
	"pixav/internal/download/metadata/tmdb"
	"pixav/internal/download/remux"
	"pixav/internal/download/torrentclient/anacrolix"
	"pixav/internal/domain/ports"
	"pixav/internal/metrics"
	"pixav/internal/store/postgres"
	"pixav/internal/telemetry"
)

func main() {
	cfg := app.LoadDownloaderConfig()
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "pixav-downloader")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "pixav-downloader"),
		slog.String("downloadQueue", cfg.DownloadQueueName),
		slog.String("uploadQueue", cfg.UploadQueueName),
		slog.String("mode", string(cfg.Mode)),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Bool("hasTMDBKey", cfg.TMDBAPIKey != ""),
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
	taskStore := postgres.NewTaskStore(pool)
	brk := broker.New(redisClient)

	torrentClient, err := anacrolix.New(anacrolix.Config{DataDir: cfg.TorrentDataDir})
	if err != nil {
		logger.Error("start torrent client failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer torrentClient.Close()

	remuxer := remux.New(cfg.FFMPEGPath)

	var scraper ports.MetadataScraper
	if cfg.TMDBAPIKey != "" {
		s := tmdb.New(tmdb.Config{APIKey: cfg.TMDBAPIKey, BaseURL: cfg.TMDBBaseURL, Redis: redisClient, CacheTTL: cfg.TMDBCacheTTL})
		scraper = s
		logger.Info("tmdb metadata scraper enabled")
	} else {
		logger.Info("tmdb api key not configured, metadata scrape disabled")
	}

	service := download.New(torrentClient, remuxer, scraper, videoStore, taskStore, brk.Queue(cfg.UploadQueueName), download.Config{
		Mode:            cfg.Mode,
		UploadQueueName: cfg.UploadQueueName,
		DownloadTimeout: cfg.DownloadTimeout,
		PlaceholderPath: cfg.PlaceholderPath,
	})

	worker := download.NewWorker(brk, taskStore, videoStore, service, download.WorkerConfig{
		DownloadQueueName: cfg.DownloadQueueName,
		DLQName:           cfg.DownloadDLQName,
		ReplaySetName:     cfg.ReplaySetName,
		PauseKey:          cfg.SystemPauseKey,
		LockTTL:           cfg.LockTTL,
		PollTimeout:       cfg.PollTimeout,
		DLQReplayMax:      cfg.DLQReplayMax,
		DLQBackoffSeconds: cfg.DLQBackoffSeconds,
	}, logger)

	logger.Info("downloader started")

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	wg.Wait()
	logger.Info("downloader stopped")
}
