// Package orchestrator drives the periodic tick loop: garbage-collect
// stuck work, enforce per-queue backpressure, promote pending tasks
// across stages, and gate upload-bound work on account availability.
// Grounded on the original MaxwellOrchestrator.tick.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"pixav/internal/domain"
	"pixav/internal/domain/errs"
	"pixav/internal/domain/ports"
)

// NoAccountPolicy controls what happens to an upload-bound task when the
// account pool is exhausted.
type NoAccountPolicy string

const (
	PolicyWait NoAccountPolicy = "wait"
	PolicyFail NoAccountPolicy = "fail"
)

// TickStats mirrors the original orchestrator's returned dict, field for
// field, so callers (and tests) can assert on it directly.
type TickStats struct {
	Dispatched       int
	SkippedPressure  int
	OrphansCleaned   int
	WaitingNoAccount int
	FailedNoAccount  int
}

// Config holds the tick loop's tunables.
type Config struct {
	DownloadQueueName string
	UploadQueueName   string
	NoAccountPolicy   NoAccountPolicy
	BatchSize         int
	OrphanMaxAge      time.Duration
	ExpiredVideoAge   time.Duration
}

// Orchestrator wires the scheduler, dispatcher, backpressure monitor and
// repositories into one tick loop.
type Orchestrator struct {
	scheduler  ports.AccountScheduler
	dispatcher ports.TaskDispatcher
	monitor    ports.BackpressureMonitor
	taskRepo   ports.TaskRepository
	videoRepo  ports.VideoRepository
	cfg        Config
	logger     *slog.Logger
}

func New(scheduler ports.AccountScheduler, dispatcher ports.TaskDispatcher, monitor ports.BackpressureMonitor,
	taskRepo ports.TaskRepository, videoRepo ports.VideoRepository, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.OrphanMaxAge <= 0 {
		cfg.OrphanMaxAge = 2 * time.Hour
	}
	if cfg.NoAccountPolicy == "" {
		cfg.NoAccountPolicy = PolicyWait
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		scheduler:  scheduler,
		dispatcher: dispatcher,
		monitor:    monitor,
		taskRepo:   taskRepo,
		videoRepo:  videoRepo,
		cfg:        cfg,
		logger:     logger,
	}
}

// Tick runs one full pass: GC, pending promotion, per-task gating.
func (o *Orchestrator) Tick(ctx context.Context) (TickStats, error) {
	var stats TickStats

	orphansCleaned, err := o.runGC(ctx)
	if err != nil {
		return stats, errs.WrapStage("orchestrator gc", err)
	}
	stats.OrphansCleaned = orphansCleaned

	pendingCount, err := o.taskRepo.CountByState(ctx, domain.TaskPending)
	if err != nil {
		return stats, errs.WrapStage("count pending tasks", err)
	}
	if pendingCount == 0 {
		return stats, nil
	}

	pending, err := o.taskRepo.ListPending(ctx, o.cfg.BatchSize)
	if err != nil {
		return stats, errs.WrapStage("list pending tasks", err)
	}

	for _, task := range pending {
		if err := o.promote(ctx, task, &stats); err != nil {
			o.logger.Error("failed to promote task", slog.String("taskID", string(task.ID)), slog.Any("error", err))
		}
	}

	return stats, nil
}

func (o *Orchestrator) promote(ctx context.Context, task domain.Task, stats *TickStats) error {
	nextState := domain.TaskDownloading
	if task.QueueName == o.cfg.UploadQueueName {
		nextState = domain.TaskUploading
	}

	ok, err := o.monitor.CheckPressure(ctx, task.QueueName)
	if err != nil {
		return errs.WrapStage("check backpressure", err)
	}
	if !ok {
		stats.SkippedPressure++
		return nil
	}

	var accountID domain.AccountID
	if nextState == domain.TaskUploading {
		accountID, err = o.scheduler.NextAccount(ctx)
		if err != nil {
			if err == errs.ErrNoActiveAccounts {
				return o.applyNoAccountPolicy(ctx, task, stats)
			}
			return errs.WrapStage("select next account", err)
		}
		if err := o.taskRepo.AssignAccount(ctx, task.ID, accountID); err != nil {
			return errs.WrapStage("assign account to task", err)
		}
	}

	if err := o.dispatcher.Dispatch(ctx, task.ID, task.QueueName); err != nil {
		return errs.WrapStage("dispatch task", err)
	}
	if err := o.taskRepo.UpdateState(ctx, task.ID, nextState, ""); err != nil {
		return errs.WrapStage("update task state", err)
	}
	if nextState == domain.TaskUploading {
		if err := o.scheduler.MarkUsed(ctx, accountID); err != nil {
			return errs.WrapStage("mark account used", err)
		}
	}

	stats.Dispatched++
	return nil
}

func (o *Orchestrator) applyNoAccountPolicy(ctx context.Context, task domain.Task, stats *TickStats) error {
	switch o.cfg.NoAccountPolicy {
	case PolicyFail:
		if err := o.taskRepo.UpdateState(ctx, task.ID, domain.TaskFailed, "no active accounts available for scheduling"); err != nil {
			return errs.WrapStage("fail task on no-account policy", err)
		}
		stats.FailedNoAccount++
	default:
		stats.WaitingNoAccount++
	}
	return nil
}

// runGC reaps orphaned tasks stuck in a worker-held state past their max
// age. Pending tasks are waiting for dispatch and are never reaped.
func (o *Orchestrator) runGC(ctx context.Context) (int, error) {
	states := []domain.TaskState{domain.TaskDownloading, domain.TaskRemuxing, domain.TaskUploading, domain.TaskVerifying}
	return o.taskRepo.ReapOrphans(ctx, states, o.cfg.OrphanMaxAge)
}

// RunExpiredVideosSweep is run on an independent cadence from Tick.
func (o *Orchestrator) RunExpiredVideosSweep(ctx context.Context) (int, error) {
	age := o.cfg.ExpiredVideoAge
	if age <= 0 {
		age = 30 * 24 * time.Hour
	}
	return o.videoRepo.ExpireStale(ctx, age)
}

// Health reports active account count and per-queue pressure, mirroring
// the original orchestrator.health().
type Health struct {
	ActiveAccounts int
	Queues         map[string]ports.QueuePressure
}

func (o *Orchestrator) Health(ctx context.Context) (Health, error) {
	active, err := o.scheduler.ActiveCount(ctx)
	if err != nil {
		return Health{}, errs.WrapStage("active account count", err)
	}
	queues, err := o.monitor.AllPressures(ctx)
	if err != nil {
		return Health{}, errs.WrapStage("queue pressures", err)
	}
	return Health{ActiveAccounts: active, Queues: queues}, nil
}
