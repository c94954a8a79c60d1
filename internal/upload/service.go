// Package upload implements the upload stage service: an isolated runtime
// per task, push, trigger, verify, teardown on every exit path. Grounded on
// the original PixelInjectorService.process_task.
package upload

import (
	"context"
	"errors"
	"os"
	"time"

	"pixav/internal/domain"
	"pixav/internal/domain/errs"
	"pixav/internal/domain/ports"
)

// Config holds the upload stage's per-phase timeouts.
type Config struct {
	TaskTimeout   time.Duration
	ReadyTimeout  time.Duration
	VerifyTimeout time.Duration
}

// Service drives one upload task through runtime create, push, trigger,
// verify, and teardown.
type Service struct {
	runtime   ports.RuntimeManager
	uploader  ports.FileUploader
	verifier  ports.UploadVerifier
	videoRepo ports.VideoRepository
	scheduler ports.AccountScheduler
	cfg       Config
}

var _ ports.UploadExecutor = (*Service)(nil)

func New(runtime ports.RuntimeManager, uploader ports.FileUploader, verifier ports.UploadVerifier,
	videoRepo ports.VideoRepository, scheduler ports.AccountScheduler, cfg Config) *Service {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Minute
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 120 * time.Second
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 300 * time.Second
	}
	return &Service{
		runtime:   runtime,
		uploader:  uploader,
		verifier:  verifier,
		videoRepo: videoRepo,
		scheduler: scheduler,
		cfg:       cfg,
	}
}

// ProcessTask creates an isolated runtime, pushes and triggers the upload,
// verifies the resulting share URL, and always tears the runtime down. The
// returned task carries the updated state but is not itself persisted —
// the caller (the worker loop) owns the store write per §7's propagation
// rules.
func (s *Service) ProcessTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	info, err := os.Stat(task.LocalPath)
	if task.LocalPath == "" || err != nil || info.IsDir() {
		task.State = domain.TaskFailed
		task.ErrorMessage = "local_path is required for upload tasks"
		return task, errs.WrapStage("validate local_path", errs.ErrMissingLocalPath)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
	defer cancel()

	handle, err := s.runtime.Create(ctx, task.ID)
	if err != nil {
		task.State = domain.TaskFailed
		task.ErrorMessage = err.Error()
		return task, errs.WrapStage("create runtime", err)
	}
	defer s.teardown(context.WithoutCancel(ctx), handle, task.ID)

	if err := s.runtime.WaitReady(ctx, handle, s.cfg.ReadyTimeout); err != nil {
		task.State = domain.TaskFailed
		task.ErrorMessage = err.Error()
		return task, errs.WrapStage("wait runtime ready", err)
	}

	remotePath, err := s.uploader.PushFile(ctx, handle, task.LocalPath)
	if err != nil {
		task.State = domain.TaskFailed
		task.ErrorMessage = err.Error()
		return task, errs.WrapStage("push file", err)
	}
	if err := s.uploader.TriggerUpload(ctx, handle, remotePath); err != nil {
		task.State = domain.TaskFailed
		task.ErrorMessage = err.Error()
		return task, errs.WrapStage("trigger upload", err)
	}

	shareURL, err := s.verifier.WaitForShareURL(ctx, handle, s.cfg.VerifyTimeout)
	if err != nil {
		task.State = domain.TaskFailed
		task.ErrorMessage = err.Error()
		return task, errs.WrapStage("wait for share url", err)
	}
	ok, err := s.verifier.ValidateShareURL(ctx, shareURL)
	if err != nil || !ok {
		task.State = domain.TaskFailed
		task.ErrorMessage = "share url validation failed: " + shareURL
		return task, errs.WrapStage("validate share url", errors.New(task.ErrorMessage))
	}

	if err := s.videoRepo.UpdateShareURL(ctx, task.VideoID, shareURL); err != nil {
		task.State = domain.TaskFailed
		task.ErrorMessage = err.Error()
		return task, err
	}
	if task.AccountID != nil {
		if err := s.scheduler.ApplyUploadUsage(ctx, *task.AccountID, info.Size()); err != nil {
			// Non-fatal: the upload itself succeeded and must not be
			// retried just because the usage counter write failed.
			task.ErrorMessage = "quota accounting failed: " + err.Error()
		}
	}

	task.State = domain.TaskComplete
	task.ShareURL = shareURL
	return task, nil
}

func (s *Service) teardown(ctx context.Context, handle ports.RuntimeHandle, taskID domain.TaskID) {
	if err := s.runtime.Destroy(ctx, handle); err != nil {
		_ = err // best-effort: destroy failures never upgrade to a task failure
	}
}
