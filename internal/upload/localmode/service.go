// Package localmode implements the "pixel_injector_mode=local" upload
// alternative: no isolated runtime, a synthetic share URL built from the
// video id and a configured scheme. It satisfies the same ports.UploadExecutor
// contract as the container-backed service so the worker loop treats both
// uniformly.
package localmode

import (
	"context"
	"os"

	"pixav/internal/domain"
	"pixav/internal/domain/errs"
	"pixav/internal/domain/ports"
)

// Config holds the local-mode share URL scheme, e.g. "local://".
type Config struct {
	ShareScheme string
}

// Service emits a synthetic share URL instead of driving a real upload.
type Service struct {
	videoRepo ports.VideoRepository
	scheduler ports.AccountScheduler
	cfg       Config
}

var _ ports.UploadExecutor = (*Service)(nil)

func New(videoRepo ports.VideoRepository, scheduler ports.AccountScheduler, cfg Config) *Service {
	if cfg.ShareScheme == "" {
		cfg.ShareScheme = "local://"
	}
	return &Service{videoRepo: videoRepo, scheduler: scheduler, cfg: cfg}
}

func (s *Service) ProcessTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	info, err := os.Stat(task.LocalPath)
	if task.LocalPath == "" || err != nil || info.IsDir() {
		task.State = domain.TaskFailed
		task.ErrorMessage = "local_path is required for upload tasks"
		return task, errs.WrapStage("validate local_path", errs.ErrMissingLocalPath)
	}

	shareURL := s.cfg.ShareScheme + string(task.VideoID)
	if err := s.videoRepo.UpdateShareURL(ctx, task.VideoID, shareURL); err != nil {
		task.State = domain.TaskFailed
		task.ErrorMessage = err.Error()
		return task, err
	}
	if task.AccountID != nil {
		if err := s.scheduler.ApplyUploadUsage(ctx, *task.AccountID, info.Size()); err != nil {
			task.ErrorMessage = "quota accounting failed: " + err.Error()
		}
	}

	task.State = domain.TaskComplete
	task.ShareURL = shareURL
	return task, nil
}
