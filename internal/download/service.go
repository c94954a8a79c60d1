// Package download implements the download stage service: magnet in,
// local file out, routed to the upload queue. Grounded on the original
// MediaLoaderService.process_task.
package download

import (
	"context"
	"errors"
	"os"
	"time"

	"pixav/internal/domain"
	"pixav/internal/domain/errs"
	"pixav/internal/domain/ports"
)

var (
	ErrMissingVideo  = errors.New("video not found for download task")
	ErrMissingMagnet = errors.New("video has no magnet uri")
)

// Mode switches between a full download and a smoke-test short-circuit.
type Mode string

const (
	ModeFull   Mode = "full"
	ModeVerify Mode = "verify"
)

// Config holds the download stage's tunables.
type Config struct {
	Mode            Mode
	UploadQueueName string
	DownloadTimeout time.Duration
	PlaceholderPath string // used only in ModeVerify
}

// Service runs one download task end to end.
type Service struct {
	client      ports.TorrentClient
	remuxer     ports.Remuxer
	scraper     ports.MetadataScraper
	videoRepo   ports.VideoRepository
	taskRepo    ports.TaskRepository
	uploadQueue ports.Queue
	cfg         Config
}

func New(client ports.TorrentClient, remuxer ports.Remuxer, scraper ports.MetadataScraper,
	videoRepo ports.VideoRepository, taskRepo ports.TaskRepository, uploadQueue ports.Queue, cfg Config) *Service {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 2 * time.Hour
	}
	return &Service{
		client:      client,
		remuxer:     remuxer,
		scraper:     scraper,
		videoRepo:   videoRepo,
		taskRepo:    taskRepo,
		uploadQueue: uploadQueue,
		cfg:         cfg,
	}
}

// ProcessTask drives one task from pending through to routed-for-upload,
// returning the resulting task. Errors from step 3 through 7 are handled
// per the pipeline's retry/DLQ policy by the caller (the worker loop),
// not here: this method reports the raw error and whether it is
// retryable is a caller concern expressed through the sentinel errors it
// wraps.
func (s *Service) ProcessTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	video, err := s.videoRepo.FindByID(ctx, task.VideoID)
	if err != nil {
		return task, errs.WrapStage("load video", ErrMissingVideo)
	}
	if video.MagnetURI == "" {
		return task, errs.WrapStage("validate magnet", ErrMissingMagnet)
	}

	if s.hasLocalFile(video.LocalPath) {
		if err := s.videoRepo.UpdateStatus(ctx, video.ID, domain.VideoDownloaded); err != nil {
			return task, err
		}
		return s.routeToUpload(ctx, task, video)
	}

	if err := s.taskRepo.UpdateState(ctx, task.ID, domain.TaskDownloading, ""); err != nil {
		return task, err
	}
	if err := s.videoRepo.UpdateStatus(ctx, video.ID, domain.VideoDownloading); err != nil {
		return task, err
	}

	handle, localPath, err := s.download(ctx, video)
	if err != nil {
		return task, errs.WrapStage("download", err)
	}

	if err := s.taskRepo.UpdateState(ctx, task.ID, domain.TaskRemuxing, ""); err != nil {
		return task, err
	}

	remuxedPath := localPath + ".remux.mp4"
	if s.cfg.Mode != ModeVerify {
		if err := s.remuxer.Remux(ctx, localPath, remuxedPath); err != nil {
			return task, errs.WrapStage("remux", err)
		}
	} else {
		remuxedPath = localPath
	}

	if s.cfg.Mode != ModeVerify {
		// Best-effort: a failed torrent-artefact cleanup must never fail the task.
		_ = s.client.DeleteTorrent(ctx, handle, false)
	}

	if s.scraper != nil {
		if md, err := s.scraper.Scrape(ctx, video.Title); err == nil {
			_ = s.videoRepo.UpdateMetadata(ctx, video.ID, md)
		}
	}

	if err := s.videoRepo.UpdateLocalPath(ctx, video.ID, remuxedPath); err != nil {
		return task, err
	}
	if err := s.videoRepo.UpdateStatus(ctx, video.ID, domain.VideoDownloaded); err != nil {
		return task, err
	}
	video.LocalPath = remuxedPath

	return s.routeToUpload(ctx, task, video)
}

func (s *Service) hasLocalFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (s *Service) download(ctx context.Context, video domain.Video) (handle, localPath string, err error) {
	if s.cfg.Mode == ModeVerify {
		// Connectivity-only smoke check: confirm the client is reachable,
		// then synthesize a placeholder local file instead of a real transfer.
		handle, err = s.client.AddMagnet(ctx, video.MagnetURI)
		if err != nil {
			return "", "", err
		}
		path := s.cfg.PlaceholderPath
		if path == "" {
			path = os.TempDir() + "/pixav-verify-" + string(video.ID)
		}
		if err := os.WriteFile(path, []byte("verify-mode placeholder"), 0o644); err != nil {
			return "", "", err
		}
		return handle, path, nil
	}

	handle, err = s.client.AddMagnet(ctx, video.MagnetURI)
	if err != nil {
		return "", "", err
	}
	localPath, err = s.client.WaitComplete(ctx, handle, s.cfg.DownloadTimeout)
	return handle, localPath, err
}

func (s *Service) routeToUpload(ctx context.Context, task domain.Task, video domain.Video) (domain.Task, error) {
	if err := s.taskRepo.SetLocalPath(ctx, task.ID, video.LocalPath); err != nil {
		return task, err
	}
	if err := s.taskRepo.UpdateQueueName(ctx, task.ID, s.cfg.UploadQueueName); err != nil {
		return task, err
	}
	if err := s.taskRepo.UpdateState(ctx, task.ID, domain.TaskPending, ""); err != nil {
		return task, err
	}

	payload := map[string]any{
		"task_id":     string(task.ID),
		"video_id":    string(video.ID),
		"queue_name":  s.cfg.UploadQueueName,
		"retries":     task.Retries,
		"max_retries": task.MaxRetries,
		"local_path":  video.LocalPath,
	}
	if err := s.uploadQueue.Push(ctx, payload); err != nil {
		return task, err
	}

	task.State = domain.TaskPending
	task.QueueName = s.cfg.UploadQueueName
	task.LocalPath = video.LocalPath
	return task, nil
}
