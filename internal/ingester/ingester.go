// Package ingester drains the discovery queue into pending tasks,
// idempotently, grounded on the original ingest_crawl_queue.
package ingester

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"pixav/internal/domain"
	"pixav/internal/domain/ports"
)

// Ingester converts discovery-queue payloads into pending download tasks.
type Ingester struct {
	crawlQueue        ports.Queue
	taskRepo          ports.TaskRepository
	videoRepo         ports.VideoRepository
	downloadQueueName string
	logger            *slog.Logger
}

func New(crawlQueue ports.Queue, taskRepo ports.TaskRepository, videoRepo ports.VideoRepository,
	downloadQueueName string, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		crawlQueue:        crawlQueue,
		taskRepo:          taskRepo,
		videoRepo:         videoRepo,
		downloadQueueName: downloadQueueName,
		logger:            logger,
	}
}

// Drain pops up to batchSize discovery payloads and inserts a pending
// task for each one that doesn't already have an open task. Returns the
// number of tasks created.
func (i *Ingester) Drain(ctx context.Context, batchSize int) (int, error) {
	created := 0
	for n := 0; n < batchSize; n++ {
		payload, ok, err := i.crawlQueue.Pop(ctx, 0)
		if err != nil {
			return created, err
		}
		if !ok {
			break
		}
		createdOne, err := i.ingestOne(ctx, payload)
		if err != nil {
			i.logger.Error("failed to ingest discovery payload", slog.Any("error", err))
			continue
		}
		if createdOne {
			created++
		}
	}
	return created, nil
}

// ingestOne reports whether a pending task was created. A false, nil
// return means the payload was deliberately skipped (invalid id, missing
// video, or an already-open task) rather than ingested.
func (i *Ingester) ingestOne(ctx context.Context, payload map[string]any) (bool, error) {
	rawID, _ := payload["video_id"].(string)
	videoID, err := uuid.Parse(rawID)
	if err != nil {
		i.logger.Warn("discovery payload has invalid video_id", slog.String("video_id", rawID))
		return false, nil
	}

	video, err := i.videoRepo.FindByID(ctx, domain.VideoID(videoID.String()))
	if err != nil {
		// Missing video: skip, matching the original's "video not found, skipping".
		return false, nil
	}

	open, err := i.taskRepo.HasOpenTask(ctx, video.ID)
	if err != nil {
		return false, err
	}
	if open {
		return false, nil
	}

	_, err = i.taskRepo.Insert(ctx, domain.Task{
		ID:         domain.TaskID(uuid.NewString()),
		VideoID:    video.ID,
		State:      domain.TaskPending,
		QueueName:  i.downloadQueueName,
		MaxRetries: 10,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
