// Package ports defines the interfaces the pipeline's stages depend on,
// so each stage can be exercised against a hand-written fake in tests and
// a concrete adapter in production.
package ports

import (
	"context"
	"time"

	"pixav/internal/domain"
)

// VideoRepository persists Video rows.
type VideoRepository interface {
	FindByID(ctx context.Context, id domain.VideoID) (domain.Video, error)
	FindByMagnet(ctx context.Context, magnetURI string) (domain.Video, error)
	Insert(ctx context.Context, v domain.Video) (domain.Video, error)
	UpdateStatus(ctx context.Context, id domain.VideoID, status domain.VideoStatus) error
	UpdateLocalPath(ctx context.Context, id domain.VideoID, localPath string) error
	UpdateMetadata(ctx context.Context, id domain.VideoID, metadata []byte) error
	UpdateShareURL(ctx context.Context, id domain.VideoID, shareURL string) error
	UpdateCDNURL(ctx context.Context, id domain.VideoID, cdnURL string, status domain.VideoStatus) error
	CountByStatus(ctx context.Context, status domain.VideoStatus) (int, error)
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// TaskRepository persists Task rows and exposes the queries the
// orchestrator and ingester need.
type TaskRepository interface {
	FindByID(ctx context.Context, id domain.TaskID) (domain.Task, error)
	Insert(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateState(ctx context.Context, id domain.TaskID, state domain.TaskState, errMsg string) error
	AssignAccount(ctx context.Context, id domain.TaskID, accountID domain.AccountID) error
	SetShareURL(ctx context.Context, id domain.TaskID, shareURL string) error
	SetLocalPath(ctx context.Context, id domain.TaskID, localPath string) error
	UpdateQueueName(ctx context.Context, id domain.TaskID, queueName string) error
	IncrementRetries(ctx context.Context, id domain.TaskID) (int, error)
	CountByState(ctx context.Context, state domain.TaskState) (int, error)
	ListPending(ctx context.Context, limit int) ([]domain.Task, error)
	HasOpenTask(ctx context.Context, videoID domain.VideoID) (bool, error)
	ReapOrphans(ctx context.Context, states []domain.TaskState, olderThan time.Duration) (int, error)
}

// AccountScheduler hands out an account lease with at-most-one-worker
// fairness, backed by row-level locking in the store.
type AccountScheduler interface {
	NextAccount(ctx context.Context) (domain.AccountID, error)
	MarkUsed(ctx context.Context, id domain.AccountID) error
	ApplyUploadUsage(ctx context.Context, id domain.AccountID, bytes int64) error
	ActiveCount(ctx context.Context) (int, error)
}

// Queue is the minimal push/pop/length contract every pipeline queue
// implements, whatever its backing transport.
type Queue interface {
	Push(ctx context.Context, payload map[string]any) error
	Pop(ctx context.Context, timeout time.Duration) (map[string]any, bool, error)
	Length(ctx context.Context) (int64, error)
	Name() string
}

// BackpressureMonitor reports whether a named queue is safe to dispatch
// more work into.
type BackpressureMonitor interface {
	CheckPressure(ctx context.Context, queueName string) (bool, error)
	AllPressures(ctx context.Context) (map[string]QueuePressure, error)
}

// QueuePressure is one queue's depth reading against its thresholds.
type QueuePressure struct {
	Depth    int64
	OK       bool
	Warn     bool
	Critical bool
}

// TaskDispatcher routes a task onto a named queue, stamping the queue
// payload with the fields a downstream worker needs.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, taskID domain.TaskID, queueName string) error
	DispatchBatch(ctx context.Context, taskIDs []domain.TaskID, queueName string) error
}

// TorrentClient drives a BitTorrent session to completion for one magnet.
type TorrentClient interface {
	AddMagnet(ctx context.Context, magnetURI string) (handle string, err error)
	WaitComplete(ctx context.Context, handle string, timeout time.Duration) (localPath string, err error)
	DeleteTorrent(ctx context.Context, handle string, deleteFiles bool) error
}

// Remuxer stream-copies a downloaded file into a playback-friendly
// container without re-encoding.
type Remuxer interface {
	Remux(ctx context.Context, inputPath, outputPath string) error
}

// MetadataScraper best-effort enriches a Video with scraped metadata.
type MetadataScraper interface {
	Scrape(ctx context.Context, title string) ([]byte, error)
}

// RuntimeHandle identifies a short-lived isolated runtime created for one
// upload task.
type RuntimeHandle string

// RuntimeManager creates and tears down the isolated runtime an upload
// task executes inside.
type RuntimeManager interface {
	Create(ctx context.Context, taskID domain.TaskID) (RuntimeHandle, error)
	WaitReady(ctx context.Context, handle RuntimeHandle, timeout time.Duration) error
	Destroy(ctx context.Context, handle RuntimeHandle) error
}

// FileUploader pushes a local file into the runtime and triggers the
// remote ingestion that produces a shareable copy.
type FileUploader interface {
	PushFile(ctx context.Context, handle RuntimeHandle, localPath string) (remotePath string, err error)
	TriggerUpload(ctx context.Context, handle RuntimeHandle, remotePath string) error
}

// UploadVerifier waits for and validates the share URL an upload produces.
type UploadVerifier interface {
	WaitForShareURL(ctx context.Context, handle RuntimeHandle, timeout time.Duration) (string, error)
	ValidateShareURL(ctx context.Context, shareURL string) (bool, error)
}

// UploadExecutor is the common surface both the container-backed and
// local-mode upload services satisfy, so the worker loop can treat either
// uniformly.
type UploadExecutor interface {
	ProcessTask(ctx context.Context, task domain.Task) (domain.Task, error)
}

// Broker extends Queue-construction with the cluster-wide coordination
// primitives the upload worker loop needs: a pause gate, a single-flight
// lock, and a delayed-replay set for the DLQ.
type Broker interface {
	Queue(name string) Queue
	IsPaused(ctx context.Context, key string) (bool, error)
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) (bool, error)
	ScheduleReplay(ctx context.Context, setName string, payload map[string]any, readyAt time.Time) error
	DrainDueReplays(ctx context.Context, setName string, now time.Time) ([]map[string]any, error)
}

// CDNCache caches the resolved CDN URL for a video, keyed by video id.
type CDNCache interface {
	Get(ctx context.Context, videoID domain.VideoID) (string, bool, error)
	Set(ctx context.Context, videoID domain.VideoID, cdnURL string, ttl time.Duration) error
	Delete(ctx context.Context, videoID domain.VideoID) error
}

// ShareResolver follows a share URL to its CDN-backed media URL.
type ShareResolver interface {
	Resolve(ctx context.Context, shareURL string) (cdnURL string, err error)
}
