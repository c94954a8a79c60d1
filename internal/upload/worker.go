package upload

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"pixav/internal/domain"
	"pixav/internal/domain/ports"
)

// nonRetryableMarkers classifies a failure as permanent by message
// substring. This is the heuristic spec calls out for replacement by an
// explicit error-kind tag; it stays substring-based here deliberately.
var nonRetryableMarkers = []string{
	"local_path is required",
}

func classifyRetryable(errMessage string) bool {
	for _, marker := range nonRetryableMarkers {
		if strings.Contains(errMessage, marker) {
			return false
		}
	}
	return true
}

// WorkerConfig holds the upload worker loop's tunables.
type WorkerConfig struct {
	UploadQueueName   string
	DLQName           string
	ReplaySetName     string
	PauseKey          string
	LockKeyPrefix     string
	LockTTL           time.Duration
	PollTimeout       time.Duration
	PauseSleep        time.Duration
	ContentionSleep   time.Duration
	DLQReplayMax      int
	DLQBackoffSeconds []int
}

func (c *WorkerConfig) applyDefaults() {
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 5 * time.Second
	}
	if c.PauseSleep <= 0 {
		c.PauseSleep = 2 * time.Second
	}
	if c.ContentionSleep <= 0 {
		c.ContentionSleep = 200 * time.Millisecond
	}
	if c.LockKeyPrefix == "" {
		c.LockKeyPrefix = "pixav:upload:lock:"
	}
	if len(c.DLQBackoffSeconds) == 0 {
		c.DLQBackoffSeconds = []int{30, 120, 600}
	}
}

func (c *WorkerConfig) backoffFor(dlqReplays int) time.Duration {
	if dlqReplays < 0 || dlqReplays >= len(c.DLQBackoffSeconds) {
		return time.Duration(c.DLQBackoffSeconds[len(c.DLQBackoffSeconds)-1]) * time.Second
	}
	return time.Duration(c.DLQBackoffSeconds[dlqReplays]) * time.Second
}

// Worker runs one cooperative consumer of the upload queue implementing
// §4.7's pause gate, DLQ replay drain, single-flight lock, and retry/DLQ
// propagation.
type Worker struct {
	broker    ports.Broker
	taskRepo  ports.TaskRepository
	videoRepo ports.VideoRepository
	executor  ports.UploadExecutor
	cfg       WorkerConfig
	logger    *slog.Logger
}

func NewWorker(broker ports.Broker, taskRepo ports.TaskRepository, videoRepo ports.VideoRepository,
	executor ports.UploadExecutor, cfg WorkerConfig, logger *slog.Logger) *Worker {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{broker: broker, taskRepo: taskRepo, videoRepo: videoRepo, executor: executor, cfg: cfg, logger: logger}
}

// Run loops RunOnce until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("upload worker iteration failed", slog.String("error", err.Error()))
		}
	}
}

// RunOnce drives one iteration of the loop and reports whether a payload
// was handled (useful for tests; production callers just loop Run).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	paused, err := w.broker.IsPaused(ctx, w.cfg.PauseKey)
	if err != nil {
		return false, err
	}
	if paused {
		sleepCtx(ctx, w.cfg.PauseSleep)
		return false, nil
	}

	if err := w.drainDueReplays(ctx); err != nil {
		w.logger.Error("dlq replay drain failed", slog.String("error", err.Error()))
	}

	queue := w.broker.Queue(w.cfg.UploadQueueName)
	payload, ok, err := queue.Pop(ctx, w.cfg.PollTimeout)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	task := taskFromPayload(payload)
	lockKey := w.cfg.LockKeyPrefix + string(task.ID)
	token := uuid.NewString()

	locked, err := w.broker.TryLock(ctx, lockKey, token, w.cfg.LockTTL)
	if err != nil {
		return false, err
	}
	if !locked {
		if pushErr := queue.Push(ctx, payload); pushErr != nil {
			w.logger.Error("re-push on lock contention failed", slog.String("error", pushErr.Error()))
		}
		sleepCtx(ctx, w.cfg.ContentionSleep)
		return false, nil
	}
	defer func() {
		if _, err := w.broker.Unlock(context.WithoutCancel(ctx), lockKey, token); err != nil {
			w.logger.Error("unlock failed", slog.String("key", lockKey), slog.String("error", err.Error()))
		}
	}()

	w.hydrateLocalPath(ctx, &task)

	result, procErr := w.executor.ProcessTask(ctx, task)
	w.persistResult(ctx, payload, task, result, procErr)
	return true, nil
}

func (w *Worker) hydrateLocalPath(ctx context.Context, task *domain.Task) {
	if task.LocalPath != "" {
		return
	}
	video, err := w.videoRepo.FindByID(ctx, task.VideoID)
	if err != nil {
		return
	}
	task.LocalPath = video.LocalPath
}

// persistResult writes the propagation rules in §7: retry-then-requeue on
// a transient failure within budget, else fail and DLQ.
func (w *Worker) persistResult(ctx context.Context, payload map[string]any, task, result domain.Task, procErr error) {
	if procErr == nil && result.State == domain.TaskComplete {
		if err := w.taskRepo.UpdateState(ctx, task.ID, domain.TaskComplete, ""); err != nil {
			w.logger.Error("persist complete failed", slog.String("error", err.Error()))
		}
		if result.ShareURL != "" {
			if err := w.taskRepo.SetShareURL(ctx, task.ID, result.ShareURL); err != nil {
				w.logger.Error("persist share url failed", slog.String("error", err.Error()))
			}
		}
		return
	}

	errMessage := result.ErrorMessage
	if errMessage == "" && procErr != nil {
		errMessage = procErr.Error()
	}

	if classifyRetryable(errMessage) && task.Retries+1 <= task.MaxRetries {
		w.retryTask(ctx, payload, task, errMessage)
		return
	}
	w.failAndDLQ(ctx, payload, task, errMessage)
}

func (w *Worker) retryTask(ctx context.Context, payload map[string]any, task domain.Task, errMessage string) {
	retries, err := w.taskRepo.IncrementRetries(ctx, task.ID)
	if err != nil {
		w.logger.Error("increment retries failed", slog.String("error", err.Error()))
		retries = task.Retries + 1
	}
	if err := w.taskRepo.UpdateState(ctx, task.ID, domain.TaskPending, errMessage); err != nil {
		w.logger.Error("persist pending retry failed", slog.String("error", err.Error()))
	}
	if err := w.videoRepo.UpdateStatus(ctx, task.VideoID, domain.VideoDownloaded); err != nil {
		w.logger.Error("reset video status failed", slog.String("error", err.Error()))
	}

	retryPayload := copyPayload(payload)
	retryPayload["retries"] = retries
	if err := w.broker.Queue(task.QueueName).Push(ctx, retryPayload); err != nil {
		w.logger.Error("re-push retry payload failed", slog.String("error", err.Error()))
	}
}

func (w *Worker) failAndDLQ(ctx context.Context, payload map[string]any, task domain.Task, errMessage string) {
	if err := w.taskRepo.UpdateState(ctx, task.ID, domain.TaskFailed, errMessage); err != nil {
		w.logger.Error("persist failed state failed", slog.String("error", err.Error()))
	}
	if err := w.videoRepo.UpdateStatus(ctx, task.VideoID, domain.VideoFailed); err != nil {
		w.logger.Error("mark video failed failed", slog.String("error", err.Error()))
	}

	dlqPayload := copyPayload(payload)
	dlqPayload["stage"] = "upload"
	dlqPayload["attempts"] = task.Retries + 1
	dlqPayload["error_message"] = errMessage
	dlqPayload["failed_at"] = time.Now().UTC().Format(time.RFC3339)
	dlqPayload["dlq_replays"] = 0

	if err := w.broker.Queue(w.cfg.DLQName).Push(ctx, dlqPayload); err != nil {
		w.logger.Error("push to dlq failed", slog.String("error", err.Error()))
	}

	if classifyRetryable(errMessage) && w.cfg.DLQReplayMax > 0 {
		readyAt := time.Now().Add(w.cfg.backoffFor(0))
		if err := w.broker.ScheduleReplay(ctx, w.cfg.ReplaySetName, dlqPayload, readyAt); err != nil {
			w.logger.Error("schedule dlq replay failed", slog.String("error", err.Error()))
		}
	}
}

func (w *Worker) drainDueReplays(ctx context.Context) error {
	due, err := w.broker.DrainDueReplays(ctx, w.cfg.ReplaySetName, time.Now())
	if err != nil {
		return err
	}
	for _, payload := range due {
		delete(payload, "stage")
		delete(payload, "attempts")
		delete(payload, "error_message")
		delete(payload, "failed_at")
		delete(payload, "dlq_replays")
		payload["retries"] = 0

		taskID := stringFromPayload(payload, "task_id")
		if taskID != "" {
			if err := w.taskRepo.UpdateState(ctx, domain.TaskID(taskID), domain.TaskPending, ""); err != nil {
				w.logger.Error("reset task on replay failed", slog.String("error", err.Error()))
			}
		}
		if err := w.broker.Queue(w.cfg.UploadQueueName).Push(ctx, payload); err != nil {
			w.logger.Error("re-push replayed payload failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func taskFromPayload(payload map[string]any) domain.Task {
	task := domain.Task{
		ID:         domain.TaskID(stringFromPayload(payload, "task_id")),
		VideoID:    domain.VideoID(stringFromPayload(payload, "video_id")),
		QueueName:  stringFromPayload(payload, "queue_name"),
		LocalPath:  stringFromPayload(payload, "local_path"),
		Retries:    intFromPayload(payload, "retries"),
		MaxRetries: intFromPayload(payload, "max_retries"),
	}
	if acctID := stringFromPayload(payload, "account_id"); acctID != "" {
		id := domain.AccountID(acctID)
		task.AccountID = &id
	}
	return task
}

func stringFromPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func intFromPayload(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func copyPayload(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
