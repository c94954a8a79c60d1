package orchestrator

import (
	"context"

	"pixav/internal/domain"
	"pixav/internal/domain/ports"
)

// QueueDispatcher dispatches tasks by looking them up and pushing a
// payload built from their current row, grounded on the original
// RedisTaskDispatcher.
type QueueDispatcher struct {
	taskRepo ports.TaskRepository
	queues   map[string]ports.Queue
}

func NewQueueDispatcher(taskRepo ports.TaskRepository, queues map[string]ports.Queue) *QueueDispatcher {
	return &QueueDispatcher{taskRepo: taskRepo, queues: queues}
}

var _ ports.TaskDispatcher = (*QueueDispatcher)(nil)

func (d *QueueDispatcher) Dispatch(ctx context.Context, taskID domain.TaskID, queueName string) error {
	task, err := d.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return err
	}
	q, ok := d.queues[queueName]
	if !ok {
		return nil
	}
	payload := map[string]any{
		"task_id":     string(task.ID),
		"video_id":    string(task.VideoID),
		"queue_name":  queueName,
		"retries":     task.Retries,
		"max_retries": task.MaxRetries,
	}
	if task.AccountID != nil {
		payload["account_id"] = string(*task.AccountID)
	}
	return q.Push(ctx, payload)
}

func (d *QueueDispatcher) DispatchBatch(ctx context.Context, taskIDs []domain.TaskID, queueName string) error {
	for _, id := range taskIDs {
		if err := d.Dispatch(ctx, id, queueName); err != nil {
			return err
		}
	}
	return nil
}
