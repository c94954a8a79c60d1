package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pixav/internal/domain"
	"pixav/internal/domain/errs"
)

// TaskStore persists domain.Task rows.
type TaskStore struct {
	pool *pgxpool.Pool
}

func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

const taskColumns = `id, video_id, account_id, state, queue_name, local_path, share_url, retries, max_retries, error_message, created_at, updated_at`

type taskRow struct {
	ID           string
	VideoID      string
	AccountID    *string
	State        string
	QueueName    string
	LocalPath    *string
	ShareURL     *string
	Retries      int
	MaxRetries   int
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func fromTaskRow(r taskRow) domain.Task {
	t := domain.Task{
		ID:         domain.TaskID(r.ID),
		VideoID:    domain.VideoID(r.VideoID),
		State:      domain.TaskState(r.State),
		QueueName:  r.QueueName,
		Retries:    r.Retries,
		MaxRetries: r.MaxRetries,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.AccountID != nil {
		id := domain.AccountID(*r.AccountID)
		t.AccountID = &id
	}
	if r.LocalPath != nil {
		t.LocalPath = *r.LocalPath
	}
	if r.ShareURL != nil {
		t.ShareURL = *r.ShareURL
	}
	if r.ErrorMessage != nil {
		t.ErrorMessage = *r.ErrorMessage
	}
	return t
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var r taskRow
	err := row.Scan(&r.ID, &r.VideoID, &r.AccountID, &r.State, &r.QueueName, &r.LocalPath,
		&r.ShareURL, &r.Retries, &r.MaxRetries, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Task{}, errs.ErrNotFound
	}
	if err != nil {
		return domain.Task{}, errs.WrapStore("scan task", err)
	}
	return fromTaskRow(r), nil
}

func (s *TaskStore) FindByID(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, string(id))
	return scanTask(row)
}

func (s *TaskStore) Insert(ctx context.Context, t domain.Task) (domain.Task, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, video_id, state, queue_name, retries, max_retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+taskColumns,
		string(t.ID), string(t.VideoID), string(t.State), t.QueueName, t.Retries, t.MaxRetries)
	return scanTask(row)
}

func (s *TaskStore) UpdateState(ctx context.Context, id domain.TaskID, state domain.TaskState, errMsg string) error {
	var errArg *string
	if errMsg != "" {
		errArg = &errMsg
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE tasks SET state = $2, error_message = $3, updated_at = now() WHERE id = $1`,
		string(id), string(state), errArg)
	if err != nil {
		return errs.WrapStore("update task state", err)
	}
	return nil
}

func (s *TaskStore) AssignAccount(ctx context.Context, id domain.TaskID, accountID domain.AccountID) error {
	_, err := s.pool.Exec(ctx, `UPDATE tasks SET account_id = $2, updated_at = now() WHERE id = $1`,
		string(id), string(accountID))
	if err != nil {
		return errs.WrapStore("assign account", err)
	}
	return nil
}

func (s *TaskStore) SetShareURL(ctx context.Context, id domain.TaskID, shareURL string) error {
	_, err := s.pool.Exec(ctx, `UPDATE tasks SET share_url = $2, updated_at = now() WHERE id = $1`, string(id), shareURL)
	if err != nil {
		return errs.WrapStore("set task share_url", err)
	}
	return nil
}

func (s *TaskStore) SetLocalPath(ctx context.Context, id domain.TaskID, localPath string) error {
	_, err := s.pool.Exec(ctx, `UPDATE tasks SET local_path = $2, updated_at = now() WHERE id = $1`, string(id), localPath)
	if err != nil {
		return errs.WrapStore("set task local_path", err)
	}
	return nil
}

func (s *TaskStore) UpdateQueueName(ctx context.Context, id domain.TaskID, queueName string) error {
	_, err := s.pool.Exec(ctx, `UPDATE tasks SET queue_name = $2, updated_at = now() WHERE id = $1`, string(id), queueName)
	if err != nil {
		return errs.WrapStore("update task queue_name", err)
	}
	return nil
}

func (s *TaskStore) IncrementRetries(ctx context.Context, id domain.TaskID) (int, error) {
	var retries int
	err := s.pool.QueryRow(ctx, `
		UPDATE tasks SET retries = retries + 1, updated_at = now() WHERE id = $1 RETURNING retries`,
		string(id)).Scan(&retries)
	if err != nil {
		return 0, errs.WrapStore("increment task retries", err)
	}
	return retries, nil
}

func (s *TaskStore) CountByState(ctx context.Context, state domain.TaskState) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM tasks WHERE state = $1`, string(state)).Scan(&n)
	if err != nil {
		return 0, errs.WrapStore("count tasks by state", err)
	}
	return n, nil
}

// ListPending returns up to limit pending tasks, strictly FIFO by
// created_at, matching the orchestrator's list_pending contract.
func (s *TaskStore) ListPending(ctx context.Context, limit int) ([]domain.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE state = $1 ORDER BY created_at ASC LIMIT $2`,
		string(domain.TaskPending), limit)
	if err != nil {
		return nil, errs.WrapStore("list pending tasks", err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// HasOpenTask reports whether video_id has any task in a non-terminal state.
func (s *TaskStore) HasOpenTask(ctx context.Context, videoID domain.VideoID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM tasks WHERE video_id = $1 AND state = ANY($2))`,
		string(videoID), stateStrings(domain.TransientTaskStates)).Scan(&exists)
	if err != nil {
		return false, errs.WrapStore("check open task", err)
	}
	return exists, nil
}

// ReapOrphans marks as failed any task in one of states whose updated_at
// predates olderThan, mirroring the original OrphanTaskCleaner.cleanup.
func (s *TaskStore) ReapOrphans(ctx context.Context, states []domain.TaskState, olderThan time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks SET state = $1, error_message = 'orphan cleanup: task idle past max age', updated_at = now()
		WHERE state = ANY($2) AND updated_at < now() - $3::interval`,
		string(domain.TaskFailed), stateStrings(states), olderThan.String())
	if err != nil {
		return 0, errs.WrapStore("reap orphan tasks", err)
	}
	return int(tag.RowsAffected()), nil
}

func stateStrings(states []domain.TaskState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
