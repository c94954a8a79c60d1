package orchestrator

import (
	"context"
	"testing"
	"time"

	"pixav/internal/domain"
	"pixav/internal/domain/errs"
	"pixav/internal/domain/ports"
)

type fakeScheduler struct {
	nextErr     error
	nextID      domain.AccountID
	markedUsed  []domain.AccountID
	activeCount int
}

func (f *fakeScheduler) NextAccount(ctx context.Context) (domain.AccountID, error) {
	if f.nextErr != nil {
		return "", f.nextErr
	}
	return f.nextID, nil
}
func (f *fakeScheduler) MarkUsed(ctx context.Context, id domain.AccountID) error {
	f.markedUsed = append(f.markedUsed, id)
	return nil
}
func (f *fakeScheduler) ApplyUploadUsage(ctx context.Context, id domain.AccountID, bytes int64) error {
	return nil
}
func (f *fakeScheduler) ActiveCount(ctx context.Context) (int, error) { return f.activeCount, nil }

type fakeDispatcher struct {
	dispatched []domain.TaskID
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, taskID domain.TaskID, queueName string) error {
	f.dispatched = append(f.dispatched, taskID)
	return nil
}
func (f *fakeDispatcher) DispatchBatch(ctx context.Context, taskIDs []domain.TaskID, queueName string) error {
	f.dispatched = append(f.dispatched, taskIDs...)
	return nil
}

type fakeMonitor struct {
	pressureOK bool
}

func (f *fakeMonitor) CheckPressure(ctx context.Context, queueName string) (bool, error) {
	return f.pressureOK, nil
}
func (f *fakeMonitor) AllPressures(ctx context.Context) (map[string]ports.QueuePressure, error) {
	return nil, nil
}

type fakeTaskRepo struct {
	pending       []domain.Task
	updatedStates map[domain.TaskID]domain.TaskState
	assignedAcct  map[domain.TaskID]domain.AccountID
	orphansReaped int
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{
		updatedStates: make(map[domain.TaskID]domain.TaskState),
		assignedAcct:  make(map[domain.TaskID]domain.AccountID),
	}
}

func (f *fakeTaskRepo) FindByID(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	return domain.Task{}, nil
}
func (f *fakeTaskRepo) Insert(ctx context.Context, t domain.Task) (domain.Task, error) { return t, nil }
func (f *fakeTaskRepo) UpdateState(ctx context.Context, id domain.TaskID, state domain.TaskState, errMsg string) error {
	f.updatedStates[id] = state
	return nil
}
func (f *fakeTaskRepo) AssignAccount(ctx context.Context, id domain.TaskID, accountID domain.AccountID) error {
	f.assignedAcct[id] = accountID
	return nil
}
func (f *fakeTaskRepo) SetShareURL(ctx context.Context, id domain.TaskID, shareURL string) error { return nil }
func (f *fakeTaskRepo) SetLocalPath(ctx context.Context, id domain.TaskID, localPath string) error {
	return nil
}
func (f *fakeTaskRepo) UpdateQueueName(ctx context.Context, id domain.TaskID, queueName string) error {
	return nil
}
func (f *fakeTaskRepo) IncrementRetries(ctx context.Context, id domain.TaskID) (int, error) {
	return 0, nil
}
func (f *fakeTaskRepo) CountByState(ctx context.Context, state domain.TaskState) (int, error) {
	if state == domain.TaskPending {
		return len(f.pending), nil
	}
	return 0, nil
}
func (f *fakeTaskRepo) ListPending(ctx context.Context, limit int) ([]domain.Task, error) {
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}
func (f *fakeTaskRepo) HasOpenTask(ctx context.Context, videoID domain.VideoID) (bool, error) {
	return false, nil
}
func (f *fakeTaskRepo) ReapOrphans(ctx context.Context, states []domain.TaskState, olderThan time.Duration) (int, error) {
	return f.orphansReaped, nil
}

type fakeVideoRepo struct {
	expiredCount int
}

func (f *fakeVideoRepo) FindByID(ctx context.Context, id domain.VideoID) (domain.Video, error) {
	return domain.Video{}, nil
}
func (f *fakeVideoRepo) FindByMagnet(ctx context.Context, magnetURI string) (domain.Video, error) {
	return domain.Video{}, nil
}
func (f *fakeVideoRepo) Insert(ctx context.Context, v domain.Video) (domain.Video, error) { return v, nil }
func (f *fakeVideoRepo) UpdateStatus(ctx context.Context, id domain.VideoID, status domain.VideoStatus) error {
	return nil
}
func (f *fakeVideoRepo) UpdateLocalPath(ctx context.Context, id domain.VideoID, localPath string) error {
	return nil
}
func (f *fakeVideoRepo) UpdateMetadata(ctx context.Context, id domain.VideoID, metadata []byte) error {
	return nil
}
func (f *fakeVideoRepo) UpdateShareURL(ctx context.Context, id domain.VideoID, shareURL string) error {
	return nil
}
func (f *fakeVideoRepo) UpdateCDNURL(ctx context.Context, id domain.VideoID, cdnURL string, status domain.VideoStatus) error {
	return nil
}
func (f *fakeVideoRepo) CountByStatus(ctx context.Context, status domain.VideoStatus) (int, error) {
	return 0, nil
}
func (f *fakeVideoRepo) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	return f.expiredCount, nil
}

func TestOrchestrator_TickDispatchesDownloadBoundTask(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	taskRepo.pending = []domain.Task{{ID: "t1", VideoID: "v1", QueueName: "download", State: domain.TaskPending}}
	dispatcher := &fakeDispatcher{}
	monitor := &fakeMonitor{pressureOK: true}
	sched := &fakeScheduler{}
	o := New(sched, dispatcher, monitor, taskRepo, &fakeVideoRepo{}, Config{UploadQueueName: "upload"}, nil)

	stats, err := o.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Dispatched != 1 {
		t.Fatalf("expected 1 dispatched, got %d", stats.Dispatched)
	}
	if taskRepo.updatedStates["t1"] != domain.TaskDownloading {
		t.Fatalf("expected task moved to downloading, got %v", taskRepo.updatedStates["t1"])
	}
}

func TestOrchestrator_TickSkipsOnCriticalBackpressure(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	taskRepo.pending = []domain.Task{{ID: "t1", VideoID: "v1", QueueName: "download"}}
	o := New(&fakeScheduler{}, &fakeDispatcher{}, &fakeMonitor{pressureOK: false}, taskRepo, &fakeVideoRepo{}, Config{}, nil)

	stats, err := o.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.SkippedPressure != 1 || stats.Dispatched != 0 {
		t.Fatalf("expected the task skipped under pressure, got %+v", stats)
	}
}

func TestOrchestrator_NoAccountPolicyWaitLeavesTaskPending(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	taskRepo.pending = []domain.Task{{ID: "t1", VideoID: "v1", QueueName: "upload"}}
	sched := &fakeScheduler{nextErr: errs.ErrNoActiveAccounts}
	o := New(sched, &fakeDispatcher{}, &fakeMonitor{pressureOK: true}, taskRepo, &fakeVideoRepo{},
		Config{UploadQueueName: "upload", NoAccountPolicy: PolicyWait}, nil)

	stats, err := o.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.WaitingNoAccount != 1 {
		t.Fatalf("expected waiting_no_account=1, got %+v", stats)
	}
	if _, ok := taskRepo.updatedStates["t1"]; ok {
		t.Fatalf("task should remain untouched under wait policy")
	}
}

func TestOrchestrator_NoAccountPolicyFailTransitionsTask(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	taskRepo.pending = []domain.Task{{ID: "t1", VideoID: "v1", QueueName: "upload"}}
	sched := &fakeScheduler{nextErr: errs.ErrNoActiveAccounts}
	o := New(sched, &fakeDispatcher{}, &fakeMonitor{pressureOK: true}, taskRepo, &fakeVideoRepo{},
		Config{UploadQueueName: "upload", NoAccountPolicy: PolicyFail}, nil)

	stats, err := o.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.FailedNoAccount != 1 {
		t.Fatalf("expected failed_no_account=1, got %+v", stats)
	}
	if taskRepo.updatedStates["t1"] != domain.TaskFailed {
		t.Fatalf("expected task failed, got %v", taskRepo.updatedStates["t1"])
	}
}

func TestOrchestrator_TickSkipsWhenNoPendingTasks(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	o := New(&fakeScheduler{}, &fakeDispatcher{}, &fakeMonitor{pressureOK: true}, taskRepo, &fakeVideoRepo{}, Config{}, nil)

	stats, err := o.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Dispatched != 0 {
		t.Fatalf("expected no dispatch with empty pending set, got %+v", stats)
	}
}
