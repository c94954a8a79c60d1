package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pixav/internal/domain"
	"pixav/internal/domain/ports"
)

type fakeRuntime struct {
	created   []domain.TaskID
	destroyed []ports.RuntimeHandle
	createErr error
	readyErr  error
	handle    ports.RuntimeHandle
}

func (f *fakeRuntime) Create(ctx context.Context, taskID domain.TaskID) (ports.RuntimeHandle, error) {
	f.created = append(f.created, taskID)
	if f.createErr != nil {
		return "", f.createErr
	}
	if f.handle == "" {
		f.handle = "container-1"
	}
	return f.handle, nil
}
func (f *fakeRuntime) WaitReady(ctx context.Context, handle ports.RuntimeHandle, timeout time.Duration) error {
	return f.readyErr
}
func (f *fakeRuntime) Destroy(ctx context.Context, handle ports.RuntimeHandle) error {
	f.destroyed = append(f.destroyed, handle)
	return nil
}

type fakeUploader struct {
	pushed    []string
	triggered []string
	pushErr   error
}

func (f *fakeUploader) PushFile(ctx context.Context, handle ports.RuntimeHandle, localPath string) (string, error) {
	if f.pushErr != nil {
		return "", f.pushErr
	}
	f.pushed = append(f.pushed, localPath)
	return "/remote/" + filepath.Base(localPath), nil
}
func (f *fakeUploader) TriggerUpload(ctx context.Context, handle ports.RuntimeHandle, remotePath string) error {
	f.triggered = append(f.triggered, remotePath)
	return nil
}

type fakeVerifier struct {
	shareURL string
	valid    bool
	waitErr  error
}

func (f *fakeVerifier) WaitForShareURL(ctx context.Context, handle ports.RuntimeHandle, timeout time.Duration) (string, error) {
	if f.waitErr != nil {
		return "", f.waitErr
	}
	return f.shareURL, nil
}
func (f *fakeVerifier) ValidateShareURL(ctx context.Context, shareURL string) (bool, error) {
	return f.valid, nil
}

type fakeVideoRepo struct {
	shareURLs map[domain.VideoID]string
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
	if f.shareURLs == nil {
		f.shareURLs = map[domain.VideoID]string{}
	}
	f.shareURLs[id] = shareURL
	return nil
}
func (f *fakeVideoRepo) UpdateCDNURL(ctx context.Context, id domain.VideoID, cdnURL string, status domain.VideoStatus) error {
	return nil
}
func (f *fakeVideoRepo) CountByStatus(ctx context.Context, status domain.VideoStatus) (int, error) {
	return 0, nil
}
func (f *fakeVideoRepo) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

type fakeScheduler struct {
	usageCalls map[domain.AccountID]int64
}

func (f *fakeScheduler) NextAccount(ctx context.Context) (domain.AccountID, error) { return "", nil }
func (f *fakeScheduler) MarkUsed(ctx context.Context, id domain.AccountID) error   { return nil }
func (f *fakeScheduler) ApplyUploadUsage(ctx context.Context, id domain.AccountID, bytes int64) error {
	if f.usageCalls == nil {
		f.usageCalls = map[domain.AccountID]int64{}
	}
	f.usageCalls[id] += bytes
	return nil
}
func (f *fakeScheduler) ActiveCount(ctx context.Context) (int, error) { return 0, nil }

func TestService_ProcessTask_HappyPath(t *testing.T) {
	dir := t.TempDir()
	localFile := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(localFile, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	runtime := &fakeRuntime{}
	uploader := &fakeUploader{}
	verifier := &fakeVerifier{shareURL: "https://share/x", valid: true}
	videoRepo := &fakeVideoRepo{}
	scheduler := &fakeScheduler{}
	accountID := domain.AccountID("acct-1")

	svc := New(runtime, uploader, verifier, videoRepo, scheduler, Config{})
	task, err := svc.ProcessTask(context.Background(), domain.Task{
		ID: "t1", VideoID: "v1", AccountID: &accountID, LocalPath: localFile,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.State != domain.TaskComplete || task.ShareURL != "https://share/x" {
		t.Fatalf("expected task complete with share url, got %+v", task)
	}
	if videoRepo.shareURLs["v1"] != "https://share/x" {
		t.Fatalf("expected share url persisted on video")
	}
	if scheduler.usageCalls["acct-1"] != 10 {
		t.Fatalf("expected usage bumped by file size, got %d", scheduler.usageCalls["acct-1"])
	}
	if len(runtime.destroyed) != 1 {
		t.Fatalf("expected the runtime torn down exactly once, got %d", len(runtime.destroyed))
	}
}

func TestService_ProcessTask_MissingLocalPathIsNonRetryable(t *testing.T) {
	svc := New(&fakeRuntime{}, &fakeUploader{}, &fakeVerifier{}, &fakeVideoRepo{}, &fakeScheduler{}, Config{})
	task, err := svc.ProcessTask(context.Background(), domain.Task{ID: "t1", VideoID: "v1"})
	if err == nil {
		t.Fatal("expected an error for a task missing local_path")
	}
	if task.State != domain.TaskFailed {
		t.Fatalf("expected task failed, got %v", task.State)
	}
}

func TestService_ProcessTask_TeardownRunsOnFailure(t *testing.T) {
	dir := t.TempDir()
	localFile := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(localFile, []byte("data"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	runtime := &fakeRuntime{readyErr: context.DeadlineExceeded}
	svc := New(runtime, &fakeUploader{}, &fakeVerifier{}, &fakeVideoRepo{}, &fakeScheduler{}, Config{})

	task, err := svc.ProcessTask(context.Background(), domain.Task{ID: "t1", VideoID: "v1", LocalPath: localFile})
	if err == nil {
		t.Fatal("expected an error when the runtime never becomes ready")
	}
	if task.State != domain.TaskFailed {
		t.Fatalf("expected task failed, got %v", task.State)
	}
	if len(runtime.destroyed) != 1 {
		t.Fatalf("expected teardown to run even on failure, got %d calls", len(runtime.destroyed))
	}
}
