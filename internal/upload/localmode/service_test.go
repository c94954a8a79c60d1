package localmode

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pixav/internal/domain"
)

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

type fakeScheduler struct{}

func (f *fakeScheduler) NextAccount(ctx context.Context) (domain.AccountID, error) { return "", nil }
func (f *fakeScheduler) MarkUsed(ctx context.Context, id domain.AccountID) error   { return nil }
func (f *fakeScheduler) ApplyUploadUsage(ctx context.Context, id domain.AccountID, bytes int64) error {
	return nil
}
func (f *fakeScheduler) ActiveCount(ctx context.Context) (int, error) { return 0, nil }

func TestService_ProcessTask_EmitsSyntheticShareURL(t *testing.T) {
	dir := t.TempDir()
	localFile := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(localFile, []byte("data"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	videoRepo := &fakeVideoRepo{}

	svc := New(videoRepo, &fakeScheduler{}, Config{ShareScheme: "local://"})
	task, err := svc.ProcessTask(context.Background(), domain.Task{ID: "t1", VideoID: "v1", LocalPath: localFile})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ShareURL != "local://v1" {
		t.Fatalf("expected synthetic share url local://v1, got %s", task.ShareURL)
	}
	if task.State != domain.TaskComplete {
		t.Fatalf("expected task complete, got %v", task.State)
	}
}

func TestService_ProcessTask_MissingLocalPathFails(t *testing.T) {
	svc := New(&fakeVideoRepo{}, &fakeScheduler{}, Config{})
	task, err := svc.ProcessTask(context.Background(), domain.Task{ID: "t1", VideoID: "v1"})
	if err == nil {
		t.Fatal("expected an error for a missing local_path")
	}
	if task.State != domain.TaskFailed {
		t.Fatalf("expected task failed, got %v", task.State)
	}
}
