package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pixav/internal/domain"
	"pixav/internal/domain/errs"
	"pixav/internal/resolver"
)

type fakeResolveService struct {
	result resolver.Result
	err    error
}

func (f *fakeResolveService) Resolve(ctx context.Context, videoID domain.VideoID) (resolver.Result, error) {
	return f.result, f.err
}

type fakeVideoRepo struct {
	video   domain.Video
	missing bool
}

func (f *fakeVideoRepo) FindByID(ctx context.Context, id domain.VideoID) (domain.Video, error) {
	if f.missing {
		return domain.Video{}, errs.ErrNotFound
	}
	return f.video, nil
}
func (f *fakeVideoRepo) FindByMagnet(ctx context.Context, magnetURI string) (domain.Video, error) {
	return domain.Video{}, nil
}
func (f *fakeVideoRepo) Insert(ctx context.Context, v domain.Video) (domain.Video, error) {
	return v, nil
}
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
	return 0, nil
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(&fakeResolveService{}, &fakeVideoRepo{}, Config{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHandleResolve_Success(t *testing.T) {
	svc := &fakeResolveService{result: resolver.Result{CDNURL: "https://lh3.googleusercontent.com/x=dv", Source: resolver.SourceResolved}}
	s := NewServer(svc, &fakeVideoRepo{}, Config{})

	req := httptest.NewRequest(http.MethodGet, "/resolve/v1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body resolveResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.VideoID != "v1" || body.Source != "resolved" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHandleResolve_NotFound(t *testing.T) {
	svc := &fakeResolveService{err: errs.ErrNotFound}
	s := NewServer(svc, &fakeVideoRepo{}, Config{})

	req := httptest.NewRequest(http.MethodGet, "/resolve/v1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleResolve_Conflict(t *testing.T) {
	svc := &fakeResolveService{err: errs.ErrShareURLMissing}
	s := NewServer(svc, &fakeVideoRepo{}, Config{})

	req := httptest.NewRequest(http.MethodGet, "/resolve/v1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleResolve_ParseFailureIsBadGateway(t *testing.T) {
	svc := &fakeResolveService{err: resolver.ErrParseFailed}
	s := NewServer(svc, &fakeVideoRepo{}, Config{})

	req := httptest.NewRequest(http.MethodGet, "/resolve/v1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestHandleResolve_MissingIDIsBadRequest(t *testing.T) {
	s := NewServer(&fakeResolveService{}, &fakeVideoRepo{}, Config{})
	req := httptest.NewRequest(http.MethodGet, "/resolve/", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleStream_RedirectsToCDNURL(t *testing.T) {
	svc := &fakeResolveService{result: resolver.Result{CDNURL: "https://lh3.googleusercontent.com/x=dv", Source: resolver.SourceDatabase}}
	s := NewServer(svc, &fakeVideoRepo{}, Config{})

	req := httptest.NewRequest(http.MethodGet, "/stream/v1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://lh3.googleusercontent.com/x=dv" {
		t.Fatalf("unexpected redirect location: %s", loc)
	}
}

func TestHandleLocal_ServesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "video.mp4")
	if err := os.WriteFile(path, []byte("fake video bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	repo := &fakeVideoRepo{video: domain.Video{ID: "v1", LocalPath: path}}
	s := NewServer(&fakeResolveService{}, repo, Config{})

	req := httptest.NewRequest(http.MethodGet, "/local/v1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "fake video bytes" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandleLocal_NoLocalPathIsConflict(t *testing.T) {
	repo := &fakeVideoRepo{video: domain.Video{ID: "v1"}}
	s := NewServer(&fakeResolveService{}, repo, Config{})

	req := httptest.NewRequest(http.MethodGet, "/local/v1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware_DisabledWhenZero(t *testing.T) {
	h := rateLimitMiddleware(0, 10, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/resolve/v1", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected rate limiting disabled, got %d on request %d", rec.Code, i)
		}
	}
}
