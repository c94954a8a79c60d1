// Package httpapi exposes the resolver's HTTP surface: health, resolve,
// stream-redirect, and local-mode file serving.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pixav/internal/domain"
	"pixav/internal/domain/errs"
	"pixav/internal/domain/ports"
	"pixav/internal/resolver"
)

// ResolveService is the subset of *resolver.Resolver the HTTP layer needs.
type ResolveService interface {
	Resolve(ctx context.Context, videoID domain.VideoID) (resolver.Result, error)
}

type Config struct {
	RateLimitRPM float64
	RateBurst    int
}

func (c *Config) applyDefaults() {
	if c.RateBurst <= 0 {
		c.RateBurst = 20
	}
}

type Server struct {
	resolve ResolveService
	videos  ports.VideoRepository
	logger  *slog.Logger
	cfg     Config
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

func NewServer(resolve ResolveService, videos ports.VideoRepository, cfg Config, options ...ServerOption) *Server {
	cfg.applyDefaults()
	server := &Server{resolve: resolve, videos: videos, cfg: cfg, logger: slog.Default()}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/resolve/", s.handleResolve)
	mux.HandleFunc("/stream/", s.handleStream)
	mux.HandleFunc("/local/", s.handleLocal)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "resolver",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	rpm := s.cfg.RateLimitRPM / 60
	return recoveryMiddleware(s.logger, rateLimitMiddleware(rpm, s.cfg.RateBurst, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type resolveResponse struct {
	VideoID string `json:"video_id"`
	CDNURL  string `json:"cdn_url"`
	Source  string `json:"source"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := pathID(r.URL.Path, "/resolve/")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "video id is required")
		return
	}

	result, err := s.resolve.Resolve(r.Context(), domain.VideoID(id))
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		VideoID: id,
		CDNURL:  result.CDNURL,
		Source:  string(result.Source),
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := pathID(r.URL.Path, "/stream/")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "video id is required")
		return
	}

	result, err := s.resolve.Resolve(r.Context(), domain.VideoID(id))
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	http.Redirect(w, r, result.CDNURL, http.StatusFound)
}

func (s *Server) handleLocal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, ok := pathID(r.URL.Path, "/local/")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_id", "video id is required")
		return
	}

	video, err := s.videos.FindByID(r.Context(), domain.VideoID(id))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "unknown video")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "dependency_unavailable", "video lookup failed")
		return
	}
	if video.LocalPath == "" {
		writeError(w, http.StatusConflict, "not_local", "video has no local file to serve")
		return
	}

	http.ServeFile(w, r, video.LocalPath)
}

func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "unknown video")
	case errors.Is(err, errs.ErrShareURLMissing):
		writeError(w, http.StatusConflict, "not_uploaded", "video has not been uploaded yet")
	case errors.Is(err, resolver.ErrParseFailed):
		writeError(w, http.StatusBadGateway, "parse_failed", "could not parse upstream cdn url")
	default:
		writeError(w, http.StatusServiceUnavailable, "dependency_unavailable", "resolve failed")
	}
}

func pathID(path, prefix string) (string, bool) {
	id := strings.TrimPrefix(path, prefix)
	id = strings.TrimSpace(id)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
