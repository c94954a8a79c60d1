// Package resolver turns a video's share URL into a CDN-backed playback
// URL: a TTL cache in front of a database lookup in front of a
// bounded-concurrency external HTTP fetch, mirroring the original
// strm_resolver.resolver.GooglePhotosResolver.resolve flow.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"pixav/internal/domain"
	"pixav/internal/domain/errs"
	"pixav/internal/domain/ports"
	"pixav/internal/metrics"
)

// cdnURLPattern extracts a Google Photos CDN URL from an HTML page, exactly
// as the original resolver's _CDN_PATTERN regex does.
var cdnURLPattern = regexp.MustCompile(`https://lh3\.googleusercontent\.com/[^\s"']+`)

// Source identifies where a resolved CDN URL came from, echoed in the
// resolve response so clients and dashboards can distinguish a cheap cache
// hit from a freshly-resolved upstream fetch.
type Source string

const (
	SourceCache    Source = "cache"
	SourceDatabase Source = "database"
	SourceLocal    Source = "local"
	SourceResolved Source = "resolved"
)

// Result is what Resolve returns: the CDN (or local-serving) URL plus where
// it came from.
type Result struct {
	CDNURL string
	Source Source
}

// Config tunes the resolver's cache TTL, local-mode scheme, bounded
// external-resolve concurrency, and the external HTTP client's timeout.
type Config struct {
	CacheTTL          time.Duration
	LocalShareScheme  string
	LocalURLPrefix    string
	MaxConcurrentCalls int64
	FetchTimeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 3300 * time.Second
	}
	if c.LocalShareScheme == "" {
		c.LocalShareScheme = "local://"
	}
	if c.LocalURLPrefix == "" {
		c.LocalURLPrefix = "/local/"
	}
	if c.MaxConcurrentCalls <= 0 {
		c.MaxConcurrentCalls = 3
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}
}

// ErrParseFailed means the upstream page did not contain a recognizable
// CDN URL; callers surface this as a bad gateway.
var ErrParseFailed = errors.New("could not parse cdn url from resolved page")

// Resolver implements ports.ShareResolver's external leg plus the
// cache/database/local short-circuits spec.md's algorithm requires above
// it. It is safe for concurrent use.
type Resolver struct {
	videos ports.VideoRepository
	cache  ports.CDNCache
	cfg    Config

	httpClient *http.Client
	sem        *semaphore.Weighted
}

func New(videos ports.VideoRepository, cache ports.CDNCache, cfg Config) *Resolver {
	cfg.applyDefaults()
	return &Resolver{
		videos: videos,
		cache:  cache,
		cfg:    cfg,
		// A single client reused across every resolve call pools
		// connections to the upstream host, matching the original's
		// one-AsyncClient-per-process reuse pattern.
		httpClient: &http.Client{
			Timeout: cfg.FetchTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		sem: semaphore.NewWeighted(cfg.MaxConcurrentCalls),
	}
}

// Resolve runs spec.md §4.8's algorithm for one video id.
func (r *Resolver) Resolve(ctx context.Context, videoID domain.VideoID) (Result, error) {
	if cdnURL, ok, err := r.cache.Get(ctx, videoID); err != nil {
		return Result{}, errs.WrapStore("cdn cache get", err)
	} else if ok {
		metrics.ResolverCacheHitsTotal.Inc()
		return Result{CDNURL: cdnURL, Source: SourceCache}, nil
	}
	metrics.ResolverCacheMissesTotal.Inc()

	video, err := r.videos.FindByID(ctx, videoID)
	if err != nil {
		return Result{}, err
	}

	if video.ShareURL == "" {
		return Result{}, errs.ErrShareURLMissing
	}

	if video.CDNURL != "" {
		if err := r.cache.Set(ctx, videoID, video.CDNURL, r.cfg.CacheTTL); err != nil {
			return Result{}, errs.WrapStore("cdn cache set", err)
		}
		return Result{CDNURL: video.CDNURL, Source: SourceDatabase}, nil
	}

	if strings.HasPrefix(video.ShareURL, r.cfg.LocalShareScheme) {
		localURL := r.cfg.LocalURLPrefix + string(videoID)
		if err := r.cache.Set(ctx, videoID, localURL, r.cfg.CacheTTL); err != nil {
			return Result{}, errs.WrapStore("cdn cache set", err)
		}
		return Result{CDNURL: localURL, Source: SourceLocal}, nil
	}

	cdnURL, err := r.resolveExternal(ctx, video.ShareURL)
	if err != nil {
		return Result{}, err
	}

	if err := r.videos.UpdateCDNURL(ctx, videoID, cdnURL, domain.VideoAvailable); err != nil {
		return Result{}, errs.WrapStore("update cdn url", err)
	}
	if err := r.cache.Set(ctx, videoID, cdnURL, r.cfg.CacheTTL); err != nil {
		return Result{}, errs.WrapStore("cdn cache set", err)
	}
	return Result{CDNURL: cdnURL, Source: SourceResolved}, nil
}

// resolveExternal fetches shareURL and extracts the CDN URL from its body,
// bounding how many of these run at once across every concurrent caller.
func (r *Resolver) resolveExternal(ctx context.Context, shareURL string) (string, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("resolver busy, try again: %w", err)
	}
	defer r.sem.Release(1)

	start := time.Now()
	cdnURL, err := r.fetchAndParse(ctx, shareURL)
	metrics.ResolverExternalFetchDuration.Observe(time.Since(start).Seconds())
	return cdnURL, err
}

func (r *Resolver) fetchAndParse(ctx context.Context, shareURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shareURL, nil)
	if err != nil {
		return "", fmt.Errorf("build resolve request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		metrics.ResolverExternalFailuresTotal.WithLabelValues("fetch").Inc()
		return "", fmt.Errorf("fetch share url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.ResolverExternalFailuresTotal.WithLabelValues("fetch").Inc()
		return "", fmt.Errorf("fetch share url: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.ResolverExternalFailuresTotal.WithLabelValues("fetch").Inc()
		return "", fmt.Errorf("read share url response: %w", err)
	}

	match := cdnURLPattern.Find(body)
	if match == nil {
		metrics.ResolverExternalFailuresTotal.WithLabelValues("parse").Inc()
		return "", ErrParseFailed
	}

	return cleanCDNURL(string(match)), nil
}

// cleanCDNURL drops everything after the first "=" and pins the dv
// (direct video) size parameter, exactly as the original resolver does:
// cdn_base.split("=")[0] + "=dv".
func cleanCDNURL(raw string) string {
	base, _, _ := strings.Cut(raw, "=")
	return base + "=dv"
}

var _ ports.ShareResolver = (*externalOnlyAdapter)(nil)

// externalOnlyAdapter lets Resolver's external-fetch leg satisfy
// ports.ShareResolver on its own, for callers that only need that single
// step (e.g. a future admin re-resolve tool) without the cache/database
// short-circuits Resolve layers on top.
type externalOnlyAdapter struct {
	r *Resolver
}

func (a *externalOnlyAdapter) Resolve(ctx context.Context, shareURL string) (string, error) {
	return a.r.resolveExternal(ctx, shareURL)
}

// AsShareResolver exposes the external-fetch leg as a ports.ShareResolver.
func (r *Resolver) AsShareResolver() ports.ShareResolver {
	return &externalOnlyAdapter{r: r}
}
