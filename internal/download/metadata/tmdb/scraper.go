// Package tmdb adapts TMDB's multi-search endpoint into a
// ports.MetadataScraper: given a title, return the best-match movie/TV
// result as JSON to attach to the video row. Grounded on
// torrent-search/internal/providers/tmdb's Client, generalized from a
// search-result list into a single best-effort scrape.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pixav/internal/domain/ports"
)

const (
	defaultBaseURL = "https://api.themoviedb.org/3"
	redisKeyPrefix = "pixav:tmdb:"
)

// Config configures the scraper; an empty APIKey disables it entirely.
type Config struct {
	APIKey   string
	BaseURL  string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
	Language string
}

type result struct {
	ID           int     `json:"id"`
	Title        string  `json:"title,omitempty"`
	Name         string  `json:"name,omitempty"`
	Overview     string  `json:"overview,omitempty"`
	PosterPath   string  `json:"poster_path,omitempty"`
	VoteAverage  float64 `json:"vote_average,omitempty"`
	ReleaseDate  string  `json:"release_date,omitempty"`
	FirstAirDate string  `json:"first_air_date,omitempty"`
	MediaType    string  `json:"media_type,omitempty"`
}

type multiSearchResponse struct {
	Results []result `json:"results"`
}

// Scraper queries TMDB's multi-search endpoint for a title and returns the
// first movie/TV match as raw JSON.
type Scraper struct {
	apiKey   string
	baseURL  string
	language string
	http     *http.Client
	redis    *redis.Client
	cacheTTL time.Duration
}

var _ ports.MetadataScraper = (*Scraper)(nil)

func New(cfg Config) *Scraper {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 7 * 24 * time.Hour
	}
	language := cfg.Language
	if language == "" {
		language = "en-US"
	}
	return &Scraper{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
	}
}

// Enabled reports whether an API key was configured.
func (s *Scraper) Enabled() bool {
	return s.apiKey != ""
}

// Scrape returns the best-match movie/TV result for title as JSON, or nil
// if nothing matched. Errors are infrastructure failures only; "no match"
// is represented as a nil, nil return so callers can treat it as
// best-effort.
func (s *Scraper) Scrape(ctx context.Context, title string) ([]byte, error) {
	if !s.Enabled() {
		return nil, nil
	}

	cacheKey := redisKeyPrefix + strings.ToLower(strings.TrimSpace(title))
	if s.redis != nil {
		if data, err := s.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			return data, nil
		}
	}

	params := url.Values{
		"api_key":  {s.apiKey},
		"query":    {strings.TrimSpace(title)},
		"language": {s.language},
	}
	reqURL := s.baseURL + "/search/multi?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build tmdb request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tmdb request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("tmdb HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil, fmt.Errorf("read tmdb response: %w", err)
	}

	var parsed multiSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode tmdb response: %w", err)
	}

	var best *result
	for i := range parsed.Results {
		if parsed.Results[i].MediaType == "movie" || parsed.Results[i].MediaType == "tv" {
			best = &parsed.Results[i]
			break
		}
	}
	if best == nil {
		return nil, nil
	}

	data, err := json.Marshal(best)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if s.redis != nil {
		_ = s.redis.Set(ctx, cacheKey, data, s.cacheTTL).Err()
	}
	return data, nil
}
