package docker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"pixav/internal/domain/ports"
)

// Verifier polls a container's logs for a share URL matching a configured
// pattern, then validates it with an HTTP HEAD request. Grounded on the
// original GooglePhotosVerifier's logcat-poll-then-HEAD-check shape,
// generalized from a Google-Photos-specific log tag/pattern to a
// configurable one.
type Verifier struct {
	client     *client.Client
	pattern    *regexp.Regexp
	httpClient *http.Client
	pollEvery  time.Duration
}

var _ ports.UploadVerifier = (*Verifier)(nil)

func NewVerifier(cli *client.Client, pattern *regexp.Regexp, httpClient *http.Client) *Verifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Verifier{client: cli, pattern: pattern, httpClient: httpClient, pollEvery: 5 * time.Second}
}

// WaitForShareURL tails the container's logs until the configured pattern
// matches or the timeout elapses.
func (v *Verifier) WaitForShareURL(ctx context.Context, handle ports.RuntimeHandle, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(v.pollEvery)
	defer ticker.Stop()

	for {
		if url, ok, err := v.scanLogsForShareURL(ctx, handle); err == nil && ok {
			return url, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("share url not found in container %s after %s", handle, timeout)
		case <-ticker.C:
		}
	}
}

func (v *Verifier) scanLogsForShareURL(ctx context.Context, handle ports.RuntimeHandle) (string, bool, error) {
	reader, err := v.client.ContainerLogs(ctx, string(handle), container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       "200",
	})
	if err != nil {
		return "", false, fmt.Errorf("read container logs: %w", err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", false, fmt.Errorf("demux container logs: %w", err)
	}

	if m := v.pattern.FindString(stdout.String()); m != "" {
		return m, true, nil
	}
	if m := v.pattern.FindString(stderr.String()); m != "" {
		return m, true, nil
	}
	return "", false, nil
}

// ValidateShareURL issues an HTTP HEAD request and reports success for any
// non-error status code.
func (v *Verifier) ValidateShareURL(ctx context.Context, shareURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, shareURL, nil)
	if err != nil {
		return false, fmt.Errorf("build head request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, nil
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400, nil
}
