// Package docker adapts the upload stage's isolated-runtime ports onto the
// Docker engine API: one container per upload task, created, polled for
// readiness, and torn down on every exit path. Grounded on
// volaticloud's DataDownloader (create -> start -> poll ContainerInspect ->
// remove), generalized from a data-download sidecar to an upload runtime.
package docker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"pixav/internal/domain"
	"pixav/internal/domain/ports"
)

// Config configures the container runtime manager.
type Config struct {
	Image   string
	Network string
	Host    string // empty uses the environment-configured Docker host
}

// Manager creates and tears down one container per upload task.
type Manager struct {
	client  *client.Client
	cfg     Config
	network string
}

var _ ports.RuntimeManager = (*Manager)(nil)

func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker runtime: new client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("docker runtime: ping host: %w", err)
	}
	network := cfg.Network
	if network == "" {
		network = "bridge"
	}
	return &Manager{client: cli, cfg: cfg, network: network}, nil
}

// Client exposes the underlying Docker API client so sibling adapters
// (Uploader, Verifier) can share one connection with the manager.
func (m *Manager) Client() *client.Client {
	return m.client
}

// Create pulls the configured image if needed and starts one container
// labeled with the owning task id.
func (m *Manager) Create(ctx context.Context, taskID domain.TaskID) (ports.RuntimeHandle, error) {
	if err := m.pullImageIfMissing(ctx, m.cfg.Image); err != nil {
		return "", fmt.Errorf("pull runtime image: %w", err)
	}

	name := fmt.Sprintf("pixav-upload-%s-%d", taskID, time.Now().UnixNano())
	containerConfig := &container.Config{
		Image: m.cfg.Image,
		Labels: map[string]string{
			"pixav.managed": "true",
			"pixav.task-id": string(taskID),
		},
	}
	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(m.network),
		AutoRemove:  false,
	}

	resp, err := m.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	if err := m.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = m.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container: %w", err)
	}
	return ports.RuntimeHandle(resp.ID), nil
}

// WaitReady polls the container state until it reports running, or the
// timeout elapses.
func (m *Manager) WaitReady(ctx context.Context, handle ports.RuntimeHandle, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		info, err := m.client.ContainerInspect(ctx, string(handle))
		if err != nil {
			return fmt.Errorf("inspect container: %w", err)
		}
		if info.State.Running {
			return nil
		}
		if info.State.Status == "exited" {
			return fmt.Errorf("container %s exited before becoming ready (exit code %d)", handle, info.State.ExitCode)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("container %s did not become ready: %w", handle, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Destroy force-removes the container, freeing its resources regardless of
// its current state.
func (m *Manager) Destroy(ctx context.Context, handle ports.RuntimeHandle) error {
	if err := m.client.ContainerRemove(ctx, string(handle), container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("remove container %s: %w", handle, err)
	}
	return nil
}

func (m *Manager) pullImageIfMissing(ctx context.Context, imageName string) error {
	if _, err := m.client.ImageInspect(ctx, imageName); err == nil {
		return nil
	}
	reader, err := m.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}
