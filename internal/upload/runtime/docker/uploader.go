package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"pixav/internal/domain/ports"
)

// defaultRemoteDir is where a pushed file lands inside the runtime before
// the trigger command picks it up.
const defaultRemoteDir = "/data/incoming"

// Uploader pushes a local file into a runtime container and execs the
// configured trigger command against it. Grounded on the original
// UIAutomatorUploader's push-then-trigger shape, generalized from an
// ADB file push + media-scan broadcast to a docker-native copy + exec.
type Uploader struct {
	client     *client.Client
	triggerCmd []string // e.g. []string{"/bin/sh", "-c", "ingest.sh $REMOTE_PATH"}
}

var _ ports.FileUploader = (*Uploader)(nil)

func NewUploader(cli *client.Client, triggerCmd []string) *Uploader {
	return &Uploader{client: cli, triggerCmd: triggerCmd}
}

// PushFile tars the local file and copies it into the container's incoming
// directory via the Docker API, returning the path it was written to.
func (u *Uploader) PushFile(ctx context.Context, handle ports.RuntimeHandle, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read local file: %w", err)
	}

	filename := filepath.Base(localPath)
	remotePath := path.Join(defaultRemoteDir, filename)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: filename, Mode: 0o644, Size: int64(len(data))}); err != nil {
		return "", fmt.Errorf("build tar header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return "", fmt.Errorf("write tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("close tar writer: %w", err)
	}

	if err := u.client.CopyToContainer(ctx, string(handle), defaultRemoteDir, &buf, container.CopyToContainerOptions{}); err != nil {
		return "", fmt.Errorf("copy to container %s: %w", handle, err)
	}
	return remotePath, nil
}

// TriggerUpload execs the configured trigger command inside the container,
// passing the remote path via REMOTE_PATH in its environment.
func (u *Uploader) TriggerUpload(ctx context.Context, handle ports.RuntimeHandle, remotePath string) error {
	execResp, err := u.client.ContainerExecCreate(ctx, string(handle), container.ExecOptions{
		Cmd:          u.triggerCmd,
		Env:          []string{"REMOTE_PATH=" + remotePath},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return fmt.Errorf("create exec in container %s: %w", handle, err)
	}

	attach, err := u.client.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return fmt.Errorf("attach exec in container %s: %w", handle, err)
	}
	defer attach.Close()
	if _, err := io.Copy(io.Discard, attach.Reader); err != nil {
		return fmt.Errorf("drain exec output in container %s: %w", handle, err)
	}

	inspect, err := u.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return fmt.Errorf("inspect exec in container %s: %w", handle, err)
	}
	if inspect.ExitCode != 0 {
		return fmt.Errorf("trigger command in container %s exited with code %d", handle, inspect.ExitCode)
	}
	return nil
}
