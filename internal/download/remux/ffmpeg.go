// Package remux stream-copies a downloaded file into a playback-friendly
// container via an ffmpeg subprocess, without re-encoding.
package remux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"pixav/internal/domain/ports"
)

const defaultTimeout = 30 * time.Minute

type Remuxer struct {
	binary  string
	timeout time.Duration
}

var _ ports.Remuxer = (*Remuxer)(nil)

func New(binary string) *Remuxer {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Remuxer{binary: bin, timeout: defaultTimeout}
}

// Remux stream-copies inputPath's audio/video into outputPath's container,
// re-muxing (not re-encoding) so the operation is fast and lossless.
func (r *Remuxer) Remux(ctx context.Context, inputPath, outputPath string) error {
	if strings.TrimSpace(inputPath) == "" || strings.TrimSpace(outputPath) == "" {
		return errors.New("input and output paths are required")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.binary,
		"-y",
		"-v", "error",
		"-i", inputPath,
		"-c", "copy",
		"-movflags", "+faststart",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("ffmpeg remux failed: %w", err)
		}
		return fmt.Errorf("ffmpeg remux failed: %w: %s", err, msg)
	}
	return nil
}
