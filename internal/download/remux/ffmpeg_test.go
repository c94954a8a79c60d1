package remux

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestRemux_EmptyPathsAreRejected(t *testing.T) {
	r := New("")
	tests := []struct {
		name   string
		input  string
		output string
	}{
		{"empty input", "", "/tmp/out.mp4"},
		{"empty output", "/tmp/in.mp4", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Remux(context.Background(), tc.input, tc.output)
			if err == nil {
				t.Fatal("expected an error for a missing path")
			}
		})
	}
}

func TestNew_DefaultsBinaryToFfmpeg(t *testing.T) {
	r := New("")
	if r.binary != "ffmpeg" {
		t.Fatalf("expected default binary ffmpeg, got %q", r.binary)
	}
}

func TestRemux_StreamCopiesIntoNewContainer(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg binary not available, skipping integration test")
	}

	dir := t.TempDir()
	input := filepath.Join(dir, "in.mp4")
	genCmd := exec.Command("ffmpeg", "-y", "-v", "error",
		"-f", "lavfi", "-i", "testsrc=duration=1:size=64x64:rate=5",
		"-pix_fmt", "yuv420p", input)
	if out, err := genCmd.CombinedOutput(); err != nil {
		t.Skipf("ffmpeg failed to create test fixture: %v\n%s", err, out)
	}

	output := filepath.Join(dir, "out.mp4")
	r := New("ffmpeg")
	if err := r.Remux(context.Background(), input, output); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
