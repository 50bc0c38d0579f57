//go:build darwin

package screen

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"

	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
)

type darwinBackend struct{ tempDir string }

func (d *darwinBackend) name() string { return "screencapture" }

func (d *darwinBackend) captureRaw(ctx context.Context) ([]byte, error) {
	tmpFile := filepath.Join(d.tempDir, "screenshot.png")
	// -x: no sound, -m: main display only
	cmd := exec.CommandContext(ctx, "screencapture", "-x", "-t", "png", "-m", tmpFile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "screencapture failed").
			WithMetadata("stderr", stderr.String())
	}
	defer os.Remove(tmpFile)
	return os.ReadFile(tmpFile)
}

// New creates a platform-specific screen capturer
func New() (Capturer, error) {
	dir, err := tempDir()
	if err != nil {
		return nil, err
	}
	return newBase(&darwinBackend{tempDir: dir}, dir), nil
}
