//go:build linux

package screen

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"

	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
)

// linuxBackend shells out to the first screenshot tool available: grim on
// Wayland, then gnome-screenshot, then scrot.
type linuxBackend struct {
	tempDir string
	tool    string
}

func (l *linuxBackend) name() string { return l.tool }

func (l *linuxBackend) captureRaw(ctx context.Context) ([]byte, error) {
	tmpFile := filepath.Join(l.tempDir, "screenshot.png")
	var cmd *exec.Cmd
	switch l.tool {
	case "grim":
		cmd = exec.CommandContext(ctx, "grim", "-t", "png", tmpFile)
	case "gnome-screenshot":
		cmd = exec.CommandContext(ctx, "gnome-screenshot", "-f", tmpFile)
	default:
		cmd = exec.CommandContext(ctx, "scrot", "-o", tmpFile)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "screenshot failed").
			WithMetadata("stderr", stderr.String())
	}
	defer os.Remove(tmpFile)
	return os.ReadFile(tmpFile)
}

func lookupTool() (string, error) {
	candidates := []string{"gnome-screenshot", "scrot"}
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		candidates = append([]string{"grim"}, candidates...)
	}
	for _, tool := range candidates {
		if _, err := exec.LookPath(tool); err == nil {
			return tool, nil
		}
	}
	return "", apperrors.New(apperrors.CodeNotFound, "no screenshot tool found (install grim, gnome-screenshot or scrot)")
}

// New creates a platform-specific screen capturer
func New() (Capturer, error) {
	tool, err := lookupTool()
	if err != nil {
		return nil, err
	}
	dir, err := tempDir()
	if err != nil {
		return nil, err
	}
	return newBase(&linuxBackend{tempDir: dir, tool: tool}, dir), nil
}
