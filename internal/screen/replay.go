package screen

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
	"github.com/GriffinCanCode/hudreader/internal/frame"
)

var replayExts = []string{".png", ".jpg", ".jpeg", ".bmp"}

// Replay cycles through the screenshots in a directory, in file name
// order. Every capture reports a change.
type Replay struct {
	mu    sync.Mutex
	files []string
	next  int
}

// NewReplay lists the images in dir.
func NewReplay(dir string) (*Replay, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeNotFound, "read replay dir").WithMetadata("dir", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(replayExts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, apperrors.New(apperrors.CodeNotFound, "no images in replay dir").WithMetadata("dir", dir)
	}
	slices.Sort(files)
	return &Replay{files: files}, nil
}

// Capture decodes the next file, wrapping around at the end.
func (r *Replay) Capture(ctx context.Context) (frame.RawFrame, bool, error) {
	if err := ctx.Err(); err != nil {
		return frame.RawFrame{}, false, err
	}
	r.mu.Lock()
	path := r.files[r.next]
	r.next = (r.next + 1) % len(r.files)
	r.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return frame.RawFrame{}, false, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "read replay frame").WithMetadata("file", path)
	}
	f, err := decode(data)
	if err != nil {
		return frame.RawFrame{}, false, err
	}
	return f, true, nil
}

// Len returns the number of frames in the cycle.
func (r *Replay) Len() int { return len(r.files) }

// Close is a no-op.
func (r *Replay) Close() error { return nil }

// Open returns a Replay when source is a directory, else the live capturer.
func Open(source string) (Capturer, error) {
	if source == "" || source == "screen" {
		return New()
	}
	return NewReplay(source)
}
