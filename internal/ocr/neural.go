package ocr

import (
	"context"
	"errors"
	"image"
	"sync"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
	"github.com/GriffinCanCode/hudreader/internal/trace"
	"github.com/GriffinCanCode/hudreader/internal/vision"
)

// neuralBatch sends all regions through one backend in fixed-size batches.
type neuralBatch struct {
	mu        sync.Mutex
	backend   Backend
	batchSize int
}

// NewNeuralBatch wraps a single backend. Calls are serialized.
func NewNeuralBatch(b Backend, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{kind: KindNeuralBatch, batch: &neuralBatch{backend: b, batchSize: batchSize}}
}

func (n *neuralBatch) recognize(ctx context.Context, img *image.RGBA, rects []image.Rectangle, out []ShortString) error {
	idx := make([]int, 0, len(rects))
	crops := make([]image.Image, 0, len(rects))
	for i, r := range rects {
		if r.Empty() {
			continue
		}
		idx = append(idx, i)
		crops = append(crops, vision.Crop(img, r))
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for start := 0; start < len(crops); start += n.batchSize {
		end := min(start+n.batchSize, len(crops))
		res, err := n.backend.Recognize(ctx, crops[start:end])
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeEngineFailed, "neural batch recognition")
		}
		if len(res) != end-start {
			return apperrors.Newf(apperrors.CodeEngineFailed, "backend returned %d results for %d crops", len(res), end-start)
		}
		for j, r := range res {
			if s, ok := Accept(r.Text); ok {
				out[idx[start+j]] = s
			}
		}
	}
	return nil
}

func (n *neuralBatch) close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.backend.Close()
}

// neuralParallel recognizes regions independently on a pool of backends.
type neuralParallel struct {
	pool     chan Backend
	backends []Backend
	minScore float64
}

// NewNeuralParallel runs one region per backend concurrently. Reads at or
// below minScore are discarded. An engine without backends fails every
// Recognize call.
func NewNeuralParallel(backends []Backend, minScore float64) *Engine {
	pool := make(chan Backend, len(backends))
	for _, b := range backends {
		pool <- b
	}
	return &Engine{kind: KindNeuralParallel, parallel: &neuralParallel{pool: pool, backends: backends, minScore: minScore}}
}

// recognize leaves a region empty when its own backend call fails and
// only reports an error when every attempted region failed.
func (n *neuralParallel) recognize(ctx context.Context, img *image.RGBA, rects []image.Rectangle, out []ShortString) error {
	if len(n.backends) == 0 {
		return apperrors.New(apperrors.CodeEngineFailed, "no recognition backends")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(n.backends))

	var mu sync.Mutex
	var attempted, failed int
	var lastErr error

	for i, r := range rects {
		if r.Empty() {
			continue
		}
		attempted++
		crop := vision.Crop(img, r)
		g.Go(func() error {
			var b Backend
			select {
			case b = <-n.pool:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { n.pool <- b }()

			res, err := b.Recognize(gctx, []image.Image{crop})
			if err == nil && len(res) != 1 {
				err = errors.New("backend result count mismatch")
			}
			if err != nil {
				trace.Logger(gctx).Debug("region recognition failed", "region", i, "error", err)
				mu.Lock()
				failed++
				lastErr = err
				mu.Unlock()
				return nil
			}
			if res[0].Score > n.minScore {
				if s, ok := Accept(res[0].Text); ok {
					out[i] = s
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if attempted > 0 && failed == attempted {
		return apperrors.Wrap(lastErr, apperrors.CodeEngineFailed, "every region failed")
	}
	return ctx.Err()
}

func (n *neuralParallel) close() error {
	var errs []error
	for _, b := range n.backends {
		errs = append(errs, b.Close())
	}
	return errors.Join(errs...)
}
