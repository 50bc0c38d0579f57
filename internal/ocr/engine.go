package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/GriffinCanCode/hudreader/internal/digits"
	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
)

// Kind selects an engine variant.
type Kind int

const (
	KindNone Kind = iota
	KindNeuralBatch
	KindNeuralParallel
	KindTemplateMatch
	kindFallback
)

var kindNames = map[Kind]string{
	KindNone:           "none",
	KindNeuralBatch:    "batch",
	KindNeuralParallel: "parallel",
	KindTemplateMatch:  "template",
	kindFallback:       "fallback",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind accepts "batch", "parallel", "template" and "none" (or empty).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return KindNone, nil
	case "batch", "neural-batch":
		return KindNeuralBatch, nil
	case "parallel", "neural-parallel":
		return KindNeuralParallel, nil
	case "template", "template-match":
		return KindTemplateMatch, nil
	}
	return KindNone, apperrors.Newf(apperrors.CodeConfigInvalid, "unknown engine %q", s)
}

// Config selects and tunes the engine.
type Config struct {
	Kind        Kind
	Fallback    Kind // KindNone disables the fallback decorator
	BatchSize   int
	Workers     int
	MinScore    float64
	TemplateDir string
	Digits      digits.Config
}

func (c Config) withDefaults() Config {
	if c.Kind == KindNone {
		c.Kind = KindTemplateMatch
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.MinScore <= 0 {
		c.MinScore = DefaultMinScore
	}
	return c
}

// Engine is a closed union over the recognition variants. Exactly one of
// the variant fields is set, matching kind.
type Engine struct {
	kind     Kind
	batch    *neuralBatch
	parallel *neuralParallel
	template *templateMatch
	fallback *fallback
}

// Kind returns the variant.
func (e *Engine) Kind() Kind { return e.kind }

// String describes the engine, including a fallback chain.
func (e *Engine) String() string {
	if e.kind == kindFallback {
		return e.fallback.primary.String() + "+" + e.fallback.secondary.String()
	}
	return e.kind.String()
}

// Recognize reads every rectangle of img and returns one string per
// rectangle. Regions that could not be read, including empty rectangles,
// are returned empty. An error means the backend itself failed.
func (e *Engine) Recognize(ctx context.Context, img *image.RGBA, rects []image.Rectangle) ([]ShortString, error) {
	out := make([]ShortString, len(rects))
	var err error
	switch e.kind {
	case KindNeuralBatch:
		err = e.batch.recognize(ctx, img, rects, out)
	case KindNeuralParallel:
		err = e.parallel.recognize(ctx, img, rects, out)
	case KindTemplateMatch:
		err = e.template.recognize(ctx, img, rects, out)
	case kindFallback:
		err = e.fallback.recognize(ctx, img, rects, out)
	default:
		err = apperrors.Newf(apperrors.CodeInternal, "engine kind %s cannot recognize", e.kind)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases backend resources.
func (e *Engine) Close() error {
	switch e.kind {
	case KindNeuralBatch:
		return e.batch.close()
	case KindNeuralParallel:
		return e.parallel.close()
	case kindFallback:
		return errors.Join(e.fallback.primary.Close(), e.fallback.secondary.Close())
	}
	return nil
}

// New builds the configured engine. Any load failure is returned as a
// CodeEngineInit or CodeTemplateLoad error and should stop the process.
func New(cfg Config, factory BackendFactory) (*Engine, error) {
	cfg = cfg.withDefaults()
	if cfg.Fallback == cfg.Kind {
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "fallback engine must differ from primary (%s)", cfg.Kind)
	}

	primary, err := build(cfg.Kind, cfg, factory)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == KindNone {
		return primary, nil
	}
	secondary, err := build(cfg.Fallback, cfg, factory)
	if err != nil {
		_ = primary.Close()
		return nil, err
	}
	return WithFallback(primary, secondary), nil
}

func build(kind Kind, cfg Config, factory BackendFactory) (*Engine, error) {
	switch kind {
	case KindTemplateMatch:
		ts, err := digits.LoadDir(cfg.TemplateDir)
		if err != nil {
			return nil, err
		}
		return NewTemplateMatch(digits.NewMatcher(ts, cfg.Digits)), nil

	case KindNeuralBatch:
		if factory == nil {
			return nil, apperrors.New(apperrors.CodeEngineInit, "no neural backend available")
		}
		b, err := factory()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeEngineInit, "open neural backend")
		}
		return NewNeuralBatch(b, cfg.BatchSize), nil

	case KindNeuralParallel:
		if factory == nil {
			return nil, apperrors.New(apperrors.CodeEngineInit, "no neural backend available")
		}
		pool := make([]Backend, 0, cfg.Workers)
		for i := 0; i < cfg.Workers; i++ {
			b, err := factory()
			if err != nil {
				for _, opened := range pool {
					_ = opened.Close()
				}
				return nil, apperrors.Wrapf(err, apperrors.CodeEngineInit, "open neural backend %d", i)
			}
			pool = append(pool, b)
		}
		return NewNeuralParallel(pool, cfg.MinScore), nil
	}
	return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "unsupported engine %s", kind)
}
