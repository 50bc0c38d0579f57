package screen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corona10/goimagehash"
	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/hudreader/internal/frame"
	"github.com/GriffinCanCode/hudreader/internal/ocr"
	"github.com/GriffinCanCode/hudreader/internal/regions"
	"github.com/GriffinCanCode/hudreader/internal/resilience"
	"github.com/GriffinCanCode/hudreader/internal/syncx"
	"github.com/GriffinCanCode/hudreader/internal/trace"
	"github.com/GriffinCanCode/hudreader/internal/vision"
)

// Recognizer reads one string per rectangle. *ocr.Engine implements it.
type Recognizer interface {
	Recognize(ctx context.Context, img *image.RGBA, rects []image.Rectangle) ([]ocr.ShortString, error)
}

// IconDetector reports whether the icon is visible. *icon.Detector
// implements it.
type IconDetector interface {
	Detect(img *image.RGBA) bool
}

// Config tunes the processor.
type Config struct {
	Regions           []regions.StatRegion
	AreaWidth         int
	AreaHeight        int
	BrightenDelta     int
	SummaryEvery      int
	MaxEngineFailures int
	SkipSimilar       bool
	MaxHashDistance   int
}

func (c Config) withDefaults() Config {
	if c.Regions == nil {
		c.Regions = regions.Default()
	}
	if c.AreaWidth <= 0 {
		c.AreaWidth = AreaWidth
	}
	if c.AreaHeight <= 0 {
		c.AreaHeight = AreaHeight
	}
	if c.BrightenDelta == 0 {
		c.BrightenDelta = BrightenDelta
	}
	if c.SummaryEvery <= 0 {
		c.SummaryEvery = DefaultSummaryEvery
	}
	if c.MaxEngineFailures <= 0 {
		c.MaxEngineFailures = DefaultMaxEngineFailures
	}
	if c.MaxHashDistance <= 0 {
		c.MaxHashDistance = MaxHashDistance
	}
	return c
}

// Stats is a snapshot of the processor counters.
type Stats struct {
	Received        uint64              `json:"received"`
	Processed       uint64              `json:"processed"`
	Skipped         uint64              `json:"skipped"`
	DroppedFrames   uint64              `json:"dropped_frames"`
	DroppedOutputs  uint64              `json:"dropped_outputs"`
	EngineFailures  uint64              `json:"engine_failures"`
	MalformedFrames uint64              `json:"malformed_frames"`
	Breaker         resilience.Snapshot `json:"breaker"`
}

// Processor is the consumer side of the frame slot. Run must be called
// from a single goroutine; the accessors are safe from any goroutine.
type Processor struct {
	slot    *frame.Slot
	engine  Recognizer
	icon    IconDetector
	out     chan<- Command
	cfg     Config
	breaker *resilience.Breaker
	latest  *syncx.RWGuard[*AnalysisResult]

	received        atomic.Uint64
	processed       atomic.Uint64
	skipped         atomic.Uint64
	droppedFrames   atomic.Uint64
	droppedOutputs  atomic.Uint64
	engineFailures  atomic.Uint64
	malformedFrames atomic.Uint64

	// owned by Run
	buf       frame.RawFrame
	seq       uint64
	lastHash  *goimagehash.ImageHash
	lastTexts []ocr.ShortString
	window    timings
}

// timings collects stage durations between summaries, in milliseconds.
type timings struct {
	mu                   sync.Mutex
	icon, convert, recog []float64
}

// NewProcessor wires a processor. icon may be nil, in which case the icon
// is always reported absent.
func NewProcessor(slot *frame.Slot, engine Recognizer, icon IconDetector, out chan<- Command, cfg Config) *Processor {
	cfg = cfg.withDefaults()
	return &Processor{
		slot:    slot,
		engine:  engine,
		icon:    icon,
		out:     out,
		cfg:     cfg,
		breaker: resilience.New(resilience.EngineConfig(cfg.MaxEngineFailures)),
		latest:  syncx.NewGuard[*AnalysisResult](nil),
	}
}

// Breaker exposes the engine breaker so health reporting can hook it.
func (p *Processor) Breaker() *resilience.Breaker { return p.breaker }

// Regions returns the region table results are indexed by.
func (p *Processor) Regions() []regions.StatRegion { return p.cfg.Regions }

// Run consumes signals until a stop signal, a closed channel or ctx
// cancellation. It returns nil on a cooperative stop and an error wrapping
// ErrEngineFailed when the engine keeps failing.
func (p *Processor) Run(ctx context.Context, signals <-chan frame.Signal) error {
	log := trace.Logger(ctx)
	p.emit(Command{Kind: AboutToProcessFrames})
	defer p.quit(ctx)

	log.Info("frame processor started", "regions", len(p.cfg.Regions), "skip_similar", p.cfg.SkipSimilar)
	for {
		select {
		case <-ctx.Done():
			log.Info("frame processor stopped", "reason", ctx.Err())
			return nil
		case sig, ok := <-signals:
			if !ok || !sig.HasData {
				log.Info("frame processor stopped", "reason", "stop signal")
				return nil
			}
			if err := p.step(ctx); err != nil {
				return err
			}
		}
	}
}

// step processes at most one frame.
func (p *Processor) step(ctx context.Context) error {
	dropped, ok := p.slot.DrainInto(&p.buf)
	if !ok {
		return nil
	}
	p.received.Add(1)
	p.droppedFrames.Add(uint64(dropped))

	ctx, span := trace.StartSpan(ctx, "process_frame")
	defer span.End()
	log := trace.Logger(ctx)

	if err := p.buf.Validate(); err != nil {
		p.malformedFrames.Add(1)
		log.Warn("skipping malformed frame", "width", p.buf.Width, "height", p.buf.Height, "stride", p.buf.Stride, "error", err)
		return nil
	}

	start := time.Now()
	area := vision.BottomArea(p.buf.Width, p.buf.Height, p.cfg.AreaWidth, p.cfg.AreaHeight)
	rgb, err := vision.FromBGRA(&p.buf, area)
	if err != nil {
		p.malformedFrames.Add(1)
		log.Warn("skipping malformed frame", "error", err)
		return nil
	}
	convertTime := time.Since(start)

	iconStart := time.Now()
	iconPresent := p.icon != nil && p.icon.Detect(rgb)
	iconTime := time.Since(iconStart)

	convStart := time.Now()
	bright := vision.Normalize(rgb, p.cfg.BrightenDelta)
	convertTime += time.Since(convStart)

	texts, err := p.recognize(ctx, bright)
	if err != nil {
		p.engineFailures.Add(1)
		p.breaker.Failure()
		span.RecordError(err)
		log.Warn("recognition failed", "consecutive", p.breaker.Failures(), "error", err)
		if p.breaker.State() == resilience.Open {
			return fmt.Errorf("%w: %w", ErrEngineFailed, err)
		}
		texts = make([]ocr.ShortString, len(p.cfg.Regions))
	} else {
		p.breaker.Success()
	}

	recogTime := max(time.Since(start)-iconTime-convertTime, 0)

	p.seq++
	res := AnalysisResult{
		Seq:              p.seq,
		Texts:            texts,
		IconPresent:      iconPresent,
		IconDetectTime:   iconTime,
		ConvertColorTime: convertTime,
		RecognitionTime:  recogTime,
		DroppedFrames:    dropped,
		CapturedAt:       start,
	}
	p.latest.Set(&res)
	n := p.processed.Add(1)
	span.SetAttr("seq", res.Seq)

	if !p.emit(Command{Kind: ProcessedFrame, Result: res.Clone()}) {
		p.droppedOutputs.Add(1)
	}

	p.window.add(iconTime, convertTime, recogTime)
	if n%uint64(p.cfg.SummaryEvery) == 0 {
		p.summary(ctx)
	}
	return nil
}

// recognize runs the engine, or reuses the previous texts when the frame
// is perceptually identical to the last recognized one.
func (p *Processor) recognize(ctx context.Context, img *image.RGBA) ([]ocr.ShortString, error) {
	var hash *goimagehash.ImageHash
	if p.cfg.SkipSimilar {
		var same bool
		if hash, same = p.similar(ctx, img); same {
			p.skipped.Add(1)
			return slices.Clone(p.lastTexts), nil
		}
	}

	rects := regions.Resolve(p.cfg.Regions, img.Bounds())
	texts, err := p.engine.Recognize(ctx, img, rects)
	if err != nil {
		return nil, err
	}
	if len(texts) != len(rects) {
		return nil, fmt.Errorf("engine returned %d texts for %d regions", len(texts), len(rects))
	}
	if p.cfg.SkipSimilar {
		p.lastHash = hash
		p.lastTexts = slices.Clone(texts)
	}
	return texts, nil
}

// similar hashes img and reports whether it matches the last recognized
// frame. A hashing failure never skips recognition.
func (p *Processor) similar(ctx context.Context, img *image.RGBA) (*goimagehash.ImageHash, bool) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		trace.Logger(ctx).Debug("perceptual hash failed", "error", err)
		return nil, false
	}
	if p.lastHash == nil {
		return hash, false
	}
	dist, err := p.lastHash.Distance(hash)
	if err != nil || dist > p.cfg.MaxHashDistance {
		return hash, false
	}
	trace.Logger(ctx).Debug("skipping recognition for similar frame", "distance", dist)
	return hash, true
}

// emit performs a non-blocking send.
func (p *Processor) emit(cmd Command) bool {
	select {
	case p.out <- cmd:
		return true
	default:
		return false
	}
}

// quit delivers Quit, retrying while the channel is full. It outlives ctx
// cancellation so the consumer learns the loop ended.
func (p *Processor) quit(ctx context.Context) {
	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	backoff := resilience.OutputBackoff(func(err error) bool { return errors.Is(err, ErrOutputFull) })
	err := resilience.Retry(qctx, backoff, func() error {
		if p.emit(Command{Kind: Quit}) {
			return nil
		}
		return ErrOutputFull
	})
	if err != nil {
		trace.Logger(ctx).Warn("quit command not delivered", "error", err)
	}
}

func (p *Processor) summary(ctx context.Context) {
	icon, convert, recog := p.window.drain()
	st := p.Stats()
	trace.Logger(ctx).Info("SUMMARY",
		"processed", st.Processed,
		"received", st.Received,
		"dropped_frames", st.DroppedFrames,
		"dropped_outputs", st.DroppedOutputs,
		"engine_failures", st.EngineFailures,
		"icon_ms", stat.Mean(icon, nil),
		"convert_ms", stat.Mean(convert, nil),
		"recognition_ms", stat.Mean(recog, nil),
	)
}

func (w *timings) add(icon, convert, recog time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.icon = append(w.icon, ms(icon))
	w.convert = append(w.convert, ms(convert))
	w.recog = append(w.recog, ms(recog))
}

func (w *timings) drain() (icon, convert, recog []float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	icon, convert, recog = w.icon, w.convert, w.recog
	w.icon, w.convert, w.recog = nil, nil, nil
	return icon, convert, recog
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() Stats {
	return Stats{
		Received:        p.received.Load(),
		Processed:       p.processed.Load(),
		Skipped:         p.skipped.Load(),
		DroppedFrames:   p.droppedFrames.Load(),
		DroppedOutputs:  p.droppedOutputs.Load(),
		EngineFailures:  p.engineFailures.Load(),
		MalformedFrames: p.malformedFrames.Load(),
		Breaker:         p.breaker.Snapshot(),
	}
}

// Latest returns the most recent result.
func (p *Processor) Latest() (AnalysisResult, bool) {
	r := p.latest.Get()
	if r == nil {
		return AnalysisResult{}, false
	}
	return r.Clone(), true
}
