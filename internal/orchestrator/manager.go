// Package orchestrator wires capture, frame processing and result fan-out
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/hudreader/internal/config"
	"github.com/GriffinCanCode/hudreader/internal/frame"
	"github.com/GriffinCanCode/hudreader/internal/orchestrator/alerts"
	"github.com/GriffinCanCode/hudreader/internal/orchestrator/history"
	"github.com/GriffinCanCode/hudreader/internal/orchestrator/screen"
	"github.com/GriffinCanCode/hudreader/internal/regions"
	"github.com/GriffinCanCode/hudreader/internal/resilience"
	screencap "github.com/GriffinCanCode/hudreader/internal/screen"
	"github.com/GriffinCanCode/hudreader/internal/trace"
)

// Deps are the collaborators the manager drives. Capturer may be nil when
// frames are published into Feed by someone else.
type Deps struct {
	Engine   screen.Recognizer
	Icon     screen.IconDetector
	Capturer screencap.Capturer
	Regions  []regions.StatRegion
}

// Stats is a snapshot for the stats endpoint.
type Stats struct {
	Engine    string       `json:"engine"`
	Running   bool         `json:"running"`
	Uptime    float64      `json:"uptime_seconds"`
	History   int          `json:"history"`
	Slot      frame.Stats  `json:"slot"`
	Processor screen.Stats `json:"processor"`
}

// Manager coordinates the capture loop, the frame processor and the
// consumers of its results.
type Manager struct {
	cfg      *config.Config
	feed     *frame.Feed
	proc     *screen.Processor
	capturer screencap.Capturer
	engine   screen.Recognizer

	commands chan screen.Command
	history  *history.Store
	alerts   *alerts.Detector
	alertCh  chan alerts.Alert

	mu        sync.RWMutex
	started   bool
	running   bool
	startedAt time.Time
	err       error
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	done      chan struct{}
	stopOnce  sync.Once
}

// New creates a manager. Nothing runs until Start.
func New(cfg *config.Config, deps Deps) *Manager {
	rs := deps.Regions
	if len(rs) == 0 {
		rs = regions.Default()
	}
	slot := frame.NewSlot()
	commands := make(chan screen.Command, cfg.ResultBuffer)

	return &Manager{
		cfg:      cfg,
		feed:     frame.NewFeed(slot),
		capturer: deps.Capturer,
		engine:   deps.Engine,
		proc: screen.NewProcessor(slot, deps.Engine, deps.Icon, commands, screen.Config{
			Regions:           rs,
			SummaryEvery:      cfg.SummaryEvery,
			MaxEngineFailures: cfg.MaxEngineFailures,
			SkipSimilar:       cfg.SkipSimilarFrames,
		}),
		commands: commands,
		history:  history.NewStore(cfg.HistorySize, HistoryEventBuffer),
		alerts:   alerts.NewDetector(rs, cfg.AlertCooldown, cfg.PopCapRatio, cfg.AlertsEnabled),
		alertCh:  make(chan alerts.Alert, AlertChannelBuffer),
		done:     make(chan struct{}),
	}
}

// Start launches the processor, the result consumer and, if configured,
// the capture loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.New("manager already started")
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.started = true
	m.running = true
	m.startedAt = time.Now()

	procDone := make(chan struct{})
	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		defer close(procDone)
		if err := m.proc.Run(ctx, m.feed.Signals()); err != nil {
			trace.Logger(ctx).Error("frame processor failed", "error", err)
			m.setErr(err)
		}
	}()
	go func() {
		defer m.wg.Done()
		m.consume(ctx, procDone)
	}()

	if m.capturer != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := screencap.Loop(ctx, m.capturer, m.feed, m.cfg.CaptureRate); err != nil {
				trace.Logger(ctx).Error("capture loop failed", "error", err)
			}
		}()
	}

	go func() {
		<-procDone
		m.cancel()
		m.wg.Wait()
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(m.done)
	}()

	trace.Logger(ctx).Info("manager started", "engine", m.EngineName(), "capture", m.capturer != nil)
	return nil
}

// consume drains the command channel until Quit or the processor exits.
func (m *Manager) consume(ctx context.Context, procDone <-chan struct{}) {
	for {
		select {
		case cmd := <-m.commands:
			if !m.handle(ctx, cmd) {
				return
			}
		case <-procDone:
			for {
				select {
				case cmd := <-m.commands:
					if !m.handle(ctx, cmd) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// handle applies one command and reports whether consumption continues.
func (m *Manager) handle(ctx context.Context, cmd screen.Command) bool {
	log := trace.Logger(ctx)
	switch cmd.Kind {
	case screen.AboutToProcessFrames:
		log.Debug("processor ready")
	case screen.ProcessedFrame:
		entry := m.history.Add(cmd.Result)
		m.history.Emit(entry)
		for _, a := range m.alerts.Check(ctx, cmd.Result) {
			select {
			case m.alertCh <- a:
			default:
				log.Warn("alert dropped, channel full", "kind", a.Kind)
			}
		}
	case screen.Quit:
		log.Debug("processor quit")
		return false
	}
	return true
}

// Stop sends the stop sentinel and waits for everything to wind down. It
// is safe to call more than once, and after processing already failed.
func (m *Manager) Stop() {
	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	if !started {
		return
	}

	m.stopOnce.Do(func() {
		log := trace.Logger(context.Background())
		m.feed.Stop()
		select {
		case <-m.done:
		case <-time.After(StopTimeout):
			log.Warn("processor did not stop in time, cancelling")
			m.cancel()
			<-m.done
		}
		if m.capturer != nil {
			if err := m.capturer.Close(); err != nil {
				log.Warn("capturer close failed", "error", err)
			}
		}
		log.Info("manager stopped")
	})
}

// Done is closed once the processor and its consumers have exited.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Err returns the error that ended processing, if any.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

func (m *Manager) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Feed is where external producers publish frames.
func (m *Manager) Feed() *frame.Feed { return m.feed }

// Breaker is the recognition engine breaker.
func (m *Manager) Breaker() *resilience.Breaker { return m.proc.Breaker() }

// Regions returns the region table results are indexed by.
func (m *Manager) Regions() []regions.StatRegion { return m.proc.Regions() }

// Latest returns the most recent stored result.
func (m *Manager) Latest() (history.Entry, bool) { return m.history.Latest() }

// History returns results recorded within d; d <= 0 returns all.
func (m *Manager) History(d time.Duration) []history.Entry { return m.history.Recent(d) }

// ResultEvents streams stored results.
func (m *Manager) ResultEvents() <-chan history.Entry { return m.history.Events() }

// AlertEvents streams raised alerts.
func (m *Manager) AlertEvents() <-chan alerts.Alert { return m.alertCh }

// SetAlerts enables or disables alerting.
func (m *Manager) SetAlerts(enabled bool) {
	m.alerts.SetEnabled(enabled)
	trace.Logger(context.Background()).Info("alerts state changed", "enabled", enabled)
}

// AlertsEnabled reports whether alerting is on.
func (m *Manager) AlertsEnabled() bool { return m.alerts.IsEnabled() }

// EngineName describes the recognition engine.
func (m *Manager) EngineName() string {
	if s, ok := m.engine.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", m.engine)
}

// Stats returns a snapshot of pipeline counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	running, started := m.running, m.startedAt
	m.mu.RUnlock()

	var uptime float64
	if running {
		uptime = time.Since(started).Seconds()
	}
	return Stats{
		Engine:    m.EngineName(),
		Running:   running,
		Uptime:    uptime,
		History:   m.history.Len(),
		Slot:      m.feed.Slot().Stats(),
		Processor: m.proc.Stats(),
	}
}
