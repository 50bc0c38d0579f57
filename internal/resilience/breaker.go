// Package resilience keeps a failing recognition engine or capture backend
// from taking the pipeline down with it.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State is the position of a Breaker.
type State uint32

const (
	Closed   State = iota // calls flow
	Open                  // calls rejected until ResetTimeout passes
	HalfOpen              // letting trial calls through
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// ErrOpen is returned while a breaker rejects calls.
var ErrOpen = errors.New("breaker open")

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name     string    `json:"name"`
	State    string    `json:"state"`
	Failures int       `json:"failures"`
	Trips    uint64    `json:"trips"`
	OpenedAt time.Time `json:"opened_at,omitzero"`
}

// Breaker counts consecutive failures of one dependency. State lives in
// atomics so the hot path never locks; hooks are guarded by mu.
type Breaker struct {
	cfg      Config
	state    atomic.Uint32
	streak   atomic.Int32
	trials   atomic.Int32
	openedAt atomic.Int64
	trips    atomic.Uint64

	mu    sync.Mutex
	hooks []func(from, to State)
}

// New returns a closed breaker.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// OnChange registers fn to run after every state change, on the goroutine
// that caused it.
func (b *Breaker) OnChange(fn func(from, to State)) *Breaker {
	b.mu.Lock()
	b.hooks = append(b.hooks, fn)
	b.mu.Unlock()
	return b
}

// Allow returns ErrOpen while the breaker is open. Once ResetTimeout has
// passed the first caller moves it to half-open and is let through.
func (b *Breaker) Allow() error {
	if b.State() != Open {
		return nil
	}
	opened := time.Unix(0, b.openedAt.Load())
	if time.Since(opened) < b.cfg.ResetTimeout {
		return ErrOpen
	}
	b.move(Open, HalfOpen)
	return nil
}

// Success records a good call. In half-open, HalfOpenSuccesses of them
// close the breaker.
func (b *Breaker) Success() {
	switch b.State() {
	case Closed:
		b.streak.Store(0)
	case HalfOpen:
		if int(b.trials.Add(1)) >= b.cfg.HalfOpenSuccesses {
			b.move(HalfOpen, Closed)
		}
	}
}

// Failure records a failed call. A failed half-open call reopens immediately.
func (b *Breaker) Failure() {
	n := int(b.streak.Add(1))
	switch b.State() {
	case Closed:
		if n >= b.cfg.Threshold {
			b.move(Closed, Open)
		}
	case HalfOpen:
		b.move(HalfOpen, Open)
	}
}

// State returns the current state.
func (b *Breaker) State() State { return State(b.state.Load()) }

// Failures returns the current run of consecutive failures.
func (b *Breaker) Failures() int { return int(b.streak.Load()) }

// Snapshot reports the breaker for stats endpoints.
func (b *Breaker) Snapshot() Snapshot {
	s := Snapshot{
		Name:     b.cfg.Name,
		State:    b.State().String(),
		Failures: b.Failures(),
		Trips:    b.trips.Load(),
	}
	if b.State() != Closed {
		s.OpenedAt = time.Unix(0, b.openedAt.Load())
	}
	return s
}

// Guard calls fn unless the breaker is open and records the outcome.
func Guard[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	v, err := fn()
	if err != nil {
		b.Failure()
		return zero, err
	}
	b.Success()
	return v, nil
}

// move performs from -> to if the breaker is still in from. Losing the
// race to another goroutine is not an error.
func (b *Breaker) move(from, to State) {
	if from == to || !b.state.CompareAndSwap(uint32(from), uint32(to)) {
		return
	}
	b.trials.Store(0)

	log := slog.With("breaker", b.cfg.Name, "from", from.String())
	switch to {
	case Open:
		b.openedAt.Store(time.Now().UnixNano())
		b.trips.Add(1)
		log.Warn("breaker opened", "failures", b.Failures())
	case HalfOpen:
		log.Info("breaker half-open")
	case Closed:
		b.streak.Store(0)
		log.Info("breaker closed")
	}

	b.mu.Lock()
	hooks := b.hooks
	b.mu.Unlock()
	for _, fn := range hooks {
		fn(from, to)
	}
}
