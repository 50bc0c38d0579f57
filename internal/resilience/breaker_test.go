package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errEngine = errors.New("engine crashed")

// tripped returns a breaker that opened after threshold failures.
func tripped(t *testing.T, threshold int, reset time.Duration) *Breaker {
	t.Helper()
	b := New(Config{Name: "engine", Threshold: threshold, ResetTimeout: reset})
	for i := 0; i < threshold; i++ {
		b.Failure()
	}
	if b.State() != Open {
		t.Fatalf("state after %d failures = %v, want open", threshold, b.State())
	}
	return b
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b := New(EngineConfig(3))
	b.Failure()
	b.Failure()
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() = %v, want nil", err)
	}
}

func TestBreakerSuccessEndsFailureRun(t *testing.T) {
	b := New(EngineConfig(3))
	b.Failure()
	b.Failure()
	b.Success()
	if got := b.Failures(); got != 0 {
		t.Fatalf("Failures() = %d, want 0", got)
	}
	b.Failure()
	b.Failure()
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerOpenRejects(t *testing.T) {
	b := tripped(t, 2, time.Hour)
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("Allow() = %v, want ErrOpen", err)
	}
}

func TestBreakerHalfOpenSuccessCloses(t *testing.T) {
	b := tripped(t, 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after reset timeout = %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	b.Success()
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
	if got := b.Failures(); got != 0 {
		t.Errorf("Failures() = %d, want 0", got)
	}
}

func TestBreakerHalfOpenNeedsConfiguredSuccesses(t *testing.T) {
	b := New(Config{Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 2})
	b.Failure()
	time.Sleep(5 * time.Millisecond)
	_ = b.Allow()

	b.Success()
	if b.State() != HalfOpen {
		t.Fatalf("state after one trial call = %v, want half-open", b.State())
	}
	b.Success()
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := tripped(t, 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_ = b.Allow()

	b.Failure()
	if b.State() != Open {
		t.Errorf("state = %v, want open", b.State())
	}
	if got := b.Snapshot().Trips; got != 2 {
		t.Errorf("Trips = %d, want 2", got)
	}
}

func TestBreakerHooksSeeEveryChange(t *testing.T) {
	var mu sync.Mutex
	var seen []State
	record := func(_, to State) {
		mu.Lock()
		seen = append(seen, to)
		mu.Unlock()
	}
	b := New(Config{Threshold: 1, ResetTimeout: time.Millisecond})
	b.OnChange(record).OnChange(func(from, to State) {
		if from == to {
			t.Errorf("hook called for %v -> %v", from, to)
		}
	})

	b.Failure()
	time.Sleep(5 * time.Millisecond)
	_ = b.Allow()
	b.Success()

	want := []State{Open, HalfOpen, Closed}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("seen[%d] = %v, want %v", i, seen[i], want[i])
		}
	}
}

func TestGuard(t *testing.T) {
	b := New(Config{Threshold: 1, ResetTimeout: time.Hour})

	n, err := Guard(b, func() (int, error) { return 7, nil })
	if err != nil || n != 7 {
		t.Fatalf("Guard() = (%d, %v), want (7, nil)", n, err)
	}

	_, err = Guard(b, func() (int, error) { return 0, errEngine })
	if !errors.Is(err, errEngine) {
		t.Fatalf("Guard() = %v, want %v", err, errEngine)
	}

	called := false
	_, err = Guard(b, func() (int, error) { called = true; return 1, nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Errorf("Guard() on open breaker = %v, called = %v", err, called)
	}
}

func TestSnapshot(t *testing.T) {
	b := New(EngineConfig(2))
	s := b.Snapshot()
	if s.Name != "engine" || s.State != "closed" || !s.OpenedAt.IsZero() {
		t.Errorf("closed snapshot = %+v", s)
	}

	b.Failure()
	b.Failure()
	s = b.Snapshot()
	if s.State != "open" || s.Failures != 2 || s.Trips != 1 || s.OpenedAt.IsZero() {
		t.Errorf("open snapshot = %+v", s)
	}
}

func TestBreakerConcurrentUse(t *testing.T) {
	b := New(Config{Threshold: 1000, ResetTimeout: time.Second})
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Guard(b, func() (struct{}, error) {
				if i%2 == 0 {
					return struct{}{}, errEngine
				}
				return struct{}{}, nil
			})
			_ = b.Snapshot()
		}()
	}
	wg.Wait()
	if b.State() != Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Closed: "closed", Open: "open", HalfOpen: "half-open", State(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d) = %q, want %q", s, got, want)
		}
	}
}

func TestConfigs(t *testing.T) {
	if got := EngineConfig(0).Threshold; got != EngineThreshold {
		t.Errorf("EngineConfig(0).Threshold = %d, want %d", got, EngineThreshold)
	}
	if got := EngineConfig(9).Threshold; got != 9 {
		t.Errorf("EngineConfig(9).Threshold = %d, want 9", got)
	}
	if got := CaptureConfig(); got.Name != "capture" || got.Threshold != CaptureThreshold {
		t.Errorf("CaptureConfig() = %+v", got)
	}

	cfg := Config{}.withDefaults()
	if cfg.Name != "default" || cfg.Threshold != 5 || cfg.ResetTimeout != 30*time.Second || cfg.HalfOpenSuccesses != 1 {
		t.Errorf("withDefaults() = %+v", cfg)
	}
}
