// Package alerts raises notifications from recognized HUD values
package alerts

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/hudreader/internal/orchestrator/screen"
	"github.com/GriffinCanCode/hudreader/internal/regions"
	"github.com/GriffinCanCode/hudreader/internal/trace"
)

// Kind identifies an alert rule.
type Kind string

const (
	IdleVillagers    Kind = "idle_villagers"
	PopulationCapped Kind = "population_capped"
)

// Alert is raised at most once per cooldown per kind.
type Alert struct {
	Kind    Kind      `json:"kind"`
	Value   string    `json:"value"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Detector evaluates results against the alert rules.
type Detector struct {
	mu       sync.Mutex
	enabled  bool
	cooldown time.Duration
	capRatio float64
	idleIdx  int
	popIdx   int
	last     map[Kind]time.Time
	now      func() time.Time
}

// NewDetector builds a detector for the region table. Rules whose region
// category is missing from the table never fire.
func NewDetector(rs []regions.StatRegion, cooldown time.Duration, capRatio float64, enabled bool) *Detector {
	return &Detector{
		enabled:  enabled,
		cooldown: cooldown,
		capRatio: capRatio,
		idleIdx:  regions.IndexOf(rs, regions.IdleCount),
		popIdx:   regions.IndexOf(rs, regions.PopulationRatio),
		last:     make(map[Kind]time.Time),
		now:      time.Now,
	}
}

// Check returns the alerts res triggers.
func (d *Detector) Check(ctx context.Context, res screen.AnalysisResult) []Alert {
	if !d.IsEnabled() {
		return nil
	}

	var out []Alert
	if idle := res.Text(d.idleIdx); idle != "" {
		if n, err := strconv.Atoi(idle); err == nil && n > 0 {
			out = d.fire(out, IdleVillagers, idle, strconv.Itoa(n)+" idle villagers")
		}
	}
	if pop := res.Text(d.popIdx); pop != "" {
		if cur, limit, ok := ParseRatio(pop); ok && limit > 0 && float64(cur) >= d.capRatio*float64(limit) {
			out = d.fire(out, PopulationCapped, pop, "population at "+pop)
		}
	}

	for _, a := range out {
		trace.Logger(ctx).Info("alert raised", "kind", a.Kind, "value", a.Value)
	}
	return out
}

func (d *Detector) fire(out []Alert, kind Kind, value, msg string) []Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if last, ok := d.last[kind]; ok && now.Sub(last) < d.cooldown {
		return out
	}
	d.last[kind] = now
	return append(out, Alert{Kind: kind, Value: value, Message: msg, At: now})
}

// ParseRatio parses "cur/max".
func ParseRatio(s string) (cur, limit int, ok bool) {
	a, b, found := strings.Cut(s, "/")
	if !found {
		return 0, 0, false
	}
	cur, err1 := strconv.Atoi(a)
	limit, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return cur, limit, true
}

// SetEnabled enables/disables alerting
func (d *Detector) SetEnabled(enabled bool) {
	d.mu.Lock()
	d.enabled = enabled
	d.mu.Unlock()
	trace.Logger(context.Background()).Info("alert state changed", "enabled", enabled)
}

// IsEnabled returns current enabled state
func (d *Detector) IsEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}
