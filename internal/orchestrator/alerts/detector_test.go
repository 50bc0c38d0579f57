package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/GriffinCanCode/hudreader/internal/ocr"
	"github.com/GriffinCanCode/hudreader/internal/orchestrator/screen"
	"github.com/GriffinCanCode/hudreader/internal/regions"
)

func resultWith(pop, idle string) screen.AnalysisResult {
	texts := make([]ocr.ShortString, len(regions.Default()))
	texts[regions.IndexPop], _ = ocr.NewShortString(pop)
	texts[regions.IndexIdle], _ = ocr.NewShortString(idle)
	return screen.AnalysisResult{Texts: texts}
}

func newTestDetector(enabled bool) (*Detector, *time.Time) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(regions.Default(), 10*time.Second, 0.95, enabled)
	d.now = func() time.Time { return now }
	return d, &now
}

func kinds(as []Alert) []Kind {
	var out []Kind
	for _, a := range as {
		out = append(out, a.Kind)
	}
	return out
}

func TestDetectorDisabled(t *testing.T) {
	d, _ := newTestDetector(false)
	if got := d.Check(context.Background(), resultWith("200/200", "3")); got != nil {
		t.Errorf("disabled detector returned %v", got)
	}
}

func TestDetectorIdle(t *testing.T) {
	d, _ := newTestDetector(true)

	got := d.Check(context.Background(), resultWith("10/200", "3"))
	if len(got) != 1 || got[0].Kind != IdleVillagers || got[0].Value != "3" {
		t.Errorf("Check() = %+v, want one idle alert", got)
	}
	if got := d.Check(context.Background(), resultWith("10/200", "0")); len(got) != 0 {
		t.Errorf("zero idle should not alert, got %v", kinds(got))
	}
}

func TestDetectorPopulation(t *testing.T) {
	tests := []struct {
		pop  string
		want bool
	}{
		{"190/200", true},
		{"189/200", false},
		{"200/200", true},
		{"5/0", false},
		{"200", false},
		{"", false},
	}
	for _, tt := range tests {
		d, _ := newTestDetector(true)
		got := d.Check(context.Background(), resultWith(tt.pop, ""))
		if fired := len(got) == 1 && got[0].Kind == PopulationCapped; fired != tt.want {
			t.Errorf("pop %q: alerts %v, want fired=%v", tt.pop, kinds(got), tt.want)
		}
	}
}

func TestDetectorCooldown(t *testing.T) {
	d, now := newTestDetector(true)
	res := resultWith("200/200", "2")

	if got := d.Check(context.Background(), res); len(got) != 2 {
		t.Fatalf("first check: %v, want both alerts", kinds(got))
	}
	*now = now.Add(5 * time.Second)
	if got := d.Check(context.Background(), res); len(got) != 0 {
		t.Errorf("within cooldown: %v, want none", kinds(got))
	}
	*now = now.Add(6 * time.Second)
	if got := d.Check(context.Background(), res); len(got) != 2 {
		t.Errorf("after cooldown: %v, want both alerts", kinds(got))
	}
}

func TestDetectorMissingCategory(t *testing.T) {
	rs := []regions.StatRegion{{Name: "Food", X: 50, Y: -221, Width: 80, Height: 34}}
	d := NewDetector(rs, time.Second, 0.95, true)
	s, _ := ocr.NewShortString("200/200")
	if got := d.Check(context.Background(), screen.AnalysisResult{Texts: []ocr.ShortString{s}}); len(got) != 0 {
		t.Errorf("Check() = %v, want none", kinds(got))
	}
}

func TestSetEnabled(t *testing.T) {
	d, _ := newTestDetector(true)
	d.SetEnabled(false)
	if d.IsEnabled() {
		t.Error("should be disabled")
	}
	d.SetEnabled(true)
	if !d.IsEnabled() {
		t.Error("should be enabled")
	}
}

func TestParseRatio(t *testing.T) {
	cur, limit, ok := ParseRatio("95/200")
	if !ok || cur != 95 || limit != 200 {
		t.Errorf("ParseRatio = (%d, %d, %v), want (95, 200, true)", cur, limit, ok)
	}
	if _, _, ok := ParseRatio("95//200"); ok {
		t.Error("double slash should not parse")
	}
}
