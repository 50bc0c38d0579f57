package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/hudreader/internal/ocr"
	"github.com/GriffinCanCode/hudreader/internal/orchestrator"
	"github.com/GriffinCanCode/hudreader/internal/orchestrator/alerts"
	"github.com/GriffinCanCode/hudreader/internal/orchestrator/history"
	"github.com/GriffinCanCode/hudreader/internal/orchestrator/screen"
	"github.com/GriffinCanCode/hudreader/internal/regions"
)

// mockPipeline for testing.
type mockPipeline struct {
	mu        sync.Mutex
	latest    *history.Entry
	entries   []history.Entry
	window    time.Duration
	alertsOn  bool
	resultsCh chan history.Entry
	alertsCh  chan alerts.Alert
}

func newMockPipeline() *mockPipeline {
	return &mockPipeline{
		alertsOn:  true,
		resultsCh: make(chan history.Entry, 10),
		alertsCh:  make(chan alerts.Alert, 10),
	}
}

func (m *mockPipeline) Latest() (history.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return history.Entry{}, false
	}
	return *m.latest, true
}

func (m *mockPipeline) History(d time.Duration) []history.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = d
	return m.entries
}

func (m *mockPipeline) Stats() orchestrator.Stats {
	return orchestrator.Stats{Engine: "template", Running: true, History: len(m.entries)}
}

func (m *mockPipeline) Regions() []regions.StatRegion      { return regions.Default() }
func (m *mockPipeline) ResultEvents() <-chan history.Entry { return m.resultsCh }
func (m *mockPipeline) AlertEvents() <-chan alerts.Alert   { return m.alertsCh }

func (m *mockPipeline) SetAlerts(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertsOn = enabled
}

func (m *mockPipeline) AlertsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alertsOn
}

func entry(id, pop string) history.Entry {
	s, _ := ocr.NewShortString(pop)
	return history.Entry{ID: id, Timestamp: time.Now(), Result: screen.AnalysisResult{Seq: 1, Texts: []ocr.ShortString{s}}}
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware([]string{"*"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Test OPTIONS request
	req := httptest.NewRequest("OPTIONS", "/test", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); v != "GET, POST, OPTIONS" {
		t.Errorf("CORS methods = %q, want %q", v, "GET, POST, OPTIONS")
	}
}

func TestCORSMiddlewareAllowList(t *testing.T) {
	handler := corsMiddleware([]string{"http://overlay.local"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		origin string
		want   string
	}{
		{"http://overlay.local", "http://overlay.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/test", http.NoBody)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if v := rec.Header().Get("Access-Control-Allow-Origin"); v != tt.want {
			t.Errorf("origin %q: allow = %q, want %q", tt.origin, v, tt.want)
		}
	}
}

func TestOriginHosts(t *testing.T) {
	got := originHosts([]string{"*", "http://localhost:3000", "overlay.local"})
	want := []string{"*", "localhost:3000", "overlay.local"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("originHosts = %v, want %v", got, want)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(3, time.Second)
	t0 := time.Unix(1000, 0)
	for i := 0; i < 3; i++ {
		if !rl.allow(t0.Add(time.Duration(i) * 100 * time.Millisecond)) {
			t.Fatalf("message %d should be allowed", i)
		}
	}
	if rl.allow(t0.Add(500 * time.Millisecond)) {
		t.Error("fourth message inside the window should be rejected")
	}
	if !rl.allow(t0.Add(time.Second)) {
		t.Error("message after the oldest left the window should be allowed")
	}
	if rl.allow(t0.Add(time.Second + 50*time.Millisecond)) {
		t.Error("window still holds three messages")
	}
}

func TestLatestEndpoint(t *testing.T) {
	pipe := newMockPipeline()
	h := New(pipe, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/latest", http.NoBody))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status without result = %d, want %d", rec.Code, http.StatusNotFound)
	}

	e := entry("abc", "95/200")
	pipe.latest = &e
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/latest", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got history.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if got.ID != "abc" || got.Result.Text(0) != "95/200" {
		t.Errorf("latest = %+v", got)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	pipe := newMockPipeline()
	pipe.entries = []history.Entry{entry("a", "1"), entry("b", "2")}
	h := New(pipe, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/history?window=30s", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got []history.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("entries = %d, want 2", len(got))
	}
	if pipe.window != 30*time.Second {
		t.Errorf("window = %v, want 30s", pipe.window)
	}

	for _, bad := range []string{"soon", "-1s", "0s", "0", "48h"} {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/history?window="+bad, http.NoBody))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("window %q: status = %d, want %d", bad, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestHistoryEndpointEmpty(t *testing.T) {
	h := New(newMockPipeline(), nil).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/history", http.NoBody))
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestStatsAndRegionsEndpoints(t *testing.T) {
	h := New(newMockPipeline(), nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/stats", http.NoBody))
	var stats StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if stats.Pipeline.Engine != "template" || !stats.Pipeline.Running {
		t.Errorf("stats = %+v", stats)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/regions", http.NoBody))
	var rs []regions.StatRegion
	if err := json.Unmarshal(rec.Body.Bytes(), &rs); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if len(rs) != len(regions.Default()) || rs[regions.IndexPop].Name != "Pop" {
		t.Errorf("regions = %+v", rs)
	}
}

func TestAlertsToggleEndpoints(t *testing.T) {
	pipe := newMockPipeline()
	h := New(pipe, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/alerts/disable", http.NoBody))
	if rec.Code != http.StatusOK || pipe.AlertsEnabled() {
		t.Errorf("disable: status %d, enabled %v", rec.Code, pipe.AlertsEnabled())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/alerts/enable", http.NoBody))
	if rec.Code != http.StatusOK || !pipe.AlertsEnabled() {
		t.Errorf("enable: status %d, enabled %v", rec.Code, pipe.AlertsEnabled())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/alerts/enable", http.NoBody))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET on POST route = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

// readType reads messages until one of the wanted type arrives.
func readType(t *testing.T, ctx context.Context, conn *websocket.Conn, want string) json.RawMessage {
	t.Helper()
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			t.Fatalf("read %q: %v", want, err)
		}
		var base Message
		if err := json.Unmarshal(raw, &base); err != nil {
			t.Fatalf("json.Unmarshal error: %v", err)
		}
		if base.Type == want {
			return raw
		}
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	pipe := newMockPipeline()
	srv := New(pipe, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go srv.Broadcast(ctx)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	var hello HelloMessage
	if err := json.Unmarshal(readType(t, ctx, conn, "hello"), &hello); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if hello.ClientID == "" || len(hello.Regions) != len(regions.Default()) || !hello.AlertsEnabled {
		t.Errorf("hello = %+v", hello)
	}

	pipe.resultsCh <- entry("r1", "42")
	var res ResultMessage
	if err := json.Unmarshal(readType(t, ctx, conn, "result"), &res); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if res.Entry.ID != "r1" || res.Entry.Result.Text(0) != "42" {
		t.Errorf("result = %+v", res.Entry)
	}

	pipe.alertsCh <- alerts.Alert{Kind: alerts.IdleVillagers, Value: "2"}
	var al AlertMessage
	if err := json.Unmarshal(readType(t, ctx, conn, "alert"), &al); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if al.Alert.Kind != alerts.IdleVillagers || al.Alert.Value != "2" {
		t.Errorf("alert = %+v", al.Alert)
	}
}

func TestWebSocketHelloPrecedesBroadcasts(t *testing.T) {
	srv := New(newMockPipeline(), nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	flood, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		for flood.Err() == nil {
			srv.broadcast(ResultMessage{Type: "result", Entry: entry("flood", "1")})
		}
	}()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	var first Message
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if first.Type != "hello" {
		t.Errorf("first message type = %q, want hello", first.Type)
	}
}

func TestWebSocketControlMessages(t *testing.T) {
	pipe := newMockPipeline()
	srv := New(pipe, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	readType(t, ctx, conn, "hello")

	if err := wsjson.Write(ctx, conn, ControlMessage{Type: "ping"}); err != nil {
		t.Fatalf("write error: %v", err)
	}
	readType(t, ctx, conn, "pong")

	off := false
	if err := wsjson.Write(ctx, conn, ControlMessage{Type: "set_alerts", Enabled: &off}); err != nil {
		t.Fatalf("write error: %v", err)
	}
	var state AlertsStateMessage
	if err := json.Unmarshal(readType(t, ctx, conn, "alerts_state"), &state); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if state.Enabled || pipe.AlertsEnabled() {
		t.Error("alerts should be disabled")
	}

	if err := wsjson.Write(ctx, conn, ControlMessage{Type: "bogus"}); err != nil {
		t.Fatalf("write error: %v", err)
	}
	var em ErrorMessage
	if err := json.Unmarshal(readType(t, ctx, conn, "error"), &em); err != nil {
		t.Fatalf("json.Unmarshal error: %v", err)
	}
	if em.Message != "unknown message type" {
		t.Errorf("error message = %q", em.Message)
	}
}
