// Package server exposes pipeline results over REST and pushes results and
// alerts to websocket clients.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
	"github.com/GriffinCanCode/hudreader/internal/orchestrator"
	"github.com/GriffinCanCode/hudreader/internal/orchestrator/alerts"
	"github.com/GriffinCanCode/hudreader/internal/orchestrator/history"
	"github.com/GriffinCanCode/hudreader/internal/regions"
	"github.com/GriffinCanCode/hudreader/internal/syncx"
	"github.com/GriffinCanCode/hudreader/internal/trace"
)

// Pipeline is what the server presents. *orchestrator.Manager implements it.
type Pipeline interface {
	Latest() (history.Entry, bool)
	History(d time.Duration) []history.Entry
	Stats() orchestrator.Stats
	Regions() []regions.StatRegion
	ResultEvents() <-chan history.Entry
	AlertEvents() <-chan alerts.Alert
	SetAlerts(enabled bool)
	AlertsEnabled() bool
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

// ControlMessage is sent by clients. Enabled is only read for set_alerts.
type ControlMessage struct {
	Type    string `json:"type"`
	Enabled *bool  `json:"enabled,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type HelloMessage struct {
	Type          string   `json:"type"`
	ClientID      string   `json:"client_id"`
	Regions       []string `json:"regions"`
	AlertsEnabled bool     `json:"alerts_enabled"`
}

type ResultMessage struct {
	Type  string        `json:"type"`
	Entry history.Entry `json:"entry"`
}

type AlertMessage struct {
	Type  string       `json:"type"`
	Alert alerts.Alert `json:"alert"`
}

type AlertsStateMessage struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

type PongMessage struct {
	Type string `json:"type"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// StatsResponse is returned by GET /api/stats.
type StatsResponse struct {
	Pipeline        orchestrator.Stats `json:"pipeline"`
	Clients         int                `json:"clients"`
	DroppedMessages uint64             `json:"dropped_messages"`
}

// rateLimiter admits at most len(stamps) messages per window. stamps is a
// ring of admission times; the slot about to be reused holds the oldest.
// Only the connection's read loop touches it.
type rateLimiter struct {
	window time.Duration
	stamps []time.Time
	next   int
}

func newRateLimiter(n int, window time.Duration) *rateLimiter {
	return &rateLimiter{window: window, stamps: make([]time.Time, n)}
}

func (r *rateLimiter) allow(now time.Time) bool {
	if oldest := r.stamps[r.next]; !oldest.IsZero() && now.Sub(oldest) < r.window {
		return false
	}
	r.stamps[r.next] = now
	r.next = (r.next + 1) % len(r.stamps)
	return true
}

// client is one websocket connection. Writes go through send so a slow
// client never stalls the broadcaster.
type client struct {
	id      string
	conn    *websocket.Conn
	send    chan any
	limiter *rateLimiter
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	pipe    Pipeline
	origins []string
	clients *syncx.Registry[string, *client]
	dropped atomic.Uint64
}

// New creates a new server. Call Broadcast to start pushing events.
func New(pipe Pipeline, origins []string) *Server {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		pipe:    pipe,
		origins: origins,
		clients: syncx.NewRegistry[string, *client](),
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/latest", s.handleLatest)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/regions", s.handleRegions)
	mux.HandleFunc("POST /api/alerts/enable", s.handleAlertsEnable)
	mux.HandleFunc("POST /api/alerts/disable", s.handleAlertsDisable)

	return corsMiddleware(s.origins, trace.Middleware(mux))
}

func corsMiddleware(origins []string, next http.Handler) http.Handler {
	wildcard := slices.Contains(origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wildcard {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if o := r.Header.Get("Origin"); slices.Contains(origins, o) {
			w.Header().Set("Access-Control-Allow-Origin", o)
			w.Header().Add("Vary", "Origin")
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+trace.TraceIDKey)
		h.Set("Access-Control-Expose-Headers", trace.TraceIDKey)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originHosts converts CORS origins into websocket origin patterns, which
// match on host.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if strings.Contains(o, "://") {
			if u, err := url.Parse(o); err == nil && u.Host != "" {
				o = u.Host
			}
		}
		out = append(out, o)
	}
	return out
}

// Broadcast pushes results and alerts to every client until ctx is done.
func (s *Server) Broadcast(ctx context.Context) {
	results, alertCh := s.pipe.ResultEvents(), s.pipe.AlertEvents()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-results:
			s.broadcast(ResultMessage{Type: "result", Entry: e})
		case a := <-alertCh:
			s.broadcast(AlertMessage{Type: "alert", Alert: a})
		}
	}
}

func (s *Server) broadcast(msg any) {
	s.clients.Each(func(_ string, c *client) {
		select {
		case c.send <- msg:
		default:
			s.dropped.Add(1)
		}
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := trace.Logger(r.Context())
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originHosts(s.origins),
	})
	if err != nil {
		log.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx, span := trace.StartSpan(r.Context(), "websocket_session")
	defer span.End()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan any, ClientSendBuffer),
		limiter: newRateLimiter(RateLimitMessages, RateLimitWindow),
	}
	span.SetAttr("client_id", c.id)

	// Nothing else can write to send until the client is registered.
	c.send <- HelloMessage{
		Type:          "hello",
		ClientID:      c.id,
		Regions:       regionNames(s.pipe.Regions()),
		AlertsEnabled: s.pipe.AlertsEnabled(),
	}
	s.clients.Add(c.id, c)
	defer s.clients.Remove(c.id)

	log = trace.Logger(ctx)
	log.Info("websocket connected", "remote", r.RemoteAddr, "client_id", c.id)

	go s.writeLoop(ctx, cancel, c)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !c.limiter.allow(time.Now()) {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			s.reply(c, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var ctl ControlMessage
		if err := json.Unmarshal(msg, &ctl); err != nil {
			s.reply(c, ErrorMessage{Type: "error", Message: "invalid message"})
			continue
		}
		mctx := ctx
		if ctl.TraceID != "" {
			mctx = trace.WithContext(ctx, trace.NewChild(trace.Context{TraceID: ctl.TraceID}))
		}
		s.handleControl(mctx, c, ctl)
	}
}

func (s *Server) handleControl(ctx context.Context, c *client, ctl ControlMessage) {
	switch ctl.Type {
	case "ping":
		s.reply(c, PongMessage{Type: "pong"})
	case "latest":
		if e, ok := s.pipe.Latest(); ok {
			s.reply(c, ResultMessage{Type: "result", Entry: e})
		}
	case "set_alerts":
		if ctl.Enabled == nil {
			s.reply(c, ErrorMessage{Type: "error", Message: "set_alerts requires enabled"})
			return
		}
		s.pipe.SetAlerts(*ctl.Enabled)
		trace.Logger(ctx).Info("alerts toggled over websocket", "enabled", *ctl.Enabled, "client_id", c.id)
		s.broadcast(AlertsStateMessage{Type: "alerts_state", Enabled: *ctl.Enabled})
	default:
		s.reply(c, ErrorMessage{Type: "error", Message: "unknown message type"})
	}
}

// reply queues msg for one client, dropping it if the queue is full.
func (s *Server) reply(c *client, msg any) {
	select {
	case c.send <- msg:
	default:
		s.dropped.Add(1)
	}
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, c *client) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, done := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			done()
			if err != nil {
				trace.Logger(ctx).Debug("websocket write error", "client_id", c.id, "error", err)
				return
			}
		}
	}
}

func regionNames(rs []regions.StatRegion) []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Name
	}
	return names
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	writeJSON(w, err.HTTPStatus(), map[string]string{
		"error":   err.Code.String(),
		"message": err.Message,
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	e, ok := s.pipe.Latest()
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "no result yet"))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var window time.Duration
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 || d > MaxHistoryWindow {
			writeError(w, apperrors.Newf(apperrors.CodeInvalidArgument, "invalid window %q", v))
			return
		}
		window = d
	}
	entries := s.pipe.History(window)
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Pipeline:        s.pipe.Stats(),
		Clients:         s.clients.Len(),
		DroppedMessages: s.dropped.Load(),
	})
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pipe.Regions())
}

func (s *Server) handleAlertsEnable(w http.ResponseWriter, r *http.Request) {
	s.pipe.SetAlerts(true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "alerts_enabled"})
}

func (s *Server) handleAlertsDisable(w http.ResponseWriter, r *http.Request) {
	s.pipe.SetAlerts(false)
	writeJSON(w, http.StatusOK, map[string]string{"status": "alerts_disabled"})
}
