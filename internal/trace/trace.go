// Package trace carries trace and span ids through contexts, HTTP headers
// and gRPC metadata, and decorates loggers with them.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"
)

// Propagation keys, shared by HTTP headers and gRPC metadata.
const (
	TraceIDKey      = "x-trace-id"
	SpanIDKey       = "x-span-id"
	ParentSpanIDKey = "x-parent-span-id"
)

// Id sizes in bytes; hex encoding doubles them.
const (
	traceIDBytes = 16
	spanIDBytes  = 8
)

type ctxKey struct{}

// Context identifies one span within a trace.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New starts a fresh trace.
func New() Context {
	return Context{TraceID: randomHex(traceIDBytes), SpanID: randomHex(spanIDBytes)}
}

// NewChild opens a span under parent, or a fresh trace when parent has
// no trace id.
func NewChild(parent Context) Context {
	if parent.TraceID == "" {
		return New()
	}
	return Context{TraceID: parent.TraceID, SpanID: randomHex(spanIDBytes), ParentSpanID: parent.SpanID}
}

// FromContext returns the trace context stored in ctx.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext stores tc in ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// extract builds a server-side context from a carrier such as HTTP headers
// or gRPC metadata. The caller's span becomes the parent.
func extract(get func(key string) string) Context {
	tc := Context{
		TraceID:      get(TraceIDKey),
		SpanID:       randomHex(spanIDBytes),
		ParentSpanID: get(SpanIDKey),
	}
	if tc.TraceID == "" {
		tc.TraceID = randomHex(traceIDBytes)
	}
	return tc
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Span times one operation, such as processing a frame. It is owned by
// the goroutine that started it.
type Span struct {
	Name  string
	Ctx   Context
	start time.Time
	end   time.Time
	attrs []slog.Attr
}

func newSpan(name string, tc Context) *Span {
	return &Span{Name: name, Ctx: tc, start: time.Now()}
}

// StartSpan opens a child span of whatever trace ctx carries.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent, _ := FromContext(ctx)
	s := newSpan(name, NewChild(parent))
	return WithContext(ctx, s.Ctx), s
}

// End stops the clock. Calling it again moves the end time.
func (s *Span) End() { s.end = time.Now() }

// SetAttr records an attribute, replacing an earlier one with the same key.
func (s *Span) SetAttr(key string, val any) {
	for i := range s.attrs {
		if s.attrs[i].Key == key {
			s.attrs[i] = slog.Any(key, val)
			return
		}
	}
	s.attrs = append(s.attrs, slog.Any(key, val))
}

// Attr returns the value recorded for key.
func (s *Span) Attr(key string) (any, bool) {
	for _, a := range s.attrs {
		if a.Key == key {
			return a.Value.Any(), true
		}
	}
	return nil, false
}

// RecordError stores err on the span. A nil err is ignored.
func (s *Span) RecordError(err error) {
	if err != nil {
		s.SetAttr("error", err.Error())
	}
}

// Duration is zero until End is called.
func (s *Span) Duration() time.Duration {
	if s.end.IsZero() {
		return 0
	}
	return s.end.Sub(s.start)
}

// LogValue implements slog.LogValuer.
func (s *Span) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 4+len(s.attrs))
	attrs = append(attrs,
		slog.String("name", s.Name),
		slog.String("trace_id", s.Ctx.TraceID),
		slog.String("span_id", s.Ctx.SpanID),
		slog.Duration("duration", s.Duration()),
	)
	return slog.GroupValue(append(attrs, s.attrs...)...)
}

// Logger returns the default logger decorated with the ids in ctx.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	if tc.ParentSpanID == "" {
		return slog.Default().With("trace_id", tc.TraceID, "span_id", tc.SpanID)
	}
	return slog.Default().With("trace_id", tc.TraceID, "span_id", tc.SpanID, "parent_span_id", tc.ParentSpanID)
}
