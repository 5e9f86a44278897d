// Package trace correlates log lines for one poll cycle, one OCR call, or
// one HTTP request. IDs follow the W3C sizes so they can be forwarded as-is.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Metadata keys for gRPC/HTTP propagation.
const (
	TraceIDKey      = "x-trace-id"
	SpanIDKey       = "x-span-id"
	ParentSpanIDKey = "x-parent-span-id"
)

type ctxKey struct{}

// Context identifies one span within a trace.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New starts a trace.
func New() Context {
	return Context{TraceID: newTraceID(), SpanID: newSpanID()}
}

// Child returns a new span in the same trace. The zero Context has no
// trace, so its child starts one.
func (c Context) Child() Context {
	if c.TraceID == "" {
		return New()
	}
	return Context{TraceID: c.TraceID, SpanID: newSpanID(), ParentSpanID: c.SpanID}
}

// FromContext returns the trace carried by ctx.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext returns ctx carrying tc.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// EnsureContext returns ctx unchanged if it carries a trace, else a copy
// carrying a new one.
func EnsureContext(ctx context.Context) (context.Context, Context) {
	if tc, ok := FromContext(ctx); ok {
		return ctx, tc
	}
	tc := New()
	return WithContext(ctx, tc), tc
}

// continueRemote starts the local span for a request that arrived with the
// caller's IDs. A missing trace ID starts a fresh trace.
func continueRemote(traceID, callerSpanID string) Context {
	if traceID == "" {
		return New()
	}
	return Context{TraceID: traceID, SpanID: newSpanID(), ParentSpanID: callerSpanID}
}

func newTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newSpanID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (c Context) attrs() []any {
	args := []any{"trace_id", c.TraceID, "span_id", c.SpanID}
	if c.ParentSpanID != "" {
		args = append(args, "parent_span_id", c.ParentSpanID)
	}
	return args
}

// Span times one operation. It is not safe for concurrent use.
type Span struct {
	name  string
	tc    Context
	start time.Time
	end   time.Time
	keys  []string
	vals  map[string]any
}

// StartSpan begins a child of whatever ctx carries.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent, _ := FromContext(ctx)
	s := &Span{name: name, tc: parent.Child(), start: time.Now()}
	return WithContext(ctx, s.tc), s
}

// Context returns the span's IDs.
func (s *Span) Context() Context { return s.tc }

// SetAttr records an attribute. Setting a key again replaces its value.
func (s *Span) SetAttr(key string, val any) {
	if s.vals == nil {
		s.vals = make(map[string]any)
	}
	if _, seen := s.vals[key]; !seen {
		s.keys = append(s.keys, key)
	}
	s.vals[key] = val
}

// End stops the clock and logs the span at debug level. Later calls are
// no-ops.
func (s *Span) End() {
	if !s.end.IsZero() {
		return
	}
	s.end = time.Now()
	slog.Debug("span finished", "span", s)
}

// Duration is zero until End.
func (s *Span) Duration() time.Duration {
	if s.end.IsZero() {
		return 0
	}
	return s.end.Sub(s.start)
}

// LogValue implements slog.LogValuer.
func (s *Span) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 5+len(s.keys))
	attrs = append(attrs,
		slog.String("name", s.name),
		slog.String("trace_id", s.tc.TraceID),
		slog.String("span_id", s.tc.SpanID),
		slog.Duration("duration", s.Duration()),
	)
	if s.tc.ParentSpanID != "" {
		attrs = append(attrs, slog.String("parent_span_id", s.tc.ParentSpanID))
	}
	for _, k := range s.keys {
		attrs = append(attrs, slog.Any(k, s.vals[k]))
	}
	return slog.GroupValue(attrs...)
}

// Logger returns the default logger annotated with ctx's trace IDs.
func Logger(ctx context.Context) *slog.Logger {
	if tc, ok := FromContext(ctx); ok {
		return slog.Default().With(tc.attrs()...)
	}
	return slog.Default()
}
