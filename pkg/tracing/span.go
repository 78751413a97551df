// Package tracing records per-request span trees in the request context and
// logs sampled trees through slog. Code may open child spans
// unconditionally: without a sampled root they are nil and every method is
// a no-op.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/logger"
)

type contextKey struct{}

// Span is one timed operation of a trace.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    []slog.Attr
}

// StartSpan opens a root span.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{Name: name, TraceID: traceID, Start: time.Now()}
	return context.WithValue(ctx, contextKey{}, s), s
}

// StartChildSpan opens a span under the one in ctx. It returns ctx unchanged
// and a nil span when ctx is not traced.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	child := &Span{Name: name, TraceID: parent.TraceID, Start: time.Now()}
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, contextKey{}, child), child
}

// SpanFromContext returns the innermost span of ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(contextKey{}).(*Span)
	return s
}

// End fixes the span's duration.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Duration = time.Since(s.Start)
	s.mu.Unlock()
}

// SetAttr attaches an attribute that is logged with the span.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Children returns the spans opened directly under s.
func (s *Span) Children() []*Span {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.children...)
}

// Log writes s and its descendants, one record per span.
func (s *Span) Log(ctx context.Context, l *slog.Logger) {
	s.log(ctx, l, 0)
}

func (s *Span) log(ctx context.Context, l *slog.Logger, depth int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	attrs := append([]slog.Attr{
		slog.String("trace_id", s.TraceID),
		slog.String("span", s.Name),
		slog.Float64("duration_ms", float64(s.Duration.Microseconds())/1000),
		slog.Int("depth", depth),
	}, s.attrs...)
	children := s.children
	s.mu.Unlock()

	l.LogAttrs(ctx, slog.LevelInfo, "span", attrs...)
	for _, c := range children {
		c.log(ctx, l, depth+1)
	}
}

// Middleware opens a root span for a SampleRate fraction of requests and
// logs the finished tree. The request id, when present, is the trace id.
func Middleware(cfg config.TracingConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.SampleRate <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.SampleRate < 1 && rand.Float64() >= cfg.SampleRate {
				next.ServeHTTP(w, r)
				return
			}
			traceID, ok := logger.RequestID(r.Context())
			if !ok {
				traceID = uuid.NewString()
			}
			ctx, span := StartSpan(r.Context(), r.Method+" "+r.URL.Path, traceID)
			next.ServeHTTP(w, r.WithContext(ctx))
			span.End()
			span.Log(ctx, logger.FromContext(ctx))
		})
	}
}
