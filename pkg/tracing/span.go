// Package tracing records per-request span trees in the context. A search
// request opens a root span and each stage below it (shard loads, matching)
// adds a child; the finished tree is logged through slog and can be returned
// to callers that ask for timings.
package tracing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type spanKey struct{}

// Span is a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time

	mu       sync.Mutex
	duration time.Duration
	ended    bool
	children []*Span
	attrs    map[string]any
}

// Summary is a finished span in a form that can be encoded as JSON.
type Summary struct {
	Name       string         `json:"name"`
	DurationMs float64        `json:"duration_ms"`
	Attrs      map[string]any `json:"attrs,omitempty"`
	Children   []Summary      `json:"children,omitempty"`
}

// StartSpan opens a root span. traceID is usually the request ID.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, spanKey{}, span), span
}

// StartChildSpan opens a span under the one in ctx. Without a parent the
// child is a detached root and is never logged by anyone else.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := newSpan(name, "")
	if parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey{}, child), child
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		attrs:     make(map[string]any),
	}
}

// End fixes the span duration. Calling End again has no effect.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.duration = time.Since(s.StartTime)
}

// Duration is zero until End is called.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext returns the current span, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey{}).(*Span); ok {
		return span
	}
	return nil
}

// Summary snapshots the span tree.
func (s *Span) Summary() Summary {
	s.mu.Lock()
	sum := Summary{
		Name:       s.Name,
		DurationMs: float64(s.duration.Microseconds()) / 1000,
	}
	if len(s.attrs) > 0 {
		sum.Attrs = make(map[string]any, len(s.attrs))
		for k, v := range s.attrs {
			sum.Attrs[k] = v
		}
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	for _, c := range children {
		sum.Children = append(sum.Children, c.Summary())
	}
	return sum
}

// Log writes the span tree to logger at debug level, one record per span.
func (s *Span) Log(logger *slog.Logger) {
	s.log(logger, s.Summary(), 0)
}

func (s *Span) log(logger *slog.Logger, sum Summary, depth int) {
	attrs := []any{
		"trace_id", s.TraceID,
		"span", sum.Name,
		"duration_ms", sum.DurationMs,
		"depth", depth,
	}
	keys := make([]string, 0, len(sum.Attrs))
	for k := range sum.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k, sum.Attrs[k])
	}
	logger.Debug("span", attrs...)
	for _, child := range sum.Children {
		s.log(logger, child, depth+1)
	}
}
