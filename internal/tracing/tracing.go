// Package tracing records the Agent Loop's LLM-call and tool-call spans
// into an in-memory ring buffer for local debugging. SpanTypeRun is
// declared, but no caller records a run-level span. There is no durable
// persistence here (Non-goal: no durable crash recovery beyond the
// knowledge store's opportunistic flush); the buffer simply drops its
// oldest spans once full.
package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SpanType classifies a recorded span.
type SpanType string

const (
	SpanTypeRun     SpanType = "run"
	SpanTypeLLMCall SpanType = "llm_call"
	SpanTypeTool    SpanType = "tool_call"
)

// SpanStatus is the terminal outcome of a span.
type SpanStatus string

const (
	SpanStatusRunning   SpanStatus = "running"
	SpanStatusCompleted SpanStatus = "completed"
	SpanStatusError     SpanStatus = "error"
)

// Span is one recorded unit of work inside a run.
type Span struct {
	ID           uuid.UUID      `json:"id"`
	TraceID      uuid.UUID      `json:"traceId"`
	ParentSpanID *uuid.UUID     `json:"parentSpanId,omitempty"`
	Type         SpanType       `json:"type"`
	Name         string         `json:"name"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      time.Time      `json:"endTime"`
	DurationMs   int            `json:"durationMs"`
	Status       SpanStatus     `json:"status"`
	Error        string         `json:"error,omitempty"`
	Model        string         `json:"model,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	InputTokens  int            `json:"inputTokens,omitempty"`
	OutputTokens int            `json:"outputTokens,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Collector is a bounded in-memory span buffer. Safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	spans   []Span
	cap     int
	next    int
	verbose bool
}

// NewCollector creates a Collector holding at most size spans, discarding
// the oldest once full.
func NewCollector(size int, verbose bool) *Collector {
	if size <= 0 {
		size = 1000
	}
	return &Collector{cap: size, verbose: verbose}
}

// Verbose reports whether full input/output previews should be attached
// to spans (costlier, off by default).
func (c *Collector) Verbose() bool { return c.verbose }

// Record appends a span, evicting the oldest entry once the buffer is full.
func (c *Collector) Record(s Span) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.spans) < c.cap {
		c.spans = append(c.spans, s)
		return
	}
	c.spans[c.next] = s
	c.next = (c.next + 1) % c.cap
}

// ForTrace returns every recorded span for a given trace, oldest first.
func (c *Collector) ForTrace(traceID uuid.UUID) []Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Span, 0, 8)
	for _, s := range append(append([]Span(nil), c.spans[c.next:]...), c.spans[:c.next]...) {
		if s.TraceID == traceID {
			out = append(out, s)
		}
	}
	return out
}

// Recent returns up to n most-recently recorded spans, oldest first.
func (c *Collector) Recent(n int) []Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	ordered := append(append(make([]Span, 0, len(c.spans)), c.spans[c.next:]...), c.spans[:c.next]...)
	if n <= 0 || n > len(ordered) {
		n = len(ordered)
	}
	out := make([]Span, n)
	copy(out, ordered[len(ordered)-n:])
	return out
}

type ctxKey int

const (
	ctxKeyTraceID ctxKey = iota
	ctxKeyParentSpanID
	ctxKeyCollector
)

func WithTraceID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKeyTraceID, id)
}

func TraceIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxKeyTraceID).(uuid.UUID)
	return id
}

func WithParentSpanID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxKeyParentSpanID, id)
}

func ParentSpanIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxKeyParentSpanID).(uuid.UUID)
	return id
}

func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, ctxKeyCollector, c)
}

func CollectorFromContext(ctx context.Context) *Collector {
	c, _ := ctx.Value(ctxKeyCollector).(*Collector)
	return c
}
