package agent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/browseragent/control-plane/internal/providers"
	"github.com/browseragent/control-plane/internal/tools"
	"github.com/browseragent/control-plane/internal/tracing"
)

// emitLLMSpan records one LLM call as a span on the run's trace: one
// span per model call, token usage and finish reason attached on
// success.
func (l *Loop) emitLLMSpan(ctx context.Context, start time.Time, iteration int, messages []providers.Message, resp *providers.ChatResponse, callErr error) {
	if l.trace == nil {
		return
	}
	traceID := tracing.TraceIDFromContext(ctx)
	if traceID == uuid.Nil {
		return
	}
	now := time.Now().UTC()
	span := tracing.Span{
		ID:        uuid.New(),
		TraceID:   traceID,
		Type:      tracing.SpanTypeLLMCall,
		Name:      l.provider.Name() + "/" + l.model,
		StartTime: start,
		EndTime:   now,
		Status:    tracing.SpanStatusCompleted,
		Model:     l.model,
		Provider:  l.provider.Name(),
	}
	if parent := tracing.ParentSpanIDFromContext(ctx); parent != uuid.Nil {
		span.ParentSpanID = &parent
	}
	span.DurationMs = int(now.Sub(start).Milliseconds())

	if callErr != nil {
		span.Status = tracing.SpanStatusError
		span.Error = callErr.Error()
	} else if resp != nil {
		if resp.Usage != nil {
			span.InputTokens = resp.Usage.PromptTokens
			span.OutputTokens = resp.Usage.CompletionTokens
		}
		if resp.FinishReason != "" {
			span.Metadata = map[string]any{"finishReason": resp.FinishReason, "messageCount": len(messages), "iteration": iteration}
		} else {
			span.Metadata = map[string]any{"messageCount": len(messages), "iteration": iteration}
		}
	}

	l.trace.Record(span)
}

// emitToolSpan records one tool invocation as a span, the counterpart to
// emitLLMSpan for tool calls.
func (l *Loop) emitToolSpan(ctx context.Context, start time.Time, toolName, toolCallID string, result *tools.Result) {
	if l.trace == nil {
		return
	}
	traceID := tracing.TraceIDFromContext(ctx)
	if traceID == uuid.Nil {
		return
	}
	now := time.Now().UTC()
	span := tracing.Span{
		ID:        uuid.New(),
		TraceID:   traceID,
		Type:      tracing.SpanTypeTool,
		Name:      toolName,
		StartTime: start,
		EndTime:   now,
		Status:    tracing.SpanStatusCompleted,
		Metadata:  map[string]any{"toolCallId": toolCallID},
	}
	if parent := tracing.ParentSpanIDFromContext(ctx); parent != uuid.Nil {
		span.ParentSpanID = &parent
	}
	span.DurationMs = int(now.Sub(start).Milliseconds())
	if result != nil && result.IsError {
		span.Status = tracing.SpanStatusError
		span.Error = result.Message
	}
	l.trace.Record(span)
}
