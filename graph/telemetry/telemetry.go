// Package telemetry defines the narrow Logger/Metrics/Tracer surface the
// executor and nodes depend on for structured logging and observability,
// plus the ToolTelemetry payload attached to emitted tool results.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the runtime. The
// interface is intentionally small so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter and histogram helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code can remain agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// ToolTelemetry captures observability metadata collected during a single
// tool execution, attached to the ToolResult events the tool node emits.
// It is not part of the hooks.NodeCompleted payload.
type ToolTelemetry struct {
	// DurationMs is the wall-clock execution time in milliseconds.
	DurationMs int64
	// RetryCount is how many times the node retried before this attempt
	// succeeded or exhausted its budget.
	RetryCount int
	// TokensUsed tracks total tokens consumed by LLM calls in this node
	// execution, when applicable.
	TokensUsed int
	// Model identifies which LLM model was used, when applicable.
	Model string
	// Extra holds node-specific metadata not captured by the common fields.
	Extra map[string]any
}
