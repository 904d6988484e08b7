// Package telemetry gives the orchestrator structured logging, metrics, and
// tracing without coupling it to a specific backend, adapted from
// runtime/agents/telemetry/telemetry.go.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the orchestrator.
// Implementations typically delegate to Clue but the interface stays small
// so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter and histogram helpers for pipeline instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so orchestrator code stays agnostic of the
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

// PipelineTelemetry captures observability metadata for one spec evaluation:
// per-stage timings and the witness/verdict it resolved to. Unlike the
// teacher's per-tool ToolTelemetry, TRT has no notion of a single tool
// invocation worth instrumenting in isolation — the unit of observability is
// a whole run through the pipeline (§4.1→§4.9), so the fields are the stage
// durations plus the outcome.
type PipelineTelemetry struct {
	SpecName          string
	SubprocessMS      int64
	AbstractionMS     int64
	ContractMS        int64
	RefinementMS      int64
	ShrinkMS          int64
	VerdictStatus     string
	WitnessIndex      int
	PrimaryCode       string
	Extra             map[string]any
}
