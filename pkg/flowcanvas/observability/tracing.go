package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for flowcanvas spans.
const TracerName = "flowcanvas"

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartRunSpan starts a span covering one workflow run.
	StartRunSpan(ctx context.Context, workflowID, runID string) (context.Context, trace.Span)

	// StartNodeSpan starts a child span for one node dispatch.
	StartNodeSpan(ctx context.Context, nodeID, nodeType string) (context.Context, trace.Span)

	// StartSaveSpan starts a span covering one workflow save.
	StartSaveSpan(ctx context.Context, workflowID, kind string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the span in ctx.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager using the global OTel tracer
// provider. The tracer is resolved on every span so a provider installed
// after construction is still honoured.
func NewSpanManager() SpanManager {
	return otelSpanManager{}
}

func tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

func (otelSpanManager) StartRunSpan(ctx context.Context, workflowID, runID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "flowcanvas.run",
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("run.id", runID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (otelSpanManager) StartNodeSpan(ctx context.Context, nodeID, nodeType string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "flowcanvas.node."+nodeType,
		trace.WithAttributes(
			attribute.String("node.id", nodeID),
			attribute.String("node.type", nodeType),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (otelSpanManager) StartSaveSpan(ctx context.Context, workflowID, kind string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "flowcanvas.save",
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("save.kind", kind),
		),
	)
}

func (otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
