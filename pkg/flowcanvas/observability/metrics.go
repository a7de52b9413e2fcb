package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for all flowcanvas instruments.
const MeterName = "flowcanvas"

// MetricsRecorder records flowcanvas metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records one dispatched node.
	RecordNodeExecution(ctx context.Context, nodeType string, duration time.Duration, err error)

	// RecordRun records a finished run with its final status.
	RecordRun(ctx context.Context, status string, duration time.Duration)

	// RecordSave records a persistence attempt. kind is "autosave" or "version".
	RecordSave(ctx context.Context, kind string, sizeBytes int64, err error)
}

type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	runs           metric.Int64Counter
	runLatency     metric.Float64Histogram
	saves          metric.Int64Counter
	saveErrors     metric.Int64Counter
	saveSize       metric.Int64Histogram
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	var (
		m   otelMetrics
		err error
	)

	if m.nodeExecutions, err = meter.Int64Counter("flowcanvas.node.executions",
		metric.WithDescription("Number of node executions")); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("flowcanvas.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.nodeErrors, err = meter.Int64Counter("flowcanvas.node.errors",
		metric.WithDescription("Number of failed node executions")); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter("flowcanvas.run.total",
		metric.WithDescription("Number of workflow runs")); err != nil {
		return nil, err
	}
	if m.runLatency, err = meter.Float64Histogram("flowcanvas.run.latency_ms",
		metric.WithDescription("Workflow run latency in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.saves, err = meter.Int64Counter("flowcanvas.save.total",
		metric.WithDescription("Number of workflow save attempts")); err != nil {
		return nil, err
	}
	if m.saveErrors, err = meter.Int64Counter("flowcanvas.save.errors",
		metric.WithDescription("Number of failed workflow saves")); err != nil {
		return nil, err
	}
	if m.saveSize, err = meter.Int64Histogram("flowcanvas.save.size_bytes",
		metric.WithDescription("Saved document size in bytes"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global OTel
// meter provider. If the instruments cannot be created it falls back to
// NoopMetrics.
//
// Configure the provider before calling:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := newOtelMetrics(otel.Meter(MeterName))
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeType string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node_type", nodeType))
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordRun(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

func (m *otelMetrics) RecordSave(ctx context.Context, kind string, sizeBytes int64, err error) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.saves.Add(ctx, 1, attrs)
	if err != nil {
		m.saveErrors.Add(ctx, 1, attrs)
		return
	}
	m.saveSize.Record(ctx, sizeBytes, attrs)
}
