package telemetry

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LogReporter writes captured exceptions to a structured logger.
type LogReporter struct {
	Logger *slog.Logger
}

// CaptureException logs err at ERROR with its source.
func (r LogReporter) CaptureException(ctx context.Context, err error) {
	if r.Logger == nil || err == nil {
		return
	}
	r.Logger.ErrorContext(ctx, "captured exception",
		slog.String("source", SourceFrom(ctx)),
		slog.String("error", err.Error()),
	)
}

// PrometheusReporter counts captured exceptions by source.
type PrometheusReporter struct {
	captured *prometheus.CounterVec
}

// NewPrometheusReporter registers statevault_captured_exceptions_total on
// reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusReporter(reg prometheus.Registerer) *PrometheusReporter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusReporter{
		captured: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "statevault_captured_exceptions_total",
			Help: "Total exceptions reported to error tracking, by source",
		}, []string{"source"}),
	}
}

// CaptureException increments the counter for the context's source.
func (r *PrometheusReporter) CaptureException(ctx context.Context, err error) {
	if err == nil {
		return
	}
	r.captured.WithLabelValues(SourceFrom(ctx)).Inc()
}

// Counter exposes the underlying vector for scraping and tests.
func (r *PrometheusReporter) Counter() *prometheus.CounterVec {
	return r.captured
}

// SpanReporter records captured exceptions on the span active in ctx.
// Without an active span it does nothing.
type SpanReporter struct{}

// CaptureException records err on the current span and marks it failed.
func (SpanReporter) CaptureException(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
