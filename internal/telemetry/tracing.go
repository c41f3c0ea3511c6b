package telemetry

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Trace exporters accepted by TracingConfig.Exporter.
const (
	TraceExporterNone    = "none"
	TraceExporterConsole = "console"
)

// TraceExporters lists every accepted exporter name.
var TraceExporters = []string{TraceExporterNone, TraceExporterConsole}

// ErrUnknownExporter is returned for an exporter name not in TraceExporters.
var ErrUnknownExporter = errors.New("telemetry: unknown trace exporter")

// TracingConfig controls span export.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string

	// Exporter is "none" (spans are not recorded) or "console" (spans are
	// written as JSON to Output).
	Exporter string

	// Output receives console spans. Nil means stderr; stdout belongs to the
	// MCP transport.
	Output io.Writer
}

// NewTracerProvider builds an SDK tracer provider for cfg. It returns nil
// when the exporter is "none".
func NewTracerProvider(cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "", TraceExporterNone:
		return nil, nil
	case TraceExporterConsole:
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("telemetry: create exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}
