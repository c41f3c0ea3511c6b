// Package telemetry provides the error-tracking collaborator used by the
// persistence manager and the migrations.
//
// Reporters are injected, never global. Nop is the default for
// environments without telemetry; LogReporter, PrometheusReporter and
// SpanReporter can be fanned out with Multi.
package telemetry

import (
	"context"
)

// ErrorReporter receives exceptions that the caller has decided to swallow.
type ErrorReporter interface {
	CaptureException(ctx context.Context, err error)
}

// ReporterFunc adapts a function to ErrorReporter.
type ReporterFunc func(ctx context.Context, err error)

// CaptureException calls f.
func (f ReporterFunc) CaptureException(ctx context.Context, err error) {
	f(ctx, err)
}

// Nop discards every exception.
type Nop struct{}

// CaptureException does nothing.
func (Nop) CaptureException(context.Context, error) {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r ErrorReporter) ErrorReporter {
	if r == nil {
		return Nop{}
	}
	return r
}

type multi []ErrorReporter

// Multi fans every exception out to all non-nil reporters, in order.
func Multi(reporters ...ErrorReporter) ErrorReporter {
	out := make(multi, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multi) CaptureException(ctx context.Context, err error) {
	for _, r := range m {
		r.CaptureException(ctx, err)
	}
}

type sourceKey struct{}

// Sources tag where a captured exception came from.
const (
	SourcePersistence = "persistence"
	SourceMigration   = "migration"
	SourceUnknown     = "unknown"
)

// WithSource returns a context that tags captured exceptions with source.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the tag set by WithSource, or SourceUnknown.
func SourceFrom(ctx context.Context) string {
	if ctx == nil {
		return SourceUnknown
	}
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return SourceUnknown
}
