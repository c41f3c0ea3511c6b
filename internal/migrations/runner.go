package migrations

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/HendryAvila/statevault/internal/storage"
	"github.com/HendryAvila/statevault/internal/telemetry"
)

// TracerName names the tracer migration spans are started on.
const TracerName = "statevault.migrations"

// Checkpoint persists the envelope after a migration step. The runner passes
// a copy it no longer uses.
type Checkpoint func(ctx context.Context, env storage.Envelope) error

// Runner applies the pending subsequence of an ordered migration list.
type Runner struct {
	migrations []Migration
	deps       Deps
	checkpoint Checkpoint
	tracer     trace.Tracer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithReporter sets the error-tracking collaborator handed to migrations.
func WithReporter(r telemetry.ErrorReporter) RunnerOption {
	return func(rn *Runner) { rn.deps.Reporter = telemetry.OrNop(r) }
}

// WithLogger sets the logger for the runner and its migrations.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(rn *Runner) {
		if l != nil {
			rn.deps.Logger = l
		}
	}
}

// WithClock overrides time.Now for migrations that stamp records.
func WithClock(now func() time.Time) RunnerOption {
	return func(rn *Runner) {
		if now != nil {
			rn.deps.Now = now
		}
	}
}

// WithIDGenerator overrides the unique id source for new records.
func WithIDGenerator(newID func() string) RunnerOption {
	return func(rn *Runner) {
		if newID != nil {
			rn.deps.NewID = newID
		}
	}
}

// WithCheckpoint persists the envelope after every successful step, so a
// crash mid-chain resumes from the last applied version.
func WithCheckpoint(fn Checkpoint) RunnerOption {
	return func(rn *Runner) { rn.checkpoint = fn }
}

// WithTracerProvider starts one span per applied migration on tp. The
// default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) RunnerOption {
	return func(rn *Runner) {
		if tp != nil {
			rn.tracer = tp.Tracer(TracerName)
		}
	}
}

// NewRunner validates and sorts migrations. Versions must be positive and
// unique; gaps are allowed.
func NewRunner(migrations []Migration, opts ...RunnerOption) (*Runner, error) {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for i, m := range sorted {
		if m.Version < 1 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, m.Version)
		}
		if m.Migrate == nil {
			return nil, fmt.Errorf("migrations: version %d has no migrate func", m.Version)
		}
		if i > 0 && sorted[i-1].Version == m.Version {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateVersion, m.Version)
		}
	}

	r := &Runner{
		migrations: sorted,
		deps: Deps{
			Reporter: telemetry.Nop{},
			Logger:   slog.New(slog.DiscardHandler),
			Now:      time.Now,
			NewID:    uuid.NewString,
		},
		tracer: otel.GetTracerProvider().Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// With returns a copy of r with opts applied on top of its configuration.
// r is left unchanged.
func (r *Runner) With(opts ...RunnerOption) *Runner {
	cp := *r
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// Migrations returns the sorted migration list.
func (r *Runner) Migrations() []Migration {
	out := make([]Migration, len(r.migrations))
	copy(out, r.migrations)
	return out
}

// LatestVersion is the highest known migration version, or 0 with none.
func (r *Runner) LatestVersion() int {
	if len(r.migrations) == 0 {
		return 0
	}
	return r.migrations[len(r.migrations)-1].Version
}

// Pending returns the migrations above env's version, in apply order.
func (r *Runner) Pending(env *storage.Envelope) []Migration {
	current := env.Version()
	var out []Migration
	for _, m := range r.migrations {
		if m.Version > current {
			out = append(out, m)
		}
	}
	return out
}

// NeedsMigration reports whether any migration is pending for env.
func (r *Runner) NeedsMigration(env *storage.Envelope) bool {
	return len(r.Pending(env)) > 0
}

// InitialState builds the envelope for a fresh install: data is taken as
// already current, so it is tagged with the latest version and no
// migrations run.
func (r *Runner) InitialState(data map[string]any) *storage.Envelope {
	if data == nil {
		data = map[string]any{}
	}
	return &storage.Envelope{
		Meta: &storage.Meta{Version: r.LatestVersion()},
		Data: storage.CloneMap(data),
	}
}

// Migrate applies every pending migration to a copy of env.
//
// After each step meta.version is set to that migration's version and, if
// configured, the checkpoint runs. On error the last envelope that was fully
// applied (and checkpointed) is returned together with the error. env itself
// is never modified.
func (r *Runner) Migrate(ctx context.Context, env *storage.Envelope) (*storage.Envelope, error) {
	if env == nil {
		return nil, ErrNilEnvelope
	}

	current := env.Clone()
	if current.Meta == nil {
		current.Meta = &storage.Meta{Version: 0}
	}
	if current.Data == nil {
		current.Data = map[string]any{}
	}

	if current.Meta.Version > r.LatestVersion() {
		r.deps.Logger.WarnContext(ctx, "persisted state is newer than known migrations",
			"version", current.Meta.Version, "latest", r.LatestVersion())
		return current, nil
	}

	for _, m := range r.Pending(current) {
		if err := ctx.Err(); err != nil {
			return current, err
		}
		next, err := r.apply(ctx, m, current)
		if err != nil {
			return current, err
		}
		current = next
	}
	return current, nil
}

func (r *Runner) apply(ctx context.Context, m Migration, current *storage.Envelope) (*storage.Envelope, error) {
	ctx, span := r.tracer.Start(ctx, "migrations.Apply",
		trace.WithAttributes(
			attribute.Int("migration.version", m.Version),
			attribute.String("migration.name", m.Name),
			attribute.Int("state.version", current.Meta.Version),
		),
	)
	defer span.End()

	out, err := m.Migrate(ctx, current.Clone(), r.deps)
	if err == nil && out == nil {
		err = ErrNilResult
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("migrations: version %d (%s): %w", m.Version, m.Name, err)
	}

	out.Meta = &storage.Meta{Version: m.Version}
	if out.Data == nil {
		out.Data = map[string]any{}
	}

	if r.checkpoint != nil {
		if err := r.checkpoint(ctx, *out.Clone()); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("migrations: checkpoint after version %d: %w", m.Version, err)
		}
	}

	r.deps.Logger.DebugContext(ctx, "migration applied", "version", m.Version, "name", m.Name)
	span.SetStatus(codes.Ok, "")
	return out, nil
}
