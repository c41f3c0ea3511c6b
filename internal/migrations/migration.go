// Package migrations evolves the persisted state tree from one schema
// version to the next.
//
// A Migration is a pure transform tagged with a version number. The Runner
// applies every migration above the envelope's meta.version in ascending
// order. Each migration receives its own deep copy of the envelope and
// returns the next one; nothing mutable is shared between steps.
//
// When a substate a migration depends on is missing or malformed, it
// reports a diagnostic through Deps.Report and returns the state unchanged,
// so one broken controller never aborts the chain for the others. Returning a Go error is reserved for conditions that must stop
// the chain.
package migrations

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/HendryAvila/statevault/internal/storage"
	"github.com/HendryAvila/statevault/internal/telemetry"
)

var (
	// ErrDuplicateVersion is returned by NewRunner when two migrations share a version.
	ErrDuplicateVersion = errors.New("migrations: duplicate migration version")

	// ErrInvalidVersion is returned by NewRunner for versions below 1.
	ErrInvalidVersion = errors.New("migrations: migration version must be positive")

	// ErrNilEnvelope is returned by Runner.Migrate when there is nothing to migrate.
	ErrNilEnvelope = errors.New("migrations: envelope is nil")

	// ErrNilResult is returned when a migration returns no envelope.
	ErrNilResult = errors.New("migrations: migration returned nil envelope")
)

// Func transforms an owned copy of the envelope. It may mutate env freely
// and return it, or return a new envelope. The runner sets meta.version
// afterwards.
type Func func(ctx context.Context, env *storage.Envelope, deps Deps) (*storage.Envelope, error)

// Migration is one ordered step in the chain.
type Migration struct {
	Version int
	Name    string
	Migrate Func
}

// Deps are the collaborators handed to every migration.
type Deps struct {
	Reporter telemetry.ErrorReporter
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

// Report sends a diagnostic to error tracking and logs it. Migrations call
// it once per early exit.
func (d Deps) Report(ctx context.Context, err error) {
	telemetry.OrNop(d.Reporter).CaptureException(telemetry.WithSource(ctx, telemetry.SourceMigration), err)
	if d.Logger != nil {
		d.Logger.WarnContext(ctx, "migration skipped", "error", err)
	}
}
