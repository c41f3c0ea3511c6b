// Package lifecycle runs the startup sequence for persisted state: read the
// envelope, bring it up to the latest schema version, and hand the
// persistence manager the metadata it needs for later writes.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/HendryAvila/statevault/internal/migrations"
	"github.com/HendryAvila/statevault/internal/persistence"
	"github.com/HendryAvila/statevault/internal/storage"
)

// Result describes what Boot did.
type Result struct {
	// Envelope is the state the application should start from.
	Envelope *storage.Envelope

	// FromVersion is the version read from storage, 0 on a fresh install.
	FromVersion int

	// Applied lists the migration versions run, in order.
	Applied []int

	// FreshInstall is true when storage was empty.
	FreshInstall bool
}

// Boot loads persisted state through m and migrates it with r.
//
// Empty storage is a fresh install: firstTimeState is tagged with the latest
// migration version and written without running any migration. Otherwise
// pending migrations run in order and each step is persisted as soon as it
// completes, so an interrupted boot resumes from the last applied version.
//
// On return the manager's metadata matches the returned envelope. When a
// migration fails, the last fully applied envelope is returned together
// with the error.
func Boot(ctx context.Context, m *persistence.Manager, r *migrations.Runner, firstTimeState map[string]any, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	env, err := m.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: reading persisted state: %w", err)
	}

	if env == nil {
		env = r.InitialState(firstTimeState)
		logger.InfoContext(ctx, "no persisted state, starting fresh", "version", env.Version())
		if err := write(ctx, m, env); err != nil {
			return nil, err
		}
		return &Result{Envelope: env, FreshInstall: true}, nil
	}

	res := &Result{FromVersion: env.Version()}
	checkpointed := false

	runner := r.With(migrations.WithCheckpoint(func(ctx context.Context, step storage.Envelope) error {
		res.Applied = append(res.Applied, step.Version())
		checkpointed = true
		return write(ctx, m, &step)
	}))

	migrated, err := runner.Migrate(ctx, env)
	if err != nil {
		if migrated != nil {
			m.SetMetadata(migrated.Meta)
		}
		res.Envelope = migrated
		return res, fmt.Errorf("lifecycle: migrating from version %d: %w", res.FromVersion, err)
	}
	res.Envelope = migrated

	if !checkpointed {
		// Already current: the stored bytes are what we would write, but the
		// manager still needs the version for later writes.
		m.SetMetadata(migrated.Meta)
	}

	if len(res.Applied) > 0 {
		logger.InfoContext(ctx, "persisted state migrated",
			"from", res.FromVersion, "to", migrated.Version(), "applied", len(res.Applied))
	}
	return res, nil
}

func write(ctx context.Context, m *persistence.Manager, env *storage.Envelope) error {
	m.SetMetadata(env.Meta)
	if err := m.Set(ctx, env.Data); err != nil {
		return fmt.Errorf("lifecycle: writing version %d: %w", env.Version(), err)
	}
	return nil
}
