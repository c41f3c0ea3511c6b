package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/HendryAvila/statevault/internal/migrations"
	"github.com/HendryAvila/statevault/internal/persistence"
	"github.com/HendryAvila/statevault/internal/storage"
)

// ErrNotBooted is returned by Vault operations that need a loaded state.
var ErrNotBooted = errors.New("lifecycle: state not loaded")

// Vault holds the live application state between writes. It is the
// in-memory side of the persistence manager: controllers change state here
// and every change is handed to the manager for durable storage.
type Vault struct {
	manager *persistence.Manager
	runner  *migrations.Runner
	logger  *slog.Logger

	mu  sync.RWMutex
	env *storage.Envelope
}

// NewVault creates a Vault. Call Boot before reading state.
func NewVault(m *persistence.Manager, r *migrations.Runner, logger *slog.Logger) *Vault {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Vault{manager: m, runner: r, logger: logger}
}

// Manager returns the persistence manager behind the vault.
func (v *Vault) Manager() *persistence.Manager { return v.manager }

// Runner returns the migration runner used by Boot.
func (v *Vault) Runner() *migrations.Runner { return v.runner }

// Boot loads and migrates persisted state and makes it the live state. It
// may be called again to pick up state written by another process.
func (v *Vault) Boot(ctx context.Context, firstTimeState map[string]any) (*Result, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	res, err := Boot(ctx, v.manager, v.runner, firstTimeState, v.logger)
	if res != nil && res.Envelope != nil {
		v.env = res.Envelope.Clone()
	}
	return res, err
}

// State returns a copy of the live envelope, or nil before Boot.
func (v *Vault) State() *storage.Envelope {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.env.Clone()
}

// Controller returns a copy of one controller's state.
func (v *Vault) Controller(name string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.env == nil {
		return nil, false
	}
	value, ok := v.env.Data[name]
	if !ok {
		return nil, false
	}
	return storage.CloneValue(value), true
}

// SetController replaces one controller's state and persists the whole
// tree. Storage failures are handled by the manager and do not surface
// here; the live state is updated either way.
func (v *Vault) SetController(ctx context.Context, name string, value any) error {
	if name == "" {
		return fmt.Errorf("lifecycle: controller name is required")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.env == nil {
		return ErrNotBooted
	}

	next := v.env.Clone()
	if next.Data == nil {
		next.Data = map[string]any{}
	}
	next.Data[name] = storage.CloneValue(value)

	if err := v.manager.Set(ctx, next.Data); err != nil {
		return fmt.Errorf("lifecycle: persisting %s: %w", name, err)
	}
	v.env = next
	return nil
}
