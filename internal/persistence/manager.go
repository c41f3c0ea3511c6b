// Package persistence implements the high-level manager that reads and
// writes the versioned state envelope through a storage.BackingStore.
//
// The Manager owns three pieces of bookkeeping:
//
//   - metadata: the {version} tag written next to every state tree. The
//     migration runner sets it; Set refuses to write until it has.
//   - mostRecentRetrievedState: a diagnostic snapshot of the last envelope
//     read before the first write. After the first write the live
//     application state is authoritative, so later reads leave it alone.
//   - dataPersistenceFailing: true from the first failed write until the
//     next successful one. Only the first failure of a run is reported to
//     error tracking, because a persistent outage fails every write.
//
// Write failures never reach the caller: the application keeps running on
// its in-memory state whatever the durability outcome.
package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/HendryAvila/statevault/internal/storage"
	"github.com/HendryAvila/statevault/internal/telemetry"
)

var (
	// ErrStateMissing is returned by Set when called without state.
	ErrStateMissing = errors.New("persistence: updated state is missing")

	// ErrMetadataNotSet is returned by Set before SetMetadata was called.
	ErrMetadataNotSet = errors.New(`persistence: metadata must be set before calling "Set"`)
)

// Manager is safe for concurrent use.
type Manager struct {
	store    storage.BackingStore
	reporter telemetry.ErrorReporter
	logger   *slog.Logger

	mu                       sync.Mutex
	metadata                 *storage.Meta
	mostRecentRetrievedState *storage.Envelope
	dataPersistenceFailing   bool
	isInitialized            bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithReporter sets the error-tracking collaborator. Defaults to telemetry.Nop.
func WithReporter(r telemetry.ErrorReporter) Option {
	return func(m *Manager) {
		m.reporter = telemetry.OrNop(r)
	}
}

// WithLogger sets the logger used for write failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Manager over store.
func New(store storage.BackingStore, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		reporter: telemetry.Nop{},
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Metadata returns a copy of the current metadata, or nil if never set.
func (m *Manager) Metadata() *storage.Meta {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metadata == nil {
		return nil
	}
	meta := *m.metadata
	return &meta
}

// SetMetadata establishes the version tag used by subsequent writes. No
// validation is performed.
func (m *Manager) SetMetadata(meta *storage.Meta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if meta == nil {
		m.metadata = nil
		return
	}
	cp := *meta
	m.metadata = &cp
}

// Set writes {data: state, meta: metadata} to the backing store.
//
// It returns ErrStateMissing for nil state and ErrMetadataNotSet before
// SetMetadata. Storage failures are logged, reported once per failure run
// and swallowed.
func (m *Manager) Set(ctx context.Context, state map[string]any) error {
	if state == nil {
		return ErrStateMissing
	}

	m.mu.Lock()
	if m.metadata == nil {
		m.mu.Unlock()
		return ErrMetadataNotSet
	}
	meta := *m.metadata
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.isInitialized = true
		m.mu.Unlock()
	}()

	err := m.store.Set(ctx, storage.Envelope{Data: state, Meta: &meta})
	if err == nil {
		m.mu.Lock()
		m.dataPersistenceFailing = false
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	report := !m.dataPersistenceFailing
	m.dataPersistenceFailing = true
	m.mu.Unlock()

	if report {
		m.reporter.CaptureException(telemetry.WithSource(ctx, telemetry.SourcePersistence), err)
	}
	m.logger.ErrorContext(ctx, "error setting state in local store", "error", err)
	return nil
}

// Get reads the envelope from the backing store. An empty store yields
// (nil, nil) and clears the diagnostic snapshot. Before the first write the
// snapshot is refreshed on every non-empty read.
func (m *Manager) Get(ctx context.Context) (*storage.Envelope, error) {
	result, err := m.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if result.IsEmpty() {
		m.mostRecentRetrievedState = nil
		return nil, nil
	}
	if !m.isInitialized {
		m.mostRecentRetrievedState = result.Clone()
	}
	return result, nil
}

// MostRecentRetrievedState returns a copy of the diagnostic snapshot, or nil.
func (m *Manager) MostRecentRetrievedState() *storage.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mostRecentRetrievedState.Clone()
}

// CleanUpMostRecentRetrievedState drops the diagnostic snapshot. Calling it
// again is a no-op.
func (m *Manager) CleanUpMostRecentRetrievedState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mostRecentRetrievedState != nil {
		m.mostRecentRetrievedState = nil
	}
}

// DataPersistenceFailing reports whether the last write failed.
func (m *Manager) DataPersistenceFailing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dataPersistenceFailing
}

// IsInitialized reports whether any write has completed, successfully or not.
func (m *Manager) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isInitialized
}
