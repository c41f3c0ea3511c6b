package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// Backend names accepted by Open.
const (
	BackendSQLite  = "sqlite"
	BackendBadger  = "badger"
	BackendFile    = "file"
	BackendNetwork = "network"
	BackendMemory  = "memory"
)

// Backends lists every backend name Open understands.
var Backends = []string{BackendSQLite, BackendBadger, BackendFile, BackendNetwork, BackendMemory}

// OpenOptions selects and configures a BackingStore variant.
type OpenOptions struct {
	Backend        string
	DataDir        string
	FixtureURL     string
	FixtureTimeout time.Duration
	Logger         *slog.Logger
}

// Open builds the BackingStore named by opts.Backend. The returned close
// function is never nil.
func Open(opts OpenOptions) (BackingStore, func() error, error) {
	noop := func() error { return nil }
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch opts.Backend {
	case BackendSQLite, "":
		s, err := NewSQLiteStore(SQLiteConfig{DataDir: opts.DataDir})
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case BackendBadger:
		s, err := NewBadgerStore(BadgerConfig{
			Path:       filepath.Join(opts.DataDir, "badger"),
			SyncWrites: true,
			Logger:     logger.With("component", "badger"),
		})
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case BackendFile:
		return NewFileStore(opts.DataDir), noop, nil
	case BackendNetwork:
		return NewNetworkStore(
			WithFixtureURL(opts.FixtureURL),
			WithFixtureTimeout(opts.FixtureTimeout),
			WithNetworkLogger(logger),
		), noop, nil
	case BackendMemory:
		return NewMemoryStore(nil), noop, nil
	default:
		return nil, noop, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}
