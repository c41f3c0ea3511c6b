package storage

import (
	"context"
	"sync"
)

// MemoryStore is a volatile BackingStore intended for tests and the
// "memory" backend. Reads and writes copy the envelope so callers never
// share maps with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	envelope *Envelope
}

// NewMemoryStore creates a store, optionally seeded with an envelope.
func NewMemoryStore(seed *Envelope) *MemoryStore {
	return &MemoryStore{envelope: seed.Clone()}
}

// Get returns a copy of the stored envelope, or nil when empty.
func (s *MemoryStore) Get(_ context.Context) (*Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.envelope.Clone(), nil
}

// Set replaces the stored envelope.
func (s *MemoryStore) Set(_ context.Context, envelope Envelope) error {
	s.mu.Lock()
	s.envelope = envelope.Clone()
	s.mu.Unlock()
	return nil
}
