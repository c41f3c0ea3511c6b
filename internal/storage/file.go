package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StateFileName is the JSON file the FileStore writes under its directory.
const StateFileName = "state.json"

// FileStore implements BackingStore with a single JSON file. Writes go to a
// temp file first and are renamed over the old one, so a crash mid-write
// leaves the previous envelope intact.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a filesystem-backed store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the absolute path of the state file.
func (fs *FileStore) Path() string {
	return filepath.Join(fs.dir, StateFileName)
}

// Get reads the state file. A missing file is not an error.
func (fs *FileStore) Get(_ context.Context) (*Envelope, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: reading state file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("storage: parsing %s: %w", StateFileName, err)
	}
	return &env, nil
}

// Set marshals and atomically replaces the state file.
func (fs *FileStore) Set(_ context.Context, envelope Envelope) error {
	if envelope.IsEmpty() {
		return ErrStateMissing
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshaling envelope: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return fmt.Errorf("storage: creating state directory: %w", err)
	}
	tmp, err := os.CreateTemp(fs.dir, StateFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, fs.Path()); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage: replacing state file: %w", err)
	}
	return nil
}
