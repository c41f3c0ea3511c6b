package telemetry

import (
	"context"
	"sync"
)

// Recorder keeps every captured exception in memory. Tests and the MCP
// diagnostics tool use it to inspect what was reported.
type Recorder struct {
	mu     sync.Mutex
	errors []error
}

// CaptureException appends err.
func (r *Recorder) CaptureException(_ context.Context, err error) {
	r.mu.Lock()
	r.errors = append(r.errors, err)
	r.mu.Unlock()
}

// Errors returns a copy of the captured exceptions in capture order.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errors))
	copy(out, r.errors)
	return out
}

// Count returns how many exceptions were captured.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

// Reset forgets everything captured so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.errors = nil
	r.mu.Unlock()
}
