// Package storage implements the backing stores for the persisted state
// envelope: durable local stores (SQLite, Badger, JSON file), a read-only
// network fixture store for developer tooling, and an in-memory store.
//
// Every store persists the same record shape:
//
//	{"meta": {"version": <int>}, "data": {"<ControllerName>": <any>}}
//
// Migrations and rollback tooling depend on meta.version being an integer and
// on data being keyed exactly by controller name, so stores never rewrite the
// tree they are given.
package storage

import (
	"context"
	"errors"
)

// ErrStateMissing is returned when a write carries no state at all.
var ErrStateMissing = errors.New("storage: updated state is missing")

// Meta is the schema version tag stored next to the state tree.
type Meta struct {
	Version int `json:"version"`
}

// Envelope is the unit of persistence.
type Envelope struct {
	Meta *Meta          `json:"meta,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// BackingStore owns the durable bytes of the envelope.
//
// Get returns (nil, nil) when nothing has been persisted yet.
type BackingStore interface {
	Get(ctx context.Context) (*Envelope, error)
	Set(ctx context.Context, envelope Envelope) error
}

// IsEmpty reports whether the envelope carries neither metadata nor data.
// A nil envelope is empty.
func (e *Envelope) IsEmpty() bool {
	if e == nil {
		return true
	}
	return e.Meta == nil && len(e.Data) == 0
}

// Version returns meta.version, or 0 when no metadata is present.
func (e *Envelope) Version() int {
	if e == nil || e.Meta == nil {
		return 0
	}
	return e.Meta.Version
}

// Clone returns a deep copy. The result shares no maps or slices with e.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	out := &Envelope{}
	if e.Meta != nil {
		m := *e.Meta
		out.Meta = &m
	}
	if e.Data != nil {
		out.Data = CloneMap(e.Data)
	}
	return out
}

// CloneMap deep-copies a JSON-shaped map.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies maps and slices reachable from v. Scalars are
// returned as-is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			out[i] = CloneMap(item)
		}
		return out
	default:
		return v
	}
}
