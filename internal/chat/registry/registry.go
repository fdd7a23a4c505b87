// Package registry tracks in-flight streaming exchanges. Membership is
// the single source of truth for chunk delivery: once an id is removed,
// whether by cancellation or completion, the coordinator stops
// delivering for it, even though the underlying transport call may
// still be running.
package registry

import "sync"

// Registry holds the ids of active streams.
type Registry struct {
	streams sync.Map
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register marks a stream as active.
func (r *Registry) Register(streamID string) {
	r.streams.Store(streamID, struct{}{})
}

// IsActive reports whether chunks for this stream should still be
// delivered.
func (r *Registry) IsActive(streamID string) bool {
	_, ok := r.streams.Load(streamID)
	return ok
}

// Cancel removes a stream and reports whether a cancellable entry
// existed. The transport call is left to finish on its own; its
// callbacks become no-ops.
func (r *Registry) Cancel(streamID string) bool {
	_, existed := r.streams.LoadAndDelete(streamID)
	return existed
}

// Unregister removes a stream after completion or failure.
func (r *Registry) Unregister(streamID string) {
	r.streams.Delete(streamID)
}

// Len counts active streams.
func (r *Registry) Len() int {
	n := 0
	r.streams.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
