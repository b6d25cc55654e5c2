// Package metrics implements the store's Metrics Registry: a mapping from
// counter name to a monotonically updated int64 value. Counters are
// observability only — nothing here is part of on-disk state.
package metrics

import "sync"

// Well-known counter names updated by the store and its filesystem helpers.
const (
	BlobCount = "blobCount"
	ByteCount = "byteCount"

	OpExists         = "fsExists"
	OpCreateDir      = "fsCreateDirectories"
	OpIsDirectory    = "fsIsDirectory"
	OpList           = "fsList"
	OpDeleteIfExists = "fsDeleteIfExists"
	OpOpenOutput     = "fsOpenOutput"
	OpSize           = "fsSize"
	OpAtomicMove     = "fsAtomicMove"
)

// Registry is a concurrency-safe map of named int64 counters.
type Registry struct {
	mu       sync.Mutex
	counters map[string]int64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{counters: make(map[string]int64)}
}

// Inc increments the named counter by 1.
func (r *Registry) Inc(name string) {
	r.IncBy(name, 1)
}

// IncBy increments the named counter by n (n may be negative).
func (r *Registry) IncBy(name string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += n
}

// Dec decrements the named counter by 1.
func (r *Registry) Dec(name string) {
	r.IncBy(name, -1)
}

// DecBy decrements the named counter by n (n may be negative).
func (r *Registry) DecBy(name string, n int64) {
	r.IncBy(name, -n)
}

// Set overwrites the named counter with an absolute value. Used by the
// startup scan to reestablish blobCount/byteCount from disk.
func (r *Registry) Set(name string, value int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] = value
}

// Get returns the current value of the named counter (0 if never touched).
func (r *Registry) Get(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

// Snapshot returns a copy of all counters, useful for tests and diagnostics.
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		out[k] = v
	}
	return out
}
