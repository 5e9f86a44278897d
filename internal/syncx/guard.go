// Package syncx holds the small concurrency helpers shared by the capture
// and orchestrator packages.
package syncx

import "sync"

// RWGuard is a value behind a RWMutex. Readers get copies, so T should be a
// value type or treated as immutable once stored.
type RWGuard[T any] struct {
	mu    sync.RWMutex
	value T
}

// NewGuard wraps initial.
func NewGuard[T any](initial T) *RWGuard[T] {
	return &RWGuard[T]{value: initial}
}

// Get returns a copy of the value.
func (g *RWGuard[T]) Get() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.value
}

// Set replaces the value.
func (g *RWGuard[T]) Set(v T) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Write mutates the value in place under the write lock and returns a copy
// of the result.
func (g *RWGuard[T]) Write(fn func(*T)) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.value)
	return g.value
}
