// Package object holds the private state of objects whose methods are
// trampolines. Native code only ever sees an opaque handle, never a Go
// pointer.
package object

import (
	"fmt"
	"sync"
)

// Registry maps handles to private state. The zero value is ready to use.
type Registry[T any] struct {
	mu    sync.Mutex
	next  uintptr
	items map[uintptr]*T
}

// Register stores v and returns its handle. Handles are never zero and are
// not reused.
func (r *Registry[T]) Register(v *T) uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.items == nil {
		r.items = make(map[uintptr]*T)
	}
	r.next++
	r.items[r.next] = v
	return r.next
}

func (r *Registry[T]) Lookup(h uintptr) (*T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[h]
	return v, ok
}

// Get is Lookup for method implementations, where an unknown handle means a
// freed object was called.
func (r *Registry[T]) Get(h uintptr) *T {
	v, ok := r.Lookup(h)
	if !ok {
		panic(fmt.Sprintf("object: call through stale handle %d", h))
	}
	return v
}

// Release removes h and returns its state.
func (r *Registry[T]) Release(h uintptr) (*T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[h]
	delete(r.items, h)
	return v, ok
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
