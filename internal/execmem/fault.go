package execmem

import (
	"fmt"
	"sync"
)

// FaultInjector wraps a Provider and fails selected allocation requests with
// ErrExhausted. Requests are numbered from one.
type FaultInjector struct {
	Provider

	mu       sync.Mutex
	failAt   int
	sticky   bool
	requests int
	injected int
}

// FailNth fails only the n-th allocation request. n <= 0 disables injection.
func FailNth(p Provider, n int) *FaultInjector {
	return &FaultInjector{Provider: p, failAt: n}
}

// FailFrom fails the n-th allocation request and every one after it.
func FailFrom(p Provider, n int) *FaultInjector {
	return &FaultInjector{Provider: p, failAt: n, sticky: true}
}

func (f *FaultInjector) Allocate(size int) (*Block, error) {
	f.mu.Lock()
	f.requests++
	n := f.requests
	fail := f.failAt > 0 && (n == f.failAt || (f.sticky && n > f.failAt))
	if fail {
		f.injected++
	}
	f.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("%w: injected failure on request %d", ErrExhausted, n)
	}
	return f.Provider.Allocate(size)
}

// Requests reports how many allocations have been attempted.
func (f *FaultInjector) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// Injected reports how many allocations were failed on purpose.
func (f *FaultInjector) Injected() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.injected
}

// Reset restarts request numbering.
func (f *FaultInjector) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = 0
	f.injected = 0
}
