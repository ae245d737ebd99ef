// Package codegen defines the contract shared by the per-ABI trampoline
// encoders. A backend turns (target, context, shape) into a self-contained
// instruction sequence that injects context as the first integer argument
// and transfers control to target.
package codegen

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnsupported is returned when a backend cannot encode a request. Callers
// treat it as a construction-time failure, never as a fatal condition.
var ErrUnsupported = errors.New("codegen: unsupported shape or ABI")

// Arch identifies an instruction set and calling convention pair.
type Arch string

const (
	ArchInvalid Arch = "invalid"
	ArchSysVX86 Arch = "x86_64-sysv"
	ArchAAPCS64 Arch = "arm64-aapcs64"
)

// Request describes one thunk.
type Request struct {
	// Target is the implementation entry point. A Getter or Setter without
	// a target accesses the context cell directly.
	Target uintptr
	// Context is injected as the implementation's first argument, or used
	// as the cell address for a targetless Getter or Setter.
	Context uintptr
	Shape   Shape
}

// Backend encodes thunks for one ABI.
type Backend interface {
	Arch() Arch
	// Supports reports whether Encode accepts shape at all.
	Supports(shape Shape) bool
	// Encode returns the machine code for req. The result never needs
	// relocation and is at most MaxSize bytes long.
	Encode(req Request) ([]byte, error)
	// MaxSize is an upper bound on the length of any encoding.
	MaxSize() int
	// Trap is one trapping instruction used to poison freed code.
	Trap() []byte
}

// Validate checks the shape/target pairing shared by every backend.
func (r Request) Validate(b Backend) error {
	if !r.Shape.Valid() {
		return fmt.Errorf("%w: unknown shape %d", ErrUnsupported, int(r.Shape))
	}
	if !b.Supports(r.Shape) {
		return fmt.Errorf("%w: %s does not encode %s", ErrUnsupported, b.Arch(), r.Shape)
	}
	if r.CellAccess() {
		if r.Context == 0 {
			return fmt.Errorf("%w: %s needs a cell address or a target function", ErrUnsupported, r.Shape)
		}
		return nil
	}
	if r.Target == 0 {
		return fmt.Errorf("%w: %s needs a target function", ErrUnsupported, r.Shape)
	}
	return nil
}

// CellAccess reports whether req is a property shape with no target, encoded
// as a plain load or store of the context cell. A property shape with a
// target is encoded like any other injection of its arity.
func (r Request) CellAccess() bool {
	return r.Shape.IsProperty() && r.Target == 0
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[Arch]Backend)
)

// RegisterBackend wires an ABI backend into the registry. It panics when the
// same architecture is registered twice so mistakes are caught during init.
func RegisterBackend(backend Backend) {
	if backend == nil {
		panic("codegen: backend must be non-nil")
	}
	arch := backend.Arch()
	if arch == ArchInvalid || arch == "" {
		panic("codegen: cannot register backend for invalid architecture")
	}

	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[arch]; exists {
		panic(fmt.Sprintf("codegen: backend for %s already registered", arch))
	}
	backends[arch] = backend
}

// Lookup returns the backend registered for arch.
func Lookup(arch Arch) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	if backend, ok := backends[arch]; ok {
		return backend, nil
	}
	return nil, fmt.Errorf("%w: no backend registered for %q", ErrUnsupported, arch)
}

// Registered lists the architectures with a backend, in no particular order.
func Registered() []Arch {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	out := make([]Arch, 0, len(backends))
	for arch := range backends {
		out = append(out, arch)
	}
	return out
}
