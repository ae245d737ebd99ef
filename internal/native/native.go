// Package native bridges Go and the C calling convention used by thunks.
//
// Implementation functions become C function pointers through Callback, and
// thunk entry points are invoked with Call or bound to typed Go functions with
// Bind. Buffers handed to native code are allocated with Malloc so their
// addresses stay valid until Free.
package native

import (
	"reflect"
	"sync"

	"github.com/ebitengine/purego"
)

var callbacks struct {
	mu     sync.Mutex
	byCode map[uintptr]uintptr
}

// Callback returns a C function pointer that calls fn. The process can hold
// only a couple of thousand callbacks, so pointers are cached by the code
// address of fn. fn should be a top-level function: closures sharing code
// would share one pointer.
func Callback(fn any) uintptr {
	code := reflect.ValueOf(fn).Pointer()

	callbacks.mu.Lock()
	defer callbacks.mu.Unlock()

	if ptr, ok := callbacks.byCode[code]; ok {
		return ptr
	}
	if callbacks.byCode == nil {
		callbacks.byCode = make(map[uintptr]uintptr)
	}
	ptr := purego.NewCallback(fn)
	callbacks.byCode[code] = ptr
	return ptr
}

// Call invokes entry with integer class arguments and returns the first
// result register.
func Call(entry uintptr, args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(entry, args...)
	return r1
}

// Bind points the function variable fptr at entry. Use it for signatures with
// floating point arguments or results, which Call cannot place.
func Bind(fptr any, entry uintptr) {
	purego.RegisterFunc(fptr, entry)
}
