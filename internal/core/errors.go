package core

import (
	"fmt"

	"github.com/tinyrange/thunk/internal/codegen"
	"github.com/tinyrange/thunk/internal/execmem"
)

var (
	// ErrCodegenUnsupported reports a shape the backend cannot encode.
	ErrCodegenUnsupported = codegen.ErrUnsupported
	// ErrMemoryExhausted reports that no executable memory was available.
	ErrMemoryExhausted = execmem.ErrExhausted
)

// Error describes a failed trampoline creation.
type Error struct {
	Op    string
	Shape codegen.Shape
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("thunk: %s %s: %v", e.Op, e.Shape, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ContractViolation is the panic value raised when a caller breaks the
// lifecycle rules: freeing twice, reusing a torn down batch or mixing
// runtimes in one batch.
type ContractViolation struct {
	Op     string
	Detail string
}

func (v *ContractViolation) Error() string {
	return fmt.Sprintf("thunk: contract violation in %s: %s", v.Op, v.Detail)
}

func violate(op, format string, args ...any) {
	panic(&ContractViolation{Op: op, Detail: fmt.Sprintf(format, args...)})
}
