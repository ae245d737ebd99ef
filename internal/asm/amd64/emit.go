package amd64

import (
	"github.com/tinyrange/thunk/internal/asm"
)

// codeAlign keeps consecutive slots starting on 16 byte boundaries.
const codeAlign = 16

// EmitProgram lowers a fragment into x86-64 machine code padded with int3.
func EmitProgram(fragment asm.Fragment) (asm.Program, error) {
	return asm.Emit(fragment, 0, codeAlign, TrapBytes())
}

// EmitBytes is a convenience helper returning the raw instruction stream for a fragment.
func EmitBytes(fragment asm.Fragment) ([]byte, error) {
	prog, err := EmitProgram(fragment)
	if err != nil {
		return nil, err
	}
	return prog.Bytes(), nil
}
