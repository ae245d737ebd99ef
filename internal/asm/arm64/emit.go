package arm64

import (
	"github.com/tinyrange/thunk/internal/asm"
)

const codeAlign = 16

// EmitProgram lowers a fragment into machine code for AArch64.
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
