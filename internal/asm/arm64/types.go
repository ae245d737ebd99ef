package arm64

import (
	"fmt"

	"github.com/tinyrange/thunk/internal/asm"
)

// Register identifiers exposed to callers. They intentionally mirror the AMD64
// package style so the codegen backends read the same on both architectures.
const (
	X0 asm.Variable = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
)

// Reg is a 64-bit X register operand.
type Reg struct {
	id asm.Variable
}

func Reg64(id asm.Variable) Reg { return Reg{id: id} }

func (r Reg) ID() asm.Variable { return r.id }

func (r Reg) validate() error {
	if r.id < X0 || r.id > X30 {
		return fmt.Errorf("arm64 asm: invalid register %d", r.id)
	}
	return nil
}

// D names a 64-bit SIMD/FP register.
type D uint8

const (
	D0 D = iota
	D1
	D2
	D3
)

func (d D) validate() error {
	if d > 31 {
		return fmt.Errorf("arm64 asm: invalid fp register d%d", d)
	}
	return nil
}

// Memory represents [base + imm] addressing with an unsigned, scaled offset.
type Memory struct {
	base    Reg
	hasBase bool
	disp    int32
}

func Mem(base Reg) Memory {
	return Memory{base: base, hasBase: true}
}

func (m Memory) WithDisp(disp int32) Memory {
	m.disp = disp
	return m
}

func (m Memory) validate() error {
	if !m.hasBase {
		return fmt.Errorf("arm64 asm: memory reference missing base register")
	}
	return m.base.validate()
}

type fragmentFunc func(asm.Context) error

func (f fragmentFunc) Emit(ctx asm.Context) error {
	return f(ctx)
}
