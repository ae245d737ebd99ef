package amd64

import (
	"fmt"

	"github.com/tinyrange/thunk/internal/asm"
)

const (
	RAX asm.Variable = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RSP
	RBP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// Reg is a 64-bit general purpose register operand. The thunk encoders only
// ever move whole machine words, so narrower widths are not modelled.
type Reg struct {
	id asm.Variable
}

// Reg64 constructs a 64-bit register operand backed by the provided register id.
func Reg64(id asm.Variable) Reg { return Reg{id: id} }

func (r Reg) ID() asm.Variable { return r.id }

// XMM names one of the sixteen SSE registers.
type XMM uint8

const (
	X0 XMM = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
)

func (x XMM) validate() error {
	if x > 15 {
		return fmt.Errorf("amd64 asm: invalid xmm register %d", x)
	}
	return nil
}

// Memory describes a [base + disp] effective address.
type Memory struct {
	base    Reg
	disp    int32
	hasBase bool
}

// Mem constructs a memory operand referencing [base].
func Mem(base Reg) Memory {
	return Memory{base: base, hasBase: true}
}

// WithDisp returns a copy of the memory operand with the supplied displacement.
func (m Memory) WithDisp(disp int32) Memory {
	m.disp = disp
	return m
}

func (m Memory) validate() error {
	if !m.hasBase {
		return fmt.Errorf("amd64 asm: memory operand requires base register")
	}
	if _, err := regInfo(m.base.id); err != nil {
		return err
	}
	return nil
}

type fragmentFunc func(asm.Context) error

func (f fragmentFunc) Emit(ctx asm.Context) error { return f(ctx) }

type registerCode struct {
	code byte
	high bool
}

func regInfo(v asm.Variable) (registerCode, error) {
	switch v {
	case RAX:
		return registerCode{code: 0}, nil
	case RBX:
		return registerCode{code: 3}, nil
	case RCX:
		return registerCode{code: 1}, nil
	case RDX:
		return registerCode{code: 2}, nil
	case RSI:
		return registerCode{code: 6}, nil
	case RDI:
		return registerCode{code: 7}, nil
	case RSP:
		return registerCode{code: 4}, nil
	case RBP:
		return registerCode{code: 5}, nil
	case R8, R9, R10, R11, R12, R13, R14, R15:
		return registerCode{code: byte(v-R8) & 7, high: true}, nil
	default:
		return registerCode{}, fmt.Errorf("amd64 asm: unsupported register %d", v)
	}
}
