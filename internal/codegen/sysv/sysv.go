// Package sysv encodes trampolines for the x86-64 System V calling convention.
//
// Integer and pointer arguments travel in RDI, RSI, RDX, RCX, R8 and R9; the
// seventh onwards go on the stack. Vector registers, AL and the stack are never
// touched by a thunk, so floating point arguments and the variadic vector
// count pass through unchanged. R11 is used for the indirect branch because it
// is caller-saved and never carries an argument.
package sysv

import (
	"fmt"

	"github.com/tinyrange/thunk/internal/asm"
	"github.com/tinyrange/thunk/internal/asm/amd64"
	"github.com/tinyrange/thunk/internal/codegen"
)

// maxSize covers the hexadic form: push, five moves, two movabs, call, pop,
// ret, rounded up to the 16 byte code alignment.
const maxSize = 48

var argRegs = [...]amd64.Reg{
	amd64.Reg64(amd64.RDI),
	amd64.Reg64(amd64.RSI),
	amd64.Reg64(amd64.RDX),
	amd64.Reg64(amd64.RCX),
	amd64.Reg64(amd64.R8),
	amd64.Reg64(amd64.R9),
}

var (
	rax    = amd64.Reg64(amd64.RAX)
	r9     = amd64.Reg64(amd64.R9)
	branch = amd64.Reg64(amd64.R11)
)

type Backend struct{}

func init() {
	codegen.RegisterBackend(Backend{})
}

func (Backend) Arch() codegen.Arch { return codegen.ArchSysVX86 }

func (Backend) Supports(shape codegen.Shape) bool { return shape.Valid() }

func (Backend) MaxSize() int { return maxSize }

func (Backend) Trap() []byte { return amd64.TrapBytes() }

func (b Backend) Encode(req codegen.Request) ([]byte, error) {
	if err := req.Validate(b); err != nil {
		return nil, err
	}
	frag, err := b.fragment(req)
	if err != nil {
		return nil, err
	}
	prog, err := asm.Emit(frag, maxSize, 16, amd64.TrapBytes())
	if err != nil {
		return nil, fmt.Errorf("sysv: encode %s: %w", req.Shape, err)
	}
	return prog.Bytes(), nil
}

func (Backend) fragment(req codegen.Request) (asm.Fragment, error) {
	switch {
	case req.CellAccess() && req.Shape == codegen.Getter:
		return asm.Group{
			amd64.MovAbs(rax, uint64(req.Context)),
			amd64.MovFromMemory(rax, amd64.Mem(rax)),
			amd64.Ret(),
		}, nil
	case req.CellAccess():
		return asm.Group{
			amd64.MovAbs(rax, uint64(req.Context)),
			amd64.MovToMemory(amd64.Mem(rax), argRegs[0]),
			amd64.Ret(),
		}, nil
	case req.Shape == codegen.Variadic:
		// Only five argument registers survive the shift; R9 receives R8.
		return tailCall(len(argRegs)-1, req), nil
	case req.Shape == codegen.Hexadic:
		// The sixth explicit argument becomes the seventh C argument, which
		// lives on the stack, so this form calls instead of tail jumping.
		// RSP is 8 mod 16 on entry; push plus call restores that for the
		// callee.
		return asm.Group{
			amd64.Push(r9),
			shiftArgs(len(argRegs) - 1),
			amd64.MovAbs(argRegs[0], uint64(req.Context)),
			amd64.MovAbs(branch, uint64(req.Target)),
			amd64.CallReg(branch),
			amd64.Pop(branch),
			amd64.Ret(),
		}, nil
	default:
		n := req.Shape.Arity()
		if n < 0 || n >= len(argRegs) {
			return nil, fmt.Errorf("%w: sysv cannot forward %s", codegen.ErrUnsupported, req.Shape)
		}
		return tailCall(n, req), nil
	}
}

// shiftArgs moves argument i into argument i+1 for the first n arguments,
// highest first so nothing is overwritten before it is read.
func shiftArgs(n int) asm.Group {
	group := make(asm.Group, 0, n)
	for i := n - 1; i >= 0; i-- {
		group = append(group, amd64.MovReg(argRegs[i+1], argRegs[i]))
	}
	return group
}

func tailCall(n int, req codegen.Request) asm.Fragment {
	return asm.Group{
		shiftArgs(n),
		amd64.MovAbs(argRegs[0], uint64(req.Context)),
		amd64.MovAbs(branch, uint64(req.Target)),
		amd64.JumpReg(branch),
	}
}
