// Package aapcs64 encodes trampolines for the AArch64 procedure call standard
// as used on Linux. Integer arguments occupy X0-X7 and floating point
// arguments V0-V7; only the X registers are shifted. X16 (IP0) carries the
// branch target since the standard reserves it for exactly this kind of veneer.
package aapcs64

import (
	"fmt"

	"github.com/tinyrange/thunk/internal/asm"
	"github.com/tinyrange/thunk/internal/asm/arm64"
	"github.com/tinyrange/thunk/internal/codegen"
)

const (
	argCount = 8
	// Variadic shifts seven registers: 28 bytes, plus two 16 byte
	// immediates and the branch.
	maxSize = 64
)

var ip0 = arm64.Reg64(arm64.X16)

func argReg(i int) arm64.Reg {
	return arm64.Reg64(arm64.X0 + asm.Variable(i))
}

type Backend struct{}

func init() {
	codegen.RegisterBackend(Backend{})
}

func (Backend) Arch() codegen.Arch { return codegen.ArchAAPCS64 }

func (Backend) Supports(shape codegen.Shape) bool { return shape.Valid() }

func (Backend) MaxSize() int { return maxSize }

func (Backend) Trap() []byte { return arm64.TrapBytes() }

func (b Backend) Encode(req codegen.Request) ([]byte, error) {
	if err := req.Validate(b); err != nil {
		return nil, err
	}
	frag, err := b.fragment(req)
	if err != nil {
		return nil, err
	}
	prog, err := asm.Emit(frag, maxSize, 16, arm64.TrapBytes())
	if err != nil {
		return nil, fmt.Errorf("aapcs64: encode %s: %w", req.Shape, err)
	}
	return prog.Bytes(), nil
}

func (Backend) fragment(req codegen.Request) (asm.Fragment, error) {
	switch {
	case req.CellAccess() && req.Shape == codegen.Getter:
		return asm.Group{
			arm64.MovImmediate(ip0, uint64(req.Context)),
			arm64.MovFromMemory(argReg(0), arm64.Mem(ip0)),
			arm64.Ret(),
		}, nil
	case req.CellAccess():
		return asm.Group{
			arm64.MovImmediate(ip0, uint64(req.Context)),
			arm64.MovToMemory(arm64.Mem(ip0), argReg(0)),
			arm64.Ret(),
		}, nil
	case req.Shape == codegen.Variadic:
		return tailCall(argCount-1, req), nil
	default:
		n := req.Shape.Arity()
		if n < 0 || n >= argCount {
			return nil, fmt.Errorf("%w: aapcs64 cannot forward %s", codegen.ErrUnsupported, req.Shape)
		}
		return tailCall(n, req), nil
	}
}

func tailCall(n int, req codegen.Request) asm.Fragment {
	group := make(asm.Group, 0, n+3)
	for i := n - 1; i >= 0; i-- {
		group = append(group, arm64.MovReg(argReg(i+1), argReg(i)))
	}
	return append(group,
		arm64.MovImmediate(argReg(0), uint64(req.Context)),
		arm64.MovImmediate(ip0, uint64(req.Target)),
		arm64.BranchReg(ip0),
	)
}
