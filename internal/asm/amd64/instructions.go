package amd64

import (
	"github.com/tinyrange/thunk/internal/asm"
)

func emitEncoded(name string, encode func() ([]byte, error)) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		b, err := encode()
		bytes, err := checkEncoded(name, b, err)
		if err != nil {
			return err
		}
		ctx.EmitBytes(bytes)
		return nil
	})
}

// MovAbs loads a full 64-bit immediate. It always uses the ten byte form so
// the size of an encoded thunk does not depend on the values it embeds.
func MovAbs(dst Reg, value uint64) asm.Fragment {
	return emitEncoded("movabs", func() ([]byte, error) { return encodeMovAbs(dst, value) })
}

func MovReg(dst, src Reg) asm.Fragment {
	return emitEncoded("mov", func() ([]byte, error) { return encodeMovRegReg(dst, src) })
}

func MovToMemory(mem Memory, src Reg) asm.Fragment {
	return emitEncoded("mov store", func() ([]byte, error) { return encodeMovMem(src, mem, true) })
}

func MovFromMemory(dst Reg, mem Memory) asm.Fragment {
	return emitEncoded("mov load", func() ([]byte, error) { return encodeMovMem(dst, mem, false) })
}

func JumpReg(target Reg) asm.Fragment {
	return emitEncoded("jmp", func() ([]byte, error) { return encodeIndirect(target, 4) })
}

func CallReg(target Reg) asm.Fragment {
	return emitEncoded("call", func() ([]byte, error) { return encodeIndirect(target, 2) })
}

func Push(reg Reg) asm.Fragment {
	return emitEncoded("push", func() ([]byte, error) { return encodePushPop(reg, 0x50) })
}

func Pop(reg Reg) asm.Fragment {
	return emitEncoded("pop", func() ([]byte, error) { return encodePushPop(reg, 0x58) })
}

func MovsdToMemory(mem Memory, src XMM) asm.Fragment {
	return emitEncoded("movsd", func() ([]byte, error) { return encodeMovsdStore(mem, src) })
}

func Addsd(dst, src XMM) asm.Fragment {
	return emitEncoded("addsd", func() ([]byte, error) { return encodeAddsd(dst, src) })
}

func Ret() asm.Fragment {
	return emitEncoded("ret", func() ([]byte, error) { return encodeRet(), nil })
}

func Int3() asm.Fragment {
	return emitEncoded("int3", func() ([]byte, error) { return encodeInt3(), nil })
}

// TrapBytes is the single-byte breakpoint used to poison and pad code.
func TrapBytes() []byte {
	return encodeInt3()
}
