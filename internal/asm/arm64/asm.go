package arm64

import (
	"fmt"

	"github.com/tinyrange/thunk/internal/asm"
)

// trapImmediate is the BRK comment value used for poisoned and padded code.
const trapImmediate = 0xF00D

func emitWords(name string, encode func() ([]uint32, error)) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		words, err := encode()
		if err != nil {
			return fmt.Errorf("arm64 asm: %s: %w", name, err)
		}
		ctx.EmitBytes(wordsToBytes(words...))
		return nil
	})
}

func one(word uint32, err error) ([]uint32, error) {
	if err != nil {
		return nil, err
	}
	return []uint32{word}, nil
}

func MovReg(dst, src Reg) asm.Fragment {
	return emitWords("mov", func() ([]uint32, error) { return one(encodeMoveReg(dst, src)) })
}

// MovImmediate materialises a 64-bit value with a fixed four instruction
// MOVZ/MOVK sequence.
func MovImmediate(dst Reg, value uint64) asm.Fragment {
	return emitWords("mov immediate", func() ([]uint32, error) { return encodeMovImm64(dst, value) })
}

func MovFromMemory(dst Reg, mem Memory) asm.Fragment {
	return emitWords("ldr", func() ([]uint32, error) { return one(encodeLoadStore64(dst, mem, false)) })
}

func MovToMemory(mem Memory, src Reg) asm.Fragment {
	return emitWords("str", func() ([]uint32, error) { return one(encodeLoadStore64(src, mem, true)) })
}

func StoreD(mem Memory, src D) asm.Fragment {
	return emitWords("str d", func() ([]uint32, error) { return one(encodeStoreD(src, mem)) })
}

func FaddD(dst, left, right D) asm.Fragment {
	return emitWords("fadd", func() ([]uint32, error) { return one(encodeFaddD(dst, left, right)) })
}

func BranchReg(target Reg) asm.Fragment {
	return emitWords("br", func() ([]uint32, error) { return one(encodeBranchReg(target, false)) })
}

func CallReg(target Reg) asm.Fragment {
	return emitWords("blr", func() ([]uint32, error) { return one(encodeBranchReg(target, true)) })
}

func Ret() asm.Fragment {
	return emitWords("ret", func() ([]uint32, error) { return []uint32{encodeRet()}, nil })
}

func Brk() asm.Fragment {
	return emitWords("brk", func() ([]uint32, error) { return []uint32{encodeBrk(trapImmediate)}, nil })
}

// TrapBytes is the BRK instruction used to poison and pad code.
func TrapBytes() []byte {
	return wordsToBytes(encodeBrk(trapImmediate))
}
