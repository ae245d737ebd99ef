package amd64

import (
	"encoding/binary"
	"fmt"
)

type rexState struct {
	w bool
	r bool
	x bool
	b bool
}

func (r rexState) prefix() byte {
	if !r.w && !r.r && !r.x && !r.b {
		return 0
	}
	p := byte(0x40)
	if r.w {
		p |= 0x08
	}
	if r.r {
		p |= 0x04
	}
	if r.x {
		p |= 0x02
	}
	if r.b {
		p |= 0x01
	}
	return p
}

func appendREX(out []byte, rex rexState) []byte {
	if p := rex.prefix(); p != 0 {
		out = append(out, p)
	}
	return out
}

// encodeMemoryOperand returns the ModRM (with reg field zero), optional SIB and
// displacement bytes for m, plus whether REX.B is required.
func encodeMemoryOperand(m Memory) ([]byte, bool, error) {
	if err := m.validate(); err != nil {
		return nil, false, err
	}
	base, _ := regInfo(m.base.id)

	var mod byte
	switch {
	case m.disp == 0 && base.code != 5:
		mod = 0x00
	case m.disp >= -128 && m.disp <= 127:
		mod = 0x40
	default:
		mod = 0x80
	}

	out := []byte{mod | base.code}
	if base.code == 4 {
		// RSP and R12 can only be addressed through a SIB byte.
		out = append(out, 0x24)
	}
	switch mod {
	case 0x40:
		out = append(out, byte(int8(m.disp)))
	case 0x80:
		var disp [4]byte
		binary.LittleEndian.PutUint32(disp[:], uint32(m.disp))
		out = append(out, disp[:]...)
	}
	return out, base.high, nil
}

func encodeMovAbs(dst Reg, value uint64) ([]byte, error) {
	info, err := regInfo(dst.id)
	if err != nil {
		return nil, err
	}
	out := appendREX(make([]byte, 0, 10), rexState{w: true, b: info.high})
	out = append(out, 0xB8+info.code)
	var imm [8]byte
	binary.LittleEndian.PutUint64(imm[:], value)
	return append(out, imm[:]...), nil
}

func encodeMovRegReg(dst, src Reg) ([]byte, error) {
	dstInfo, err := regInfo(dst.id)
	if err != nil {
		return nil, err
	}
	srcInfo, err := regInfo(src.id)
	if err != nil {
		return nil, err
	}
	out := appendREX(make([]byte, 0, 3), rexState{w: true, r: srcInfo.high, b: dstInfo.high})
	return append(out, 0x89, 0xC0|(srcInfo.code<<3)|dstInfo.code), nil
}

// encodeMovMem encodes MOV r64, [m] (load) or MOV [m], r64 (store).
func encodeMovMem(reg Reg, mem Memory, store bool) ([]byte, error) {
	info, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}
	operand, highBase, err := encodeMemoryOperand(mem)
	if err != nil {
		return nil, err
	}
	opcode := byte(0x8B)
	if store {
		opcode = 0x89
	}
	out := appendREX(make([]byte, 0, 8), rexState{w: true, r: info.high, b: highBase})
	out = append(out, opcode)
	operand[0] |= info.code << 3
	return append(out, operand...), nil
}

// encodeIndirect encodes the FF group (ext 2 = CALL, ext 4 = JMP) on a register.
func encodeIndirect(target Reg, ext byte) ([]byte, error) {
	info, err := regInfo(target.id)
	if err != nil {
		return nil, err
	}
	out := appendREX(make([]byte, 0, 3), rexState{b: info.high})
	return append(out, 0xFF, 0xC0|(ext<<3)|info.code), nil
}

func encodePushPop(reg Reg, base byte) ([]byte, error) {
	info, err := regInfo(reg.id)
	if err != nil {
		return nil, err
	}
	out := appendREX(make([]byte, 0, 2), rexState{b: info.high})
	return append(out, base+info.code), nil
}

// encodeSSE encodes the F2-prefixed scalar double operations used by the
// float fixtures: 0F 11 (MOVSD m64, xmm) and 0F 58 (ADDSD xmm, xmm).
func encodeMovsdStore(mem Memory, src XMM) ([]byte, error) {
	if err := src.validate(); err != nil {
		return nil, err
	}
	operand, highBase, err := encodeMemoryOperand(mem)
	if err != nil {
		return nil, err
	}
	out := []byte{0xF2}
	out = appendREX(out, rexState{r: src >= 8, b: highBase})
	out = append(out, 0x0F, 0x11)
	operand[0] |= byte(src&7) << 3
	return append(out, operand...), nil
}

func encodeAddsd(dst, src XMM) ([]byte, error) {
	if err := dst.validate(); err != nil {
		return nil, err
	}
	if err := src.validate(); err != nil {
		return nil, err
	}
	out := []byte{0xF2}
	out = appendREX(out, rexState{r: dst >= 8, b: src >= 8})
	return append(out, 0x0F, 0x58, 0xC0|byte(dst&7)<<3|byte(src&7)), nil
}

func encodeRet() []byte {
	return []byte{0xC3}
}

func encodeInt3() []byte {
	return []byte{0xCC}
}

func checkEncoded(name string, b []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, fmt.Errorf("amd64 asm: %s: %w", name, err)
	}
	return b, nil
}
