package arm64

import (
	"encoding/binary"
	"fmt"
)

func encodeMoveReg(dst, src Reg) (uint32, error) {
	if err := dst.validate(); err != nil {
		return 0, err
	}
	if err := src.validate(); err != nil {
		return 0, err
	}
	// ORR Xd, XZR, Xm
	return 0xAA0003E0 | (uint32(src.id) << 16) | uint32(dst.id), nil
}

func encodeMovz(dst Reg, imm uint16, shift uint32) (uint32, error) {
	if err := dst.validate(); err != nil {
		return 0, err
	}
	if shift%16 != 0 || shift > 48 {
		return 0, fmt.Errorf("arm64 asm: invalid MOVZ shift %d", shift)
	}
	hw := shift / 16
	return 0xD2800000 | (hw << 21) | (uint32(imm) << 5) | uint32(dst.id), nil
}

func encodeMovk(dst Reg, imm uint16, shift uint32) (uint32, error) {
	if err := dst.validate(); err != nil {
		return 0, err
	}
	if shift%16 != 0 || shift > 48 {
		return 0, fmt.Errorf("arm64 asm: invalid MOVK shift %d", shift)
	}
	hw := shift / 16
	return 0xF2800000 | (hw << 21) | (uint32(imm) << 5) | uint32(dst.id), nil
}

// encodeMovImm64 always produces MOVZ followed by three MOVKs so every
// immediate costs the same sixteen bytes.
func encodeMovImm64(dst Reg, value uint64) ([]uint32, error) {
	out := make([]uint32, 0, 4)
	first, err := encodeMovz(dst, uint16(value), 0)
	if err != nil {
		return nil, err
	}
	out = append(out, first)
	for shift := uint32(16); shift <= 48; shift += 16 {
		word, err := encodeMovk(dst, uint16(value>>shift), shift)
		if err != nil {
			return nil, err
		}
		out = append(out, word)
	}
	return out, nil
}

func encodeLoadStore64(reg Reg, mem Memory, store bool) (uint32, error) {
	if err := reg.validate(); err != nil {
		return 0, err
	}
	imm, err := scaledOffset(mem, 8)
	if err != nil {
		return 0, err
	}
	base := uint32(0xF9400000)
	if store {
		base = 0xF9000000
	}
	return base | (imm << 10) | (uint32(mem.base.id) << 5) | uint32(reg.id), nil
}

func encodeStoreD(src D, mem Memory) (uint32, error) {
	if err := src.validate(); err != nil {
		return 0, err
	}
	imm, err := scaledOffset(mem, 8)
	if err != nil {
		return 0, err
	}
	return 0xFD000000 | (imm << 10) | (uint32(mem.base.id) << 5) | uint32(src), nil
}

func scaledOffset(mem Memory, size int32) (uint32, error) {
	if err := mem.validate(); err != nil {
		return 0, err
	}
	if mem.disp < 0 {
		return 0, fmt.Errorf("arm64 asm: negative offsets not supported in unsigned load/store")
	}
	if mem.disp%size != 0 {
		return 0, fmt.Errorf("arm64 asm: misaligned offset %d", mem.disp)
	}
	imm := mem.disp / size
	if imm > 0xFFF {
		return 0, fmt.Errorf("arm64 asm: offset out of range (%d)", mem.disp)
	}
	return uint32(imm), nil
}

func encodeFaddD(dst, left, right D) (uint32, error) {
	for _, d := range []D{dst, left, right} {
		if err := d.validate(); err != nil {
			return 0, err
		}
	}
	return 0x1E602800 | (uint32(right) << 16) | (uint32(left) << 5) | uint32(dst), nil
}

func encodeBranchReg(target Reg, link bool) (uint32, error) {
	if err := target.validate(); err != nil {
		return 0, err
	}
	if link {
		return 0xD63F0000 | (uint32(target.id) << 5), nil
	}
	return 0xD61F0000 | (uint32(target.id) << 5), nil
}

func encodeRet() uint32 {
	return 0xD65F03C0
}

func encodeBrk(imm uint16) uint32 {
	return 0xD4200000 | (uint32(imm) << 5)
}

func wordsToBytes(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}
