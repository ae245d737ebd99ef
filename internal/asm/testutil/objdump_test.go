package testutil

import (
	"bytes"
	"debug/elf"
	"testing"
)

const llvmListing = `
/tmp/TestThunk/001/thunk-1.elf:	file format elf64-littleaarch64

Disassembly of section .text:

0000000000000000 <.text>:
       0:      	mov	x0, #0x7788
       4:      	movk	x0, #21862, lsl #16
       8:      	str	x0, [x16, #8]
       c:      	ldr	x1, [sp, #-16]
      10:      	brk	#0xf00d
`

const gnuListing = `
/tmp/TestThunk/001/thunk-1.elf:     file format elf64-littleaarch64


Disassembly of section .text:

0000000000000000 <.text>:
   0:	mov	x0, #0x7788                	// #30600
   4:	movk	x0, #0x5566, lsl #16
   8:	str	x0, [x16, #8]
   c:	ldr	x1, [sp, #-16]
  10:	brk	#0xf00d
`

func TestParseListingNormalizesImmediates(t *testing.T) {
	want := []string{
		"mov x0, #0x7788",
		"movk x0, #0x5566, lsl #0x10",
		"str x0, [x16, #0x8]",
		"ldr x1, [sp, #-0x10]",
		"brk #0xf00d",
	}
	for name, listing := range map[string]string{"llvm": llvmListing, "gnu": gnuListing} {
		t.Run(name, func(t *testing.T) {
			lines, err := parseListing([]byte(listing))
			if err != nil {
				t.Fatalf("parseListing: %v", err)
			}
			if len(lines) != len(want) {
				t.Fatalf("len=%d, want %d: %+v", len(lines), len(want), lines)
			}
			for i, w := range want {
				if !lines[i].Contains(w) {
					t.Fatalf("line %d=%q, want %q", i, lines[i].Normalized, w)
				}
			}
			if got := lines[1].Mnemonic; got != "movk" {
				t.Fatalf("mnemonic=%q, want movk", got)
			}
		})
	}
}

func TestParseListingATT(t *testing.T) {
	lines, err := parseListing([]byte("   0:\tpushq  %r9\n   2:\tmovabs $0x1122334455667788,%rdi\n   c:\tint3\n"))
	if err != nil {
		t.Fatalf("parseListing: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("len=%d, want 3", len(lines))
	}
	exp := []Expectation{
		{Name: "push", Mnemonic: "push", Contains: []string{"%r9"}},
		{Name: "movabs", Mnemonic: "movabs", Contains: []string{"$0x1122334455667788,%rdi"}},
	}
	next := VerifyExpectations(t, lines, exp)
	VerifyPadding(t, lines, next, "int3")
}

func TestTextImage(t *testing.T) {
	code := []byte{0x41, 0x51, 0xc3, 0xcc, 0xcc}
	for _, machine := range []elf.Machine{MachineX86_64, MachineAArch64} {
		image, err := textImage(code, machine)
		if err != nil {
			t.Fatalf("textImage(%s): %v", machine, err)
		}
		f, err := elf.NewFile(bytes.NewReader(image))
		if err != nil {
			t.Fatalf("elf.NewFile(%s): %v", machine, err)
		}
		if f.Machine != machine || f.Class != elf.ELFCLASS64 {
			t.Fatalf("machine=%s class=%s, want %s ELFCLASS64", f.Machine, f.Class, machine)
		}
		text := f.Section(".text")
		if text == nil {
			t.Fatalf("no .text section in %s image", machine)
		}
		data, err := text.Data()
		if err != nil {
			t.Fatalf("read .text: %v", err)
		}
		if !bytes.Equal(data, code) {
			t.Fatalf(".text=%x, want %x", data, code)
		}
	}
}
