package amd64

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/tinyrange/thunk/internal/asm"
)

func TestInstructionEncodings(t *testing.T) {
	tests := []struct {
		name string
		frag asm.Fragment
		want string
	}{
		{"movabs rdi", MovAbs(Reg64(RDI), 0x1122334455667788), "48bf8877665544332211"},
		{"movabs r11", MovAbs(Reg64(R11), 0xdeadbeef), "49bbefbeadde00000000"},
		{"mov rsi, rdi", MovReg(Reg64(RSI), Reg64(RDI)), "4889fe"},
		{"mov r9, r8", MovReg(Reg64(R9), Reg64(R8)), "4d89c1"},
		{"mov r8, rcx", MovReg(Reg64(R8), Reg64(RCX)), "4989c8"},
		{"mov rcx, rdx", MovReg(Reg64(RCX), Reg64(RDX)), "4889d1"},
		{"jmp r11", JumpReg(Reg64(R11)), "41ffe3"},
		{"jmp rax", JumpReg(Reg64(RAX)), "ffe0"},
		{"call r11", CallReg(Reg64(R11)), "41ffd3"},
		{"push r9", Push(Reg64(R9)), "4151"},
		{"push rdi", Push(Reg64(RDI)), "57"},
		{"pop r11", Pop(Reg64(R11)), "415b"},
		{"load rax, [rax]", MovFromMemory(Reg64(RAX), Mem(Reg64(RAX))), "488b00"},
		{"store [rax], rdi", MovToMemory(Mem(Reg64(RAX)), Reg64(RDI)), "488938"},
		{"store [rsp+8], rax", MovToMemory(Mem(Reg64(RSP)).WithDisp(8), Reg64(RAX)), "4889442408"},
		{"load rbx, [rbp]", MovFromMemory(Reg64(RBX), Mem(Reg64(RBP))), "488b5d00"},
		{"load r10, [r12+0x200]", MovFromMemory(Reg64(R10), Mem(Reg64(R12)).WithDisp(0x200)), "4d8b942400020000"},
		{"store [rdi+16], rdx", MovToMemory(Mem(Reg64(RDI)).WithDisp(16), Reg64(RDX)), "48895710"},
		{"movsd [rdi], xmm0", MovsdToMemory(Mem(Reg64(RDI)), X0), "f20f1107"},
		{"movsd [rdi+8], xmm1", MovsdToMemory(Mem(Reg64(RDI)).WithDisp(8), X1), "f20f114f08"},
		{"addsd xmm0, xmm0", Addsd(X0, X0), "f20f58c0"},
		{"ret", Ret(), "c3"},
		{"int3", Int3(), "cc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := asm.NewBuffer(0)
			if err := tt.frag.Emit(buf); err != nil {
				t.Fatalf("Emit failed: %v", err)
			}
			prog, err := buf.Finish(0, nil)
			if err != nil {
				t.Fatalf("Finish failed: %v", err)
			}
			if got := hex.EncodeToString(prog.Bytes()); got != tt.want {
				t.Fatalf("encoding=%s, want %s", got, tt.want)
			}
		})
	}
}

func TestInvalidOperands(t *testing.T) {
	tests := []struct {
		name string
		frag asm.Fragment
	}{
		{"unknown register", MovReg(Reg64(99), Reg64(RAX))},
		{"memory without base", MovFromMemory(Reg64(RAX), Memory{})},
		{"bad xmm", Addsd(XMM(16), X0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EmitProgram(tt.frag); err == nil {
				t.Fatalf("EmitProgram succeeded, want error")
			}
		})
	}
}

func TestEncodeErrorNamesInstruction(t *testing.T) {
	tests := []struct {
		frag asm.Fragment
		want string
	}{
		{MovReg(Reg64(99), Reg64(RAX)), "amd64 asm: mov:"},
		{MovFromMemory(Reg64(RAX), Memory{}), "amd64 asm: mov load:"},
		{JumpReg(Reg64(99)), "amd64 asm: jmp:"},
	}
	for _, tt := range tests {
		_, err := EmitProgram(tt.frag)
		if err == nil {
			t.Fatalf("EmitProgram succeeded, want %q", tt.want)
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("err=%v, want prefix %q", err, tt.want)
		}
	}
}

func TestEmitProgramPadsWithTraps(t *testing.T) {
	code, err := EmitBytes(asm.Group{Ret()})
	if err != nil {
		t.Fatalf("EmitBytes failed: %v", err)
	}
	if got, want := len(code), codeAlign; got != want {
		t.Fatalf("len=%d, want %d", got, want)
	}
	if !bytes.Equal(code[1:], bytes.Repeat(TrapBytes(), codeAlign-1)) {
		t.Fatalf("padding=%x, want int3 fill", code[1:])
	}
}
