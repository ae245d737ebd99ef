package aapcs64

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/tinyrange/thunk/internal/codegen"
)

const (
	testContext = 0x0000ffff00001234
	testTarget  = 0x0000aaaa5555cccc
)

func encodeWords(t *testing.T, req codegen.Request) []uint32 {
	t.Helper()
	code, err := Backend{}.Encode(req)
	if err != nil {
		t.Fatalf("Encode(%s) failed: %v", req.Shape, err)
	}
	if len(code)%16 != 0 {
		t.Fatalf("Encode(%s) produced %d bytes, want 16 byte multiple", req.Shape, len(code))
	}
	out := make([]uint32, len(code)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(code[4*i:])
	}
	return out
}

var (
	// movz/movk sequences for testContext into x0 and testTarget into x16.
	loadContext = []uint32{0xD2824680, 0xF2A00000, 0xF2DFFFE0, 0xF2E00000}
	loadTarget  = []uint32{0xD2999990, 0xF2AAAAB0, 0xF2D55550, 0xF2E00010}
	brX16       = uint32(0xD61F0200)
	brk         = uint32(0xD43E01A0)
)

func concat(parts ...any) []uint32 {
	var out []uint32
	for _, p := range parts {
		switch v := p.(type) {
		case uint32:
			out = append(out, v)
		case []uint32:
			out = append(out, v...)
		}
	}
	return out
}

func TestEncodeLayouts(t *testing.T) {
	tests := []struct {
		name string
		req  codegen.Request
		want []uint32
	}{
		{
			name: "nullary",
			req:  codegen.Request{Target: testTarget, Context: testContext, Shape: codegen.Nullary},
			want: concat(loadContext, loadTarget, brX16, brk, brk, brk),
		},
		{
			name: "binary",
			req:  codegen.Request{Target: testTarget, Context: testContext, Shape: codegen.Binary},
			want: concat(uint32(0xAA0103E2), uint32(0xAA0003E1), loadContext, loadTarget, brX16, brk),
		},
		{
			name: "getter",
			req:  codegen.Request{Context: testContext, Shape: codegen.Getter},
			want: concat([]uint32{0xD2824690, 0xF2A00010, 0xF2DFFFF0, 0xF2E00010}, uint32(0xF9400200), uint32(0xD65F03C0), brk, brk),
		},
		{
			name: "setter",
			req:  codegen.Request{Context: testContext, Shape: codegen.Setter},
			want: concat([]uint32{0xD2824690, 0xF2A00010, 0xF2DFFFF0, 0xF2E00010}, uint32(0xF9000200), uint32(0xD65F03C0), brk, brk),
		},
		{
			name: "getter with target",
			req:  codegen.Request{Target: testTarget, Context: testContext, Shape: codegen.Getter},
			want: concat(loadContext, loadTarget, brX16, brk, brk, brk),
		},
		{
			name: "setter with target",
			req:  codegen.Request{Target: testTarget, Context: testContext, Shape: codegen.Setter},
			want: concat(uint32(0xAA0003E1), loadContext, loadTarget, brX16, brk, brk),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := encodeWords(t, tt.req)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d words %08x, want %d words", len(got), got, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("word[%d]=0x%08x, want 0x%08x", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEncodeAllShapesFit(t *testing.T) {
	b := Backend{}
	for s := codegen.Nullary; s <= codegen.StringSetter; s++ {
		req := codegen.Request{Target: testTarget, Context: testContext, Shape: s}
		if s.IsProperty() {
			req.Target = 0
		}
		code, err := b.Encode(req)
		if err != nil {
			t.Fatalf("Encode(%s) failed: %v", s, err)
		}
		if len(code) > b.MaxSize() {
			t.Fatalf("Encode(%s) produced %d bytes, MaxSize %d", s, len(code), b.MaxSize())
		}
	}
}

func TestVariadicShiftsSevenRegisters(t *testing.T) {
	got := encodeWords(t, codegen.Request{Target: testTarget, Context: testContext, Shape: codegen.Variadic})
	// mov x7, x6 first, mov x1, x0 last.
	if got[0] != 0xAA0603E7 {
		t.Fatalf("word[0]=0x%08x, want mov x7, x6", got[0])
	}
	if got[6] != 0xAA0003E1 {
		t.Fatalf("word[6]=0x%08x, want mov x1, x0", got[6])
	}
	if got[len(got)-1] != brX16 {
		t.Fatalf("last word=0x%08x, want br x16", got[len(got)-1])
	}
}

func TestEncodeRejects(t *testing.T) {
	tests := []struct {
		name string
		req  codegen.Request
	}{
		{"missing target", codegen.Request{Context: testContext, Shape: codegen.Quinary}},
		{"setter without cell", codegen.Request{Shape: codegen.Setter}},
		{"unknown shape", codegen.Request{Target: testTarget, Shape: codegen.Shape(-3)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (Backend{}).Encode(tt.req); !errors.Is(err, codegen.ErrUnsupported) {
				t.Fatalf("Encode err=%v, want ErrUnsupported", err)
			}
		})
	}
}
