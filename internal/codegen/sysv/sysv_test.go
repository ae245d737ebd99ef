package sysv

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/tinyrange/thunk/internal/codegen"
)

const (
	testContext = 0x0102030405060708
	testTarget  = 0x1122334455667788
)

func encodeHex(t *testing.T, req codegen.Request) string {
	t.Helper()
	code, err := Backend{}.Encode(req)
	if err != nil {
		t.Fatalf("Encode(%s) failed: %v", req.Shape, err)
	}
	return hex.EncodeToString(code)
}

func pad(n int) string {
	return strings.Repeat("cc", n)
}

func TestEncodeLayouts(t *testing.T) {
	const (
		loadContext = "48bf0807060504030201"
		loadTarget  = "49bb8877665544332211"
		jump        = "41ffe3"
	)

	tests := []struct {
		name string
		req  codegen.Request
		want string
	}{
		{
			name: "nullary",
			req:  codegen.Request{Target: testTarget, Context: testContext, Shape: codegen.Nullary},
			want: loadContext + loadTarget + jump + pad(9),
		},
		{
			name: "unary",
			req:  codegen.Request{Target: testTarget, Context: testContext, Shape: codegen.Unary},
			want: "4889fe" + loadContext + loadTarget + jump + pad(6),
		},
		{
			name: "ternary",
			req:  codegen.Request{Target: testTarget, Context: testContext, Shape: codegen.Ternary},
			want: "4889d1" + "4889f2" + "4889fe" + loadContext + loadTarget + jump,
		},
		{
			name: "hexadic",
			req:  codegen.Request{Target: testTarget, Context: testContext, Shape: codegen.Hexadic},
			want: "4151" + "4d89c1" + "4989c8" + "4889d1" + "4889f2" + "4889fe" +
				loadContext + loadTarget + "41ffd3" + "415b" + "c3" + pad(5),
		},
		{
			name: "getter",
			req:  codegen.Request{Context: testContext, Shape: codegen.Getter},
			want: "48b80807060504030201" + "488b00" + "c3" + pad(2),
		},
		{
			name: "setter",
			req:  codegen.Request{Context: testContext, Shape: codegen.Setter},
			want: "48b80807060504030201" + "488938" + "c3" + pad(2),
		},
		{
			name: "getter with target",
			req:  codegen.Request{Target: testTarget, Context: testContext, Shape: codegen.Getter},
			want: loadContext + loadTarget + jump + pad(9),
		},
		{
			name: "setter with target",
			req:  codegen.Request{Target: testTarget, Context: testContext, Shape: codegen.Setter},
			want: "4889fe" + loadContext + loadTarget + jump + pad(6),
		},
		{
			name: "string setter",
			req:  codegen.Request{Target: testTarget, Context: testContext, Shape: codegen.StringSetter},
			want: "4889fe" + loadContext + loadTarget + jump + pad(6),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeHex(t, tt.req); got != tt.want {
				t.Fatalf("encoding=%s\nwant      %s", got, tt.want)
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
		if len(code)%16 != 0 {
			t.Fatalf("Encode(%s) produced %d bytes, want 16 byte multiple", s, len(code))
		}
	}
}

func TestVariadicPreservesAL(t *testing.T) {
	code, err := Backend{}.Encode(codegen.Request{Target: testTarget, Context: testContext, Shape: codegen.Variadic})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// No instruction may write RAX: the only REX.W B8 form allowed is the
	// context load into RDI (BF) and the target load into R11 (41 BB).
	for i := 0; i+1 < len(code); i++ {
		if code[i] == 0x48 && code[i+1] == 0xB8 {
			t.Fatalf("variadic thunk loads RAX at offset %d: %x", i, code)
		}
	}
	if got := hex.EncodeToString(code[:3]); got != "4d89c1" {
		t.Fatalf("first instruction=%s, want mov r9, r8", got)
	}
}

func TestEncodeRejects(t *testing.T) {
	tests := []struct {
		name string
		req  codegen.Request
	}{
		{"missing target", codegen.Request{Context: testContext, Shape: codegen.Binary}},
		{"setter without cell", codegen.Request{Shape: codegen.Setter}},
		{"unknown shape", codegen.Request{Target: testTarget, Shape: codegen.Shape(99)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (Backend{}).Encode(tt.req); !errors.Is(err, codegen.ErrUnsupported) {
				t.Fatalf("Encode err=%v, want ErrUnsupported", err)
			}
		})
	}
}

func TestRegistered(t *testing.T) {
	b, err := codegen.Lookup(codegen.ArchSysVX86)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if _, ok := b.(Backend); !ok {
		t.Fatalf("Lookup returned %T", b)
	}
}
