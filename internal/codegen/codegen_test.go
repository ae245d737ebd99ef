package codegen

import (
	"errors"
	"testing"
)

type fakeBackend struct {
	arch   Arch
	shapes map[Shape]bool
}

func (f fakeBackend) Arch() Arch                     { return f.arch }
func (f fakeBackend) Supports(s Shape) bool          { return f.shapes[s] }
func (f fakeBackend) Encode(Request) ([]byte, error) { return nil, nil }
func (f fakeBackend) MaxSize() int                   { return 0 }
func (f fakeBackend) Trap() []byte                   { return nil }

func TestShapeNames(t *testing.T) {
	for s := Nullary; s < shapeCount; s++ {
		parsed, err := ParseShape(s.String())
		if err != nil {
			t.Fatalf("ParseShape(%q) failed: %v", s.String(), err)
		}
		if parsed != s {
			t.Fatalf("ParseShape(%q)=%v, want %v", s.String(), parsed, s)
		}
	}
	if _, err := ParseShape("septadic"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("ParseShape(septadic) err=%v, want ErrUnsupported", err)
	}
	if got, want := Shape(42).String(), "shape(42)"; got != want {
		t.Fatalf("String()=%q, want %q", got, want)
	}
}

func TestShapeArity(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Nullary, 0},
		{Ternary, 3},
		{Hexadic, 6},
		{Variadic, -1},
		{Getter, 0},
		{Setter, 1},
		{StringSetter, 1},
	}
	for _, tt := range tests {
		if got := tt.shape.Arity(); got != tt.want {
			t.Fatalf("%s.Arity()=%d, want %d", tt.shape, got, tt.want)
		}
	}

	for n := 0; n <= MaxArity; n++ {
		s, err := ShapeForArity(n)
		if err != nil {
			t.Fatalf("ShapeForArity(%d) failed: %v", n, err)
		}
		if s.Arity() != n {
			t.Fatalf("ShapeForArity(%d)=%s", n, s)
		}
	}
	if _, err := ShapeForArity(7); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("ShapeForArity(7) err=%v, want ErrUnsupported", err)
	}
}

func TestRequestValidate(t *testing.T) {
	backend := fakeBackend{arch: "fake", shapes: map[Shape]bool{
		Unary: true, Getter: true, Setter: true,
	}}

	tests := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"unary", Request{Target: 0x1000, Context: 1, Shape: Unary}, true},
		{"zero context is allowed", Request{Target: 0x1000, Shape: Unary}, true},
		{"unary without target", Request{Context: 1, Shape: Unary}, false},
		{"unsupported shape", Request{Target: 0x1000, Shape: Binary}, false},
		{"invalid shape", Request{Target: 0x1000, Shape: Shape(-1)}, false},
		{"getter", Request{Context: 0x2000, Shape: Getter}, true},
		{"getter with target", Request{Target: 0x1000, Context: 0x2000, Shape: Getter}, true},
		{"setter with target and zero context", Request{Target: 0x1000, Shape: Setter}, true},
		{"setter without cell", Request{Shape: Setter}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(backend)
			if tt.ok && err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrUnsupported) {
				t.Fatalf("Validate err=%v, want ErrUnsupported", err)
			}
		})
	}
}

func TestRegisterBackend(t *testing.T) {
	backend := fakeBackend{arch: "fake-register"}
	RegisterBackend(backend)

	got, err := Lookup("fake-register")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.Arch() != backend.arch {
		t.Fatalf("Lookup returned %s", got.Arch())
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate RegisterBackend did not panic")
		}
	}()
	RegisterBackend(backend)
}

func TestLookupMissing(t *testing.T) {
	if _, err := Lookup("missing"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Lookup(missing) err=%v, want ErrUnsupported", err)
	}
}
