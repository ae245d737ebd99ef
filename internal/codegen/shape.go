package codegen

import "fmt"

// Shape is the arity class of a trampoline: how many explicit integer or
// pointer parameters follow the injected context, or one of the property
// forms.
type Shape int

const (
	Nullary Shape = iota
	Unary
	Binary
	Ternary
	Quaternary
	Quinary
	Hexadic
	// Variadic forwards every integer argument register shifted by one.
	Variadic
	// Getter returns target(context), or the word stored at the context
	// cell when there is no target.
	Getter
	// Setter calls target(context, v), or stores v into the context cell
	// when there is no target.
	Setter
	// StringSetter calls an owning-string setter with (cell, string).
	StringSetter

	shapeCount
)

// MaxArity is the largest explicit parameter count in the vocabulary.
const MaxArity = 6

var shapeNames = [...]string{
	Nullary:      "nullary",
	Unary:        "unary",
	Binary:       "binary",
	Ternary:      "ternary",
	Quaternary:   "quaternary",
	Quinary:      "quinary",
	Hexadic:      "hexadic",
	Variadic:     "variadic",
	Getter:       "getter",
	Setter:       "setter",
	StringSetter: "string-setter",
}

func (s Shape) String() string {
	if s.Valid() {
		return shapeNames[s]
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

func (s Shape) Valid() bool {
	return s >= 0 && s < shapeCount
}

// IsProperty reports whether the shape is a Getter or Setter.
func (s Shape) IsProperty() bool {
	return s == Getter || s == Setter
}

// Arity returns the number of explicit integer parameters the thunk forwards.
// Variadic reports -1.
func (s Shape) Arity() int {
	switch {
	case s >= Nullary && s <= Hexadic:
		return int(s)
	case s == Getter:
		return 0
	case s == Setter, s == StringSetter:
		return 1
	default:
		return -1
	}
}

// ShapeForArity maps an explicit parameter count to its shape.
func ShapeForArity(n int) (Shape, error) {
	if n < 0 || n > MaxArity {
		return 0, fmt.Errorf("%w: arity %d outside 0..%d", ErrUnsupported, n, MaxArity)
	}
	return Shape(n), nil
}

// ParseShape accepts the names returned by Shape.String.
func ParseShape(name string) (Shape, error) {
	for i, n := range shapeNames {
		if n == name {
			return Shape(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown shape %q", ErrUnsupported, name)
}
