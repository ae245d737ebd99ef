// Package strbuf is a growable string whose methods are plain C function
// pointers. Each String owns one NUL terminated native buffer, referenced
// from a word cell so the Set method can replace it in place.
package strbuf

import (
	"fmt"

	"github.com/tinyrange/thunk/internal/codegen"
	"github.com/tinyrange/thunk/internal/core"
	"github.com/tinyrange/thunk/internal/native"
	"github.com/tinyrange/thunk/internal/object"
)

// String exposes its methods as entry points. None of them take the string
// itself; the bound context is supplied by the trampoline.
type String struct {
	// Length: size_t (*)(void)
	Length uintptr
	// Append: size_t (*)(const char *), returns the new length.
	Append uintptr
	// At: char (*)(size_t), NUL when out of range.
	At uintptr
	// Insert: size_t (*)(size_t, const char *), returns the new length.
	Insert uintptr
	// Set: void (*)(const char *), replaces the contents.
	Set uintptr
	// Free: void (*)(void), destroys the string and its methods.
	Free uintptr

	handle uintptr
	cell   uintptr
}

type state struct {
	cell  uintptr
	batch core.Batch
}

var live object.Registry[state]

// Live reports how many strings have not been freed.
func Live() int { return live.Len() }

// New builds a String holding initial. Construction fails as a whole when
// any method cannot be created; nothing is left allocated in that case.
func New(rt *core.Runtime, initial string) (*String, error) {
	cell := native.Malloc(native.WordSize)
	native.StoreWord(cell, native.CString(initial))

	st := &state{cell: cell}
	h := live.Register(st)
	b := &st.batch

	s := &String{handle: h, cell: cell}
	s.Length = rt.CreateAndTrack(native.Callback(lengthImpl), h, codegen.Nullary, b)
	s.Append = rt.CreateAndTrack(native.Callback(appendImpl), h, codegen.Unary, b)
	s.At = rt.CreateAndTrack(native.Callback(atImpl), h, codegen.Unary, b)
	s.Insert = rt.CreateAndTrack(native.Callback(insertImpl), h, codegen.Binary, b)
	s.Set = rt.CreateAndTrack(native.Callback(OwnedStringSetter), cell, codegen.StringSetter, b)
	s.Free = rt.CreateAndTrack(native.Callback(freeImpl), h, codegen.Nullary, b)

	if !b.Validate() {
		err := b.Err()
		b.FreeAll()
		live.Release(h)
		release(cell)
		return nil, fmt.Errorf("strbuf: construct: %w", err)
	}
	return s, nil
}

func release(cell uintptr) {
	native.Free(native.LoadWord(cell))
	native.Free(cell)
}

// OwnedStringSetter is the implementation behind owning string setters. It
// copies the NUL terminated string at src into a fresh buffer, stores the
// buffer's address in cell and frees the buffer the cell held before.
func OwnedStringSetter(cell, src uintptr) {
	old := native.LoadWord(cell)
	native.StoreWord(cell, native.CString(native.GoString(src)))
	native.Free(old)
}

func contents(h uintptr) (*state, string) {
	st := live.Get(h)
	return st, native.GoString(native.LoadWord(st.cell))
}

func replace(st *state, s string) uintptr {
	p := native.CString(s)
	OwnedStringSetter(st.cell, p)
	native.Free(p)
	return uintptr(len(s))
}

func lengthImpl(h uintptr) uintptr {
	_, s := contents(h)
	return uintptr(len(s))
}

func appendImpl(h, src uintptr) uintptr {
	st, s := contents(h)
	return replace(st, s+native.GoString(src))
}

func atImpl(h, i uintptr) uintptr {
	_, s := contents(h)
	if i >= uintptr(len(s)) {
		return 0
	}
	return uintptr(s[i])
}

// insertImpl clamps the position to the current length.
func insertImpl(h, pos, src uintptr) uintptr {
	st, s := contents(h)
	if pos > uintptr(len(s)) {
		pos = uintptr(len(s))
	}
	return replace(st, s[:pos]+native.GoString(src)+s[pos:])
}

// freeImpl runs inside the Free thunk, which has already jumped away from
// its own code, so releasing every method here is safe.
func freeImpl(h uintptr) {
	st, ok := live.Release(h)
	if !ok {
		panic(fmt.Sprintf("strbuf: free of unknown string %d", h))
	}
	st.batch.FreeAll()
	release(st.cell)
}

// Len calls Length.
func (s *String) Len() int {
	return int(native.Call(s.Length))
}

// Text returns a copy of the current contents.
func (s *String) Text() string {
	return native.GoString(native.LoadWord(s.cell))
}

// AppendString calls Append and returns the new length.
func (s *String) AppendString(str string) int {
	p := native.CString(str)
	defer native.Free(p)
	return int(native.Call(s.Append, p))
}

// Byte calls At.
func (s *String) Byte(i int) byte {
	return byte(native.Call(s.At, uintptr(i)))
}

// InsertString calls Insert and returns the new length.
func (s *String) InsertString(i int, str string) int {
	p := native.CString(str)
	defer native.Free(p)
	return int(native.Call(s.Insert, uintptr(i), p))
}

// SetString calls Set.
func (s *String) SetString(str string) {
	p := native.CString(str)
	defer native.Free(p)
	native.Call(s.Set, p)
}

// Close calls Free. Every entry point is zeroed; using s afterwards panics.
func (s *String) Close() {
	if s.Free == 0 {
		panic("strbuf: string closed twice")
	}
	native.Call(s.Free)
	*s = String{}
}
