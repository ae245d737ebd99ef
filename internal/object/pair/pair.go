// Package pair is a key/value record whose fields are reached through
// property trampolines and whose arithmetic methods cover every arity from
// three to six arguments.
package pair

import (
	"fmt"

	"github.com/tinyrange/thunk/internal/codegen"
	"github.com/tinyrange/thunk/internal/core"
	"github.com/tinyrange/thunk/internal/native"
	"github.com/tinyrange/thunk/internal/object"
	"github.com/tinyrange/thunk/internal/object/strbuf"
)

type Pair struct {
	// Key and Value: uintptr_t (*)(void). They read their cells directly.
	Key   uintptr
	Value uintptr
	// SetKey and SetValue: void (*)(uintptr_t).
	SetKey   uintptr
	SetValue uintptr
	// Name: const char *(*)(void). Rename: void (*)(const char *).
	Name   uintptr
	Rename uintptr

	// Sum3 returns key + value + a + b + c.
	Sum3 uintptr
	// Dot4 returns key*a + value*b + c*d.
	Dot4 uintptr
	// Poly5 evaluates a*k^4 + b*k^3 + c*k^2 + d*k + e at k = key.
	Poly5 uintptr
	// Mix6 folds its arguments in order, seeded with key and value.
	Mix6 uintptr

	Free uintptr
}

type state struct {
	key   uintptr
	value uintptr
	name  uintptr
	batch core.Batch
}

var live object.Registry[state]

// Live reports how many pairs have not been freed.
func Live() int { return live.Len() }

func New(rt *core.Runtime, key, value uintptr, name string) (*Pair, error) {
	st := &state{
		key:   native.Malloc(native.WordSize),
		value: native.Malloc(native.WordSize),
		name:  native.Malloc(native.WordSize),
	}
	native.StoreWord(st.key, key)
	native.StoreWord(st.value, value)
	native.StoreWord(st.name, native.CString(name))

	h := live.Register(st)
	b := &st.batch

	p := &Pair{}
	p.Key = rt.CreateAndTrack(0, st.key, codegen.Getter, b)
	p.Value = rt.CreateAndTrack(0, st.value, codegen.Getter, b)
	p.SetKey = rt.CreateAndTrack(0, st.key, codegen.Setter, b)
	p.SetValue = rt.CreateAndTrack(0, st.value, codegen.Setter, b)
	p.Name = rt.CreateAndTrack(0, st.name, codegen.Getter, b)
	p.Rename = rt.CreateAndTrack(native.Callback(strbuf.OwnedStringSetter), st.name, codegen.StringSetter, b)
	p.Sum3 = rt.CreateAndTrack(native.Callback(sum3), h, codegen.Ternary, b)
	p.Dot4 = rt.CreateAndTrack(native.Callback(dot4), h, codegen.Quaternary, b)
	p.Poly5 = rt.CreateAndTrack(native.Callback(poly5), h, codegen.Quinary, b)
	p.Mix6 = rt.CreateAndTrack(native.Callback(mix6), h, codegen.Hexadic, b)
	p.Free = rt.CreateAndTrack(native.Callback(freeImpl), h, codegen.Nullary, b)

	if !b.Validate() {
		err := b.Err()
		b.FreeAll()
		live.Release(h)
		st.release()
		return nil, fmt.Errorf("pair: construct: %w", err)
	}
	return p, nil
}

func (st *state) release() {
	native.Free(native.LoadWord(st.name))
	native.Free(st.name)
	native.Free(st.key)
	native.Free(st.value)
}

func fields(h uintptr) (key, value uintptr) {
	st := live.Get(h)
	return native.LoadWord(st.key), native.LoadWord(st.value)
}

func sum3(h, a, b, c uintptr) uintptr {
	k, v := fields(h)
	return k + v + a + b + c
}

func dot4(h, a, b, c, d uintptr) uintptr {
	k, v := fields(h)
	return k*a + v*b + c*d
}

func poly5(h, a, b, c, d, e uintptr) uintptr {
	k, _ := fields(h)
	acc := uintptr(0)
	for _, coeff := range [...]uintptr{a, b, c, d, e} {
		acc = acc*k + coeff
	}
	return acc
}

// Mix is the function Mix6 computes, for callers checking results.
func Mix(key, value uintptr, args [6]uintptr) uintptr {
	acc := key*31 + value
	for _, x := range args {
		acc = acc*31 + x
	}
	return acc
}

func mix6(h, a, b, c, d, e, f uintptr) uintptr {
	k, v := fields(h)
	return Mix(k, v, [6]uintptr{a, b, c, d, e, f})
}

func freeImpl(h uintptr) {
	st, ok := live.Release(h)
	if !ok {
		panic(fmt.Sprintf("pair: free of unknown pair %d", h))
	}
	st.batch.FreeAll()
	st.release()
}

// Close calls Free and zeroes every entry point.
func (p *Pair) Close() {
	if p.Free == 0 {
		panic("pair: closed twice")
	}
	native.Call(p.Free)
	*p = Pair{}
}

// NameString reads the name through the Name getter.
func (p *Pair) NameString() string {
	return native.GoString(native.Call(p.Name))
}

// SetName calls Rename.
func (p *Pair) SetName(name string) {
	s := native.CString(name)
	defer native.Free(s)
	native.Call(p.Rename, s)
}
