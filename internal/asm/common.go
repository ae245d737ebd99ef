// Package asm holds the architecture-neutral pieces shared by the instruction
// encoders: fragments emit bytes into a Context and a finished Context becomes
// a Program.
package asm

import "fmt"

// Variable names a machine register inside an architecture package.
type Variable int

// Context receives encoded instructions.
type Context interface {
	EmitBytes(data []byte)
	Len() int
}

type Fragment interface {
	Emit(ctx Context) error
}

type Group []Fragment

var (
	_ Fragment = Group{}
)

func (g Group) Emit(ctx Context) error {
	for _, frag := range g {
		if frag == nil {
			continue
		}
		if err := frag.Emit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Program is a finished, position independent instruction stream.
type Program struct {
	code []byte
}

func (p Program) Bytes() []byte {
	return append([]byte(nil), p.code...)
}

func (p Program) Len() int {
	return len(p.code)
}

func (p Program) Clone() Program {
	return Program{code: append([]byte(nil), p.code...)}
}

func NewProgram(code []byte) Program {
	return Program{code: append([]byte(nil), code...)}
}

// Buffer is the Context implementation used by both encoders.
type Buffer struct {
	text  []byte
	limit int
}

// NewBuffer returns a Buffer that refuses to grow beyond limit bytes. A zero
// limit means unbounded.
func NewBuffer(limit int) *Buffer {
	return &Buffer{limit: limit}
}

func (b *Buffer) EmitBytes(data []byte) {
	b.text = append(b.text, data...)
}

func (b *Buffer) Len() int {
	return len(b.text)
}

// Finish pads the stream to align bytes using pad and returns the Program.
func (b *Buffer) Finish(align int, pad []byte) (Program, error) {
	if align > 0 && len(pad) > 0 {
		for len(b.text)%align != 0 {
			b.text = append(b.text, pad...)
		}
	}
	if b.limit > 0 && len(b.text) > b.limit {
		return Program{}, fmt.Errorf("asm: program is %d bytes, limit %d", len(b.text), b.limit)
	}
	return Program{code: b.text}, nil
}

// Emit lowers fragment into a Program using a fresh Buffer.
func Emit(fragment Fragment, limit int, align int, pad []byte) (Program, error) {
	if fragment == nil {
		return Program{}, fmt.Errorf("asm: fragment is nil")
	}
	buf := NewBuffer(limit)
	if err := fragment.Emit(buf); err != nil {
		return Program{}, err
	}
	return buf.Finish(align, pad)
}
