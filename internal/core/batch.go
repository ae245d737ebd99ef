package core

import (
	"errors"
	"sync/atomic"

	"github.com/tinyrange/thunk/internal/codegen"
)

var batchIDs atomic.Uint64

// Batch collects the trampolines created for one object so they can be
// validated and freed together. The zero value is an empty batch ready for
// use. A Batch must not be shared between goroutines.
type Batch struct {
	id      uint64
	rt      *Runtime
	entries []batchEntry
	ok      int
	failed  int
	freed   bool
}

// batchEntry holds either a trampoline or the error that prevented it.
type batchEntry struct {
	t   *Trampoline
	err error
}

func (b *Batch) open(op string, rt *Runtime) {
	if b.freed {
		violate(op, "batch %d used after FreeAll", b.id)
	}
	if b.id == 0 {
		b.id = batchIDs.Add(1)
	}
	if rt == nil {
		return
	}
	if b.rt == nil {
		b.rt = rt
	} else if b.rt != rt {
		violate(op, "batch %d shared between runtimes", b.id)
	}
}

// CreateAndTrack creates a trampoline and records the outcome in b. It
// returns the entry address, or 0 when creation failed; failures are kept in
// the batch and surface through Validate and Err.
func (r *Runtime) CreateAndTrack(fn, ctx uintptr, shape codegen.Shape, b *Batch) uintptr {
	b.open("create", r)

	t, err := r.Create(fn, ctx, shape)
	if err != nil {
		b.entries = append(b.entries, batchEntry{err: err})
		b.failed++
		return 0
	}
	t.batch = b.id
	b.entries = append(b.entries, batchEntry{t: t})
	b.ok++
	return t.Entry()
}

// Validate reports whether every creation recorded in b succeeded. An empty
// batch is valid. It does not modify b and may be called repeatedly.
func (b *Batch) Validate() bool {
	b.open("validate", nil)
	return b.failed == 0
}

// Err joins the errors of every failed creation, or returns nil.
func (b *Batch) Err() error {
	var errs []error
	for _, e := range b.entries {
		if e.err != nil {
			errs = append(errs, e.err)
		}
	}
	return errors.Join(errs...)
}

// FreeAll releases every successfully created trampoline and discards the
// batch. It serves both rollback after a failed Validate and teardown of a
// constructed object. Calling it twice panics with a *ContractViolation.
func (b *Batch) FreeAll() {
	if b.freed {
		violate("free-all", "batch %d freed twice", b.id)
	}
	if b.rt != nil && b.failed > 0 {
		b.rt.log.Warn("rolling back batch", "batch", b.id, "created", b.ok, "failed", b.failed, "error", b.Err())
	}
	for _, e := range b.entries {
		if e.t != nil {
			b.rt.Free(e.t)
		}
	}
	b.entries = nil
	b.freed = true
}

// ID identifies the batch in logs and in Trampoline.BatchID. It is assigned
// on first use.
func (b *Batch) ID() uint64 {
	if b.id == 0 && !b.freed {
		b.id = batchIDs.Add(1)
	}
	return b.id
}

// Len counts every recorded entry, failures included.
func (b *Batch) Len() int { return len(b.entries) }

// Succeeded counts the entries that produced a trampoline.
func (b *Batch) Succeeded() int { return b.ok }

// Failed counts the entries recorded as failure markers.
func (b *Batch) Failed() int { return b.failed }

// Freed reports whether FreeAll has run.
func (b *Batch) Freed() bool { return b.freed }

// Trampolines returns the live trampolines in creation order.
func (b *Batch) Trampolines() []*Trampoline {
	out := make([]*Trampoline, 0, b.ok)
	for _, e := range b.entries {
		if e.t != nil && e.t.live {
			out = append(out, e.t)
		}
	}
	return out
}
