// Package core creates, tracks and frees trampolines.
//
// A Runtime pairs a code generation backend with an executable memory
// provider. Objects build their method tables through a Batch, validate it
// once every method is bound and free it as a unit.
package core

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/tinyrange/thunk/internal/codegen"
	"github.com/tinyrange/thunk/internal/codegen/factory"
	"github.com/tinyrange/thunk/internal/config"
	"github.com/tinyrange/thunk/internal/execmem"
	"github.com/tinyrange/thunk/internal/timeslice"
)

var (
	tsEncode   = timeslice.RegisterKind("thunk::encode")
	tsAllocate = timeslice.RegisterKind("thunk::allocate")
	tsCommit   = timeslice.RegisterKind("thunk::commit")
	tsFree     = timeslice.RegisterKind("thunk::free")
)

type Options struct {
	// Backend defaults to the native backend for this build.
	Backend codegen.Backend
	// Provider defaults to execmem.Open(execmem.KindAuto, ...). A provider
	// passed in is not closed by Runtime.Close.
	Provider execmem.Provider
	Logger   *slog.Logger
}

type Runtime struct {
	backend      codegen.Backend
	provider     execmem.Provider
	ownsProvider bool
	log          *slog.Logger

	live    atomic.Int64
	created atomic.Uint64
	freed   atomic.Uint64
	failed  atomic.Uint64
}

func New(opts Options) (*Runtime, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	backend := opts.Backend
	if backend == nil {
		b, err := factory.Native()
		if err != nil {
			return nil, err
		}
		backend = b
	}

	rt := &Runtime{backend: backend, provider: opts.Provider, log: log}
	if rt.provider == nil {
		p, err := execmem.Open(execmem.KindAuto, execmem.Options{
			SlotSize: slotSizeFor(backend, 0),
			Poison:   backend.Trap(),
			Logger:   log,
		})
		if err != nil {
			return nil, err
		}
		rt.provider = p
		rt.ownsProvider = true
	}
	return rt, nil
}

// NewFromConfig builds a runtime on the native backend with a provider
// described by cfg.
func NewFromConfig(cfg config.Config, log *slog.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("thunk: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	backend, err := factory.Native()
	if err != nil {
		return nil, err
	}

	var provider execmem.Provider
	provider, err = execmem.Open(execmem.Kind(strings.ToLower(cfg.Provider)), execmem.Options{
		SlotSize:   slotSizeFor(backend, cfg.SlotSize),
		ArenaPages: cfg.ArenaPages,
		MaxBytes:   cfg.MaxBytes,
		Poison:     backend.Trap(),
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	if cfg.FailAfter > 0 {
		provider = execmem.FailNth(provider, cfg.FailAfter)
	}

	return &Runtime{
		backend:      backend,
		provider:     provider,
		ownsProvider: true,
		log:          log,
	}, nil
}

// slotSizeFor returns the smallest power of two that holds both the
// requested size and the backend's largest encoding.
func slotSizeFor(b codegen.Backend, want int) int {
	size := 16
	for size < b.MaxSize() || size < want {
		size <<= 1
	}
	return size
}

// Backend is the code generator every trampoline of r is encoded with.
func (r *Runtime) Backend() codegen.Backend { return r.backend }

// Provider supplies r's executable memory.
func (r *Runtime) Provider() execmem.Provider { return r.provider }

// Close releases the provider if the runtime created it. Every trampoline
// must have been freed first.
func (r *Runtime) Close() error {
	if n := r.live.Load(); n != 0 {
		r.log.Warn("closing runtime with live trampolines", "live", n)
	}
	if !r.ownsProvider {
		return nil
	}
	return r.provider.Close()
}

// Stats counts trampolines over the runtime's lifetime, next to a snapshot
// of its provider.
type Stats struct {
	Live     int64
	Created  uint64
	Freed    uint64
	Failed   uint64
	Provider execmem.Stats
}

// Stats is safe to call concurrently with Create and Free.
func (r *Runtime) Stats() Stats {
	return Stats{
		Live:     r.live.Load(),
		Created:  r.created.Load(),
		Freed:    r.freed.Load(),
		Failed:   r.failed.Load(),
		Provider: r.provider.Stats(),
	}
}

// Trampoline is one generated thunk.
type Trampoline struct {
	rt      *Runtime
	block   *execmem.Block
	target  uintptr
	context uintptr
	shape   codegen.Shape
	batch   uint64
	live    bool
}

// Entry is the callable address. It must not be used after Free.
func (t *Trampoline) Entry() uintptr { return t.block.Addr() }

// Target is the implementation the thunk transfers to, or zero for a cell
// property.
func (t *Trampoline) Target() uintptr { return t.target }

// Context is the word injected as the first argument. It never changes.
func (t *Trampoline) Context() uintptr { return t.context }

func (t *Trampoline) Shape() codegen.Shape { return t.shape }

// Live reports whether the trampoline has not been freed yet.
func (t *Trampoline) Live() bool { return t.live }

// BatchID is the owning batch, or zero for a trampoline made by Create.
func (t *Trampoline) BatchID() uint64 { return t.batch }

// Block is the executable memory holding the code.
func (t *Trampoline) Block() *execmem.Block { return t.block }

// Create encodes a thunk that calls fn with ctx prepended to its arguments
// and places it in executable memory. Getter and Setter with fn == 0 treat
// ctx as the address of a word cell instead.
func (r *Runtime) Create(fn, ctx uintptr, shape codegen.Shape) (*Trampoline, error) {
	t, err := r.create(fn, ctx, shape)
	if err != nil {
		r.failed.Add(1)
		r.log.Debug("trampoline creation failed", "shape", shape, "error", err)
		return nil, err
	}
	r.created.Add(1)
	r.live.Add(1)
	return t, nil
}

func (r *Runtime) create(fn, ctx uintptr, shape codegen.Shape) (*Trampoline, error) {
	rec := timeslice.NewRecorder()

	code, err := r.backend.Encode(codegen.Request{Target: fn, Context: ctx, Shape: shape})
	if err != nil {
		return nil, &Error{Op: "encode", Shape: shape, Err: err}
	}
	rec.Record(tsEncode)

	block, err := r.provider.Allocate(r.backend.MaxSize())
	if err != nil {
		return nil, &Error{Op: "allocate", Shape: shape, Err: err}
	}
	rec.Record(tsAllocate)

	if err := r.provider.Commit(block, code); err != nil {
		if ferr := r.provider.Free(block); ferr != nil {
			err = errors.Join(err, ferr)
		}
		return nil, &Error{Op: "commit", Shape: shape, Err: err}
	}
	rec.Record(tsCommit)

	return &Trampoline{
		rt:      r,
		block:   block,
		target:  fn,
		context: ctx,
		shape:   shape,
		live:    true,
	}, nil
}

// Free releases t. Freeing a trampoline twice, or through a runtime that did
// not create it, panics with a *ContractViolation.
func (r *Runtime) Free(t *Trampoline) {
	if t == nil {
		violate("free", "nil trampoline")
	}
	if t.rt != r {
		violate("free", "trampoline %#x belongs to another runtime", t.block.Addr())
	}
	if !t.live {
		violate("free", "trampoline %#x already freed", t.block.Addr())
	}

	rec := timeslice.NewRecorder()
	t.live = false
	if err := r.provider.Free(t.block); err != nil {
		if errors.Is(err, execmem.ErrDoubleFree) {
			violate("free", "%v", err)
		}
		r.log.Error("releasing trampoline memory", "entry", fmt.Sprintf("%#x", t.block.Addr()), "error", err)
	}
	rec.Record(tsFree)

	r.freed.Add(1)
	r.live.Add(-1)
}
