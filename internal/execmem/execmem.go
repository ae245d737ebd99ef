// Package execmem hands out small blocks of executable memory.
//
// A block is allocated writable, filled once with Commit and executable from
// then on. Providers are safe for concurrent use and may be shared by every
// runtime in the process.
package execmem

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrExhausted reports that no executable memory could be supplied,
	// either because the configured capacity is used up or because the OS
	// refused the mapping. It is an expected outcome, not a fatal one.
	ErrExhausted = errors.New("execmem: executable memory exhausted")
	// ErrUnsupported reports that the provider cannot run on this platform.
	ErrUnsupported = errors.New("execmem: executable memory not supported on this platform")
	// ErrDoubleFree reports a second Free of the same block.
	ErrDoubleFree = errors.New("execmem: block already freed")
	// ErrClosed reports use of a provider after Close.
	ErrClosed = errors.New("execmem: provider closed")
)

// Provider allocates and releases executable blocks.
type Provider interface {
	Allocate(size int) (*Block, error)
	// Commit copies code into the block and makes it executable. It may be
	// called once per block.
	Commit(b *Block, code []byte) error
	Free(b *Block) error
	Stats() Stats
	Close() error
}

// Block is one executable region handed out by a Provider.
type Block struct {
	addr      uintptr
	size      int
	write     []byte
	owner     Provider
	committed bool
	freed     bool

	// provider private bookkeeping
	arena   *arena
	slot    int
	mapping []byte
}

// Addr is the executable address of the block.
func (b *Block) Addr() uintptr { return b.addr }

// Size is the usable length of the block.
func (b *Block) Size() int { return b.size }

// Committed reports whether code has been written and sealed.
func (b *Block) Committed() bool { return b.committed }

// Stats is a snapshot of a provider's accounting.
type Stats struct {
	LiveBlocks    int
	LiveBytes     int64
	ReservedBytes int64
	Arenas        int
	Allocations   uint64
	Frees         uint64
	Failures      uint64
}

// Options configures the providers. Zero values select defaults.
type Options struct {
	// SlotSize is the fixed block size of the slab provider. Must be a power
	// of two between 16 and the page size. Defaults to 64.
	SlotSize int
	// ArenaPages is the number of pages mapped per slab arena. Defaults to 16.
	ArenaPages int
	// MaxBytes caps the memory reserved from the OS. Zero means no cap.
	MaxBytes int64
	// Poison fills unused and freed code so stray jumps trap.
	Poison []byte
	Logger *slog.Logger
}

const (
	DefaultSlotSize   = 64
	DefaultArenaPages = 16
)

func (o Options) withDefaults() Options {
	if o.SlotSize == 0 {
		o.SlotSize = DefaultSlotSize
	}
	if o.ArenaPages == 0 {
		o.ArenaPages = DefaultArenaPages
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Kind names a provider implementation.
type Kind string

const (
	KindAuto Kind = "auto"
	KindSlab Kind = "slab"
	KindPage Kind = "page"
)

// Open builds a provider of the requested kind. KindAuto prefers the slab
// provider and falls back to one mapping per block when the slab arenas
// cannot be mapped executable.
func Open(kind Kind, opts Options) (Provider, error) {
	opts = opts.withDefaults()
	switch kind {
	case KindSlab:
		return newSlab(opts)
	case KindPage:
		return newPage(opts)
	case KindAuto, "":
		p, err := newSlab(opts)
		if err == nil {
			return p, nil
		}
		opts.Logger.Debug("slab provider unavailable, using page provider", "error", err)
		return newPage(opts)
	default:
		return nil, fmt.Errorf("execmem: unknown provider kind %q", kind)
	}
}

// fillPoison writes pattern repeatedly over dst. Without a pattern dst is
// zeroed.
func fillPoison(dst []byte, pattern []byte) {
	if len(pattern) == 0 {
		clear(dst)
		return
	}
	for off := 0; off < len(dst); off += len(pattern) {
		copy(dst[off:], pattern)
	}
}

func roundUp(value, boundary int) int {
	return ((value + boundary - 1) / boundary) * boundary
}

func checkBlock(p Provider, b *Block) error {
	if b == nil {
		return fmt.Errorf("execmem: nil block")
	}
	if b.owner != p {
		return fmt.Errorf("execmem: block %#x belongs to another provider", b.addr)
	}
	if b.freed {
		return fmt.Errorf("%w: %#x", ErrDoubleFree, b.addr)
	}
	return nil
}
