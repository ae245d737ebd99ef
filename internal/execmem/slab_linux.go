//go:build linux

package execmem

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SlabProvider carves fixed size slots out of arenas backed by a memfd that
// is mapped twice: a read-write view for filling slots and a read-execute view
// for running them. Neighbouring slots are never re-protected, so committing
// one thunk cannot race with another thread executing the next.
type SlabProvider struct {
	mu        sync.Mutex
	opts      Options
	arenaSize int
	arenas    []*arena
	stats     Stats
	closed    bool
}

type arena struct {
	rw     []byte
	rx     []byte
	rxBase uintptr
	free   []int
	used   int
}

var _ Provider = (*SlabProvider)(nil)

// NewSlabProvider maps the first arena up front so platforms that refuse
// executable shared mappings fail here instead of on first use.
func NewSlabProvider(opts Options) (*SlabProvider, error) {
	opts = opts.withDefaults()
	pageSize := unix.Getpagesize()
	if opts.SlotSize < 16 || opts.SlotSize > pageSize || bits.OnesCount(uint(opts.SlotSize)) != 1 {
		return nil, fmt.Errorf("execmem: slot size %d must be a power of two in 16..%d", opts.SlotSize, pageSize)
	}
	if opts.ArenaPages < 1 {
		return nil, fmt.Errorf("execmem: arena pages %d must be positive", opts.ArenaPages)
	}

	p := &SlabProvider{
		opts:      opts,
		arenaSize: opts.ArenaPages * pageSize,
	}
	if _, err := p.grow(); err != nil {
		return nil, err
	}
	return p, nil
}

func newSlab(opts Options) (Provider, error) {
	return NewSlabProvider(opts)
}

// grow maps one more arena. Caller holds mu.
func (p *SlabProvider) grow() (*arena, error) {
	if p.opts.MaxBytes > 0 && p.stats.ReservedBytes+int64(p.arenaSize) > p.opts.MaxBytes {
		return nil, fmt.Errorf("%w: %d of %d bytes reserved", ErrExhausted, p.stats.ReservedBytes, p.opts.MaxBytes)
	}

	fd, err := unix.MemfdCreate("thunk-arena", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("execmem: memfd_create: %w", err)
	}
	// The mappings keep the file alive.
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(p.arenaSize)); err != nil {
		return nil, mapError("ftruncate arena", err)
	}
	rw, err := unix.Mmap(fd, 0, p.arenaSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, mapError("mmap arena rw", err)
	}
	rx, err := unix.Mmap(fd, 0, p.arenaSize, unix.PROT_READ|unix.PROT_EXEC, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Munmap(rw)
		return nil, mapError("mmap arena rx", err)
	}

	fillPoison(rw, p.opts.Poison)

	slots := p.arenaSize / p.opts.SlotSize
	a := &arena{
		rw:     rw,
		rx:     rx,
		rxBase: uintptr(unsafe.Pointer(&rx[0])),
		free:   make([]int, 0, slots),
	}
	// Hand out low slots first.
	for i := slots - 1; i >= 0; i-- {
		a.free = append(a.free, i)
	}
	syncICache(a.rxBase, p.arenaSize)

	p.arenas = append(p.arenas, a)
	p.stats.Arenas++
	p.stats.ReservedBytes += int64(p.arenaSize)
	p.opts.Logger.Debug("mapped code arena", "base", fmt.Sprintf("%#x", a.rxBase), "bytes", p.arenaSize, "slots", slots)
	return a, nil
}

func mapError(op string, err error) error {
	if errors.Is(err, unix.ENOMEM) {
		return fmt.Errorf("%w: %s: %v", ErrExhausted, op, err)
	}
	return fmt.Errorf("execmem: %s: %w", op, err)
}

func (p *SlabProvider) Allocate(size int) (*Block, error) {
	if size <= 0 || size > p.opts.SlotSize {
		return nil, fmt.Errorf("execmem: block size %d outside 1..%d", size, p.opts.SlotSize)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	var target *arena
	for _, a := range p.arenas {
		if len(a.free) > 0 {
			target = a
			break
		}
	}
	if target == nil {
		a, err := p.grow()
		if err != nil {
			p.stats.Failures++
			return nil, err
		}
		target = a
	}

	slot := target.free[len(target.free)-1]
	target.free = target.free[:len(target.free)-1]
	target.used++

	off := slot * p.opts.SlotSize
	p.stats.Allocations++
	p.stats.LiveBlocks++
	p.stats.LiveBytes += int64(p.opts.SlotSize)
	return &Block{
		addr:  target.rxBase + uintptr(off),
		size:  p.opts.SlotSize,
		write: target.rw[off : off+p.opts.SlotSize : off+p.opts.SlotSize],
		owner: p,
		arena: target,
		slot:  slot,
	}, nil
}

func (p *SlabProvider) Commit(b *Block, code []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := checkBlock(p, b); err != nil {
		return err
	}
	if b.committed {
		return fmt.Errorf("execmem: block %#x already committed", b.addr)
	}
	if len(code) > b.size {
		return fmt.Errorf("execmem: %d bytes of code do not fit a %d byte slot", len(code), b.size)
	}

	copy(b.write, code)
	fillPoison(b.write[len(code):], p.opts.Poison)
	syncICache(b.addr, b.size)
	b.committed = true
	b.write = nil
	return nil
}

// Free poisons the slot and returns it to its arena. Empty arenas beyond the
// first spare are unmapped.
func (p *SlabProvider) Free(b *Block) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := checkBlock(p, b); err != nil {
		return err
	}

	a := b.arena
	off := b.slot * p.opts.SlotSize
	fillPoison(a.rw[off:off+p.opts.SlotSize], p.opts.Poison)
	syncICache(b.addr, b.size)

	b.freed = true
	b.write = nil
	a.free = append(a.free, b.slot)
	a.used--

	p.stats.Frees++
	p.stats.LiveBlocks--
	p.stats.LiveBytes -= int64(b.size)

	if a.used == 0 {
		return p.releaseSpare(a)
	}
	return nil
}

// releaseSpare unmaps a if another empty arena is already held. Caller holds
// mu.
func (p *SlabProvider) releaseSpare(a *arena) error {
	spare := false
	for _, other := range p.arenas {
		if other != a && other.used == 0 {
			spare = true
			break
		}
	}
	if !spare {
		return nil
	}

	for i, other := range p.arenas {
		if other == a {
			p.arenas = append(p.arenas[:i], p.arenas[i+1:]...)
			break
		}
	}
	p.stats.Arenas--
	p.stats.ReservedBytes -= int64(p.arenaSize)
	p.opts.Logger.Debug("released code arena", "base", fmt.Sprintf("%#x", a.rxBase))
	return a.unmap()
}

func (a *arena) unmap() error {
	return errors.Join(unix.Munmap(a.rx), unix.Munmap(a.rw))
}

func (p *SlabProvider) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close unmaps every arena. Entry points into them must not be called
// afterwards.
func (p *SlabProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, a := range p.arenas {
		errs = append(errs, a.unmap())
	}
	p.arenas = nil
	p.stats.Arenas = 0
	p.stats.LiveBlocks = 0
	p.stats.LiveBytes = 0
	p.stats.ReservedBytes = 0
	return errors.Join(errs...)
}
