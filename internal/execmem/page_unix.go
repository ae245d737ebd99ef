//go:build unix

package execmem

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PageProvider maps every block separately: read-write until Commit, then
// read-execute. It wastes most of a page per block but needs nothing beyond
// mmap and mprotect.
type PageProvider struct {
	mu       sync.Mutex
	opts     Options
	pageSize int
	stats    Stats
	live     map[*Block]struct{}
	closed   bool
}

var _ Provider = (*PageProvider)(nil)

func NewPageProvider(opts Options) (*PageProvider, error) {
	return &PageProvider{
		opts:     opts.withDefaults(),
		pageSize: unix.Getpagesize(),
		live:     make(map[*Block]struct{}),
	}, nil
}

func newPage(opts Options) (Provider, error) {
	return NewPageProvider(opts)
}

func (p *PageProvider) Allocate(size int) (*Block, error) {
	if size <= 0 {
		return nil, fmt.Errorf("execmem: invalid block size %d", size)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	allocSize := roundUp(size, p.pageSize)
	if p.opts.MaxBytes > 0 && p.stats.ReservedBytes+int64(allocSize) > p.opts.MaxBytes {
		p.stats.Failures++
		return nil, fmt.Errorf("%w: %d of %d bytes reserved", ErrExhausted, p.stats.ReservedBytes, p.opts.MaxBytes)
	}

	mem, err := unix.Mmap(-1, 0, allocSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		p.stats.Failures++
		if errors.Is(err, unix.ENOMEM) {
			return nil, fmt.Errorf("%w: mmap: %v", ErrExhausted, err)
		}
		return nil, fmt.Errorf("execmem: mmap block: %w", err)
	}
	fillPoison(mem, p.opts.Poison)

	b := &Block{
		addr:    uintptr(unsafe.Pointer(&mem[0])),
		size:    allocSize,
		write:   mem,
		owner:   p,
		mapping: mem,
	}
	p.live[b] = struct{}{}
	p.stats.Allocations++
	p.stats.LiveBlocks++
	p.stats.LiveBytes += int64(allocSize)
	p.stats.ReservedBytes += int64(allocSize)
	return b, nil
}

func (p *PageProvider) Commit(b *Block, code []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := checkBlock(p, b); err != nil {
		return err
	}
	if b.committed {
		return fmt.Errorf("execmem: block %#x already committed", b.addr)
	}
	if len(code) > b.size {
		return fmt.Errorf("execmem: %d bytes of code do not fit a %d byte block", len(code), b.size)
	}

	copy(b.write, code)
	if err := unix.Mprotect(b.mapping, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("execmem: mprotect block: %w", err)
	}
	syncICache(b.addr, len(code))
	b.committed = true
	b.write = nil
	return nil
}

func (p *PageProvider) Free(b *Block) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := checkBlock(p, b); err != nil {
		return err
	}
	if err := unix.Munmap(b.mapping); err != nil {
		return fmt.Errorf("execmem: munmap block: %w", err)
	}
	b.freed = true
	b.write = nil
	b.mapping = nil
	delete(p.live, b)

	p.stats.Frees++
	p.stats.LiveBlocks--
	p.stats.LiveBytes -= int64(b.size)
	p.stats.ReservedBytes -= int64(b.size)
	return nil
}

func (p *PageProvider) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Close unmaps every live block. Entry points into them must not be called
// afterwards.
func (p *PageProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for b := range p.live {
		if err := unix.Munmap(b.mapping); err != nil {
			errs = append(errs, err)
		}
		b.freed = true
		b.mapping = nil
	}
	clear(p.live)
	p.stats.LiveBlocks = 0
	p.stats.LiveBytes = 0
	p.stats.ReservedBytes = 0
	return errors.Join(errs...)
}
