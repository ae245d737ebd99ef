package native

import (
	"fmt"
	"sync"
	"unsafe"
)

// WordSize is the size of a machine word cell.
const WordSize = int(unsafe.Sizeof(uintptr(0)))

var heap struct {
	mu     sync.Mutex
	blocks map[uintptr][]uint64
}

// Malloc returns the address of n zeroed, word aligned bytes that stay at a
// fixed address until Free. Native code may hold the address; Go code must
// not keep pointers into it after Free.
func Malloc(n int) uintptr {
	if n <= 0 {
		n = 1
	}
	buf := make([]uint64, (n+7)/8)
	addr := uintptr(unsafe.Pointer(&buf[0]))

	heap.mu.Lock()
	defer heap.mu.Unlock()
	if heap.blocks == nil {
		heap.blocks = make(map[uintptr][]uint64)
	}
	heap.blocks[addr] = buf
	return addr
}

// Free releases a block returned by Malloc. Freeing zero is a no-op.
func Free(addr uintptr) {
	if addr == 0 {
		return
	}
	heap.mu.Lock()
	defer heap.mu.Unlock()
	if _, ok := heap.blocks[addr]; !ok {
		panic(fmt.Sprintf("native: free of unknown block %#x", addr))
	}
	delete(heap.blocks, addr)
}

// Allocated reports the number of live Malloc blocks.
func Allocated() int {
	heap.mu.Lock()
	defer heap.mu.Unlock()
	return len(heap.blocks)
}

// CString copies s into a NUL terminated block owned by the caller.
func CString(s string) uintptr {
	addr := Malloc(len(s) + 1)
	dst := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(s)+1)
	copy(dst, s)
	dst[len(s)] = 0
	return addr
}

// GoString copies the NUL terminated string at addr.
func GoString(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Pointer(addr + uintptr(n))) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(addr)), n))
}

// LoadWord reads the word cell at addr.
func LoadWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

// StoreWord writes the word cell at addr.
func StoreWord(addr uintptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v
}
