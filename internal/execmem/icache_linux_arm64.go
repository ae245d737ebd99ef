package execmem

// syncICache makes freshly written code visible to instruction fetch. AArch64
// does not keep the instruction cache coherent with data writes, so the lines
// are cleaned to the point of unification and then invalidated.
func syncICache(addr uintptr, size int) {
	if size <= 0 {
		return
	}
	ctr := readCacheType()
	dline := uintptr(4) << ((ctr >> 16) & 0xf)
	iline := uintptr(4) << (ctr & 0xf)
	flushCaches(addr, addr+uintptr(size), dline, iline)
}

func readCacheType() uint64

func flushCaches(start, end, dline, iline uintptr)
