//go:build !(linux && arm64)

package execmem

// x86 keeps instruction fetch coherent with stores, and mprotect on the other
// supported systems already synchronises.
func syncICache(addr uintptr, size int) {}
