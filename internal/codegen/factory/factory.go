// Package factory selects the trampoline backend for the running build.
package factory

import (
	"fmt"

	"github.com/tinyrange/thunk/internal/codegen"
	_ "github.com/tinyrange/thunk/internal/codegen/aapcs64"
	_ "github.com/tinyrange/thunk/internal/codegen/sysv"
)

// NativeArch is the ABI thunks are generated for in this build, chosen by
// build tags. It is codegen.ArchInvalid where no backend can run natively.
func NativeArch() codegen.Arch {
	return nativeArch
}

// Native returns the backend for NativeArch.
func Native() (codegen.Backend, error) {
	if nativeArch == codegen.ArchInvalid {
		return nil, fmt.Errorf("%w: no native trampoline backend for this platform", codegen.ErrUnsupported)
	}
	return codegen.Lookup(nativeArch)
}

// ForArch returns the backend registered for arch, whether or not it can run
// on this host. Encoding is pure, so foreign backends are useful for tests and
// for producing code for another process.
func ForArch(arch codegen.Arch) (codegen.Backend, error) {
	return codegen.Lookup(arch)
}
