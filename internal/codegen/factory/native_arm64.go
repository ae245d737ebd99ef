//go:build linux && arm64

package factory

import "github.com/tinyrange/thunk/internal/codegen"

const nativeArch = codegen.ArchAAPCS64
