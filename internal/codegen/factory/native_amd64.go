//go:build linux && amd64

package factory

import "github.com/tinyrange/thunk/internal/codegen"

const nativeArch = codegen.ArchSysVX86
