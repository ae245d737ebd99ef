//go:build !linux || !(amd64 || arm64)

package factory

import "github.com/tinyrange/thunk/internal/codegen"

const nativeArch = codegen.ArchInvalid
