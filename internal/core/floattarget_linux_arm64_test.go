package core

import (
	"github.com/tinyrange/thunk/internal/asm"
	"github.com/tinyrange/thunk/internal/asm/arm64"
)

// floatTargetCode is double f(double *ctx, double x) { *ctx = x; return x + x; }
func floatTargetCode() ([]byte, error) {
	return arm64.EmitBytes(asm.Group{
		arm64.StoreD(arm64.Mem(arm64.Reg64(arm64.X0)), arm64.D0),
		arm64.FaddD(arm64.D0, arm64.D0, arm64.D0),
		arm64.Ret(),
	})
}
