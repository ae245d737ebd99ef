package core

import (
	"github.com/tinyrange/thunk/internal/asm"
	"github.com/tinyrange/thunk/internal/asm/amd64"
)

// floatTargetCode is double f(double *ctx, double x) { *ctx = x; return x + x; }
func floatTargetCode() ([]byte, error) {
	return amd64.EmitBytes(asm.Group{
		amd64.MovsdToMemory(amd64.Mem(amd64.Reg64(amd64.RDI)), amd64.X0),
		amd64.Addsd(amd64.X0, amd64.X0),
		amd64.Ret(),
	})
}
