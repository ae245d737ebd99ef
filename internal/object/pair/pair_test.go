//go:build linux && (amd64 || arm64)

package pair

import (
	"errors"
	"testing"

	"github.com/tinyrange/thunk/internal/core"
	"github.com/tinyrange/thunk/internal/execmem"
	"github.com/tinyrange/thunk/internal/native"
)

func newRuntime(t *testing.T, opts core.Options) *core.Runtime {
	t.Helper()
	rt, err := core.New(opts)
	if err != nil {
		t.Skipf("runtime unavailable: %v", err)
	}
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestProperties(t *testing.T) {
	rt := newRuntime(t, core.Options{})
	p, err := New(rt, 3, 4, "origin")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if k, v := native.Call(p.Key), native.Call(p.Value); k != 3 || v != 4 {
		t.Fatalf("key=%d value=%d, want 3/4", k, v)
	}
	native.Call(p.SetKey, 10)
	native.Call(p.SetValue, 20)
	if k, v := native.Call(p.Key), native.Call(p.Value); k != 10 || v != 20 {
		t.Fatalf("key=%d value=%d, want 10/20", k, v)
	}

	if got := p.NameString(); got != "origin" {
		t.Fatalf("name=%q, want origin", got)
	}
	p.SetName("renamed")
	if got := p.NameString(); got != "renamed" {
		t.Fatalf("name=%q, want renamed", got)
	}
}

func TestArities(t *testing.T) {
	rt := newRuntime(t, core.Options{})
	p, err := New(rt, 2, 5, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	tests := []struct {
		name  string
		entry uintptr
		args  []uintptr
		want  uintptr
	}{
		{"sum3", p.Sum3, []uintptr{1, 2, 3}, 2 + 5 + 1 + 2 + 3},
		{"dot4", p.Dot4, []uintptr{1, 2, 3, 4}, 2*1 + 5*2 + 3*4},
		{"poly5", p.Poly5, []uintptr{1, 0, 0, 0, 7}, 16 + 7},
		{"mix6", p.Mix6, []uintptr{1, 2, 3, 4, 5, 6}, Mix(2, 5, [6]uintptr{1, 2, 3, 4, 5, 6})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := native.Call(tt.entry, tt.args...); got != tt.want {
				t.Fatalf("%s(%v)=%d, want %d", tt.name, tt.args, got, tt.want)
			}
		})
	}

	// Argument order matters for Mix6.
	if native.Call(p.Mix6, 6, 5, 4, 3, 2, 1) == native.Call(p.Mix6, 1, 2, 3, 4, 5, 6) {
		t.Fatalf("mix6 ignores argument order")
	}
}

func TestIsolation(t *testing.T) {
	rt := newRuntime(t, core.Options{})
	a, err := New(rt, 1, 1, "a")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	b, err := New(rt, 100, 100, "b")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	native.Call(a.SetKey, 7)
	if got := native.Call(b.Key); got != 100 {
		t.Fatalf("b.key=%d after setting a, want 100", got)
	}
	if got := native.Call(a.Sum3, 0, 0, 0); got != 8 {
		t.Fatalf("a.sum3=%d, want 8", got)
	}
	if got := native.Call(b.Sum3, 0, 0, 0); got != 200 {
		t.Fatalf("b.sum3=%d, want 200", got)
	}
}

func TestRollback(t *testing.T) {
	page, err := execmem.NewPageProvider(execmem.Options{})
	if err != nil {
		t.Fatalf("NewPageProvider: %v", err)
	}
	defer page.Close()

	rt := newRuntime(t, core.Options{Provider: execmem.FailNth(page, 9)})
	basePairs, baseHeap := Live(), native.Allocated()

	p, err := New(rt, 1, 2, "x")
	if p != nil || !errors.Is(err, core.ErrMemoryExhausted) {
		t.Fatalf("New=%v,%v, want ErrMemoryExhausted", p, err)
	}
	if page.Stats().LiveBlocks != 0 || Live() != basePairs || native.Allocated() != baseHeap {
		t.Fatalf("rollback leaked: blocks=%d pairs=%d heap=%d", page.Stats().LiveBlocks, Live(), native.Allocated())
	}
}
