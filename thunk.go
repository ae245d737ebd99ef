// Package thunk turns (function, context) pairs into plain C function
// pointers. Each pointer is a small piece of generated machine code that
// inserts its bound context as the first argument and jumps to the function,
// giving context-free callers bound-method behaviour.
package thunk

import (
	"log/slog"
	"os"
	"sync"

	"github.com/tinyrange/thunk/internal/codegen"
	"github.com/tinyrange/thunk/internal/config"
	"github.com/tinyrange/thunk/internal/core"
	"github.com/tinyrange/thunk/internal/execmem"
)

// -----------------------------------------------------------------------------
// Type Aliases - These re-export types from internal/core
// -----------------------------------------------------------------------------

// Runtime creates and frees trampolines on one backend and memory provider.
type Runtime = core.Runtime

// Trampoline is one generated thunk.
type Trampoline = core.Trampoline

// Batch groups the trampolines of one object for validation and teardown.
type Batch = core.Batch

// Shape is the arity class of a trampoline.
type Shape = codegen.Shape

// Stats is a snapshot of a runtime's counters.
type Stats = core.Stats

// Error describes a failed trampoline creation.
type Error = core.Error

// ContractViolation is the panic value for lifecycle misuse.
type ContractViolation = core.ContractViolation

// Backend encodes trampolines for one instruction set and calling convention.
type Backend = codegen.Backend

// Provider supplies executable memory.
type Provider = execmem.Provider

// Config holds runtime settings.
type Config = config.Config

// Shapes.
const (
	Nullary      = codegen.Nullary
	Unary        = codegen.Unary
	Binary       = codegen.Binary
	Ternary      = codegen.Ternary
	Quaternary   = codegen.Quaternary
	Quinary      = codegen.Quinary
	Hexadic      = codegen.Hexadic
	Variadic     = codegen.Variadic
	Getter       = codegen.Getter
	Setter       = codegen.Setter
	StringSetter = codegen.StringSetter
)

// Common sentinel errors.
var (
	// ErrCodegenUnsupported is returned when the backend cannot encode a
	// shape on this platform.
	ErrCodegenUnsupported = core.ErrCodegenUnsupported
	// ErrMemoryExhausted is returned when no executable memory is available.
	ErrMemoryExhausted = core.ErrMemoryExhausted
)

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// Option configures a Runtime built by New.
type Option func(*core.Options)

// WithLogger sets the logger for rollbacks and failures.
func WithLogger(log *slog.Logger) Option {
	return func(o *core.Options) { o.Logger = log }
}

// WithProvider uses p instead of a private provider. The runtime does not
// close it.
func WithProvider(p Provider) Option {
	return func(o *core.Options) { o.Provider = p }
}

// WithBackend overrides the native backend.
func WithBackend(b Backend) Option {
	return func(o *core.Options) { o.Backend = b }
}

// New builds a runtime for the native platform.
func New(opts ...Option) (*Runtime, error) {
	var o core.Options
	for _, opt := range opts {
		opt(&o)
	}
	return core.New(o)
}

// NewFromConfig builds a runtime with the provider described by cfg.
func NewFromConfig(cfg Config, log *slog.Logger) (*Runtime, error) {
	return core.NewFromConfig(cfg, log)
}

var defaultRuntime struct {
	once sync.Once
	rt   *Runtime
	err  error
}

// Default returns the process-wide runtime, configured from THUNK_*
// environment variables on first use.
func Default() (*Runtime, error) {
	defaultRuntime.once.Do(func() {
		cfg, err := config.FromEnv(config.Default())
		if err != nil {
			defaultRuntime.err = err
			return
		}
		log := slog.Default()
		if cfg.Debug {
			log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
		defaultRuntime.rt, defaultRuntime.err = core.NewFromConfig(cfg, log)
	})
	return defaultRuntime.rt, defaultRuntime.err
}
