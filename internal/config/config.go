// Package config loads runtime settings from a YAML file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Config selects and sizes the executable memory provider.
type Config struct {
	// Provider is one of auto, slab or page.
	Provider   string `yaml:"provider"`
	SlotSize   int    `yaml:"slot_size"`
	ArenaPages int    `yaml:"arena_pages"`
	// MaxBytes caps executable memory reserved from the OS. Zero is unlimited.
	MaxBytes int64 `yaml:"max_bytes"`
	// FailAfter makes the provider fail its n-th allocation. Zero disables.
	FailAfter int  `yaml:"fail_after"`
	Debug     bool `yaml:"debug"`
}

const (
	EnvProvider  = "THUNK_PROVIDER"
	EnvMaxBytes  = "THUNK_MAX_BYTES"
	EnvFailAfter = "THUNK_FAIL_AFTER"
	EnvDebug     = "THUNK_DEBUG"
)

func Default() Config {
	return Config{
		Provider:   "auto",
		SlotSize:   64,
		ArenaPages: 16,
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv overlays THUNK_* environment variables on base. The environment is
// re-read on every call. A variable that is set but does not parse is an
// error rather than a silent fallback to base.
func FromEnv(base Config) (Config, error) {
	env.Load()

	cfg := base
	cfg.Provider = env.Str(EnvProvider, cfg.Provider)
	var err error
	if cfg.MaxBytes, err = envInt(EnvMaxBytes, cfg.MaxBytes); err != nil {
		return Config{}, err
	}
	failAfter, err := envInt(EnvFailAfter, int64(cfg.FailAfter))
	if err != nil {
		return Config{}, err
	}
	cfg.FailAfter = int(failAfter)
	if cfg.Debug, err = envBool(EnvDebug, cfg.Debug); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}
	return cfg, nil
}

func envInt(name string, fallback int64) (int64, error) {
	if !env.Has(name) {
		return fallback, nil
	}
	raw := strings.TrimSpace(env.Str(name))
	v, err := strconv.ParseInt(raw, 10, 0)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", name, raw)
	}
	return v, nil
}

func envBool(name string, fallback bool) (bool, error) {
	if !env.Has(name) {
		return fallback, nil
	}
	raw := strings.TrimSpace(env.Str(name))
	switch {
	case env.True(raw):
		return true, nil
	case env.False(raw):
		return false, nil
	}
	return false, fmt.Errorf("config: %s=%q is not a boolean", name, raw)
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Provider) {
	case "", "auto", "slab", "page":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.SlotSize < 0 || c.ArenaPages < 0 {
		return fmt.Errorf("slot_size and arena_pages must not be negative")
	}
	if c.MaxBytes < 0 {
		return fmt.Errorf("max_bytes must not be negative")
	}
	if c.FailAfter < 0 {
		return fmt.Errorf("fail_after must not be negative")
	}
	return nil
}
