package safebox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nuln/safebox/digest"
)

// Config holds the storage configuration.
type Config struct {
	// Type is the driver name: "local", "memory", "bolt", "badger", "rclone", "minio".
	Type string `json:"type" yaml:"type"`

	// Mode is the durability mode: "plain", "hash" or "hash+backup".
	Mode Mode `json:"mode" yaml:"mode"`

	// BasePath is the root directory (or database file) for file-based drivers.
	BasePath string `json:"basePath,omitempty" yaml:"basePath,omitempty"`

	// Algorithm is the digest algorithm drivers hash with. Empty means md5.
	Algorithm digest.Algorithm `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`

	// FormatIfUnready formats and re-initializes a driver that fails to
	// become ready, the way flash filesystems recover from a failed mount.
	FormatIfUnready bool `json:"formatIfUnready,omitempty" yaml:"formatIfUnready,omitempty"`

	// Options holds driver-specific configuration.
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Type == "" {
		return fmt.Errorf("%w: driver type must be set", ErrInvalid)
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(c.Mode))
	}
	if c.Algorithm != "" && !c.Algorithm.Valid() {
		return fmt.Errorf("%w: digest algorithm %q", ErrInvalid, c.Algorithm)
	}
	return nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safebox: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("safebox: parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Factory is a function that creates a [Driver] from a [Config].
type Factory func(cfg *Config) (Driver, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a storage driver available by the provided name.
// This is typically called from the driver package's init() function.
// It panics if called twice with the same name.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("safebox: driver %q already registered", name))
	}
	factories[name] = factory
}

// Drivers returns a sorted list of all registered driver names.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenDriver creates a [Driver] using the registered driver specified in cfg.Type.
func OpenDriver(cfg *Config) (Driver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("safebox: config must not be nil")
	}

	mu.RLock()
	factory, ok := factories[cfg.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("safebox: unknown driver %q (forgotten import?)", cfg.Type)
	}

	return factory(cfg)
}

// Open validates cfg, opens its driver and wraps it in a [Manipulator].
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Manipulator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("safebox: config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	drv, err := OpenDriver(cfg)
	if err != nil {
		return nil, err
	}

	if !drv.IsReady() {
		if err := recoverDriver(ctx, cfg, drv); err != nil {
			closeDriver(drv)
			return nil, err
		}
	}

	opts = append([]Option{WithAlgorithm(cfg.Algorithm)}, opts...)
	m, err := New(cfg.Mode, drv, opts...)
	if err != nil {
		closeDriver(drv)
		return nil, err
	}
	return m, nil
}

// MustOpen is like [Open] but panics on error.
func MustOpen(ctx context.Context, cfg *Config, opts ...Option) *Manipulator {
	m, err := Open(ctx, cfg, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func recoverDriver(ctx context.Context, cfg *Config, drv Driver) error {
	err := drv.Initialize(ctx)
	if err == nil && drv.IsReady() {
		return nil
	}
	if !cfg.FormatIfUnready {
		return errors.Join(fmt.Errorf("%w: %s", ErrNotReady, cfg.Type), err)
	}
	if err := drv.Format(ctx); err != nil {
		return fmt.Errorf("%w: format %s: %w", ErrNotReady, cfg.Type, err)
	}
	if err := drv.Initialize(ctx); err != nil {
		return fmt.Errorf("%w: initialize %s after format: %w", ErrNotReady, cfg.Type, err)
	}
	if !drv.IsReady() {
		return fmt.Errorf("%w: %s", ErrNotReady, cfg.Type)
	}
	return nil
}

func closeDriver(drv Driver) {
	if c, ok := drv.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

// Int64Option returns the numeric driver option key, or def when it is unset.
// YAML and JSON decoders produce different numeric types; all are accepted.
func (c *Config) Int64Option(key string, def int64) int64 {
	switch n := c.Options[key].(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	}
	return def
}

// StringOption returns the string driver option key, or def when it is unset.
func (c *Config) StringOption(key, def string) string {
	if s, ok := c.Options[key].(string); ok && s != "" {
		return s
	}
	return def
}

// BoolOption returns the boolean driver option key, or def when it is unset.
func (c *Config) BoolOption(key string, def bool) bool {
	if b, ok := c.Options[key].(bool); ok {
		return b
	}
	return def
}
