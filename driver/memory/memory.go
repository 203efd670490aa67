// Package memory provides an in-memory safebox driver. It is meant for tests
// and for devices that keep scratch data in RAM.
package memory

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/digest"
)

// Auto-register memory driver.
func init() {
	safebox.Register("memory", func(cfg *safebox.Config) (safebox.Driver, error) {
		return New(Options{
			Algorithm: cfg.Algorithm,
			Capacity:  cfg.Int64Option("capacity", 0),
		}), nil
	})
}

// Options configures the memory driver.
type Options struct {
	// Algorithm is the digest Hash uses. Empty means digest.Default.
	Algorithm digest.Algorithm

	// Capacity in bytes, used by UsagePercent. Without it UsagePercent
	// returns safebox.ErrNotSupported.
	Capacity int64
}

// Driver is a map-backed safebox.Driver. Content is copied on the way in and
// out, so callers never share buffers with the store. Safe for concurrent use.
type Driver struct {
	mu       sync.RWMutex
	files    map[string][]byte
	alg      digest.Algorithm
	capacity int64
	ready    bool
}

// New creates an empty, ready memory driver.
func New(opts Options) *Driver {
	alg := opts.Algorithm
	if alg == "" {
		alg = digest.Default
	}
	return &Driver{
		files:    make(map[string][]byte),
		alg:      alg,
		capacity: opts.Capacity,
		ready:    true,
	}
}

func key(name string) (string, error) {
	k := safebox.CleanPath(name)
	if k == "" {
		return "", fmt.Errorf("safebox/memory: %w: empty file name", safebox.ErrInvalid)
	}
	return k, nil
}

func (d *Driver) Write(_ context.Context, name string, data []byte) error {
	k, err := key(name)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[k] = append([]byte(nil), data...)
	return nil
}

func (d *Driver) Append(_ context.Context, name string, data []byte) error {
	k, err := key(name)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	existing := d.files[k]
	buf := make([]byte, 0, len(existing)+len(data))
	buf = append(buf, existing...)
	d.files[k] = append(buf, data...)
	return nil
}

func (d *Driver) ReadAll(_ context.Context, name string) ([]byte, error) {
	k, err := key(name)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	data, ok := d.files[k]
	if !ok {
		return nil, fmt.Errorf("safebox/memory: %s: %w", k, safebox.ErrNotFound)
	}
	return append([]byte{}, data...), nil
}

func (d *Driver) Exists(_ context.Context, name string) (bool, error) {
	k := safebox.CleanPath(name)
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.files[k]
	return ok, nil
}

func (d *Driver) Delete(_ context.Context, name string) error {
	k := safebox.CleanPath(name)
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, k)
	return nil
}

func (d *Driver) List(_ context.Context, dir string) ([]string, error) {
	dir = safebox.CleanPath(dir)
	d.mu.RLock()
	defer d.mu.RUnlock()

	var names []string
	for k := range d.files {
		if safebox.CleanPath(path.Dir(k)) == dir {
			names = append(names, path.Base(k))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *Driver) Count(ctx context.Context, dir string) (int, error) {
	names, err := d.List(ctx, dir)
	return len(names), err
}

func (d *Driver) Hash(ctx context.Context, name string) (string, error) {
	data, err := d.ReadAll(ctx, name)
	if err != nil {
		return "", err
	}
	return d.alg.Sum(data), nil
}

func (d *Driver) UsagePercent(_ context.Context) (float64, error) {
	if d.capacity <= 0 {
		return 0, safebox.ErrNotSupported
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	var used int64
	for _, data := range d.files {
		used += int64(len(data))
	}
	return min(100, 100*float64(used)/float64(d.capacity)), nil
}

func (d *Driver) Format(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files = make(map[string][]byte)
	return nil
}

func (d *Driver) Initialize(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready = true
	return nil
}

func (d *Driver) IsReady() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ready
}

// Algorithm implements safebox.DigestReporter.
func (d *Driver) Algorithm() digest.Algorithm { return d.alg }

// Compile-time interface checks.
var (
	_ safebox.Driver         = (*Driver)(nil)
	_ safebox.DigestReporter = (*Driver)(nil)
)
