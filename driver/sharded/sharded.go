// Package sharded provides a content-addressed safebox driver. Each file is
// cut into fixed-size chunks stored once by their BLAKE3 digest, and a JSON
// manifest per file lists the chunks in order. Small flash partitions with
// per-object size limits and repeated payloads are the intended target.
package sharded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/digest"
)

// DefaultChunkSize is the default chunk size (64KiB).
const DefaultChunkSize = 64 * 1024

// Auto-register sharded storage driver.
func init() {
	safebox.Register("sharded", func(cfg *safebox.Config) (safebox.Driver, error) {
		basePath := cfg.BasePath
		if basePath == "" {
			basePath = "./data"
		}
		manifestPath := cfg.StringOption("manifestDir", filepath.Join(basePath, "manifest"))
		shardsPath := cfg.StringOption("shardsDir", filepath.Join(basePath, "shards"))

		// Ensure directories exist
		if err := os.MkdirAll(manifestPath, 0750); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(shardsPath, 0750); err != nil {
			return nil, err
		}

		return New(
			afero.NewBasePathFs(afero.NewOsFs(), manifestPath),
			afero.NewBasePathFs(afero.NewOsFs(), shardsPath),
			Options{
				Algorithm: cfg.Algorithm,
				ChunkSize: cfg.Int64Option("chunkSize", DefaultChunkSize),
				Capacity:  cfg.Int64Option("capacity", 0),
			},
		), nil
	})
}

// Manifest lists the chunks of one logical file.
type Manifest struct {
	Chunks     []string  `json:"chunks"`     // Chunk digests
	ChunkSizes []int64   `json:"chunkSizes"` // Per-chunk sizes
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"modTime"`
}

// Options configures the sharded driver.
type Options struct {
	// Algorithm is the digest Hash uses. Chunks are always addressed by
	// BLAKE3. Empty means digest.Default.
	Algorithm digest.Algorithm

	// ChunkSize is the largest shard written. Zero means DefaultChunkSize.
	ChunkSize int64

	// Capacity in bytes, used by UsagePercent. Without it UsagePercent
	// returns safebox.ErrNotSupported.
	Capacity int64
}

// Driver implements safebox.Driver using content-addressed chunked storage.
type Driver struct {
	manifestFs afero.Fs
	shardsFs   afero.Fs
	chunkSize  int64
	opts       Options
	bufferPool *sync.Pool

	// mu serializes mutations so GC never races a writer.
	mu    sync.Mutex
	ready atomic.Bool
}

// New creates a sharded Driver.
// manifestFs stores manifest JSON files (mirroring logical paths),
// shardsFs stores chunk blobs (content-addressed via shardPath).
// They can share the same filesystem or be separate (e.g., for cross-device dedup).
func New(manifestFs, shardsFs afero.Fs, opts Options) *Driver {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Algorithm == "" {
		opts.Algorithm = digest.Default
	}
	d := &Driver{
		manifestFs: manifestFs,
		shardsFs:   shardsFs,
		chunkSize:  opts.ChunkSize,
		opts:       opts,
	}
	d.bufferPool = &sync.Pool{
		New: func() interface{} {
			b := make([]byte, d.chunkSize)
			return &b
		},
	}
	d.ready.Store(true)
	return d
}

// manifestPath returns the manifest file path that mirrors the logical path.
// e.g. "test/hello.d" → "/test/hello.d.json"
func manifestPath(name string) (string, error) {
	p := safebox.CleanPath(name)
	if p == "" {
		return "", fmt.Errorf("safebox/sharded: %w: empty file name", safebox.ErrInvalid)
	}
	return filepath.FromSlash("/" + p + ".json"), nil
}

func manifestDirPath(dir string) string {
	return filepath.FromSlash("/" + safebox.CleanPath(dir))
}

// shardPath spreads shards across three directory levels.
// e.g. "abc123def456" → "/ab/c1/23/abc123def456"
func shardPath(hash string) string {
	if len(hash) < 6 {
		return "/" + hash
	}
	return filepath.Join("/", hash[0:2], hash[2:4], hash[4:6], hash)
}

func (d *Driver) loadManifest(name string) (*Manifest, error) {
	mPath, err := manifestPath(name)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(d.manifestFs, mPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("safebox/sharded: %s: %w", name, safebox.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest %s: %w", safebox.ErrIntegrity, name, err)
	}
	if len(m.Chunks) != len(m.ChunkSizes) {
		return nil, fmt.Errorf("%w: manifest %s lists %d chunks and %d sizes", safebox.ErrIntegrity, name, len(m.Chunks), len(m.ChunkSizes))
	}
	return &m, nil
}

func (d *Driver) saveManifest(name string, m *Manifest) error {
	mPath, err := manifestPath(name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := d.manifestFs.MkdirAll(filepath.Dir(mPath), 0750); err != nil {
		return err
	}
	return afero.WriteFile(d.manifestFs, mPath, data, 0644)
}

func (d *Driver) Write(_ context.Context, name string, data []byte) error {
	if _, err := manifestPath(name); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	w := d.newWriter()
	if _, err := w.Write(data); err != nil {
		w.release()
		return err
	}
	return w.Close(name)
}

// Append only rewrites the trailing partial chunk; full chunks are shared
// with the previous version.
func (d *Driver) Append(_ context.Context, name string, data []byte) error {
	if _, err := manifestPath(name); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	m, err := d.loadManifest(name)
	if errors.Is(err, safebox.ErrNotFound) {
		m, err = &Manifest{}, nil
	}
	if err != nil {
		return err
	}

	w := d.newWriter()
	if err := w.resume(m); err != nil {
		w.release()
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.release()
		return err
	}
	return w.Close(name)
}

func (d *Driver) ReadAll(_ context.Context, name string) ([]byte, error) {
	m, err := d.loadManifest(name)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(newChunkReader(d, m))
	if err != nil {
		return nil, fmt.Errorf("safebox/sharded: read %s: %w", name, err)
	}
	return data, nil
}

func (d *Driver) Exists(_ context.Context, name string) (bool, error) {
	mPath, err := manifestPath(name)
	if err != nil {
		return false, err
	}
	info, err := d.manifestFs.Stat(mPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes the manifest only. Shards are content-addressed and may be
// shared; GC reclaims orphans.
func (d *Driver) Delete(_ context.Context, name string) error {
	mPath, err := manifestPath(name)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	err = d.manifestFs.Remove(mPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (d *Driver) List(_ context.Context, dir string) ([]string, error) {
	entries, err := afero.ReadDir(d.manifestFs, manifestDirPath(dir))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Mode().IsRegular() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	return names, nil
}

func (d *Driver) Count(ctx context.Context, dir string) (int, error) {
	names, err := d.List(ctx, dir)
	return len(names), err
}

func (d *Driver) Hash(_ context.Context, name string) (string, error) {
	m, err := d.loadManifest(name)
	if err != nil {
		return "", err
	}
	return d.opts.Algorithm.SumReader(newChunkReader(d, m))
}

func (d *Driver) UsagePercent(_ context.Context) (float64, error) {
	if d.opts.Capacity <= 0 {
		return 0, safebox.ErrNotSupported
	}
	var used int64
	for _, fs := range []afero.Fs{d.manifestFs, d.shardsFs} {
		err := afero.Walk(fs, "/", func(_ string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.Mode().IsRegular() {
				used += info.Size()
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return min(100, 100*float64(used)/float64(d.opts.Capacity)), nil
}

// Format removes all manifests and shards.
func (d *Driver) Format(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, fs := range []afero.Fs{d.manifestFs, d.shardsFs} {
		infos, err := afero.ReadDir(fs, "/")
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		for _, info := range infos {
			if err := fs.RemoveAll(filepath.Join("/", info.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) Initialize(_ context.Context) error {
	d.ready.Store(false)
	for _, fs := range []afero.Fs{d.manifestFs, d.shardsFs} {
		if err := fs.MkdirAll("/", 0750); err != nil {
			return fmt.Errorf("safebox/sharded: mount: %w", err)
		}
	}
	d.ready.Store(true)
	return nil
}

func (d *Driver) IsReady() bool { return d.ready.Load() }

// Algorithm implements safebox.DigestReporter.
func (d *Driver) Algorithm() digest.Algorithm { return d.opts.Algorithm }

// GC removes shards no manifest refers to and returns how many it removed.
func (d *Driver) GC(_ context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	live := make(map[string]struct{})
	err := afero.Walk(d.manifestFs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() || !strings.HasSuffix(p, ".json") {
			return nil
		}
		data, err := afero.ReadFile(d.manifestFs, p)
		if err != nil {
			return err
		}
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("%w: manifest %s: %w", safebox.ErrIntegrity, p, err)
		}
		for _, h := range m.Chunks {
			live[h] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var orphans []string
	err = afero.Walk(d.shardsFs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			if _, ok := live[info.Name()]; !ok {
				orphans = append(orphans, p)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i, p := range orphans {
		if err := d.shardsFs.Remove(p); err != nil {
			return i, err
		}
	}
	return len(orphans), nil
}

// Compile-time interface checks.
var (
	_ safebox.Driver         = (*Driver)(nil)
	_ safebox.DigestReporter = (*Driver)(nil)
)
