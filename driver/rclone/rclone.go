// Package rclone provides a safebox driver on top of any rclone remote, so a
// device can keep its safe files on a mounted share, WebDAV, S3 or a plain
// local directory.
package rclone

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/hash"
	"github.com/rclone/rclone/fs/operations"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/digest"
)

// Auto-register rclone storage driver.
func init() {
	safebox.Register("rclone", func(cfg *safebox.Config) (safebox.Driver, error) {
		remote := cfg.StringOption("remote", "")
		if remote == "" {
			remote = cfg.BasePath
		}
		if remote == "" {
			return nil, fmt.Errorf("safebox/rclone: %w: remote path is required (set Options[\"remote\"] or BasePath)", safebox.ErrInvalid)
		}
		return New(remote, Options{Algorithm: cfg.Algorithm})
	})
}

// Options configures the rclone driver.
type Options struct {
	// Algorithm is the digest Hash uses. Empty means digest.Default.
	Algorithm digest.Algorithm
}

// Driver implements safebox.Driver using rclone's fs.Fs.
type Driver struct {
	remote fs.Fs
	alg    digest.Algorithm
	ready  atomic.Bool
}

// New creates a Driver from a remote path (e.g., "gdrive:backup" or a local
// directory).
func New(remotePath string, opts Options) (*Driver, error) {
	remote, err := fs.NewFs(context.Background(), remotePath)
	if err != nil {
		return nil, err
	}
	d := NewWithFs(remote, opts)
	if err := d.Initialize(context.Background()); err != nil {
		return nil, err
	}
	return d, nil
}

// NewWithFs wraps an already configured remote. The driver is not ready until
// Initialize succeeds.
func NewWithFs(remote fs.Fs, opts Options) *Driver {
	alg := opts.Algorithm
	if alg == "" {
		alg = digest.Default
	}
	return &Driver{remote: remote, alg: alg}
}

// Remote returns the underlying rclone filesystem.
func (d *Driver) Remote() fs.Fs { return d.remote }

func objectPath(name string) (string, error) {
	p := safebox.CleanPath(name)
	if p == "" {
		return "", fmt.Errorf("safebox/rclone: %w: empty file name", safebox.ErrInvalid)
	}
	return p, nil
}

func (d *Driver) object(ctx context.Context, name string) (fs.Object, error) {
	p, err := objectPath(name)
	if err != nil {
		return nil, err
	}
	obj, err := d.remote.NewObject(ctx, p)
	if err != nil {
		return nil, convertError(err)
	}
	return obj, nil
}

func (d *Driver) put(ctx context.Context, p string, data []byte) error {
	_, err := operations.Rcat(ctx, d.remote, p, io.NopCloser(bytes.NewReader(data)), time.Now(), nil)
	return err
}

func (d *Driver) Write(ctx context.Context, name string, data []byte) error {
	p, err := objectPath(name)
	if err != nil {
		return err
	}
	return d.put(ctx, p, data)
}

// Append downloads the current content and uploads it again with data added.
// Remotes have no native append.
func (d *Driver) Append(ctx context.Context, name string, data []byte) error {
	p, err := objectPath(name)
	if err != nil {
		return err
	}
	existing, err := d.ReadAll(ctx, p)
	if err != nil && !errors.Is(err, safebox.ErrNotFound) {
		return err
	}
	buf := make([]byte, 0, len(existing)+len(data))
	buf = append(buf, existing...)
	return d.put(ctx, p, append(buf, data...))
}

func (d *Driver) ReadAll(ctx context.Context, name string) ([]byte, error) {
	obj, err := d.object(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("safebox/rclone: read %s: %w", name, err)
	}
	rc, err := obj.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func (d *Driver) Exists(ctx context.Context, name string) (bool, error) {
	_, err := d.object(ctx, name)
	if errors.Is(err, safebox.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (d *Driver) Delete(ctx context.Context, name string) error {
	obj, err := d.object(ctx, name)
	if errors.Is(err, safebox.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return obj.Remove(ctx)
}

func (d *Driver) List(ctx context.Context, dir string) ([]string, error) {
	entries, err := d.remote.List(ctx, safebox.CleanPath(dir))
	if err != nil {
		if errors.Is(convertError(err), safebox.ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if _, ok := entry.(fs.Object); ok {
			names = append(names, path.Base(entry.Remote()))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *Driver) Count(ctx context.Context, dir string) (int, error) {
	names, err := d.List(ctx, dir)
	return len(names), err
}

// nativeHashes maps digest algorithms onto the hash types remotes may store.
var nativeHashes = map[digest.Algorithm]hash.Type{
	digest.MD5:    hash.MD5,
	digest.SHA256: hash.SHA256,
}

// Hash asks the remote for a stored checksum and falls back to downloading
// the object when the remote has none.
func (d *Driver) Hash(ctx context.Context, name string) (string, error) {
	obj, err := d.object(ctx, name)
	if err != nil {
		return "", fmt.Errorf("safebox/rclone: hash %s: %w", name, err)
	}

	if ht, ok := nativeHashes[d.alg]; ok && d.remote.Hashes().Contains(ht) {
		sum, err := obj.Hash(ctx, ht)
		if err != nil && !errors.Is(err, hash.ErrUnsupported) {
			return "", err
		}
		if sum != "" {
			return sum, nil
		}
	}

	rc, err := obj.Open(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	return d.alg.SumReader(rc)
}

func (d *Driver) UsagePercent(ctx context.Context) (float64, error) {
	about := d.remote.Features().About
	if about == nil {
		return 0, safebox.ErrNotSupported
	}
	usage, err := about(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", safebox.ErrNotSupported, err)
	}
	if usage.Total == nil || usage.Used == nil || *usage.Total <= 0 {
		return 0, safebox.ErrNotSupported
	}
	return min(100, 100*float64(*usage.Used)/float64(*usage.Total)), nil
}

// Format deletes every object and directory below the remote root.
func (d *Driver) Format(ctx context.Context) error {
	if err := operations.Delete(ctx, d.remote); err != nil && !errors.Is(convertError(err), safebox.ErrNotFound) {
		return err
	}
	if err := operations.Rmdirs(ctx, d.remote, "", true); err != nil && !errors.Is(convertError(err), safebox.ErrNotFound) {
		return err
	}
	return nil
}

func (d *Driver) Initialize(ctx context.Context) error {
	d.ready.Store(false)
	if err := d.remote.Mkdir(ctx, ""); err != nil {
		return fmt.Errorf("safebox/rclone: mount %s: %w", d.remote.String(), err)
	}
	d.ready.Store(true)
	return nil
}

func (d *Driver) IsReady() bool { return d.ready.Load() }

// Algorithm implements safebox.DigestReporter.
func (d *Driver) Algorithm() digest.Algorithm { return d.alg }

func convertError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrorObjectNotFound) || errors.Is(err, fs.ErrorDirNotFound) || errors.Is(err, fs.ErrorIsDir) {
		return fmt.Errorf("%w: %w", safebox.ErrNotFound, err)
	}
	return err
}

// Compile-time interface checks.
var (
	_ safebox.Driver         = (*Driver)(nil)
	_ safebox.DigestReporter = (*Driver)(nil)
)
