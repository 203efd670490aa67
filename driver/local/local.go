package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/digest"
)

// Auto-register local storage driver.
func init() {
	safebox.Register("local", func(cfg *safebox.Config) (safebox.Driver, error) {
		return New(cfg.BasePath, Options{
			Algorithm:     cfg.Algorithm,
			MaxNameLength: int(cfg.Int64Option("maxNameLength", 0)),
			Capacity:      cfg.Int64Option("capacity", 0),
		})
	})
}

// SPIFFSMaxNameLength is the longest file name SPIFFS accepts.
const SPIFFSMaxNameLength = 31

// Options configures the local driver.
type Options struct {
	// Algorithm is the digest Hash uses. Empty means digest.Default.
	Algorithm digest.Algorithm

	// MaxNameLength rejects longer names with safebox.ErrNameTooLong, as
	// flash filesystems do. Zero means unlimited.
	MaxNameLength int

	// Capacity of the partition in bytes, used by UsagePercent. Without it
	// UsagePercent returns safebox.ErrNotSupported.
	Capacity int64
}

// Driver implements safebox.Driver on an afero filesystem.
type Driver struct {
	fs    afero.Fs
	root  string
	opts  Options
	ready atomic.Bool
}

// New creates a local Driver rooted at the given directory, creating it if
// necessary.
func New(root string, opts Options) (*Driver, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0750); err != nil {
		return nil, err
	}
	d := newDriver(afero.NewBasePathFs(afero.NewOsFs(), absRoot), absRoot, opts)
	if err := d.Initialize(context.Background()); err != nil {
		return nil, err
	}
	return d, nil
}

// NewWithFs creates a local Driver backed by a custom afero.Fs.
// This is useful for testing with afero.MemMapFs.
func NewWithFs(fs afero.Fs, opts Options) *Driver {
	d := newDriver(fs, ".", opts)
	d.ready.Store(true)
	return d
}

func newDriver(fs afero.Fs, root string, opts Options) *Driver {
	if opts.Algorithm == "" {
		opts.Algorithm = digest.Default
	}
	return &Driver{fs: fs, root: root, opts: opts}
}

// Root returns the directory the driver was opened on.
func (d *Driver) Root() string { return d.root }

// fsPath maps a driver name onto the afero filesystem.
func (d *Driver) fsPath(name string) string {
	return filepath.FromSlash("/" + safebox.CleanPath(name))
}

func (d *Driver) checkName(name string) error {
	clean := safebox.CleanPath(name)
	if clean == "" {
		return fmt.Errorf("safebox/local: %w: empty file name", safebox.ErrInvalid)
	}
	if d.opts.MaxNameLength > 0 && len(clean) > d.opts.MaxNameLength {
		return fmt.Errorf("safebox/local: %w: %q exceeds %d bytes", safebox.ErrNameTooLong, clean, d.opts.MaxNameLength)
	}
	return nil
}

func (d *Driver) Write(ctx context.Context, name string, data []byte) error {
	if err := d.checkName(name); err != nil {
		return err
	}
	p := d.fsPath(name)
	if err := d.fs.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return err
	}
	return afero.WriteFile(d.fs, p, data, 0644)
}

func (d *Driver) Append(ctx context.Context, name string, data []byte) error {
	if err := d.checkName(name); err != nil {
		return err
	}
	p := d.fsPath(name)
	if err := d.fs.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return err
	}
	f, err := d.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	n, err := f.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (d *Driver) ReadAll(ctx context.Context, name string) ([]byte, error) {
	if err := d.checkName(name); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(d.fs, d.fsPath(name))
	if err != nil {
		return nil, fmt.Errorf("safebox/local: read %s: %w", name, err)
	}
	return data, nil
}

func (d *Driver) Exists(ctx context.Context, name string) (bool, error) {
	if err := d.checkName(name); err != nil {
		return false, err
	}
	info, err := d.fs.Stat(d.fsPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (d *Driver) Delete(ctx context.Context, name string) error {
	if err := d.checkName(name); err != nil {
		return err
	}
	err := d.fs.Remove(d.fsPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (d *Driver) List(ctx context.Context, dir string) ([]string, error) {
	infos, err := afero.ReadDir(d.fs, d.fsPath(dir))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Mode().IsRegular() {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

func (d *Driver) Count(ctx context.Context, dir string) (int, error) {
	names, err := d.List(ctx, dir)
	return len(names), err
}

func (d *Driver) Hash(ctx context.Context, name string) (string, error) {
	if err := d.checkName(name); err != nil {
		return "", err
	}
	f, err := d.fs.Open(d.fsPath(name))
	if err != nil {
		return "", fmt.Errorf("safebox/local: hash %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	return d.opts.Algorithm.SumReader(f)
}

func (d *Driver) UsagePercent(ctx context.Context) (float64, error) {
	if d.opts.Capacity <= 0 {
		return 0, safebox.ErrNotSupported
	}
	var used int64
	err := afero.Walk(d.fs, "/", func(_ string, info os.FileInfo, err error) error {
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
	return min(100, 100*float64(used)/float64(d.opts.Capacity)), nil
}

// Format removes everything below the root, leaving the root itself.
func (d *Driver) Format(ctx context.Context) error {
	infos, err := afero.ReadDir(d.fs, "/")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for _, info := range infos {
		if err := d.fs.RemoveAll(filepath.Join("/", info.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) Initialize(ctx context.Context) error {
	d.ready.Store(false)
	if err := d.fs.MkdirAll("/", 0750); err != nil {
		return fmt.Errorf("safebox/local: mount %s: %w", d.root, err)
	}
	info, err := d.fs.Stat("/")
	if err != nil {
		return fmt.Errorf("safebox/local: mount %s: %w", d.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("safebox/local: mount %s: %w", d.root, safebox.ErrInvalid)
	}
	d.ready.Store(true)
	return nil
}

func (d *Driver) IsReady() bool { return d.ready.Load() }

// Algorithm implements safebox.DigestReporter.
func (d *Driver) Algorithm() digest.Algorithm { return d.opts.Algorithm }

// Compile-time interface checks.
var (
	_ safebox.Driver         = (*Driver)(nil)
	_ safebox.DigestReporter = (*Driver)(nil)
)
