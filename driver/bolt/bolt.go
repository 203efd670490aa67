// Package bolt stores safebox files as values in a single bbolt database
// file, keyed by their clean path.
package bolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/digest"
)

// Auto-register bolt storage driver.
func init() {
	safebox.Register("bolt", func(cfg *safebox.Config) (safebox.Driver, error) {
		p := cfg.StringOption("path", cfg.BasePath)
		if p == "" {
			return nil, fmt.Errorf("safebox/bolt: %w: database path is required (set BasePath or Options[\"path\"])", safebox.ErrInvalid)
		}
		return Open(p, Options{
			Algorithm: cfg.Algorithm,
			Bucket:    cfg.StringOption("bucket", ""),
			Capacity:  cfg.Int64Option("capacity", 0),
		})
	})
}

// DefaultBucket holds the files unless Options.Bucket says otherwise.
const DefaultBucket = "safebox"

// Options configures the bolt driver.
type Options struct {
	// Algorithm is the digest Hash uses. Empty means digest.Default.
	Algorithm digest.Algorithm

	// Bucket is the bbolt bucket holding the files.
	Bucket string

	// Capacity in bytes, compared against the database file size by
	// UsagePercent. Without it UsagePercent returns safebox.ErrNotSupported.
	Capacity int64

	// Timeout waits for the database file lock. Zero means one second.
	Timeout time.Duration
}

// Driver implements safebox.Driver on a bbolt database.
type Driver struct {
	db     *bbolt.DB
	bucket []byte
	opts   Options
	ready  atomic.Bool
}

// Open opens or creates the database at dbPath.
// The parent directory is created if it does not exist.
func Open(dbPath string, opts Options) (*Driver, error) {
	if opts.Algorithm == "" {
		opts.Algorithm = digest.Default
	}
	if opts.Bucket == "" {
		opts.Bucket = DefaultBucket
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("safebox/bolt: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("safebox/bolt: open %s: %w", dbPath, err)
	}

	d := &Driver{db: db, bucket: []byte(opts.Bucket), opts: opts}
	if err := d.Initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	d.ready.Store(false)
	return d.db.Close()
}

func fileKey(name string) ([]byte, error) {
	k := safebox.CleanPath(name)
	if k == "" {
		return nil, fmt.Errorf("safebox/bolt: %w: empty file name", safebox.ErrInvalid)
	}
	return []byte(k), nil
}

// lookup distinguishes an empty value from a missing key.
func lookup(b *bbolt.Bucket, key []byte) ([]byte, bool) {
	k, v := b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) || v == nil {
		return nil, false
	}
	return v, true
}

func (d *Driver) Write(_ context.Context, name string, data []byte) error {
	k, err := fileKey(name)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(d.bucket).Put(k, data)
	})
}

func (d *Driver) Append(_ context.Context, name string, data []byte) error {
	k, err := fileKey(name)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(d.bucket)
		existing, _ := lookup(b, k)
		buf := make([]byte, 0, len(existing)+len(data))
		buf = append(buf, existing...)
		return b.Put(k, append(buf, data...))
	})
}

func (d *Driver) ReadAll(_ context.Context, name string) ([]byte, error) {
	k, err := fileKey(name)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = d.db.View(func(tx *bbolt.Tx) error {
		v, ok := lookup(tx.Bucket(d.bucket), k)
		if !ok {
			return fmt.Errorf("safebox/bolt: %s: %w", k, safebox.ErrNotFound)
		}
		data = append([]byte{}, v...)
		return nil
	})
	return data, err
}

func (d *Driver) Exists(_ context.Context, name string) (bool, error) {
	k, err := fileKey(name)
	if err != nil {
		return false, err
	}
	var ok bool
	err = d.db.View(func(tx *bbolt.Tx) error {
		_, ok = lookup(tx.Bucket(d.bucket), k)
		return nil
	})
	return ok, err
}

func (d *Driver) Delete(_ context.Context, name string) error {
	k, err := fileKey(name)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(d.bucket).Delete(k)
	})
}

// List scans the keys under dir and keeps direct children only.
func (d *Driver) List(_ context.Context, dir string) ([]string, error) {
	prefix := safebox.CleanPath(dir)
	if prefix != "" {
		prefix += "/"
	}

	names := []string{}
	err := d.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(d.bucket).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if v == nil {
				continue
			}
			rest := string(k[len(p):])
			if rest != "" && !strings.Contains(rest, "/") {
				names = append(names, rest)
			}
		}
		return nil
	})
	return names, err
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
	return d.opts.Algorithm.Sum(data), nil
}

func (d *Driver) UsagePercent(_ context.Context) (float64, error) {
	if d.opts.Capacity <= 0 {
		return 0, safebox.ErrNotSupported
	}
	var size int64
	err := d.db.View(func(tx *bbolt.Tx) error {
		size = tx.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return min(100, 100*float64(size)/float64(d.opts.Capacity)), nil
}

// Format drops and recreates the bucket.
func (d *Driver) Format(_ context.Context) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(d.bucket); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return fmt.Errorf("safebox/bolt: drop bucket %q: %w", d.bucket, err)
		}
		_, err := tx.CreateBucket(d.bucket)
		return err
	})
}

func (d *Driver) Initialize(_ context.Context) error {
	d.ready.Store(false)
	err := d.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(d.bucket); err != nil {
			return fmt.Errorf("safebox/bolt: create bucket %q: %w", d.bucket, err)
		}
		return nil
	})
	if err != nil {
		return err
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
