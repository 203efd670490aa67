// Package badger stores safebox files in a BadgerDB key-value store, either
// on disk or fully in memory.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/digest"
)

// Auto-register badger storage driver.
func init() {
	safebox.Register("badger", func(cfg *safebox.Config) (safebox.Driver, error) {
		return Open(Options{
			Dir:       cfg.StringOption("dir", cfg.BasePath),
			InMemory:  cfg.BoolOption("inMemory", false),
			Algorithm: cfg.Algorithm,
			Capacity:  cfg.Int64Option("capacity", 0),
		})
	})
}

// Options configures the badger driver.
type Options struct {
	// Dir is the directory for BadgerDB data files.
	// Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB in memory-only mode (no disk persistence).
	InMemory bool

	// Algorithm is the digest Hash uses. Empty means digest.Default.
	Algorithm digest.Algorithm

	// Capacity in bytes, compared against the LSM and value log sizes by
	// UsagePercent. Without it UsagePercent returns safebox.ErrNotSupported.
	Capacity int64

	// Logger receives badger's warnings and errors. Nil means slog.Default().
	Logger *slog.Logger
}

// Driver implements safebox.Driver on BadgerDB.
type Driver struct {
	db    *badger.DB
	opts  Options
	ready atomic.Bool
}

// Open opens the database described by opts.
func Open(opts Options) (*Driver, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, fmt.Errorf("safebox/badger: %w: Dir is required for on-disk mode", safebox.ErrInvalid)
	}
	if opts.Algorithm == "" {
		opts.Algorithm = digest.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(slogLogger{opts.Logger.With("driver", "badger")})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("safebox/badger: open: %w", err)
	}
	d := &Driver{db: db, opts: opts}
	d.ready.Store(true)
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
		return nil, fmt.Errorf("safebox/badger: %w: empty file name", safebox.ErrInvalid)
	}
	return []byte(k), nil
}

func (d *Driver) Write(_ context.Context, name string, data []byte) error {
	k, err := fileKey(name)
	if err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, bytes.Clone(data))
	})
}

func (d *Driver) Append(_ context.Context, name string, data []byte) error {
	k, err := fileKey(name)
	if err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		var existing []byte
		item, err := txn.Get(k)
		switch {
		case err == nil:
			if existing, err = item.ValueCopy(nil); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(k, append(existing, data...))
	})
}

func (d *Driver) ReadAll(_ context.Context, name string) ([]byte, error) {
	k, err := fileKey(name)
	if err != nil {
		return nil, err
	}
	var val []byte
	err = d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("safebox/badger: %s: %w", k, safebox.ErrNotFound)
	}
	if val == nil && err == nil {
		val = []byte{}
	}
	return val, err
}

func (d *Driver) Exists(_ context.Context, name string) (bool, error) {
	k, err := fileKey(name)
	if err != nil {
		return false, err
	}
	err = d.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (d *Driver) Delete(_ context.Context, name string) error {
	k, err := fileKey(name)
	if err != nil {
		return err
	}
	err = d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// List iterates keys under dir and keeps direct children only.
func (d *Driver) List(_ context.Context, dir string) ([]string, error) {
	prefix := safebox.CleanPath(dir)
	if prefix != "" {
		prefix += "/"
	}
	p := []byte(prefix)

	names := []string{}
	err := d.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = p
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			rest := string(it.Item().Key()[len(p):])
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
	lsm, vlog := d.db.Size()
	return min(100, 100*float64(lsm+vlog)/float64(d.opts.Capacity)), nil
}

// Format drops every key.
func (d *Driver) Format(_ context.Context) error {
	return d.db.DropAll()
}

func (d *Driver) Initialize(_ context.Context) error {
	if d.db.IsClosed() {
		d.ready.Store(false)
		return fmt.Errorf("safebox/badger: %w: database is closed", safebox.ErrNotReady)
	}
	d.ready.Store(true)
	return nil
}

func (d *Driver) IsReady() bool { return d.ready.Load() }

// Algorithm implements safebox.DigestReporter.
func (d *Driver) Algorithm() digest.Algorithm { return d.opts.Algorithm }

// slogLogger routes badger's logging into slog, dropping debug and info
// chatter.
type slogLogger struct{ l *slog.Logger }

func (s slogLogger) Errorf(f string, v ...interface{})   { s.l.Error(strings.TrimSpace(fmt.Sprintf(f, v...))) }
func (s slogLogger) Warningf(f string, v ...interface{}) { s.l.Warn(strings.TrimSpace(fmt.Sprintf(f, v...))) }
func (slogLogger) Infof(string, ...interface{})          {}
func (slogLogger) Debugf(string, ...interface{})         {}

// Compile-time interface checks.
var (
	_ safebox.Driver         = (*Driver)(nil)
	_ safebox.DigestReporter = (*Driver)(nil)
)
