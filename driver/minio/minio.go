// Package minio stores safebox files as objects in a MinIO or other
// S3-compatible bucket.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/digest"
)

// Auto-register minio storage driver.
func init() {
	safebox.Register("minio", func(cfg *safebox.Config) (safebox.Driver, error) {
		endpoint := cfg.StringOption("endpoint", "")
		bucket := cfg.StringOption("bucket", "")
		if endpoint == "" || bucket == "" {
			return nil, fmt.Errorf("safebox/minio: %w: endpoint and bucket options are required", safebox.ErrInvalid)
		}
		client, err := minio.New(endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.StringOption("accessKey", ""), cfg.StringOption("secretKey", ""), ""),
			Secure: cfg.BoolOption("secure", false),
			Region: cfg.StringOption("region", ""),
		})
		if err != nil {
			return nil, fmt.Errorf("safebox/minio: client: %w", err)
		}
		d := New(client, bucket, Options{
			Prefix:    cfg.StringOption("prefix", cfg.BasePath),
			Algorithm: cfg.Algorithm,
			Capacity:  cfg.Int64Option("capacity", 0),
		})
		// An unreachable server leaves the driver unready; Open retries
		// through Initialize.
		_ = d.Initialize(context.Background())
		return d, nil
	})
}

// Options configures the minio driver.
type Options struct {
	// Prefix is prepended to all object keys (e.g. "devices/42").
	Prefix string

	// Algorithm is the digest Hash uses. Empty means digest.Default.
	Algorithm digest.Algorithm

	// Capacity in bytes, compared against the total object size below
	// Prefix by UsagePercent. Without it UsagePercent returns
	// safebox.ErrNotSupported.
	Capacity int64
}

// Driver implements safebox.Driver for MinIO and S3-compatible storage.
type Driver struct {
	client *minio.Client
	bucket string
	prefix string
	opts   Options
	ready  atomic.Bool
}

// New creates a minio driver. It is not ready until Initialize has checked
// the bucket.
func New(client *minio.Client, bucket string, opts Options) *Driver {
	if opts.Algorithm == "" {
		opts.Algorithm = digest.Default
	}
	return &Driver{
		client: client,
		bucket: bucket,
		prefix: safebox.CleanPath(opts.Prefix),
		opts:   opts,
	}
}

func (d *Driver) key(name string) (string, error) {
	n := safebox.CleanPath(name)
	if n == "" {
		return "", fmt.Errorf("safebox/minio: %w: empty file name", safebox.ErrInvalid)
	}
	return path.Join(d.prefix, n), nil
}

// dirPrefix returns the listing prefix for dir, ending in "/" unless it is
// the bucket root.
func (d *Driver) dirPrefix(dir string) string {
	p := path.Join(d.prefix, safebox.CleanPath(dir))
	if p == "" || p == "." {
		return ""
	}
	return p + "/"
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (d *Driver) Write(ctx context.Context, name string, data []byte) error {
	k, err := d.key(name)
	if err != nil {
		return err
	}
	_, err = d.client.PutObject(ctx, d.bucket, k, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return err
}

// Append reads the object and uploads it again with data added. Objects are
// immutable.
func (d *Driver) Append(ctx context.Context, name string, data []byte) error {
	existing, err := d.ReadAll(ctx, name)
	if err != nil && !errors.Is(err, safebox.ErrNotFound) {
		return err
	}
	buf := make([]byte, 0, len(existing)+len(data))
	buf = append(buf, existing...)
	return d.Write(ctx, name, append(buf, data...))
}

func (d *Driver) ReadAll(ctx context.Context, name string) ([]byte, error) {
	k, err := d.key(name)
	if err != nil {
		return nil, err
	}
	obj, err := d.client.GetObject(ctx, d.bucket, k, minio.GetObjectOptions{})
	if err != nil {
		return nil, d.readErr(name, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, d.readErr(name, err)
	}
	return data, nil
}

func (d *Driver) readErr(name string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("safebox/minio: %s: %w", name, safebox.ErrNotFound)
	}
	return fmt.Errorf("safebox/minio: read %s: %w", name, err)
}

func (d *Driver) Exists(ctx context.Context, name string) (bool, error) {
	k, err := d.key(name)
	if err != nil {
		return false, err
	}
	_, err = d.client.StatObject(ctx, d.bucket, k, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (d *Driver) Delete(ctx context.Context, name string) error {
	k, err := d.key(name)
	if err != nil {
		return err
	}
	err = d.client.RemoveObject(ctx, d.bucket, k, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (d *Driver) List(ctx context.Context, dir string) ([]string, error) {
	prefix := d.dirPrefix(dir)

	names := []string{}
	for obj := range d.client.ListObjects(ctx, d.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		// Common prefixes stand for subdirectories.
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *Driver) Count(ctx context.Context, dir string) (int, error) {
	names, err := d.List(ctx, dir)
	return len(names), err
}

// Hash downloads the object and digests it. ETags are not content hashes
// for multipart or encrypted objects.
func (d *Driver) Hash(ctx context.Context, name string) (string, error) {
	data, err := d.ReadAll(ctx, name)
	if err != nil {
		return "", err
	}
	return d.opts.Algorithm.Sum(data), nil
}

func (d *Driver) UsagePercent(ctx context.Context) (float64, error) {
	if d.opts.Capacity <= 0 {
		return 0, safebox.ErrNotSupported
	}
	var used int64
	for obj := range d.client.ListObjects(ctx, d.bucket, minio.ListObjectsOptions{Prefix: d.dirPrefix(""), Recursive: true}) {
		if obj.Err != nil {
			return 0, obj.Err
		}
		used += obj.Size
	}
	return min(100, 100*float64(used)/float64(d.opts.Capacity)), nil
}

// Format removes every object below the prefix.
func (d *Driver) Format(ctx context.Context) error {
	for obj := range d.client.ListObjects(ctx, d.bucket, minio.ListObjectsOptions{Prefix: d.dirPrefix(""), Recursive: true}) {
		if obj.Err != nil {
			return obj.Err
		}
		if err := d.client.RemoveObject(ctx, d.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil && !isNotFound(err) {
			return err
		}
	}
	return nil
}

// Initialize creates the bucket if it does not exist.
func (d *Driver) Initialize(ctx context.Context) error {
	d.ready.Store(false)
	exists, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		return fmt.Errorf("safebox/minio: bucket %s: %w", d.bucket, err)
	}
	if !exists {
		if err := d.client.MakeBucket(ctx, d.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("safebox/minio: make bucket %s: %w", d.bucket, err)
		}
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
