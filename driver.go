package safebox

import "context"

// Driver is the raw named-blob contract a storage backend must satisfy.
//
// Drivers carry no policy. Calls are synchronous and blocking, and a write
// interrupted half-way may leave a truncated file behind. Names are
// slash-separated and relative to the driver root (see [CleanPath]).
type Driver interface {
	// Write replaces the content of name, creating it if necessary.
	Write(ctx context.Context, name string, data []byte) error

	// Append adds data to the end of name, creating it if necessary.
	Append(ctx context.Context, name string, data []byte) error

	// ReadAll returns the full content of name. A missing file yields an
	// error wrapping ErrNotFound.
	ReadAll(ctx context.Context, name string) ([]byte, error)

	// Exists reports whether name is a regular file.
	Exists(ctx context.Context, name string) (bool, error)

	// Delete removes name. Deleting a missing file succeeds.
	Delete(ctx context.Context, name string) error

	// List returns the base names of the regular files directly inside dir.
	// A missing directory yields an empty list.
	List(ctx context.Context, dir string) ([]string, error)

	// Count returns the number of regular files directly inside dir.
	Count(ctx context.Context, dir string) (int, error)

	// Hash returns the hex digest of the current bytes of name. It is
	// deterministic for identical content.
	Hash(ctx context.Context, name string) (string, error)

	// UsagePercent reports how full the backing store is, in [0, 100].
	UsagePercent(ctx context.Context) (float64, error)

	// Format erases the backing store.
	Format(ctx context.Context) error

	// Initialize mounts or opens the backing store and updates readiness.
	Initialize(ctx context.Context) error

	// IsReady reports whether the last Initialize succeeded.
	IsReady() bool
}
