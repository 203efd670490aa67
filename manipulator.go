package safebox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/nuln/safebox/digest"
)

// MaxAttempts bounds Save and Append in every mode. Attempts are retried
// immediately, without backoff.
const MaxAttempts = 3

// Option configures a [Manipulator].
type Option func(*Manipulator)

// WithLogger sets the logger used for retry and integrity diagnostics.
// By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manipulator) {
		if l != nil {
			m.log = l
		}
	}
}

// WithAlgorithm sets the digest algorithm used to verify loaded content. It
// must match the algorithm the driver hashes with. The empty algorithm keeps
// the one reported by the driver.
func WithAlgorithm(a digest.Algorithm) Option {
	return func(m *Manipulator) {
		if a != "" {
			m.alg = a
		}
	}
}

// Manipulator applies a durability [Mode] on top of a [Driver] and exposes
// logical files to callers.
//
// A Manipulator owns its driver: nothing else may use the driver while the
// Manipulator is alive, and Close releases it. The Manipulator keeps no state
// between calls besides its mode, so it needs no locking of its own, but it is
// only safe for concurrent use if the driver serializes access itself.
type Manipulator struct {
	mode   Mode
	driver Driver
	alg    digest.Algorithm
	log    *slog.Logger
}

// New returns a Manipulator for mode that takes ownership of drv.
// An invalid mode is a configuration error and is rejected here, never
// deferred to individual operations.
func New(mode Mode, drv Driver, opts ...Option) (*Manipulator, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	if drv == nil {
		return nil, ErrNilDriver
	}
	m := &Manipulator{
		mode:   mode,
		driver: drv,
		alg:    algorithmOf(drv),
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.alg.Valid() {
		return nil, fmt.Errorf("%w: digest algorithm %q", ErrInvalid, m.alg)
	}
	m.log = m.log.With("mode", mode.String())
	return m, nil
}

// MustNew is like [New] but panics on error.
func MustNew(mode Mode, drv Driver, opts ...Option) *Manipulator {
	m, err := New(mode, drv, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Mode returns the durability mode fixed at construction.
func (m *Manipulator) Mode() Mode { return m.mode }

// Algorithm returns the digest algorithm used to verify loads.
func (m *Manipulator) Algorithm() digest.Algorithm { return m.alg }

// Save stores content under the logical name, replacing any previous content.
func (m *Manipulator) Save(ctx context.Context, name string, content []byte) error {
	return m.store(ctx, name, content, false)
}

// Append adds content to the end of the logical file, creating it if needed.
func (m *Manipulator) Append(ctx context.Context, name string, content []byte) error {
	return m.store(ctx, name, content, true)
}

func (m *Manipulator) store(ctx context.Context, name string, content []byte, appendMode bool) error {
	switch m.mode {
	case ModePlain:
		return m.storePlain(ctx, name, content, appendMode)
	case ModeHashVerified:
		return m.storeVerified(ctx, name, content, appendMode)
	case ModeHashVerifiedWithBackup:
		return m.unimplemented(opName("save", appendMode))
	}
	return m.invalidMode()
}

func (m *Manipulator) storePlain(ctx context.Context, name string, content []byte, appendMode bool) error {
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		m.log.DebugContext(ctx, "storing", "name", name, "append", appendMode, "attempt", attempt)
		if err = m.put(ctx, name, content, appendMode); err == nil {
			return nil
		}
		m.log.WarnContext(ctx, "store attempt failed", "name", name, "attempt", attempt, "step", "write data", "error", err)
	}
	m.log.ErrorContext(ctx, "store attempts exhausted", "name", name, "attempts", MaxAttempts)
	return fmt.Errorf("%w: %s %s after %d attempts: %w", ErrIO, opName("save", appendMode), name, MaxAttempts, err)
}

// storeVerified runs the write-then-verify protocol: write the data file,
// hash it, persist the hash, then read the hash file back and compare. The
// hash file travels the same unreliable write path as the data, so it is
// only trusted once it reads back intact.
func (m *Manipulator) storeVerified(ctx context.Context, name string, content []byte, appendMode bool) error {
	dataName := PhysicalName(name, RoleData)
	hashName := PhysicalName(name, RoleHash)

	// An append that already landed must not be repeated by a later attempt.
	appended := false

	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		m.log.DebugContext(ctx, "storing", "name", name, "append", appendMode, "attempt", attempt)

		if !appended {
			if err = m.put(ctx, dataName, content, appendMode); err != nil {
				err = fmt.Errorf("%w: %w", ErrIO, err)
				m.log.WarnContext(ctx, "store attempt failed", "name", name, "attempt", attempt, "step", "write data", "error", err)
				continue
			}
			appended = appendMode
		}

		var step string
		if step, err = m.sealHash(ctx, dataName, hashName); err != nil {
			m.log.WarnContext(ctx, "store attempt failed", "name", name, "attempt", attempt, "step", step, "error", err)
			continue
		}
		return nil
	}
	m.log.ErrorContext(ctx, "store attempts exhausted", "name", name, "attempts", MaxAttempts)
	return fmt.Errorf("safebox: %s %s after %d attempts: %w", opName("save", appendMode), name, MaxAttempts, err)
}

// sealHash writes the digest of dataName into hashName and confirms it reads
// back byte for byte. It returns the failing step on error.
func (m *Manipulator) sealHash(ctx context.Context, dataName, hashName string) (string, error) {
	sum, err := m.driver.Hash(ctx, dataName)
	if err != nil {
		return "hash data", fmt.Errorf("%w: hash %s: %w", ErrIO, dataName, err)
	}
	if sum == "" {
		return "hash data", fmt.Errorf("%w: empty digest for %s", ErrIO, dataName)
	}
	if err := m.driver.Write(ctx, hashName, []byte(sum)); err != nil {
		return "write hash", fmt.Errorf("%w: write %s: %w", ErrIO, hashName, err)
	}
	stored, err := m.driver.ReadAll(ctx, hashName)
	if err != nil {
		return "read hash", fmt.Errorf("%w: read %s: %w", ErrIO, hashName, err)
	}
	if !bytes.Equal(stored, []byte(sum)) {
		return "verify hash", fmt.Errorf("%w: %s reads back %q, want %q", ErrIntegrity, hashName, stored, sum)
	}
	return "", nil
}

func (m *Manipulator) put(ctx context.Context, name string, content []byte, appendMode bool) error {
	if appendMode {
		return m.driver.Append(ctx, name, content)
	}
	return m.driver.Write(ctx, name, content)
}

// Load returns the content of the logical file. In ModeHashVerified the
// content is returned only if its digest matches the stored hash; otherwise
// Load returns nil and an error wrapping ErrIntegrity.
func (m *Manipulator) Load(ctx context.Context, name string) ([]byte, error) {
	switch m.mode {
	case ModePlain:
		return m.loadPlain(ctx, name)
	case ModeHashVerified:
		return m.loadVerified(ctx, name)
	case ModeHashVerifiedWithBackup:
		return nil, m.unimplemented("load")
	}
	return nil, m.invalidMode()
}

func (m *Manipulator) loadPlain(ctx context.Context, name string) ([]byte, error) {
	ok, err := m.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("safebox: load %s: %w", name, ErrNotFound)
	}
	data, err := m.driver.ReadAll(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, name, err)
	}
	return data, nil
}

func (m *Manipulator) loadVerified(ctx context.Context, name string) ([]byte, error) {
	ok, err := m.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("safebox: load %s: %w", name, ErrNotFound)
	}

	dataName := PhysicalName(name, RoleData)
	hashName := PhysicalName(name, RoleHash)

	stored, err := m.driver.ReadAll(ctx, hashName)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, hashName, err)
	}
	data, err := m.driver.ReadAll(ctx, dataName)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, dataName, err)
	}

	if sum := m.alg.Sum(data); sum != string(stored) {
		m.log.WarnContext(ctx, "integrity mismatch", "name", name, "stored", string(stored), "computed", sum)
		return nil, fmt.Errorf("%w: %s", ErrIntegrity, name)
	}
	return data, nil
}

// Exists reports whether the logical file exists. In ModeHashVerified both
// companions must be present.
func (m *Manipulator) Exists(ctx context.Context, name string) (bool, error) {
	switch m.mode {
	case ModePlain:
		return m.physicalExists(ctx, name)
	case ModeHashVerified:
		ok, err := m.physicalExists(ctx, PhysicalName(name, RoleData))
		if err != nil || !ok {
			return false, err
		}
		return m.physicalExists(ctx, PhysicalName(name, RoleHash))
	case ModeHashVerifiedWithBackup:
		return false, m.unimplemented("exists")
	}
	return false, m.invalidMode()
}

func (m *Manipulator) physicalExists(ctx context.Context, name string) (bool, error) {
	ok, err := m.driver.Exists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("%w: stat %s: %w", ErrIO, name, err)
	}
	return ok, nil
}

// Delete removes every physical file of the logical file. In
// ModeHashVerified the data file is removed first; if that fails the hash
// file is left alone and the logical file stays intact.
func (m *Manipulator) Delete(ctx context.Context, name string) error {
	switch m.mode {
	case ModePlain:
		return m.remove(ctx, name)
	case ModeHashVerified:
		if err := m.remove(ctx, PhysicalName(name, RoleData)); err != nil {
			return err
		}
		return m.remove(ctx, PhysicalName(name, RoleHash))
	case ModeHashVerifiedWithBackup:
		return m.unimplemented("delete")
	}
	return m.invalidMode()
}

func (m *Manipulator) remove(ctx context.Context, name string) error {
	if err := m.driver.Delete(ctx, name); err != nil {
		m.log.WarnContext(ctx, "delete failed", "name", name, "error", err)
		return fmt.Errorf("%w: delete %s: %w", ErrIO, name, err)
	}
	return nil
}

// List returns the logical files directly inside dir. In ModePlain these are
// the driver's file names; in ModeHashVerified only names with both
// companions present are reported.
func (m *Manipulator) List(ctx context.Context, dir string) ([]string, error) {
	switch m.mode {
	case ModePlain:
		return m.listPhysical(ctx, dir)
	case ModeHashVerified:
		names, err := m.listPhysical(ctx, dir)
		if err != nil {
			return nil, err
		}
		return LogicalNames(names), nil
	case ModeHashVerifiedWithBackup:
		return nil, m.unimplemented("list")
	}
	return nil, m.invalidMode()
}

func (m *Manipulator) listPhysical(ctx context.Context, dir string) ([]string, error) {
	names, err := m.driver.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", ErrIO, dir, err)
	}
	return names, nil
}

// Count returns the number of logical files directly inside dir.
func (m *Manipulator) Count(ctx context.Context, dir string) (int, error) {
	switch m.mode {
	case ModePlain:
		n, err := m.driver.Count(ctx, dir)
		if err != nil {
			return 0, fmt.Errorf("%w: count %s: %w", ErrIO, dir, err)
		}
		return n, nil
	case ModeHashVerified:
		names, err := m.List(ctx, dir)
		if err != nil {
			return 0, err
		}
		return len(names), nil
	case ModeHashVerifiedWithBackup:
		return 0, m.unimplemented("count")
	}
	return 0, m.invalidMode()
}

// DeleteAll deletes every logical file directly inside dir, one at a time. It
// stops at the first failure and returns how many files were deleted before
// it; those deletions are not rolled back.
func (m *Manipulator) DeleteAll(ctx context.Context, dir string) (int, error) {
	names, err := m.List(ctx, dir)
	if err != nil {
		return 0, err
	}
	for i, name := range names {
		if err := m.Delete(ctx, path.Join(dir, name)); err != nil {
			m.log.ErrorContext(ctx, "delete all aborted", "dir", dir, "deleted", i, "total", len(names), "error", err)
			return i, err
		}
	}
	m.log.DebugContext(ctx, "delete all completed", "dir", dir, "deleted", len(names))
	return len(names), nil
}

// Usage reports how full the backing store is, in percent.
func (m *Manipulator) Usage(ctx context.Context) (float64, error) {
	if m.driver == nil {
		return 0, ErrNilDriver
	}
	p, err := m.driver.UsagePercent(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: usage: %w", ErrIO, err)
	}
	return p, nil
}

// Close releases the owned driver. Drivers holding resources implement
// io.Closer; for the others Close is a no-op.
func (m *Manipulator) Close() error {
	if c, ok := m.driver.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (m *Manipulator) unimplemented(op string) error {
	return fmt.Errorf("%w: %s in %s mode", ErrUnimplemented, op, m.mode)
}

// invalidMode is only reachable through a zero Manipulator; New never
// returns one with an invalid mode.
func (m *Manipulator) invalidMode() error {
	return fmt.Errorf("%w: %d", ErrInvalidMode, int(m.mode))
}

func opName(op string, appendMode bool) string {
	if appendMode {
		return "append"
	}
	return op
}
