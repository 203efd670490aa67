package safeboxtest

import (
	"context"
	"errors"
	"sync"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/digest"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("safeboxtest: injected fault")

// Fault describes failures to inject for one physical name. Each counter is
// the number of upcoming calls of that kind to affect; it counts down as
// faults fire.
type Fault struct {
	FailWrites  int
	FailAppends int
	FailReads   int
	FailDeletes int
	FailHashes  int

	// CorruptWrites makes upcoming Write and Append calls store the content
	// with its last byte dropped while reporting success, like a write cut
	// short by power loss.
	CorruptWrites int

	Err error
}

// Op names accepted by [FaultyDriver.Calls].
const (
	OpWrite  = "write"
	OpAppend = "append"
	OpRead   = "read"
	OpDelete = "delete"
	OpHash   = "hash"
)

// FaultyDriver is a safebox.Driver wrapper that can inject errors and silent
// corruption, and counts the calls it forwards.
type FaultyDriver struct {
	safebox.Driver

	mu    sync.Mutex
	rules map[string]*Fault
	calls map[string]int
}

// NewFaultyDriver wraps drv.
func NewFaultyDriver(drv safebox.Driver) *FaultyDriver {
	return &FaultyDriver{
		Driver: drv,
		rules:  make(map[string]*Fault),
		calls:  make(map[string]int),
	}
}

// AddRule installs a fault for the physical name, replacing any previous one.
func (f *FaultyDriver) AddRule(name string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[safebox.CleanPath(name)] = &fault
}

// Calls returns how many calls of op were made, for any name.
func (f *FaultyDriver) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// CallsFor returns how many calls of op were made for the physical name.
func (f *FaultyDriver) CallsFor(op, name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op+":"+safebox.CleanPath(name)]
}

// take records a call and reports which fault, if any, fires for it.
func (f *FaultyDriver) take(op, name string) (fail, corrupt bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name = safebox.CleanPath(name)
	f.calls[op]++
	f.calls[op+":"+name]++

	rule, ok := f.rules[name]
	if !ok {
		return false, false, nil
	}
	err = rule.Err
	if err == nil {
		err = ErrInjected
	}

	counter := map[string]*int{
		OpWrite:  &rule.FailWrites,
		OpAppend: &rule.FailAppends,
		OpRead:   &rule.FailReads,
		OpDelete: &rule.FailDeletes,
		OpHash:   &rule.FailHashes,
	}[op]
	if counter != nil && *counter > 0 {
		*counter--
		return true, false, err
	}
	if (op == OpWrite || op == OpAppend) && rule.CorruptWrites > 0 {
		rule.CorruptWrites--
		return false, true, nil
	}
	return false, false, nil
}

func truncate(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	return data[:len(data)-1]
}

func (f *FaultyDriver) Write(ctx context.Context, name string, data []byte) error {
	fail, corrupt, err := f.take(OpWrite, name)
	if fail {
		return err
	}
	if corrupt {
		data = truncate(data)
	}
	return f.Driver.Write(ctx, name, data)
}

func (f *FaultyDriver) Append(ctx context.Context, name string, data []byte) error {
	fail, corrupt, err := f.take(OpAppend, name)
	if fail {
		return err
	}
	if corrupt {
		data = truncate(data)
	}
	return f.Driver.Append(ctx, name, data)
}

func (f *FaultyDriver) ReadAll(ctx context.Context, name string) ([]byte, error) {
	if fail, _, err := f.take(OpRead, name); fail {
		return nil, err
	}
	return f.Driver.ReadAll(ctx, name)
}

func (f *FaultyDriver) Delete(ctx context.Context, name string) error {
	if fail, _, err := f.take(OpDelete, name); fail {
		return err
	}
	return f.Driver.Delete(ctx, name)
}

func (f *FaultyDriver) Hash(ctx context.Context, name string) (string, error) {
	if fail, _, err := f.take(OpHash, name); fail {
		return "", err
	}
	return f.Driver.Hash(ctx, name)
}

// Algorithm forwards the wrapped driver's digest algorithm.
func (f *FaultyDriver) Algorithm() digest.Algorithm {
	if dr, ok := f.Driver.(safebox.DigestReporter); ok {
		return dr.Algorithm()
	}
	return digest.Default
}

// Close closes the wrapped driver if it holds resources.
func (f *FaultyDriver) Close() error {
	if c, ok := f.Driver.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

var (
	_ safebox.Driver         = (*FaultyDriver)(nil)
	_ safebox.DigestReporter = (*FaultyDriver)(nil)
)
