package badger_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/digest"
	"github.com/nuln/safebox/driver/badger"
	"github.com/nuln/safebox/safeboxtest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func memDriver(t *testing.T, opts badger.Options) *badger.Driver {
	t.Helper()
	opts.InMemory = true
	opts.Logger = quietLogger()
	drv, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	return drv
}

func TestBadgerDriver_InMemory(t *testing.T) {
	safeboxtest.DriverTestSuite(t, memDriver(t, badger.Options{Capacity: 1 << 30}))
}

func TestBadgerDriver_OnDisk(t *testing.T) {
	drv, err := badger.Open(badger.Options{Dir: t.TempDir(), Algorithm: digest.BLAKE3, Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	safeboxtest.DriverTestSuite(t, drv)
}

func TestBadgerDriver_ListPrefixBoundary(t *testing.T) {
	drv := memDriver(t, badger.Options{})
	ctx := context.Background()

	require.NoError(t, drv.Write(ctx, "log/a.d", []byte("1")))
	require.NoError(t, drv.Write(ctx, "logs/b.d", []byte("2")))
	require.NoError(t, drv.Write(ctx, "top.d", []byte("3")))

	names, err := drv.List(ctx, "log")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.d"}, names)

	root, err := drv.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"top.d"}, root)
}

func TestBadgerDriver_EmptyValue(t *testing.T) {
	drv := memDriver(t, badger.Options{})
	ctx := context.Background()

	require.NoError(t, drv.Write(ctx, "empty.d", []byte{}))
	data, err := drv.ReadAll(ctx, "empty.d")
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Empty(t, data)
}

func TestBadgerDriver_RequiresDir(t *testing.T) {
	_, err := badger.Open(badger.Options{})
	assert.ErrorIs(t, err, safebox.ErrInvalid)
}

func TestBadgerDriver_ClosedIsNotReady(t *testing.T) {
	drv, err := badger.Open(badger.Options{InMemory: true, Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, drv.Close())

	assert.False(t, drv.IsReady())
	assert.ErrorIs(t, drv.Initialize(context.Background()), safebox.ErrNotReady)
}
