package bolt_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/driver/bolt"
	"github.com/nuln/safebox/safeboxtest"
)

func tempDriver(t *testing.T, opts bolt.Options) (*bolt.Driver, string) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "data", "safebox.db")
	drv, err := bolt.Open(p, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	return drv, p
}

func TestBoltDriver(t *testing.T) {
	drv, _ := tempDriver(t, bolt.Options{Capacity: 64 << 20})
	safeboxtest.DriverTestSuite(t, drv)
}

func TestBoltDriver_EmptyValue(t *testing.T) {
	drv, _ := tempDriver(t, bolt.Options{})
	ctx := context.Background()

	require.NoError(t, drv.Write(ctx, "empty.d", nil))

	ok, err := drv.Exists(ctx, "empty.d")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := drv.ReadAll(ctx, "empty.d")
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestBoltDriver_Persists(t *testing.T) {
	drv, p := tempDriver(t, bolt.Options{})
	ctx := context.Background()

	require.NoError(t, drv.Write(ctx, "cfg/f1.d", []byte("hello")))
	require.NoError(t, drv.Close())

	reopened, err := bolt.Open(p, bolt.Options{})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	data, err := reopened.ReadAll(ctx, "cfg/f1.d")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestBoltDriver_ListPrefixBoundary(t *testing.T) {
	drv, _ := tempDriver(t, bolt.Options{})
	ctx := context.Background()

	require.NoError(t, drv.Write(ctx, "log/a.d", []byte("1")))
	require.NoError(t, drv.Write(ctx, "logs/b.d", []byte("2")))
	require.NoError(t, drv.Write(ctx, "top.d", []byte("3")))

	names, err := drv.List(ctx, "log")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.d"}, names)

	root, err := drv.List(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"top.d"}, root)
}

func TestBoltDriver_Registered(t *testing.T) {
	p := filepath.Join(t.TempDir(), "reg.db")
	drv, err := safebox.OpenDriver(&safebox.Config{
		Type:     "bolt",
		BasePath: p,
		Options:  map[string]any{"bucket": "files"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.(*bolt.Driver).Close() })
	assert.True(t, drv.IsReady())

	_, err = safebox.OpenDriver(&safebox.Config{Type: "bolt"})
	assert.ErrorIs(t, err, safebox.ErrInvalid)
}
