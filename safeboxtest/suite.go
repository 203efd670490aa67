// Package safeboxtest provides shared test helpers for safebox drivers: a
// conformance suite every driver runs, and a fault-injecting driver wrapper.
package safeboxtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/safebox"
)

// DriverTestSuite runs a comprehensive set of tests against a Driver
// implementation. Call this in your driver tests to verify correctness:
//
//	func TestLocalDriver(t *testing.T) {
//	    drv := local.NewWithFs(afero.NewMemMapFs(), local.Options{})
//	    safeboxtest.DriverTestSuite(t, drv)
//	}
//
// The suite ends by formatting the driver.
func DriverTestSuite(t *testing.T, drv safebox.Driver) {
	t.Helper()
	ctx := context.Background()

	t.Run("IsReady", func(t *testing.T) {
		assert.True(t, drv.IsReady())
	})

	t.Run("Write_ReadAll_Exists_Delete", func(t *testing.T) {
		name := "suite/hello.d"
		require.NoError(t, drv.Write(ctx, name, []byte("hello world")))

		ok, err := drv.Exists(ctx, name)
		require.NoError(t, err)
		assert.True(t, ok)

		data, err := drv.ReadAll(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))

		require.NoError(t, drv.Delete(ctx, name))
		ok, err = drv.Exists(ctx, name)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Write_Overwrites", func(t *testing.T) {
		name := "overwrite.txt"
		require.NoError(t, drv.Write(ctx, name, []byte("a much longer first version")))
		require.NoError(t, drv.Write(ctx, name, []byte("short")))

		data, err := drv.ReadAll(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, "short", string(data))

		_ = drv.Delete(ctx, name)
	})

	t.Run("Append", func(t *testing.T) {
		name := "append.txt"
		require.NoError(t, drv.Append(ctx, name, []byte("hello")))
		require.NoError(t, drv.Append(ctx, name, []byte(" world")))

		data, err := drv.ReadAll(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))

		_ = drv.Delete(ctx, name)
	})

	t.Run("Binary_Content", func(t *testing.T) {
		name := "blob.bin"
		payload := []byte{0x00, 0xff, 0x10, 0x00, '\n', 0x7f}
		require.NoError(t, drv.Write(ctx, name, payload))

		data, err := drv.ReadAll(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, payload, data)

		_ = drv.Delete(ctx, name)
	})

	t.Run("ReadAll_Missing", func(t *testing.T) {
		_, err := drv.ReadAll(ctx, "missing/nothing.d")
		require.Error(t, err)
		assert.ErrorIs(t, err, safebox.ErrNotFound)
	})

	t.Run("Delete_Missing", func(t *testing.T) {
		assert.NoError(t, drv.Delete(ctx, "missing/nothing.d"))
	})

	t.Run("List_Count", func(t *testing.T) {
		for _, name := range []string{"listdir/a.d", "listdir/b.m", "listdir/sub/c.d"} {
			require.NoError(t, drv.Write(ctx, name, []byte(name)))
		}

		names, err := drv.List(ctx, "listdir")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a.d", "b.m"}, names)

		n, err := drv.Count(ctx, "listdir")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		sub, err := drv.List(ctx, "listdir/sub")
		require.NoError(t, err)
		assert.Equal(t, []string{"c.d"}, sub)

		for _, name := range []string{"listdir/a.d", "listdir/b.m", "listdir/sub/c.d"} {
			require.NoError(t, drv.Delete(ctx, name))
		}
	})

	t.Run("List_MissingDir", func(t *testing.T) {
		names, err := drv.List(ctx, "no/such/dir")
		require.NoError(t, err)
		assert.Empty(t, names)

		n, err := drv.Count(ctx, "no/such/dir")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Hash", func(t *testing.T) {
		name := "hash_test.d"
		require.NoError(t, drv.Write(ctx, name, []byte("hash me")))

		h1, err := drv.Hash(ctx, name)
		require.NoError(t, err)
		assert.NotEmpty(t, h1)

		h2, err := drv.Hash(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, h1, h2, "hash must be deterministic")

		if dr, ok := drv.(safebox.DigestReporter); ok {
			assert.Equal(t, dr.Algorithm().Sum([]byte("hash me")), h1)
		}

		require.NoError(t, drv.Write(ctx, name, []byte("hash me!")))
		h3, err := drv.Hash(ctx, name)
		require.NoError(t, err)
		assert.NotEqual(t, h1, h3)

		_ = drv.Delete(ctx, name)

		_, err = drv.Hash(ctx, name)
		assert.Error(t, err)
	})

	t.Run("UsagePercent", func(t *testing.T) {
		p, err := drv.UsagePercent(ctx)
		if errors.Is(err, safebox.ErrNotSupported) {
			t.Skip("UsagePercent not supported by this driver")
		}
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 100.0)
	})

	t.Run("Format", func(t *testing.T) {
		require.NoError(t, drv.Write(ctx, "format/x.d", []byte("x")))
		require.NoError(t, drv.Format(ctx))
		require.NoError(t, drv.Initialize(ctx))
		assert.True(t, drv.IsReady())

		ok, err := drv.Exists(ctx, "format/x.d")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
