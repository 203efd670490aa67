package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/safebox/digest"
	"github.com/nuln/safebox/driver/memory"
	"github.com/nuln/safebox/safeboxtest"
)

func TestMemoryDriver(t *testing.T) {
	safeboxtest.DriverTestSuite(t, memory.New(memory.Options{}))
}

func TestMemoryDriver_SHA256(t *testing.T) {
	safeboxtest.DriverTestSuite(t, memory.New(memory.Options{Algorithm: digest.SHA256}))
}

func TestMemoryDriver_Usage(t *testing.T) {
	ctx := context.Background()
	drv := memory.New(memory.Options{Capacity: 200})

	require.NoError(t, drv.Write(ctx, "a", make([]byte, 50)))
	p, err := drv.UsagePercent(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, p, 0.001)

	require.NoError(t, drv.Write(ctx, "b", make([]byte, 500)))
	p, err = drv.UsagePercent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p)
}

func TestMemoryDriver_CopiesBuffers(t *testing.T) {
	ctx := context.Background()
	drv := memory.New(memory.Options{})

	buf := []byte("abc")
	require.NoError(t, drv.Write(ctx, "f", buf))
	buf[0] = 'X'

	got, err := drv.ReadAll(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'Y'
	again, err := drv.ReadAll(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestMemoryDriver_EmptyName(t *testing.T) {
	drv := memory.New(memory.Options{})
	assert.Error(t, drv.Write(context.Background(), "/", []byte("x")))
}
