package minio_test

import (
	"context"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/safebox"
	safeminio "github.com/nuln/safebox/driver/minio"
	"github.com/nuln/safebox/safeboxtest"
)

const (
	endpoint  = "localhost:9000"
	accessKey = "minioadmin"
	secretKey = "minioadmin"
	bucket    = "test-safebox"
)

// TestMinioDriver_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioDriver_Integration(t *testing.T) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	// Check if MinIO is reachable
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	drv := safeminio.New(client, bucket, safeminio.Options{Prefix: "suite"})
	require.NoError(t, drv.Initialize(context.Background()))
	safeboxtest.DriverTestSuite(t, drv)
}

func TestMinioDriver_RequiresEndpointAndBucket(t *testing.T) {
	_, err := safebox.OpenDriver(&safebox.Config{
		Type:    "minio",
		Options: map[string]any{"endpoint": endpoint},
	})
	assert.ErrorIs(t, err, safebox.ErrInvalid)
}

func TestMinioDriver_NotReadyUntilInitialized(t *testing.T) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(accessKey, secretKey, ""),
	})
	require.NoError(t, err)

	drv := safeminio.New(client, bucket, safeminio.Options{})
	assert.False(t, drv.IsReady())

	_, err = drv.UsagePercent(context.Background())
	assert.ErrorIs(t, err, safebox.ErrNotSupported)

	err = drv.Write(context.Background(), "/", []byte("x"))
	assert.ErrorIs(t, err, safebox.ErrInvalid)
}
