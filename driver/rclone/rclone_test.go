package rclone_test

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/rclone/rclone/backend/local"
	_ "github.com/rclone/rclone/backend/webdav"
	_ "github.com/rclone/rclone/cmd/serve"
	_ "github.com/rclone/rclone/cmd/serve/webdav"
	"github.com/rclone/rclone/fs/rc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/digest"
	"github.com/nuln/safebox/driver/rclone"
	"github.com/nuln/safebox/safeboxtest"
)

func TestRcloneDriver_Local(t *testing.T) {
	drv, err := rclone.New(t.TempDir(), rclone.Options{})
	require.NoError(t, err)
	safeboxtest.DriverTestSuite(t, drv)
}

func TestRcloneDriver_LocalBLAKE3(t *testing.T) {
	drv, err := rclone.New(t.TempDir(), rclone.Options{Algorithm: digest.BLAKE3})
	require.NoError(t, err)
	safeboxtest.DriverTestSuite(t, drv)
}

func TestRcloneDriver_NativeHashMatchesContent(t *testing.T) {
	dir := t.TempDir()
	drv, err := rclone.New(dir, rclone.Options{Algorithm: digest.SHA256})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, drv.Write(ctx, "f1.d", []byte("hello")))

	onDisk, err := os.ReadFile(filepath.Join(dir, "f1.d"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(onDisk))

	h, err := drv.Hash(ctx, "f1.d")
	require.NoError(t, err)
	assert.Equal(t, digest.SHA256.Sum([]byte("hello")), h)
}

func TestRcloneDriver_RequiresRemote(t *testing.T) {
	_, err := safebox.OpenDriver(&safebox.Config{Type: "rclone"})
	assert.ErrorIs(t, err, safebox.ErrInvalid)
}

func TestRcloneDriver_WebDAV(t *testing.T) {
	// 1. Setup local directory to serve via WebDAV
	tempDir := t.TempDir()

	// 2. Find a free port
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	// 3. Start rclone serve webdav programmatically
	ctx := context.Background()
	startCall := rc.Calls.Get("serve/start")
	if startCall == nil {
		t.Fatal("serve/start RC not found - make sure github.com/rclone/rclone/cmd/serve is imported")
	}

	out, err := startCall.Fn(ctx, rc.Params{
		"type": "webdav",
		"fs":   tempDir,
		"addr": addr,
	})
	if err != nil {
		t.Fatalf("Failed to start rclone webdav: %v", err)
	}
	serverID, ok := out["id"].(string)
	if !ok {
		t.Fatal("serve/start did not return id string")
	}
	serverAddr, ok := out["addr"].(string)
	if !ok {
		t.Fatal("serve/start did not return addr string")
	}

	defer func() {
		stopCall := rc.Calls.Get("serve/stop")
		if stopCall != nil {
			_, _ = stopCall.Fn(ctx, rc.Params{"id": serverID})
		}
	}()

	// 4. Open the driver through the registry
	// Remote format: :webdav,url='http://addr':
	cfg := &safebox.Config{
		Type: "rclone",
		Options: map[string]any{
			"remote": fmt.Sprintf(":webdav,url='http://%s':", serverAddr),
		},
	}

	drv, err := safebox.OpenDriver(cfg)
	if err != nil {
		t.Fatalf("Failed to open rclone driver: %v", err)
	}

	// 5. Run the driver conformance suite
	safeboxtest.DriverTestSuite(t, drv)
}
