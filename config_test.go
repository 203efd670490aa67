package safebox_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/safebox"
	"github.com/nuln/safebox/digest"
	"github.com/nuln/safebox/driver/memory"
)

// unmountable mimics a flash partition that only mounts after a format.
type unmountable struct {
	*memory.Driver
	formatted bool
	mounted   bool
}

func (u *unmountable) Format(ctx context.Context) error {
	u.formatted = true
	return u.Driver.Format(ctx)
}

func (u *unmountable) Initialize(context.Context) error {
	u.mounted = u.formatted
	return nil
}

func (u *unmountable) IsReady() bool { return u.mounted }

var lastUnmountable *unmountable

func init() {
	safebox.Register("test-unmountable", func(*safebox.Config) (safebox.Driver, error) {
		lastUnmountable = &unmountable{Driver: memory.New(memory.Options{})}
		return lastUnmountable, nil
	})
}

func TestLoadConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "safebox.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
type: memory
mode: hash
algorithm: sha256
formatIfUnready: true
options:
  capacity: 4096
`), 0600))

	cfg, err := safebox.LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, safebox.ModeHashVerified, cfg.Mode)
	assert.Equal(t, digest.SHA256, cfg.Algorithm)
	assert.True(t, cfg.FormatIfUnready)
	assert.Equal(t, int64(4096), cfg.Int64Option("capacity", 0))
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := safebox.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, safebox.ErrNotFound)

	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("type: memory\nmode: mirror\n"), 0600))
	_, err = safebox.LoadConfig(p)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  safebox.Config
		want error
	}{
		{"ok", safebox.Config{Type: "memory", Mode: safebox.ModePlain}, nil},
		{"no type", safebox.Config{Mode: safebox.ModePlain}, safebox.ErrInvalid},
		{"no mode", safebox.Config{Type: "memory"}, safebox.ErrInvalidMode},
		{"bad algorithm", safebox.Config{Type: "memory", Mode: safebox.ModePlain, Algorithm: "crc32"}, safebox.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfig_Options(t *testing.T) {
	cfg := &safebox.Config{Options: map[string]any{
		"i": 3, "i64": int64(4), "u64": uint64(5), "f": 6.0,
		"s": "x", "b": true,
	}}
	assert.Equal(t, int64(3), cfg.Int64Option("i", 0))
	assert.Equal(t, int64(4), cfg.Int64Option("i64", 0))
	assert.Equal(t, int64(5), cfg.Int64Option("u64", 0))
	assert.Equal(t, int64(6), cfg.Int64Option("f", 0))
	assert.Equal(t, int64(7), cfg.Int64Option("missing", 7))
	assert.Equal(t, "x", cfg.StringOption("s", "d"))
	assert.Equal(t, "d", cfg.StringOption("missing", "d"))
	assert.True(t, cfg.BoolOption("b", false))
	assert.True(t, cfg.BoolOption("missing", true))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	m, err := safebox.Open(ctx, &safebox.Config{Type: "memory", Mode: safebox.ModeHashVerified, Algorithm: digest.BLAKE3})
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	assert.Equal(t, safebox.ModeHashVerified, m.Mode())
	assert.Equal(t, digest.BLAKE3, m.Algorithm())

	require.NoError(t, m.Save(ctx, "f", []byte("hello")))
	got, err := m.Load(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := safebox.Open(ctx, nil)
	assert.Error(t, err)
	_, err = safebox.Open(ctx, &safebox.Config{Type: "nope", Mode: safebox.ModePlain})
	assert.Error(t, err)
	_, err = safebox.Open(ctx, &safebox.Config{Type: "memory"})
	assert.ErrorIs(t, err, safebox.ErrInvalidMode)

	assert.Panics(t, func() { safebox.MustOpen(ctx, &safebox.Config{Type: "memory"}) })
}

func TestOpen_FormatIfUnready(t *testing.T) {
	ctx := context.Background()

	_, err := safebox.Open(ctx, &safebox.Config{Type: "test-unmountable", Mode: safebox.ModePlain})
	assert.ErrorIs(t, err, safebox.ErrNotReady)
	assert.False(t, lastUnmountable.formatted)

	m, err := safebox.Open(ctx, &safebox.Config{Type: "test-unmountable", Mode: safebox.ModePlain, FormatIfUnready: true})
	require.NoError(t, err)
	assert.True(t, lastUnmountable.formatted)
	require.NoError(t, m.Save(ctx, "f", []byte("x")))
}

func TestDrivers_Registered(t *testing.T) {
	assert.Contains(t, safebox.Drivers(), "memory")
	assert.Panics(t, func() {
		safebox.Register("memory", func(*safebox.Config) (safebox.Driver, error) { return nil, nil })
	})
}
