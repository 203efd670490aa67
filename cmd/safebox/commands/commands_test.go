package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuln/safebox"
)

// run executes the CLI with args against a local store in base.
func run(t *testing.T, base, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--type", "local", "--base", base}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_FileLifecycle(t *testing.T) {
	base := t.TempDir()

	_, err := run(t, base, "hello", "put", "cfg/f1")
	require.NoError(t, err)

	out, err := run(t, base, "", "get", "cfg/f1")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	// Hash mode stores the companion next to the data.
	sum, err := os.ReadFile(filepath.Join(base, "cfg", "f1.m"))
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", string(sum))

	_, err = run(t, base, " world", "append", "cfg/f1")
	require.NoError(t, err)
	out, err = run(t, base, "", "get", "cfg/f1")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)

	out, err = run(t, base, "", "exists", "cfg/f1")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	_, err = run(t, base, "", "rm", "cfg/f1")
	require.NoError(t, err)
	out, err = run(t, base, "", "exists", "cfg/f1")
	require.NoError(t, err)
	assert.Equal(t, "false\n", out)
}

func TestCLI_PutFromFile(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(t.TempDir(), "in.bin")
	require.NoError(t, os.WriteFile(src, []byte{0, 1, 2}, 0600))

	_, err := run(t, base, "", "--mode", "plain", "put", "blob", src)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(base, "blob"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, data)
}

func TestCLI_DirectoryCommands(t *testing.T) {
	base := t.TempDir()
	for _, name := range []string{"logs/b", "logs/a", "logs/c"} {
		_, err := run(t, base, name, "put", name)
		require.NoError(t, err)
	}

	out, err := run(t, base, "", "ls", "logs")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", out)

	out, err = run(t, base, "", "count", "logs")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	out, err = run(t, base, "", "purge", "logs")
	require.NoError(t, err)
	assert.Equal(t, "deleted 3\n", out)

	out, err = run(t, base, "", "count", "logs")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)
}

func TestCLI_IntegrityFailure(t *testing.T) {
	base := t.TempDir()
	_, err := run(t, base, "hello", "put", "f")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(base, "f.m"), []byte("bad"), 0600))

	out, err := run(t, base, "", "get", "f")
	assert.ErrorIs(t, err, safebox.ErrIntegrity)
	assert.Empty(t, out)
}

func TestCLI_ConfigFile(t *testing.T) {
	base := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "safebox.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("type: local\nmode: plain\nbasePath: "+base+"\noptions:\n  capacity: 1000000\n"), 0600))

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("plain content"))
	cmd.SetArgs([]string{"--config", cfgPath, "put", "note"})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(filepath.Join(base, "note"))
	require.NoError(t, err)
	assert.Equal(t, "plain content", string(data))

	cmd = NewRootCommand()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "df"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "0.0%\n", out.String())
}

func TestCLI_Errors(t *testing.T) {
	base := t.TempDir()

	_, err := run(t, base, "", "--mode", "mirror", "ls")
	assert.ErrorIs(t, err, safebox.ErrInvalidMode)

	_, err = run(t, base, "", "--algorithm", "crc32", "ls")
	assert.Error(t, err)

	_, err = run(t, base, "", "get", "missing")
	assert.ErrorIs(t, err, safebox.ErrNotFound)

	_, err = run(t, base, "", "--mode", "hash+backup", "ls")
	assert.ErrorIs(t, err, safebox.ErrUnimplemented)

	_, err = run(t, base, "", "df")
	assert.ErrorIs(t, err, safebox.ErrNotSupported)
}

func TestCLI_Drivers(t *testing.T) {
	out, err := run(t, t.TempDir(), "", "drivers")
	require.NoError(t, err)
	for _, name := range []string{"badger", "bolt", "local", "memory", "minio", "rclone", "sharded"} {
		assert.Contains(t, out, name+"\n")
	}
}
