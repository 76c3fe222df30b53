package fsutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, fsys FileSystem, root string) {
	t.Helper()
	out := filepath.Join(root, "out", "segments")
	require.NoError(t, fsys.MkdirAll(out, 0o755))
	assert.True(t, fsys.Exists(out))

	b := filepath.Join(out, "b.csv")
	a := filepath.Join(out, "a.csv")
	require.NoError(t, WriteAtomic(fsys, b, []byte("second"), 0o644))
	require.NoError(t, fsys.WriteFile(a, []byte("first"), 0o644))
	assert.False(t, fsys.Exists(b+".partial"), "temporary file renamed away")

	names, err := fsys.List(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.csv"}, names)

	data, err := fsys.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	require.NoError(t, WriteAtomic(fsys, b, []byte("replaced"), 0o644))
	data, err = fsys.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(data))

	require.NoError(t, fsys.Remove(a))
	assert.False(t, fsys.Exists(a))
	assert.Error(t, fsys.Remove(a))

	_, err = fsys.ReadFile(filepath.Join(out, "missing.csv"))
	assert.Error(t, err)
}

func TestOSFileSystem(t *testing.T) {
	exercise(t, OSFileSystem{}, t.TempDir())
}

func TestMemoryFileSystem(t *testing.T) {
	exercise(t, NewMemoryFileSystem(), "/data")
}

func TestMemoryFileSystem_WriteNeedsDir(t *testing.T) {
	m := NewMemoryFileSystem()
	assert.Error(t, m.WriteFile("/nowhere/x.csv", nil, 0o644))
	_, err := m.List("/nowhere")
	assert.Error(t, err)
	assert.Error(t, m.Rename("/a", "/b"))
}
