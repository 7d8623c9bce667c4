package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestPackUnpackRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	files := []string{
		writeFile(t, srcDir, "x.txt", []byte("hello")),
		writeFile(t, srcDir, "y.txt", []byte("world")),
		writeFile(t, srcDir, "z.bin", make([]byte, 3*copyBufferSize+17)),
	}

	zipPath := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, Pack(files, zipPath))

	destDir := t.TempDir()
	require.NoError(t, Unpack(zipPath, destDir))

	for _, src := range files {
		want, err := os.ReadFile(src)
		require.NoError(t, err)

		got, err := os.ReadFile(filepath.Join(destDir, filepath.Base(src)))
		require.NoError(t, err)
		assert.Equal(t, want, got, "content mismatch for %s", src)
	}

	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	assert.Len(t, entries, len(files))
}

func TestPackSkipsDirectories(t *testing.T) {
	srcDir := t.TempDir()
	file := writeFile(t, srcDir, "a.txt", []byte("a"))
	sub := filepath.Join(srcDir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	zipPath := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, Pack([]string{file, sub}, zipPath))

	destDir := t.TempDir()
	require.NoError(t, Unpack(zipPath, destDir))

	entries, err := os.ReadDir(destDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name())
}

func TestPackMissingFile(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "bundle.zip")
	err := Pack([]string{"/no/such/file"}, zipPath)
	assert.Error(t, err)
}

func TestUnpackRejectsTraversal(t *testing.T) {
	_, err := sanitizePath(t.TempDir(), "../escape.txt")
	assert.ErrorIs(t, err, ErrUnsafeEntry)
}
