package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	name := "backup/c1/x.txt"
	require.NoError(t, store.Put(ctx, name, []byte("hello")))

	data, err := store.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestFileStoreOverwrite(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "zips/c1.zip", []byte("v1")))
	require.NoError(t, store.Put(ctx, "zips/c1.zip", []byte("v2")))

	data, err := store.Get(ctx, "zips/c1.zip")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestFileStoreMissingObject(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "backup/c1/missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreNoPartialObjects(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "a/b", []byte("x")))

	// No staging leftovers next to the committed object.
	entries, err := os.ReadDir(filepath.Join(dir, "a"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Name())
}

func TestFactorySelection(t *testing.T) {
	ctx := context.Background()

	fs, err := NewStore(ctx, FactoryConfig{Backend: BackendFS, BaseDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, fs)

	_, err = NewStore(ctx, FactoryConfig{Backend: BackendFS})
	assert.Error(t, err)

	_, err = NewStore(ctx, FactoryConfig{Backend: BackendGCS})
	assert.Error(t, err)

	_, err = NewStore(ctx, FactoryConfig{Backend: "tape"})
	assert.Error(t, err)
}
