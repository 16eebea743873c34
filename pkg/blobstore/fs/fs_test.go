package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/dsserver/pkg/blobstore"
	"github.com/marmos91/dsserver/pkg/blobstore/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore(t *testing.T) {
	suite := &storetest.Suite{
		NewStore: func(t *testing.T) blobstore.Store {
			s, err := New(context.Background(), t.TempDir())
			require.NoError(t, err)
			return s
		},
	}
	suite.Run(t)
}

func TestFSStore_Layout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(ctx, root)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "a/b/c.bin", []byte("payload")))

	raw, err := os.ReadFile(filepath.Join(root, "a", "b", "c.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), raw)

	require.NoError(t, s.Delete(ctx, "a/b/c.bin"))
	_, err = os.Stat(filepath.Join(root, "a"))
	assert.True(t, os.IsNotExist(err), "empty parents are pruned")

	_, err = os.Stat(root)
	assert.NoError(t, err, "root survives")
}

func TestFSStore_DirectoryIsNotABlob(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "dir/file", []byte("x")))

	_, err = s.Get(ctx, "dir")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "dir"), blobstore.ErrNotFound)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(context.Background(), "")
	assert.Error(t, err)
}
