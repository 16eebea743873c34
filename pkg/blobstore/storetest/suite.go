// Package storetest is a behavioural test suite shared by every
// blobstore.Store implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/marmos91/dsserver/pkg/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Suite checks the Store contract, not implementation details.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &storetest.Suite{
//	        NewStore: func(t *testing.T) blobstore.Store { return mystore.New() },
//	    }
//	    suite.Run(t)
//	}
type Suite struct {
	// NewStore returns an empty store for each test.
	NewStore func(t *testing.T) blobstore.Store
}

func (s *Suite) Run(t *testing.T) {
	t.Run("PutGet", s.testPutGet)
	t.Run("Overwrite", s.testOverwrite)
	t.Run("Missing", s.testMissing)
	t.Run("Delete", s.testDelete)
	t.Run("List", s.testList)
	t.Run("InvalidKeys", s.testInvalidKeys)
	t.Run("Concurrent", s.testConcurrent)
	t.Run("Healthcheck", s.testHealthcheck)
}

func (s *Suite) store(t *testing.T) blobstore.Store {
	t.Helper()
	st := s.NewStore(t)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func (s *Suite) testPutGet(t *testing.T) {
	ctx := context.Background()
	st := s.store(t)

	require.NoError(t, st.Put(ctx, "greeting", []byte("hello")))
	require.NoError(t, st.Put(ctx, "nested/dir/empty", []byte{}))

	got, err := st.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	got, err = st.Get(ctx, "nested/dir/empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func (s *Suite) testOverwrite(t *testing.T) {
	ctx := context.Background()
	st := s.store(t)

	require.NoError(t, st.Put(ctx, "k", []byte("first")))
	require.NoError(t, st.Put(ctx, "k", []byte("second")))

	got, err := st.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func (s *Suite) testMissing(t *testing.T) {
	ctx := context.Background()
	st := s.store(t)

	_, err := st.Get(ctx, "nope")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.ErrorIs(t, st.Delete(ctx, "nope"), blobstore.ErrNotFound)
}

func (s *Suite) testDelete(t *testing.T) {
	ctx := context.Background()
	st := s.store(t)

	require.NoError(t, st.Put(ctx, "a/b", []byte("x")))
	require.NoError(t, st.Delete(ctx, "a/b"))

	_, err := st.Get(ctx, "a/b")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	keys, err := st.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func (s *Suite) testList(t *testing.T) {
	ctx := context.Background()
	st := s.store(t)

	for _, k := range []string{"logs/b", "logs/a", "data/x", "logsy"} {
		require.NoError(t, st.Put(ctx, k, []byte(k)))
	}

	keys, err := st.List(ctx, "logs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"logs/a", "logs/b"}, keys)

	keys, err = st.List(ctx, "logs")
	require.NoError(t, err)
	assert.Equal(t, []string{"logs/a", "logs/b", "logsy"}, keys)

	keys, err = st.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"data/x", "logs/a", "logs/b", "logsy"}, keys)
}

func (s *Suite) testInvalidKeys(t *testing.T) {
	ctx := context.Background()
	st := s.store(t)

	for _, k := range []string{"", "../x", "/abs", "a//b"} {
		assert.ErrorIs(t, st.Put(ctx, k, []byte("x")), blobstore.ErrInvalidKey, "key %q", k)
		_, err := st.Get(ctx, k)
		assert.ErrorIs(t, err, blobstore.ErrInvalidKey, "key %q", k)
	}
}

func (s *Suite) testConcurrent(t *testing.T) {
	ctx := context.Background()
	st := s.store(t)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("c/%02d", i)
			assert.NoError(t, st.Put(ctx, key, []byte(key)))
			got, err := st.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, []byte(key), got)
		}()
	}
	wg.Wait()

	keys, err := st.List(ctx, "c/")
	require.NoError(t, err)
	assert.Len(t, keys, 16)
}

func (s *Suite) testHealthcheck(t *testing.T) {
	assert.NoError(t, s.store(t).Healthcheck(context.Background()))
}
