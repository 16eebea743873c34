package blob_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/marmos91/dsserver/internal/handlers/blob"
	"github.com/marmos91/dsserver/internal/protocol/dsmsg"
	"github.com/marmos91/dsserver/pkg/blobstore"
	"github.com/marmos91/dsserver/pkg/blobstore/memory"
	"github.com/marmos91/dsserver/pkg/client"
	"github.com/marmos91/dsserver/pkg/dsserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore fails every Put with a backend error.
type failingStore struct{ *memory.Store }

var errBackend = errors.New("backend unavailable")

func (failingStore) Put(context.Context, string, []byte) error { return errBackend }

func startBlobServer(t *testing.T, store blobstore.Store, debug bool) (*dsserver.Server, chan error) {
	t.Helper()

	srv, err := dsserver.New(dsserver.Config{
		ExecutableName:  "blob-test",
		Address:         "127.0.0.1:0",
		AcceptTimeout:   50 * time.Millisecond,
		ShutdownTimeout: 2 * time.Second,
		Debug:           debug,
	}, blob.New(store, time.Second), dsserver.Hooks{}, nil)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- srv.Run(context.Background()) }()
	<-srv.Ready()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	return srv, errc
}

func TestHandler_CRUD(t *testing.T) {
	ctx := context.Background()
	srv, _ := startBlobServer(t, memory.New(), false)
	c := client.New(srv.Addr().String(), 5*time.Second)

	require.NoError(t, c.Put(ctx, "docs/a", []byte("alpha")))
	require.NoError(t, c.Put(ctx, "docs/b", []byte{}))
	require.NoError(t, c.Put(ctx, "img/c", []byte{0, 1, 2}))

	got, err := c.Get(ctx, "docs/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), got)

	got, err = c.Get(ctx, "docs/b")
	require.NoError(t, err)
	assert.Empty(t, got)

	keys, err := c.List(ctx, "docs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/a", "docs/b"}, keys)

	keys, err = c.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	require.NoError(t, c.Delete(ctx, "docs/a"))
	_, err = c.Get(ctx, "docs/a")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestHandler_ClientErrors(t *testing.T) {
	ctx := context.Background()
	srv, errc := startBlobServer(t, memory.New(), true)
	c := client.New(srv.Addr().String(), 5*time.Second)

	tests := []struct {
		name string
		req  *dsmsg.Message
		code dsmsg.ErrorCode
	}{
		{
			name: "MissingKey",
			req:  dsmsg.NewRequest(dsmsg.CategoryData, blob.TypeGet),
			code: dsmsg.ErrBadRequest,
		},
		{
			name: "MissingBlob",
			req:  dsmsg.NewRequest(dsmsg.CategoryData, blob.TypePut).AddString(dsmsg.PartKey, "k"),
			code: dsmsg.ErrBadRequest,
		},
		{
			name: "InvalidKey",
			req:  dsmsg.NewRequest(dsmsg.CategoryData, blob.TypeGet).AddString(dsmsg.PartKey, "../etc/passwd"),
			code: dsmsg.ErrBadRequest,
		},
		{
			name: "UnknownKey",
			req:  dsmsg.NewRequest(dsmsg.CategoryData, blob.TypeDelete).AddString(dsmsg.PartKey, "ghost"),
			code: dsmsg.ErrNotFound,
		},
		{
			name: "UnknownType",
			req:  dsmsg.NewRequest(dsmsg.CategoryData, 42),
			code: dsmsg.ErrUnknownCommand,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := c.Do(ctx, tt.req)
			var replyErr *client.ReplyError
			require.ErrorAs(t, err, &replyErr)
			assert.Equal(t, tt.code, replyErr.Code)
			assert.Equal(t, tt.req.Type, reply.Type)
			assert.Equal(t, dsmsg.CategoryGeneric, reply.Category)
		})
	}

	// None of those is a handler failure, so a debug server keeps running.
	select {
	case err := <-errc:
		t.Fatalf("server exited on a client error: %v", err)
	default:
	}
}

func TestHandler_StoreFailureIsFatalInDebug(t *testing.T) {
	ctx := context.Background()
	srv, errc := startBlobServer(t, &failingStore{Store: memory.New()}, true)
	c := client.New(srv.Addr().String(), 5*time.Second)

	err := c.Put(ctx, "k", []byte("v"))
	var replyErr *client.ReplyError
	require.ErrorAs(t, err, &replyErr)
	assert.Equal(t, dsmsg.ErrServerError, replyErr.Code)

	select {
	case err := <-errc:
		exit, ok := dsserver.AsExit(err)
		require.True(t, ok)
		assert.Equal(t, dsserver.ExitHandlerFailure, exit.Reason)
		assert.ErrorIs(t, err, errBackend)
	case <-time.After(5 * time.Second):
		t.Fatal("debug server kept running after a store failure")
	}
}

func TestHandler_ReplyWriteFailureIsNotFatalInDebug(t *testing.T) {
	srv, err := dsserver.New(dsserver.Config{
		ExecutableName:  "blob-test",
		Address:         "127.0.0.1:0",
		AcceptTimeout:   50 * time.Millisecond,
		WriteTimeout:    time.Nanosecond,
		ShutdownTimeout: 2 * time.Second,
		Debug:           true,
	}, blob.New(memory.New(), time.Second), dsserver.Hooks{}, nil)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- srv.Run(context.Background()) }()
	<-srv.Ready()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})

	for _, typ := range []int32{99, blob.TypeGet} {
		conn, err := net.DialTimeout("tcp", srv.Addr().String(), 2*time.Second)
		require.NoError(t, err)
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

		req := dsmsg.NewRequest(dsmsg.CategoryData, typ).AddString(dsmsg.PartKey, "missing")
		require.NoError(t, dsmsg.WriteMessage(conn, req))

		// The reply cannot be written in time, so the server just closes.
		_, _ = io.ReadAll(conn)
		_ = conn.Close()
	}

	assert.Eventually(t, func() bool { return srv.NumClients() == 0 }, 2*time.Second, 10*time.Millisecond)
	select {
	case err := <-errc:
		t.Fatalf("server exited after failing to write a reply: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "PUT", blob.TypeName(blob.TypePut))
	assert.Equal(t, "LIST", blob.TypeName(blob.TypeList))
	assert.Equal(t, "DATA_9", blob.TypeName(9))
}
