package client

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/marmos91/dsserver/internal/handlers/blob"
	"github.com/marmos91/dsserver/internal/protocol/dsmsg"
	"github.com/marmos91/dsserver/pkg/blobstore"
	"github.com/marmos91/dsserver/pkg/blobstore/memory"
	"github.com/marmos91/dsserver/pkg/dsserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg dsserver.Config) (*dsserver.Server, chan error) {
	t.Helper()

	cfg.Address = "127.0.0.1:0"
	cfg.AcceptTimeout = 50 * time.Millisecond
	cfg.ShutdownTimeout = 2 * time.Second

	srv, err := dsserver.New(cfg, blob.New(memory.New(), time.Second), dsserver.Hooks{}, nil)
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

func TestClient_Status(t *testing.T) {
	ctx := context.Background()
	srv, errc := startServer(t, dsserver.Config{ExecutableName: "dsserverd", InstanceName: "primary"})
	c := New(srv.Addr().String(), 2*time.Second)

	info, err := c.IsAlive(ctx)
	require.NoError(t, err)
	assert.Equal(t, AliveInfo{
		Pid:        os.Getpid(),
		Executable: "dsserverd",
		Instance:   "primary",
		Version:    dsserver.Version,
	}, info)

	n, err := c.NumClients(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, c.Shutdown(ctx))
	select {
	case err := <-errc:
		assert.True(t, dsserver.IsShutdown(err))
	case <-time.After(5 * time.Second):
		t.Fatal("server ignored SHUTDOWN")
	}

	_, err = c.IsAlive(ctx)
	assert.Error(t, err)
}

func TestClient_ServiceDenied(t *testing.T) {
	ctx := context.Background()
	srv, _ := startServer(t, dsserver.Config{AcceptRate: 0.001, AcceptBurst: 1})
	c := New(srv.Addr().String(), 2*time.Second)

	_, err := c.IsAlive(ctx)
	require.NoError(t, err, "burst admits the first connection")

	_, err = c.IsAlive(ctx)
	assert.ErrorIs(t, err, ErrServiceDenied)

	var replyErr *ReplyError
	require.ErrorAs(t, err, &replyErr)
	assert.Contains(t, replyErr.Reason, "rate")
}

func TestClient_Blobs(t *testing.T) {
	ctx := context.Background()
	srv, _ := startServer(t, dsserver.Config{})
	c := New(srv.Addr().String(), 2*time.Second)

	require.NoError(t, c.Put(ctx, "x", []byte("1")))
	_, err := c.Get(ctx, "y")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.NotErrorIs(t, err, ErrServiceDenied)

	keys, err := c.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, keys)
}

func TestClient_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = New(addr, time.Second).IsAlive(context.Background())
	assert.Error(t, err)
	var replyErr *ReplyError
	assert.False(t, errors.As(err, &replyErr))
}

func TestClient_TimeoutOnSilentServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = dsmsg.ReadFrame(conn, 0)
		time.Sleep(2 * time.Second)
	}()

	start := time.Now()
	_, err = New(ln.Addr().String(), 200*time.Millisecond).NumClients(context.Background())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 1500*time.Millisecond)
}

func TestReplyError(t *testing.T) {
	err := error(&ReplyError{Code: dsmsg.ErrNotFound, Reason: "k: missing"})
	assert.Equal(t, "NOT_FOUND: k: missing", err.Error())
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.Equal(t, "BAD_REQUEST", (&ReplyError{Code: dsmsg.ErrBadRequest}).Error())
}
