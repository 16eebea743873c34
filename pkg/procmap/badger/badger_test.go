package badger

import (
	"context"
	"testing"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/dsserver/pkg/procmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, ttl time.Duration) *Registry {
	t.Helper()
	r, err := New(context.Background(), Config{InMemory: true, TTL: ttl})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegistry_RoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, 0)

	info := procmap.Info{
		Name:          "dsserver",
		Instance:      "9000",
		Status:        "Listening, port: 9000",
		Pid:           123,
		Port:          9000,
		RunID:         uuid.New(),
		StartedAt:     time.Now().UTC().Truncate(time.Second),
		LastHeartbeat: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, r.Register(ctx, info))
	require.NoError(t, r.Register(ctx, procmap.Info{Name: "other", Instance: "1"}))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, info, list[0])

	require.NoError(t, r.Unregister(ctx, "dsserver", "9000"))
	assert.ErrorIs(t, r.Unregister(ctx, "dsserver", "9000"), procmap.ErrNotRegistered)

	list, err = r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "other", list[0].Name)
}

func TestRegistry_EntriesCarryTTL(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, time.Hour)
	require.NoError(t, r.Register(ctx, procmap.Info{Name: "dsserver", Instance: "1"}))

	err := r.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(procmap.Key("dsserver", "1")))
		if err != nil {
			return err
		}
		assert.NotZero(t, item.ExpiresAt())
		return nil
	})
	require.NoError(t, err)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
