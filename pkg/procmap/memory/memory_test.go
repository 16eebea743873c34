package memory

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/dsserver/pkg/procmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(10_000, 0)
	r := New(time.Minute)
	r.now = func() time.Time { return now }

	require.NoError(t, r.Register(ctx, procmap.Info{Name: "b", Instance: "1", LastHeartbeat: now}))
	require.NoError(t, r.Register(ctx, procmap.Info{Name: "a", Instance: "1", LastHeartbeat: now.Add(-30 * time.Second)}))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)

	now = now.Add(45 * time.Second)
	list, err = r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1, "stale record expires")
	assert.Equal(t, "b", list[0].Name)

	assert.ErrorIs(t, r.Unregister(ctx, "a", "1"), procmap.ErrNotRegistered)
	require.NoError(t, r.Unregister(ctx, "b", "1"))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, r.Register(cancelled, procmap.Info{Name: "c"}), context.Canceled)
}
