// Package memory is an in-process procmap.Registry.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/marmos91/dsserver/pkg/procmap"
)

// Registry keeps records in a map. Records older than the TTL are dropped
// lazily by List.
type Registry struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]procmap.Info
}

// New returns an empty registry. A ttl of zero keeps records forever.
func New(ttl time.Duration) *Registry {
	return &Registry{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]procmap.Info),
	}
}

func (r *Registry) Register(ctx context.Context, info procmap.Info) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[info.Key()] = info
	return nil
}

func (r *Registry) Unregister(ctx context.Context, name, instance string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := procmap.Key(name, instance)
	if _, ok := r.entries[key]; !ok {
		return procmap.ErrNotRegistered
	}
	delete(r.entries, key)
	return nil
}

func (r *Registry) List(ctx context.Context) ([]procmap.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]procmap.Info, 0, len(r.entries))
	for key, info := range r.entries {
		if r.ttl > 0 && now.Sub(info.LastHeartbeat) > r.ttl {
			delete(r.entries, key)
			continue
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (r *Registry) Close() error {
	return nil
}
