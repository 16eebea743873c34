package blobstore

import (
	"context"
	"time"

	"github.com/marmos91/dsserver/pkg/metrics"
)

// WithMetrics wraps s so every call is timed and counted. A nil m returns s
// unchanged.
func WithMetrics(s Store, m metrics.StoreMetrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{Store: s, m: m}
}

type instrumented struct {
	Store
	m metrics.StoreMetrics
}

func (i *instrumented) Put(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := i.Store.Put(ctx, key, data)
	i.m.RecordOperation("put", time.Since(start), err)
	if err == nil {
		i.m.RecordBytes("write", int64(len(data)))
	}
	return err
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := i.Store.Get(ctx, key)
	i.m.RecordOperation("get", time.Since(start), err)
	if err == nil {
		i.m.RecordBytes("read", int64(len(data)))
	}
	return data, err
}

func (i *instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.Store.Delete(ctx, key)
	i.m.RecordOperation("delete", time.Since(start), err)
	return err
}

func (i *instrumented) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := i.Store.List(ctx, prefix)
	i.m.RecordOperation("list", time.Since(start), err)
	return keys, err
}
