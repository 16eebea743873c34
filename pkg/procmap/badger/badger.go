// Package badger is a procmap.Registry persisted in BadgerDB.
//
// Records are stored as JSON under "proc:<name>:<instance>" with a
// per-entry TTL, so BadgerDB itself expires processes that stop sending
// heartbeats. Several servers on one host can share a database directory
// only through a single owning process; BadgerDB takes an exclusive lock.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dsserver/pkg/procmap"
)

const keyPrefix = "proc:"

// Config selects where and how records are kept.
type Config struct {
	// DBPath is the database directory. Ignored when InMemory is set.
	DBPath string

	// InMemory keeps the database in memory only.
	InMemory bool

	// TTL is the lifetime of a record after its last heartbeat. Zero keeps
	// records until they are unregistered.
	TTL time.Duration
}

// Registry implements procmap.Registry on BadgerDB.
type Registry struct {
	db  *badgerdb.DB
	ttl time.Duration
}

// New opens (or creates) the database.
func New(ctx context.Context, cfg Config) (*Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !cfg.InMemory && cfg.DBPath == "" {
		return nil, errors.New("badger procmap requires a db path")
	}

	opts := badgerdb.DefaultOptions(cfg.DBPath)
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badgerdb.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	return &Registry{db: db, ttl: cfg.TTL}, nil
}

func (r *Registry) Register(ctx context.Context, info procmap.Info) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode process info: %w", err)
	}

	return r.db.Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry([]byte(info.Key()), value)
		if r.ttl > 0 {
			entry = entry.WithTTL(r.ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (r *Registry) Unregister(ctx context.Context, name, instance string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(procmap.Key(name, instance))
	return r.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return procmap.ErrNotRegistered
			}
			return err
		}
		return txn.Delete(key)
	})
}

func (r *Registry) List(ctx context.Context) ([]procmap.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []procmap.Info
	err := r.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var info procmap.Info
				if err := json.Unmarshal(val, &info); err != nil {
					return fmt.Errorf("corrupt record %s: %w", item.Key(), err)
				}
				out = append(out, info)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Registry) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}
