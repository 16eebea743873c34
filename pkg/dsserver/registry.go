package dsserver

import (
	"sync"

	"github.com/marmos91/dsserver/internal/logger"
)

// workerEntry tracks one spawned worker. finished is closed when the worker
// goroutine has returned; done is set by the worker itself shortly before.
type workerEntry struct {
	id       uint64
	conn     *ClientConnection
	done     bool
	finished chan struct{}
}

// threadRegistry lists spawned workers in spawn order. The accept loop
// appends, the owning worker marks done, and purgeCompleted removes.
type threadRegistry struct {
	mu      sync.Mutex
	entries []*workerEntry
}

func (r *threadRegistry) add(conn *ClientConnection) *workerEntry {
	e := &workerEntry{
		id:       conn.ID(),
		conn:     conn,
		finished: make(chan struct{}),
	}

	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
	return e
}

func (r *threadRegistry) markDone(e *workerEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.done {
		logger.Error("Worker %d marked done twice", e.id)
		return
	}
	e.done = true
}

// purgeCompleted removes every entry that is done and whose goroutine has
// returned, closing its connection. Entries that are done but still
// unwinding are left for a later pass, so the call never blocks.
func (r *threadRegistry) purgeCompleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0]
	purged := 0
	for _, e := range r.entries {
		if !e.done || !isClosed(e.finished) {
			kept = append(kept, e)
			continue
		}
		_ = e.conn.Close()
		purged++
	}

	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}
	r.entries = kept
	return purged
}

// pending counts entries not yet marked done.
func (r *threadRegistry) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if !e.done {
			n++
		}
	}
	return n
}

func (r *threadRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// abortAll force-closes every tracked connection.
func (r *threadRegistry) abortAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		e.conn.abort()
	}
	return len(r.entries)
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
