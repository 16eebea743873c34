// Package procmap records which DsServer processes are alive.
//
// A running server registers itself under (executable name, instance name)
// with a short status string and refreshes the record periodically from its
// idle and post-accept hooks. It unregisters when it exits. Records carry a
// TTL so a process that dies without unregistering eventually disappears.
package procmap

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotRegistered is returned by Unregister for an unknown process.
var ErrNotRegistered = errors.New("procmap: process not registered")

// Info is one registered process.
type Info struct {
	Name          string    `json:"name"`
	Instance      string    `json:"instance"`
	Status        string    `json:"status"`
	Pid           int       `json:"pid"`
	Port          int       `json:"port"`
	RunID         uuid.UUID `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Key returns the registry key for the process.
func (i Info) Key() string {
	return Key(i.Name, i.Instance)
}

// Key builds the registry key for name and instance.
func Key(name, instance string) string {
	return "proc:" + name + ":" + instance
}

// Registry stores process records.
//
// Implementations must be safe for concurrent use.
type Registry interface {
	// Register creates or replaces the record for info.Name/info.Instance.
	Register(ctx context.Context, info Info) error

	// Unregister removes a record. It returns ErrNotRegistered if there is
	// none.
	Unregister(ctx context.Context, name, instance string) error

	// List returns every live record, ordered by key.
	List(ctx context.Context) ([]Info, error)

	Close() error
}
