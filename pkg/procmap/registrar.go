package procmap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dsserver/internal/logger"
	"github.com/marmos91/dsserver/pkg/dsserver"
)

// DefaultRegisterInterval is the heartbeat period used when none is given.
const DefaultRegisterInterval = 10 * time.Second

// Registrar keeps one process record fresh.
//
// AutoRegister is cheap to call on every accept-loop iteration: it only
// writes when RegisterInterval has passed since the last write. ForceRegister
// always writes.
type Registrar struct {
	reg      Registry
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	info      Info
	lastWrite time.Time
}

// NewRegistrar prepares a record for name/instance. The instance may be
// filled in later with SetInstance, once the port is known.
func NewRegistrar(reg Registry, name, instance string, interval time.Duration) *Registrar {
	if interval <= 0 {
		interval = DefaultRegisterInterval
	}

	now := time.Now()
	return &Registrar{
		reg:      reg,
		interval: interval,
		now:      time.Now,
		info: Info{
			Name:      name,
			Instance:  instance,
			Pid:       os.Getpid(),
			RunID:     uuid.New(),
			StartedAt: now,
		},
	}
}

// SetInstance sets the instance name and port reported by later writes.
func (r *Registrar) SetInstance(instance string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info.Instance = instance
	r.info.Port = port
}

// Info returns a copy of the current record.
func (r *Registrar) Info() Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// AutoRegister writes status if the heartbeat interval has elapsed. It
// reports whether a write happened.
func (r *Registrar) AutoRegister(ctx context.Context, status string) (bool, error) {
	r.mu.Lock()
	if !r.lastWrite.IsZero() && r.now().Sub(r.lastWrite) < r.interval {
		r.mu.Unlock()
		return false, nil
	}
	r.mu.Unlock()

	return true, r.ForceRegister(ctx, status)
}

// ForceRegister writes status unconditionally.
func (r *Registrar) ForceRegister(ctx context.Context, status string) error {
	r.mu.Lock()
	now := r.now()
	r.info.Status = status
	r.info.LastHeartbeat = now
	r.lastWrite = now
	info := r.info
	r.mu.Unlock()

	if err := r.reg.Register(ctx, info); err != nil {
		return fmt.Errorf("register %s: %w", info.Key(), err)
	}
	return nil
}

// Unregister removes the record. A record that is already gone is not an
// error.
func (r *Registrar) Unregister(ctx context.Context) error {
	info := r.Info()
	err := r.reg.Unregister(ctx, info.Name, info.Instance)
	if err != nil && !errors.Is(err, ErrNotRegistered) {
		return fmt.Errorf("unregister %s: %w", info.Key(), err)
	}
	return nil
}

// Endpoint reports where a server listens. *dsserver.Server satisfies it.
type Endpoint interface {
	Port() int
	InstanceName() string
}

// Hooks wires the registrar into a server lifecycle.
//
// srv is queried on every call because the port is only known once Run has
// bound the listener. Registry failures are logged and never stop the
// server.
func Hooks(r *Registrar, srv Endpoint) dsserver.Hooks {
	heartbeat := func(ctx context.Context, status string) {
		r.SetInstance(srv.InstanceName(), srv.Port())
		if _, err := r.AutoRegister(ctx, fmt.Sprintf(status, srv.Port())); err != nil {
			logger.Warn("Process registry heartbeat failed: %v", err)
		}
	}

	return dsserver.Hooks{
		Idle: func(ctx context.Context) bool {
			heartbeat(ctx, "Listening, port: %d")
			return true
		},
		PostAccept: func(ctx context.Context) bool {
			heartbeat(ctx, "Received a client, port: %d")
			return true
		},
		Exit: func(ctx context.Context, reason dsserver.ExitReason) bool {
			logger.Debug("Unregistering from process registry (%s)", reason)
			if err := r.Unregister(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("Process registry unregister failed: %v", err)
			}
			return true
		},
	}
}
