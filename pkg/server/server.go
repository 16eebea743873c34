// Package server assembles a runnable DsServer process from configuration:
// the dsserver accept loop with the blob handler, the process registry
// hooks and the optional metrics endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/marmos91/dsserver/internal/handlers/blob"
	"github.com/marmos91/dsserver/internal/logger"
	"github.com/marmos91/dsserver/pkg/blobstore"
	"github.com/marmos91/dsserver/pkg/config"
	"github.com/marmos91/dsserver/pkg/dsserver"
	"github.com/marmos91/dsserver/pkg/metrics"
	"github.com/marmos91/dsserver/pkg/procmap"
	"golang.org/x/sync/errgroup"
)

// Runner owns one dsserver.Server and the services running beside it.
//
// The store and registry are owned by the caller until Close, which closes
// both. A Runner can only be run once.
type Runner struct {
	cfg *config.Config
	srv *dsserver.Server

	store         blobstore.Store
	registry      procmap.Registry
	registrar     *procmap.Registrar
	metricsServer *metrics.Server

	runOnce sync.Once
}

// endpoint defers to the server once it exists. The hooks are built before
// dsserver.New returns but only called from Run.
type endpoint struct {
	srv *dsserver.Server
}

func (e *endpoint) Port() int            { return e.srv.Port() }
func (e *endpoint) InstanceName() string { return e.srv.InstanceName() }

// New builds a Runner.
//
// Parameters:
//   - cfg: loaded configuration
//   - store: blob store served by the data handler (required)
//   - registry: process registry; nil disables registration
//   - m: metrics from config.InitializeMetrics; nil disables metrics
func New(cfg *config.Config, store blobstore.Store, registry procmap.Registry, m *config.MetricsResult) (*Runner, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if m == nil {
		m = &config.MetricsResult{
			ServerMetrics: metrics.NewNoopServerMetrics(),
			StoreMetrics:  metrics.NewNoopStoreMetrics(),
		}
	}

	srvCfg, err := cfg.Server.ToServerConfig()
	if err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	r := &Runner{
		cfg:           cfg,
		store:         store,
		registry:      registry,
		metricsServer: m.Server,
	}

	var hooks dsserver.Hooks
	ep := &endpoint{}
	if registry != nil {
		name := srvCfg.ExecutableName
		if name == "" {
			name = filepath.Base(os.Args[0])
		}
		instance := srvCfg.InstanceName
		if instance == "" {
			instance = strconv.Itoa(cfg.Server.Port)
		}
		r.registrar = procmap.NewRegistrar(registry, name, instance, cfg.ProcMap.RegisterInterval)
		r.registrar.SetInstance(instance, cfg.Server.Port)
		hooks = procmap.Hooks(r.registrar, ep)
	}

	handler := blob.New(blobstore.WithMetrics(store, m.StoreMetrics), cfg.Server.WriteTimeout)

	srv, err := dsserver.New(srvCfg, handler, hooks, m.ServerMetrics)
	if err != nil {
		return nil, err
	}
	ep.srv = srv
	r.srv = srv

	return r, nil
}

// Server returns the underlying dsserver.
func (r *Runner) Server() *dsserver.Server {
	return r.srv
}

// MetricsAddr returns the bound metrics address, or nil when metrics are
// disabled or not yet listening.
func (r *Runner) MetricsAddr() net.Addr {
	if r.metricsServer == nil {
		return nil
	}
	return r.metricsServer.Addr()
}

// Run serves until the dsserver terminates or ctx is cancelled. The metrics
// server is stopped together with the dsserver, and a metrics failure stops
// the dsserver.
//
// The result is the dsserver's: nil after a graceful stop, a
// *dsserver.ExitError when the server decided to exit.
func (r *Runner) Run(ctx context.Context) error {
	err := errors.New("runner already started")
	r.runOnce.Do(func() {
		err = r.run(ctx)
	})
	return err
}

func (r *Runner) run(ctx context.Context) error {
	if err := r.store.Healthcheck(ctx); err != nil {
		return fmt.Errorf("blob store healthcheck: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if r.registrar != nil {
		status := fmt.Sprintf("Starting, port: %d", r.cfg.Server.Port)
		if err := r.registrar.ForceRegister(ctx, status); err != nil {
			logger.Warn("Process registry registration failed: %v", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()

		err := r.srv.Run(gctx)

		// Run does not reach the exit hook when the listener cannot be bound.
		if r.registrar != nil {
			if uerr := r.registrar.Unregister(context.WithoutCancel(ctx)); uerr != nil {
				logger.Warn("Process registry unregister failed: %v", uerr)
			}
		}
		return err
	})

	if r.metricsServer != nil {
		g.Go(func() error {
			return r.metricsServer.Start(gctx)
		})
	}

	err := g.Wait()
	if err != nil && !dsserver.IsShutdown(err) {
		logger.Debug("Runner stopped: %v", err)
	}
	return err
}

// Close releases the blob store and the process registry.
func (r *Runner) Close() error {
	var errs []error
	if err := r.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close blob store: %w", err))
	}
	if r.registry != nil {
		if err := r.registry.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close process registry: %w", err))
		}
	}
	return errors.Join(errs...)
}
