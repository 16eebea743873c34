// Package dsserver is a framework for request/response TCP servers.
//
// A Server accepts clients and admits each one against a ceiling. It serves
// every admitted client with a worker that reads one framed request and
// answers it. Server-status requests (liveness, client count, shutdown) are
// answered by the framework; data requests go to an injected Handler. When
// configured, a quiescence monitor ends the server after a period with no
// activity and no clients.
//
// Nothing in this package exits the process. Every self-termination (shutdown
// command, idle exit, fatal accept errors, debug-mode handler failures) is
// returned from Run as an *ExitError after the exit hook has run.
package dsserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dsserver/internal/logger"
	"github.com/marmos91/dsserver/internal/protocol/dsmsg"
	"github.com/marmos91/dsserver/internal/ratelimiter"
	"github.com/marmos91/dsserver/pkg/metrics"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// deadlineListener is satisfied by *net.TCPListener.
type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// Server is a single-process DsServer instance.
//
// Lifecycle:
//  1. New validates the configuration
//  2. Run binds the listener and loops until a termination decision
//  3. Run purges workers, runs the exit hook, waits for in-flight workers
//     (force-closing them after ShutdownTimeout) and returns
//
// Thread safety:
// Run must be called once. NumClients, Addr, InstanceName and Stop are safe
// to call concurrently with Run.
type Server struct {
	cfg     Config
	handler Handler
	hooks   Hooks
	metrics metrics.ServerMetrics
	limiter *ratelimiter.RateLimiter

	state  *serverState
	nextID atomic.Uint64

	// workers tracks goroutine-mode workers; background tracks the monitor
	// and lingering denial closes.
	workers    sync.WaitGroup
	background sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	instance string
	stop     context.CancelFunc

	ready chan struct{}
	done  chan struct{}

	exitOnce    sync.Once
	exitCh      chan struct{}
	exitErr     *ExitError
	exitHookRan atomic.Bool
}

// New returns a Server ready to Run. A nil handler answers data requests
// with UNKNOWN_COMMAND; nil metrics disables collection.
func New(cfg Config, handler Handler, hooks Hooks, m metrics.ServerMetrics) (*Server, error) {
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	if handler == nil {
		handler = unsupportedHandler{}
	}
	if m == nil {
		m = metrics.NewNoopServerMetrics()
	}

	return &Server{
		cfg:      cfg,
		handler:  handler,
		hooks:    hooks,
		metrics:  m,
		limiter:  ratelimiter.New(cfg.AcceptRate, cfg.AcceptBurst),
		state:    newServerState(),
		instance: cfg.InstanceName,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		exitCh:   make(chan struct{}),
	}, nil
}

// Run listens and serves until the server decides to terminate, ctx is
// cancelled or Stop is called.
//
// Returns:
//   - nil after a graceful stop (hook returned false, Stop, ctx cancelled)
//   - *ExitError for SHUTDOWN, idle exit, fatal accept errors and debug
//     handler failures
//   - any other error if the listener cannot be created or graceful stop
//     had to force-close connections
func (s *Server) Run(ctx context.Context) error {
	defer close(s.done)

	ln, err := net.Listen("tcp", s.cfg.listenAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.listenAddress(), err)
	}
	dl, ok := ln.(deadlineListener)
	if !ok {
		_ = ln.Close()
		return fmt.Errorf("listener %T does not support deadlines", ln)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Workers get their own context so a cancelled Run context does not cut
	// a reply short before termination decides to.
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()

	s.mu.Lock()
	s.listener = ln
	s.stop = cancel
	if s.instance == "" {
		s.instance = strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	}
	s.mu.Unlock()

	s.state.touch()
	close(s.ready)

	logger.Info("%s[%s] listening on %s", s.cfg.ExecutableName, s.InstanceName(), ln.Addr())
	logger.Debug("Server config: max_clients=%d max_quiescent=%v accept_timeout=%v mode=%s debug=%v",
		s.cfg.MaxClients, s.cfg.MaxQuiescent, s.cfg.AcceptTimeout, s.cfg.Mode, s.cfg.Debug)

	// Unblock Accept and any held admission as soon as there is a decision
	// or a stop.
	go func() {
		select {
		case <-runCtx.Done():
		case <-s.exitCh:
		}
		s.state.clients.close()
		s.closeListener()
	}()

	if s.cfg.MaxQuiescent > 0 {
		s.background.Add(1)
		go func() {
			defer s.background.Done()
			s.monitorQuiescence(runCtx)
		}()
	}

	loopErr := s.acceptLoop(runCtx, workerCtx, dl)
	return s.terminate(loopErr, cancel, cancelWorkers)
}

// acceptLoop returns a termination cause: an *ExitError, errStoppedByHook or
// a context error.
func (s *Server) acceptLoop(ctx, workerCtx context.Context, ln deadlineListener) error {
	var (
		failures int
		backoff  time.Duration
	)

	for {
		if s.cfg.AcceptTimeout > 0 {
			if err := ln.SetDeadline(time.Now().Add(s.cfg.AcceptTimeout)); err != nil {
				logger.Debug("Failed to set accept deadline: %v", err)
			}
		}

		nc, err := ln.Accept()
		if err != nil {
			if decision := s.exitDecision(); decision != nil {
				return decision
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				failures = 0
				s.purge()
				if !s.hooks.idle(ctx) {
					logger.Info("Idle hook requested stop")
					return errStoppedByHook
				}
				continue
			}

			failures++
			s.metrics.RecordAcceptError()
			if failures > s.cfg.MaxAcceptFailures {
				return &ExitError{
					Reason: ExitFatal,
					Err:    fmt.Errorf("%d consecutive accept failures, last: %w", failures, err),
				}
			}

			backoff = nextBackoff(backoff)
			logger.Warn("Accept failed (%d consecutive): %v; retrying in %v", failures, err, backoff)
			s.sleep(ctx, backoff)
			continue
		}

		failures = 0
		backoff = 0

		s.admit(workerCtx, nc)
		s.purge()

		if !s.hooks.postAccept(ctx) {
			logger.Info("Post-accept hook requested stop")
			return errStoppedByHook
		}
	}
}

// admit applies admission control to a fresh connection and either spawns
// its worker or denies it.
func (s *Server) admit(ctx context.Context, nc net.Conn) {
	conn := newClientConnection(s.nextID.Add(1), nc, &s.cfg)

	if !s.limiter.Allow() {
		s.deny(conn, denyRate, "accept rate exceeded")
		return
	}

	active, reason := s.state.clients.tryAdmit(s.cfg.MaxClients)
	switch reason {
	case "":
	case denyCapacity:
		s.deny(conn, reason, fmt.Sprintf("too many clients: %d active, limit %d", active, s.cfg.MaxClients))
		return
	default:
		s.deny(conn, reason, "server is shutting down")
		return
	}

	entry := s.state.registry.add(conn)
	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveClients(active)
	logger.Debug("Client %d accepted from %s (active: %d)", conn.ID(), conn.RemoteAddr(), active)

	if s.cfg.Mode == Inline {
		s.serve(ctx, entry)
		return
	}

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		s.serve(ctx, entry)
	}()
}

// deny sends SERVICE_DENIED within DenyWriteTimeout and closes the
// connection in the background.
func (s *Server) deny(conn *ClientConnection, label, reason string) {
	s.metrics.RecordConnectionDenied(label)
	logger.Warn("Denying service to %s: %s", conn.RemoteAddr(), reason)

	reply := dsmsg.NewErrorReply(0, dsmsg.ErrServiceDenied, reason)
	if err := conn.WriteMessage(reply, s.cfg.DenyWriteTimeout); err != nil {
		logger.Debug("Failed to send denial to %s: %v", conn.RemoteAddr(), err)
		conn.abort()
		return
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		_ = conn.Close()
	}()
}

// requestExit publishes a termination decision. Only the first one counts.
func (s *Server) requestExit(e *ExitError) bool {
	won := false
	s.exitOnce.Do(func() {
		s.exitErr = e
		s.state.clients.close()
		close(s.exitCh)
		won = true
		logger.Info("Server termination requested: %s", e.Reason)
	})
	return won
}

func (s *Server) exitDecision() *ExitError {
	select {
	case <-s.exitCh:
		return s.exitErr
	default:
		return nil
	}
}

// terminate performs the single shutdown sequence shared by every path.
func (s *Server) terminate(loopErr error, stopRun, stopWorkers context.CancelFunc) error {
	var loopExit *ExitError
	if errors.As(loopErr, &loopExit) {
		s.requestExit(loopExit)
	}

	s.state.clients.close()
	s.closeListener()
	stopRun()

	// The monitor may be inside the exit hook; let it finish before deciding
	// whether the hook still has to run.
	s.background.Wait()
	s.purge()

	decision := s.exitDecision()
	reason := ExitStopped
	if decision != nil {
		reason = decision.Reason
	}

	if !s.exitHookRan.Load() {
		s.exitHookRan.Store(true)
		s.hooks.exit(context.Background(), reason)
	}

	forced := s.waitForWorkers(stopWorkers)
	s.background.Wait()
	s.purge()

	if decision != nil {
		if decision.Code() != 0 {
			logger.Error("%s[%s] exiting: %v", s.cfg.ExecutableName, s.InstanceName(), decision)
		} else {
			logger.Info("%s[%s] exiting: %s", s.cfg.ExecutableName, s.InstanceName(), decision.Reason)
		}
		return decision
	}

	logger.Info("%s[%s] stopped", s.cfg.ExecutableName, s.InstanceName())
	if forced > 0 {
		return fmt.Errorf("shutdown timeout: %d connection(s) force-closed", forced)
	}
	return nil
}

// waitForWorkers gives in-flight workers ShutdownTimeout to finish, then
// cancels their context and aborts their sockets.
func (s *Server) waitForWorkers(stopWorkers context.CancelFunc) int {
	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	active := s.state.clients.get()
	if active > 0 {
		logger.Info("Waiting for %d active client(s) (timeout: %v)", active, s.cfg.ShutdownTimeout)
	}

	select {
	case <-done:
		stopWorkers()
		return 0
	case <-time.After(s.cfg.ShutdownTimeout):
	}

	stopWorkers()
	forced := s.state.registry.abortAll()
	logger.Warn("Shutdown timeout exceeded: force-closed %d connection(s)", forced)
	<-done
	return forced
}

func (s *Server) purge() {
	if n := s.state.registry.purgeCompleted(); n > 0 {
		s.metrics.RecordPurged(n)
		logger.Debug("Purged %d completed worker(s)", n)
	}
}

func (s *Server) closeListener() {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Debug("Error closing listener: %v", err)
		}
	}
}

// sleep waits d unless the server is stopping.
func (s *Server) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
	case <-s.exitCh:
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	return min(2*d, maxAcceptBackoff)
}

// Stop asks Run to stop gracefully and waits for it to return or for ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()

	if stop == nil {
		return errors.New("server is not running")
	}
	stop()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed when Run has returned.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Addr returns the bound listen address, or nil before Run binds it.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound port, or the configured one before Run.
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.cfg.Port
}

// InstanceName returns the configured instance name, or the bound port when
// none was configured.
func (s *Server) InstanceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.instance == "" {
		return strconv.Itoa(s.cfg.Port)
	}
	return s.instance
}

// ExecutableName returns the executable identity reported by IS_ALIVE.
func (s *Server) ExecutableName() string {
	return s.cfg.ExecutableName
}

// NumClients returns the number of workers currently serving a client.
func (s *Server) NumClients() int {
	return s.state.clients.get()
}
