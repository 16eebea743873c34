package dsserver

import (
	"context"
	"time"

	"github.com/marmos91/dsserver/internal/logger"
)

// monitorQuiescence ends the server once it has been idle for MaxQuiescent
// with no clients.
//
// Each round sleeps for what is left of the quiet period since the last
// observed activity (the full period if that looks off), then re-checks. The
// idle time is checked before the client count: a client admitted in between
// keeps the count non-zero, so the worst case is a missed exit, never an
// exit under a live client. Clients arriving while the exit hook decides
// wait for its answer and are admitted if it vetoes.
func (s *Server) monitorQuiescence(ctx context.Context) {
	maxQuiet := s.cfg.MaxQuiescent
	logger.Debug("Quiescence monitor started (max quiescent: %v)", maxQuiet)

	for {
		wait := maxQuiet
		if quiet := s.state.quietFor(); quiet > 0 && quiet < maxQuiet {
			wait = maxQuiet - quiet
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.exitCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		if !s.state.idleExitCandidate(maxQuiet) {
			continue
		}

		logger.Info("No activity for %v and no clients", maxQuiet)
		s.purge()

		if !s.hooks.exit(ctx, ExitIdle) {
			logger.Info("Idle exit vetoed by exit hook")
			s.state.clients.unhold()
			continue
		}

		s.exitHookRan.Store(true)
		s.requestExit(&ExitError{Reason: ExitIdle})
		return
	}
}
