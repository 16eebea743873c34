package dsserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/dsserver/internal/logger"
	"github.com/marmos91/dsserver/internal/protocol/dsmsg"
)

// serve runs one worker to completion: read one request, dispatch it, reply,
// retire. Whatever happens, the entry is marked done, the client count is
// decremented exactly once and the connection is closed.
func (s *Server) serve(ctx context.Context, entry *workerEntry) {
	conn := entry.conn

	defer close(entry.finished)
	defer func() { _ = conn.Close() }()
	defer s.retire(entry)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in worker %d for %s: %v", entry.id, conn.RemoteAddr(), r)
			s.handlerFailed(conn, fmt.Errorf("panic: %v", r))
		}
	}()

	s.state.touch()

	raw, err := conn.ReadFrame()
	if err != nil {
		logReadError(conn, err)
		s.replyError(conn, 0, dsmsg.ErrServerError, fmt.Sprintf("failed to read message: %v", err))
		return
	}

	hdr, err := dsmsg.DecodeHeader(raw)
	if err != nil {
		logger.Debug("Bad message from %s: %v", conn.RemoteAddr(), err)
		s.replyError(conn, 0, dsmsg.ErrBadMessage, fmt.Sprintf("cannot decode message header: %v", err))
		return
	}

	if s.cfg.Verbose {
		logger.Debug("Client %d request: category=%s type=%d subtype=%d parts=%d",
			conn.ID(), hdr.Category, hdr.Type, hdr.SubType, hdr.NParts)
	}

	start := time.Now()
	switch hdr.Category {
	case dsmsg.CategoryServerStatus:
		err = s.handleServerStatus(conn, raw)
		s.metrics.RecordRequest(hdr.Category.String(), dsmsg.StatusName(hdr.Type), time.Since(start), err)
		if err != nil {
			logger.Debug("Server status request from %s failed: %v", conn.RemoteAddr(), err)
		}

	default:
		err = s.handler.HandleData(ctx, conn, &Request{Header: hdr, Raw: raw})
		s.metrics.RecordRequest(hdr.Category.String(), fmt.Sprintf("%d", hdr.Type), time.Since(start), err)
		if err != nil {
			s.handlerFailed(conn, err)
		}
	}
}

// retire marks the entry done, then stamps activity and decrements the
// client count together.
func (s *Server) retire(entry *workerEntry) {
	s.state.registry.markDone(entry)

	active, err := s.state.clientDone()
	if err != nil {
		logger.Error("Worker %d retiring: %v", entry.id, err)
	}

	s.metrics.RecordConnectionClosed()
	s.metrics.SetActiveClients(active)
	logger.Debug("Client %d done (active: %d)", entry.id, active)
}

// handlerFailed logs a data handler failure. In debug mode it also asks the
// server to terminate.
func (s *Server) handlerFailed(conn *ClientConnection, err error) {
	if !s.cfg.Debug {
		logger.Warn("Data handler failed for %s: %v", conn.RemoteAddr(), err)
		return
	}

	logger.Error("Data handler failed for %s in debug mode: %v", conn.RemoteAddr(), err)
	s.requestExit(&ExitError{Reason: ExitHandlerFailure, Err: err})
}

// replyError sends a best-effort error reply; failures are only logged.
func (s *Server) replyError(conn *ClientConnection, msgType int32, code dsmsg.ErrorCode, reason string) {
	if err := conn.Reply(dsmsg.NewErrorReply(msgType, code, reason)); err != nil {
		logger.Debug("Failed to send %s reply to %s: %v", code, conn.RemoteAddr(), err)
	}
}

func logReadError(conn *ClientConnection, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("Client %s closed before sending a request", conn.RemoteAddr())
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("Client %s timed out sending a request: %v", conn.RemoteAddr(), err)
	default:
		logger.Debug("Error reading request from %s: %v", conn.RemoteAddr(), err)
	}
}
