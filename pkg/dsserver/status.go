package dsserver

import (
	"fmt"
	"os"

	"github.com/marmos91/dsserver/internal/logger"
	"github.com/marmos91/dsserver/internal/protocol/dsmsg"
)

// Version is reported in IS_ALIVE replies. Release builds set it with
// -ldflags "-X github.com/marmos91/dsserver/pkg/dsserver.Version=...".
var Version = "0.1.0-dev"

// handleServerStatus answers the framework's own commands.
//
// Replies:
//   - IS_ALIVE: INT pid, STRING executable name, STRING instance name,
//     STRING version
//   - GET_NUM_CLIENTS: INT current client count
//   - SHUTDOWN: empty ack, then the server terminates
//   - anything else: UNKNOWN_COMMAND
func (s *Server) handleServerStatus(conn *ClientConnection, raw []byte) error {
	msg, err := dsmsg.Decode(raw)
	if err != nil {
		s.replyError(conn, 0, dsmsg.ErrBadMessage, fmt.Sprintf("cannot decode server status message: %v", err))
		return err
	}

	if msg.Category != dsmsg.CategoryServerStatus {
		err := fmt.Errorf("category %s routed as server status", msg.Category)
		s.replyError(conn, msg.Type, dsmsg.ErrServerError, err.Error())
		return err
	}

	reply := dsmsg.NewReply(msg.Header)

	switch msg.Type {
	case dsmsg.StatusIsAlive:
		reply.AddInt(dsmsg.PartInt, int64(os.Getpid()))
		reply.AddString(dsmsg.PartString, s.ExecutableName())
		reply.AddString(dsmsg.PartString, s.InstanceName())
		reply.AddString(dsmsg.PartString, Version)

	case dsmsg.StatusGetNumClients:
		reply.AddInt(dsmsg.PartInt, int64(s.NumClients()))

	case dsmsg.StatusShutdown:
		logger.Info("Shutdown requested by %s", conn.RemoteAddr())
		if err := conn.Reply(reply); err != nil {
			logger.Warn("Failed to acknowledge shutdown to %s: %v", conn.RemoteAddr(), err)
		}
		s.requestExit(&ExitError{Reason: ExitShutdown})
		return nil

	default:
		s.replyError(conn, msg.Type, dsmsg.ErrUnknownCommand,
			fmt.Sprintf("unknown server status command %d", msg.Type))
		return nil
	}

	return conn.Reply(reply)
}
