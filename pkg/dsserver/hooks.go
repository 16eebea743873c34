package dsserver

import (
	"context"

	"github.com/marmos91/dsserver/internal/logger"
	"github.com/marmos91/dsserver/internal/protocol/dsmsg"
)

// Hooks are the caller's extension points into the server lifecycle. Any nil
// field behaves as "continue" / "proceed".
type Hooks struct {
	// Idle runs after every accept timeout, once completed workers have been
	// purged. Returning false stops Run gracefully.
	Idle func(ctx context.Context) bool

	// PostAccept runs after every admitted connection has been handed to its
	// worker. Returning false stops Run gracefully.
	PostAccept func(ctx context.Context) bool

	// Exit runs once before Run returns, whatever the reason. For ExitIdle a
	// false result vetoes the exit and the server keeps running; for every
	// other reason the result is ignored.
	Exit func(ctx context.Context, reason ExitReason) bool
}

func (h Hooks) idle(ctx context.Context) bool {
	if h.Idle == nil {
		return true
	}
	return h.Idle(ctx)
}

func (h Hooks) postAccept(ctx context.Context) bool {
	if h.PostAccept == nil {
		return true
	}
	return h.PostAccept(ctx)
}

func (h Hooks) exit(ctx context.Context, reason ExitReason) bool {
	if h.Exit == nil {
		return true
	}
	return h.Exit(ctx, reason)
}

// Request is a data-category message whose header has been validated. The
// body is left undecoded for the handler.
type Request struct {
	Header dsmsg.Header
	Raw    []byte
}

// Message fully decodes the request.
func (r *Request) Message() (*dsmsg.Message, error) {
	return dsmsg.Decode(r.Raw)
}

// Handler serves data-category requests. It owns the reply: whatever it
// writes to conn is what the client sees. A returned error is logged, or
// ends the server when Config.Debug is set.
type Handler interface {
	HandleData(ctx context.Context, conn *ClientConnection, req *Request) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn *ClientConnection, req *Request) error

func (f HandlerFunc) HandleData(ctx context.Context, conn *ClientConnection, req *Request) error {
	return f(ctx, conn, req)
}

// unsupportedHandler answers every data request with UNKNOWN_COMMAND.
type unsupportedHandler struct{}

func (unsupportedHandler) HandleData(_ context.Context, conn *ClientConnection, req *Request) error {
	logger.Debug("No data handler installed, rejecting type %d from %s", req.Header.Type, conn.RemoteAddr())
	return conn.Reply(dsmsg.NewErrorReply(req.Header.Type, dsmsg.ErrUnknownCommand, "server has no data handler"))
}
