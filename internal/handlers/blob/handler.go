// Package blob serves data-category requests against a blobstore.Store.
//
// Requests carry the blob key in a KEY part and, for PUT, the value in a
// BLOB part. Replies are Generic-category messages echoing the request
// type:
//
//	PUT    KEY, BLOB  ->  (empty)
//	GET    KEY        ->  BLOB
//	DELETE KEY        ->  (empty)
//	LIST   [KEY]      ->  KEY*   (the optional KEY is a prefix)
package blob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dsserver/internal/logger"
	"github.com/marmos91/dsserver/internal/protocol/dsmsg"
	"github.com/marmos91/dsserver/pkg/blobstore"
	"github.com/marmos91/dsserver/pkg/dsserver"
)

// Data message types.
const (
	TypePut    int32 = 1
	TypeGet    int32 = 2
	TypeDelete int32 = 3
	TypeList   int32 = 4
)

// DefaultTimeout bounds a store call when the handler is given none.
const DefaultTimeout = 10 * time.Second

// errBadRequest marks malformed but decodable requests.
var errBadRequest = errors.New("bad request")

type procedure func(h *Handler, ctx context.Context, req *dsmsg.Message) (*dsmsg.Message, error)

type procedureInfo struct {
	Name   string
	Handle procedure
}

var dispatchTable = map[int32]*procedureInfo{
	TypePut:    {Name: "PUT", Handle: handlePut},
	TypeGet:    {Name: "GET", Handle: handleGet},
	TypeDelete: {Name: "DELETE", Handle: handleDelete},
	TypeList:   {Name: "LIST", Handle: handleList},
}

// TypeName returns the printable name of a data message type.
func TypeName(t int32) string {
	if p, ok := dispatchTable[t]; ok {
		return p.Name
	}
	return fmt.Sprintf("DATA_%d", t)
}

// Handler implements dsserver.Handler.
type Handler struct {
	store   blobstore.Store
	timeout time.Duration
}

// New returns a handler over store. Each store call is bounded by timeout.
func New(store blobstore.Store, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Handler{store: store, timeout: timeout}
}

var _ dsserver.Handler = (*Handler)(nil)

// HandleData decodes, dispatches and replies.
//
// Client mistakes (undecodable body, unknown type, missing parts, invalid or
// unknown key) are answered with an error reply and are not errors of the
// handler, nor is failing to write a reply. Store failures are answered with
// SERVER_ERROR and returned.
func (h *Handler) HandleData(ctx context.Context, conn *dsserver.ClientConnection, req *dsserver.Request) error {
	msg, err := req.Message()
	if err != nil {
		logger.Debug("Undecodable data request from %s: %v", conn.RemoteAddr(), err)
		replyError(conn, req.Header.Type, dsmsg.ErrBadMessage, err.Error())
		return nil
	}

	proc, ok := dispatchTable[msg.Type]
	if !ok {
		logger.Debug("Unknown data request type %d from %s", msg.Type, conn.RemoteAddr())
		replyError(conn, msg.Type, dsmsg.ErrUnknownCommand, fmt.Sprintf("unknown data request type %d", msg.Type))
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	reply, err := proc.Handle(h, callCtx, msg)
	switch {
	case err == nil:
		logger.Debug("%s from %s: ok", proc.Name, conn.RemoteAddr())
		if werr := conn.Reply(reply); werr != nil {
			logger.Debug("Failed to send %s reply to %s: %v", proc.Name, conn.RemoteAddr(), werr)
		}
		return nil

	case errors.Is(err, blobstore.ErrNotFound):
		replyError(conn, msg.Type, dsmsg.ErrNotFound, err.Error())
		return nil

	case errors.Is(err, blobstore.ErrInvalidKey), errors.Is(err, errBadRequest):
		replyError(conn, msg.Type, dsmsg.ErrBadRequest, err.Error())
		return nil

	default:
		logger.Error("%s from %s failed: %v", proc.Name, conn.RemoteAddr(), err)
		replyError(conn, msg.Type, dsmsg.ErrServerError, err.Error())
		return fmt.Errorf("%s: %w", proc.Name, err)
	}
}

// replyError sends an error reply. Write failures are only logged.
func replyError(conn *dsserver.ClientConnection, msgType int32, code dsmsg.ErrorCode, reason string) {
	if err := conn.Reply(dsmsg.NewErrorReply(msgType, code, reason)); err != nil {
		logger.Debug("Failed to send %s reply to %s: %v", code, conn.RemoteAddr(), err)
	}
}

func requireKey(req *dsmsg.Message) (string, error) {
	key, ok := req.PartString(dsmsg.PartKey)
	if !ok {
		return "", fmt.Errorf("%w: missing KEY part", errBadRequest)
	}
	return key, nil
}

func handlePut(h *Handler, ctx context.Context, req *dsmsg.Message) (*dsmsg.Message, error) {
	key, err := requireKey(req)
	if err != nil {
		return nil, err
	}
	data, ok := req.Part(dsmsg.PartBlob)
	if !ok {
		return nil, fmt.Errorf("%w: missing BLOB part", errBadRequest)
	}

	if err := h.store.Put(ctx, key, data); err != nil {
		return nil, err
	}
	return dsmsg.NewReply(req.Header), nil
}

func handleGet(h *Handler, ctx context.Context, req *dsmsg.Message) (*dsmsg.Message, error) {
	key, err := requireKey(req)
	if err != nil {
		return nil, err
	}

	data, err := h.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return dsmsg.NewReply(req.Header).AddPart(dsmsg.PartBlob, data), nil
}

func handleDelete(h *Handler, ctx context.Context, req *dsmsg.Message) (*dsmsg.Message, error) {
	key, err := requireKey(req)
	if err != nil {
		return nil, err
	}

	if err := h.store.Delete(ctx, key); err != nil {
		return nil, err
	}
	return dsmsg.NewReply(req.Header), nil
}

func handleList(h *Handler, ctx context.Context, req *dsmsg.Message) (*dsmsg.Message, error) {
	prefix, _ := req.PartString(dsmsg.PartKey)

	keys, err := h.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) > dsmsg.MaxParts {
		return nil, fmt.Errorf("%w: %d keys match %q, narrow the prefix (limit %d)",
			errBadRequest, len(keys), prefix, dsmsg.MaxParts)
	}

	reply := dsmsg.NewReply(req.Header)
	for _, k := range keys {
		reply.AddString(dsmsg.PartKey, k)
	}
	return reply, nil
}
