// Package client talks to a DsServer.
//
// The server answers exactly one request per connection, so every call
// dials, writes one framed request, reads one framed reply and closes.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/marmos91/dsserver/internal/handlers/blob"
	"github.com/marmos91/dsserver/internal/protocol/dsmsg"
	"github.com/marmos91/dsserver/pkg/blobstore"
)

// DefaultTimeout bounds a whole call when the client is given none.
const DefaultTimeout = 10 * time.Second

// ErrServiceDenied matches a SERVICE_DENIED reply.
var ErrServiceDenied = errors.New("service denied")

// ReplyError is a reply carrying a non-NONE error code.
type ReplyError struct {
	Code   dsmsg.ErrorCode
	Reason string
}

func (e *ReplyError) Error() string {
	if e.Reason == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Is lets callers test replies with errors.Is against ErrServiceDenied and
// blobstore.ErrNotFound.
func (e *ReplyError) Is(target error) bool {
	switch target {
	case ErrServiceDenied:
		return e.Code == dsmsg.ErrServiceDenied
	case blobstore.ErrNotFound:
		return e.Code == dsmsg.ErrNotFound
	default:
		return false
	}
}

// AliveInfo is the IS_ALIVE reply.
type AliveInfo struct {
	Pid        int
	Executable string
	Instance   string
	Version    string
}

// Client issues requests to one server address.
type Client struct {
	addr           string
	timeout        time.Duration
	maxMessageSize uint32
	dialer         net.Dialer
}

// New returns a client for addr ("host:port"). timeout bounds each call,
// from dial to reply.
func New(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{addr: addr, timeout: timeout, maxMessageSize: dsmsg.DefaultMaxMessageSize}
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Do sends req and returns the reply. A reply with an error code is
// returned together with a *ReplyError.
func (c *Client) Do(ctx context.Context, req *dsmsg.Message) (*dsmsg.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := dsmsg.WriteMessage(conn, req); err != nil {
		// A denied connection may already carry the refusal; prefer it.
		if reply, rerr := dsmsg.ReadMessage(conn, c.maxMessageSize); rerr == nil {
			return reply, replyErr(reply)
		}
		return nil, fmt.Errorf("send request: %w", err)
	}

	reply, err := dsmsg.ReadMessage(conn, c.maxMessageSize)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	return reply, replyErr(reply)
}

func replyErr(reply *dsmsg.Message) error {
	if reply.Error == dsmsg.ErrNone {
		return nil
	}
	return &ReplyError{Code: reply.Error, Reason: reply.ErrString()}
}

func (c *Client) status(ctx context.Context, t int32) (*dsmsg.Message, error) {
	return c.Do(ctx, dsmsg.NewRequest(dsmsg.CategoryServerStatus, t))
}

// IsAlive asks the server to identify itself.
func (c *Client) IsAlive(ctx context.Context) (AliveInfo, error) {
	reply, err := c.status(ctx, dsmsg.StatusIsAlive)
	if err != nil {
		return AliveInfo{}, err
	}

	pid, err := reply.PartInt(dsmsg.PartInt)
	if err != nil {
		return AliveInfo{}, fmt.Errorf("IS_ALIVE reply: %w", err)
	}
	names := reply.PartsOf(dsmsg.PartString)
	if len(names) != 3 {
		return AliveInfo{}, fmt.Errorf("IS_ALIVE reply: %d string parts, want 3", len(names))
	}

	return AliveInfo{
		Pid:        int(pid),
		Executable: string(names[0]),
		Instance:   string(names[1]),
		Version:    string(names[2]),
	}, nil
}

// NumClients returns the server's client count, which includes this call.
func (c *Client) NumClients(ctx context.Context) (int, error) {
	reply, err := c.status(ctx, dsmsg.StatusGetNumClients)
	if err != nil {
		return 0, err
	}

	n, err := reply.PartInt(dsmsg.PartInt)
	if err != nil {
		return 0, fmt.Errorf("GET_NUM_CLIENTS reply: %w", err)
	}
	return int(n), nil
}

// Shutdown asks the server to terminate. It returns once the server has
// acknowledged.
func (c *Client) Shutdown(ctx context.Context) error {
	_, err := c.status(ctx, dsmsg.StatusShutdown)
	return err
}

func (c *Client) Put(ctx context.Context, key string, data []byte) error {
	req := dsmsg.NewRequest(dsmsg.CategoryData, blob.TypePut)
	req.AddString(dsmsg.PartKey, key).AddPart(dsmsg.PartBlob, data)
	_, err := c.Do(ctx, req)
	return err
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	req := dsmsg.NewRequest(dsmsg.CategoryData, blob.TypeGet)
	req.AddString(dsmsg.PartKey, key)

	reply, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	data, ok := reply.Part(dsmsg.PartBlob)
	if !ok {
		return nil, fmt.Errorf("GET reply: %w", dsmsg.ErrNoPart)
	}
	return data, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	req := dsmsg.NewRequest(dsmsg.CategoryData, blob.TypeDelete)
	req.AddString(dsmsg.PartKey, key)
	_, err := c.Do(ctx, req)
	return err
}

// List returns the keys starting with prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	req := dsmsg.NewRequest(dsmsg.CategoryData, blob.TypeList)
	if prefix != "" {
		req.AddString(dsmsg.PartKey, prefix)
	}

	reply, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	parts := reply.PartsOf(dsmsg.PartKey)
	keys := make([]string, len(parts))
	for i, p := range parts {
		keys[i] = string(p)
	}
	return keys, nil
}
