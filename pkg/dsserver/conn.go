package dsserver

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/marmos91/dsserver/internal/protocol/dsmsg"
)

const (
	// lingerTimeout bounds how long Close drains the peer after a half-close.
	lingerTimeout = 500 * time.Millisecond

	// lingerDrainLimit caps what Close is willing to read and discard.
	lingerDrainLimit = 256 << 10
)

// ClientConnection is one accepted client. Reads and writes carry deadlines
// and Close is idempotent, so the worker, the purge pass and forced shutdown
// may all call it.
type ClientConnection struct {
	id   uint64
	conn net.Conn

	readTimeout    time.Duration
	writeTimeout   time.Duration
	maxMessageSize uint32

	closeOnce sync.Once
	closeErr  error
}

func newClientConnection(id uint64, conn net.Conn, cfg *Config) *ClientConnection {
	return &ClientConnection{
		id:             id,
		conn:           conn,
		readTimeout:    cfg.ReadTimeout,
		writeTimeout:   cfg.WriteTimeout,
		maxMessageSize: cfg.MaxMessageSize,
	}
}

// ID is unique per accepted connection for the lifetime of the Server.
func (c *ClientConnection) ID() uint64 {
	return c.id
}

func (c *ClientConnection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// ReadFrame reads one complete framed message within the read timeout.
func (c *ClientConnection) ReadFrame() ([]byte, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, err
		}
	}
	return dsmsg.ReadFrame(c.conn, c.maxMessageSize)
}

// Reply writes m within the configured write timeout.
func (c *ClientConnection) Reply(m *dsmsg.Message) error {
	return c.WriteMessage(m, c.writeTimeout)
}

// WriteMessage writes m with an explicit timeout. Zero means no deadline.
func (c *ClientConnection) WriteMessage(m *dsmsg.Message, timeout time.Duration) error {
	if timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	return dsmsg.WriteMessage(c.conn, m)
}

// Close half-closes the connection, briefly drains whatever the peer still
// sends, then closes it. Draining keeps the kernel from answering unread
// input with a reset that would destroy a reply the peer has not read yet.
func (c *ClientConnection) Close() error {
	c.closeOnce.Do(func() {
		if tc, ok := c.conn.(*net.TCPConn); ok {
			if err := tc.CloseWrite(); err == nil {
				_ = tc.SetReadDeadline(time.Now().Add(lingerTimeout))
				_, _ = io.CopyN(io.Discard, tc, lingerDrainLimit)
			}
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// abort closes the socket immediately, interrupting any blocked I/O
// including a Close that is still lingering.
func (c *ClientConnection) abort() {
	_ = c.conn.Close()
}
