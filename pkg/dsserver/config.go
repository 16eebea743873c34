package dsserver

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dsserver/internal/logger"
	"github.com/marmos91/dsserver/internal/protocol/dsmsg"
)

// MaxClientsEnv, when set to an integer, overrides Config.MaxClients.
const MaxClientsEnv = "DS_SERVER_MAX_CLIENTS"

// ClientMode selects how an admitted connection is served.
type ClientMode int

const (
	// PerConnectionTask serves each client on its own goroutine.
	PerConnectionTask ClientMode = iota

	// Inline serves each client on the accept loop itself. Only one client is
	// ever in flight, which makes request ordering deterministic.
	Inline
)

func (m ClientMode) String() string {
	switch m {
	case PerConnectionTask:
		return "per_connection"
	case Inline:
		return "inline"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseClientMode accepts "per_connection" (or "") and "inline".
func ParseClientMode(s string) (ClientMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "per_connection":
		return PerConnectionTask, nil
	case "inline":
		return Inline, nil
	default:
		return 0, fmt.Errorf("unknown client mode %q", s)
	}
}

// Config holds the construction parameters of a Server.
//
// Default values (applied by New when zero):
//   - ExecutableName: base name of os.Args[0]
//   - InstanceName: the bound port number
//   - AcceptTimeout: 1s
//   - ReadTimeout: 30s
//   - WriteTimeout: 10s
//   - DenyWriteTimeout: 1s
//   - ShutdownTimeout: 30s
//   - MaxMessageSize: 16MiB
//   - MaxAcceptFailures: 1000
type Config struct {
	// ExecutableName identifies the program in IS_ALIVE replies and in the
	// process registry.
	ExecutableName string

	// InstanceName distinguishes several servers of the same executable.
	InstanceName string

	// Port is the TCP port to listen on. Ignored when Address is set.
	Port int

	// Address is a full listen address such as "127.0.0.1:0".
	Address string

	// MaxClients is the admission ceiling. Zero or negative means unbounded.
	// MaxClientsEnv overrides it.
	MaxClients int

	// MaxQuiescent is how long the server may sit with no activity and no
	// clients before it exits. Zero or negative disables idle exit.
	MaxQuiescent time.Duration

	// AcceptTimeout bounds each wait for a new connection. When it expires
	// the idle hook runs. Negative blocks until a connection arrives.
	AcceptTimeout time.Duration

	// ReadTimeout bounds the read of a request.
	ReadTimeout time.Duration

	// WriteTimeout bounds replies, including error replies.
	WriteTimeout time.Duration

	// DenyWriteTimeout bounds the SERVICE_DENIED reply.
	DenyWriteTimeout time.Duration

	// ShutdownTimeout is how long termination waits for in-flight workers
	// before force-closing their connections.
	ShutdownTimeout time.Duration

	// MaxMessageSize caps an incoming frame.
	MaxMessageSize uint32

	// MaxAcceptFailures is the number of consecutive accept errors tolerated
	// before the loop gives up.
	MaxAcceptFailures int

	// AcceptRate limits admissions per second. Zero disables the limit.
	AcceptRate float64

	// AcceptBurst is the token bucket size used with AcceptRate.
	AcceptBurst int

	// Mode selects goroutine-per-client or inline serving.
	Mode ClientMode

	// Debug makes data handler failures fatal to the server.
	Debug bool

	// Verbose enables chatty per-request logging. It implies Debug.
	Verbose bool
}

func (c *Config) applyDefaults() {
	if c.ExecutableName == "" {
		c.ExecutableName = filepath.Base(os.Args[0])
	}
	if c.AcceptTimeout == 0 {
		c.AcceptTimeout = time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.DenyWriteTimeout == 0 {
		c.DenyWriteTimeout = time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = dsmsg.DefaultMaxMessageSize
	}
	if c.MaxAcceptFailures == 0 {
		c.MaxAcceptFailures = 1000
	}
	if c.AcceptRate > 0 && c.AcceptBurst == 0 {
		c.AcceptBurst = max(1, int(c.AcceptRate))
	}
	if c.Verbose {
		c.Debug = true
	}
}

// applyEnvOverrides honours MaxClientsEnv. A value that does not parse is
// ignored with a warning.
func (c *Config) applyEnvOverrides() {
	v, ok := os.LookupEnv(MaxClientsEnv)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}

	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		logger.Warn("Ignoring %s=%q: %v", MaxClientsEnv, v, err)
		return
	}
	if n != c.MaxClients {
		logger.Info("%s overrides max clients: %d -> %d", MaxClientsEnv, c.MaxClients, n)
	}
	c.MaxClients = n
}

func (c *Config) validate() error {
	if c.Address == "" && (c.Port <= 0 || c.Port > 65535) {
		return fmt.Errorf("invalid port %d: must be 1-65535", c.Port)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid ReadTimeout %v: must be >= 0", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.DenyWriteTimeout < 0 {
		return fmt.Errorf("invalid DenyWriteTimeout %v: must be >= 0", c.DenyWriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	if c.MaxAcceptFailures < 0 {
		return fmt.Errorf("invalid MaxAcceptFailures %d: must be >= 0", c.MaxAcceptFailures)
	}
	if c.AcceptRate < 0 {
		return fmt.Errorf("invalid AcceptRate %v: must be >= 0", c.AcceptRate)
	}
	if c.Mode != PerConnectionTask && c.Mode != Inline {
		return fmt.Errorf("invalid Mode %v", c.Mode)
	}
	return nil
}

func (c *Config) listenAddress() string {
	if c.Address != "" {
		return c.Address
	}
	return fmt.Sprintf(":%d", c.Port)
}
