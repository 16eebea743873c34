package dsmsg

import "fmt"

const (
	// Magic identifies a DsServer message ("DSMG").
	Magic uint32 = 0x44534D47

	// Version is the only header version understood by this codec.
	Version uint32 = 1

	// HeaderSize is the encoded size of Header: eight XDR words.
	HeaderSize = 32

	// MaxParts bounds NParts so a corrupt header cannot drive allocation.
	MaxParts = 1024

	// DefaultMaxMessageSize is used by readers that are not given a limit.
	DefaultMaxMessageSize = 16 << 20

	lastFragmentBit = 0x80000000
	fragmentLenMask = 0x7FFFFFFF
)

// Category routes a message inside the server.
type Category int32

const (
	// CategoryGeneric is used for replies.
	CategoryGeneric Category = iota
	// CategoryServerStatus carries framework commands handled by the server itself.
	CategoryServerStatus
	// CategoryData carries application requests handed to the injected handler.
	CategoryData

	categoryEnd
)

func (c Category) String() string {
	switch c {
	case CategoryGeneric:
		return "generic"
	case CategoryServerStatus:
		return "server_status"
	case CategoryData:
		return "data"
	default:
		return fmt.Sprintf("category(%d)", int32(c))
	}
}

// Valid reports whether c is a category known to this codec.
func (c Category) Valid() bool {
	return c >= CategoryGeneric && c < categoryEnd
}

// Server-status message types.
const (
	StatusIsAlive       int32 = 1
	StatusGetNumClients int32 = 2
	StatusShutdown      int32 = 3
)

// StatusName returns a printable name for a server-status type.
func StatusName(t int32) string {
	switch t {
	case StatusIsAlive:
		return "IS_ALIVE"
	case StatusGetNumClients:
		return "GET_NUM_CLIENTS"
	case StatusShutdown:
		return "SHUTDOWN"
	default:
		return fmt.Sprintf("STATUS_%d", t)
	}
}

// ErrorCode is carried in Header.Error of a reply.
type ErrorCode int32

const (
	ErrNone ErrorCode = iota
	ErrServiceDenied
	ErrBadMessage
	ErrServerError
	ErrUnknownCommand
	ErrNotFound
	ErrBadRequest
)

func (e ErrorCode) String() string {
	switch e {
	case ErrNone:
		return "NONE"
	case ErrServiceDenied:
		return "SERVICE_DENIED"
	case ErrBadMessage:
		return "BAD_MESSAGE"
	case ErrServerError:
		return "SERVER_ERROR"
	case ErrUnknownCommand:
		return "UNKNOWN_COMMAND"
	case ErrNotFound:
		return "NOT_FOUND"
	case ErrBadRequest:
		return "BAD_REQUEST"
	default:
		return fmt.Sprintf("ERROR_%d", int32(e))
	}
}

// PartType tags each body part.
type PartType uint32

const (
	PartErrString PartType = iota + 1
	PartInt
	PartString
	PartKey
	PartBlob
)
