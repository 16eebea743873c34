package dsserver

import (
	"context"
	"errors"
	"fmt"
)

// ExitReason says why Run stopped.
type ExitReason int

const (
	// ExitStopped is a graceful stop: a hook returned false, Stop was called
	// or the Run context was cancelled. Run returns nil in this case.
	ExitStopped ExitReason = iota

	// ExitShutdown follows a SHUTDOWN server-status command.
	ExitShutdown

	// ExitIdle follows a quiescence timeout with no clients.
	ExitIdle

	// ExitFatal follows too many consecutive accept failures.
	ExitFatal

	// ExitHandlerFailure follows a data handler error in debug mode.
	ExitHandlerFailure
)

func (r ExitReason) String() string {
	switch r {
	case ExitStopped:
		return "stopped"
	case ExitShutdown:
		return "shutdown requested"
	case ExitIdle:
		return "idle timeout"
	case ExitFatal:
		return "fatal error"
	case ExitHandlerFailure:
		return "handler failure"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// ExitError is the decision Run returns when the server terminates itself.
// The caller is expected to end the process with Code().
type ExitError struct {
	Reason ExitReason
	Err    error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("server exit: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("server exit: %s", e.Reason)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Code maps the decision to a process exit status.
func (e *ExitError) Code() int {
	switch e.Reason {
	case ExitStopped, ExitShutdown, ExitIdle:
		return 0
	default:
		return 1
	}
}

// AsExit extracts an *ExitError from err.
func AsExit(err error) (*ExitError, bool) {
	var e *ExitError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsShutdown reports whether err is a SHUTDOWN decision.
func IsShutdown(err error) bool {
	e, ok := AsExit(err)
	return ok && e.Reason == ExitShutdown
}

// ExitCode maps any error returned by Run to a process exit status.
func ExitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	if e, ok := AsExit(err); ok {
		return e.Code()
	}
	return 1
}

var errStoppedByHook = errors.New("stopped by hook")
