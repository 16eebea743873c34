package metrics

import "time"

// ServerMetrics observes the accept loop and its workers.
//
// Implementations must be safe for concurrent use: workers report from their
// own goroutines while the accept loop and quiescence monitor run alongside.
type ServerMetrics interface {
	// RecordConnectionAccepted counts a connection that passed admission.
	RecordConnectionAccepted()

	// RecordConnectionDenied counts a connection refused at admission.
	// reason is a short label such as "capacity", "rate" or "closed".
	RecordConnectionDenied(reason string)

	// RecordConnectionClosed counts a worker that has retired.
	RecordConnectionClosed()

	// SetActiveClients publishes the current client count.
	SetActiveClients(count int)

	// RecordRequest records one dispatched request.
	//
	// Parameters:
	//   - category: message category label ("server_status", "data")
	//   - msgType: request type label
	//   - duration: time spent dispatching and replying
	//   - err: nil on success
	RecordRequest(category, msgType string, duration time.Duration, err error)

	// RecordAcceptError counts a non-timeout accept failure.
	RecordAcceptError()

	// RecordPurged counts registry entries reclaimed by one purge pass.
	RecordPurged(n int)
}

// StoreMetrics observes blob store operations issued by the data handler.
type StoreMetrics interface {
	RecordOperation(operation string, duration time.Duration, err error)
	RecordBytes(direction string, n int64)
}

// NewNoopServerMetrics returns a ServerMetrics that discards everything.
func NewNoopServerMetrics() ServerMetrics {
	return noopServerMetrics{}
}

// NewNoopStoreMetrics returns a StoreMetrics that discards everything.
func NewNoopStoreMetrics() StoreMetrics {
	return noopStoreMetrics{}
}

type noopServerMetrics struct{}

func (noopServerMetrics) RecordConnectionAccepted()                          {}
func (noopServerMetrics) RecordConnectionDenied(string)                      {}
func (noopServerMetrics) RecordConnectionClosed()                            {}
func (noopServerMetrics) SetActiveClients(int)                               {}
func (noopServerMetrics) RecordRequest(string, string, time.Duration, error) {}
func (noopServerMetrics) RecordAcceptError()                                 {}
func (noopServerMetrics) RecordPurged(int)                                   {}

type noopStoreMetrics struct{}

func (noopStoreMetrics) RecordOperation(string, time.Duration, error) {}
func (noopStoreMetrics) RecordBytes(string, int64)                    {}
