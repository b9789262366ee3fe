package relay

import "errors"

var (
	// ErrNotFound is returned by Directory operations on an identity that
	// is not registered.
	ErrNotFound = errors.New("relay: identity not found in directory")

	// ErrDuplicate is returned when registering an identity twice.
	ErrDuplicate = errors.New("relay: identity already registered")

	// ErrConnClosed is returned when enqueueing to a connection that has
	// been torn down.
	ErrConnClosed = errors.New("relay: connection closed")

	// ErrQueueFull is returned when a connection's outbound queue is full.
	// The connection is closed as a consequence.
	ErrQueueFull = errors.New("relay: outbound queue full")

	// ErrShuttingDown is returned by Serve once Shutdown has been called.
	ErrShuttingDown = errors.New("relay: shutting down")
)
