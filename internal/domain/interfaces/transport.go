package interfaces

import "context"

// Conn is one duplex, message-framed transport connection. Each call to
// ReadMessage returns exactly one record as sent by the peer.
// WriteMessage may be called from several goroutines.
type Conn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, msg []byte) error
	Close() error
	RemoteAddr() string
}
