package interfaces

import domaintypes "cipherchat/internal/domain/types"

// Handle is the relay's view of one connected participant: a non-blocking
// outbound queue. Enqueue must never block; it fails once the connection
// is closed or its queue is full.
type Handle interface {
	ID() domaintypes.ConnectionID
	Enqueue(frame []byte) error
	IsOpen() bool
}
