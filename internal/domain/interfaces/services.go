package interfaces

import (
	"context"
	"time"

	domaintypes "cipherchat/internal/domain/types"
)

// SessionService owns the local key pair and one shared secret per peer.
type SessionService interface {
	PublicKey() domaintypes.PublicKey
	HandlePublicKey(peer domaintypes.ConnectionID, key domaintypes.PublicKey) error
	Forget(peer domaintypes.ConnectionID)
	Retain(peers []domaintypes.ConnectionID)
	EncryptFor(peer domaintypes.ConnectionID, plaintext []byte) (domaintypes.SealedBox, error)
	DecryptFrom(peer domaintypes.ConnectionID, box domaintypes.SealedBox) ([]byte, error)
	Await(ctx context.Context, peer domaintypes.ConnectionID, timeout time.Duration) error
	Peers() []domaintypes.ConnectionID
	Close()
}

// MessageService drives one relay connection on behalf of a participant.
type MessageService interface {
	Run(ctx context.Context) error
	Send(ctx context.Context, to domaintypes.ConnectionID, plaintext []byte) error
	Self() domaintypes.ConnectionID
	Peers() []domaintypes.ConnectionID
	Events() <-chan domaintypes.Event
}
