package message

import (
	"errors"
	"fmt"

	"cipherchat/internal/domain"
	"cipherchat/internal/protocol/wire"
)

var (
	// ErrRecipientUnavailable is the relay's answer to an envelope whose
	// recipient is not connected.
	ErrRecipientUnavailable = errors.New("message: recipient not connected")

	// ErrRejected covers every other error notice from the relay.
	ErrRejected = errors.New("message: rejected by relay")

	// ErrSendToSelf is returned by Send when the recipient is ourselves.
	ErrSendToSelf = errors.New("message: cannot send to self")

	// ErrClosed is returned by Send and WaitReady once Run has returned.
	ErrClosed = errors.New("message: connection closed")
)

// NoticeErr turns a relay error notice into an error for errors.Is.
func NoticeErr(n domain.NoticeEvent) error {
	if n.Code == wire.CodeRecipientUnavailable {
		return fmt.Errorf("%w: %s", ErrRecipientUnavailable, n.Message)
	}
	return fmt.Errorf("%w: %s: %s", ErrRejected, n.Code, n.Message)
}
