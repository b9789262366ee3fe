package domain

import (
	interfaces "cipherchat/internal/domain/interfaces"
	types "cipherchat/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	ConnectionID     = types.ConnectionID
	Fingerprint      = types.Fingerprint
	PublicKey        = types.PublicKey
	PublicKeyRecord  = types.PublicKeyRecord
	SealedBox        = types.SealedBox
	DecryptedMessage = types.DecryptedMessage
	Event            = types.Event
	PeerListEvent    = types.PeerListEvent
	MessageEvent     = types.MessageEvent
	NoticeEvent      = types.NoticeEvent
	FailureEvent     = types.FailureEvent
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	Conn           = interfaces.Conn
	Handle         = interfaces.Handle
	SessionService = interfaces.SessionService
	MessageService = interfaces.MessageService
)

// Constants re-exported from the types subpackage.
const (
	PublicKeySize           = types.PublicKeySize
	UncompressedPointPrefix = types.UncompressedPointPrefix
)
