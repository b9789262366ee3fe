package wire

import "cipherchat/internal/domain"

// Record type discriminators.
const (
	TypeClientID         = "clientId"
	TypeClientList       = "clientList"
	TypePublicKey        = "publicKey"
	TypeEncryptedMessage = "encryptedMessage"
	TypeError            = "error"
)

// Error notice codes sent by the relay.
const (
	CodeRecipientUnavailable = "RECIPIENT_UNAVAILABLE"
	CodeUnknownType          = "UNKNOWN_TYPE"
	CodeMalformedRecord      = "MALFORMED_RECORD"
	CodeInvalidPublicKey     = "INVALID_PUBLIC_KEY"
	CodeInvalidRecord        = "INVALID_RECORD"
)

// Record is one of IdentityAssigned, PeerList, PublicKeyAnnounce,
// EncryptedMessage or ErrorNotice.
type Record interface {
	Type() string
	isRecord()
}

// IdentityAssigned tells a client the identity the relay gave it.
type IdentityAssigned struct {
	ID domain.ConnectionID `json:"id"`
}

// PeerList lists the other connected identities.
type PeerList struct {
	Clients []domain.ConnectionID `json:"clients"`
}

// PublicKeyAnnounce publishes a session public key. Clients leave From
// empty; the relay fills it in on fan-out.
type PublicKeyAnnounce struct {
	From      domain.ConnectionID `json:"from,omitempty"`
	PublicKey Bytes               `json:"publicKey"`
}

// EncryptedMessage is the envelope for one sealed message.
type EncryptedMessage struct {
	From       domain.ConnectionID `json:"from,omitempty"`
	To         domain.ConnectionID `json:"to,omitempty"`
	IV         Bytes               `json:"iv"`
	Ciphertext Bytes               `json:"ciphertext"`
	HMAC       Bytes               `json:"hmac"`
}

// ErrorNotice reports a per-record failure to the originating client.
type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (IdentityAssigned) Type() string  { return TypeClientID }
func (PeerList) Type() string          { return TypeClientList }
func (PublicKeyAnnounce) Type() string { return TypePublicKey }
func (EncryptedMessage) Type() string  { return TypeEncryptedMessage }
func (ErrorNotice) Type() string       { return TypeError }

func (IdentityAssigned) isRecord()  {}
func (PeerList) isRecord()          {}
func (PublicKeyAnnounce) isRecord() {}
func (EncryptedMessage) isRecord()  {}
func (ErrorNotice) isRecord()       {}

// Box returns the sealed payload carried by m.
func (m EncryptedMessage) Box() domain.SealedBox {
	return domain.SealedBox{IV: m.IV, Ciphertext: m.Ciphertext, HMAC: m.HMAC}
}

// NewEncryptedMessage builds the client-to-relay envelope for box.
func NewEncryptedMessage(to domain.ConnectionID, box domain.SealedBox) EncryptedMessage {
	return EncryptedMessage{
		To:         to,
		IV:         Bytes(box.IV),
		Ciphertext: Bytes(box.Ciphertext),
		HMAC:       Bytes(box.HMAC),
	}
}
