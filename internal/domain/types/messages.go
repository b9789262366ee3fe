package types

import "time"

// DecryptedMessage is what the client delivers after a successful open.
type DecryptedMessage struct {
	From      ConnectionID `json:"from"`
	Plaintext []byte       `json:"plaintext"`
	Received  time.Time    `json:"received"`
}

// SealedBox is the authenticated-encryption output for one message: a
// fresh IV, the AES-CBC ciphertext and the HMAC over IV||ciphertext.
type SealedBox struct {
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
	HMAC       []byte `json:"hmac"`
}
