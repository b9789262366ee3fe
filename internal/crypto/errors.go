package crypto

import "errors"

var (
	// ErrKeyGeneration is returned when a local key pair cannot be created.
	ErrKeyGeneration = errors.New("crypto: key generation failed")

	// ErrInvalidPeerKey is returned for a peer public key that is not a
	// 65-byte uncompressed point on P-256.
	ErrInvalidPeerKey = errors.New("crypto: invalid peer public key")

	// ErrDecryption is returned when a message cannot be opened, whether
	// the tag did not match or the plaintext was malformed.
	ErrDecryption = errors.New("crypto: message could not be decrypted")

	// ErrInvalidKeySize is returned when a symmetric key is not 32 bytes.
	ErrInvalidKeySize = errors.New("crypto: symmetric key must be 32 bytes")
)
