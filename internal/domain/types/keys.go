package types

import "bytes"

const (
	// PublicKeySize is the length of an uncompressed P-256 point.
	PublicKeySize = 65

	// UncompressedPointPrefix is the leading byte of an uncompressed point.
	UncompressedPointPrefix = 0x04
)

// PublicKey is a session public key as exchanged on the wire.
type PublicKey []byte

// WellFormed reports whether k has the size and prefix of an uncompressed
// point. It does not check that the point lies on the curve.
func (k PublicKey) WellFormed() bool {
	return len(k) == PublicKeySize && k[0] == UncompressedPointPrefix
}

// Equal reports whether k and other hold the same bytes.
func (k PublicKey) Equal(other PublicKey) bool { return bytes.Equal(k, other) }

// Clone returns a copy of k that does not alias the original.
func (k PublicKey) Clone() PublicKey {
	if k == nil {
		return nil
	}
	out := make(PublicKey, len(k))
	copy(out, k)
	return out
}

// PublicKeyRecord is a published key together with its owner.
type PublicKeyRecord struct {
	Owner ConnectionID `json:"owner"`
	Key   PublicKey    `json:"key"`
}
