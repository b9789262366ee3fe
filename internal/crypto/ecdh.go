package crypto

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"io"

	"cipherchat/internal/domain"
	"cipherchat/internal/util/memzero"
)

// SharedKeySize is the length of a derived shared key.
const SharedKeySize = 32

// KeyPair is an ephemeral P-256 key pair owned by one session.
type KeyPair struct {
	private *ecdh.PrivateKey
	public  domain.PublicKey
}

// GenerateKeyPair returns a fresh P-256 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	return generateKeyPair(rand.Reader)
}

func generateKeyPair(r io.Reader) (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return &KeyPair{
		private: priv,
		public:  domain.PublicKey(priv.PublicKey().Bytes()),
	}, nil
}

// Public returns a copy of the uncompressed public point.
func (kp *KeyPair) Public() domain.PublicKey { return kp.public.Clone() }

// DeriveSharedKey performs ECDH between our private key and the peer's
// public point and returns the 32-byte x-coordinate.
func DeriveSharedKey(kp *KeyPair, peer domain.PublicKey) ([]byte, error) {
	if !peer.WellFormed() {
		return nil, fmt.Errorf("%w: length=%d", ErrInvalidPeerKey, len(peer))
	}
	pub, err := ecdh.P256().NewPublicKey(peer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}
	secret, err := kp.private.ECDH(pub)
	if err != nil {
		// Some providers refuse the direct agreement; fall back to
		// multiplying the point ourselves. The output is identical.
		scalar := kp.private.Bytes()
		defer memzero.Zero(scalar)
		return deriveBits(scalar, peer)
	}
	return secret, nil
}

// deriveBits computes the ECDH x-coordinate by affine scalar multiplication.
func deriveBits(scalar []byte, peer domain.PublicKey) ([]byte, error) {
	if !peer.WellFormed() {
		return nil, fmt.Errorf("%w: length=%d", ErrInvalidPeerKey, len(peer))
	}
	curve := elliptic.P256()
	x, y := elliptic.Unmarshal(curve, peer)
	if x == nil {
		return nil, fmt.Errorf("%w: point not on curve", ErrInvalidPeerKey)
	}
	sx, _ := curve.ScalarMult(x, y, scalar)
	if sx.Sign() == 0 {
		return nil, fmt.Errorf("%w: degenerate shared point", ErrInvalidPeerKey)
	}
	out := make([]byte, SharedKeySize)
	sx.FillBytes(out)
	return out, nil
}
