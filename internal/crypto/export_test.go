package crypto

import "cipherchat/internal/domain"

// DeriveBits exposes the fallback derivation path to tests.
func DeriveBits(kp *KeyPair, peer domain.PublicKey) ([]byte, error) {
	return deriveBits(kp.private.Bytes(), peer)
}

// EqualSteps runs the tag comparison and reports how many bytes it touched.
func EqualSteps(a, b []byte) (bool, int) {
	var steps int
	ok := equal(a, b, &steps)
	return ok, steps
}

var (
	Pad   = pad
	Unpad = unpad
)
