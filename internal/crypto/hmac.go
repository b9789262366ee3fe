package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
)

// TagSize is the HMAC-SHA-256 tag length.
const TagSize = sha256.Size

// Authenticate returns HMAC-SHA-256(key, ivAndCiphertext).
func Authenticate(key, ivAndCiphertext []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(ivAndCiphertext)
	return m.Sum(nil)
}

// Verify recomputes the tag and compares it with tag in constant time.
func Verify(key, ivAndCiphertext, tag []byte) bool {
	return equal(Authenticate(key, ivAndCiphertext), tag, nil)
}

// equal compares a and b without exiting early on the first difference.
// The running time depends only on the length. steps, when non-nil, is
// incremented once per byte compared.
func equal(a, b []byte, steps *int) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
		if steps != nil {
			*steps++
		}
	}
	return subtle.ConstantTimeByteEq(v, 0) == 1
}
