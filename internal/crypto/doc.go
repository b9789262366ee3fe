// Package crypto exposes the primitives used by cipherchat sessions.
//
// Contents
//
//   - P-256 key generation and ECDH shared-key derivation (GenerateKeyPair,
//     DeriveSharedKey)
//   - AES-256-CBC with PKCS#7 padding and a fresh random IV per message
//     (Encrypt, Decrypt)
//   - HMAC-SHA-256 over IV||ciphertext with a constant-time check
//     (Authenticate, Verify)
//   - The send/receive contract built from the above (Seal, Open)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// The shared key is the raw 32-byte ECDH x-coordinate. It is used as is for
// both AES and HMAC so that browsers deriving it through WebCrypto
// (deriveKey or deriveBits) interoperate with this package.
//
// Open always authenticates before it decrypts. An HMAC mismatch and a
// padding failure both surface as ErrDecryption.
package crypto
