package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// IVSize is the AES-CBC IV length.
const IVSize = aes.BlockSize

// Encrypt pads plaintext with PKCS#7 and encrypts it with AES-256-CBC under
// a freshly drawn IV.
func Encrypt(key, plaintext []byte) (iv, ciphertext []byte, err error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, nil, err
	}
	iv = make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("crypto: reading iv: %w", err)
	}
	ciphertext = pad(plaintext, aes.BlockSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, ciphertext)
	return iv, ciphertext, nil
}

// Decrypt reverses Encrypt. Callers must have verified the tag first; see
// Open.
func Decrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != IVSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrDecryption
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	pt, ok := unpad(out, aes.BlockSize)
	if !ok {
		return nil, ErrDecryption
	}
	return pt, nil
}

func newBlock(key []byte) (cipher.Block, error) {
	if len(key) != SharedKeySize {
		return nil, ErrInvalidKeySize
	}
	return aes.NewCipher(key)
}

// pad returns a new slice holding b followed by PKCS#7 padding.
func pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// unpad strips PKCS#7 padding. Every padding byte is inspected.
func unpad(b []byte, blockSize int) ([]byte, bool) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	good := subtle.ConstantTimeLessOrEq(1, n) & subtle.ConstantTimeLessOrEq(n, blockSize)
	for i := 1; i <= blockSize; i++ {
		inPad := subtle.ConstantTimeLessOrEq(i, n)
		match := subtle.ConstantTimeByteEq(b[len(b)-i], byte(n))
		good &= subtle.ConstantTimeSelect(inPad, match, 1)
	}
	if good != 1 {
		return nil, false
	}
	return b[:len(b)-n], true
}
