package crypto

import "cipherchat/internal/domain"

// Seal encrypts plaintext and authenticates IV||ciphertext.
func Seal(key, plaintext []byte) (domain.SealedBox, error) {
	iv, ct, err := Encrypt(key, plaintext)
	if err != nil {
		return domain.SealedBox{}, err
	}
	return domain.SealedBox{
		IV:         iv,
		Ciphertext: ct,
		HMAC:       Authenticate(key, concat(iv, ct)),
	}, nil
}

// Open verifies the tag over IV||ciphertext and only then decrypts.
func Open(key []byte, box domain.SealedBox) ([]byte, error) {
	if len(key) != SharedKeySize {
		return nil, ErrInvalidKeySize
	}
	if len(box.IV) != IVSize || len(box.HMAC) != TagSize {
		return nil, ErrDecryption
	}
	if !Verify(key, concat(box.IV, box.Ciphertext), box.HMAC) {
		return nil, ErrDecryption
	}
	return Decrypt(key, box.IV, box.Ciphertext)
}

func concat(iv, ct []byte) []byte {
	out := make([]byte, 0, len(iv)+len(ct))
	out = append(out, iv...)
	return append(out, ct...)
}
