package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/dmitrijs2005/zkshare/internal/common"
)

func newGCM(key *Key) (cipher.AEAD, error) {
	if key == nil {
		return nil, &common.PrivacyViolationError{Op: "cipher", Reason: "no key supplied"}
	}
	var aead cipher.AEAD
	err := key.use(func(b []byte) error {
		block, err := aes.NewCipher(b)
		if err != nil {
			return err
		}
		aead, err = cipher.NewGCM(block)
		return err
	})
	if err != nil {
		return nil, err
	}
	return aead, nil
}

// NewIV returns a fresh random 12-byte IV.
func NewIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating iv: %w", err)
	}
	return iv, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random IV and
// returns ciphertext with the 16-byte tag appended, and the IV. There is no
// variant that accepts an IV from the caller.
func Encrypt(plaintext []byte, key *Key) (blob, iv []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	iv, err = NewIV()
	if err != nil {
		return nil, nil, err
	}

	blob = aead.Seal(nil, iv, plaintext, nil)
	return blob, iv, nil
}

// Decrypt opens blob (ciphertext with tag) under key and iv. A wrong key,
// wrong IV or modified blob all return common.ErrAuthentication and no
// plaintext.
func Decrypt(blob []byte, key *Key, iv []byte) ([]byte, error) {
	if len(iv) != IVSize {
		return nil, common.NewValidationError("iv", "must be %d bytes, got %d", IVSize, len(iv))
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < TagSize {
		return nil, common.ErrAuthentication
	}

	plaintext, err := aead.Open(nil, iv, blob, nil)
	if err != nil {
		return nil, common.ErrAuthentication
	}
	return plaintext, nil
}
