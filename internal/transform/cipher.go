package transform

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// hkdfInfo binds derived keys to the artifact encryption use case.
	hkdfInfo = "marka-backup-artifact-v1"

	saltSize     = 16
	gcmNonceSize = 12
	aesKeySize   = 32
)

// deriveKey stretches the configured secret into an AES-256 key. The salt
// is random per artifact so the same secret never yields the same key twice.
func deriveKey(secret, salt []byte) ([]byte, error) {
	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func newGCM(secret, salt []byte) (cipher.AEAD, error) {
	key, err := deriveKey(secret, salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// seal returns salt || nonce || ciphertext+tag.
func seal(secret, aad, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	gcm, err := newGCM(secret, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+gcmNonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, aad), nil
}

func open(secret, aad, sealed []byte) ([]byte, error) {
	if len(sealed) < saltSize+gcmNonceSize {
		return nil, fmt.Errorf("%w: encrypted payload too short", ErrFormat)
	}
	salt := sealed[:saltSize]
	nonce := sealed[saltSize : saltSize+gcmNonceSize]
	gcm, err := newGCM(secret, salt)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, sealed[saltSize+gcmNonceSize:], aad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}
