package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for deriving a sealing key from a passphrase.
const (
	sealSaltSize = 16
	sealKeySize  = 32
	sealTime     = 3
	sealMemory   = 64 * 1024
	sealThreads  = 4
)

// sealMagic prefixes every sealed blob so plaintext records can be told apart.
var sealMagic = []byte("RHS1")

var (
	// ErrDecrypt is returned when a sealed blob cannot be opened, either
	// because the passphrase is wrong or the data was altered.
	ErrDecrypt = errors.New("cryptox: unable to open sealed data")

	// ErrNotSealed is returned by Open for data without the seal header.
	ErrNotSealed = errors.New("cryptox: data is not sealed")
)

// deriveSealKey derives an AES-256 key from passphrase and salt using Argon2id.
func deriveSealKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, sealTime, sealMemory, sealThreads, sealKeySize)
}

// Seal encrypts plaintext with a key derived from passphrase.
// Output format: [4-byte magic][16-byte salt][12-byte nonce][AES-256-GCM ciphertext]
func Seal(passphrase string, plaintext []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("cryptox: empty passphrase")
	}

	salt := make([]byte, sealSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(deriveSealKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(sealMagic)+len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, sealMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, sealMagic), nil
}

// Open reverses Seal.
func Open(passphrase string, sealed []byte) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, ErrNotSealed
	}
	rest := sealed[len(sealMagic):]
	if len(rest) < sealSaltSize {
		return nil, ErrDecrypt
	}
	salt, rest := rest[:sealSaltSize], rest[sealSaltSize:]

	gcm, err := newGCM(deriveSealKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	if len(rest) < gcm.NonceSize() {
		return nil, ErrDecrypt
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, sealMagic)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// IsSealed reports whether data starts with the seal header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealMagic)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
