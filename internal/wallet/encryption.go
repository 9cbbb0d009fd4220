package wallet

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Seed encryption constants. The master seed is sealed with Argon2id +
// XChaCha20-Poly1305.
//
// Sealed format: salt(32) | nonce(24) | ciphertext
const (
	SaltSize = 32

	argonIterations  = 3
	argonMemoryKiB   = 64 * 1024
	argonParallelism = 4
)

// deriveKey uses Argon2id to derive a 32-byte encryption key from passphrase and salt.
func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(
		passphrase,
		salt,
		argonIterations,
		argonMemoryKiB,
		argonParallelism,
		chacha20poly1305.KeySize,
	)
}

// SealSeed encrypts a master seed with a passphrase.
func SealSeed(seed, passphrase []byte) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, seed, nil)

	out := make([]byte, 0, SaltSize+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	// Zero the derived key.
	for i := range key {
		key[i] = 0
	}

	return out, nil
}

// OpenSeed decrypts a seed sealed by SealSeed with the given passphrase.
func OpenSeed(sealed, passphrase []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	minSize := SaltSize + nonceSize + chacha20poly1305.Overhead
	if len(sealed) < minSize {
		return nil, fmt.Errorf("sealed seed too short: %d bytes, need at least %d", len(sealed), minSize)
	}

	salt := sealed[:SaltSize]
	nonce := sealed[SaltSize : SaltSize+nonceSize]
	ciphertext := sealed[SaltSize+nonceSize:]

	key := deriveKey(passphrase, salt)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		for i := range key {
			key[i] = 0
		}
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	seed, err := aead.Open(nil, nonce, ciphertext, nil)

	for i := range key {
		key[i] = 0
	}

	if err != nil {
		return nil, fmt.Errorf("decrypt seed: %w", err)
	}

	return seed, nil
}
