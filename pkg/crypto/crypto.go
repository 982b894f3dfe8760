// Package crypto provides the cryptographic primitives for the knot vault.
//
// This package implements Argon2id password hashing, XChaCha20-Poly1305
// envelope encryption and BIP39 recovery phrases.
//
// # Security Features
//
//   - Argon2id key derivation (64MB memory, 3 iterations, 4 threads)
//   - XChaCha20-Poly1305 authenticated encryption with 24-byte random nonces
//   - Self-describing envelope format: version || nonce || ciphertext || tag
//   - 12-word recovery phrases stretched with HKDF-SHA256
//   - Owned key buffers that are wiped on Wipe and on garbage collection
//
// # Example Usage
//
//	// Derive a key-encrypting key from a password
//	salt, _ := crypto.GenerateSalt()
//	kek, err := crypto.DeriveKey([]byte("password"), salt)
//	defer kek.Wipe()
//
//	// Wrap a data key
//	dek, _ := crypto.GenerateKey()
//	wrapped, err := crypto.Encrypt(dek.Bytes(), kek)
//
//	// Unwrap it again
//	plain, err := crypto.Decrypt(wrapped, kek)
//	dek2, err := crypto.KeyFromBytes(plain)
package crypto

import (
	"errors"
	"runtime"
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates key material is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidSaltLength indicates the salt is not 32 bytes.
	ErrInvalidSaltLength = errors.New("crypto: invalid salt length, must be 32 bytes")

	// ErrDerivationFailed indicates key derivation did not produce a usable key.
	ErrDerivationFailed = errors.New("crypto: key derivation failed")

	// ErrEncryptionFailed indicates the AEAD could not seal the payload.
	ErrEncryptionFailed = errors.New("crypto: encryption failed")

	// ErrDecryptionFailed indicates decryption or authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrInvalidFormat indicates the envelope is shorter than version + nonce + tag.
	ErrInvalidFormat = errors.New("crypto: invalid ciphertext format")

	// ErrUnsupportedVersion indicates the envelope version byte is unknown.
	ErrUnsupportedVersion = errors.New("crypto: unsupported envelope version")

	// ErrInvalidPhrase indicates a recovery phrase is malformed or fails its checksum.
	ErrInvalidPhrase = errors.New("crypto: invalid recovery phrase")

	// ErrKeyWiped indicates a key was used after Wipe.
	ErrKeyWiped = errors.New("crypto: key has been wiped")
)

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// b is still "in use" after the loop, so the stores stay.
	runtime.KeepAlive(b)
}
