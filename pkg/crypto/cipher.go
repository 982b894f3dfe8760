package crypto

import (
	"crypto/rand"
	"fmt"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// Envelope layout:
//
//	+---------------------+----------------+
//	| version (1 byte)    | 0x01           |
//	| nonce (24 bytes)    | random         |
//	| ciphertext (var)    | encrypted data |
//	| tag (16 bytes)      | Poly1305       |
//	+---------------------+----------------+
const (
	// FormatVersion is the only envelope version this package reads or writes.
	FormatVersion byte = 0x01

	// NonceLength is the XChaCha20-Poly1305 nonce size.
	NonceLength = chacha20poly1305.NonceSizeX

	// TagLength is the Poly1305 authentication tag size.
	TagLength = chacha20poly1305.Overhead

	// Overhead is the number of bytes Encrypt adds to the plaintext.
	Overhead = 1 + NonceLength + TagLength
)

// Encrypt seals plaintext under key with XChaCha20-Poly1305.
//
// A fresh random nonce is drawn for every call, so encrypting the same
// plaintext twice yields different envelopes.
func Encrypt(plaintext []byte, key *Key) ([]byte, error) {
	if key.IsWiped() {
		return nil, ErrKeyWiped
	}

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	out := make([]byte, 1+NonceLength, Overhead+len(plaintext))
	out[0] = FormatVersion
	nonce := out[1 : 1+NonceLength]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext+tag after version||nonce.
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens an envelope produced by Encrypt.
//
// The length and version are checked before any authentication. A wrong
// key or any modified byte results in ErrDecryptionFailed and no plaintext.
func Decrypt(blob []byte, key *Key) ([]byte, error) {
	if key.IsWiped() {
		return nil, ErrKeyWiped
	}
	if len(blob) < Overhead {
		return nil, ErrInvalidFormat
	}
	if v := blob[0]; v != FormatVersion {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedVersion, v)
	}

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	nonce := blob[1 : 1+NonceLength]
	plaintext, err := aead.Open(nil, nonce, blob[1+NonceLength:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// WrapKey encrypts key material under kek.
func WrapKey(dek, kek *Key) ([]byte, error) {
	if dek.IsWiped() {
		return nil, ErrKeyWiped
	}
	wrapped, err := Encrypt(dek.Bytes(), kek)
	runtime.KeepAlive(dek)
	return wrapped, err
}

// UnwrapKey decrypts a wrapped key and returns it as an owned Key.
func UnwrapKey(wrapped []byte, kek *Key) (*Key, error) {
	plain, err := Decrypt(wrapped, kek)
	if err != nil {
		return nil, err
	}
	k, err := KeyFromBytes(plain)
	if err != nil {
		return nil, fmt.Errorf("crypto: unwrapped key: %w", err)
	}
	return k, nil
}
