package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Changing any of them makes existing vaults
// unreadable, so a new set needs a new envelope FormatVersion and a
// migration path.
const (
	// Argon2Memory is the memory cost in KiB (64MB).
	Argon2Memory = 64 * 1024

	// Argon2Time is the number of iterations.
	Argon2Time = 3

	// Argon2Threads is the degree of parallelism.
	Argon2Threads = 4

	// KeyLength is the length of DEKs and KEKs in bytes (256 bits).
	KeyLength = 32

	// SaltLength is the length of the password salt in bytes.
	SaltLength = 32
)

// Key is an owned 32-byte symmetric key. The backing array is never
// shared with callers except through Bytes, and Wipe zeroes it. Keys that
// are dropped without Wipe are zeroed by a finalizer.
type Key struct {
	b     *[KeyLength]byte
	wiped bool
}

func newKey() *Key {
	k := &Key{b: new([KeyLength]byte)}
	runtime.SetFinalizer(k, (*Key).Wipe)
	return k
}

// GenerateKey returns a new random key, used for the database key (DEK).
func GenerateKey() (*Key, error) {
	k := newKey()
	if _, err := rand.Read(k.b[:]); err != nil {
		k.Wipe()
		return nil, fmt.Errorf("crypto: failed to generate key: %w", err)
	}
	return k, nil
}

// KeyFromBytes copies b into a new Key and wipes b.
// b must be exactly KeyLength bytes.
func KeyFromBytes(b []byte) (*Key, error) {
	defer SecureWipe(b)
	if len(b) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	k := newKey()
	copy(k.b[:], b)
	return k, nil
}

// Bytes returns the key material. The slice aliases the key and becomes
// all zeros after Wipe; callers must not retain it.
func (k *Key) Bytes() []byte {
	return k.b[:]
}

// Clone returns an independent copy of k.
func (k *Key) Clone() *Key {
	c := newKey()
	copy(c.b[:], k.b[:])
	c.wiped = k.wiped
	return c
}

// Equal reports whether k and other hold the same bytes, in constant time.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return false
	}
	return subtle.ConstantTimeCompare(k.b[:], other.b[:]) == 1
}

// Wipe zeroes the key. It is safe to call more than once.
func (k *Key) Wipe() {
	if k == nil || k.b == nil {
		return
	}
	SecureWipe(k.b[:])
	k.wiped = true
}

// IsWiped reports whether Wipe has been called.
func (k *Key) IsWiped() bool {
	return k == nil || k.wiped
}

// GenerateSalt returns SaltLength bytes from a cryptographically secure RNG.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives a 256-bit key-encrypting key from a password using
// Argon2id with the fixed parameters above.
//
// The derivation is deterministic: the same password and salt always
// produce the same key. It takes tens to hundreds of milliseconds and
// cannot be cancelled.
func DeriveKey(password, salt []byte) (*Key, error) {
	if len(salt) != SaltLength {
		return nil, ErrInvalidSaltLength
	}

	out := argon2.IDKey(password, salt, Argon2Time, Argon2Memory, Argon2Threads, KeyLength)
	if len(out) != KeyLength {
		SecureWipe(out)
		return nil, ErrDerivationFailed
	}
	return KeyFromBytes(out)
}
