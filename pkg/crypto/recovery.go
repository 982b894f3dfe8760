package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/text/unicode/norm"
)

const (
	// RecoveryEntropyLength is the entropy encoded by a recovery phrase (128 bits).
	RecoveryEntropyLength = 16

	// RecoveryWordCount is the number of words in a recovery phrase.
	RecoveryWordCount = 12

	// hkdfInfoRecovery separates recovery KEKs from any other HKDF use of
	// the same entropy. Changing it orphans every recovery wrapping.
	hkdfInfoRecovery = "knot-recovery-kek-v1"
)

// GenerateRecoveryPhrase returns a new 12-word BIP39 English mnemonic
// encoding 128 bits of fresh entropy. The phrase is never stored; the user
// is its only holder.
func GenerateRecoveryPhrase() (string, error) {
	entropy := make([]byte, RecoveryEntropyLength)
	defer SecureWipe(entropy)
	if _, err := rand.Read(entropy); err != nil {
		return "", fmt.Errorf("crypto: failed to generate recovery entropy: %w", err)
	}

	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("crypto: failed to encode recovery phrase: %w", err)
	}
	return phrase, nil
}

// NormalizePhrase puts user input into canonical mnemonic form: NFKD,
// lower case, single spaces between words.
func NormalizePhrase(phrase string) string {
	fields := strings.Fields(strings.ToLower(norm.NFKD.String(phrase)))
	return strings.Join(fields, " ")
}

// PhraseToKEK validates a recovery phrase and derives the recovery
// key-encrypting key from its entropy with HKDF-SHA256.
//
// The entropy is already 128 bits, so no password hardening is applied.
// A phrase with the wrong word count, an unknown word or a bad checksum
// returns ErrInvalidPhrase before anything is derived.
func PhraseToKEK(phrase string) (*Key, error) {
	normalized := NormalizePhrase(phrase)
	if len(strings.Fields(normalized)) != RecoveryWordCount {
		return nil, ErrInvalidPhrase
	}

	entropy, err := bip39.EntropyFromMnemonic(normalized)
	if err != nil {
		return nil, ErrInvalidPhrase
	}
	defer SecureWipe(entropy)
	if len(entropy) != RecoveryEntropyLength {
		return nil, ErrInvalidPhrase
	}

	kek := make([]byte, KeyLength)
	r := hkdf.New(sha256.New, entropy, nil, []byte(hkdfInfoRecovery))
	if _, err := io.ReadFull(r, kek); err != nil {
		SecureWipe(kek)
		return nil, fmt.Errorf("%w: %v", ErrDerivationFailed, err)
	}
	return KeyFromBytes(kek)
}
