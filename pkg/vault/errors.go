package vault

import (
	"errors"
	"fmt"

	"github.com/forest6511/knot/pkg/crypto"
	"github.com/forest6511/knot/pkg/lockout"
	"github.com/forest6511/knot/pkg/store"
)

// Errors
var (
	ErrVaultAlreadyExists    = errors.New("vault: vault already exists at this path")
	ErrVaultNotFound         = errors.New("vault: vault not found at this path")
	ErrVaultLocked           = errors.New("vault: vault is locked")
	ErrVaultAlreadyUnlocked  = errors.New("vault: vault is already unlocked")
	ErrVaultCorrupted        = errors.New("vault: vault is corrupted")
	ErrInvalidPassword       = errors.New("vault: invalid master password")
	ErrInvalidRecoveryPhrase = errors.New("vault: invalid recovery phrase")
	ErrTooManyAttempts       = errors.New("vault: too many failed attempts")
	ErrRecoveryNotConfigured = errors.New("vault: recovery phrase not set up")
	ErrKeyMismatch           = errors.New("vault: key does not open the store")
	ErrPasswordTooShort      = errors.New("vault: password must be at least 8 characters")
	ErrInsufficientDisk      = errors.New("vault: insufficient disk space")
)

// Kind classifies an error for callers that branch on the failure class
// instead of the message.
type Kind int

const (
	KindNone Kind = iota
	// KindValidation is bad caller input. Never retried, never rate-limited.
	KindValidation
	// KindAuthentication is a wrong credential or a key that does not open the store.
	KindAuthentication
	// KindCorruption is on-disk state that cannot be read without the original credential.
	KindCorruption
	// KindIO is a file system failure on a primary artifact.
	KindIO
	// KindState is an operation invalid in the current lifecycle state.
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindCorruption:
		return "corruption"
	case KindIO:
		return "io"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// KindOf returns the class of err. Unclassified errors are KindIO.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var authErr *AuthError
	switch {
	case errors.As(err, &authErr),
		errors.Is(err, ErrKeyMismatch):
		return KindAuthentication

	case errors.Is(err, ErrPasswordTooShort):
		return KindValidation

	case errors.Is(err, ErrVaultCorrupted),
		errors.Is(err, crypto.ErrInvalidFormat),
		errors.Is(err, crypto.ErrUnsupportedVersion),
		errors.Is(err, crypto.ErrInvalidKeyLength),
		errors.Is(err, crypto.ErrInvalidSaltLength),
		errors.Is(err, lockout.ErrCorruptRecord),
		errors.Is(err, store.ErrCorrupted):
		return KindCorruption

	case errors.Is(err, ErrVaultAlreadyExists),
		errors.Is(err, ErrVaultNotFound),
		errors.Is(err, ErrVaultLocked),
		errors.Is(err, ErrVaultAlreadyUnlocked),
		errors.Is(err, ErrRecoveryNotConfigured):
		return KindState
	}

	return KindIO
}

// AuthError is a soft authentication failure. Exactly one of
// RemainingAttempts and LockoutSeconds is meaningful: LockoutSeconds > 0
// means attempts are refused until the cooldown ends.
type AuthError struct {
	Op                string // "unlock", "change_password" or "recover"
	Err               error  // ErrInvalidPassword, ErrInvalidRecoveryPhrase or ErrTooManyAttempts
	RemainingAttempts int
	LockoutSeconds    int64
}

func (e *AuthError) Error() string {
	if e.LockoutSeconds > 0 {
		return fmt.Sprintf("%s: %v: retry in %ds", e.Op, e.Err, e.LockoutSeconds)
	}
	return fmt.Sprintf("%s: %v: %d attempts remaining", e.Op, e.Err, e.RemainingAttempts)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// LockedOut reports whether the failure is an active cooldown.
func (e *AuthError) LockedOut() bool {
	return e.LockoutSeconds > 0
}

// corrupt wraps err so that it classifies as KindCorruption.
func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrVaultCorrupted, fmt.Sprintf(format, args...))
}
