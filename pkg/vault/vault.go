// Package vault manages the lifecycle of an encrypted notes vault.
//
// A vault directory holds a password salt, the database encryption key
// (DEK) wrapped under a password-derived key, optionally a second wrapping
// under a recovery-phrase key, a lockout record and the encrypted store.
// The DEK is generated once and never changes; password changes and
// recovery only replace its wrapping.
//
// States:
//
//	NoVault  --Setup-->   Unlocked
//	Locked   --Unlock-->  Unlocked   (refused while the lockout guard is in cooldown)
//	Locked   --Recover--> Unlocked
//	Unlocked --Lock-->    Locked
//
// Every lifecycle operation holds a single mutex for its whole duration,
// including password hashing, and should not be called from a goroutine
// that must stay responsive.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/forest6511/knot/pkg/audit"
	"github.com/forest6511/knot/pkg/crypto"
	"github.com/forest6511/knot/pkg/lockout"
	"github.com/forest6511/knot/pkg/store"
	"github.com/rs/zerolog"
)

// State is the observable lifecycle state of a vault.
type State int

const (
	StateNoVault State = iota
	StateLocked
	StateUnlocked
	StateCorrupted
)

func (s State) String() string {
	switch s {
	case StateNoVault:
		return "no vault"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	case StateCorrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

// StoreHandle is an open encrypted store. The vault closes it on Lock.
type StoreHandle interface {
	Close() error
}

// StoreOpener opens the encrypted store keyed by the DEK. It is called
// only after the DEK has been unwrapped; any error means the key and the
// store do not belong together.
type StoreOpener interface {
	OpenStore(path string, dek *crypto.Key) (StoreHandle, error)
}

// StoreOpenerFunc adapts a function to StoreOpener.
type StoreOpenerFunc func(path string, dek *crypto.Key) (StoreHandle, error)

// OpenStore calls f.
func (f StoreOpenerFunc) OpenStore(path string, dek *crypto.Key) (StoreHandle, error) {
	return f(path, dek)
}

func openSQLiteStore(path string, dek *crypto.Key) (StoreHandle, error) {
	s, err := store.Open(path, dek)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SetupResult is returned by Setup.
type SetupResult struct {
	// RecoveryPhrase is empty unless recovery was requested. It is shown
	// to the user once and never stored.
	RecoveryPhrase string
}

// session is present only while unlocked
type session struct {
	dek   *crypto.Key
	store StoreHandle
}

// Vault is safe for concurrent use.
type Vault struct {
	path string

	mu    sync.Mutex
	sess  *session
	guard *lockout.Guard

	opener   StoreOpener
	audit    *audit.Logger
	auditSet bool
	source   string
	log      zerolog.Logger
	now      func() time.Time

	autoLock time.Duration
	timer    *time.Timer
	timerGen uint64
}

// Option configures a Vault.
type Option func(*Vault)

// WithStoreOpener replaces the SQLite store.
func WithStoreOpener(o StoreOpener) Option {
	return func(v *Vault) {
		v.opener = o
	}
}

// WithClock replaces time.Now for lockout timing and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		v.now = now
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option {
	return func(v *Vault) {
		v.log = l
	}
}

// WithAudit replaces the audit logger. nil disables auditing.
func WithAudit(l *audit.Logger) Option {
	return func(v *Vault) {
		v.audit = l
		v.auditSet = true
	}
}

// WithAuditSource sets the source recorded on audit events.
func WithAuditSource(source string) Option {
	return func(v *Vault) {
		v.source = source
	}
}

// WithAutoLock locks the vault after d without Touch. Zero disables it.
func WithAutoLock(d time.Duration) Option {
	return func(v *Vault) {
		v.autoLock = d
	}
}

// New returns a locked Vault for the directory dir. Nothing is read or
// written until the first operation.
func New(dir string, opts ...Option) *Vault {
	v := &Vault{
		path:   dir,
		opener: StoreOpenerFunc(openSQLiteStore),
		source: audit.SourceAPI,
		log:    zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	if !v.auditSet {
		v.audit = audit.NewLogger(filepath.Join(dir, AuditDirName),
			audit.WithLogger(v.log), audit.WithClock(v.now))
	}
	v.guard = lockout.New(v.file(LockoutFileName),
		lockout.WithClock(v.now), lockout.WithLogger(v.log))
	return v
}

// Path returns the vault path
func (v *Vault) Path() string {
	return v.path
}

// State reports the current lifecycle state. A locked vault in cooldown
// is StateLocked; see LockoutStatus.
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.sess != nil {
		return StateUnlocked
	}
	ok, err := v.exists()
	switch {
	case err != nil:
		return StateCorrupted
	case !ok:
		return StateNoVault
	default:
		return StateLocked
	}
}

// IsUnlocked reports whether a session is open.
func (v *Vault) IsUnlocked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sess != nil
}

// Exists reports whether the salt, wrapped DEK and store are all present.
// Some but not all of them present returns ErrVaultCorrupted.
func (v *Vault) Exists() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.exists()
}

func (v *Vault) exists() (bool, error) {
	if err := v.recoverRekey(); err != nil {
		return false, err
	}

	var missing []string
	for _, name := range []string{SaltFileName, DEKFileName, StoreFileName} {
		ok, err := fileExists(v.file(name))
		if err != nil {
			return false, err
		}
		if !ok {
			missing = append(missing, name)
		}
	}
	recovery, err := fileExists(v.file(RecoveryDEKFileName))
	if err != nil {
		return false, err
	}

	switch {
	case len(missing) == 0:
		return true, nil
	case len(missing) == 3 && !recovery:
		return false, nil
	default:
		return false, corrupt("partial vault, missing %s", strings.Join(missing, ", "))
	}
}

func (v *Vault) requireVault() error {
	ok, err := v.exists()
	if err != nil {
		return err
	}
	if !ok {
		return ErrVaultNotFound
	}
	return nil
}

// HasRecovery reports whether a recovery wrapping exists.
func (v *Vault) HasRecovery() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return fileExists(v.file(RecoveryDEKFileName))
}

// Setup creates a new vault protected by password and leaves it unlocked.
// With withRecovery it also creates a recovery phrase, returned in the
// result. Setup never overwrites an existing artifact.
func (v *Vault) Setup(password string, withRecovery bool) (*SetupResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.sess != nil {
		return nil, ErrVaultAlreadyUnlocked
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if err := v.recoverRekey(); err != nil {
		return nil, err
	}
	for _, name := range []string{SaltFileName, DEKFileName, RecoveryDEKFileName, StoreFileName} {
		ok, err := fileExists(v.file(name))
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, ErrVaultAlreadyExists
		}
	}

	// Every derivation and wrap happens before the first write
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}
	pw := []byte(password)
	kek, err := crypto.DeriveKey(pw, salt)
	crypto.SecureWipe(pw)
	if err != nil {
		return nil, err
	}
	defer kek.Wipe()

	dek, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	wrapped, err := crypto.WrapKey(dek, kek)
	if err != nil {
		dek.Wipe()
		return nil, err
	}

	result := &SetupResult{}
	names := []string{SaltFileName, DEKFileName}
	files := map[string][]byte{
		SaltFileName: salt,
		DEKFileName:  wrapped,
	}
	if withRecovery {
		phrase, recoveryWrapped, err := wrapForRecovery(dek)
		if err != nil {
			dek.Wipe()
			return nil, err
		}
		result.RecoveryPhrase = phrase
		names = append(names, RecoveryDEKFileName)
		files[RecoveryDEKFileName] = recoveryWrapped
	}

	if err := v.checkDiskSpaceForWrite(1024 * 1024); err != nil {
		dek.Wipe()
		return nil, err
	}
	if err := os.MkdirAll(v.path, DirMode); err != nil {
		dek.Wipe()
		return nil, fmt.Errorf("vault: failed to create vault directory: %w", err)
	}

	for _, name := range names {
		if err := writeFileAtomic(v.file(name), files[name]); err != nil {
			v.removeArtifacts()
			dek.Wipe()
			return nil, err
		}
	}

	st, err := v.opener.OpenStore(v.file(StoreFileName), dek)
	if err != nil {
		v.removeArtifacts()
		dek.Wipe()
		return nil, fmt.Errorf("vault: failed to create store: %w", err)
	}

	// A record left from a previous vault in this directory must not lock the new one
	if err := v.guard.Load(); err != nil {
		v.log.Warn().Err(err).Msg("Discarding lockout record from previous vault")
	}
	v.guard.RecordSuccess()

	v.openSession(dek, st)
	v.record(audit.OpVaultSetup, audit.ResultSuccess, nil, map[string]string{
		"recovery": strconv.FormatBool(withRecovery),
	})
	v.log.Info().Str("path", v.path).Bool("recovery", withRecovery).Msg("Vault created")
	return result, nil
}

// wrapForRecovery creates a recovery phrase and wraps dek under its key.
func wrapForRecovery(dek *crypto.Key) (string, []byte, error) {
	phrase, err := crypto.GenerateRecoveryPhrase()
	if err != nil {
		return "", nil, err
	}
	kek, err := crypto.PhraseToKEK(phrase)
	if err != nil {
		return "", nil, err
	}
	defer kek.Wipe()

	wrapped, err := crypto.WrapKey(dek, kek)
	if err != nil {
		return "", nil, err
	}
	return phrase, wrapped, nil
}

// removeArtifacts undoes a failed Setup.
func (v *Vault) removeArtifacts() {
	for _, name := range []string{
		SaltFileName, DEKFileName, RecoveryDEKFileName,
		StoreFileName, StoreFileName + "-journal", StoreFileName + "-wal", StoreFileName + "-shm",
	} {
		if err := os.Remove(v.file(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			v.log.Warn().Err(err).Str("file", name).Msg("Failed to remove partial vault file")
		}
	}
}

// Unlock derives the password key, unwraps the DEK and opens the store.
//
// While the lockout guard is in cooldown Unlock returns an *AuthError
// without deriving anything. A wrong password is counted and returns an
// *AuthError with the remaining attempts, or the lockout duration when
// this failure reached the threshold.
func (v *Vault) Unlock(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.sess != nil {
		return ErrVaultAlreadyUnlocked
	}
	if err := v.requireVault(); err != nil {
		return err
	}
	if err := v.guard.Load(); err != nil {
		return err
	}
	if remaining, locked := v.guard.Check(); locked {
		return v.refuse("unlock", remaining)
	}

	salt, err := v.readSalt()
	if err != nil {
		return err
	}
	wrapped, err := v.readWrapped(DEKFileName)
	if err != nil {
		return v.artifactError(DEKFileName, err)
	}

	pw := []byte(password)
	kek, err := crypto.DeriveKey(pw, salt)
	crypto.SecureWipe(pw)
	if err != nil {
		return err
	}
	defer kek.Wipe()

	dek, err := crypto.UnwrapKey(wrapped, kek)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return v.authFailure("unlock", ErrInvalidPassword, audit.OpVaultUnlockFailed)
		}
		return fmt.Errorf("%w: %s: %w", ErrVaultCorrupted, DEKFileName, err)
	}

	v.guard.RecordSuccess()

	st, err := v.opener.OpenStore(v.file(StoreFileName), dek)
	if err != nil {
		dek.Wipe()
		v.record(audit.OpVaultUnlockFailed, audit.ResultError,
			&audit.ErrorInfo{Code: "KEY_MISMATCH", Message: "store rejected key"}, nil)
		return fmt.Errorf("%w: %w", ErrKeyMismatch, err)
	}

	v.openSession(dek, st)
	v.record(audit.OpVaultUnlock, audit.ResultSuccess, nil, nil)
	v.checkAndWarnPermissions()
	return nil
}

// Lock wipes the DEK and closes the store. It always succeeds and is a
// no-op when already locked.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closeSession("manual")
}

// ChangePassword re-verifies current against the wrapped DEK on disk and
// rewraps the same DEK under next with a fresh salt. Requires Unlocked.
// A wrong current password counts toward the lockout.
func (v *Vault) ChangePassword(current, next string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.sess == nil {
		return ErrVaultLocked
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	if err := v.recoverRekey(); err != nil {
		return err
	}
	if err := v.guard.Load(); err != nil {
		return err
	}
	if remaining, locked := v.guard.Check(); locked {
		return v.refuse("change_password", remaining)
	}

	salt, err := v.readSalt()
	if err != nil {
		return err
	}
	wrapped, err := v.readWrapped(DEKFileName)
	if err != nil {
		return v.artifactError(DEKFileName, err)
	}

	pw := []byte(current)
	kek, err := crypto.DeriveKey(pw, salt)
	crypto.SecureWipe(pw)
	if err != nil {
		return err
	}
	defer kek.Wipe()

	onDisk, err := crypto.UnwrapKey(wrapped, kek)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return v.authFailure("change_password", ErrInvalidPassword, audit.OpVaultPasswordChangeFailed)
		}
		return fmt.Errorf("%w: %s: %w", ErrVaultCorrupted, DEKFileName, err)
	}
	match := onDisk.Equal(v.sess.dek)
	onDisk.Wipe()
	if !match {
		return corrupt("%s does not hold the unlocked key", DEKFileName)
	}

	v.guard.RecordSuccess()

	newSalt, newWrapped, err := wrapForPassword(v.sess.dek, next)
	if err != nil {
		return err
	}
	if err := v.checkDiskSpaceForWrite(1024); err != nil {
		return err
	}
	if err := v.rekey(map[string][]byte{
		SaltFileName: newSalt,
		DEKFileName:  newWrapped,
	}); err != nil {
		return err
	}

	v.record(audit.OpVaultPasswordChange, audit.ResultSuccess, nil, nil)
	v.startAutoLock()
	return nil
}

// wrapForPassword derives a key for password under a new salt and wraps dek with it.
func wrapForPassword(dek *crypto.Key, password string) (salt, wrapped []byte, err error) {
	salt, err = crypto.GenerateSalt()
	if err != nil {
		return nil, nil, err
	}
	pw := []byte(password)
	kek, err := crypto.DeriveKey(pw, salt)
	crypto.SecureWipe(pw)
	if err != nil {
		return nil, nil, err
	}
	defer kek.Wipe()

	wrapped, err = crypto.WrapKey(dek, kek)
	if err != nil {
		return nil, nil, err
	}
	return salt, wrapped, nil
}

// Recover unwraps the DEK with the recovery phrase, sets newPassword as
// the master password and leaves the vault unlocked. It shares the lockout
// guard with Unlock; a wrong or malformed phrase counts as a failure.
func (v *Vault) Recover(phrase, newPassword string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.sess != nil {
		return ErrVaultAlreadyUnlocked
	}
	if err := v.requireVault(); err != nil {
		return err
	}
	if err := v.guard.Load(); err != nil {
		return err
	}
	if remaining, locked := v.guard.Check(); locked {
		return v.refuse("recover", remaining)
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	ok, err := fileExists(v.file(RecoveryDEKFileName))
	if err != nil {
		return err
	}
	if !ok {
		return ErrRecoveryNotConfigured
	}
	wrapped, err := v.readWrapped(RecoveryDEKFileName)
	if err != nil {
		return v.artifactError(RecoveryDEKFileName, err)
	}

	kek, err := crypto.PhraseToKEK(phrase)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidPhrase) {
			return v.authFailure("recover", ErrInvalidRecoveryPhrase, audit.OpVaultRecoverFailed)
		}
		return err
	}
	defer kek.Wipe()

	dek, err := crypto.UnwrapKey(wrapped, kek)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return v.authFailure("recover", ErrInvalidRecoveryPhrase, audit.OpVaultRecoverFailed)
		}
		return fmt.Errorf("%w: %s: %w", ErrVaultCorrupted, RecoveryDEKFileName, err)
	}

	v.guard.RecordSuccess()

	newSalt, newWrapped, err := wrapForPassword(dek, newPassword)
	if err != nil {
		dek.Wipe()
		return err
	}

	st, err := v.opener.OpenStore(v.file(StoreFileName), dek)
	if err != nil {
		dek.Wipe()
		v.record(audit.OpVaultRecoverFailed, audit.ResultError,
			&audit.ErrorInfo{Code: "KEY_MISMATCH", Message: "store rejected key"}, nil)
		return fmt.Errorf("%w: %w", ErrKeyMismatch, err)
	}

	if err := v.checkDiskSpaceForWrite(1024); err != nil {
		st.Close()
		dek.Wipe()
		return err
	}
	if err := v.rekey(map[string][]byte{
		SaltFileName: newSalt,
		DEKFileName:  newWrapped,
	}); err != nil {
		st.Close()
		dek.Wipe()
		return err
	}

	v.openSession(dek, st)
	v.record(audit.OpVaultRecover, audit.ResultSuccess, nil, nil)
	v.log.Info().Str("path", v.path).Msg("Vault recovered with recovery phrase")
	return nil
}

// ResetRecoveryPhrase replaces the recovery wrapping with one under a new
// phrase and returns that phrase. The previous phrase stops working.
// Requires Unlocked.
func (v *Vault) ResetRecoveryPhrase() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.sess == nil {
		return "", ErrVaultLocked
	}

	phrase, wrapped, err := wrapForRecovery(v.sess.dek)
	if err != nil {
		return "", err
	}
	if err := v.checkDiskSpaceForWrite(1024); err != nil {
		return "", err
	}
	if err := writeFileAtomic(v.file(RecoveryDEKFileName), wrapped); err != nil {
		return "", err
	}

	v.record(audit.OpVaultRecoveryReset, audit.ResultSuccess, nil, nil)
	v.startAutoLock()
	return phrase, nil
}

// LockoutStatus returns the remaining cooldown and whether attempts are
// currently refused. Meant for display before prompting for a password.
func (v *Vault) LockoutStatus() (time.Duration, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.guard.Load(); err != nil {
		v.log.Warn().Err(err).Msg("Failed to load lockout record")
	}
	return v.guard.Check()
}

// RemainingAttempts returns how many failures are left before a lockout.
func (v *Vault) RemainingAttempts() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.guard.Load(); err != nil {
		v.log.Warn().Err(err).Msg("Failed to load lockout record")
	}
	return v.guard.Status().RemainingAttempts()
}

// Store returns the open store. Requires Unlocked.
func (v *Vault) Store() (StoreHandle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.sess == nil {
		return nil, ErrVaultLocked
	}
	return v.sess.store, nil
}

// AuditLogger returns the audit logger, or nil when auditing is disabled.
func (v *Vault) AuditLogger() *audit.Logger {
	return v.audit
}

// AuditVerify verifies the audit log chain. Requires Unlocked.
func (v *Vault) AuditVerify() (*audit.VerifyResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.sess == nil {
		return nil, ErrVaultLocked
	}
	if v.audit == nil {
		return nil, errors.New("vault: audit logging is disabled")
	}
	return v.audit.Verify()
}

func (v *Vault) openSession(dek *crypto.Key, st StoreHandle) {
	v.sess = &session{dek: dek, store: st}
	if v.audit != nil {
		if err := v.audit.SetHMACKey(dek); err != nil {
			v.log.Warn().Err(err).Msg("Failed to initialize audit logger")
		}
	}
	v.startAutoLock()
}

// closeSession tears the session down. Caller holds v.mu.
func (v *Vault) closeSession(reason string) {
	v.stopAutoLock()
	if v.sess == nil {
		return
	}

	v.record(audit.OpVaultLock, audit.ResultSuccess, nil, map[string]string{"reason": reason})
	if v.audit != nil {
		v.audit.ClearHMACKey()
	}
	if v.sess.store != nil {
		if err := v.sess.store.Close(); err != nil {
			v.log.Warn().Err(err).Msg("Failed to close store")
		}
	}
	v.sess.dek.Wipe()
	v.sess = nil
}

// refuse reports an active cooldown without touching key material.
func (v *Vault) refuse(op string, remaining time.Duration) error {
	secs := max(lockout.RemainingSeconds(remaining), 1)
	v.record(audit.OpVaultLockout, audit.ResultDenied, nil, map[string]string{
		"attempted": op,
		"remaining": strconv.FormatInt(secs, 10),
	})
	return &AuthError{Op: op, Err: ErrTooManyAttempts, LockoutSeconds: secs}
}

// authFailure counts a wrong credential and builds the hint for the caller.
func (v *Vault) authFailure(op string, reason error, auditOp string) error {
	st := v.guard.RecordFailure()
	v.record(auditOp, audit.ResultError, &audit.ErrorInfo{Code: "AUTH_FAILED", Message: reason.Error()},
		map[string]string{"failed_attempts": strconv.Itoa(st.FailedAttempts)})

	if st.Locked {
		secs := max(lockout.RemainingSeconds(st.Remaining), 1)
		v.record(audit.OpVaultLockout, audit.ResultDenied, nil, map[string]string{
			"remaining": strconv.FormatInt(secs, 10),
		})
		v.log.Warn().Str("op", op).Int("failed_attempts", st.FailedAttempts).Msg("Too many failed attempts, cooldown started")
		return &AuthError{Op: op, Err: reason, LockoutSeconds: secs}
	}
	return &AuthError{Op: op, Err: reason, RemainingAttempts: st.RemainingAttempts()}
}

// artifactError maps a failure reading a required key file.
func (v *Vault) artifactError(name string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return corrupt("%s missing", name)
	}
	return err
}

func (v *Vault) record(op, result string, errInfo *audit.ErrorInfo, ctx map[string]string) {
	if v.audit == nil {
		return
	}
	if err := v.audit.Log(op, v.source, result, errInfo, ctx); err != nil {
		v.log.Warn().Err(err).Str("op", op).Msg("Failed to write audit event")
	}
}

// checkAndWarnPermissions logs files readable by group or others.
// Advisory only.
func (v *Vault) checkAndWarnPermissions() {
	if runtime.GOOS == "windows" {
		return
	}

	if info, err := os.Stat(v.path); err == nil {
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			v.log.Warn().Str("perm", fmt.Sprintf("%04o", perm)).Msg("Vault directory has insecure permissions (expected 0700)")
		}
	}
	for _, name := range []string{SaltFileName, DEKFileName, RecoveryDEKFileName, StoreFileName} {
		if info, err := os.Stat(v.file(name)); err == nil {
			if perm := info.Mode().Perm(); perm&0077 != 0 {
				v.log.Warn().Str("file", name).Str("perm", fmt.Sprintf("%04o", perm)).Msg("Vault file has insecure permissions (expected 0600)")
			}
		}
	}
}
