// Package audit records vault lifecycle events in an HMAC-chained log.
//
// Events are appended as JSON lines to one file per month under the audit
// directory. Each record carries the HMAC of its own content plus the HMAC
// of the previous record, so removing, reordering or editing a line breaks
// the chain. The HMAC key is derived from the vault DEK, which means the log
// can only be written and verified while the vault is unlocked; events that
// happen before that (failed unlocks, lockouts) are held in memory and
// written once the key is set.
//
// Passwords, recovery phrases and key bytes are never recorded.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/forest6511/knot/pkg/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/hkdf"
)

const (
	// MinAuditDiskSpace is the free space required before appending (1 MB).
	MinAuditDiskSpace = 1024 * 1024

	// MaxPending bounds events held while no key is set.
	MaxPending = 64

	chainStateFile = "audit.meta"
	genesisHash    = "genesis"
	hkdfInfoAudit  = "audit-log-v1"
)

// Operation types
const (
	OpVaultSetup                = "vault.setup"
	OpVaultUnlock               = "vault.unlock"
	OpVaultUnlockFailed         = "vault.unlock_failed"
	OpVaultLockout              = "vault.lockout"
	OpVaultLock                 = "vault.lock"
	OpVaultPasswordChange       = "vault.password_change"
	OpVaultPasswordChangeFailed = "vault.password_change_failed"
	OpVaultRecover              = "vault.recover"
	OpVaultRecoverFailed        = "vault.recover_failed"
	OpVaultRecoveryReset        = "vault.recovery_reset"
)

// Source identifies where the operation originated
const (
	SourceCLI = "cli"
	SourceAPI = "api"
)

// Result indicates the outcome of an operation
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// ErrKeyNotSet is returned by operations that need the HMAC key.
var ErrKeyNotSet = errors.New("audit: HMAC key not set")

// Event is a single audit log record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"` // RFC 3339, nanosecond precision

	Operation string `json:"op"`
	Actor     Actor  `json:"actor"`

	Result string     `json:"result"`
	Error  *ErrorInfo `json:"error,omitempty"`

	Context map[string]string `json:"ctx,omitempty"`

	Chain Chain `json:"chain"`
}

// Actor identifies who performed the operation.
type Actor struct {
	Source    string `json:"source"`
	SessionID string `json:"session_id"`
}

// ErrorInfo contains error details. Message must never contain secrets.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links a record to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger appends events to the audit log. It is safe for concurrent use.
type Logger struct {
	path      string
	mu        sync.Mutex
	hmacKey   []byte
	sequence  int64
	prevHash  string
	sessionID string
	pending   []Event
	dropped   int
	now       func() time.Time
	log       zerolog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Logger) {
		l.log = log
	}
}

// NewLogger creates a logger writing under path.
func NewLogger(path string, opts ...Option) *Logger {
	l := &Logger{
		path:      path,
		prevHash:  genesisHash,
		sessionID: newID(),
		now:       time.Now,
		log:       zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the audit log directory path.
func (l *Logger) Path() string {
	return l.path
}

// SetHMACKey derives the HMAC key from the DEK with HKDF, loads the chain
// state and writes any pending events.
func (l *Logger) SetHMACKey(dek *crypto.Key) error {
	if dek.IsWiped() {
		return crypto.ErrKeyWiped
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := make([]byte, 32)
	r := hkdf.New(sha256.New, dek.Bytes(), nil, []byte(hkdfInfoAudit))
	if _, err := io.ReadFull(r, key); err != nil {
		crypto.SecureWipe(key)
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	crypto.SecureWipe(l.hmacKey)
	l.hmacKey = key

	if err := l.loadChainState(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.log.Warn().Err(err).Msg("Audit chain state unreadable, rebuilding from log")
		}
		if err := l.rebuildChainState(); err != nil {
			// Keep buffering rather than restart the chain at genesis
			crypto.SecureWipe(l.hmacKey)
			l.hmacKey = nil
			return err
		}
	}

	return l.flushPending()
}

// ClearHMACKey wipes the HMAC key. Later events are buffered until the
// key is set again.
func (l *Logger) ClearHMACKey() {
	l.mu.Lock()
	defer l.mu.Unlock()

	crypto.SecureWipe(l.hmacKey)
	l.hmacKey = nil
}

// HasKey reports whether events are currently written straight to disk.
func (l *Logger) HasKey() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hmacKey != nil
}

// Pending returns the number of buffered events.
func (l *Logger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Log records an event. Without a key the event is buffered; once
// MaxPending events are waiting the oldest is dropped.
func (l *Logger) Log(op, source, result string, errInfo *ErrorInfo, ctx map[string]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	event := Event{
		Version:   1,
		ID:        newID(),
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Actor: Actor{
			Source:    source,
			SessionID: l.sessionID,
		},
		Result:  result,
		Error:   errInfo,
		Context: ctx,
	}

	if l.hmacKey == nil {
		if len(l.pending) >= MaxPending {
			l.pending = l.pending[1:]
			l.dropped++
		}
		l.pending = append(l.pending, event)
		return nil
	}

	return l.append(&event)
}

func (l *Logger) flushPending() error {
	if l.dropped > 0 {
		l.log.Warn().Int("dropped", l.dropped).Msg("Audit events dropped while vault was locked")
		l.dropped = 0
	}

	pending := l.pending
	l.pending = nil
	for i := range pending {
		if err := l.append(&pending[i]); err != nil {
			l.pending = pending[i:]
			return err
		}
	}
	return nil
}

// append chains and writes one event. Caller holds l.mu and the key is set.
func (l *Logger) append(event *Event) error {
	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := l.checkDiskSpace(); err != nil {
		return err
	}

	event.Chain.Sequence = l.sequence + 1
	event.Chain.PrevHash = l.prevHash
	event.Chain.HMAC = l.sign(event)

	if err := l.writeEvent(event); err != nil {
		return err
	}

	l.sequence = event.Chain.Sequence
	l.prevHash = event.Chain.HMAC
	return l.saveChainState()
}

func (l *Logger) sign(event *Event) string {
	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write(recordData(event))
	return hex.EncodeToString(mac.Sum(nil))
}

// recordData is the canonical byte form covered by the HMAC. It includes
// every field except the HMAC itself.
func recordData(event *Event) []byte {
	errorData := ""
	if event.Error != nil {
		errorData = event.Error.Code + "|" + event.Error.Message
	}

	var ctx strings.Builder
	keys := make([]string, 0, len(event.Context))
	for k := range event.Context {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&ctx, "%s=%s|", k, event.Context[k])
	}

	return fmt.Appendf(nil, "%d|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version,
		event.ID,
		event.Timestamp,
		event.Operation,
		event.Actor.Source,
		event.Actor.SessionID,
		event.Result,
		errorData,
		ctx.String(),
		event.Chain.Sequence,
		event.Chain.PrevHash,
	)
}

// logFileName returns the monthly file an event timestamp belongs to.
func logFileName(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		t = time.Now().UTC()
	}
	return t.UTC().Format("2006-01") + ".jsonl"
}

func (l *Logger) writeEvent(event *Event) error {
	path := filepath.Join(l.path, logFileName(event.Timestamp))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

// chainState is the persisted tail of the chain
type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, chainStateFile))
	if err != nil {
		return err
	}

	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

// rebuildChainState resumes the chain from the last record on disk. An
// empty log starts at genesis.
func (l *Logger) rebuildChainState() error {
	events, err := l.readAll()
	if err != nil {
		return fmt.Errorf("audit: failed to rebuild chain state: %w", err)
	}
	if len(events) == 0 {
		l.sequence = 0
		l.prevHash = genesisHash
		return nil
	}
	last := events[len(events)-1]
	l.sequence = last.Chain.Sequence
	l.prevHash = last.Chain.HMAC
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}

	path := filepath.Join(l.path, chainStateFile)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// newID returns a time-ordered UUIDv7 string.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// VerifyResult contains the results of chain verification
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Errors          []string `json:"errors,omitempty"`
}

// Verify checks sequence numbers, back links and HMACs across all log files.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return nil, ErrKeyNotSet
	}

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	expectedPrev := genesisHash
	var expectedSeq int64 = 1

	for i := range events {
		event := &events[i]
		result.RecordsTotal++

		if event.Chain.Sequence != expectedSeq {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"sequence gap at record %s: expected %d, got %d",
				event.ID, expectedSeq, event.Chain.Sequence))
		}
		if event.Chain.PrevHash != expectedPrev {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"chain broken at record %s", event.ID))
		}
		if !hmac.Equal([]byte(event.Chain.HMAC), []byte(l.sign(event))) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf(
				"HMAC mismatch at record %s: possible tampering", event.ID))
		} else {
			result.RecordsVerified++
		}

		expectedPrev = event.Chain.HMAC
		expectedSeq = event.Chain.Sequence + 1
	}

	if result.RecordsTotal > 0 && expectedSeq-1 != l.sequence {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf(
			"log ends at sequence %d but chain state is at %d: records may have been removed",
			expectedSeq-1, l.sequence))
	}

	return result, nil
}

// ListEvents returns the most recent events, oldest first.
// limit 0 means all; a zero since disables the time filter.
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	if !since.IsZero() {
		filtered := events[:0]
		for _, event := range events {
			ts, err := time.Parse(time.RFC3339Nano, event.Timestamp)
			if err != nil {
				continue
			}
			if ts.After(since) {
				filtered = append(filtered, event)
			}
		}
		events = filtered
	}

	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// readAll reads every log file in chronological order.
func (l *Logger) readAll() ([]Event, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	// YYYY-MM.jsonl sorts chronologically
	sort.Strings(files)

	var all []Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", filepath.Base(file), err)
		}
		all = append(all, events...)
	}
	return all, nil
}

func readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	for n, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		events = append(events, event)
	}
	return events, nil
}
