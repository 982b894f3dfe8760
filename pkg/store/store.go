// Package store is the encrypted note store opened by the vault.
//
// Records live in a SQLite database (modernc.org/sqlite, pure Go). Every
// payload is sealed with the vault DEK using the crypto envelope format, so
// the database file holds no plaintext note content. A key check row,
// written when the store is created, lets Open reject a wrong DEK before any
// record is touched.
package store

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/forest6511/knot/pkg/crypto"

	_ "modernc.org/sqlite"
)

const (
	// FileName is the store file inside the vault directory.
	FileName = "knot.db"

	// FileMode restricts the database to its owner.
	FileMode = 0600

	// MaxIDLength bounds record identifiers.
	MaxIDLength = 256

	// MaxRecordSize bounds a single plaintext payload (16 MB).
	MaxRecordSize = 16 * 1024 * 1024

	schemaVersion = "1"
	keyCheckName  = "key_check"
)

// keyCheckMarker is the plaintext sealed in the key check row.
var keyCheckMarker = []byte("knot-store-key-check-v1")

// Errors
var (
	ErrInvalidKey     = errors.New("store: key does not match this store")
	ErrClosed         = errors.New("store: store is closed")
	ErrNotFound       = errors.New("store: record not found")
	ErrInvalidID      = errors.New("store: invalid record id")
	ErrRecordTooLarge = errors.New("store: record too large")
	ErrCorrupted      = errors.New("store: store is corrupted")
)

// Store is an open, keyed store. It owns a copy of the DEK and wipes it on Close.
type Store struct {
	path string
	db   *sql.DB
	dek  *crypto.Key
	mu   sync.RWMutex
}

// Open opens or creates the store at path keyed by dek.
//
// A new store records a key check. An existing store verifies it and
// returns ErrInvalidKey if dek does not open it.
func Open(path string, dek *crypto.Key) (*Store, error) {
	if dek.IsWiped() {
		return nil, crypto.ErrKeyWiped
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}

	// Single connection for CLI usage, avoids "database is locked" errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{path: path, db: db, dek: dek.Clone()}
	if err := s.init(); err != nil {
		s.dek.Wipe()
		db.Close()
		return nil, err
	}

	if err := os.Chmod(path, FileMode); err != nil {
		s.Close()
		return nil, fmt.Errorf("store: failed to set database permissions: %w", err)
	}
	return s, nil
}

// dsn builds a SQLite URI for path. The path is escaped so that '?', '#'
// and '%' in directory names are not read as URI syntax.
func dsn(path string) string {
	p := filepath.ToSlash(path)
	if filepath.VolumeName(path) != "" {
		p = "/" + p
	}
	u := &url.URL{
		Scheme:   "file",
		OmitHost: true,
		Path:     p,
		RawQuery: "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
	}
	return u.String()
}

func (s *Store) init() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("store: failed to create tables: %w", classify(err))
	}
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			encrypted_data BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("store: failed to create tables: %w", classify(err))
	}

	var check []byte
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", keyCheckName).Scan(&check)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.initKeyCheck()
	case err != nil:
		return fmt.Errorf("store: failed to read key check: %w", classify(err))
	}

	plain, err := crypto.Decrypt(check, s.dek)
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return ErrInvalidKey
		}
		return fmt.Errorf("%w: key check: %v", ErrCorrupted, err)
	}
	if !bytes.Equal(plain, keyCheckMarker) {
		return fmt.Errorf("%w: key check marker mismatch", ErrCorrupted)
	}
	return nil
}

// initKeyCheck seals the marker for a store that has none. A store that
// already holds records but no key check cannot be verified.
func (s *Store) initKeyCheck() error {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return fmt.Errorf("store: failed to count records: %w", classify(err))
	}
	if n > 0 {
		return fmt.Errorf("%w: records present without key check", ErrCorrupted)
	}

	sealed, err := crypto.Encrypt(keyCheckMarker, s.dek)
	if err != nil {
		return fmt.Errorf("store: failed to seal key check: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT INTO meta(key, value) VALUES(?, ?)", keyCheckName, sealed); err != nil {
		return fmt.Errorf("store: failed to save key check: %w", err)
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO meta(key, value) VALUES('schema_version', ?)", []byte(schemaVersion)); err != nil {
		return fmt.Errorf("store: failed to save schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit transaction: %w", err)
	}
	return nil
}

// classify maps SQLite's "not a database" family of errors to ErrCorrupted.
func classify(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "not a database") || strings.Contains(msg, "malformed") {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database and wipes the store's copy of the DEK.
// It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	s.dek.Wipe()
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("store: failed to close database: %w", err)
	}
	return nil
}

func validateID(id string) error {
	if id == "" || len(id) > MaxIDLength {
		return ErrInvalidID
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return ErrInvalidID
		}
	}
	return nil
}

// Put encrypts data and stores it under id, replacing any existing record.
func (s *Store) Put(id string, data []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	if len(data) > MaxRecordSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrRecordTooLarge, len(data), MaxRecordSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	sealed, err := crypto.Encrypt(data, s.dek)
	if err != nil {
		return fmt.Errorf("store: failed to encrypt record: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.Exec(`
		INSERT INTO records(id, encrypted_data, created_at, updated_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET encrypted_data = excluded.encrypted_data, updated_at = excluded.updated_at
	`, id, sealed, now, now)
	if err != nil {
		return fmt.Errorf("store: failed to save record: %w", err)
	}
	return nil
}

// Get returns the decrypted record stored under id.
func (s *Store) Get(id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	var sealed []byte
	err := s.db.QueryRow("SELECT encrypted_data FROM records WHERE id = ?", id).Scan(&sealed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: failed to read record: %w", err)
	}

	plain, err := crypto.Decrypt(sealed, s.dek)
	if err != nil {
		return nil, fmt.Errorf("%w: record %q: %v", ErrCorrupted, id, err)
	}
	return plain, nil
}

// Delete removes the record stored under id.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	res, err := s.db.Exec("DELETE FROM records WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: failed to delete record: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all record ids in lexical order.
func (s *Store) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	rows, err := s.db.Query("SELECT id FROM records ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: failed to list records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: failed to scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of records.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, ErrClosed
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: failed to count records: %w", err)
	}
	return n, nil
}
