package lockout

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the name of the persisted lockout record inside the vault directory.
const FileName = "lockout.json"

// Record is the on-disk lockout state. Time is wall-clock Unix seconds so
// it survives a restart.
type Record struct {
	FailedAttempts    uint32 `json:"failed_attempts"`
	LastFailedAtEpoch uint64 `json:"last_failed_at_epoch"`
}

// Persister stores and retrieves the lockout record.
type Persister interface {
	// Load returns the stored record, or nil if none exists.
	Load() (*Record, error)
	Save(r Record) error
	Clear() error
}

// FilePersister keeps the record in a single JSON file.
type FilePersister struct {
	path string
}

// NewFilePersister returns a persister for the file at path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Path returns the record file path.
func (p *FilePersister) Path() string {
	return p.path
}

// Load reads the record. A missing file is not an error. Content that is
// not valid JSON returns ErrCorruptRecord.
func (p *FilePersister) Load() (*Record, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("lockout: failed to read record: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &r, nil
}

// Save writes the record via a temp file and rename, so a crash never
// leaves a half-written record behind.
func (p *FilePersister) Save(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("lockout: failed to marshal record: %w", err)
	}

	dir := filepath.Dir(p.path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("lockout: failed to create temp file: %w", err)
	}
	tempPath := f.Name()

	if err := f.Chmod(0600); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("lockout: failed to set permissions: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("lockout: failed to write record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("lockout: failed to sync record: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("lockout: failed to close record: %w", err)
	}

	if err := os.Rename(tempPath, p.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("lockout: failed to replace record: %w", err)
	}
	return nil
}

// Clear removes the record. A missing file is not an error.
func (p *FilePersister) Clear() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("lockout: failed to remove record: %w", err)
	}
	return nil
}
