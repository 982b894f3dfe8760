package vault

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forest6511/knot/pkg/crypto"
	"github.com/forest6511/knot/pkg/lockout"
	"github.com/forest6511/knot/pkg/store"
)

// Vault directory layout
const (
	SaltFileName        = "salt.bin"
	DEKFileName         = "dek.enc"
	RecoveryDEKFileName = "recovery_dek.enc"
	LockoutFileName     = lockout.FileName
	StoreFileName       = store.FileName
	AuditDirName        = "audit"

	// rekeyMarker is present while a staged salt/DEK replacement is being committed.
	rekeyMarker = "rekey.pending"
	stagedExt   = ".new"

	FileMode = 0600 // Owner read/write only
	DirMode  = 0700 // Owner read/write/execute only

	// MaxWrappedKeySize bounds wrapped-key files. A valid one is 73 bytes.
	MaxWrappedKeySize = 256
)

func (v *Vault) file(name string) string {
	return filepath.Join(v.path, name)
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("vault: failed to stat %s: %w", filepath.Base(path), err)
}

// readSalt reads salt.bin and checks its length.
func (v *Vault) readSalt() ([]byte, error) {
	salt, err := os.ReadFile(v.file(SaltFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, corrupt("salt file missing")
		}
		return nil, fmt.Errorf("vault: failed to read salt file: %w", err)
	}
	if len(salt) != crypto.SaltLength {
		return nil, corrupt("salt has %d bytes, want %d", len(salt), crypto.SaltLength)
	}
	return salt, nil
}

// readWrapped reads a wrapped-key file, rejecting oversized files before
// they are read into memory.
func (v *Vault) readWrapped(name string) ([]byte, error) {
	f, err := os.Open(v.file(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxWrappedKeySize+1))
	if err != nil {
		return nil, fmt.Errorf("vault: failed to read %s: %w", name, err)
	}
	if len(data) > MaxWrappedKeySize {
		return nil, corrupt("%s exceeds %d bytes", name, MaxWrappedKeySize)
	}
	return data, nil
}

// writeFileAtomic writes data to path through a synced temp file and a rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("vault: failed to create temp file: %w", err)
	}
	tempPath := f.Name()

	cleanup := func() {
		f.Close()
		os.Remove(tempPath)
	}
	if err := f.Chmod(FileMode); err != nil {
		cleanup()
		return fmt.Errorf("vault: failed to set permissions on %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("vault: failed to write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("vault: failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("vault: failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("vault: failed to replace %s: %w", filepath.Base(path), err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes a directory entry update. Not every platform supports
// it, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

// rekey replaces several key files as one unit.
//
// Every new file is first written next to its target with a ".new" suffix.
// Only then is the marker created; from that point the change is committed
// and the staged files are renamed over their targets. A crash before the
// marker leaves the old files in place; a crash after it is rolled forward
// by recoverRekey.
func (v *Vault) rekey(files map[string][]byte) error {
	for name, data := range files {
		if err := writeFileAtomic(v.file(name+stagedExt), data); err != nil {
			v.discardStaged()
			return err
		}
	}

	if err := writeFileAtomic(v.file(rekeyMarker), nil); err != nil {
		v.discardStaged()
		return err
	}

	return v.commitStaged()
}

var rekeyFiles = []string{SaltFileName, DEKFileName, RecoveryDEKFileName}

func (v *Vault) commitStaged() error {
	for _, name := range rekeyFiles {
		staged := v.file(name + stagedExt)
		if err := os.Rename(staged, v.file(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("vault: failed to commit %s: %w", name, err)
		}
	}
	syncDir(v.path)

	if err := os.Remove(v.file(rekeyMarker)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("vault: failed to clear rekey marker: %w", err)
	}
	return nil
}

func (v *Vault) discardStaged() {
	for _, name := range rekeyFiles {
		os.Remove(v.file(name + stagedExt))
	}
}

// recoverRekey finishes or undoes a replacement interrupted by a crash.
func (v *Vault) recoverRekey() error {
	committed, err := fileExists(v.file(rekeyMarker))
	if err != nil {
		return err
	}
	if committed {
		v.log.Warn().Str("path", v.path).Msg("Completing interrupted key file replacement")
		return v.commitStaged()
	}
	v.discardStaged()
	return nil
}
