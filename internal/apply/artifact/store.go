// Package artifact moves generated configuration onto disk: backups before
// an apply, atomic replacement during it and restoration on rollback.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Store is the filesystem side of an apply.
type Store interface {
	// Backup copies target into the backup location. absent is true when
	// target does not exist yet; no backup file is written then.
	Backup(target, jobID string, at time.Time) (backup string, absent bool, err error)
	// Write replaces target with content atomically.
	Write(target string, content []byte) error
	// Restore puts target back the way Backup found it.
	Restore(target, backup string, absent bool) error
	// Read returns the current content of target, nil when absent.
	Read(target string) ([]byte, error)
}

const backupStamp = "20060102T150405Z"

// FileStore keeps backups in one directory outside every artifact
// directory, so the engine never loads them.
type FileStore struct {
	backupDir string
	perm      fs.FileMode
}

func NewFileStore(backupDir string) *FileStore {
	return &FileStore{backupDir: backupDir, perm: 0o644}
}

func (s *FileStore) Backup(target, jobID string, at time.Time) (string, bool, error) {
	content, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return "", true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("backup %s: %w", target, err)
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", false, fmt.Errorf("backup dir: %w", err)
	}
	name := fmt.Sprintf("%s.%s.%s.bak", filepath.Base(target), at.UTC().Format(backupStamp), jobID)
	backup := filepath.Join(s.backupDir, name)
	if err := writeAtomic(backup, content, s.perm); err != nil {
		return "", false, fmt.Errorf("backup %s: %w", target, err)
	}
	return backup, false, nil
}

func (s *FileStore) Write(target string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := writeAtomic(target, content, s.perm); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}

func (s *FileStore) Restore(target, backup string, absent bool) error {
	if absent {
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("restore %s: %w", target, err)
		}
		return nil
	}
	content, err := os.ReadFile(backup)
	if err != nil {
		return fmt.Errorf("restore %s: %w", target, err)
	}
	current, err := os.ReadFile(target)
	if err == nil && bytes.Equal(current, content) {
		return nil
	}
	if err := writeAtomic(target, content, s.perm); err != nil {
		return fmt.Errorf("restore %s: %w", target, err)
	}
	return nil
}

func (s *FileStore) Read(target string) ([]byte, error) {
	content, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return content, err
}

// writeAtomic writes <path>.tmp in the target directory, syncs it and
// renames it over path. Readers see either the old or the new file.
func writeAtomic(path string, content []byte, perm fs.FileMode) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	success = true
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
