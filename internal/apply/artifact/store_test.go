package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, 5, 2, 11, 30, 0, 0, time.UTC)

func TestBackupAbsentTarget(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(filepath.Join(root, "backups"))

	backup, absent, err := s.Backup(filepath.Join(root, "etc", "routing.conf"), "42", at)
	require.NoError(t, err)
	assert.True(t, absent)
	assert.Empty(t, backup)

	_, err = os.Stat(filepath.Join(root, "backups"))
	assert.True(t, os.IsNotExist(err), "no backup dir for an absent target")
}

func TestBackupWriteRestore(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(filepath.Join(root, "backups"))
	target := filepath.Join(root, "etc", "routing.conf")
	require.NoError(t, s.Write(target, []byte("old")))

	backup, absent, err := s.Backup(target, "42", at)
	require.NoError(t, err)
	assert.False(t, absent)
	assert.Equal(t, filepath.Join(root, "backups", "routing.conf.20240502T113000Z.42.bak"), backup)

	require.NoError(t, s.Write(target, []byte("new")))
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	require.NoError(t, s.Restore(target, backup, false))
	got, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	_, err = os.Stat(target + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive")
}

func TestRestoreAbsentRemovesTarget(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(filepath.Join(root, "backups"))
	target := filepath.Join(root, "etc", "endpoints.conf")
	require.NoError(t, s.Write(target, []byte("generated")))

	require.NoError(t, s.Restore(target, "", true))
	content, err := s.Read(target)
	require.NoError(t, err)
	assert.Nil(t, content)

	// Removing twice is fine.
	require.NoError(t, s.Restore(target, "", true))
}

func TestWriteFailureLeavesTargetIntact(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(filepath.Join(root, "backups"))
	target := filepath.Join(root, "etc", "routing.conf")
	require.NoError(t, s.Write(target, []byte("old")))

	// A directory squatting on the temp path makes the write fail before
	// the rename.
	require.NoError(t, os.Mkdir(target+".tmp", 0o755))
	err := s.Write(target, []byte("new"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "routing.conf"))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
}
