//go:build unix

package operations

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A second engine on the same backup directory stands in for another
// markabak process, e.g. `markabak list` while the scheduler is running.
func TestSecondEngineDoesNotDisturbRunningBackup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var (
		otherErr  error
		otherBusy error
		staged    []string
	)
	e := f.engine(t, WithProgress(func(p Progress) {
		if p.Operation != OpBackup || p.Stage != StageTransforming {
			return
		}
		staged, _ = filepath.Glob(filepath.Join(f.backupDir, "*.tmp"))
		other, err := New(f.db, f.backupDir)
		otherErr = err
		if err == nil {
			_, otherBusy = other.CreateBackup(ctx, BackupOptions{Compress: true})
		}
	}))

	path, err := e.CreateBackup(ctx, DefaultBackupOptions())
	require.NoError(t, err)
	require.NoError(t, otherErr)
	assert.ErrorIs(t, otherBusy, ErrBusy)
	require.NotEmpty(t, staged, "bundle is staged before transforming")

	_, err = os.Stat(path)
	require.NoError(t, err)
	assertNoStaging(t, f.backupDir)

	other, err := New(f.db, f.backupDir)
	require.NoError(t, err)
	_, err = other.CreateBackup(ctx, BackupOptions{Compress: true})
	assert.NoError(t, err, "directory lock released after the first run")
}

func TestCleanupOrphans_SkipsWhileDirectoryLocked(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)

	stale := filepath.Join(f.backupDir, "marka-backup-20250101-000000.marka.bundle.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("in flight"), 0o600))

	release, err := e.acquire()
	require.NoError(t, err)
	f.engine(t)
	_, err = os.Stat(stale)
	assert.NoError(t, err, "staging files of a running operation survive")

	release()
	f.engine(t)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}
