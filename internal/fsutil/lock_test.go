//go:build unix

package fsutil

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock_ExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	first := NewFileLock(path)
	second := NewFileLock(path)

	require.NoError(t, first.TryLock())
	require.ErrorIs(t, second.TryLock(), ErrLocked)

	pid, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(pid)))

	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestFileLock_UnlockWhenNotHeld(t *testing.T) {
	l := NewFileLock(filepath.Join(t.TempDir(), ".lock"))
	assert.NoError(t, l.Unlock())
	require.NoError(t, l.TryLock())
	assert.NoError(t, l.TryLock(), "relocking a held lock is a no-op")
	assert.NoError(t, l.Unlock())
}
