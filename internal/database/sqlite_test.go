package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s := NewSQLite(filepath.Join(t.TempDir(), "data", "marka_database.db"))
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestInitialize_CreatesFileAndTable(t *testing.T) {
	s := newTestSQLite(t)

	_, err := os.Stat(s.Path())
	require.NoError(t, err)

	db, err := s.DB()
	require.NoError(t, err)
	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'backups'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "backups", name)

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestInitialize_Idempotent(t *testing.T) {
	s := newTestSQLite(t)
	first, err := s.DB()
	require.NoError(t, err)

	require.NoError(t, s.Initialize(context.Background()))
	second, err := s.DB()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestInitialize_RejectsNonDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marka_database.db")
	require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite, just some words on disk"), 0o600))

	err := NewSQLite(path).Initialize(context.Background())
	require.ErrorIs(t, err, ErrInitialize)
}

func TestCloseAndReinitialize(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	_, err := s.RecordBackup(ctx, Record{Filename: "a.marka", FilePath: "/tmp/a.marka", SizeBytes: 10})
	require.NoError(t, err)

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx), "closing twice is a no-op")

	_, err = s.DB()
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, s.Checkpoint(ctx), ErrNotInitialized)

	_, err = os.Stat(s.Path() + "-wal")
	assert.True(t, os.IsNotExist(err) || fileSize(t, s.Path()+"-wal") == 0, "WAL must be folded into the main file")

	require.NoError(t, s.Reinitialize(ctx))
	history, err := s.BackupHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "a.marka", history[0].Filename)
}

func TestCheckpoint(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Checkpoint(context.Background()))
}

func TestRecordBackup_AndHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	records := []Record{
		{Filename: "marka-backup-20250301-080000.marka", FilePath: "/b/1", SizeBytes: 100, CreatedAt: base},
		{Filename: "marka-backup-20250302-080000-auto.marka", FilePath: "/b/2", SizeBytes: 200, Type: BackupAutomatic, CreatedAt: base.Add(24 * time.Hour)},
		{Filename: "marka-backup-20250303-020000.marka", FilePath: "/b/3", SizeBytes: 300, Type: BackupScheduled, CreatedBy: "admin", CreatedAt: base.Add(48 * time.Hour)},
	}
	for _, rec := range records {
		id, err := s.RecordBackup(ctx, rec)
		require.NoError(t, err)
		assert.Positive(t, id)
	}

	history, err := s.BackupHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "marka-backup-20250303-020000.marka", history[0].Filename)
	assert.Equal(t, BackupScheduled, history[0].Type)
	assert.Equal(t, "admin", history[0].CreatedBy)
	assert.True(t, base.Add(48*time.Hour).Equal(history[0].CreatedAt))
	assert.Equal(t, BackupAutomatic, history[1].Type)

	all, err := s.BackupHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, BackupManual, all[2].Type, "empty type defaults to manual")
	assert.Empty(t, all[2].CreatedBy)
}

func TestRecordBackup_RejectsUnknownType(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.RecordBackup(context.Background(), Record{Filename: "x", FilePath: "x", Type: "weekly"})
	require.ErrorIs(t, err, ErrRecordFailed)
}

func TestRecordBackup_NotInitialized(t *testing.T) {
	s := NewSQLite(filepath.Join(t.TempDir(), "never-opened.db"))
	_, err := s.RecordBackup(context.Background(), Record{Filename: "x", FilePath: "x"})
	require.ErrorIs(t, err, ErrRecordFailed)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}
