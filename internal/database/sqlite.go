package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/kebairia/markabak/internal/fsutil"
	"github.com/kebairia/markabak/internal/integrity"
	"github.com/kebairia/markabak/internal/logger"

	_ "modernc.org/sqlite" // SQLite driver
)

const EngineSQLite = "sqlite"

// SQLiteOption lets you override default settings on a SQLite manager.
type SQLiteOption func(*SQLite)

// SQLite owns the connection to the application's live database file.
// The backup engine closes it before a swap and reinitializes it after.
type SQLite struct {
	path        string
	busyTimeout time.Duration
	logger      logger.Logger

	mu sync.RWMutex
	db *sql.DB
}

var (
	_ Database     = (*SQLite)(nil)
	_ Checkpointer = (*SQLite)(nil)
	_ Recorder     = (*SQLite)(nil)
)

// NewSQLite returns an unopened manager for the database at path.
func NewSQLite(path string, opts ...SQLiteOption) *SQLite {
	s := &SQLite{
		path:        path,
		busyTimeout: 5 * time.Second,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithSQLiteLogger overrides the logger.
func WithSQLiteLogger(l logger.Logger) SQLiteOption {
	return func(s *SQLite) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSQLiteBusyTimeout overrides how long a statement waits on a lock.
func WithSQLiteBusyTimeout(d time.Duration) SQLiteOption {
	return func(s *SQLite) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

func (s *SQLite) Path() string { return s.path }

// Initialize opens the database, applies connection pragmas, creates the
// backups table if needed and checks integrity. Calling it on an open
// manager is a no-op.
func (s *SQLite) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open(ctx)
}

// Reinitialize drops any open connection and opens the file again. It is
// used after the file on disk has been replaced.
func (s *SQLite) Reinitialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
	return s.open(ctx)
}

// Close checkpoints the WAL into the main file and releases the
// connection. Closing a closed manager is a no-op.
func (s *SQLite) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("wal checkpoint before close failed", "path", s.path, "error", err)
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("close %q: %w", s.path, err)
	}
	s.logger.Debug("database closed", "path", s.path)
	return nil
}

// Checkpoint folds the WAL into the main database file.
func (s *SQLite) Checkpoint(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return ErrNotInitialized
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint %q: %w", s.path, err)
	}
	return nil
}

// DB exposes the underlying handle for application queries.
func (s *SQLite) DB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func (s *SQLite) open(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	if err := fsutil.EnsureDirectoryExist(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("%w: %w", ErrInitialize, err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("%w: open %q: %w", ErrInitialize, s.path, err)
	}
	// One connection keeps per-connection pragmas in force and matches
	// SQLite's single-writer model.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", s.busyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return fmt.Errorf("%w: %s: %w", ErrInitialize, p, err)
		}
	}
	if _, err := db.ExecContext(ctx, backupsSchema); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: create backups table: %w", ErrInitialize, err)
	}
	if err := integrity.Check(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %w", ErrInitialize, err)
	}

	s.db = db
	s.logger.Info("database initialized", "engine", EngineSQLite, "path", s.path)
	return nil
}
