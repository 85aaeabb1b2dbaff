package database

import (
	"context"
	"errors"
)

var (
	ErrNotInitialized = errors.New("database is not initialized")
	ErrInitialize     = errors.New("database initialization failed")
	ErrRecordFailed   = errors.New("backup record failed")
)

// Database is the part of the live database owner the backup engine
// drives: it must be able to let go of the file and pick it up again.
type Database interface {
	Path() string
	Close(ctx context.Context) error
	Reinitialize(ctx context.Context) error
}

// Checkpointer is implemented by managers running in WAL mode. The engine
// checkpoints before archiving so the main file is self-contained.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// Recorder persists Backup Records.
type Recorder interface {
	RecordBackup(ctx context.Context, rec Record) (int64, error)
}
