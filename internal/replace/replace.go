// Package replace swaps a verified candidate file in for the live
// database, restoring the previous file if anything goes wrong.
package replace

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/kebairia/markabak/internal/database"
	"github.com/kebairia/markabak/internal/fsutil"
	"github.com/kebairia/markabak/internal/logger"
)

var (
	ErrReplace = errors.New("database replacement failed")
	// ErrRollbackFailed is wrapped alongside ErrReplace when the previous
	// file could not be put back. The snapshot is then kept on disk.
	ErrRollbackFailed = errors.New("rollback failed")
)

// SnapshotSuffix names the copy of the live file held during a swap.
const SnapshotSuffix = ".pre-restore"

// sidecars are SQLite's WAL-mode companion files.
var sidecars = []string{"-wal", "-shm", "-journal"}

type Replacer struct {
	db       database.Database
	logger   logger.Logger
	copyFile func(src, dst string) error
}

type Option func(*Replacer)

func WithLogger(l logger.Logger) Option {
	return func(r *Replacer) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(db database.Database, opts ...Option) *Replacer {
	r := &Replacer{
		db:       db,
		logger:   logger.Nop(),
		copyFile: fsutil.CopyFileAtomic,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Replace makes candidate the live database. On return the live file is
// either the candidate, reopened, or byte-identical to what it was before.
func (r *Replacer) Replace(ctx context.Context, candidate string) error {
	live := r.db.Path()
	snapshot := live + SnapshotSuffix
	log := r.logger.With("live", live, "candidate", candidate)

	if err := r.db.Close(ctx); err != nil {
		r.reopen(ctx, log)
		return fmt.Errorf("%w: close live database: %w", ErrReplace, err)
	}

	hadLive, err := exists(live)
	if err != nil {
		r.reopen(ctx, log)
		return fmt.Errorf("%w: %w", ErrReplace, err)
	}
	if hadLive {
		// Copy, never move: the live file stays in place until the
		// candidate is renamed over it.
		if err := r.copyFile(live, snapshot); err != nil {
			_ = fsutil.RemoveIfExists(snapshot)
			r.reopen(ctx, log)
			return fmt.Errorf("%w: snapshot live database: %w", ErrReplace, err)
		}
		log.Debug("snapshot taken", "snapshot", snapshot)
	}
	removeSidecars(live, log)

	if err := r.swap(ctx, candidate, live); err != nil {
		log.Error("swap failed, rolling back", "error", err)
		return r.rollback(ctx, live, snapshot, hadLive, err, log)
	}

	if hadLive {
		if err := fsutil.RemoveIfExists(snapshot); err != nil {
			log.Warn("could not remove snapshot", "snapshot", snapshot, "error", err)
		}
	}
	log.Info("live database replaced")
	return nil
}

func (r *Replacer) swap(ctx context.Context, candidate, live string) error {
	if err := r.copyFile(candidate, live); err != nil {
		return fmt.Errorf("copy candidate: %w", err)
	}
	if err := r.db.Reinitialize(ctx); err != nil {
		return fmt.Errorf("reinitialize: %w", err)
	}
	return nil
}

func (r *Replacer) rollback(ctx context.Context, live, snapshot string, hadLive bool, cause error, log logger.Logger) error {
	// The manager may hold the half-swapped file open.
	_ = r.db.Close(ctx)

	if hadLive {
		if err := r.copyFile(snapshot, live); err != nil {
			log.Error("rollback copy failed, snapshot kept", "snapshot", snapshot, "error", err)
			return fmt.Errorf("%w: %w: restore snapshot %q: %v (cause: %w)", ErrReplace, ErrRollbackFailed, snapshot, err, cause)
		}
	} else if err := fsutil.RemoveIfExists(live); err != nil {
		log.Error("could not remove partial database", "error", err)
	}
	removeSidecars(live, log)

	if err := r.db.Reinitialize(ctx); err != nil {
		log.Error("reinitialize after rollback failed", "error", err)
		return fmt.Errorf("%w: %w: reinitialize: %v (cause: %w)", ErrReplace, ErrRollbackFailed, err, cause)
	}
	if hadLive {
		if err := fsutil.RemoveIfExists(snapshot); err != nil {
			log.Warn("could not remove snapshot", "snapshot", snapshot, "error", err)
		}
	}
	log.Info("rollback complete, previous database restored")
	return fmt.Errorf("%w: %w", ErrReplace, cause)
}

func (r *Replacer) reopen(ctx context.Context, log logger.Logger) {
	if err := r.db.Reinitialize(ctx); err != nil {
		log.Error("reopen live database failed", "error", err)
	}
}

func removeSidecars(live string, log logger.Logger) {
	for _, suffix := range sidecars {
		if err := fsutil.RemoveIfExists(live + suffix); err != nil {
			log.Warn("could not remove sidecar", "path", live+suffix, "error", err)
		}
	}
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %q: %w", path, err)
}
