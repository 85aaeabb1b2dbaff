package operations

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kebairia/markabak/internal/archive"
	"github.com/kebairia/markabak/internal/logger"
)

// RestoreBackup replaces the live database with the one stored in
// artifactPath. Any failure before the replacement step leaves the live
// database untouched; a failed replacement is rolled back.
func (e *Engine) RestoreBackup(ctx context.Context, artifactPath string) error {
	release, err := e.acquire()
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	log := e.logger.With("operation", OpRestore, "op_id", uuid.NewString(), "source", artifactPath)
	log.Info("restore started", "database", e.db.Path())

	err = e.restoreBackup(ctx, artifactPath, log)
	e.metrics.ObserveRestore(time.Since(start), err)
	if err != nil {
		return err
	}
	log.Info("restore completed", "duration", time.Since(start).String())
	return nil
}

func (e *Engine) restoreBackup(ctx context.Context, artifactPath string, log logger.Logger) error {
	e.emit(OpRestore, StageVerifying, 5, "Checking backup file")
	info, err := os.Stat(artifactPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return e.fail(OpRestore, log, artifactPath, fmt.Errorf("%w: %q", ErrArtifactNotFound, artifactPath))
	case err != nil:
		return e.fail(OpRestore, log, artifactPath, fmt.Errorf("%w: %w", ErrProcessing, err))
	case !info.Mode().IsRegular() || info.Size() == 0:
		return e.fail(OpRestore, log, artifactPath, fmt.Errorf("%w: %q is not a backup artifact", ErrProcessing, artifactPath))
	}

	e.emit(OpRestore, StagePreparing, 15, "Preparing workspace")
	workspace, err := os.MkdirTemp(e.backupDir, workspacePrefix+"*")
	if err != nil {
		return e.fail(OpRestore, log, artifactPath, fmt.Errorf("%w: create workspace: %w", ErrProcessing, err))
	}
	defer os.RemoveAll(workspace)

	e.emit(OpRestore, StageTransforming, 30, "Decrypting and decompressing")
	bundle := filepath.Join(workspace, "bundle.tar")
	if err := e.pipeline.DecodeFile(artifactPath, bundle); err != nil {
		return e.fail(OpRestore, log, artifactPath, err)
	}
	candidate, err := archive.Extract(bundle, filepath.Base(e.db.Path()), workspace)
	if err != nil {
		return e.fail(OpRestore, log, artifactPath, fmt.Errorf("%w: %w", ErrProcessing, err))
	}
	if err := ctx.Err(); err != nil {
		return e.fail(OpRestore, log, artifactPath, err)
	}

	e.emit(OpRestore, StageIntegrityChecking, 55, "Verifying database integrity")
	if err := e.verify(ctx, candidate); err != nil {
		return e.fail(OpRestore, log, artifactPath, err)
	}

	// Past this point the live database is touched; cancellation is no
	// longer honored so the swap either finishes or rolls back.
	e.emit(OpRestore, StageReplacing, 75, "Replacing live database")
	if err := e.replacer.Replace(context.WithoutCancel(ctx), candidate); err != nil {
		return e.fail(OpRestore, log, artifactPath, err)
	}

	e.emit(OpRestore, StageCleaningUp, 95, "Cleaning up")
	if err := os.RemoveAll(workspace); err != nil {
		log.Warn("could not remove restore workspace", "path", workspace, "error", err)
	}
	e.emit(OpRestore, StageComplete, 100, "Restore complete")
	e.complete(OpRestore, artifactPath, nil)
	return nil
}
