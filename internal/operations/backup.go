package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kebairia/markabak/internal/archive"
	"github.com/kebairia/markabak/internal/database"
	"github.com/kebairia/markabak/internal/fsutil"
	"github.com/kebairia/markabak/internal/logger"
	"github.com/kebairia/markabak/internal/transform"
)

// BackupOptions selects the transforms and the artifact flavor.
type BackupOptions struct {
	Encrypt  bool
	Compress bool
	// Automatic marks the artifact with the -auto suffix and records it as
	// an automatic backup.
	Automatic bool
	// Type overrides the recorded backup type.
	Type database.BackupType
}

func DefaultBackupOptions() BackupOptions {
	return BackupOptions{Encrypt: true, Compress: true}
}

// CreateBackup archives the live database, transforms the bundle into an
// artifact, uploads it when cloud providers are configured, records it
// and applies retention. It returns the artifact path.
func (e *Engine) CreateBackup(ctx context.Context, opts BackupOptions) (string, error) {
	release, err := e.acquire()
	if err != nil {
		return "", err
	}
	defer release()

	start := time.Now()
	log := e.logger.With("operation", OpBackup, "op_id", uuid.NewString())

	path, size, err := e.createBackup(ctx, opts, log)
	e.metrics.ObserveBackup(time.Since(start), size, err)
	if err != nil {
		return "", err
	}
	log.Info("backup completed",
		"path", path,
		"size_bytes", size,
		"duration", time.Since(start).String(),
	)
	return path, nil
}

func (e *Engine) createBackup(ctx context.Context, opts BackupOptions, log logger.Logger) (string, int64, error) {
	if opts.Encrypt && !e.pipeline.HasKey() {
		return "", 0, e.fail(OpBackup, log, "", fmt.Errorf("%w: refusing to write an unencrypted artifact implicitly", ErrEncryptionKeyMissing))
	}

	final, err := e.nextArtifactPath(opts.Automatic)
	if err != nil {
		return "", 0, e.fail(OpBackup, log, "", fmt.Errorf("%w: %w", ErrArchive, err))
	}
	bundle := final + bundleSuffix
	staging := []string{bundle, final + fsutil.TmpSuffix}
	log = log.With("path", final)
	log.Info("backup started",
		"database", e.db.Path(),
		"compress", opts.Compress,
		"encrypt", opts.Encrypt,
	)

	e.emit(OpBackup, StageArchiving, 10, "Creating archive")
	if cp, ok := e.db.(database.Checkpointer); ok {
		if err := cp.Checkpoint(ctx); err != nil {
			log.Warn("wal checkpoint before archiving failed", "error", err)
		}
	}
	if err := archive.Bundle(e.db.Path(), bundle); err != nil {
		return "", 0, e.fail(OpBackup, log, final, err, staging...)
	}
	if err := ctx.Err(); err != nil {
		return "", 0, e.fail(OpBackup, log, final, err, staging...)
	}

	e.emit(OpBackup, StageTransforming, 35, "Compressing and encrypting")
	err = e.pipeline.EncodeFile(bundle, final, transform.Options{Compress: opts.Compress, Encrypt: opts.Encrypt})
	if err != nil {
		return "", 0, e.fail(OpBackup, log, final, err, append(staging, final)...)
	}
	if err := fsutil.RemoveIfExists(bundle); err != nil {
		log.Warn("could not remove bundle", "path", bundle, "error", err)
	}

	info, err := os.Stat(final)
	if err != nil {
		return "", 0, e.fail(OpBackup, log, final, fmt.Errorf("%w: stat artifact: %w", ErrProcessing, err), staging...)
	}

	if e.transfer.Enabled() {
		e.emit(OpBackup, StageCloudUploading, 60, "Uploading to cloud storage")
		// A failed upload keeps the complete local artifact.
		if err := e.transfer.UploadAll(ctx, final); err != nil {
			return "", 0, e.fail(OpBackup, log, final, err, staging...)
		}
	}

	e.emit(OpBackup, StageRecordingMetadata, 80, "Recording backup")
	if rec, ok := e.db.(database.Recorder); ok {
		record := database.Record{
			Filename:  filepath.Base(final),
			FilePath:  final,
			SizeBytes: info.Size(),
			Type:      backupType(opts),
			CreatedBy: e.createdBy,
			CreatedAt: e.now(),
		}
		if _, err := rec.RecordBackup(ctx, record); err != nil {
			return "", 0, e.fail(OpBackup, log, final, err, staging...)
		}
	}

	e.emit(OpBackup, StageApplyingRetention, 90, "Applying retention policy")
	report := e.retention.Apply(e.now())
	e.metrics.ObserveRetention(len(report.Deleted), len(report.Errors))
	if err := report.Err(); err != nil {
		log.Warn("retention finished with errors", "error", err)
	}

	e.emit(OpBackup, StageComplete, 100, "Backup complete")
	e.complete(OpBackup, final, nil)
	return final, info.Size(), nil
}

func backupType(opts BackupOptions) database.BackupType {
	switch {
	case opts.Type != "":
		return opts.Type
	case opts.Automatic:
		return database.BackupAutomatic
	default:
		return database.BackupManual
	}
}
