package operations

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kebairia/markabak/internal/cloud"
	"github.com/kebairia/markabak/internal/database"
	"github.com/kebairia/markabak/internal/fsutil"
	"github.com/kebairia/markabak/internal/integrity"
	"github.com/kebairia/markabak/internal/logger"
	"github.com/kebairia/markabak/internal/metrics"
	"github.com/kebairia/markabak/internal/replace"
	"github.com/kebairia/markabak/internal/retention"
	"github.com/kebairia/markabak/internal/transform"
)

const (
	// timestampLayout is the artifact name timestamp.
	timestampLayout = "20060102-150405"
	autoSuffix      = "-auto"
	bundleSuffix    = ".bundle.tmp"
	workspacePrefix = "restore-"
	// lockFileName guards the backup directory across processes.
	lockFileName = ".lock"
)

type replacer interface {
	Replace(ctx context.Context, candidate string) error
}

// Engine runs backups and restores of one live database. A backup and a
// restore never run at the same time; a second call returns ErrBusy.
type Engine struct {
	db        database.Database
	backupDir string
	product   string
	extension string
	createdBy string
	policy    retention.Policy

	pipeline   *transform.Pipeline
	transfer   *cloud.Transfer
	retention  *retention.Manager
	replacer   replacer
	verify     func(ctx context.Context, path string) error
	metrics    *metrics.Metrics
	logger     logger.Logger
	progress   ProgressFunc
	completion CompletionFunc
	now        func() time.Time

	mu      sync.Mutex
	dirLock *fsutil.FileLock
}

type Option func(*Engine)

func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPipeline sets the transform pipeline, which carries the codec and
// the encryption key.
func WithPipeline(p *transform.Pipeline) Option {
	return func(e *Engine) {
		if p != nil {
			e.pipeline = p
		}
	}
}

func WithTransfer(t *cloud.Transfer) Option {
	return func(e *Engine) {
		if t != nil {
			e.transfer = t
		}
	}
}

func WithRetentionPolicy(p retention.Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithNaming overrides the artifact product prefix and extension.
func WithNaming(product, extension string) Option {
	return func(e *Engine) {
		if product != "" {
			e.product = product
		}
		if extension != "" {
			e.extension = strings.TrimPrefix(extension, ".")
		}
	}
}

func WithCreatedBy(user string) Option {
	return func(e *Engine) {
		e.createdBy = user
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

func WithCompletion(fn CompletionFunc) Option {
	return func(e *Engine) {
		e.completion = fn
	}
}

// WithClock replaces time.Now for artifact naming and retention.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New builds an Engine for db storing artifacts in backupDir and removes
// leftovers of interrupted runs unless another process is using the
// directory.
func New(db database.Database, backupDir string, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if backupDir == "" {
		return nil, errors.New("backup directory is required")
	}

	e := &Engine{
		db:        db,
		backupDir: backupDir,
		product:   "marka",
		extension: "marka",
		policy:    retention.Policy{MaxBackups: 10, RetentionDays: 30},
		pipeline:  transform.New(),
		transfer:  cloud.NewTransfer(nil),
		verify:    integrity.Verify,
		logger:    logger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.dirLock = fsutil.NewFileLock(filepath.Join(backupDir, lockFileName))
	e.replacer = replace.New(db, replace.WithLogger(e.logger))
	e.retention = retention.NewManager(backupDir, e.matcher(), e.policy, retention.WithLogger(e.logger))

	if err := fsutil.EnsureDirectoryExist(backupDir); err != nil {
		return nil, err
	}
	if err := e.CleanupOrphans(); err != nil {
		e.logger.Warn("orphan cleanup incomplete", "dir", backupDir, "error", err)
	}
	return e, nil
}

func (e *Engine) BackupDir() string { return e.backupDir }

// acquire takes the engine mutex and the backup directory lock shared
// with other processes. Either being held yields ErrBusy.
func (e *Engine) acquire() (release func(), err error) {
	if !e.mu.TryLock() {
		return nil, ErrBusy
	}
	if err := e.dirLock.TryLock(); err != nil {
		e.mu.Unlock()
		if errors.Is(err, fsutil.ErrLocked) {
			return nil, fmt.Errorf("%w: %s is locked by another process", ErrBusy, e.dirLock.Path())
		}
		return nil, err
	}
	return func() {
		if err := e.dirLock.Unlock(); err != nil {
			e.logger.Warn("release backup directory lock", "error", err)
		}
		e.mu.Unlock()
	}, nil
}

func (e *Engine) matcher() retention.Matcher {
	return retention.Matcher{Product: e.product, Extension: e.extension}
}

// artifactName builds <product>-backup-<YYYYMMDD-HHMMSS>[-auto].<ext>.
func (e *Engine) artifactName(t time.Time, automatic bool, seq int) string {
	name := fmt.Sprintf("%s-backup-%s", e.product, t.Format(timestampLayout))
	if automatic {
		name += autoSuffix
	}
	if seq > 0 {
		name += fmt.Sprintf("-%d", seq)
	}
	return name + "." + e.extension
}

// nextArtifactPath picks a final path that does not exist yet, so two
// backups in the same second never overwrite each other.
func (e *Engine) nextArtifactPath(automatic bool) (string, error) {
	t := e.now()
	for seq := 0; seq < 100; seq++ {
		p := filepath.Join(e.backupDir, e.artifactName(t, automatic, seq))
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return p, nil
		} else if err != nil {
			return "", fmt.Errorf("stat %q: %w", p, err)
		}
	}
	return "", fmt.Errorf("no free artifact name for %s", t.Format(timestampLayout))
}

// CleanupOrphans removes staging files and restore workspaces left by an
// interrupted run. A database snapshot left by a failed rollback is kept
// and reported.
func (e *Engine) CleanupOrphans() error {
	release, err := e.acquire()
	if errors.Is(err, ErrBusy) {
		e.logger.Info("orphan cleanup skipped, backup directory in use", "dir", e.backupDir)
		return nil
	}
	if err != nil {
		return err
	}
	defer release()

	entries, err := os.ReadDir(e.backupDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read backup directory %q: %w", e.backupDir, err)
	}

	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(e.backupDir, name)
		switch {
		case entry.IsDir() && strings.HasPrefix(name, workspacePrefix):
			if err := os.RemoveAll(path); err != nil {
				errs = append(errs, err)
				continue
			}
			e.logger.Info("removed stale restore workspace", "path", path)
		case !entry.IsDir() && strings.HasSuffix(name, fsutil.TmpSuffix):
			if err := fsutil.RemoveIfExists(path); err != nil {
				errs = append(errs, err)
				continue
			}
			e.logger.Info("removed stale staging file", "path", path)
		}
	}

	live := e.db.Path()
	if err := fsutil.RemoveIfExists(live + fsutil.TmpSuffix); err != nil {
		errs = append(errs, err)
	}
	copies, err := filepath.Glob(fsutil.StagingGlob(live))
	if err != nil {
		errs = append(errs, err)
	}
	for _, path := range copies {
		if err := fsutil.RemoveIfExists(path); err != nil {
			errs = append(errs, err)
			continue
		}
		e.logger.Info("removed stale database copy", "path", path)
	}
	if _, err := os.Stat(live + replace.SnapshotSuffix); err == nil {
		e.logger.Warn("pre-restore snapshot found; a previous restore did not finish cleanly",
			"snapshot", live+replace.SnapshotSuffix,
			"live", live,
		)
	}
	return errors.Join(errs...)
}

// ListBackups returns the stored artifacts, newest first.
func (e *Engine) ListBackups() ([]retention.Artifact, error) {
	return e.retention.List()
}

// ApplyRetention runs one retention pass now.
func (e *Engine) ApplyRetention() retention.Report {
	report := e.retention.Apply(e.now())
	e.metrics.ObserveRetention(len(report.Deleted), len(report.Errors))
	return report
}

// DownloadFromCloud fetches the named artifact from provider into the
// backup directory and returns its local path.
func (e *Engine) DownloadFromCloud(ctx context.Context, name, provider string) (string, error) {
	if !e.matcher().Match(name) {
		return "", fmt.Errorf("%w: %w: %q", ErrCloudTransfer, cloud.ErrInvalidName, name)
	}
	path, err := e.transfer.Download(ctx, name, provider, e.backupDir)
	if err != nil {
		e.logger.Error("cloud download failed", "name", name, "provider", provider, "error", err)
		return "", err
	}
	return path, nil
}

// fail cleans staging files, logs, emits the failed stage and completion,
// and returns err unchanged.
func (e *Engine) fail(op Operation, log logger.Logger, path string, err error, staging ...string) error {
	for _, p := range staging {
		if rmErr := fsutil.RemoveIfExists(p); rmErr != nil {
			log.Warn("could not remove staging file", "path", p, "error", rmErr)
		}
	}
	log.Error(string(op)+" failed", "path", path, "error", err)
	e.emit(op, StageFailed, 0, err.Error())
	e.complete(op, path, err)
	return err
}
