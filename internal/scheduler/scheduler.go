// Package scheduler runs automatic backups on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/kebairia/markabak/internal/database"
	"github.com/kebairia/markabak/internal/logger"
	"github.com/kebairia/markabak/internal/operations"
)

// BackupRunner is the part of the engine the scheduler drives.
type BackupRunner interface {
	CreateBackup(ctx context.Context, opts operations.BackupOptions) (string, error)
}

type Scheduler struct {
	cron    *cron.Cron
	runner  BackupRunner
	spec    string
	encrypt bool
	logger  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Scheduler)

func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithEncryption controls whether scheduled artifacts are encrypted
// (the default).
func WithEncryption(enabled bool) Option {
	return func(s *Scheduler) {
		s.encrypt = enabled
	}
}

// New validates spec (standard five-field cron or a descriptor such as
// "@daily") and prepares a scheduler. Nothing runs until Start.
func New(runner BackupRunner, spec string, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		runner:  runner,
		spec:    spec,
		encrypt: true,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	adapter := cronLogger{log: s.logger}
	s.cron = cron.New(
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", "cron", s.spec)
	s.cron.Start()
}

// Stop prevents new runs, cancels a running backup and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	return s.Stop(context.Background())
}

func (s *Scheduler) runOnce() {
	opts := operations.BackupOptions{
		Encrypt:   s.encrypt,
		Compress:  true,
		Automatic: true,
		Type:      database.BackupScheduled,
	}
	path, err := s.runner.CreateBackup(s.ctx, opts)
	switch {
	case errors.Is(err, operations.ErrBusy):
		s.logger.Warn("scheduled backup skipped, another operation is running")
	case err != nil:
		s.logger.Error("scheduled backup failed", "error", err)
	default:
		s.logger.Info("scheduled backup completed", "path", path)
	}
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
