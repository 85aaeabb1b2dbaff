package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kebairia/markabak/internal/cloud"
	"github.com/kebairia/markabak/internal/database"
	"github.com/kebairia/markabak/internal/operations"
	"github.com/kebairia/markabak/internal/retention"
	"github.com/kebairia/markabak/internal/transform"
	"github.com/kebairia/markabak/internal/vault"
)

// app wires the engine from the loaded configuration.
type app struct {
	db       *database.SQLite
	transfer *cloud.Transfer
	engine   *operations.Engine
}

func newApp(ctx context.Context, extra ...operations.Option) (*app, error) {
	codec, err := transform.ParseCodec(cfg.Backup.Codec)
	if err != nil {
		return nil, err
	}
	key, err := vault.ResolveEncryptionKey(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("resolve encryption key: %w", err)
	}

	db := database.NewSQLite(cfg.Database.Path, database.WithSQLiteLogger(log))
	if err := db.Initialize(ctx); err != nil {
		return nil, err
	}

	transfer, err := cloud.FromConfig(ctx, cfg.Cloud, log)
	if err != nil {
		_ = db.Close(ctx)
		return nil, err
	}

	opts := []operations.Option{
		operations.WithLogger(log),
		operations.WithPipeline(transform.New(transform.WithCodec(codec), transform.WithKey(key))),
		operations.WithTransfer(transfer),
		operations.WithRetentionPolicy(retention.Policy{
			MaxBackups:    cfg.Retention.MaxBackups,
			RetentionDays: cfg.Retention.RetentionDays,
		}),
		operations.WithNaming(cfg.Backup.Product, cfg.Backup.Extension),
		operations.WithCreatedBy(cfg.Backup.CreatedBy),
	}
	engine, err := operations.New(db, cfg.Backup.Directory, append(opts, extra...)...)
	if err != nil {
		_ = transfer.Close()
		_ = db.Close(ctx)
		return nil, err
	}
	return &app{db: db, transfer: transfer, engine: engine}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.transfer.Close(); err != nil {
		log.Warn("close cloud providers", "error", err)
	}
	if err := a.db.Close(ctx); err != nil {
		log.Warn("close database", "error", err)
	}
}

// printProgress renders engine progress on stderr.
func printProgress(p operations.Progress) {
	fmt.Fprintf(os.Stderr, "[%3d%%] %s: %s\n", p.Percent, p.Operation, p.Message)
}
