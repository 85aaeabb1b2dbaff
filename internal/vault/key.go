package vault

import (
	"context"
	"fmt"

	"github.com/kebairia/markabak/internal/config"
	"github.com/kebairia/markabak/internal/logger"
)

// ResolveEncryptionKey returns the backup encryption secret. A key set in
// configuration (or MARKA_BACKUP_ENCRYPTION_KEY) wins; otherwise it is
// read from Vault when vault.key_path is set. An empty result with a nil
// error means no key is configured anywhere.
func ResolveEncryptionKey(ctx context.Context, cfg config.Config, log logger.Logger) (string, error) {
	if cfg.Backup.EncryptionKey != "" {
		return cfg.Backup.EncryptionKey, nil
	}
	if cfg.Vault.KeyPath == "" {
		return "", nil
	}

	client, err := NewClient(ctx,
		WithAddress(cfg.Vault.Address),
		WithAppRole(cfg.Vault.RoleID, cfg.Vault.RoleName),
	)
	if err != nil {
		return "", err
	}

	field := cfg.Vault.KeyField
	if field == "" {
		field = "encryption_key"
	}
	key, err := client.ReadField(ctx, cfg.Vault.KeyPath, field)
	if err != nil {
		return "", fmt.Errorf("vault read %s: %w", cfg.Vault.KeyPath, err)
	}
	if log != nil {
		log.Debug("encryption key loaded from vault", "path", cfg.Vault.KeyPath, "field", field)
	}
	return key, nil
}
