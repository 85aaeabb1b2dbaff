package cloud

import (
	"context"
	"fmt"
	"io"

	"github.com/kebairia/markabak/internal/config"
	"github.com/kebairia/markabak/internal/logger"
)

// FromConfig builds a Transfer for every provider named in
// cfg.Providers. No providers yields a disabled Transfer.
func FromConfig(ctx context.Context, cfg config.CloudConfig, log logger.Logger) (*Transfer, error) {
	var providers []Provider
	for _, name := range cfg.Providers {
		p, err := newProvider(ctx, name, cfg)
		if err != nil {
			for _, built := range providers {
				if c, ok := built.(io.Closer); ok {
					_ = c.Close()
				}
			}
			return nil, fmt.Errorf("initialize %s provider: %w", name, err)
		}
		providers = append(providers, p)
	}

	return NewTransfer(providers,
		WithPrefix(cfg.Prefix),
		WithTimeout(cfg.Timeout),
		WithLogger(log),
	), nil
}

func newProvider(ctx context.Context, name string, cfg config.CloudConfig) (Provider, error) {
	switch name {
	case ProviderGCP:
		return NewGCS(ctx, cfg.GCP.ProjectID, cfg.GCP.Bucket, cfg.GCP.CredentialsFile)
	case ProviderAWS:
		return NewS3(ctx, cfg.AWS.Region, cfg.AWS.Bucket, cfg.AWS.Endpoint)
	case ProviderMinio:
		return NewMinio(cfg.Minio.Endpoint, cfg.Minio.Bucket, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}
