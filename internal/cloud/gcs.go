package cloud

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores artifacts in a Google Cloud Storage bucket.
type GCS struct {
	client    *storage.Client
	projectID string
	bucket    string
}

// NewGCS connects with the given service account key, or with
// application default credentials when credentialsFile is empty.
func NewGCS(ctx context.Context, projectID, bucket, credentialsFile string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCS{client: client, projectID: projectID, bucket: bucket}, nil
}

func (g *GCS) Name() string { return ProviderGCP }

func (g *GCS) Upload(ctx context.Context, key string, r io.Reader, _ int64) error {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy to gs://%s/%s: %w", g.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close GCS writer for gs://%s/%s: %w", g.bucket, key, err)
	}
	return nil
}

func (g *GCS) Download(ctx context.Context, key string, w io.Writer) error {
	r, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open gs://%s/%s: %w", g.bucket, key, err)
	}
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("read gs://%s/%s: %w", g.bucket, key, err)
	}
	return nil
}

func (g *GCS) Close() error { return g.client.Close() }
