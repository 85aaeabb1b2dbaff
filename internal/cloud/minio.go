package cloud

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio stores artifacts on a MinIO server.
type Minio struct {
	client *minio.Client
	bucket string
}

func NewMinio(endpoint, bucket, accessKey, secretKey string, useSSL bool) (*Minio, error) {
	if endpoint == "" || bucket == "" {
		return nil, fmt.Errorf("minio endpoint and bucket are required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &Minio{client: client, bucket: bucket}, nil
}

func (m *Minio) Name() string { return ProviderMinio }

func (m *Minio) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("put minio %s/%s: %w", m.bucket, key, err)
	}
	return nil
}

func (m *Minio) Download(ctx context.Context, key string, w io.Writer) error {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("get minio %s/%s: %w", m.bucket, key, err)
	}
	defer obj.Close()

	if _, err := io.Copy(w, obj); err != nil {
		return fmt.Errorf("read minio %s/%s: %w", m.bucket, key, err)
	}
	return nil
}
