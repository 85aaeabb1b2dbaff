// Package cloud moves finished artifacts to and from object storage.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kebairia/markabak/internal/fsutil"
	"github.com/kebairia/markabak/internal/logger"
)

var (
	ErrCloudTransfer   = errors.New("cloud transfer failed")
	ErrUnknownProvider = errors.New("unknown cloud provider")
	ErrInvalidName     = errors.New("invalid artifact name")
)

const (
	ProviderGCP   = "gcp"
	ProviderAWS   = "aws"
	ProviderMinio = "minio"
)

// Provider is one object storage backend. Keys are slash-separated.
type Provider interface {
	Name() string
	Upload(ctx context.Context, key string, r io.Reader, size int64) error
	Download(ctx context.Context, key string, w io.Writer) error
}

// Transfer uploads to every configured provider and downloads from a
// named one.
type Transfer struct {
	providers map[string]Provider
	order     []string
	prefix    string
	timeout   time.Duration
	logger    logger.Logger
}

type Option func(*Transfer)

// WithPrefix sets the object key prefix, "backups" by default.
func WithPrefix(prefix string) Option {
	return func(t *Transfer) {
		if prefix != "" {
			t.prefix = strings.Trim(prefix, "/")
		}
	}
}

// WithTimeout bounds each upload or download call.
func WithTimeout(d time.Duration) Option {
	return func(t *Transfer) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(t *Transfer) {
		if l != nil {
			t.logger = l
		}
	}
}

func NewTransfer(providers []Provider, opts ...Option) *Transfer {
	t := &Transfer{
		providers: make(map[string]Provider, len(providers)),
		prefix:    "backups",
		timeout:   5 * time.Minute,
		logger:    logger.Nop(),
	}
	for _, p := range providers {
		if _, dup := t.providers[p.Name()]; dup {
			continue
		}
		t.providers[p.Name()] = p
		t.order = append(t.order, p.Name())
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Enabled reports whether any provider is configured.
func (t *Transfer) Enabled() bool { return len(t.order) > 0 }

// Providers lists the configured provider names in configuration order.
func (t *Transfer) Providers() []string { return append([]string(nil), t.order...) }

// ObjectKey maps an artifact name to its key under the prefix.
func (t *Transfer) ObjectKey(name string) string {
	if t.prefix == "" {
		return name
	}
	return path.Join(t.prefix, name)
}

// UploadAll sends localPath to every provider concurrently. The first
// failure cancels the remaining uploads.
func (t *Transfer) UploadAll(ctx context.Context, localPath string) error {
	if !t.Enabled() {
		return nil
	}
	name := filepath.Base(localPath)
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("%w: %w", ErrCloudTransfer, err)
	}
	key := t.ObjectKey(name)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, providerName := range t.order {
		p := t.providers[providerName]
		g.Go(func() error {
			start := time.Now()
			if err := uploadFile(gctx, p, key, localPath); err != nil {
				t.logger.Error("upload failed", "provider", p.Name(), "key", key, "error", err)
				return fmt.Errorf("%w: %s: %w", ErrCloudTransfer, p.Name(), err)
			}
			t.logger.Info("upload completed",
				"provider", p.Name(),
				"key", key,
				"duration", time.Since(start).String(),
			)
			return nil
		})
	}
	return g.Wait()
}

// Download fetches name from provider into dstDir and returns the local
// path. The file appears at its final path only once complete.
func (t *Transfer) Download(ctx context.Context, name, provider, dstDir string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCloudTransfer, err)
	}
	p, ok := t.providers[provider]
	if !ok {
		return "", fmt.Errorf("%w: %w: %q", ErrCloudTransfer, ErrUnknownProvider, provider)
	}
	if err := fsutil.EnsureDirectoryExist(dstDir); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCloudTransfer, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	dst := filepath.Join(dstDir, name)
	tmp := dst + fsutil.TmpSuffix
	key := t.ObjectKey(name)
	if err := downloadFile(ctx, p, key, tmp); err != nil {
		_ = fsutil.RemoveIfExists(tmp)
		t.logger.Error("download failed", "provider", provider, "key", key, "error", err)
		return "", fmt.Errorf("%w: %s: %w", ErrCloudTransfer, provider, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = fsutil.RemoveIfExists(tmp)
		return "", fmt.Errorf("%w: rename %q: %w", ErrCloudTransfer, tmp, err)
	}
	t.logger.Info("download completed", "provider", provider, "key", key, "path", dst)
	return dst, nil
}

// Close releases providers that hold connections.
func (t *Transfer) Close() error {
	var errs []error
	for _, name := range t.order {
		if c, ok := t.providers[name].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// ValidateName accepts plain file names only.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func uploadFile(ctx context.Context, p Provider, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %q: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %q: %w", localPath, err)
	}
	return p.Upload(ctx, key, f, info.Size())
}

func downloadFile(ctx context.Context, p Provider, key, dst string) (err error) {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %q: %w", dst, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %q: %w", dst, cerr)
		}
	}()

	if err := p.Download(ctx, key, f); err != nil {
		return err
	}
	return f.Sync()
}
